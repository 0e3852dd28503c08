package app

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/solchat/internal/errors"
	"github.com/ggonzalez94/solchat/internal/id"
	"github.com/ggonzalez94/solchat/internal/model"
	"github.com/ggonzalez94/solchat/internal/schema"
)

func (s *runtimeState) newTradesCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "trades <wallet>",
		Short: "List analyzed swaps of a wallet, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet, err := id.ParseAddress(args[0], "wallet")
			if err != nil {
				return err
			}
			data, err := s.svc.dataClient(cmd.Context())
			if err != nil {
				return err
			}
			var swaps []model.SwapTransaction
			err = s.track("helius", func() error {
				var err error
				swaps, err = data.WalletTransactions(cmd.Context(), wallet)
				return err
			})
			if err != nil {
				return err
			}
			if limit > 0 && len(swaps) > limit {
				swaps = swaps[:limit]
			}
			if swaps == nil {
				swaps = []model.SwapTransaction{}
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), swaps, s.lastProviders)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum swaps to print (0 = all)")
	return cmd
}

func (s *runtimeState) newPricesCommand() *cobra.Command {
	var (
		interval string
		from     string
		to       string
		lookback time.Duration
	)
	cmd := &cobra.Command{
		Use:   "prices <token>",
		Short: "Print the price history of a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := id.ParseAddress(args[0], "token")
			if err != nil {
				return err
			}
			req, err := priceRequest(token, interval, from, to, lookback, s.runner.now())
			if err != nil {
				return err
			}
			data, err := s.svc.dataClient(cmd.Context())
			if err != nil {
				return err
			}
			var history model.PriceHistory
			err = s.track("birdeye", func() error {
				var err error
				history, err = data.PriceHistory(cmd.Context(), req)
				return err
			})
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), history, s.lastProviders)
		},
	}
	cmd.Flags().StringVar(&interval, "interval", "12H", "Candle interval (1m, 15m, 1H, 12H, 1D, ...)")
	cmd.Flags().StringVar(&from, "from", "", "Start time (unix seconds or RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "End time (unix seconds or RFC3339, default now)")
	cmd.Flags().DurationVar(&lookback, "lookback", 7*24*time.Hour, "Window before --to when --from is unset")
	return cmd
}

func priceRequest(token, interval, from, to string, lookback time.Duration, now time.Time) (model.PriceHistoryRequest, error) {
	end := model.WindowEnd(now, interval)
	if strings.TrimSpace(to) != "" {
		v, err := parseTime(to, "--to")
		if err != nil {
			return model.PriceHistoryRequest{}, err
		}
		end = v
	}
	start := end - int64(lookback/time.Second)
	if strings.TrimSpace(from) != "" {
		v, err := parseTime(from, "--from")
		if err != nil {
			return model.PriceHistoryRequest{}, err
		}
		start = v
	}
	if start > end {
		return model.PriceHistoryRequest{}, clierr.New(clierr.CodeUsage, "--from must not be after --to")
	}
	return model.PriceHistoryRequest{
		Address:  token,
		Interval: strings.TrimSpace(interval),
		From:     start,
		To:       end,
	}, nil
}

func parseTime(v, flag string) (int64, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.Unix(), nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, clierr.New(clierr.CodeUsage, flag+" must be unix seconds or RFC3339")
	}
	return n, nil
}

func (s *runtimeState) newTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token <address>",
		Short: "Print symbol, name and current price of a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := id.ParseAddress(args[0], "token")
			if err != nil {
				return err
			}
			data, err := s.svc.dataClient(cmd.Context())
			if err != nil {
				return err
			}
			var meta model.TokenMetadata
			err = s.track("birdeye", func() error {
				var err error
				meta, err = data.TokenMetadata(cmd.Context(), address)
				return err
			})
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), meta, s.lastProviders)
		},
	}
}

func (s *runtimeState) newToolsCommand() *cobra.Command {
	root := &cobra.Command{Use: "tools", Short: "Tool commands"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List the tools offered to the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := buildRegistry(s.settings.ToolsEnabled, s.logger, nil)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), reg.Specs(), nil)
		},
	}
	root.AddCommand(list)
	return root
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command and tool schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := buildRegistry(s.settings.ToolsEnabled, s.logger, nil)
			if err != nil {
				return err
			}
			doc, err := schema.Build(s.root, strings.Join(args, " "), reg.Specs())
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), doc, nil)
		},
	}
}

func (s *runtimeState) newProvidersCommand() *cobra.Command {
	root := &cobra.Command{Use: "providers", Short: "Provider commands"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List upstream data providers and API key metadata (no keys required)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.svc.newDataClient(nil).Providers(), nil)
		},
	}
	root.AddCommand(list)
	return root
}
