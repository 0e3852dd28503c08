package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	clierr "github.com/ggonzalez94/solchat/internal/errors"
)

const appDir = "solchat"

type GlobalFlags struct {
	ConfigPath     string
	EnvFile        string
	JSON           bool
	Plain          bool
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	Retries        int
	NoCache        bool
	Provider       string
	Model          string
	LogLevel       string
}

// BindFlags registers the persistent flags shared by every command.
func BindFlags(fs *pflag.FlagSet, flags *GlobalFlags) {
	fs.StringVar(&flags.ConfigPath, "config", "", "Path to config file")
	fs.StringVar(&flags.EnvFile, "env-file", "", "Path to a .env file (default ./.env when present)")
	fs.BoolVar(&flags.JSON, "json", false, "Output JSON (default)")
	fs.BoolVar(&flags.Plain, "plain", false, "Output plain text")
	fs.BoolVar(&flags.ResultsOnly, "results-only", false, "Output only data payload")
	fs.StringVar(&flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	fs.StringVar(&flags.Timeout, "timeout", "", "Per-request data API timeout (e.g. 15s)")
	fs.IntVar(&flags.Retries, "retries", -1, "Retries per data API request")
	fs.BoolVar(&flags.NoCache, "no-cache", false, "Disable cache reads and writes")
	fs.StringVar(&flags.Provider, "model-provider", "", "Model provider (gemini|openai)")
	fs.StringVar(&flags.Model, "model", "", "Model name")
	fs.StringVar(&flags.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
}

type ModelSettings struct {
	Provider          string
	BaseURL           string
	Name              string
	APIKey            string
	SystemInstruction string
	Temperature       float64
	TopK              int
	TopP              float64
	MaxOutputTokens   int
	MaxAttempts       int
	RetryBase         time.Duration
	RetryMax          time.Duration
	MaxRounds         int
}

type HeliusSettings struct {
	APIKey  string
	BaseURL string
	Pages   int
}

type BirdeyeSettings struct {
	APIKey   string
	BaseURL  string
	Chain    string
	Currency string
}

type CacheSettings struct {
	Enabled         bool
	Backend         string
	Path            string
	LockPath        string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	PriceTTL        time.Duration
	MetadataTTL     time.Duration
	TransactionsTTL time.Duration
}

type ConversationSettings struct {
	Backend  string
	Path     string
	LockPath string
}

type Settings struct {
	OutputMode      string
	ResultsOnly     bool
	EnableCommands  []string
	Env             string
	LogLevel        string
	Timeout         time.Duration
	ExchangeTimeout time.Duration
	Retries         int
	Model           ModelSettings
	Helius          HeliusSettings
	Birdeye         BirdeyeSettings
	Cache           CacheSettings
	Conversations   ConversationSettings
	ServerAddr      string
	ToolsEnabled    []string
}

type keyConfig struct {
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
}

func (k keyConfig) resolve(current string) string {
	if k.APIKeyEnv != "" {
		if v := os.Getenv(k.APIKeyEnv); v != "" {
			return v
		}
	}
	if k.APIKey != "" {
		return k.APIKey
	}
	return current
}

type fileConfig struct {
	Output          string `yaml:"output"`
	Env             string `yaml:"env"`
	LogLevel        string `yaml:"log_level"`
	Timeout         string `yaml:"timeout"`
	ExchangeTimeout string `yaml:"exchange_timeout"`
	Retries         *int   `yaml:"retries"`
	Model           struct {
		keyConfig         `yaml:",inline"`
		Provider          string   `yaml:"provider"`
		BaseURL           string   `yaml:"base_url"`
		Name              string   `yaml:"name"`
		SystemInstruction string   `yaml:"system_instruction"`
		Temperature       *float64 `yaml:"temperature"`
		TopK              *int     `yaml:"top_k"`
		TopP              *float64 `yaml:"top_p"`
		MaxOutputTokens   *int     `yaml:"max_output_tokens"`
		MaxAttempts       *int     `yaml:"max_attempts"`
		RetryBase         string   `yaml:"retry_base"`
		RetryMax          string   `yaml:"retry_max"`
		MaxRounds         *int     `yaml:"max_rounds"`
	} `yaml:"model"`
	Helius struct {
		keyConfig `yaml:",inline"`
		BaseURL   string `yaml:"base_url"`
		Pages     *int   `yaml:"pages"`
	} `yaml:"helius"`
	Birdeye struct {
		keyConfig `yaml:",inline"`
		BaseURL   string `yaml:"base_url"`
		Chain     string `yaml:"chain"`
		Currency  string `yaml:"currency"`
	} `yaml:"birdeye"`
	Cache struct {
		Enabled  *bool  `yaml:"enabled"`
		Backend  string `yaml:"backend"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		Redis    struct {
			Addr        string `yaml:"addr"`
			Password    string `yaml:"password"`
			PasswordEnv string `yaml:"password_env"`
			DB          *int   `yaml:"db"`
		} `yaml:"redis"`
		TTL struct {
			Price        string `yaml:"price"`
			Metadata     string `yaml:"metadata"`
			Transactions string `yaml:"transactions"`
		} `yaml:"ttl"`
	} `yaml:"cache"`
	Conversations struct {
		Backend  string `yaml:"backend"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"conversations"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Tools struct {
		Enabled []string `yaml:"enabled"`
	} `yaml:"tools"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	if err := loadDotEnv(flags.EnvFile); err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if err := validate(&settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:      "json",
		Env:             "development",
		LogLevel:        "info",
		Timeout:         15 * time.Second,
		ExchangeTimeout: 2 * time.Minute,
		Retries:         2,
		Model: ModelSettings{
			Provider:          "gemini",
			SystemInstruction: "you are helpful solana trading assistant",
			Temperature:       0.1,
			TopK:              1,
			TopP:              1,
			MaxOutputTokens:   2048,
			MaxAttempts:       5,
			RetryBase:         time.Second,
			RetryMax:          8 * time.Second,
			MaxRounds:         8,
		},
		Helius: HeliusSettings{
			BaseURL: "https://api.helius.xyz",
			Pages:   1,
		},
		Birdeye: BirdeyeSettings{
			BaseURL:  "https://public-api.birdeye.so",
			Chain:    "solana",
			Currency: "USD",
		},
		Cache: CacheSettings{
			Enabled:         true,
			Backend:         "sqlite",
			Path:            filepath.Join(dataDir, "cache.db"),
			LockPath:        filepath.Join(dataDir, "cache.lock"),
			PriceTTL:        3 * time.Hour,
			MetadataTTL:     60 * time.Second,
			TransactionsTTL: time.Hour,
		},
		Conversations: ConversationSettings{
			Backend:  "sqlite",
			Path:     filepath.Join(dataDir, "conversations.db"),
			LockPath: filepath.Join(dataDir, "conversations.lock"),
		},
		ServerAddr: ":8080",
	}, nil
}

// loadDotEnv never overrides variables already present in the environment.
func loadDotEnv(path string) error {
	if strings.TrimSpace(path) != "" {
		if err := godotenv.Load(path); err != nil {
			return clierr.Wrap(clierr.CodeUsage, "load env file", err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return clierr.Wrap(clierr.CodeUsage, "load .env", err)
		}
	}
	return nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appDir, "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, appDir), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return clierr.Wrap(clierr.CodeUsage, "read config", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return clierr.Wrap(clierr.CodeUsage, "parse config yaml", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Env != "" {
		settings.Env = cfg.Env
	}
	if cfg.LogLevel != "" {
		settings.LogLevel = cfg.LogLevel
	}
	if err := parseDuration(cfg.Timeout, "config timeout", &settings.Timeout); err != nil {
		return err
	}
	if err := parseDuration(cfg.ExchangeTimeout, "config exchange_timeout", &settings.ExchangeTimeout); err != nil {
		return err
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}

	m := &settings.Model
	if cfg.Model.Provider != "" {
		m.Provider = strings.ToLower(cfg.Model.Provider)
	}
	if cfg.Model.BaseURL != "" {
		m.BaseURL = cfg.Model.BaseURL
	}
	if cfg.Model.Name != "" {
		m.Name = cfg.Model.Name
	}
	m.APIKey = cfg.Model.resolve(m.APIKey)
	if cfg.Model.SystemInstruction != "" {
		m.SystemInstruction = cfg.Model.SystemInstruction
	}
	if cfg.Model.Temperature != nil {
		m.Temperature = *cfg.Model.Temperature
	}
	if cfg.Model.TopK != nil {
		m.TopK = *cfg.Model.TopK
	}
	if cfg.Model.TopP != nil {
		m.TopP = *cfg.Model.TopP
	}
	if cfg.Model.MaxOutputTokens != nil {
		m.MaxOutputTokens = *cfg.Model.MaxOutputTokens
	}
	if cfg.Model.MaxAttempts != nil {
		m.MaxAttempts = *cfg.Model.MaxAttempts
	}
	if err := parseDuration(cfg.Model.RetryBase, "config model.retry_base", &m.RetryBase); err != nil {
		return err
	}
	if err := parseDuration(cfg.Model.RetryMax, "config model.retry_max", &m.RetryMax); err != nil {
		return err
	}
	if cfg.Model.MaxRounds != nil {
		m.MaxRounds = *cfg.Model.MaxRounds
	}

	settings.Helius.APIKey = cfg.Helius.resolve(settings.Helius.APIKey)
	if cfg.Helius.BaseURL != "" {
		settings.Helius.BaseURL = cfg.Helius.BaseURL
	}
	if cfg.Helius.Pages != nil {
		settings.Helius.Pages = *cfg.Helius.Pages
	}

	settings.Birdeye.APIKey = cfg.Birdeye.resolve(settings.Birdeye.APIKey)
	if cfg.Birdeye.BaseURL != "" {
		settings.Birdeye.BaseURL = cfg.Birdeye.BaseURL
	}
	if cfg.Birdeye.Chain != "" {
		settings.Birdeye.Chain = cfg.Birdeye.Chain
	}
	if cfg.Birdeye.Currency != "" {
		settings.Birdeye.Currency = cfg.Birdeye.Currency
	}

	c := &settings.Cache
	if cfg.Cache.Enabled != nil {
		c.Enabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.Backend != "" {
		c.Backend = strings.ToLower(cfg.Cache.Backend)
	}
	if cfg.Cache.Path != "" {
		c.Path = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		c.LockPath = cfg.Cache.LockPath
	}
	if cfg.Cache.Redis.Addr != "" {
		c.RedisAddr = cfg.Cache.Redis.Addr
	}
	if cfg.Cache.Redis.Password != "" {
		c.RedisPassword = cfg.Cache.Redis.Password
	}
	if cfg.Cache.Redis.PasswordEnv != "" {
		if v := os.Getenv(cfg.Cache.Redis.PasswordEnv); v != "" {
			c.RedisPassword = v
		}
	}
	if cfg.Cache.Redis.DB != nil {
		c.RedisDB = *cfg.Cache.Redis.DB
	}
	if err := parseDuration(cfg.Cache.TTL.Price, "config cache.ttl.price", &c.PriceTTL); err != nil {
		return err
	}
	if err := parseDuration(cfg.Cache.TTL.Metadata, "config cache.ttl.metadata", &c.MetadataTTL); err != nil {
		return err
	}
	if err := parseDuration(cfg.Cache.TTL.Transactions, "config cache.ttl.transactions", &c.TransactionsTTL); err != nil {
		return err
	}

	if cfg.Conversations.Backend != "" {
		settings.Conversations.Backend = strings.ToLower(cfg.Conversations.Backend)
	}
	if cfg.Conversations.Path != "" {
		settings.Conversations.Path = cfg.Conversations.Path
	}
	if cfg.Conversations.LockPath != "" {
		settings.Conversations.LockPath = cfg.Conversations.LockPath
	}
	if cfg.Server.Addr != "" {
		settings.ServerAddr = cfg.Server.Addr
	}
	if len(cfg.Tools.Enabled) > 0 {
		settings.ToolsEnabled = trimList(cfg.Tools.Enabled)
	}
	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("SOLCHAT_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("SOLCHAT_ENV"); v != "" {
		settings.Env = v
	}
	if v := os.Getenv("SOLCHAT_LOG_LEVEL"); v != "" {
		settings.LogLevel = v
	}
	if v := os.Getenv("SOLCHAT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("SOLCHAT_EXCHANGE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.ExchangeTimeout = d
		}
	}
	if v := os.Getenv("SOLCHAT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("SOLCHAT_MODEL_PROVIDER"); v != "" {
		settings.Model.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("SOLCHAT_MODEL"); v != "" {
		settings.Model.Name = v
	}
	if v := os.Getenv("SOLCHAT_MODEL_BASE_URL"); v != "" {
		settings.Model.BaseURL = v
	}
	if v := os.Getenv("SOLCHAT_MODEL_API_KEY"); v != "" {
		settings.Model.APIKey = v
	}
	if v := os.Getenv("SOLCHAT_MAX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Model.MaxRounds = n
		}
	}
	if v := os.Getenv("SOLCHAT_HELIUS_API_KEY"); v != "" {
		settings.Helius.APIKey = v
	}
	if v := os.Getenv("SOLCHAT_BIRDEYE_API_KEY"); v != "" {
		settings.Birdeye.APIKey = v
	}
	if v := os.Getenv("SOLCHAT_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.Cache.Enabled = !b
		}
	}
	if v := os.Getenv("SOLCHAT_CACHE_BACKEND"); v != "" {
		settings.Cache.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("SOLCHAT_CACHE_PATH"); v != "" {
		settings.Cache.Path = v
	}
	if v := os.Getenv("SOLCHAT_CACHE_LOCK_PATH"); v != "" {
		settings.Cache.LockPath = v
	}
	if v := os.Getenv("SOLCHAT_REDIS_ADDR"); v != "" {
		settings.Cache.RedisAddr = v
	}
	if v := os.Getenv("SOLCHAT_REDIS_PASSWORD"); v != "" {
		settings.Cache.RedisPassword = v
	}
	if v := os.Getenv("SOLCHAT_CONVERSATIONS_BACKEND"); v != "" {
		settings.Conversations.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("SOLCHAT_CONVERSATIONS_PATH"); v != "" {
		settings.Conversations.Path = v
	}
	if v := os.Getenv("SOLCHAT_SERVER_ADDR"); v != "" {
		settings.ServerAddr = v
	}
	if v := os.Getenv("SOLCHAT_TOOLS_ENABLED"); v != "" {
		settings.ToolsEnabled = trimList(strings.Split(v, ","))
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return clierr.New(clierr.CodeUsage, "cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	settings.ResultsOnly = flags.ResultsOnly

	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = trimList(strings.Split(flags.EnableCommands, ","))
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return clierr.Wrap(clierr.CodeUsage, "parse --timeout", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.NoCache {
		settings.Cache.Enabled = false
	}
	if flags.Provider != "" {
		settings.Model.Provider = strings.ToLower(flags.Provider)
	}
	if flags.Model != "" {
		settings.Model.Name = flags.Model
	}
	if flags.LogLevel != "" {
		settings.LogLevel = flags.LogLevel
	}
	return nil
}

func validate(settings *Settings) error {
	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return clierr.New(clierr.CodeUsage, "output must be json or plain")
	}
	if settings.Timeout <= 0 {
		return clierr.New(clierr.CodeUsage, "timeout must be positive")
	}
	if settings.ExchangeTimeout <= 0 {
		return clierr.New(clierr.CodeUsage, "exchange timeout must be positive")
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	switch settings.Model.Provider {
	case "gemini", "openai":
	default:
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported model provider %q (gemini|openai)", settings.Model.Provider))
	}
	if settings.Model.MaxAttempts < 1 {
		return clierr.New(clierr.CodeUsage, "model.max_attempts must be at least 1")
	}
	if settings.Model.MaxRounds < 1 {
		return clierr.New(clierr.CodeUsage, "model.max_rounds must be at least 1")
	}
	if settings.Helius.Pages < 1 {
		settings.Helius.Pages = 1
	}
	switch settings.Cache.Backend {
	case "sqlite", "memory":
	case "redis":
		if settings.Cache.Enabled && settings.Cache.RedisAddr == "" {
			return clierr.New(clierr.CodeUsage, "cache.redis.addr is required for the redis backend")
		}
	default:
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported cache backend %q (sqlite|redis|memory)", settings.Cache.Backend))
	}
	switch settings.Conversations.Backend {
	case "sqlite", "bolt", "memory":
	default:
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported conversations backend %q (sqlite|bolt|memory)", settings.Conversations.Backend))
	}
	return nil
}

func parseDuration(raw, field string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return clierr.Wrap(clierr.CodeUsage, field, err)
	}
	*dst = d
	return nil
}

func trimList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		v := strings.TrimSpace(item)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
