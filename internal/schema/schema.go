// Package schema describes the CLI and the model-facing tools as JSON.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	clierr "github.com/ggonzalez94/solchat/internal/errors"
	"github.com/ggonzalez94/solchat/internal/model"
)

type Document struct {
	Command CommandSchema    `json:"command"`
	Tools   []model.ToolSpec `json:"tools,omitempty"`
}

type CommandSchema struct {
	Path        string          `json:"path"`
	Use         string          `json:"use"`
	Short       string          `json:"short"`
	Args        []string        `json:"args,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Usage      string `json:"usage"`
	Default    string `json:"default,omitempty"`
	Persistent bool   `json:"persistent,omitempty"`
}

// Build resolves commandPath below root and serializes that subtree. Tool
// specs are attached only when the whole tree is requested.
func Build(root *cobra.Command, commandPath string, tools []model.ToolSpec) (Document, error) {
	cmd := root
	for _, part := range strings.Fields(commandPath) {
		next := child(cmd, part)
		if next == nil {
			return Document{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("command not found: %s", commandPath))
		}
		cmd = next
	}
	doc := Document{Command: serialize(cmd)}
	if cmd == root {
		doc.Tools = tools
	}
	return doc, nil
}

func child(cmd *cobra.Command, name string) *cobra.Command {
	for _, c := range cmd.Commands() {
		if c.Name() == name {
			return c
		}
		for _, alias := range c.Aliases {
			if alias == name {
				return c
			}
		}
	}
	return nil
}

func serialize(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Path:  strings.TrimSpace(cmd.CommandPath()),
		Use:   cmd.Use,
		Short: cmd.Short,
		Args:  positional(cmd.Use),
		Flags: flags(cmd),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		s.Subcommands = append(s.Subcommands, serialize(sub))
	}
	return s
}

// positional extracts "<name>" placeholders from a cobra Use line.
func positional(use string) []string {
	var out []string
	for _, field := range strings.Fields(use) {
		if strings.HasPrefix(field, "<") && strings.HasSuffix(field, ">") {
			out = append(out, strings.Trim(field, "<>"))
		}
	}
	return out
}

func flags(cmd *cobra.Command) []FlagSchema {
	var items []FlagSchema
	persistent := map[string]bool{}
	cmd.PersistentFlags().VisitAll(func(f *pflag.Flag) { persistent[f.Name] = true })
	cmd.NonInheritedFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "help" {
			return
		}
		items = append(items, FlagSchema{
			Name:       f.Name,
			Type:       f.Value.Type(),
			Usage:      f.Usage,
			Default:    f.DefValue,
			Persistent: persistent[f.Name],
		})
	})
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}
