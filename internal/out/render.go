package out

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/ggonzalez94/solchat/internal/config"
	"github.com/ggonzalez94/solchat/internal/model"
)

// Render writes env to w. JSON mode prints the envelope, or only its data
// when ResultsOnly is set. Plain mode prints the data one line per item,
// headed by a status line unless ResultsOnly is set.
func Render(w io.Writer, env model.Envelope, settings config.Settings) error {
	if settings.OutputMode != "plain" {
		if settings.ResultsOnly {
			return writeJSON(w, env.Data)
		}
		return writeJSON(w, env)
	}

	if !settings.ResultsOnly {
		if _, err := fmt.Fprintln(w, statusLine(env)); err != nil {
			return err
		}
		for _, warning := range env.Warnings {
			if _, err := fmt.Fprintln(w, "warning: "+warning); err != nil {
				return err
			}
		}
		if env.Error != nil {
			return nil
		}
	}
	return writePlain(w, env.Data)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// statusLine summarises the envelope: outcome, command, upstream latencies.
func statusLine(env model.Envelope) string {
	if env.Error != nil {
		return fmt.Sprintf("error %s (%d): %s", env.Error.Type, env.Error.Code, env.Error.Message)
	}
	parts := []string{"ok"}
	if env.Meta.Command != "" {
		parts = append(parts, env.Meta.Command)
	}
	for _, p := range env.Meta.Providers {
		parts = append(parts, fmt.Sprintf("%s=%s/%dms", p.Name, p.Status, p.LatencyMS))
	}
	if env.Meta.RequestID != "" {
		parts = append(parts, "request="+env.Meta.RequestID)
	}
	return strings.Join(parts, "  ")
}

// plainLiner is implemented by domain values with a dedicated one-line form.
type plainLiner interface {
	PlainLine() string
}

func writePlain(w io.Writer, data any) error {
	v := reflect.ValueOf(data)
	if v.IsValid() && (v.Kind() == reflect.Slice || v.Kind() == reflect.Array) {
		if v.Len() == 0 {
			_, err := fmt.Fprintln(w, "[]")
			return err
		}
		for i := 0; i < v.Len(); i++ {
			if _, err := fmt.Fprintln(w, plainLine(v.Index(i).Interface())); err != nil {
				return err
			}
		}
		return nil
	}
	_, err := fmt.Fprintln(w, plainLine(data))
	return err
}

// plainLine renders one value: strings verbatim, domain values through
// PlainLine, anything else as sorted key=value pairs of its JSON form.
func plainLine(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case plainLiner:
		return t.PlainLine()
	}

	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var fields map[string]any
	if err := json.Unmarshal(buf, &fields); err != nil {
		return string(buf)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}
