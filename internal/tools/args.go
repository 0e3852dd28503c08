package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/solchat/internal/errors"
)

func missing(name string) error {
	return clierr.New(clierr.CodeMissingArgument, fmt.Sprintf("%s required", name))
}

func stringArg(args map[string]any, name string) (string, bool) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// intArg reads an integer the model may send as a number or a string.
func intArg(args map[string]any, name string) (int64, bool, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return 0, false, nil
	}
	var (
		n   int64
		err error
	)
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			err = fmt.Errorf("not an integer")
		}
		n = int64(t)
	case int:
		n = int64(t)
	case int64:
		n = t
	case json.Number:
		n, err = t.Int64()
	case string:
		if strings.TrimSpace(t) == "" {
			return 0, false, nil
		}
		n, err = strconv.ParseInt(strings.TrimSpace(t), 10, 64)
	default:
		err = fmt.Errorf("unsupported type %T", v)
	}
	if err != nil {
		return 0, false, clierr.Wrap(clierr.CodeUsage, fmt.Sprintf("%s must be an integer", name), err)
	}
	return n, true, nil
}
