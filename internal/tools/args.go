package tools

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Argument coercion. Models are loose about JSON types: ids arrive as
// numbers, numbers arrive as strings. These helpers accept the
// reasonable variants and reject the rest with ErrInvalidArguments.

func stringArg(args map[string]any, key string) (string, error) {
	switch v := args[key].(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", invalidArgs("%s must be a string", key)
	}
}

func floatArg(args map[string]any, key string) (*float64, error) {
	var f float64
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case float64:
		f = v
	case int:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil, invalidArgs("%s must be a number", key)
		}
		f = parsed
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, invalidArgs("%s must be a number", key)
		}
		f = parsed
	default:
		return nil, invalidArgs("%s must be a number", key)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, invalidArgs("%s must be a finite number", key)
	}
	return &f, nil
}

// intArg reads a whole number, returning def when the key is absent.
func intArg(args map[string]any, key string, def int) (int, error) {
	f, err := floatArg(args, key)
	if err != nil {
		return 0, err
	}
	if f == nil {
		return def, nil
	}
	if *f != math.Trunc(*f) || math.Abs(*f) > math.MaxInt32 {
		return 0, invalidArgs("%s must be a whole number", key)
	}
	return int(*f), nil
}
