package dispatch

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// The backend forwards form values as strings, so every numeric field
// accepts either a JSON number or its textual form.

// floatParam also rejects NaN and infinities, which ParseFloat accepts
// from text such as "NaN" or "Inf".
func floatParam(params map[string]any, key string, def float64) (float64, error) {
	f, err := rawFloatParam(params, key, def)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s must be a finite number, got %v", key, params[key])
	}
	return f, nil
}

func rawFloatParam(params map[string]any, key string, def float64) (float64, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("could not convert %s to float: %q", key, v)
		}
		return f, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%s: unsupported type %T", key, raw)
	}
}

func intParam(params map[string]any, key string, def int) (int, error) {
	if s, ok := params[key].(string); ok {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, fmt.Errorf("invalid literal for %s: %q", key, s)
		}
		return n, nil
	}
	f, err := floatParam(params, key, float64(def))
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

var urbanWords = map[string]bool{"true": true, "1": true, "yes": true, "urbana": true}

func urbanParam(params map[string]any, key string) (bool, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return true, nil
	}
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		return urbanWords[strings.ToLower(strings.TrimSpace(v))], nil
	default:
		f, err := floatParam(params, key, 1)
		if err != nil {
			return false, err
		}
		return f != 0, nil
	}
}

func modelTypeParam(params map[string]any) string {
	raw, ok := params["model_type"]
	if !ok || raw == nil {
		return ModelEnrollment
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprint(raw)
}
