package util

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type StringParsable interface {
	string | int | time.Duration
}

// ParseStringAs parses the input string as a StringParsable type, returning the default
// if an error occurs.
func ParseStringAs[T StringParsable](v string, def T) T {
	v = strings.Trim(v, `"`) // in case something comes in as if it were a json string

	var parsed any
	var err error
	switch any(def).(type) {
	case string:
		parsed = v
	case int:
		parsed, err = strconv.Atoi(v)
	case time.Duration:
		parsed, err = time.ParseDuration(v)
	}
	if err != nil {
		return def
	}
	return parsed.(T)
}

// ParseInt converts a decoded JSON value to an int. Numbers must be integral
// and strings must hold a base 10 integer.
func ParseInt(m any) (int, error) {
	switch val := m.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) || math.IsNaN(val) {
			return 0, fmt.Errorf("not an integer: %v", val)
		}
		return int(val), nil
	case json.Number:
		i, err := strconv.Atoi(val.String())
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", val)
		}
		return i, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", val)
		}
		return i, nil
	case nil:
		return 0, fmt.Errorf("missing value")
	default:
		return 0, fmt.Errorf("unsupported type %T", m)
	}
}

// ParseFloat converts a decoded JSON value to a float64.
func ParseFloat(m any) (float64, error) {
	switch val := m.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case json.Number:
		return val.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(val), 64)
	case nil:
		return 0, fmt.Errorf("missing value")
	default:
		return 0, fmt.Errorf("unsupported type %T", m)
	}
}
