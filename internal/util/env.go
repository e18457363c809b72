package util

import (
	"os"
	"strings"
)

// Getenv reads key as a T. Unset or blank variables, and values that do not
// parse, yield def.
func Getenv[T StringParsable](key string, def T) T {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return ParseStringAs(strings.TrimSpace(v), def)
}
