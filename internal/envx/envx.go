// Package envx provides fallbacks for flags from environment variables.
package envx

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/anacrolix/log"
)

// Int retrieve a integer flag from the environment, checks each key in order
// first to parse successfully is returned.
func Int[T int | int64](fallback T, keys ...string) T {
	return envval(fallback, func(s string) (T, error) {
		decoded, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fallback, fmt.Errorf("integer %q is invalid: %w", s, err)
		}
		return T(decoded), nil
	}, keys...)
}

// Boolean retrieve a boolean flag from the environment, checks each key in order
// first to parse successfully is returned.
func Boolean(fallback bool, keys ...string) bool {
	return envval(fallback, func(s string) (bool, error) {
		decoded, err := strconv.ParseBool(s)
		if err != nil {
			return fallback, fmt.Errorf("boolean %q is invalid: %w", s, err)
		}
		return decoded, nil
	}, keys...)
}

// String retrieve a string value from the environment, checks each key in order
// first string found is returned.
func String(fallback string, keys ...string) string {
	return envval(fallback, func(s string) (string, error) {
		// we'll never receive an empty string because envval skips empty strings.
		return s, nil
	}, keys...)
}

// Strings retrieve a string array seperated by , value from the environment, checks each key in order
// first string found is returned.
func Strings(fallback []string, keys ...string) []string {
	return envval(fallback, func(s string) ([]string, error) {
		return strings.Split(s, ","), nil
	}, keys...)
}

// Duration retrieves a time.Duration from the environment, checks each key in order
// first successful parse to a duration is returned.
func Duration(fallback time.Duration, keys ...string) time.Duration {
	return envval(fallback, func(s string) (time.Duration, error) {
		decoded, err := time.ParseDuration(s)
		if err != nil {
			return fallback, fmt.Errorf("time.Duration %q is invalid: %w", s, err)
		}
		return decoded, nil
	}, keys...)
}

var logger = log.Default.WithNames("envx")

func envval[T any](fallback T, parse func(string) (T, error), keys ...string) T {
	for _, k := range keys {
		s := strings.TrimSpace(os.Getenv(k))
		if s == "" {
			continue
		}
		decoded, err := parse(s)
		if err != nil {
			logger.Levelf(log.Warning, "%s stored an invalid value: %v", k, err)
			continue
		}
		return decoded
	}
	return fallback
}
