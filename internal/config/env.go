// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/playerd/internal/log"
)

// envLogger is shared by the Parse helpers; every lookup logs its source.
func envLogger() zerolog.Logger { return log.WithComponent("config") }

func sensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "password") || strings.Contains(k, "token")
}

// ParseString reads key from the environment or returns defaultValue.
func ParseString(key, defaultValue string) string {
	logger := envLogger()
	value, ok := os.LookupEnv(key)
	switch {
	case !ok:
		logger.Debug().Str("key", key).Str("source", "default").Msg("using default value")
		return defaultValue
	case value == "":
		logger.Debug().Str("key", key).Str("source", "default").Msg("using default value (environment variable is empty)")
		return defaultValue
	case sensitive(key):
		logger.Debug().Str("key", key).Str("source", "environment").Bool("sensitive", true).Msg("using environment variable")
	default:
		logger.Debug().Str("key", key).Str("value", value).Str("source", "environment").Msg("using environment variable")
	}
	return value
}

// ParseInt reads an integer; parse errors fall back to defaultValue.
func ParseInt(key string, defaultValue int) int {
	return parseEnv(key, defaultValue, strconv.Atoi, func(e *zerolog.Event, v int) *zerolog.Event { return e.Int("value", v) })
}

// ParseDuration reads a Go duration such as "250ms".
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseEnv(key, defaultValue, time.ParseDuration, func(e *zerolog.Event, v time.Duration) *zerolog.Event { return e.Dur("value", v) })
}

// ParseFloat reads a float64.
func ParseFloat(key string, defaultValue float64) float64 {
	parse := func(s string) (float64, error) { return strconv.ParseFloat(s, 64) }
	return parseEnv(key, defaultValue, parse, func(e *zerolog.Event, v float64) *zerolog.Event { return e.Float64("value", v) })
}

// ParseBool accepts true/false, 1/0 and yes/no, case-insensitively.
func ParseBool(key string, defaultValue bool) bool {
	parse := func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return false, strconv.ErrSyntax
	}
	return parseEnv(key, defaultValue, parse, func(e *zerolog.Event, v bool) *zerolog.Event { return e.Bool("value", v) })
}

func parseEnv[T any](key string, defaultValue T, parse func(string) (T, error), field func(*zerolog.Event, T) *zerolog.Event) T {
	logger := envLogger()
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		logger.Debug().Str("key", key).Str("source", "default").Msg("using default value")
		return defaultValue
	}
	v, err := parse(raw)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", raw).
			Msg("invalid value in environment variable, using default")
		return defaultValue
	}
	field(logger.Debug().Str("key", key).Str("source", "environment"), v).Msg("using environment variable")
	return v
}
