// Package results archives finished races. The room actor itself keeps
// nothing beyond its in-memory state; this archive hangs off the
// race-end hook and is purely a collaborator outside the core.
package results

import (
	"context"
	"os"
	"strconv"
	"strings"

	"passage-race/internal/race"
)

const defaultRecentLimit = 50

// Service stores finished-race records and serves recent history.
type Service interface {
	Append(ctx context.Context, record race.RaceRecord) error
	Recent(ctx context.Context, limit int) ([]race.RaceRecord, error)
	Close() error
}

func envIntOrDefault(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > defaultRecentLimit {
		return defaultRecentLimit
	}
	return limit
}
