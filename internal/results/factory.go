package results

import (
	"fmt"
	"os"
	"strings"
)

const (
	ModeMemory   = "memory"
	ModeSQLite   = "sqlite"
	ModePostgres = "postgres"
)

func modeFromEnv() string {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("RESULTS_MODE")))
	switch raw {
	case "", ModeMemory, "mem":
		return ModeMemory
	case ModeSQLite:
		return ModeSQLite
	case ModePostgres, "postgresql", "pg":
		return ModePostgres
	default:
		return raw
	}
}

// NewServiceFromEnv picks the archive backend from RESULTS_MODE.
func NewServiceFromEnv() (Service, string, error) {
	mode := modeFromEnv()

	switch mode {
	case ModeMemory:
		return NewMemoryService(), mode, nil
	case ModeSQLite:
		svc, err := NewSQLiteServiceFromEnv()
		if err != nil {
			return nil, mode, err
		}
		return svc, mode, nil
	case ModePostgres:
		svc, err := NewPostgresServiceFromEnv()
		if err != nil {
			return nil, mode, err
		}
		return svc, mode, nil
	default:
		return nil, mode, fmt.Errorf("invalid RESULTS_MODE %q (supported: %s, %s, %s)",
			mode, ModeMemory, ModeSQLite, ModePostgres)
	}
}
