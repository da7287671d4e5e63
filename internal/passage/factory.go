package passage

import (
	"fmt"
	"os"
	"strings"
)

const (
	ModeMemory = "memory"
	ModeSQLite = "sqlite"
)

func modeFromEnv() string {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("PASSAGE_MODE")))
	switch raw {
	case "", ModeMemory, "mem":
		return ModeMemory
	case ModeSQLite, "db":
		return ModeSQLite
	default:
		return raw
	}
}

// NewServiceFromEnv picks the catalog backend from PASSAGE_MODE.
// Memory is the default so a bare binary can serve races immediately.
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
	default:
		return nil, mode, fmt.Errorf("invalid PASSAGE_MODE %q (supported: %s, %s)", mode, ModeMemory, ModeSQLite)
	}
}
