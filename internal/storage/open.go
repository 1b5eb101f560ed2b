package storage

import (
	"context"
	"errors"
	"strings"

	logx "spotcheck/pkg/logx"
)

// Store persists the configured spot.
type Store interface {
	// GetSpot returns the stored spot, or ErrNotConfigured.
	GetSpot(ctx context.Context) (Spot, error)
	PutSpot(ctx context.Context, s Spot) error
	// ClearSpot removes the stored spot. Clearing an empty store is not an error.
	ClearSpot(ctx context.Context) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "none", "memory":
		return newMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// LoadSpot returns the stored spot, or DefaultSpot when none is stored.
func LoadSpot(ctx context.Context, st Store) (Spot, error) {
	s, err := st.GetSpot(ctx)
	if errors.Is(err, ErrNotConfigured) {
		return DefaultSpot(), nil
	}
	if err != nil {
		return DefaultSpot(), err
	}
	return s.Normalize(), nil
}
