package storage

import (
	"errors"
	"time"
)

var (
	ErrClosed = errors.New("storage closed")
	// ErrNotConfigured is returned by GetSpot when nothing was stored yet.
	ErrNotConfigured = errors.New("spot not configured")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON snapshot at Path
//   - "sqlite": SQLite database file at Path
//   - "memory", "none" or empty: in-memory only
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Spot is the surf spot the board shows conditions for.
type Spot struct {
	Name      string `json:"spot_name"`
	Lat       string `json:"spot_lat"`
	Lon       string `json:"spot_lon"`
	UID       string `json:"spot_uid"`
	UTCOffset int    `json:"utc_offset"`
}

// Field length limits for a stored spot.
const (
	MaxNameLen = 25
	MaxLatLen  = 20
	MaxLonLen  = 20
	MaxUIDLen  = 30

	MinUTCOffset = -12
	MaxUTCOffset = 14
)

// DefaultSpot is used until a spot is configured, and for any field that
// fails validation.
func DefaultSpot() Spot {
	return Spot{
		Name:      "The Wedge",
		Lat:       "33.5930302087",
		Lon:       "-117.8819918632",
		UID:       "5842041f4e65fad6a770882b",
		UTCOffset: 0,
	}
}
