// Package storage persists the device configuration (the surf spot the
// board displays) across restarts.
//
// Drivers:
//   - "file":   JSON snapshot replaced atomically on every write
//   - "sqlite": single-row key/value table in a SQLite database
//   - "memory": process-lifetime only (also used when driver is "none")
package storage
