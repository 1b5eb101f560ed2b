package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "spotcheck/pkg/logx"
)

// fileStore keeps the spot in a JSON snapshot and appends every change to a
// history journal.
//
// Files:
//   - <prefix>.spot.json            (current spot, replaced atomically)
//   - <prefix>.history.jsonl        (append-only change journal)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	historyFile  *os.File

	spot *Spot
}

type historyRecord struct {
	At     time.Time `json:"at"`
	Action string    `json:"action"`
	Spot   *Spot     `json:"spot,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".spot.json"
	spot, err := loadSnapshot(snapPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		// A torn or hand-edited snapshot must not keep the board from booting.
		log.Warn("spot snapshot unreadable, ignoring", logx.String("path", snapPath), logx.Err(err))
		spot = nil
	}

	hf, err := os.OpenFile(prefix+".history.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		historyFile:  hf,
		spot:         spot,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return nil
	}
	err := s.historyFile.Close()
	s.historyFile = nil
	return err
}

func (s *fileStore) GetSpot(ctx context.Context) (Spot, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return Spot{}, ErrClosed
	}
	if s.spot == nil {
		return Spot{}, ErrNotConfigured
	}
	return *s.spot, nil
}

func (s *fileStore) PutSpot(ctx context.Context, sp Spot) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return ErrClosed
	}
	if err := writeSnapshot(s.snapshotPath, &sp); err != nil {
		return err
	}
	s.spot = &sp
	s.appendHistoryLocked("put", &sp)
	return nil
}

func (s *fileStore) ClearSpot(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return ErrClosed
	}
	if err := os.Remove(s.snapshotPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	s.spot = nil
	s.appendHistoryLocked("clear", nil)
	return nil
}

// appendHistoryLocked is best-effort: the snapshot is the source of truth.
func (s *fileStore) appendHistoryLocked(action string, sp *Spot) {
	rec := historyRecord{At: time.Now().UTC(), Action: action, Spot: sp}
	if err := json.NewEncoder(s.historyFile).Encode(rec); err != nil {
		s.log.Debug("spot history append failed", logx.Err(err))
	}
}

func writeSnapshot(path string, sp *Spot) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(sp); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadSnapshot(path string) (*Spot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var sp Spot
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&sp); err != nil {
		return nil, err
	}
	return &sp, nil
}
