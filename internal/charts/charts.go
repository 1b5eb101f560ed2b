// Package charts downloads the tide and swell chart images for the
// configured spot and keeps the last good copy of each on disk.
package charts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"spotcheck/internal/display"
	"spotcheck/internal/storage"
	logx "spotcheck/pkg/logx"
)

// Kind selects a chart.
type Kind string

const (
	Tide  Kind = "tide_chart"
	Swell Kind = "swell_chart"
)

const maxImageBytes = 2 << 20

// ErrNotImage is returned when the API answered with something that does not
// decode as an image the panel can draw. The previous chart is kept.
var ErrNotImage = errors.New("chart response is not an image")

// Getter performs an API GET (conditions.Client satisfies it).
type Getter interface {
	Get(ctx context.Context, endpoint string, spot storage.Spot, limit int64) ([]byte, error)
}

// Info describes the stored copy of a chart.
type Info struct {
	Path      string    `json:"path"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Downloader fetches charts into Dir.
type Downloader struct {
	dir    string
	getter Getter
	log    logx.Logger

	mu    sync.RWMutex
	infos map[Kind]Info
}

func NewDownloader(dir string, getter Getter, log logx.Logger) (*Downloader, error) {
	if dir == "" {
		return nil, errors.New("chart dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Downloader{dir: dir, getter: getter, log: log, infos: map[Kind]Info{}}
	// Charts from a previous run are still valid to draw.
	for _, k := range []Kind{Tide, Swell} {
		if info, err := probe(d.Path(k)); err == nil {
			d.infos[k] = info
		}
	}
	return d, nil
}

// Path returns where chart k is stored.
func (d *Downloader) Path(k Kind) string {
	return filepath.Join(d.dir, string(k)+".img")
}

// Info returns the stored chart, ok=false if none was ever saved.
func (d *Downloader) Info(k Kind) (Info, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.infos[k]
	return info, ok
}

// Refresh downloads chart k for spot and replaces the stored copy.
// On any error the stored copy is left as it was.
func (d *Downloader) Refresh(ctx context.Context, k Kind, spot storage.Spot) error {
	body, err := d.getter.Get(ctx, string(k), spot, maxImageBytes)
	if err != nil {
		return err
	}
	cfg, format, err := display.CheckImage(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	path := d.Path(k)
	if err := writeAtomic(path, body); err != nil {
		return fmt.Errorf("save %s: %w", k, err)
	}
	info := Info{Path: path, Width: cfg.Width, Height: cfg.Height, UpdatedAt: time.Now()}
	d.mu.Lock()
	d.infos[k] = info
	d.mu.Unlock()

	d.log.Debug("chart saved", logx.String("chart", string(k)), logx.String("format", format), logx.Int("width", cfg.Width), logx.Int("height", cfg.Height))
	return nil
}

func writeAtomic(path string, b []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func probe(path string) (Info, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Info{}, err
	}
	cfg, _, err := display.CheckImage(b)
	if err != nil {
		return Info{}, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	return Info{Path: path, Width: cfg.Width, Height: cfg.Height, UpdatedAt: st.ModTime()}, nil
}
