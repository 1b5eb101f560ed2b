// Package update checks a release manifest for a newer build.
//
// Checks are started fire-and-forget from the dispatch loop; the loop never
// waits on them. Installing the update is left to the service manager.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/mod/semver"

	"spotcheck/internal/power"
	logx "spotcheck/pkg/logx"
)

var ErrDisabled = errors.New("update check disabled")

const maxManifestBytes = 16 << 10

// Config configures the checker. An empty ManifestURL disables checks.
type Config struct {
	ManifestURL    string
	CurrentVersion string
	Timeout        time.Duration
}

// Manifest is the release descriptor served at ManifestURL.
type Manifest struct {
	Version string `json:"version"`
	URL     string `json:"url"`
	SHA256  string `json:"sha256,omitempty"`
}

// Result is the outcome of one check.
type Result struct {
	CheckedAt time.Time `json:"checked_at"`
	Current   string    `json:"current"`
	Latest    string    `json:"latest,omitempty"`
	Available bool      `json:"available"`
	URL       string    `json:"url,omitempty"`
	Err       string    `json:"err,omitempty"`
}

// Holder keeps the board busy for the duration of a check.
type Holder interface {
	Hold(k power.Kind) (release func())
}

type Checker struct {
	cfg    Config
	client *http.Client
	holder Holder
	log    logx.Logger

	running atomic.Bool
	started atomic.Uint64
	skipped atomic.Uint64
	last    atomic.Pointer[Result]
	wg      sync.WaitGroup
}

func NewChecker(cfg Config, client *http.Client, holder Holder, log logx.Logger) *Checker {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Checker{cfg: cfg, client: client, holder: holder, log: log}
}

// Enabled reports whether a manifest URL is configured.
func (c *Checker) Enabled() bool { return strings.TrimSpace(c.cfg.ManifestURL) != "" }

// Start launches one background check and returns immediately. It returns
// false when checks are disabled or one is already in flight.
func (c *Checker) Start(ctx context.Context) bool {
	if !c.Enabled() {
		return false
	}
	if !c.running.CompareAndSwap(false, true) {
		c.skipped.Add(1)
		c.log.Debug("update check already running")
		return false
	}
	c.started.Add(1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("update check panicked", logx.Any("panic", r))
			}
		}()
		if c.holder != nil {
			release := c.holder.Hold(power.KindUpdate)
			defer release()
		}
		res, err := c.Check(ctx)
		switch {
		case err != nil:
			c.log.Warn("update check failed", logx.Err(err))
		case res.Available:
			c.log.Info("update available", logx.String("current", res.Current), logx.String("latest", res.Latest), logx.String("url", res.URL))
		default:
			c.log.Debug("no update available", logx.String("current", res.Current))
		}
	}()
	return true
}

// Wait blocks until any in-flight check finishes or ctx is done.
func (c *Checker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Check fetches the manifest and compares versions synchronously.
func (c *Checker) Check(ctx context.Context) (Result, error) {
	res := Result{CheckedAt: time.Now(), Current: c.cfg.CurrentVersion}
	if !c.Enabled() {
		return res, ErrDisabled
	}
	m, err := c.fetch(ctx)
	if err != nil {
		res.Err = err.Error()
		c.last.Store(&res)
		return res, err
	}
	res.Latest = m.Version
	res.URL = m.URL
	res.Available = Newer(m.Version, c.cfg.CurrentVersion)
	c.last.Store(&res)
	return res, nil
}

// Last returns the most recent check result.
func (c *Checker) Last() (Result, bool) {
	p := c.last.Load()
	if p == nil {
		return Result{}, false
	}
	return *p, true
}

// Counts returns how many checks were started and how many were skipped
// because one was already running.
func (c *Checker) Counts() (started, skipped uint64) {
	return c.started.Load(), c.skipped.Load()
}

func (c *Checker) fetch(ctx context.Context) (Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ManifestURL, nil)
	if err != nil {
		return Manifest{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Manifest{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Manifest{}, fmt.Errorf("manifest returned HTTP %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if canonical(m.Version) == "" {
		return Manifest{}, fmt.Errorf("manifest version %q is not semver", m.Version)
	}
	return m, nil
}

// Newer reports whether latest is a higher semantic version than current.
// An unparseable current version (e.g. "dev") is never updated.
func Newer(latest, current string) bool {
	l, c := canonical(latest), canonical(current)
	if l == "" || c == "" {
		return false
	}
	return semver.Compare(l, c) > 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}
