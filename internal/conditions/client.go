package conditions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"spotcheck/internal/storage"
	logx "spotcheck/pkg/logx"
)

const (
	DefaultBaseURL = "https://spotcheck.brianteam.dev/"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 64 << 10
)

// Config configures the API client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to the conditions API.
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
	log       logx.Logger
	now       func() time.Time
}

func NewClient(cfg Config, log logx.Logger) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", raw)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "spotcheck"
	}
	return &Client{
		base:      base,
		http:      &http.Client{Timeout: timeout},
		userAgent: ua,
		log:       log,
		now:       time.Now,
	}, nil
}

// HTTPClient exposes the underlying client so other API consumers (chart
// downloads, update checks) share timeouts and connection reuse.
func (c *Client) HTTPClient() *http.Client { return c.http }

// RequestURL builds <base>/<endpoint>?lat=..&lon=..&spot_id=.. for spot.
func (c *Client) RequestURL(endpoint string, spot storage.Spot) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(endpoint, "/")
	q := u.Query()
	q.Set("lat", spot.Lat)
	q.Set("lon", spot.Lon)
	q.Set("spot_id", spot.UID)
	u.RawQuery = q.Encode()
	return u.String()
}

// Get performs one GET against endpoint for spot and returns the body.
// Any failure before a non-empty 2xx body is read is ErrTransport.
func (c *Client) Get(ctx context.Context, endpoint string, spot storage.Spot, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RequestURL(endpoint, spot), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrTransport, endpoint, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: %s returned an empty body", ErrTransport, endpoint)
	}
	return body, nil
}

// Fetch retrieves and parses the current conditions for spot.
func (c *Client) Fetch(ctx context.Context, spot storage.Spot) (Snapshot, error) {
	body, err := c.Get(ctx, "conditions", spot, maxBodyBytes)
	if err != nil {
		return Snapshot{}, err
	}
	if c.log.Enabled(logx.LevelTrace) {
		c.log.Trace("conditions response", logx.String("body", string(body)))
	}
	return Parse(body, c.now(), c.log)
}
