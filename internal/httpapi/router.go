package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"spotcheck/internal/conditions"
	"spotcheck/internal/dispatch"
	"spotcheck/internal/event"
	"spotcheck/internal/power"
	"spotcheck/internal/schedule"
	"spotcheck/internal/storage"
	"spotcheck/internal/update"
	logx "spotcheck/pkg/logx"
)

const (
	healthBody      = "Surviving not thriving"
	maxConfigureLen = 300
)

// Kinds posted when the spot changes: everything that depends on it.
var spotChangedSet = event.SetOf(event.Label, event.Conditions, event.TideChart, event.SwellChart)

// Kinds posted by a manual refresh.
var refreshSet = event.SetOf(event.Time, event.Label, event.Conditions, event.TideChart, event.SwellChart)

// Poster accepts external triggers (event.Channel).
type Poster interface {
	PostSet(s event.Set)
}

// Deps are the read and write hooks the API needs. Only Store, Current and
// Events are required; nil status hooks are omitted from /status.
type Deps struct {
	Store   storage.Store
	Current *storage.Current
	Events  Poster
	// SpotChanged runs after a spot is stored or cleared (clock offset etc).
	SpotChanged func(storage.Spot)

	Rules      func(now time.Time) []schedule.RuleInfo
	Power      func() power.State
	LastCycle  func() (dispatch.CycleInfo, bool)
	Conditions func() conditions.Snapshot
	Update     func() (update.Result, bool)
	Metrics    http.Handler
	Version    string
	Now        func() time.Time
}

type api struct {
	cfg     Config
	deps    Deps
	log     logx.Logger
	limiter *rate.Limiter
}

// Handler builds the router without starting a listener.
func Handler(cfg Config, deps Deps, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return newRouter(cfg, deps, log)
}

func newRouter(cfg Config, deps Deps, log logx.Logger) http.Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	a := &api{cfg: cfg, deps: deps, log: log}
	if cfg.RefreshPerMinute > 0 {
		a.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RefreshPerMinute)), cfg.RefreshPerMinute)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLog)
	r.Use(middleware.Recoverer)

	r.Get("/health", a.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(a.withAuth)
		r.Post("/configure", a.handleConfigure)
		r.Get("/current_configuration", a.handleCurrentConfiguration)
		r.Post("/clear_config", a.handleClearConfig)
		r.Post("/refresh", a.handleRefresh)
		r.Get("/status", a.handleStatus)
		if deps.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", deps.Metrics)
		}
		if cfg.Pprof {
			r.HandleFunc("/debug/pprof/", hpprof.Index)
			r.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
			r.HandleFunc("/debug/pprof/profile", hpprof.Profile)
			r.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
			r.HandleFunc("/debug/pprof/trace", hpprof.Trace)
			r.HandleFunc("/debug/pprof/{name}", hpprof.Index)
		}
	})
	return r
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(healthBody))
}

func (a *api) handleConfigure(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxConfigureLen+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not read body", err)
		return
	}
	if len(body) > maxConfigureLen {
		respondError(w, http.StatusRequestEntityTooLarge, "configuration payload too large", nil)
		return
	}
	spot, err := storage.DecodeSpot(body, a.log)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid configuration", err)
		return
	}
	if err := a.deps.Store.PutSpot(r.Context(), spot); err != nil {
		a.log.Error("store spot failed", logx.Err(err))
		respondError(w, http.StatusInternalServerError, "could not save configuration", err)
		return
	}
	a.applySpot(spot)
	a.log.Info("spot configured", logx.String("spot", spot.Name), logx.String("uid", spot.UID), logx.Int("utc_offset", spot.UTCOffset))
	respondJSON(w, http.StatusOK, spot)
}

func (a *api) handleCurrentConfiguration(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.deps.Current.Spot())
}

func (a *api) handleClearConfig(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if a.cfg.ClearKey == "" {
		respondError(w, http.StatusForbidden, "clear_config is disabled", nil)
		return
	}
	if key != a.cfg.ClearKey {
		respondError(w, http.StatusBadRequest, "missing or invalid key", nil)
		return
	}
	if err := a.deps.Store.ClearSpot(r.Context()); err != nil {
		a.log.Error("clear spot failed", logx.Err(err))
		respondError(w, http.StatusInternalServerError, "could not clear configuration", err)
		return
	}
	def := storage.DefaultSpot()
	a.applySpot(def)
	a.log.Info("spot configuration cleared")
	respondJSON(w, http.StatusOK, def)
}

func (a *api) applySpot(s storage.Spot) {
	a.deps.Current.Set(s)
	if a.deps.SpotChanged != nil {
		a.deps.SpotChanged(s)
	}
	a.deps.Events.PostSet(spotChangedSet)
}

func (a *api) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if a.limiter != nil && !a.limiter.Allow() {
		w.Header().Set("Retry-After", "60")
		respondError(w, http.StatusTooManyRequests, "refresh rate limit exceeded", nil)
		return
	}
	a.deps.Events.PostSet(refreshSet)
	respondJSON(w, http.StatusAccepted, map[string]string{"queued": refreshSet.String()})
}

type statusResponse struct {
	Version    string               `json:"version,omitempty"`
	Now        time.Time            `json:"now"`
	Spot       storage.Spot         `json:"spot"`
	Rules      []schedule.RuleInfo  `json:"rules,omitempty"`
	Power      *power.State         `json:"power,omitempty"`
	LastCycle  *dispatch.CycleInfo  `json:"last_cycle,omitempty"`
	Conditions *conditions.Snapshot `json:"conditions,omitempty"`
	Update     *update.Result       `json:"update,omitempty"`
}

func (a *api) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := a.deps.Now()
	resp := statusResponse{Version: a.deps.Version, Now: now, Spot: a.deps.Current.Spot()}
	if a.deps.Rules != nil {
		resp.Rules = a.deps.Rules(now)
	}
	if a.deps.Power != nil {
		st := a.deps.Power()
		resp.Power = &st
	}
	if a.deps.LastCycle != nil {
		if c, ok := a.deps.LastCycle(); ok {
			resp.LastCycle = &c
		}
	}
	if a.deps.Conditions != nil {
		if snap := a.deps.Conditions(); !snap.IsZero() {
			resp.Conditions = &snap
		}
	}
	if a.deps.Update != nil {
		if res, ok := a.deps.Update(); ok {
			resp.Update = &res
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (a *api) withAuth(next http.Handler) http.Handler {
	tok := strings.TrimSpace(a.cfg.Token)
	if tok == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Accept either:
		//   Authorization: Bearer <token>
		// or query param: ?token=<token>
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
			return
		}
		if ah := r.Header.Get("Authorization"); ah != "" {
			const p = "Bearer "
			if strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				next.ServeHTTP(w, r)
				return
			}
		}
		unauthorized(w)
	})
}

func (a *api) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("req_id", middleware.GetReqID(r.Context())),
		)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	respondError(w, http.StatusUnauthorized, "unauthorized", nil)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	resp := map[string]string{"error": message}
	if err != nil && !errors.Is(err, context.Canceled) {
		resp["details"] = err.Error()
	}
	respondJSON(w, status, resp)
}
