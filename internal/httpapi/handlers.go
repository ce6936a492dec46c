package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"sameieportalen.no/internal/admin"
	"sameieportalen.no/internal/approval"
	"sameieportalen.no/internal/audit"
	"sameieportalen.no/internal/auth"
	"sameieportalen.no/internal/obs"
)

const (
	serviceName  = "sameieportalen"
	maxBodyBytes = 64 << 10
)

// Checker reports whether dependencies are usable.
type Checker interface {
	Check(ctx context.Context) error
}

// ReadyCheck pings the configured backends. Nil backends are skipped.
type ReadyCheck struct {
	DB    *sql.DB
	Redis *redis.Client
}

func (rp ReadyCheck) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Engine     *auth.Engine
	Sessions   *auth.Sessions
	Approvals  *approval.Service
	Admin      *admin.Service
	Ready      Checker
	Version    string
	RateBurst  int
	RatePerSec int
}

// API is the HTTP layer.
type API struct {
	router    *mux.Router
	engine    *auth.Engine
	sessions  *auth.Sessions
	approvals *approval.Service
	admin     *admin.Service
	ready     Checker
	version   string
}

func New(d Deps) *API {
	if d.Ready == nil {
		d.Ready = ReadyCheck{}
	}
	if d.RateBurst <= 0 {
		d.RateBurst = 20
	}
	if d.RatePerSec <= 0 {
		d.RatePerSec = 10
	}
	a := &API{
		router:    mux.NewRouter(),
		engine:    d.Engine,
		sessions:  d.Sessions,
		approvals: d.Approvals,
		admin:     d.Admin,
		ready:     d.Ready,
		version:   d.Version,
	}

	a.router.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	a.router.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	a.router.HandleFunc("/v1/info", a.Info).Methods(http.MethodGet)
	a.router.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	callback := RateLimit(http.HandlerFunc(a.ApprovalCallback), d.RateBurst, d.RatePerSec)
	a.router.Handle("/", callback).Methods(http.MethodGet)
	a.router.Handle("/approval", callback).Methods(http.MethodGet)

	v1 := a.router.PathPrefix("/v1").Subrouter()
	v1.Use(a.withAuth)
	v1.HandleFunc("/me", a.Me).Methods(http.MethodGet)
	v1.HandleFunc("/permissions/{name}", a.CheckPermission).Methods(http.MethodGet)
	v1.HandleFunc("/documents/{id}/approvals", a.SendForApproval).Methods(http.MethodPost)
	v1.HandleFunc("/approvals/{batchId}", a.ApprovalStatus).Methods(http.MethodGet)
	if a.admin != nil {
		v1.HandleFunc("/meetings/{id}", a.SaveMeeting).Methods(http.MethodPut)
		v1.HandleFunc("/admin/roster", a.AddMember).Methods(http.MethodPost)
		v1.HandleFunc("/admin/admins", a.SetAdmins).Methods(http.MethodPut)
	}

	a.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "not found")
	})
	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = MaxBodyBytes(h, maxBodyBytes)
	h = obs.Instrument(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		obs.Component("http").WithError(err).Warn("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"error":      msg,
		"request_id": audit.RequestIDFromContext(r.Context()),
	})
}
