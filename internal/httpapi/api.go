package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"folio.org/internal/auth"
	"folio.org/internal/obs"
	"folio.org/internal/stream"
	"folio.org/internal/workflow"
)

const serviceName = "folio-api"

// ReadyCheck is a simple readiness check (database ping).
type ReadyCheck struct {
	DB *sql.DB
}

func (rp ReadyCheck) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Options wires the API to its collaborators.
type Options struct {
	Engine      *workflow.Engine
	Hub         *stream.Hub
	Signer      *auth.Signer
	Ready       readinessChecker
	Version     string
	DevTokens   bool
	TokenTTL    time.Duration
	RateBurst   int
	RatePerSec  float64
	CORSOrigins []string
}

// API is the HTTP layer over the workflow engine.
type API struct {
	router      *httprouter.Router
	engine      *workflow.Engine
	hub         *stream.Hub
	signer      *auth.Signer
	readiness   readinessChecker
	version     string
	devTokens   bool
	tokenTTL    time.Duration
	rateBurst   int
	ratePerSec  float64
	corsOrigins []string
}

func New(opts Options) *API {
	a := &API{
		router:      httprouter.New(),
		engine:      opts.Engine,
		hub:         opts.Hub,
		signer:      opts.Signer,
		readiness:   opts.Ready,
		version:     opts.Version,
		devTokens:   opts.DevTokens,
		tokenTTL:    opts.TokenTTL,
		rateBurst:   opts.RateBurst,
		ratePerSec:  opts.RatePerSec,
		corsOrigins: opts.CORSOrigins,
	}
	if a.readiness == nil {
		a.readiness = ReadyCheck{}
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = time.Hour
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 40
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 20
	}
	a.routes()
	return a
}

func (a *API) routes() {
	r := a.router
	r.RedirectTrailingSlash = false
	r.HandleMethodNotAllowed = true
	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusNotFound, workflow.KindNotFound, "resource not found")
	})
	r.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	r.PanicHandler = func(w http.ResponseWriter, req *http.Request, v any) {
		l := obs.Component("http")
		l.Error().Interface("panic", v).Str("path", req.URL.Path).Msg("handler panicked")
		writeError(w, req, http.StatusInternalServerError, workflow.KindInternal, "internal error")
	}

	// health/ready/info
	r.HandlerFunc(http.MethodGet, "/healthz", a.Healthz)
	r.HandlerFunc(http.MethodGet, "/readyz", a.Ready)
	r.HandlerFunc(http.MethodGet, "/v1/info", a.Info)
	r.Handler(http.MethodGet, "/metrics", obs.Handler())

	if a.devTokens && a.signer != nil {
		r.HandlerFunc(http.MethodPost, "/v1/auth/token", a.handleAuthToken)
	}

	r.GET("/v1/documents", a.listDocuments)
	r.POST("/v1/documents", a.registerDocument)
	r.GET("/v1/documents/:id", a.getDocument)
	r.GET("/v1/documents/:id/history", a.getHistory)
	r.GET("/v1/documents/:id/verify", a.verifyDocument)
	r.POST("/v1/documents/:id/transitions", a.requestTransition)
	r.GET("/v1/documents/:id/revisions", a.listRevisions)
	r.POST("/v1/documents/:id/revisions", a.fileRevision)
	r.GET("/v1/documents/:id/notes", a.listNotes)
	r.POST("/v1/documents/:id/notes", a.addNote)
	r.POST("/v1/revisions/:id/start", a.startRevision)
	r.POST("/v1/notes/:id/resolve", a.resolveNote)
	r.GET("/v1/stats", a.stats)
	r.HandlerFunc(http.MethodGet, "/v1/events", a.Stream)
}

// Handler returns the full middleware chain around the router.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h, a.corsOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readiness.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     serviceName,
		"time":     time.Now().UTC().Format(time.RFC3339),
		"version":  a.version,
		"statuses": workflow.Statuses,
	})
}
