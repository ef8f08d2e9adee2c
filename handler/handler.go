package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"widget-preview/internal/diagnostics"
	"widget-preview/internal/domain"
	"widget-preview/internal/probe"
	"widget-preview/internal/storage"
	"widget-preview/internal/usecase"
	"widget-preview/internal/widget"
)

const (
	correlationHeader = "X-Correlation-Id"
	outcomeRoute      = "preview-outcome"
)

type Composer interface {
	Compose(ctx context.Context, in usecase.ComposeInput) (usecase.ComposeOutput, error)
	SeedExample(ctx context.Context) (usecase.ComposeOutput, error)
}

type Manager interface {
	Overview(ctx context.Context) (usecase.Overview, error)
	Client(ctx context.Context, id string) (domain.Client, error)
	ClientScripts(ctx context.Context, clientID string) ([]usecase.ScriptSummary, error)
	Scripts(ctx context.Context) ([]usecase.ScriptSummary, error)
	Script(ctx context.Context, id string) (usecase.ScriptSummary, error)
	UpdateClient(ctx context.Context, id string, patch domain.ClientPatch) (domain.Client, error)
	UpdateScript(ctx context.Context, id string, patch domain.ScriptPatch) (usecase.ScriptSummary, error)
	DeleteClient(ctx context.Context, id string, confirmed bool) (usecase.DeleteReport, error)
	DeleteScript(ctx context.Context, id string) error
}

type Previewer interface {
	Resolve(ctx context.Context, ref string) (usecase.Preview, error)
	Policy() widget.Policy
	ProbeEnabled() bool
	Probe(ctx context.Context, scriptID string) (probe.Report, error)
	NewConversation(ctx context.Context, scriptID, current string) (usecase.NewConversationOutput, error)
	History(ctx context.Context, scriptID string) ([]domain.ConversationEntry, error)
	DeleteConversation(ctx context.Context, scriptID, entryID string) error
}

type StorageStatus interface {
	Status() storage.Status
	Ping(ctx context.Context) error
}

type SubdomainResolver interface {
	Resolve(host string) (string, bool)
}

type DiagnosticLog interface {
	Entries(limit int) []diagnostics.Entry
}

type Metrics interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
	PreviewOutcome(source, outcome string)
	Handler() http.Handler
}

// Deps are the collaborators of Handler. Diagnostics and Metrics are
// optional.
type Deps struct {
	Composer    Composer
	Manager     Manager
	Previewer   Previewer
	Storage     StorageStatus
	Subdomains  SubdomainResolver
	Diagnostics DiagnosticLog
	Metrics     Metrics
	// Missing lists configuration variables the remote backend still needs.
	Missing []string
	Logger  *slog.Logger
}

type Handler struct {
	composer    Composer
	manager     Manager
	previewer   Previewer
	storage     StorageStatus
	subdomains  SubdomainResolver
	diagnostics DiagnosticLog
	metrics     Metrics
	missing     []string
	logger      *slog.Logger

	entry http.Handler
}

func NewHandler(d Deps) (*Handler, error) {
	if d.Composer == nil {
		return nil, errors.New("handler: composer must not be nil")
	}
	if d.Manager == nil {
		return nil, errors.New("handler: manager must not be nil")
	}
	if d.Previewer == nil {
		return nil, errors.New("handler: previewer must not be nil")
	}
	if d.Storage == nil {
		return nil, errors.New("handler: storage status must not be nil")
	}
	if d.Subdomains == nil {
		return nil, errors.New("handler: subdomain resolver must not be nil")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		composer:    d.Composer,
		manager:     d.Manager,
		previewer:   d.Previewer,
		storage:     d.Storage,
		subdomains:  d.Subdomains,
		diagnostics: d.Diagnostics,
		metrics:     d.Metrics,
		missing:     append([]string{}, d.Missing...),
		logger:      logger,
	}
	h.entry = h.correlation(h.routes())
	return h, nil
}

func (h *Handler) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.observe)
	r.NotFoundHandler = http.HandlerFunc(h.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.methodNotAllowed)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.sameOrigin)
	api.HandleFunc("/slug", h.deriveSlug).Methods(http.MethodGet)
	api.HandleFunc("/compose", h.compose).Methods(http.MethodPost)
	api.HandleFunc("/setup/example", h.seedExample).Methods(http.MethodPost)
	api.HandleFunc("/clients", h.listClients).Methods(http.MethodGet)
	api.HandleFunc("/clients/{id}", h.getClient).Methods(http.MethodGet)
	api.HandleFunc("/clients/{id}", h.updateClient).Methods(http.MethodPatch)
	api.HandleFunc("/clients/{id}", h.deleteClient).Methods(http.MethodDelete)
	api.HandleFunc("/clients/{id}/scripts", h.clientScripts).Methods(http.MethodGet)
	api.HandleFunc("/scripts", h.listScripts).Methods(http.MethodGet)
	api.HandleFunc("/scripts/{id}", h.getScript).Methods(http.MethodGet)
	api.HandleFunc("/scripts/{id}", h.updateScript).Methods(http.MethodPatch)
	api.HandleFunc("/scripts/{id}", h.deleteScript).Methods(http.MethodDelete)
	if h.previewer.ProbeEnabled() {
		api.HandleFunc("/scripts/{id}/probe", h.probeScript).Methods(http.MethodPost)
	}
	api.HandleFunc("/previews/{id}/conversations", h.newConversation).Methods(http.MethodPost)
	api.HandleFunc("/previews/{id}/conversations", h.conversationHistory).Methods(http.MethodGet)
	api.HandleFunc("/previews/{id}/conversations/{entryId}", h.deleteConversation).Methods(http.MethodDelete)
	api.HandleFunc("/previews/{id}/outcome", h.previewOutcome).Methods(http.MethodPost).Name(outcomeRoute)
	api.HandleFunc("/status", h.status).Methods(http.MethodGet)
	api.HandleFunc("/diagnostics", h.recentDiagnostics).Methods(http.MethodGet)
	api.NotFoundHandler = http.HandlerFunc(h.notFound)

	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/", h.root).Methods(http.MethodGet)
	r.HandleFunc("/clients", h.managerPage).Methods(http.MethodGet)
	r.HandleFunc("/setup", h.setupPage).Methods(http.MethodGet)
	r.HandleFunc("/preview/{id}", h.previewPage).Methods(http.MethodGet)
	r.HandleFunc("/preview/{id}/frame", h.previewFrame).Methods(http.MethodGet)
	r.HandleFunc("/{slug}", h.slugPage).Methods(http.MethodGet)
	return r
}

// ServeHTTP serves the whole surface. It is the entry point in HTTP mode.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.entry.ServeHTTP(w, r)
}

type correlationKey struct{}

func correlationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// correlation reuses the caller's X-Correlation-Id or generates one.
func (h *Handler) correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(correlationHeader))
		if id == "" {
			id = newUUID()
		}
		w.Header().Set(correlationHeader, id)
		ctx := context.WithValue(r.Context(), correlationKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sameOrigin rejects state-changing API calls sent by another origin,
// including the opaque origin of the sandboxed widget frame. The frame may
// only report its outcome.
func (h *Handler) sameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if cur := mux.CurrentRoute(r); cur != nil && cur.GetName() == outcomeRoute {
			next.ServeHTTP(w, r)
			return
		}
		if origin := r.Header.Get("Origin"); origin != "" && !sameHost(origin, r.Host) {
			h.writeError(w, r, &usecase.Error{Code: usecase.ErrorForbidden, Reason: usecase.ReasonCrossOrigin})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		elapsed := time.Since(started)
		if h.metrics != nil {
			h.metrics.ObserveRequest(route, r.Method, rec.status, elapsed)
		}
		h.logger.Debug("request served",
			"method", r.Method,
			"route", route,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
			"correlation_id", correlationID(r.Context()),
		)
	})
}

var newUUID = func() string {
	return uuid.NewString()
}
