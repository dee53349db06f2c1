package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sydlexius/playbill/internal/api/middleware"
	"github.com/sydlexius/playbill/internal/backup"
	"github.com/sydlexius/playbill/internal/editcache"
	"github.com/sydlexius/playbill/internal/maintenance"
	"github.com/sydlexius/playbill/internal/reconcile"
	"github.com/sydlexius/playbill/internal/runlog"
	"github.com/sydlexius/playbill/internal/runner"
	"github.com/sydlexius/playbill/internal/translation"
)

// ItemProcessor is the slice of the reconciler the API needs.
type ItemProcessor interface {
	ProcessItem(ctx context.Context, itemID string, forceRefresh bool) (*reconcile.Result, error)
	CastForEditing(ctx context.Context, itemID string) (*reconcile.EditCast, error)
	ApplyManualCast(ctx context.Context, itemID, itemName, itemType string, cast []reconcile.CastMember) error
	TranslateTexts(ctx context.Context, texts []string, title string, year int) (map[string]string, error)
}

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	Processor    ItemProcessor
	Runner       *runner.Service
	EditSessions *editcache.Cache
	Translations *translation.Cache
	Logs         *runlog.Store
	Backups      *backup.Service
	Maintenance  *maintenance.Service
	Logger       *slog.Logger
	BasePath     string
	APIToken     string
}

// Router sets up all HTTP routes for the application.
type Router struct {
	processor    ItemProcessor
	runner       *runner.Service
	editSessions *editcache.Cache
	translations *translation.Cache
	logs         *runlog.Store
	backups      *backup.Service
	maintenance  *maintenance.Service
	logger       *slog.Logger
	basePath     string
	apiToken     string
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		processor:    deps.Processor,
		runner:       deps.Runner,
		editSessions: deps.EditSessions,
		translations: deps.Translations,
		logs:         deps.Logs,
		backups:      deps.Backups,
		maintenance:  deps.Maintenance,
		logger:       deps.Logger,
		basePath:     deps.BasePath,
		apiToken:     deps.APIToken,
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	authMw := middleware.Auth(r.apiToken)
	mux := http.NewServeMux()
	bp := r.basePath

	// Public routes (no auth)
	mux.HandleFunc("GET "+bp+"/api/v1/health", r.handleHealth)

	// Run routes
	mux.HandleFunc("POST "+bp+"/api/v1/run", wrapAuth(r.handleRunStart, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/run/stop", wrapAuth(r.handleRunStop, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/run/status", wrapAuth(r.handleRunStatus, authMw))

	// Item routes
	mux.HandleFunc("POST "+bp+"/api/v1/items/{id}/process", wrapAuth(r.handleProcessItem, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/items/{id}/edit", wrapAuth(r.handleEditOpen, authMw))

	// Review routes
	mux.HandleFunc("GET "+bp+"/api/v1/review", wrapAuth(r.handleReviewList, authMw))
	mux.HandleFunc("DELETE "+bp+"/api/v1/review/{id}", wrapAuth(r.handleReviewRemove, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/processed/clear", wrapAuth(r.handleClearProcessed, authMw))

	// Edit session routes
	mux.HandleFunc("GET "+bp+"/api/v1/edit/{token}", wrapAuth(r.handleEditGet, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/edit/{token}/apply", wrapAuth(r.handleEditApply, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/edit/{token}/translate", wrapAuth(r.handleEditTranslate, authMw))

	// Translation cache routes
	mux.HandleFunc("GET "+bp+"/api/v1/translations", wrapAuth(r.handleTranslationLookup, authMw))
	mux.HandleFunc("PUT "+bp+"/api/v1/translations", wrapAuth(r.handleTranslationCorrect, authMw))
	mux.HandleFunc("DELETE "+bp+"/api/v1/translations", wrapAuth(r.handleTranslationDelete, authMw))

	// Backup and maintenance routes
	mux.HandleFunc("POST "+bp+"/api/v1/backup", wrapAuth(r.handleBackupCreate, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/backups", wrapAuth(r.handleBackupList, authMw))
	mux.HandleFunc("DELETE "+bp+"/api/v1/backups/{filename}", wrapAuth(r.handleBackupDelete, authMw))
	mux.HandleFunc("GET "+bp+"/api/v1/maintenance/status", wrapAuth(r.handleMaintenanceStatus, authMw))
	mux.HandleFunc("POST "+bp+"/api/v1/maintenance/optimize", wrapAuth(r.handleMaintenanceOptimize, authMw))

	// Apply logging and security headers to all requests
	return middleware.Logging(r.logger)(middleware.SecurityHeaders(mux))
}

// wrapAuth wraps a handler function with auth middleware.
func wrapAuth(fn http.HandlerFunc, authMw func(http.Handler) http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authMw(fn).ServeHTTP(w, r)
	}
}
