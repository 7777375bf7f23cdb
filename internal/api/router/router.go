package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/cardio-intake/internal/compliance"
	httpmiddleware "github.com/wolfman30/cardio-intake/internal/http/middleware"
	"github.com/wolfman30/cardio-intake/internal/intake"
	"github.com/wolfman30/cardio-intake/pkg/logging"
)

// AuditSummarizer counts audit events for the ops summary.
type AuditSummarizer interface {
	CountByType(ctx context.Context, since time.Time) (map[compliance.AuditEventType]int, error)
}

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	IntakeHandler      *intake.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Ops endpoints are mounted only when both are set
	Audit    AuditSummarizer
	OpsToken string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json"))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	if cfg.IntakeHandler != nil {
		r.Mount("/intake/sessions", cfg.IntakeHandler.Routes())
	}

	if cfg.Audit != nil && cfg.OpsToken != "" {
		r.Route("/ops", func(ops chi.Router) {
			ops.Use(requireOpsToken(cfg.OpsToken))
			ops.Get("/audit-summary", auditSummary(cfg.Audit, cfg.Logger))
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type auditSummaryResponse struct {
	Since  time.Time                         `json:"since"`
	Counts map[compliance.AuditEventType]int `json:"counts"`
}

// auditSummary reports event counts over a window, e.g. ?since=24h.
func auditSummary(audit AuditSummarizer, logger *logging.Logger) http.HandlerFunc {
	if logger == nil {
		logger = logging.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		window := 24 * time.Hour
		if raw := r.URL.Query().Get("since"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil || d <= 0 {
				http.Error(w, `{"error":"since must be a positive duration"}`, http.StatusBadRequest)
				return
			}
			window = d
		}
		since := time.Now().UTC().Add(-window)

		counts, err := audit.CountByType(r.Context(), since)
		if err != nil {
			logger.Error("ops: audit summary failed", "error", err)
			http.Error(w, `{"error":"audit summary unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(auditSummaryResponse{Since: since, Counts: counts})
	}
}
