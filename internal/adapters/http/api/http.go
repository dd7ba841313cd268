// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/abbayes/internal/adapters/repository"
	service "github.com/okian/abbayes/internal/app"
	"github.com/okian/abbayes/internal/domain/model"
	"github.com/okian/abbayes/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	// Run executes one analysis synchronously.
	Run(ctx context.Context, req service.Request) (*model.Analysis, error)

	// Read operations expose stored analyses.
	Get(ctx context.Context, id string) (*model.Analysis, error)
	List(ctx context.Context, limit int) ([]repository.Entry, error)

	StatsProvider
}

// Server wires HTTP routes for the analysis API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	analysesHandler *AnalysesHandler
	logger          logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	cfg := options{
		maxBodyBytes: defaultMaxBodyBytes,
		maxLimit:     defaultMaxLimit,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(deps),
		analysesHandler: NewAnalysesHandler(deps, cfg.maxBodyBytes, cfg.maxLimit, cfg.logger),
		logger:          cfg.logger,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", MetricsHandler())
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/v1/analyses", MetricsMiddleware(s.analysesHandler.HandleAnalyses, "analyses"))
	mux.HandleFunc("/v1/analyses/", MetricsMiddleware(s.analysesHandler.HandleGetAnalysis, "analysis"))
	s.logger.Debug(ctx, "api routes registered")
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// statusFor maps pipeline errors to a status code and a stable error code.
// Input problems are the caller's to fix; a sampler failure is an upstream
// failure.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBadRequest), errors.Is(err, repository.ErrInvalidLimit):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrBusy):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, model.ErrSchema),
		errors.Is(err, model.ErrDataIntegrity),
		errors.Is(err, model.ErrConfig),
		errors.Is(err, model.ErrPayload):
		return http.StatusUnprocessableEntity, service.ErrorClass(err)
	case errors.Is(err, model.ErrSampler):
		return http.StatusBadGateway, "sampler"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "canceled"
	}
	return http.StatusInternalServerError, "internal_error"
}
