package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/abbayes/internal/adapters/repository"
	service "github.com/okian/abbayes/internal/app"
	"github.com/okian/abbayes/internal/domain/model"
	"github.com/okian/abbayes/internal/domain/utility"
	"github.com/okian/abbayes/pkg/logger"
)

// analysisRequest is the body of POST /v1/analyses. Prior and payoffs fall
// back to the server configuration when omitted.
type analysisRequest struct {
	Model   string           `json:"model"`
	Records []model.Record   `json:"records"`
	Prior   *model.PriorSpec `json:"prior,omitempty"`
	Payoffs map[int]float64  `json:"payoffs,omitempty"`
}

func (r analysisRequest) toService() (service.Request, error) {
	m, err := model.ModelByName(r.Model)
	if err != nil {
		return service.Request{}, err
	}
	if len(r.Records) == 0 {
		return service.Request{}, fmt.Errorf("%w: no records", ErrBadRequest)
	}
	return service.Request{
		Model:   m,
		Records: r.Records,
		Prior:   r.Prior,
		Rules:   utility.Rules(r.Payoffs),
	}, nil
}

// decodeError classifies a body decoding failure. Badly typed records are
// schema errors like in file sources; everything else is a bad request.
func decodeError(err error) error {
	var (
		tooLarge *http.MaxBytesError
		typeErr  *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &tooLarge):
		return fmt.Errorf("%w: limit %d bytes", ErrTooLarge, tooLarge.Limit)
	case errors.Is(err, model.ErrSchema):
		return err
	case errors.As(err, &typeErr) && (typeErr.Field == "records" || strings.HasPrefix(typeErr.Field, "records.")):
		return fmt.Errorf("%w: %w", model.ErrSchema, err)
	}
	return fmt.Errorf("%w: %w", ErrBadRequest, err)
}

// AnalysesHandler runs and serves analyses.
type AnalysesHandler struct {
	deps         Dependencies
	maxBodyBytes int64
	maxLimit     int
	logger       logger.Logger
}

// NewAnalysesHandler creates a new analyses handler.
func NewAnalysesHandler(deps Dependencies, maxBodyBytes int64, maxLimit int, l logger.Logger) *AnalysesHandler {
	return &AnalysesHandler{deps: deps, maxBodyBytes: maxBodyBytes, maxLimit: maxLimit, logger: l}
}

// HandleAnalyses handles POST /v1/analyses and GET /v1/analyses?limit=N.
func (h *AnalysesHandler) HandleAnalyses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleRun(w, r)
	case http.MethodGet:
		h.handleList(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
	}
}

func (h *AnalysesHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	var body analysisRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		h.fail(w, r, decodeError(err))
		return
	}
	req, err := body.toService()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	a, err := h.deps.Run(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/analyses/"+a.ID)
	writeJSON(w, http.StatusCreated, a)
}

func (h *AnalysesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := h.maxLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.fail(w, r, fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest))
			return
		}
		if n > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded",
				fmt.Errorf("%w: limit %d exceeds %d", ErrBadRequest, n, h.maxLimit))
			return
		}
		limit = n
	}
	entries, err := h.deps.List(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []repository.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleGetAnalysis handles GET /v1/analyses/{id}.
func (h *AnalysesHandler) HandleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/analyses/")
	if id == "" || strings.Contains(id, "/") {
		h.fail(w, r, fmt.Errorf("%w: missing analysis id", ErrBadRequest))
		return
	}
	a, err := h.deps.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *AnalysesHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.Error(err),
		)
	}
	writeError(w, status, code, err)
}
