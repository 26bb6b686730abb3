// Package extractapi exposes the extraction service over HTTP.
package extractapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/openie/internal/extract"
)

// ExtractionService defines the business operations extractapi needs.
type ExtractionService interface {
	Submit(ctx context.Context, req *extract.SubmitRequest) (*extract.SubmitResult, error)
	Get(ctx context.Context, id string) (*extract.Result, bool, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    ExtractionService
}

// New creates a new API handler.
func New(logger log.Logger, svc ExtractionService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("extraction service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/extractions", a.handleSubmit)
		r.Get("/extractions/{id}", a.handleGetExtraction)
		r.Get("/extractions/{id}/graph", a.handleGetGraph)
	})
}

func (a *API) handleGetExtraction(w http.ResponseWriter, r *http.Request) {
	result, ok := a.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetGraph returns only the entities and triplets, in the same shape
// the CLI prints.
func (a *API) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	result, ok := a.lookup(w, r)
	if !ok {
		return
	}
	if result.Graph == nil {
		writeError(w, http.StatusConflict, "graph not ready")
		return
	}
	writeJSON(w, http.StatusOK, result.Graph)
}

// lookup loads the extraction named by the {id} route param, writing the
// error response itself when it cannot.
func (a *API) lookup(w http.ResponseWriter, r *http.Request) (*extract.Result, bool) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("openie.extraction.id", id))

	result, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get extraction", "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}

	span.SetAttributes(attribute.String("openie.extraction.status", string(result.Status)))
	return result, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// headers are already sent, nothing useful to do with an encode error
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
