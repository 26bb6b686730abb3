package extractapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/openie/internal/extract"
)

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req extract.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.Int("openie.text_bytes", len(req.Text)),
		attribute.String("openie.language", req.Language),
	)

	sr, err := a.svc.Submit(r.Context(), &req)
	if errors.Is(err, extract.ErrEmptyText) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to submit extraction")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if sr.Skipped {
		a.logger.Info(r.Context(), "extraction skipped", "id", sr.ID, "reason", sr.Reason)
	} else {
		a.logger.Info(r.Context(), "extraction accepted", "id", sr.ID, "language", req.Language)
	}
	span.SetAttributes(attribute.String("openie.extraction.id", sr.ID))

	writeJSON(w, http.StatusAccepted, sr)
}
