package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// ErrEmptyText is returned by Submit when there is nothing to extract from.
var ErrEmptyText = errors.New("text is empty")

// SubmitRequest is a text to turn into a graph.
type SubmitRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// SubmitResult is the outcome of submitting a text for extraction.
type SubmitResult struct {
	ID      string `json:"id"`
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`
}

// Service is the business boundary for extraction operations.
type Service struct {
	store    Store
	pipeline *Pipeline
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier
}

// NewService creates a new extraction service. metrics and notifier may be nil.
func NewService(store Store, pipeline *Pipeline, logger log.Logger, metrics *Metrics, notifier Notifier) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		pipeline: pipeline,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
	}
}

// Submit accepts a text for extraction, handling dedup and lifecycle. The
// extraction itself runs in the background; poll Get with the returned ID.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		s.countSubmit("rejected")
		return nil, ErrEmptyText
	}
	language := NormalizeLanguage(req.Language)
	fp := Fingerprint(req.Text, language)

	// dedup: the same text in the same language is already being worked on
	if existing, ok, err := s.store.GetByFingerprint(ctx, fp); err != nil {
		return nil, err
	} else if ok && (existing.Status == StatusPending || existing.Status == StatusInProgress) {
		s.countSubmit("duplicate")
		return &SubmitResult{ID: existing.ID, Skipped: true, Reason: "duplicate"}, nil
	}

	id := ulid.Make().String()
	result := &Result{
		ID:          id,
		Fingerprint: fp,
		Status:      StatusPending,
		Language:    language,
		Text:        req.Text,
		CreatedAt:   time.Now(),
	}

	if err := s.store.Put(ctx, result); err != nil {
		return nil, err
	}
	s.countSubmit("accepted")

	// pass only the ID to avoid sharing the Result pointer with the goroutine.
	go s.runExtraction(context.WithoutCancel(ctx), id)

	return &SubmitResult{ID: id}, nil
}

// Get retrieves an extraction result by ID.
func (s *Service) Get(ctx context.Context, id string) (*Result, bool, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) runExtraction(ctx context.Context, id string) {
	L := s.logger.With("extraction_id", id)

	result, ok, err := s.store.Get(ctx, id)
	if err != nil || !ok {
		L.Error(ctx, err, "failed to fetch result for extraction")
		return
	}

	result.Status = StatusInProgress
	if err := s.store.Put(ctx, result); err != nil {
		L.Error(ctx, err, "failed to update status to in_progress")
		return
	}

	start := time.Now()
	graph, runErr := s.pipeline.WithLogger(L).Run(ctx, result.Text, result.Language)

	result.Graph = graph
	result.Model = graph.Stats.Model
	result.Status = StatusComplete
	if runErr != nil {
		result.Status = StatusFailed
		result.Error = runErr.Error()
		L.Error(ctx, runErr, "extraction failed, keeping partial graph", "cancelled", IsCancellation(runErr))
	}
	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(start).Seconds()

	if err := s.store.Put(ctx, result); err != nil {
		L.Error(ctx, err, "failed to persist extraction result")
	}

	L.Info(ctx, "extraction complete",
		"status", result.Status,
		"duration", result.Duration,
		"entities", len(graph.Entities),
		"triplets", len(graph.Triplets),
		"model_calls", graph.Stats.ModelCalls,
	)

	if s.notifier != nil {
		if err := s.notifier.Send(ctx, result); err != nil {
			L.Error(ctx, err, "failed to send extraction notification")
		}
	}
}

func (s *Service) countSubmit(outcome string) {
	if s.metrics != nil {
		s.metrics.SubmitsTotal.WithLabelValues(outcome).Inc()
	}
}

// Fingerprint identifies a text+language pair for deduplication.
func Fingerprint(text, language string) string {
	h := sha256.New()
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
