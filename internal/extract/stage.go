package extract

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

var tracer = otel.Tracer("github.com/linnemanlabs/openie/internal/extract")

// Stage names one model-interaction step of the pipeline.
type Stage string

const (
	StageEntityExtraction     Stage = "entity_extraction"
	StagePhraseSelection      Stage = "phrase_selection"
	StageMentionRecognition   Stage = "mention_recognition"
	StageRelationExtraction   Stage = "relation_extraction"
	StagePredicateDescription Stage = "predicate_description"
)

// DropReason tells why decoded answer lines were discarded.
type DropReason string

const (
	// DropMalformed is a line that does not fit the stage grammar.
	DropMalformed DropReason = "malformed"
	// DropInconsistent is a well-formed line citing an unknown id or a
	// label too far from the canonical one.
	DropInconsistent DropReason = "inconsistent"
)

// runner carries the per-run state shared by the stages: the run-scoped
// logger and the counters that end up in Stats.
type runner struct {
	model    LanguageModel
	policy   MatchPolicy
	sampling Sampling
	hooks    PipelineHooks
	logger   log.Logger
	stats    Stats
}

// complete issues the single model call of a stage.
func (r *runner) complete(ctx context.Context, stage Stage, system, user string) (string, error) {
	ctx, span := tracer.Start(ctx, "extract."+string(stage), trace.WithAttributes(
		attribute.String("openie.stage", string(stage)),
	))
	defer span.End()

	start := time.Now()
	resp, err := r.model.Complete(ctx, &CompletionRequest{
		System:      system,
		User:        user,
		Temperature: r.sampling.Temperature,
		TopP:        r.sampling.TopP,
		MaxTokens:   r.sampling.MaxTokens,
	})
	dur := time.Since(start).Seconds()
	r.stats.ModelCalls++

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if r.hooks.OnModelCall != nil {
			r.hooks.OnModelCall(stage, 0, 0, dur, err)
		}
		return "", fmt.Errorf("%s: model completion: %w", stage, err)
	}

	r.stats.InputTokens += resp.Usage.InputTokens
	r.stats.OutputTokens += resp.Usage.OutputTokens
	if resp.Model != "" {
		r.stats.Model = resp.Model
	}
	if r.hooks.OnModelCall != nil {
		r.hooks.OnModelCall(stage, resp.Usage.InputTokens, resp.Usage.OutputTokens, dur, nil)
	}

	span.SetAttributes(
		attribute.Int("openie.tokens.input", resp.Usage.InputTokens),
		attribute.Int("openie.tokens.output", resp.Usage.OutputTokens),
		attribute.Bool("openie.truncated", resp.Truncated),
	)
	if resp.Truncated {
		r.stats.TruncatedAnswers++
		r.logger.Warn(ctx, "model answer stopped at the token limit, last line may be cut off",
			"stage", stage,
			"max_tokens", r.sampling.MaxTokens,
			"output_tokens", resp.Usage.OutputTokens,
		)
	}
	return resp.Text, nil
}

// reportMalformed logs one summary warning for the lines rejected by the grammar.
func reportMalformed[T any](ctx context.Context, r *runner, stage Stage, d Decoded[T]) {
	if d.Dropped == 0 {
		return
	}
	r.stats.MalformedLines += d.Dropped
	if r.hooks.OnDrop != nil {
		r.hooks.OnDrop(stage, DropMalformed, d.Dropped)
	}
	r.logger.Warn(ctx, "dropped malformed answer lines",
		"stage", stage,
		"record", d.Grammar,
		"dropped", d.Dropped,
		"total", d.Total,
		"first_rejected", d.Rejected[0],
	)
}

// reportInconsistent logs the records dropped by the consistency check,
// separately from the grammar drops.
func (r *runner) reportInconsistent(ctx context.Context, stage Stage, dropped, total int) {
	if dropped == 0 {
		return
	}
	r.stats.InconsistentLines += dropped
	if r.hooks.OnDrop != nil {
		r.hooks.OnDrop(stage, DropInconsistent, dropped)
	}
	r.logger.Warn(ctx, "dropped inconsistent answer lines",
		"stage", stage,
		"dropped", dropped,
		"total", total,
	)
}
