// internal/extract/pipeline.go
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

// DefaultLanguage is used when a run does not name an output language.
const DefaultLanguage = "English"

// minMentions is the number of participants a sentence needs to hold a relation.
const minMentions = 2

// SkipReason tells why an entity produced no triplets.
type SkipReason string

const (
	SkipFewMentions SkipReason = "few_mentions"
	SkipNoRelations SkipReason = "no_relations"
)

// Config holds the tunables of a Pipeline.
type Config struct {
	Policy   MatchPolicy
	Sampling Sampling
	// CountSourceTokens asks the model for the token count of the input
	// text before extraction starts. The count is informational only.
	CountSourceTokens bool
}

// DefaultConfig returns the default match policy and sampling.
func DefaultConfig() Config {
	return Config{
		Policy:   DefaultMatchPolicy(),
		Sampling: DefaultSampling(),
	}
}

// Pipeline drives the extraction stages over one text at a time. It holds
// no per-run state and is safe for concurrent use if the model is.
type Pipeline struct {
	model  LanguageModel
	logger log.Logger
	hooks  PipelineHooks
	cfg    Config
}

// NewPipeline creates a pipeline over the given model.
func NewPipeline(model LanguageModel, logger log.Logger, hooks PipelineHooks, cfg Config) *Pipeline {
	if logger == nil {
		logger = log.Nop()
	}
	return &Pipeline{
		model:  model,
		logger: logger,
		hooks:  hooks,
		cfg:    cfg,
	}
}

// WithLogger returns a copy of the pipeline that logs to logger, so a
// caller can scope log fields to a single run.
func (p *Pipeline) WithLogger(logger log.Logger) *Pipeline {
	cp := *p
	cp.logger = logger
	return &cp
}

// Run extracts entities and triplets from text. Answers that cannot be
// decoded or reconciled are dropped and logged, never returned as errors.
// An error is returned only when the model call fails or ctx is done; the
// graph assembled so far is returned alongside it.
func (p *Pipeline) Run(ctx context.Context, text, language string) (*Graph, error) {
	start := time.Now()
	language = NormalizeLanguage(language)

	ctx, span := tracer.Start(ctx, "extract.Run", trace.WithAttributes(
		attribute.String("openie.language", language),
		attribute.Int("openie.text_bytes", len(text)),
	))
	defer span.End()

	r := &runner{
		model:    p.model,
		policy:   p.cfg.Policy,
		sampling: p.cfg.Sampling,
		hooks:    p.hooks,
		logger:   p.logger,
	}
	g := &Graph{Entities: []Entity{}, Triplets: []Triplet{}}

	err := r.run(ctx, p.cfg.CountSourceTokens, text, language, g)
	g.Stats = r.stats

	status := StatusComplete
	if err != nil {
		status = StatusFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.Int("openie.entities", len(g.Entities)),
		attribute.Int("openie.triplets", len(g.Triplets)),
	)

	if p.hooks.OnComplete != nil {
		p.hooks.OnComplete(&CompleteEvent{
			Status:   status,
			Model:    r.stats.Model,
			Duration: time.Since(start).Seconds(),
			Entities: len(g.Entities),
			Triplets: len(g.Triplets),
			Stats:    g.Stats,
		})
	}
	return g, err
}

func (r *runner) run(ctx context.Context, countTokens bool, text, language string, g *Graph) error {
	if countTokens {
		n, err := r.model.TokenCount(ctx, text)
		if err != nil {
			r.logger.Warn(ctx, "token count failed", "error", err)
		} else {
			r.stats.SourceTextTokens = n
		}
	}

	entities, err := r.extractEntities(ctx, text, language)
	if err != nil {
		return err
	}
	if len(entities) > 0 {
		g.Entities = entities
	}
	r.logger.Info(ctx, "entities extracted", "count", len(entities), "source_tokens", r.stats.SourceTextTokens)
	for i, e := range entities {
		r.logger.Info(ctx, "entity", "index", i, "label", e.Label, "types", e.Types, "description", e.Description)
	}

	base := r.logger
	defer func() { r.logger = base }()

	for i := range entities {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("extraction stopped after %d/%d entities: %w", i, len(entities), err)
		}
		r.logger = base.With("entity_index", i, "entity", entities[i].Label)
		r.logger.Info(ctx, "checking entity", "position", i+1, "of", len(entities))

		triplets, err := r.processEntity(ctx, i, entities, language)
		if err != nil {
			return err
		}
		r.stats.EntitiesProcessed++
		g.Triplets = append(g.Triplets, triplets...)
	}
	return nil
}

// processEntity runs phrase selection, mention recognition, relation
// extraction and predicate description for entities[i]. A nil result with a
// nil error means the entity was skipped.
func (r *runner) processEntity(ctx context.Context, i int, entities []Entity, language string) ([]Triplet, error) {
	sentence := SelectPhrase(entities, i)

	mentioned, err := r.recognizeMentions(ctx, sentence, entities)
	if err != nil {
		return nil, err
	}
	if len(mentioned) < minMentions {
		r.skip(ctx, SkipFewMentions, "sentence", sentence, "mentions", len(mentioned))
		return nil, nil
	}
	r.logger.Info(ctx, "mentions found", "sentence", sentence, "mentions", mentionLabels(mentioned, entities))

	triplets, err := r.extractRelations(ctx, sentence, mentioned, entities, language)
	if err != nil {
		return nil, err
	}
	if len(triplets) == 0 {
		r.skip(ctx, SkipNoRelations, "sentence", sentence)
		return nil, nil
	}

	described, err := r.describePredicates(ctx, sentence, triplets, language)
	if err != nil {
		return nil, err
	}
	r.stats.SentencesWithLinks++
	r.logger.Info(ctx, "triplets found", "count", len(described), "triplets", tripletLines(described))
	return described, nil
}

func (r *runner) skip(ctx context.Context, reason SkipReason, kv ...any) {
	r.stats.EntitiesSkipped++
	if r.hooks.OnSkip != nil {
		r.hooks.OnSkip(reason)
	}
	r.logger.Info(ctx, "entity skipped", append([]any{"reason", reason}, kv...)...)
}

// NormalizeLanguage upper-cases the first letter of language and
// lower-cases the rest. An empty language becomes DefaultLanguage.
func NormalizeLanguage(language string) string {
	language = strings.TrimSpace(language)
	r, size := utf8.DecodeRuneInString(language)
	if size == 0 {
		return DefaultLanguage
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(language[size:])
}

// IsCancellation reports whether err ended a run because its context was done.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func mentionLabels(ids []int, entities []Entity) []string {
	out := make([]string, len(ids))
	for n, i := range ids {
		out[n] = entities[i].Label
	}
	return out
}

func tripletLines(triplets []Triplet) []string {
	out := make([]string, len(triplets))
	for i, t := range triplets {
		out[i] = t.SubjLabel + " | " + t.PredLabel + " | " + t.ObjLabel
	}
	return out
}
