package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/linnemanlabs/go-core/log"
)

const parisEntities = "- Paris|||Capital city of France|||[city, capital]\n- France|||Country in Western Europe|||[country]"

func TestRun_ParisFrance(t *testing.T) {
	t.Parallel()

	model := newFakeModel(
		parisEntities,
		"1) Paris|||yes\n2) France|||yes",
		"- Paris (1)|||is capital of|||France (2)",
		"- is capital of|||Indicates the city that is the seat of government of a country",
		"1) Paris|||no\n2) France|||yes",
	)
	p := NewPipeline(model, log.Nop(), PipelineHooks{}, DefaultConfig())

	g, err := p.Run(context.Background(), "Paris is the capital of France.", "english")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(g.Entities) != 2 {
		t.Fatalf("entities = %d, want 2", len(g.Entities))
	}
	if len(g.Triplets) != 1 {
		t.Fatalf("triplets = %+v, want 1", g.Triplets)
	}
	tr := g.Triplets[0]
	if tr.SubjID != 0 || tr.ObjID != 1 || tr.PredLabel != "is capital of" {
		t.Errorf("triplet = %+v", tr)
	}
	if tr.PredDescription == nil || !strings.HasPrefix(*tr.PredDescription, "Indicates the city") {
		t.Errorf("description = %v", tr.PredDescription)
	}

	if model.calls() != 5 {
		t.Errorf("model calls = %d, want 5", model.calls())
	}
	want := Stats{
		Model:              "fake-model",
		ModelCalls:         5,
		InputTokens:        50,
		OutputTokens:       25,
		EntitiesSkipped:    1,
		EntitiesProcessed:  2,
		SentencesWithLinks: 1,
	}
	if g.Stats != want {
		t.Errorf("stats = %+v, want %+v", g.Stats, want)
	}
	if !strings.Contains(model.request(0).System, "should be English!") {
		t.Error("language was not normalized into the prompt")
	}
}

func TestRun_TripletIDsIndexEntities(t *testing.T) {
	t.Parallel()

	model := newFakeModel(
		"- Alice|||A person|||[person]\n- Bob|||A person|||[person]\n- Carol|||A person|||[person]",
		"1) Alice|||yes\n2) Bob|||no\n3) Carol|||yes",
		"- Alice (1)|||knows|||Carol (2)",
		"- knows|||Acquaintance",
		"1) Alice|||no\n2) Bob|||yes\n3) Carol|||no",
		"1) Alice|||no\n2) Bob|||no\n3) Carol|||yes",
	)
	p := NewPipeline(model, nil, PipelineHooks{}, DefaultConfig())

	g, err := p.Run(context.Background(), "Alice knows Carol.", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, tr := range g.Triplets {
		if tr.SubjID < 0 || tr.SubjID >= len(g.Entities) || tr.ObjID < 0 || tr.ObjID >= len(g.Entities) {
			t.Fatalf("triplet ids out of range: %+v", tr)
		}
	}
	if len(g.Triplets) != 1 || g.Triplets[0].ObjID != 2 {
		t.Errorf("triplets = %+v, want Alice->Carol with ObjID 2", g.Triplets)
	}
}

func TestRun_SingleMentionSkipsRelations(t *testing.T) {
	t.Parallel()

	model := newFakeModel(
		parisEntities,
		"1) Paris|||yes\n2) France|||no",
		"1) Paris|||no\n2) France|||yes",
	)
	var skips []SkipReason
	hooks := PipelineHooks{OnSkip: func(r SkipReason) { skips = append(skips, r) }}
	p := NewPipeline(model, log.Nop(), hooks, DefaultConfig())

	g, err := p.Run(context.Background(), "text", "English")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if model.calls() != 3 {
		t.Errorf("model calls = %d, want 3 (no relation or predicate calls)", model.calls())
	}
	if len(g.Triplets) != 0 {
		t.Errorf("triplets = %+v, want none", g.Triplets)
	}
	if len(skips) != 2 || skips[0] != SkipFewMentions {
		t.Errorf("skips = %v", skips)
	}
}

func TestRun_NoRelationsSkipsPredicates(t *testing.T) {
	t.Parallel()

	model := newFakeModel(
		parisEntities,
		"1) Paris|||yes\n2) France|||yes",
		"There is no relation here.",
		"1) Paris|||yes\n2) France|||yes",
		"- France (2)|||contains|||Paris (1)",
		"- contains|||Spatial inclusion",
	)
	p := NewPipeline(model, log.Nop(), PipelineHooks{}, DefaultConfig())

	g, err := p.Run(context.Background(), "text", "English")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if model.calls() != 6 {
		t.Errorf("model calls = %d, want 6", model.calls())
	}
	if len(g.Triplets) != 1 || g.Triplets[0].SubjID != 1 || g.Triplets[0].ObjID != 0 {
		t.Errorf("triplets = %+v", g.Triplets)
	}
	if g.Stats.EntitiesSkipped != 1 || g.Stats.MalformedLines != 1 {
		t.Errorf("stats = %+v", g.Stats)
	}
}

func TestRun_NoEntities(t *testing.T) {
	t.Parallel()

	model := newFakeModel("Sorry, nothing here.")
	p := NewPipeline(model, log.Nop(), PipelineHooks{}, DefaultConfig())

	g, err := p.Run(context.Background(), "...", "English")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if g.Entities == nil || g.Triplets == nil {
		t.Error("expected empty, non-nil slices")
	}
	if len(g.Entities) != 0 || len(g.Triplets) != 0 || model.calls() != 1 {
		t.Errorf("graph = %+v calls = %d", g, model.calls())
	}
}

func TestRun_ModelErrorKeepsPartialGraph(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	model := newFakeModel(
		parisEntities,
		"1) Paris|||yes\n2) France|||yes",
	)
	model.answers = append(model.answers, scripted{err: boom})

	var completed *CompleteEvent
	hooks := PipelineHooks{OnComplete: func(e *CompleteEvent) { completed = e }}
	p := NewPipeline(model, log.Nop(), hooks, DefaultConfig())

	g, err := p.Run(context.Background(), "text", "English")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if !strings.Contains(err.Error(), string(StageRelationExtraction)) {
		t.Errorf("error does not name the stage: %v", err)
	}
	if g == nil || len(g.Entities) != 2 {
		t.Fatalf("expected partial graph with entities, got %+v", g)
	}
	if g.Stats.ModelCalls != 3 || g.Stats.EntitiesProcessed != 0 {
		t.Errorf("stats = %+v", g.Stats)
	}
	if completed == nil || completed.Status != StatusFailed {
		t.Errorf("complete event = %+v", completed)
	}
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := &fakeModel{answers: []scripted{{text: parisEntities, before: cancel}}}
	p := NewPipeline(model, log.Nop(), PipelineHooks{}, DefaultConfig())

	g, err := p.Run(ctx, "text", "English")
	if !IsCancellation(err) {
		t.Fatalf("err = %v, want cancellation", err)
	}
	if len(g.Entities) != 2 || len(g.Triplets) != 0 {
		t.Errorf("graph = %+v", g)
	}
	if model.calls() != 1 {
		t.Errorf("model calls = %d, want 1", model.calls())
	}
}

func TestRun_CountSourceTokens(t *testing.T) {
	t.Parallel()

	model := newFakeModel("nothing")
	model.tokens = 42
	cfg := DefaultConfig()
	cfg.CountSourceTokens = true

	g, err := NewPipeline(model, log.Nop(), PipelineHooks{}, cfg).Run(context.Background(), "text", "English")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if g.Stats.SourceTextTokens != 42 {
		t.Errorf("SourceTextTokens = %d, want 42", g.Stats.SourceTextTokens)
	}

	// a failed count is logged, not fatal
	model = newFakeModel("nothing")
	model.tokenErr = errors.New("unsupported")
	if _, err := NewPipeline(model, log.Nop(), PipelineHooks{}, cfg).Run(context.Background(), "text", "English"); err != nil {
		t.Errorf("Run with failing token count: %v", err)
	}
}

func TestRun_HooksSeeDrops(t *testing.T) {
	t.Parallel()

	model := newFakeModel(
		parisEntities+"\nnoise",
		"1) Paris|||yes\n2) Frankfurt|||yes",
		"1) Paris|||no\n2) France|||yes",
	)
	drops := map[DropReason]int{}
	calls := 0
	hooks := PipelineHooks{
		OnDrop:      func(_ Stage, reason DropReason, n int) { drops[reason] += n },
		OnModelCall: func(Stage, int, int, float64, error) { calls++ },
	}

	if _, err := NewPipeline(model, log.Nop(), hooks, DefaultConfig()).Run(context.Background(), "text", "English"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if drops[DropMalformed] != 1 || drops[DropInconsistent] != 1 {
		t.Errorf("drops = %v", drops)
	}
	if calls != 3 {
		t.Errorf("OnModelCall fired %d times, want 3", calls)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"", "English"},
		{"   ", "English"},
		{"italian", "Italian"},
		{"ENGLISH", "English"},
		{" french ", "French"},
		{"élvish", "Élvish"},
	}
	for _, tt := range tests {
		if got := NormalizeLanguage(tt.in); got != tt.want {
			t.Errorf("NormalizeLanguage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsCancellation(t *testing.T) {
	t.Parallel()

	if !IsCancellation(context.Canceled) || !IsCancellation(context.DeadlineExceeded) {
		t.Error("context errors should count as cancellation")
	}
	if IsCancellation(errors.New("other")) || IsCancellation(nil) {
		t.Error("unrelated errors should not count as cancellation")
	}
}
