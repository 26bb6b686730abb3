package extract

import (
	"context"
	"fmt"
	"sync"

	"github.com/linnemanlabs/go-core/log"
)

// scripted is one canned answer. before runs ahead of the answer, e.g. to
// cancel the run's context.
type scripted struct {
	text      string
	err       error
	truncated bool
	before    func()
}

// fakeModel implements LanguageModel by replaying answers in order and
// recording every request it receives.
type fakeModel struct {
	mu       sync.Mutex
	answers  []scripted
	requests []*CompletionRequest
	tokens   int
	tokenErr error
}

func newFakeModel(answers ...string) *fakeModel {
	m := &fakeModel{}
	for _, a := range answers {
		m.answers = append(m.answers, scripted{text: a})
	}
	return m
}

func (m *fakeModel) Complete(_ context.Context, req *CompletionRequest) (*Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.requests)
	m.requests = append(m.requests, req)
	if n >= len(m.answers) {
		return nil, fmt.Errorf("unexpected model call %d", n+1)
	}
	a := m.answers[n]
	if a.before != nil {
		a.before()
	}
	if a.err != nil {
		return nil, a.err
	}
	return &Completion{
		Text:      a.text,
		Model:     "fake-model",
		Usage:     Usage{InputTokens: 10, OutputTokens: 5},
		Truncated: a.truncated,
	}, nil
}

func (m *fakeModel) TokenCount(context.Context, string) (int, error) {
	return m.tokens, m.tokenErr
}

func (m *fakeModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *fakeModel) request(i int) *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

func newTestRunner(model LanguageModel) *runner {
	return &runner{
		model:    model,
		policy:   DefaultMatchPolicy(),
		sampling: DefaultSampling(),
		logger:   log.Nop(),
	}
}

func entitiesOf(labels ...string) []Entity {
	out := make([]Entity, len(labels))
	for i, l := range labels {
		out[i] = Entity{Label: l, Description: "Description of " + l, Types: []string{"thing"}}
	}
	return out
}
