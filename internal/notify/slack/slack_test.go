package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/openie/internal/extract"
)

func sampleResult() *extract.Result {
	return &extract.Result{
		ID:       "01JN123",
		Status:   extract.StatusComplete,
		Language: "English",
		Model:    "claude-sonnet-4-20250514",
		Duration: 23.4,
		Graph: &extract.Graph{
			Entities: []extract.Entity{{Label: "Paris"}, {Label: "France"}},
			Triplets: []extract.Triplet{{SubjLabel: "Paris", PredLabel: "is capital of", ObjLabel: "France", ObjID: 1}},
			Stats:    extract.Stats{ModelCalls: 5, InputTokens: 800, OutputTokens: 450, MalformedLines: 1, InconsistentLines: 2},
		},
		CompletedAt: time.Date(2026, 2, 26, 14, 23, 0, 0, time.UTC),
	}
}

// capture starts a webhook server that decodes the posted message.
func capture(t *testing.T, status int) (*httptest.Server, *map[string]any) {
	t.Helper()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func blockText(b any) string {
	raw, _ := json.Marshal(b)
	return string(raw)
}

func TestSend_PostsToWebhook(t *testing.T) {
	t.Parallel()

	srv, got := capture(t, http.StatusOK)
	if err := New(srv.URL, log.Nop()).Send(context.Background(), sampleResult()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	blocks, ok := (*got)["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}
	// header, fields, divider, triplets, context
	if len(blocks) != 5 {
		t.Fatalf("blocks count = %d, want 5", len(blocks))
	}

	header := blockText(blocks[0])
	if !strings.Contains(header, "Extraction complete: 2 entities, 1 triplets") {
		t.Errorf("header = %s", header)
	}
	fields := blockText(blocks[1])
	for _, want := range []string{"claude-sonnet-4", "23.4s", "800 in / 450 out", "*Dropped lines:* 3"} {
		if !strings.Contains(fields, want) {
			t.Errorf("fields missing %q: %s", want, fields)
		}
	}
	if strings.Contains(fields, "20250514") {
		t.Error("model date suffix should be stripped")
	}
	if !strings.Contains(blockText(blocks[3]), "*Paris* → is capital of → *France*") {
		t.Errorf("triplets block = %s", blockText(blocks[3]))
	}
	if !strings.Contains(blockText(blocks[4]), "2026-02-26 14:23 UTC") {
		t.Errorf("context block = %s", blockText(blocks[4]))
	}
}

func TestSend_FailedRunIncludesError(t *testing.T) {
	t.Parallel()

	r := sampleResult()
	r.Status = extract.StatusFailed
	r.Error = strings.Repeat("x", 2*maxErrorLen)

	srv, got := capture(t, http.StatusOK)
	if err := New(srv.URL, nil).Send(context.Background(), r); err != nil {
		t.Fatalf("Send: %v", err)
	}

	blocks := (*got)["blocks"].([]any)
	if len(blocks) != 6 {
		t.Fatalf("blocks count = %d, want 6", len(blocks))
	}
	if !strings.Contains(blockText(blocks[0]), "Extraction failed") {
		t.Errorf("header = %s", blockText(blocks[0]))
	}
	if !strings.Contains(blockText(blocks[4]), "...") {
		t.Error("long error should be truncated")
	}
}

func TestSend_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	if err := New("", log.Nop()).Send(context.Background(), sampleResult()); err != nil {
		t.Errorf("Send with empty URL: %v", err)
	}
}

func TestSend_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv, _ := capture(t, http.StatusForbidden)
	err := New(srv.URL, log.Nop()).Send(context.Background(), sampleResult())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("err = %v, want webhook 403 error", err)
	}
}

func TestTripletsBlock_Limits(t *testing.T) {
	t.Parallel()

	r := sampleResult()
	r.Graph.Triplets = nil
	for i := range maxSampleTriplets + 3 {
		r.Graph.Triplets = append(r.Graph.Triplets, extract.Triplet{SubjLabel: fmt.Sprintf("s%d", i), PredLabel: "p", ObjLabel: "o"})
	}

	text := blockText(tripletsBlock(r))
	if strings.Count(text, "•") != maxSampleTriplets {
		t.Errorf("listed %d triplets, want %d", strings.Count(text, "•"), maxSampleTriplets)
	}
	if !strings.Contains(text, "and 3 more") {
		t.Errorf("missing overflow note: %s", text)
	}

	r.Graph = nil
	if !strings.Contains(blockText(tripletsBlock(r)), "No triplets extracted") {
		t.Error("expected placeholder for a run without graph")
	}
}

func TestStatusEmoji(t *testing.T) {
	t.Parallel()

	complete := sampleResult()
	empty := sampleResult()
	empty.Graph.Triplets = nil
	failed := sampleResult()
	failed.Status = extract.StatusFailed

	tests := []struct {
		name string
		r    *extract.Result
		want string
	}{
		{"complete with triplets", complete, "\U0001f7e2"},
		{"complete without triplets", empty, "\U0001f7e1"},
		{"failed", failed, "\U0001f534"},
	}
	for _, tt := range tests {
		if got := statusEmoji(tt.r); got != tt.want {
			t.Errorf("%s: emoji = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestShortModel(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"claude-sonnet-4-20250514", "claude-sonnet-4"},
		{"claude-sonnet-4-5", "claude-sonnet-4-5"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := shortModel(tt.in); got != tt.want {
			t.Errorf("shortModel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
