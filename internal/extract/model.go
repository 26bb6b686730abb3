package extract

import "time"

// Entity is a concept discovered in the source text. Its position in
// Graph.Entities is its identifier for the rest of the run.
type Entity struct {
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Types       []string `json:"types"`
}

// Triplet is a subject-predicate-object relation between two entities.
// SubjID and ObjID are 0-based indexes into Graph.Entities. PredDescription
// is nil when no description could be associated with the predicate.
type Triplet struct {
	SubjLabel       string  `json:"subj_label"`
	SubjID          int     `json:"subj_id"`
	PredLabel       string  `json:"pred_label"`
	ObjLabel        string  `json:"obj_label"`
	ObjID           int     `json:"obj_id"`
	PredDescription *string `json:"pred_description"`
}

// Graph is the output of a pipeline run.
type Graph struct {
	Entities []Entity  `json:"entities"`
	Triplets []Triplet `json:"triplets"`
	Stats    Stats     `json:"stats"`
}

// Stats counts what happened during a run.
type Stats struct {
	Model              string `json:"model,omitempty"`
	ModelCalls         int    `json:"model_calls"`
	InputTokens        int    `json:"input_tokens"`
	OutputTokens       int    `json:"output_tokens"`
	MalformedLines     int    `json:"malformed_lines"`
	InconsistentLines  int    `json:"inconsistent_lines"`
	TruncatedAnswers   int    `json:"truncated_answers"`
	EntitiesSkipped    int    `json:"entities_skipped"`
	SourceTextTokens   int    `json:"source_text_tokens,omitempty"`
	EntitiesProcessed  int    `json:"entities_processed"`
	SentencesWithLinks int    `json:"sentences_with_relations"`
}

// Status tracks where an extraction is in its lifecycle.
type Status string

const (
	// StatusPending means created, not yet started
	StatusPending Status = "pending"

	// StatusInProgress means currently being processed
	StatusInProgress Status = "in_progress"

	// StatusComplete means finished successfully
	StatusComplete Status = "complete"

	// StatusFailed means the model transport failed or the run was cancelled;
	// whatever was assembled before the failure is kept.
	StatusFailed Status = "failed"
)

// Result is the stored record of one extraction request.
type Result struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Status      Status    `json:"status"`
	Language    string    `json:"language"`
	Text        string    `json:"text"`
	Graph       *Graph    `json:"graph,omitempty"`
	Error       string    `json:"error,omitempty"`
	Model       string    `json:"model,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Duration    float64   `json:"duration_seconds,omitempty"`
}
