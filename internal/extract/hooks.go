package extract

// PipelineHooks are optional callbacks fired while a pipeline runs.
// Nil fields are skipped.
type PipelineHooks struct {
	OnModelCall func(stage Stage, inputTokens, outputTokens int, duration float64, err error)
	OnDrop      func(stage Stage, reason DropReason, n int)
	OnSkip      func(reason SkipReason)
	OnComplete  func(e *CompleteEvent)
}

// CompleteEvent summarizes a finished run.
type CompleteEvent struct {
	Status   Status
	Model    string
	Duration float64
	Entities int
	Triplets int
	Stats    Stats
}
