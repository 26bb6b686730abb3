package extract

import "context"

// Store is the persistence interface for extraction results.
type Store interface {
	Get(ctx context.Context, id string) (*Result, bool, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*Result, bool, error)
	Put(ctx context.Context, result *Result) error
}

// Notifier is told about every finished extraction.
type Notifier interface {
	Send(ctx context.Context, result *Result) error
}
