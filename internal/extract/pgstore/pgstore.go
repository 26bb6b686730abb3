// Package pgstore provides a PostgreSQL implementation of extract.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/openie/internal/extract"
)

var tracer = otel.Tracer("github.com/linnemanlabs/openie/internal/extract/pgstore")

//go:embed schema.sql
var schema string

// Store persists extraction results in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The pool stays
// owned by the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const runColumns = `id, fingerprint, status, language, source_text, error, model, stats,
	created_at, completed_at, duration_s`

// Get retrieves an extraction result by ID.
func (s *Store) Get(ctx context.Context, id string) (*extract.Result, bool, error) {
	return s.getOne(ctx, "pgstore.Get",
		`SELECT `+runColumns+` FROM extraction_runs WHERE id = $1`, id)
}

// GetByFingerprint retrieves the most recent extraction for a fingerprint.
func (s *Store) GetByFingerprint(ctx context.Context, fingerprint string) (*extract.Result, bool, error) {
	return s.getOne(ctx, "pgstore.GetByFingerprint",
		`SELECT `+runColumns+` FROM extraction_runs WHERE fingerprint = $1 ORDER BY created_at DESC LIMIT 1`, fingerprint)
}

func (s *Store) getOne(ctx context.Context, spanName, query string, arg string) (*extract.Result, bool, error) {
	ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	r, err := scanRun(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if r == nil {
		return nil, false, nil
	}

	if err := s.loadGraph(ctx, r); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	return r, true, nil
}

// Put inserts or updates an extraction result. When the result carries a
// graph, its entities and triplets replace the stored ones.
func (s *Store) Put(ctx context.Context, r *extract.Result) error {
	ctx, span := tracer.Start(ctx, "pgstore.Put", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := upsertRun(ctx, tx, r); err != nil {
			return err
		}
		if r.Graph == nil {
			return nil
		}
		return replaceGraph(ctx, tx, r.ID, r.Graph)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func upsertRun(ctx context.Context, tx pgx.Tx, r *extract.Result) error {
	var statsJSON []byte
	if r.Graph != nil {
		b, err := json.Marshal(r.Graph.Stats)
		if err != nil {
			return fmt.Errorf("marshal stats: %w", err)
		}
		statsJSON = b
	}

	var completedAt *time.Time
	if !r.CompletedAt.IsZero() {
		completedAt = &r.CompletedAt
	}

	_, err := tx.Exec(ctx, `INSERT INTO extraction_runs (
		id, fingerprint, status, language, source_text, error, model, stats,
		created_at, completed_at, duration_s
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	ON CONFLICT (id) DO UPDATE SET
		fingerprint  = EXCLUDED.fingerprint,
		status       = EXCLUDED.status,
		language     = EXCLUDED.language,
		source_text  = EXCLUDED.source_text,
		error        = EXCLUDED.error,
		model        = EXCLUDED.model,
		stats        = COALESCE(EXCLUDED.stats, extraction_runs.stats),
		completed_at = EXCLUDED.completed_at,
		duration_s   = EXCLUDED.duration_s`,
		r.ID, r.Fingerprint, string(r.Status), r.Language, r.Text, r.Error, r.Model, statsJSON,
		r.CreatedAt, completedAt, r.Duration,
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

func replaceGraph(ctx context.Context, tx pgx.Tx, runID string, g *extract.Graph) error {
	if _, err := tx.Exec(ctx, `DELETE FROM triplets WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("delete triplets: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM entities WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("delete entities: %w", err)
	}

	batch := &pgx.Batch{}
	for i, e := range g.Entities {
		types, err := json.Marshal(e.Types)
		if err != nil {
			return fmt.Errorf("marshal types of entity %d: %w", i, err)
		}
		batch.Queue(`INSERT INTO entities (run_id, idx, label, description, types) VALUES ($1, $2, $3, $4, $5)`,
			runID, i, e.Label, e.Description, types)
	}
	for i, t := range g.Triplets {
		batch.Queue(`INSERT INTO triplets (run_id, seq, subj_id, subj_label, pred_label, obj_id, obj_label, pred_description)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			runID, i, t.SubjID, t.SubjLabel, t.PredLabel, t.ObjID, t.ObjLabel, t.PredDescription)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert graph: %w", err)
	}
	return nil
}

// loadGraph reads entities and triplets of r, if it has a recorded graph.
func (s *Store) loadGraph(ctx context.Context, r *extract.Result) error {
	if r.Graph == nil {
		return nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT label, description, types FROM entities WHERE run_id = $1 ORDER BY idx`, r.ID)
	if err != nil {
		return fmt.Errorf("query entities: %w", err)
	}
	entities, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (extract.Entity, error) {
		var (
			e     extract.Entity
			types []byte
		)
		if err := row.Scan(&e.Label, &e.Description, &types); err != nil {
			return e, err
		}
		if err := json.Unmarshal(types, &e.Types); err != nil {
			return e, fmt.Errorf("unmarshal types: %w", err)
		}
		return e, nil
	})
	if err != nil {
		return fmt.Errorf("scan entities: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT subj_label, subj_id, pred_label, obj_label, obj_id, pred_description
		 FROM triplets WHERE run_id = $1 ORDER BY seq`, r.ID)
	if err != nil {
		return fmt.Errorf("query triplets: %w", err)
	}
	triplets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (extract.Triplet, error) {
		var t extract.Triplet
		err := row.Scan(&t.SubjLabel, &t.SubjID, &t.PredLabel, &t.ObjLabel, &t.ObjID, &t.PredDescription)
		return t, err
	})
	if err != nil {
		return fmt.Errorf("scan triplets: %w", err)
	}

	r.Graph.Entities = append([]extract.Entity{}, entities...)
	r.Graph.Triplets = append([]extract.Triplet{}, triplets...)
	return nil
}

// scanRun scans a single row into an extract.Result (without entities and
// triplets). Returns (nil, nil) when no row is found.
func scanRun(row pgx.Row) (*extract.Result, error) {
	var (
		r           extract.Result
		status      string
		statsJSON   []byte
		completedAt *time.Time
	)

	err := row.Scan(
		&r.ID, &r.Fingerprint, &status, &r.Language, &r.Text, &r.Error, &r.Model, &statsJSON,
		&r.CreatedAt, &completedAt, &r.Duration,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	r.Status = extract.Status(status)
	if completedAt != nil {
		r.CompletedAt = *completedAt
	}

	// a run gets stats only once its pipeline has finished
	if statsJSON != nil {
		r.Graph = &extract.Graph{}
		if err := json.Unmarshal(statsJSON, &r.Graph.Stats); err != nil {
			return nil, fmt.Errorf("unmarshal stats: %w", err)
		}
	}
	return &r, nil
}
