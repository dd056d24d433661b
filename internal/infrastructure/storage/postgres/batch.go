package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// BatchQuery is one statement queued into a pgx batch.
type BatchQuery struct {
	SQL  string
	Args []any
}

// BatchExecutor sends many statements per round-trip, chunked to bound memory
// and statement size.
type BatchExecutor struct {
	chunkSize int
}

// NewBatchExecutor creates an executor. chunkSize <= 0 means 500.
func NewBatchExecutor(chunkSize int) *BatchExecutor {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &BatchExecutor{chunkSize: chunkSize}
}

// QueryRows queues every query and hands each returned row to scan in order.
// Each query must return exactly one row (e.g. INSERT ... RETURNING).
func (e *BatchExecutor) QueryRows(ctx context.Context, q Querier, queries []BatchQuery, scan func(i int, row pgx.Row) error) error {
	for start := 0; start < len(queries); start += e.chunkSize {
		end := min(start+e.chunkSize, len(queries))
		if err := e.sendChunk(ctx, q, queries[start:end], start, scan); err != nil {
			return err
		}
	}
	return nil
}

func (e *BatchExecutor) sendChunk(ctx context.Context, q Querier, chunk []BatchQuery, offset int, scan func(i int, row pgx.Row) error) (err error) {
	batch := &pgx.Batch{}
	for _, bq := range chunk {
		batch.Queue(bq.SQL, bq.Args...)
	}

	results := q.SendBatch(ctx, batch)
	defer func() {
		if cerr := results.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close batch: %w", cerr)
		}
	}()

	for i := range chunk {
		if err := scan(offset+i, results.QueryRow()); err != nil {
			return fmt.Errorf("batch statement %d: %w", offset+i, err)
		}
	}
	return nil
}

// Exec queues statements that return no rows.
func (e *BatchExecutor) Exec(ctx context.Context, q Querier, queries []BatchQuery) error {
	for start := 0; start < len(queries); start += e.chunkSize {
		end := min(start+e.chunkSize, len(queries))
		if err := e.execChunk(ctx, q, queries[start:end], start); err != nil {
			return err
		}
	}
	return nil
}

func (e *BatchExecutor) execChunk(ctx context.Context, q Querier, chunk []BatchQuery, offset int) (err error) {
	batch := &pgx.Batch{}
	for _, bq := range chunk {
		batch.Queue(bq.SQL, bq.Args...)
	}

	results := q.SendBatch(ctx, batch)
	defer func() {
		if cerr := results.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close batch: %w", cerr)
		}
	}()

	for i := range chunk {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch statement %d: %w", offset+i, err)
		}
	}
	return nil
}
