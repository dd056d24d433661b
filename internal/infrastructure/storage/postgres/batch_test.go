package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct{ val int }

func (r fakeRow) Scan(dest ...any) error {
	*(dest[0].(*int)) = r.val
	return nil
}

type fakeResults struct {
	n      int
	failAt int
	closed bool
}

func (f *fakeResults) Exec() (pgconn.CommandTag, error) {
	f.n++
	if f.n == f.failAt {
		return pgconn.CommandTag{}, errors.New("constraint violated")
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }

func (f *fakeResults) QueryRow() pgx.Row {
	f.n++
	return fakeRow{val: f.n}
}

func (f *fakeResults) Close() error {
	f.closed = true
	return nil
}

type fakeQuerier struct {
	Querier
	batchSizes []int
	results    []*fakeResults
	failAt     int
}

func (q *fakeQuerier) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	q.batchSizes = append(q.batchSizes, b.Len())
	r := &fakeResults{failAt: q.failAt}
	q.results = append(q.results, r)
	return r
}

func queries(n int) []BatchQuery {
	out := make([]BatchQuery, n)
	for i := range out {
		out[i] = BatchQuery{SQL: "INSERT INTO profiles DEFAULT VALUES RETURNING 1"}
	}
	return out
}

func TestBatchExecutor_QueryRowsChunks(t *testing.T) {
	q := &fakeQuerier{}
	exec := NewBatchExecutor(2)

	var seen []int
	err := exec.QueryRows(context.Background(), q, queries(5), func(i int, row pgx.Row) error {
		var v int
		require.NoError(t, row.Scan(&v))
		seen = append(seen, i)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, q.batchSizes)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen)
	for _, r := range q.results {
		assert.True(t, r.closed)
	}
}

func TestBatchExecutor_ExecStopsOnError(t *testing.T) {
	q := &fakeQuerier{failAt: 2}
	err := NewBatchExecutor(10).Exec(context.Background(), q, queries(3))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch statement 1")
	assert.True(t, q.results[0].closed)
}

func TestNewBatchExecutor_DefaultChunk(t *testing.T) {
	assert.Equal(t, 500, NewBatchExecutor(0).chunkSize)
}
