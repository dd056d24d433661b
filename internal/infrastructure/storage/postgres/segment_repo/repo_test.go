package segment_repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audience/internal/domain/filter"
	"audience/internal/domain/segment"
)

func TestUpdateQuerySkipsImmutableColumns(t *testing.T) {
	s := segment.New("Spain", filter.Criteria{})
	s.Version = 2

	sql, args, err := updateQuery(s)
	require.NoError(t, err)

	for _, col := range []string{"created_at", "created_by", "source ="} {
		assert.NotContains(t, sql, col)
	}
	assert.Contains(t, sql, "criteria = $1")
	assert.Contains(t, sql, "version = version + 1")
	assert.Contains(t, sql, "RETURNING version")
	assert.Equal(t, 2, args[len(args)-1])
}

func TestListQueries(t *testing.T) {
	count, page := listQueries(segment.ListQuery{Search: "spa", Limit: 20, Offset: 40})

	countSQL, countArgs, err := count.ToSql()
	require.NoError(t, err)
	assert.Contains(t, countSQL, "SELECT COUNT(*) FROM (SELECT")
	assert.Contains(t, countSQL, "WHERE name ILIKE $1) AS sub")
	assert.Equal(t, []any{"%spa%"}, countArgs)

	pageSQL, pageArgs, err := page.ToSql()
	require.NoError(t, err)
	assert.Contains(t, pageSQL, "ORDER BY created_at DESC, id LIMIT 20 OFFSET 40")
	assert.Equal(t, []any{"%spa%"}, pageArgs)

	count, page = listQueries(segment.ListQuery{})
	countSQL, _, err = count.ToSql()
	require.NoError(t, err)
	assert.NotContains(t, countSQL, "ILIKE")
	pageSQL, _, err = page.ToSql()
	require.NoError(t, err)
	assert.NotContains(t, pageSQL, "LIMIT")
}
