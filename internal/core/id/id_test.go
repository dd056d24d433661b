package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IsTimeOrdered(t *testing.T) {
	a := New()
	b := New()

	assert.Equal(t, 7, int(a.Version()))
	assert.False(t, IsNil(a))
	assert.LessOrEqual(t, a.String()[:8], b.String()[:8])
}

func TestParseList(t *testing.T) {
	a, b := New(), New()

	ids, err := ParseList([]string{a.String(), b.String()})
	require.NoError(t, err)
	assert.Equal(t, []ID{a, b}, ids)

	_, err = ParseList([]string{a.String(), "nope"})
	assert.Error(t, err)
}
