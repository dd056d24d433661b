package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFieldKeys_ExpiryAndInvalidate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFieldKeys(time.Minute)
	c.now = func() time.Time { return now }

	keys := []string{"plan", "seats"}
	c.Set("t-1", keys)
	keys[0] = "mutated"

	got, ok := c.Get("t-1")
	assert.True(t, ok)
	assert.Equal(t, []string{"plan", "seats"}, got)

	got[1] = "mutated"
	again, _ := c.Get("t-1")
	assert.Equal(t, "seats", again[1])

	_, ok = c.Get("t-2")
	assert.False(t, ok)

	now = now.Add(time.Minute)
	_, ok = c.Get("t-1")
	assert.False(t, ok)
	assert.Equal(t, 1, c.sweep())
	assert.Zero(t, c.Len())

	c.Set("t-1", keys)
	c.Invalidate("t-1")
	_, ok = c.Get("t-1")
	assert.False(t, ok)
}

func TestFieldKeys_StartStop(t *testing.T) {
	c := NewFieldKeys(10 * time.Millisecond)
	c.Start(context.Background())
	c.Start(context.Background())
	c.Set("t-1", []string{"a"})

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)

	c.Stop()
	c.Stop()
}
