package entity

import (
	"context"
	"time"

	"audience/internal/core/id"
)

// Validatable is implemented by entities that check their own invariants without I/O.
type Validatable interface {
	Validate(ctx context.Context) error
}

// Base carries identity, optimistic-lock version and timestamps.
type Base struct {
	ID        id.ID     `db:"id" json:"id"`
	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewBase returns a Base with a fresh UUIDv7 and version 1.
func NewBase() Base {
	now := time.Now().UTC()
	return Base{
		ID:        id.New(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch bumps UpdatedAt before a write.
func (b *Base) Touch() {
	b.UpdatedAt = time.Now().UTC()
}
