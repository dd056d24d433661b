package segment

import (
	"context"
	"time"

	"audience/internal/core/id"
	"audience/internal/domain"
)

// ListQuery pages segments, optionally narrowed by a name search.
type ListQuery struct {
	Search string
	Limit  int
	Offset int
}

// Repository persists segments of the tenant bound to ctx.
type Repository interface {
	Create(ctx context.Context, s *Segment) error

	// Update writes s if its version still matches, then bumps the version.
	Update(ctx context.Context, s *Segment) error

	GetByID(ctx context.Context, segmentID id.ID) (*Segment, error)
	List(ctx context.Context, q ListQuery) (domain.ListResult[*Segment], error)
	ListAll(ctx context.Context) ([]*Segment, error)
	Delete(ctx context.Context, segmentID id.ID) error

	// UpdateSize stores an evaluation result without touching the version.
	UpdateSize(ctx context.Context, segmentID id.ID, size int, at time.Time) error
}

// SnapshotStore keeps the latest membership snapshot per segment.
type SnapshotStore interface {
	Save(ctx context.Context, snap *Snapshot) error

	// Load returns a NotFound AppError when the segment was never refreshed.
	Load(ctx context.Context, segmentID id.ID) (*Snapshot, error)
}
