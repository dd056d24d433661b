// Package segmenttest provides in-memory segment storage for tests.
package segmenttest

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"audience/internal/core/apperror"
	"audience/internal/core/id"
	"audience/internal/domain"
	"audience/internal/domain/segment"
)

// Repository keeps segments in insertion order. Safe for concurrent use.
type Repository struct {
	mu       sync.Mutex
	order    []id.ID
	segments map[id.ID]*segment.Segment

	// FailSize makes UpdateSize fail for the listed segments.
	FailSize map[id.ID]error
}

func NewRepository(seed ...*segment.Segment) *Repository {
	r := &Repository{segments: make(map[id.ID]*segment.Segment), FailSize: make(map[id.ID]error)}
	for _, s := range seed {
		r.order = append(r.order, s.ID)
		r.segments[s.ID] = clone(s)
	}
	return r
}

func clone(s *segment.Segment) *segment.Segment {
	c := *s
	c.Criteria.Conditions = slices.Clone(s.Criteria.Conditions)
	c.Criteria.Groups = slices.Clone(s.Criteria.Groups)
	if s.SizeComputedAt != nil {
		at := *s.SizeComputedAt
		c.SizeComputedAt = &at
	}
	return &c
}

func (r *Repository) Create(_ context.Context, s *segment.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.segments[s.ID]; dup {
		return apperror.NewDuplicate("segment", "id", s.ID.String())
	}
	r.order = append(r.order, s.ID)
	r.segments[s.ID] = clone(s)
	return nil
}

func (r *Repository) Update(_ context.Context, s *segment.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.segments[s.ID]
	if !ok {
		return apperror.NewNotFound("segments", s.ID.String())
	}
	if cur.Version != s.Version {
		return apperror.NewConcurrentModification("segments", s.ID.String())
	}
	s.Version++
	r.segments[s.ID] = clone(s)
	return nil
}

func (r *Repository) GetByID(_ context.Context, segmentID id.ID) (*segment.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.segments[segmentID]
	if !ok {
		return nil, apperror.NewNotFound("segments", segmentID.String())
	}
	return clone(s), nil
}

func (r *Repository) List(_ context.Context, q segment.ListQuery) (domain.ListResult[*segment.Segment], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	search := strings.ToLower(q.Search)
	var matched []*segment.Segment
	for _, sid := range r.order {
		s := r.segments[sid]
		if search == "" || strings.Contains(strings.ToLower(s.Name), search) {
			matched = append(matched, clone(s))
		}
	}
	return domain.Paginate(matched, q.Limit, q.Offset), nil
}

func (r *Repository) ListAll(context.Context) ([]*segment.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*segment.Segment, 0, len(r.order))
	for _, sid := range r.order {
		out = append(out, clone(r.segments[sid]))
	}
	return out, nil
}

func (r *Repository) Delete(_ context.Context, segmentID id.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.segments[segmentID]; !ok {
		return apperror.NewNotFound("segments", segmentID.String())
	}
	delete(r.segments, segmentID)
	r.order = slices.DeleteFunc(r.order, func(x id.ID) bool { return x == segmentID })
	return nil
}

func (r *Repository) UpdateSize(_ context.Context, segmentID id.ID, size int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.FailSize[segmentID]; err != nil {
		return err
	}
	s, ok := r.segments[segmentID]
	if !ok {
		return apperror.NewNotFound("segments", segmentID.String())
	}
	s.EstimatedSize = size
	s.SizeComputedAt = &at
	return nil
}

// Snapshots is an in-memory segment.SnapshotStore.
type Snapshots struct {
	mu    sync.Mutex
	snaps map[id.ID]*segment.Snapshot

	Saves int
}

func NewSnapshots() *Snapshots {
	return &Snapshots{snaps: make(map[id.ID]*segment.Snapshot)}
}

func (s *Snapshots) Save(_ context.Context, snap *segment.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *snap
	c.MemberIDs = slices.Clone(snap.MemberIDs)
	s.snaps[snap.SegmentID] = &c
	s.Saves++
	return nil
}

func (s *Snapshots) Load(_ context.Context, segmentID id.ID) (*segment.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[segmentID]
	if !ok {
		return nil, apperror.NewNotFound("segment_snapshots", segmentID.String())
	}
	c := *snap
	c.MemberIDs = slices.Clone(snap.MemberIDs)
	return &c, nil
}

var (
	_ segment.Repository    = (*Repository)(nil)
	_ segment.SnapshotStore = (*Snapshots)(nil)
)
