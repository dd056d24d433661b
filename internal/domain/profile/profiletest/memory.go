// Package profiletest provides an in-memory profile.Repository for tests.
package profiletest

import (
	"context"
	"maps"
	"slices"
	"sync"

	"audience/internal/core/apperror"
	"audience/internal/core/id"
	"audience/internal/domain/profile"
)

// Repository keeps profiles in insertion order. Safe for concurrent use.
type Repository struct {
	mu       sync.Mutex
	order    []id.ID
	profiles map[id.ID]*profile.Profile

	// Err, when set, is returned by every method.
	Err error
	// ListCalls counts ListAll invocations.
	ListCalls int
}

func NewRepository(seed ...*profile.Profile) *Repository {
	r := &Repository{profiles: make(map[id.ID]*profile.Profile)}
	for _, p := range seed {
		r.order = append(r.order, p.ID)
		r.profiles[p.ID] = p
	}
	return r
}

func clone(p *profile.Profile) *profile.Profile {
	c := *p
	c.Tags = slices.Clone(p.Tags)
	c.CustomFields = p.CustomFields.Clone()
	return &c
}

func (r *Repository) Create(_ context.Context, p *profile.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, dup := r.profiles[p.ID]; dup {
		return apperror.NewDuplicate("profile", "id", p.ID.String())
	}
	r.order = append(r.order, p.ID)
	r.profiles[p.ID] = clone(p)
	return nil
}

func (r *Repository) Update(_ context.Context, p *profile.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	cur, ok := r.profiles[p.ID]
	if !ok {
		return apperror.NewNotFound("profiles", p.ID.String())
	}
	if cur.Version != p.Version {
		return apperror.NewConcurrentModification("profiles", p.ID.String())
	}
	p.Version++
	r.profiles[p.ID] = clone(p)
	return nil
}

func (r *Repository) GetByID(_ context.Context, profileID id.ID) (*profile.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	p, ok := r.profiles[profileID]
	if !ok {
		return nil, apperror.NewNotFound("profiles", profileID.String())
	}
	return clone(p), nil
}

func (r *Repository) ListAll(context.Context) ([]*profile.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ListCalls++
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]*profile.Profile, 0, len(r.order))
	for _, pid := range r.order {
		out = append(out, clone(r.profiles[pid]))
	}
	return out, nil
}

func (r *Repository) SetStatus(_ context.Context, profileID id.ID, status profile.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	p, ok := r.profiles[profileID]
	if !ok {
		return apperror.NewNotFound("profiles", profileID.String())
	}
	p.Status = status
	p.Version++
	return nil
}

func (r *Repository) Upsert(ctx context.Context, rows []profile.Incoming) (profile.UpsertResult, error) {
	existing, err := r.ListAll(ctx)
	if err != nil {
		return profile.UpsertResult{}, err
	}

	plan := profile.PlanUpsert(existing, rows)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range plan.Inserts {
		r.order = append(r.order, p.ID)
		r.profiles[p.ID] = clone(p)
	}
	for _, p := range plan.Updates {
		p.Version++
		r.profiles[p.ID] = clone(p)
	}
	return profile.UpsertResult{Inserted: len(plan.Inserts), Updated: plan.Merged}, nil
}

func (r *Repository) CustomFieldKeys(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	keys := make(map[string]struct{})
	for _, p := range r.profiles {
		for k := range p.CustomFields {
			keys[k] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(keys)), nil
}

var _ profile.Repository = (*Repository)(nil)
