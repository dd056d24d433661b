// Package segment stores named filter criteria with a cached audience size
// and a membership snapshot taken at the last refresh.
package segment

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"audience/internal/core/apperror"
	"audience/internal/core/entity"
	"audience/internal/core/id"
	"audience/internal/domain/filter"
)

// Source tells how a segment came to exist.
type Source string

const (
	SourceManual Source = "manual"
	SourceImport Source = "import"
)

const maxNameLength = 200

// Segment is a saved, shareable audience definition.
type Segment struct {
	entity.Base

	Name          string          `db:"name" json:"name"`
	Description   string          `db:"description" json:"description"`
	Criteria      filter.Criteria `db:"criteria" json:"criteria"`
	EstimatedSize int             `db:"estimated_size" json:"estimatedSize"`
	// SizeComputedAt is nil until the first evaluation.
	SizeComputedAt *time.Time `db:"size_computed_at" json:"sizeComputedAt"`
	Source         Source     `db:"source" json:"source"`
	CreatedBy      *string    `db:"created_by" json:"createdBy"`
}

// New returns a manual segment with a fresh identity.
func New(name string, c filter.Criteria) *Segment {
	return &Segment{
		Base:     entity.NewBase(),
		Name:     name,
		Criteria: c,
		Source:   SourceManual,
	}
}

func (s *Segment) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.Description = strings.TrimSpace(s.Description)
	if s.Source == "" {
		s.Source = SourceManual
	}
	if s.Criteria.ProfileType == "" {
		s.Criteria.ProfileType = filter.ProfileTypeAll
	}
}

// Validate checks the name and source, then the criteria.
func (s *Segment) Validate(_ context.Context) error {
	if s.Name == "" {
		return apperror.NewValidation("segment name is required")
	}
	if utf8.RuneCountInString(s.Name) > maxNameLength {
		return apperror.NewValidation("segment name is too long").WithDetail("max", maxNameLength)
	}
	if s.Source != SourceManual && s.Source != SourceImport {
		return apperror.NewValidation("unknown segment source").WithDetail("source", s.Source)
	}
	return s.Criteria.Validate()
}

// SetSize records an evaluation result.
func (s *Segment) SetSize(size int, at time.Time) {
	s.EstimatedSize = size
	s.SizeComputedAt = &at
}

// Snapshot is the member list captured by the last refresh.
type Snapshot struct {
	SegmentID  id.ID     `json:"segmentId"`
	MemberIDs  []id.ID   `json:"memberIds"`
	ComputedAt time.Time `json:"computedAt"`
}

// Size is the number of members in the snapshot.
func (s *Snapshot) Size() int { return len(s.MemberIDs) }
