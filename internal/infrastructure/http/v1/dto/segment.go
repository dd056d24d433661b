package dto

import (
	"time"

	"audience/internal/domain/filter"
	"audience/internal/domain/segment"
)

// SegmentRequest carries the writable segment fields.
type SegmentRequest struct {
	Name        string                 `json:"name" binding:"required,max=200"`
	Description string                 `json:"description" binding:"max=2000"`
	Criteria    SegmentCriteriaRequest `json:"criteria"`
}

// ToDomain builds a new segment.
func (r SegmentRequest) ToDomain() *segment.Segment {
	s := segment.New(r.Name, r.Criteria.ToCriteria())
	s.Description = r.Description
	return s
}

// UpdateSegmentRequest is the body of PUT /segments/:id.
type UpdateSegmentRequest struct {
	SegmentRequest
	Version int `json:"version" binding:"required,min=1"`
}

// ApplyTo replaces the writable fields of s.
func (r UpdateSegmentRequest) ApplyTo(s *segment.Segment) {
	s.Name = r.Name
	s.Description = r.Description
	s.Criteria = r.Criteria.ToCriteria()
	s.Version = r.Version
}

// ListSegmentsQuery is the query string of GET /segments.
type ListSegmentsQuery struct {
	PageQuery
	Search string `form:"search" binding:"max=200"`
}

// PreviewRequest is the body of POST /segments/preview.
type PreviewRequest struct {
	Criteria SegmentCriteriaRequest `json:"criteria"`
	Sample   int                    `json:"sample" binding:"min=0,max=100"`
}

// SegmentResponse is the API view of a segment.
type SegmentResponse struct {
	ID             string          `json:"id"`
	Version        int             `json:"version"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Criteria       filter.Criteria `json:"criteria"`
	EstimatedSize  int             `json:"estimatedSize"`
	SizeComputedAt *time.Time      `json:"sizeComputedAt"`
	Source         string          `json:"source"`
	CreatedBy      *string         `json:"createdBy"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// FromSegment creates SegmentResponse from the domain model.
func FromSegment(s *segment.Segment) SegmentResponse {
	return SegmentResponse{
		ID:             s.ID.String(),
		Version:        s.Version,
		Name:           s.Name,
		Description:    s.Description,
		Criteria:       s.Criteria,
		EstimatedSize:  s.EstimatedSize,
		SizeComputedAt: s.SizeComputedAt,
		Source:         string(s.Source),
		CreatedBy:      s.CreatedBy,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// OverviewItemResponse compares stored and live segment size.
type OverviewItemResponse struct {
	Segment  SegmentResponse `json:"segment"`
	LiveSize int             `json:"liveSize"`
	Drift    int             `json:"drift"`
}

// OverviewResponse is the body of GET /segments/overview.
type OverviewResponse struct {
	TotalProfiles int                    `json:"totalProfiles"`
	Segments      []OverviewItemResponse `json:"segments"`
}

// FromOverview converts the segment overview.
func FromOverview(o segment.Overview) OverviewResponse {
	out := OverviewResponse{
		TotalProfiles: o.TotalProfiles,
		Segments:      make([]OverviewItemResponse, 0, len(o.Segments)),
	}
	for _, it := range o.Segments {
		out.Segments = append(out.Segments, OverviewItemResponse{
			Segment:  FromSegment(it.Segment),
			LiveSize: it.LiveSize,
			Drift:    it.Drift,
		})
	}
	return out
}

// PreviewResponse reports the size of unsaved criteria.
type PreviewResponse struct {
	Size   int               `json:"size"`
	Sample []ProfileResponse `json:"sample"`
}

// FromPreview converts a preview result.
func FromPreview(r segment.PreviewResult) PreviewResponse {
	out := PreviewResponse{Size: r.Size, Sample: make([]ProfileResponse, 0, len(r.Sample))}
	for _, p := range r.Sample {
		out.Sample = append(out.Sample, FromProfile(p))
	}
	return out
}

// SnapshotResponse is the membership recorded at the last refresh.
type SnapshotResponse struct {
	SegmentID  string    `json:"segmentId"`
	Size       int       `json:"size"`
	MemberIDs  []string  `json:"memberIds"`
	ComputedAt time.Time `json:"computedAt"`
}

// FromSnapshot converts a stored snapshot.
func FromSnapshot(s *segment.Snapshot) SnapshotResponse {
	ids := make([]string, 0, len(s.MemberIDs))
	for _, m := range s.MemberIDs {
		ids = append(ids, m.String())
	}
	return SnapshotResponse{
		SegmentID:  s.SegmentID.String(),
		Size:       s.Size(),
		MemberIDs:  ids,
		ComputedAt: s.ComputedAt,
	}
}
