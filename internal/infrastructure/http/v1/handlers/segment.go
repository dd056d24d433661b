package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"audience/internal/core/id"
	"audience/internal/domain"
	"audience/internal/domain/filter"
	"audience/internal/domain/profile"
	"audience/internal/domain/segment"
	"audience/internal/infrastructure/http/v1/dto"
)

// SegmentService is the part of segment.Service the handlers use.
type SegmentService interface {
	Create(ctx context.Context, seg *segment.Segment) error
	Update(ctx context.Context, seg *segment.Segment) error
	Get(ctx context.Context, segmentID id.ID) (*segment.Segment, error)
	List(ctx context.Context, q segment.ListQuery) (domain.ListResult[*segment.Segment], error)
	Delete(ctx context.Context, segmentID id.ID) error
	Preview(ctx context.Context, c filter.Criteria, sample int) (segment.PreviewResult, error)
	Members(ctx context.Context, segmentID id.ID, limit, offset int) (domain.ListResult[*profile.Profile], error)
	CachedMembers(ctx context.Context, segmentID id.ID) (*segment.Snapshot, error)
	Refresh(ctx context.Context, segmentID id.ID) (*segment.Segment, error)
	Overview(ctx context.Context) (segment.Overview, error)
}

// SegmentHandler serves /segments.
type SegmentHandler struct {
	*BaseHandler
	service SegmentService
}

func NewSegmentHandler(base *BaseHandler, service SegmentService) *SegmentHandler {
	return &SegmentHandler{BaseHandler: base, service: service}
}

// List handles GET /segments.
func (h *SegmentHandler) List(c *gin.Context) {
	var q dto.ListSegmentsQuery
	if !h.BindQuery(c, &q) {
		return
	}
	res, err := h.service.List(c.Request.Context(), segment.ListQuery{
		Search: q.Search,
		Limit:  q.Limit,
		Offset: q.Offset,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.MapList(res, dto.FromSegment))
}

// Overview handles GET /segments/overview.
func (h *SegmentHandler) Overview(c *gin.Context) {
	o, err := h.service.Overview(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromOverview(o))
}

// Get handles GET /segments/:id.
func (h *SegmentHandler) Get(c *gin.Context) {
	segmentID, ok := h.ParseID(c)
	if !ok {
		return
	}
	seg, err := h.service.Get(c.Request.Context(), segmentID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSegment(seg))
}

// Create handles POST /segments. The size is computed before the response.
func (h *SegmentHandler) Create(c *gin.Context) {
	var req dto.SegmentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	seg := req.ToDomain()
	if err := h.service.Create(c.Request.Context(), seg); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromSegment(seg))
}

// Update handles PUT /segments/:id.
func (h *SegmentHandler) Update(c *gin.Context) {
	segmentID, ok := h.ParseID(c)
	if !ok {
		return
	}
	var req dto.UpdateSegmentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	seg, err := h.service.Get(ctx, segmentID)
	if err != nil {
		h.Error(c, err)
		return
	}
	req.ApplyTo(seg)

	if err := h.service.Update(ctx, seg); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSegment(seg))
}

// Delete handles DELETE /segments/:id.
func (h *SegmentHandler) Delete(c *gin.Context) {
	segmentID, ok := h.ParseID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), segmentID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Preview handles POST /segments/preview.
func (h *SegmentHandler) Preview(c *gin.Context) {
	var req dto.PreviewRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.Preview(c.Request.Context(), req.Criteria.ToCriteria(), req.Sample)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromPreview(res))
}

// Members handles GET /segments/:id/members, evaluated live.
func (h *SegmentHandler) Members(c *gin.Context) {
	segmentID, ok := h.ParseID(c)
	if !ok {
		return
	}
	var page dto.PageQuery
	if !h.BindQuery(c, &page) {
		return
	}
	res, err := h.service.Members(c.Request.Context(), segmentID, page.Limit, page.Offset)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.MapList(res, dto.FromProfile))
}

// Snapshot handles GET /segments/:id/snapshot.
func (h *SegmentHandler) Snapshot(c *gin.Context) {
	segmentID, ok := h.ParseID(c)
	if !ok {
		return
	}
	snap, err := h.service.CachedMembers(c.Request.Context(), segmentID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSnapshot(snap))
}

// Refresh handles POST /segments/:id/refresh.
func (h *SegmentHandler) Refresh(c *gin.Context) {
	segmentID, ok := h.ParseID(c)
	if !ok {
		return
	}
	seg, err := h.service.Refresh(c.Request.Context(), segmentID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSegment(seg))
}
