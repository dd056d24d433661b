package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"audience/internal/core/apperror"
	"audience/internal/core/id"
	"audience/internal/domain"
	"audience/internal/domain/filter"
	"audience/internal/domain/profile"
	"audience/internal/infrastructure/http/v1/dto"
)

// ProfileService is the part of profile.Service the handlers use.
type ProfileService interface {
	Create(ctx context.Context, p *profile.Profile) error
	Update(ctx context.Context, p *profile.Profile) error
	Get(ctx context.Context, profileID id.ID) (*profile.Profile, error)
	Delete(ctx context.Context, profileID id.ID) error
	List(ctx context.Context, q profile.Query) (domain.ListResult[*profile.Profile], error)
	Export(ctx context.Context, c filter.Criteria, format profile.ExportFormat, w io.Writer) (int, error)
	CustomFieldKeys(ctx context.Context) ([]string, error)
}

// ProfileHandler serves /profiles.
type ProfileHandler struct {
	*BaseHandler
	service ProfileService
	now     func() time.Time
}

func NewProfileHandler(base *BaseHandler, service ProfileService) *ProfileHandler {
	return &ProfileHandler{BaseHandler: base, service: service, now: time.Now}
}

// List handles GET /profiles. The filter parameter holds criteria JSON;
// type and search override its profileType and searchTerm.
func (h *ProfileHandler) List(c *gin.Context) {
	var q dto.ListProfilesQuery
	if !h.BindQuery(c, &q) {
		return
	}

	var req dto.CriteriaRequest
	if q.Filter != "" {
		if err := json.Unmarshal([]byte(q.Filter), &req); err != nil {
			h.Error(c, apperror.NewInvalidFilter("filter must be criteria JSON").WithDetail("error", err.Error()))
			return
		}
	}
	if q.Type != "" {
		req.ProfileType = q.Type
	}
	if q.Search != "" {
		req.SearchTerm = q.Search
	}
	if !h.ValidateStruct(c, &req) {
		return
	}

	h.list(c, req.ToCriteria(), q.PageQuery)
}

// Search handles POST /profiles/search with the criteria in the body.
func (h *ProfileHandler) Search(c *gin.Context) {
	var req dto.SearchProfilesRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.list(c, req.Criteria.ToCriteria(), req.PageQuery)
}

// list evaluates criteria as given. Conditions the engine cannot apply match
// nothing, so an incomplete filter narrows the page rather than failing it.
func (h *ProfileHandler) list(c *gin.Context, criteria filter.Criteria, page dto.PageQuery) {
	res, err := h.service.List(c.Request.Context(), profile.Query{
		Criteria: criteria,
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.MapList(res, dto.FromProfile))
}

// Get handles GET /profiles/:id.
func (h *ProfileHandler) Get(c *gin.Context) {
	profileID, ok := h.ParseID(c)
	if !ok {
		return
	}
	p, err := h.service.Get(c.Request.Context(), profileID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromProfile(p))
}

// Create handles POST /profiles.
func (h *ProfileHandler) Create(c *gin.Context) {
	var req dto.CreateProfileRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p := req.ToDomain()
	if err := h.service.Create(c.Request.Context(), p); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromProfile(p))
}

// Update handles PUT /profiles/:id. The body carries the version it was read at.
func (h *ProfileHandler) Update(c *gin.Context) {
	profileID, ok := h.ParseID(c)
	if !ok {
		return
	}
	var req dto.UpdateProfileRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	p, err := h.service.Get(ctx, profileID)
	if err != nil {
		h.Error(c, err)
		return
	}
	req.ApplyTo(p)

	if err := h.service.Update(ctx, p); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromProfile(p))
}

// Delete handles DELETE /profiles/:id. The profile is marked Inactive.
func (h *ProfileHandler) Delete(c *gin.Context) {
	profileID, ok := h.ParseID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), profileID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Fields handles GET /profiles/fields.
func (h *ProfileHandler) Fields(c *gin.Context) {
	keys, err := h.service.CustomFieldKeys(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FieldsResponse{Standard: profile.StandardFields, Custom: keys})
}

// Export handles POST /profiles/export?format=csv|xlsx with optional criteria body.
func (h *ProfileHandler) Export(c *gin.Context) {
	var q dto.ExportQuery
	if !h.BindQuery(c, &q) {
		return
	}
	format, err := profile.ParseExportFormat(q.Format)
	if err != nil {
		h.Error(c, apperror.NewValidation(err.Error()))
		return
	}

	var req dto.CriteriaRequest
	if c.Request.ContentLength != 0 {
		if !h.BindJSON(c, &req) {
			return
		}
	}
	criteria := req.ToCriteria()

	// Buffered so a failed export still renders as a JSON error.
	var buf bytes.Buffer
	count, err := h.service.Export(c.Request.Context(), criteria, format, &buf)
	if err != nil {
		h.Error(c, err)
		return
	}

	filename := fmt.Sprintf("profiles-%s.%s", h.now().UTC().Format("20060102-150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("X-Export-Count", strconv.Itoa(count))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}
