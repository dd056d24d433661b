package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"audience/internal/core/entity"
	"audience/internal/domain/profile"
)

// ListProfilesQuery is the query string of GET /profiles. Filter holds
// criteria JSON; Type and Search override its profileType and searchTerm.
type ListProfilesQuery struct {
	PageQuery
	Filter string `form:"filter"`
	Type   string `form:"type" binding:"omitempty,profile_type"`
	Search string `form:"search" binding:"max=200"`
}

// SearchProfilesRequest is the body of POST /profiles/search.
type SearchProfilesRequest struct {
	Criteria CriteriaRequest `json:"criteria"`
	PageQuery
}

// ProfileRequest carries the writable profile fields.
type ProfileRequest struct {
	FirstName     string           `json:"firstName" binding:"max=200"`
	LastName      string           `json:"lastName" binding:"max=200"`
	Email         *string          `json:"email" binding:"omitempty,max=320"`
	Mobile        *string          `json:"mobile" binding:"omitempty,max=32"`
	Status        string           `json:"status"`
	Country       *string          `json:"country" binding:"omitempty,max=100"`
	LifetimeValue *decimal.Decimal `json:"lifetimeValue"`
	IsSubscribed  bool             `json:"isSubscribed"`
	Tags          []string         `json:"tags" binding:"omitempty,max=100,dive,max=100"`
	CustomFields  map[string]any   `json:"customFields"`
}

// CreateProfileRequest is the body of POST /profiles.
type CreateProfileRequest struct {
	ProfileRequest
}

// ToDomain builds a new profile.
func (r CreateProfileRequest) ToDomain() *profile.Profile {
	p := profile.New()
	r.apply(p)
	return p
}

// UpdateProfileRequest is the body of PUT /profiles/:id.
type UpdateProfileRequest struct {
	ProfileRequest
	Version int `json:"version" binding:"required,min=1"`
}

// ApplyTo replaces the writable fields of p.
func (r UpdateProfileRequest) ApplyTo(p *profile.Profile) {
	r.apply(p)
	p.Version = r.Version
}

func (r ProfileRequest) apply(p *profile.Profile) {
	p.FirstName = r.FirstName
	p.LastName = r.LastName
	p.Email = r.Email
	p.Mobile = r.Mobile
	if r.Status != "" {
		p.Status = profile.Status(r.Status)
	}
	p.Country = r.Country
	p.LifetimeValue = decimal.NullDecimal{}
	if r.LifetimeValue != nil {
		p.LifetimeValue = decimal.NewNullDecimal(*r.LifetimeValue)
	}
	p.IsSubscribed = r.IsSubscribed
	p.Tags = append([]string{}, r.Tags...)
	p.CustomFields = entity.Attributes(r.CustomFields)
}

// ProfileResponse is the API view of a profile.
type ProfileResponse struct {
	ID            string            `json:"id"`
	Version       int               `json:"version"`
	FirstName     string            `json:"firstName"`
	LastName      string            `json:"lastName"`
	Email         *string           `json:"email"`
	Mobile        *string           `json:"mobile"`
	Status        string            `json:"status"`
	Country       *string           `json:"country"`
	LifetimeValue *string           `json:"lifetimeValue"`
	IsSubscribed  bool              `json:"isSubscribed"`
	Tags          []string          `json:"tags"`
	CustomFields  entity.Attributes `json:"customFields"`
	Source        string            `json:"source"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// FromProfile creates ProfileResponse from the domain model.
func FromProfile(p *profile.Profile) ProfileResponse {
	resp := ProfileResponse{
		ID:           p.ID.String(),
		Version:      p.Version,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Email:        p.Email,
		Mobile:       p.Mobile,
		Status:       string(p.Status),
		Country:      p.Country,
		IsSubscribed: p.IsSubscribed,
		Tags:         p.Tags,
		CustomFields: p.CustomFields,
		Source:       p.Source,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if p.LifetimeValue.Valid {
		v := p.LifetimeValue.Decimal.String()
		resp.LifetimeValue = &v
	}
	return resp
}

// FieldsResponse lists the filterable fields of the tenant.
type FieldsResponse struct {
	Standard []string `json:"standard"`
	Custom   []string `json:"custom"`
}
