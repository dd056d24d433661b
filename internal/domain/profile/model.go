// Package profile holds audience profiles: contact identity, subscription
// state, tags and free-form custom fields.
package profile

import (
	"context"
	"fmt"
	"net/mail"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"audience/internal/core/apperror"
	"audience/internal/core/entity"
	"audience/internal/domain/filter"
)

// Status is the lifecycle state of a profile.
type Status string

const (
	StatusActive       Status = filter.StatusActive
	StatusMarketing    Status = filter.StatusMarketing
	StatusSuppressed   Status = filter.StatusSuppressed
	StatusUnsubscribed Status = filter.StatusUnsubscribed
	StatusInactive     Status = filter.StatusInactive
)

var statuses = []Status{StatusActive, StatusMarketing, StatusSuppressed, StatusUnsubscribed, StatusInactive}

// ParseStatus matches s case-insensitively against the known statuses.
func ParseStatus(s string) (Status, bool) {
	s = strings.TrimSpace(s)
	for _, st := range statuses {
		if strings.EqualFold(s, string(st)) {
			return st, true
		}
	}
	return "", false
}

// Profile is one person in the audience.
type Profile struct {
	entity.Base

	FirstName     string              `db:"first_name" json:"firstName"`
	LastName      string              `db:"last_name" json:"lastName"`
	Email         *string             `db:"email" json:"email"`
	Mobile        *string             `db:"mobile" json:"mobile"`
	Status        Status              `db:"status" json:"status"`
	Country       *string             `db:"country" json:"country"`
	LifetimeValue decimal.NullDecimal `db:"lifetime_value" json:"lifetimeValue"`
	IsSubscribed  bool                `db:"is_subscribed" json:"isSubscribed"`
	Tags          []string            `db:"tags" json:"tags"`
	CustomFields  entity.Attributes   `db:"custom_fields" json:"customFields"`
	Source        string              `db:"source" json:"source"`
}

// New returns a profile with a fresh identity, Active status and empty collections.
func New() *Profile {
	return &Profile{
		Base:         entity.NewBase(),
		Status:       StatusActive,
		Tags:         []string{},
		CustomFields: entity.Attributes{},
		Source:       "manual",
	}
}

// Normalize trims text fields, lowercases the email, blanks become nil and tags are deduplicated.
func (p *Profile) Normalize() {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Email = trimmedOrNil(p.Email)
	if p.Email != nil {
		lower := strings.ToLower(*p.Email)
		p.Email = &lower
	}
	p.Mobile = trimmedOrNil(p.Mobile)
	p.Country = trimmedOrNil(p.Country)
	p.Tags = CleanTags(p.Tags)
	if p.CustomFields == nil {
		p.CustomFields = entity.Attributes{}
	}
	if st, ok := ParseStatus(string(p.Status)); ok {
		p.Status = st
	}
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// CleanTags trims tags, drops blanks and duplicates, keeping first-seen order.
func CleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Validate checks profile invariants.
func (p *Profile) Validate(_ context.Context) error {
	if p.Email == nil && p.Mobile == nil {
		return apperror.NewValidation("profile needs an email or a mobile number")
	}
	if p.Email != nil {
		if addr, err := mail.ParseAddress(*p.Email); err != nil || addr.Address != *p.Email {
			return apperror.NewValidation("email is not a valid address").WithDetail("email", *p.Email)
		}
	}
	if _, ok := ParseStatus(string(p.Status)); !ok {
		return apperror.NewValidation(fmt.Sprintf("unknown status %q", p.Status)).
			WithDetail("allowed", statuses)
	}
	for _, t := range p.Tags {
		if strings.ContainsAny(t, ",;") {
			return apperror.NewValidation("tags must not contain ',' or ';'").WithDetail("tag", t)
		}
	}
	if err := p.CustomFields.ValidateKeys(); err != nil {
		return apperror.NewValidation(err.Error())
	}
	return nil
}

// AddTag appends tag if it is not present yet.
func (p *Profile) AddTag(tag string) {
	if tag = strings.TrimSpace(tag); tag != "" && !slices.Contains(p.Tags, tag) {
		p.Tags = append(p.Tags, tag)
	}
}

// Record is the filter engine view of the profile. Absent columns map to nil.
func (p *Profile) Record() filter.Record {
	return filter.Record{
		"id":             p.ID.String(),
		"first_name":     p.FirstName,
		"last_name":      p.LastName,
		"email":          p.Email,
		"mobile":         p.Mobile,
		"status":         string(p.Status),
		"country":        p.Country,
		"lifetime_value": p.LifetimeValue,
		"is_subscribed":  p.IsSubscribed,
		"tags":           p.Tags,
		"custom_fields":  map[string]any(p.CustomFields),
		"source":         p.Source,
		"created_at":     p.CreatedAt,
		"updated_at":     p.UpdatedAt,
	}
}

// StandardFields lists the record keys that filter conditions can address
// directly. Custom fields are addressed as custom_fields.<key>.
var StandardFields = []string{
	"id", "first_name", "last_name", "email", "mobile", "status", "country",
	"lifetime_value", "is_subscribed", "tags", "source", "created_at", "updated_at",
}

// View adapts *Profile to filter.Select.
func View(p *Profile) filter.Record { return p.Record() }

// StringPtr returns nil for "", otherwise &s.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
