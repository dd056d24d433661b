package profiletest

import (
	"github.com/shopspring/decimal"

	"audience/internal/core/entity"
	"audience/internal/domain/profile"
)

// Option customizes a fixture profile.
type Option func(*profile.Profile)

// New builds a valid profile with the given email.
func New(first, email string, opts ...Option) *profile.Profile {
	p := profile.New()
	p.FirstName = first
	p.Email = profile.StringPtr(email)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func WithStatus(s profile.Status) Option {
	return func(p *profile.Profile) { p.Status = s }
}

func WithTags(tags ...string) Option {
	return func(p *profile.Profile) { p.Tags = tags }
}

func WithCountry(c string) Option {
	return func(p *profile.Profile) { p.Country = profile.StringPtr(c) }
}

func WithLTV(v string) Option {
	return func(p *profile.Profile) {
		p.LifetimeValue = decimal.NewNullDecimal(decimal.RequireFromString(v))
	}
}

func WithSubscribed(v bool) Option {
	return func(p *profile.Profile) { p.IsSubscribed = v }
}

func WithCustom(key string, value any) Option {
	return func(p *profile.Profile) {
		if p.CustomFields == nil {
			p.CustomFields = entity.Attributes{}
		}
		p.CustomFields[key] = value
	}
}

func WithMobile(m string) Option {
	return func(p *profile.Profile) { p.Mobile = profile.StringPtr(m) }
}
