package profile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audience/internal/core/apperror"
	"audience/internal/domain/filter"
	"audience/internal/domain/profile"
	"audience/internal/domain/profile/profiletest"
)

func TestProfile_Normalize(t *testing.T) {
	p := profile.New()
	p.FirstName = "  Ann "
	p.Email = profile.StringPtr(" Ann@Example.COM ")
	p.Mobile = profile.StringPtr("   ")
	p.Status = "marketing"
	p.Tags = []string{" vip", "vip", "", "beta"}
	p.CustomFields = nil

	p.Normalize()

	assert.Equal(t, "Ann", p.FirstName)
	require.NotNil(t, p.Email)
	assert.Equal(t, "ann@example.com", *p.Email)
	assert.Nil(t, p.Mobile)
	assert.Equal(t, profile.StatusMarketing, p.Status)
	assert.Equal(t, []string{"vip", "beta"}, p.Tags)
	assert.NotNil(t, p.CustomFields)
}

func TestProfile_Validate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(p *profile.Profile)
		wantErr bool
	}{
		{"valid", func(p *profile.Profile) {}, false},
		{"mobile only", func(p *profile.Profile) { p.Email = nil; p.Mobile = profile.StringPtr("+34600111222") }, false},
		{"no contact", func(p *profile.Profile) { p.Email = nil }, true},
		{"bad email", func(p *profile.Profile) { p.Email = profile.StringPtr("not-an-email") }, true},
		{"display name email", func(p *profile.Profile) { p.Email = profile.StringPtr("Ann <ann@example.com>") }, true},
		{"unknown status", func(p *profile.Profile) { p.Status = "Gone" }, true},
		{"tag with separator", func(p *profile.Profile) { p.Tags = []string{"a,b"} }, true},
		{"dotted custom key", func(p *profile.Profile) { p.CustomFields["a.b"] = 1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := profiletest.New("Ann", "ann@example.com")
			tt.mutate(p)

			err := p.Validate(ctx)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperror.CodeValidation, appErr.Code)
		})
	}
}

func TestParseStatus(t *testing.T) {
	st, ok := profile.ParseStatus(" unsubscribed ")
	assert.True(t, ok)
	assert.Equal(t, profile.StatusUnsubscribed, st)

	_, ok = profile.ParseStatus("deleted")
	assert.False(t, ok)
}

func TestProfile_RecordDrivesEngine(t *testing.T) {
	ann := profiletest.New("Ann", "ann@example.com",
		profiletest.WithCountry("Spain"),
		profiletest.WithLTV("250.50"),
		profiletest.WithSubscribed(true),
		profiletest.WithTags("vip", "newsletter"),
		profiletest.WithCustom("company_size", "120"),
	)
	bo := profiletest.New("Bo", "bo@example.com", profiletest.WithStatus(profile.StatusSuppressed))

	cond := func(field, op, value string) filter.Condition {
		return filter.Condition{Field: field, Operator: op, Value: filter.Value(value)}
	}

	tests := []struct {
		name string
		c    filter.Criteria
		want []*profile.Profile
	}{
		{"country", filter.Criteria{Conditions: []filter.Condition{cond("country", "equals", "spain")}}, []*profile.Profile{ann}},
		{"missing country is not_exists", filter.Criteria{Conditions: []filter.Condition{cond("country", "not_exists", "")}}, []*profile.Profile{bo}},
		{"decimal ltv", filter.Criteria{Conditions: []filter.Condition{cond("lifetime_value", "greater_than", "250.4")}}, []*profile.Profile{ann}},
		{"subscribed flag", filter.Criteria{Conditions: []filter.Condition{cond("is_subscribed", "equals", "Yes")}}, []*profile.Profile{ann}},
		{"tag membership", filter.Criteria{Conditions: []filter.Condition{cond("tags", "equals", "vip")}}, []*profile.Profile{ann}},
		{"custom numeric", filter.Criteria{Conditions: []filter.Condition{cond("custom_fields.company_size", "greater_than", "100")}}, []*profile.Profile{ann}},
		{"profile type", filter.Criteria{ProfileType: filter.ProfileTypeSuppressed}, []*profile.Profile{bo}},
		{"search email", filter.Criteria{SearchTerm: "BO@EX"}, []*profile.Profile{bo}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filter.Select([]*profile.Profile{ann, bo}, profile.View, tt.c)
			assert.Equal(t, tt.want, got)
		})
	}
}
