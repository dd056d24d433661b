package profile_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audience/internal/domain/profile"
	"audience/internal/domain/profile/profiletest"
)

func incoming(p *profile.Profile, fields ...string) profile.Incoming {
	return profile.Incoming{Profile: p, Present: profile.NewFieldSet(fields...)}
}

func TestMergeFrom_OnlyCarriedFields(t *testing.T) {
	stored := profiletest.New("Ann", "ann@example.com",
		profiletest.WithCountry("Spain"),
		profiletest.WithSubscribed(true),
		profiletest.WithTags("vip"),
		profiletest.WithCustom("plan", "pro"),
	)

	row := profiletest.New("Annie", "ann@example.com",
		profiletest.WithTags("import-1"),
		profiletest.WithCustom("seats", "4"),
		profiletest.WithMobile("+100"),
	)
	row.LifetimeValue = decimal.NewNullDecimal(decimal.NewFromInt(10))

	stored.MergeFrom(incoming(row, profile.FieldFirstName, profile.FieldEmail, profile.FieldTags))

	assert.Equal(t, "Annie", stored.FirstName)
	assert.Equal(t, "Spain", *stored.Country)
	assert.True(t, stored.IsSubscribed, "is_subscribed column absent, keep stored value")
	assert.False(t, stored.LifetimeValue.Valid, "lifetime_value column absent")
	assert.Equal(t, []string{"vip", "import-1"}, stored.Tags)
	assert.Equal(t, "pro", stored.CustomFields["plan"])
	assert.Equal(t, "4", stored.CustomFields["seats"])
	require.NotNil(t, stored.Mobile)
	assert.Equal(t, "+100", *stored.Mobile)
}

func TestPlanUpsert(t *testing.T) {
	ann := profiletest.New("Ann", "ann@example.com")
	bo := profiletest.New("Bo", "", profiletest.WithMobile("+200"))

	rows := []profile.Incoming{
		incoming(profiletest.New("ANN", "ANN@example.com"), profile.FieldFirstName),
		incoming(profiletest.New("Bo", "bo@example.com", profiletest.WithMobile("+200")), profile.FieldEmail),
		incoming(profiletest.New("Cara", "cara@example.com")),
		incoming(profiletest.New("Cara again", "cara@example.com"), profile.FieldFirstName),
		incoming(profiletest.New("Ann twice", "ann@example.com"), profile.FieldFirstName),
	}

	plan := profile.PlanUpsert([]*profile.Profile{ann, bo}, rows)

	require.Len(t, plan.Inserts, 1)
	assert.Equal(t, "Cara again", plan.Inserts[0].FirstName)

	require.Len(t, plan.Updates, 2)
	assert.Same(t, ann, plan.Updates[0])
	assert.Same(t, bo, plan.Updates[1])
	assert.Equal(t, "Ann twice", ann.FirstName)
	assert.Equal(t, "bo@example.com", *bo.Email, "mobile match fills the missing email")

	assert.Equal(t, 4, plan.Merged)
}
