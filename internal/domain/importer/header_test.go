package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"First Name":          "first_name",
		"  first-name ":       "first_name",
		"E-Mail":              "e_mail",
		"Phone #":             "phone",
		"custom_fields.plan":  "custom_fields.plan",
		"Company  Size (FTE)": "company_size_fte",
		"":                    "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeHeader(in), in)
	}
}

func TestResolveColumns(t *testing.T) {
	cols := ResolveColumns([]string{"ID", "First Name", "Phone", "custom_fields.plan", "Company Size", "", "Subscribed"})

	assert.Equal(t, []Column{
		{Header: "ID", Field: "id", Ignored: true},
		{Header: "First Name", Field: "first_name"},
		{Header: "Phone", Field: "mobile"},
		{Header: "custom_fields.plan", Field: "plan", Custom: true},
		{Header: "Company Size", Field: "company_size", Custom: true},
		{Header: "", Ignored: true},
		{Header: "Subscribed", Field: "is_subscribed"},
	}, cols)
	assert.True(t, hasContactColumn(cols))
	assert.False(t, hasContactColumn(ResolveColumns([]string{"name", "country"})))
}
