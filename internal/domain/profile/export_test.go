package profile_test

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"audience/internal/domain/profile"
	"audience/internal/domain/profile/profiletest"
)

func exportFixtures() []*profile.Profile {
	return []*profile.Profile{
		profiletest.New("Ann", "ann@example.com",
			profiletest.WithTags("vip", "beta"),
			profiletest.WithLTV("12.50"),
			profiletest.WithCustom("plan", "pro"),
		),
		profiletest.New("Bo", "bo@example.com",
			profiletest.WithSubscribed(true),
			profiletest.WithCustom("company", "Initech"),
		),
	}
}

func TestParseExportFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    profile.ExportFormat
		wantErr bool
	}{
		{"", profile.FormatCSV, false},
		{"CSV", profile.FormatCSV, false},
		{" xlsx ", profile.FormatXLSX, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := profile.ParseExportFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExportHeader(t *testing.T) {
	header := profile.ExportHeader(exportFixtures())
	assert.Equal(t, []string{
		"id", "first_name", "last_name", "email", "mobile", "status",
		"country", "lifetime_value", "is_subscribed", "tags",
		"company", "plan",
	}, header)
}

func TestWriteExport_CSV(t *testing.T) {
	profiles := exportFixtures()

	var buf bytes.Buffer
	require.NoError(t, profile.WriteExport(&buf, profile.FormatCSV, profiles))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{
		profiles[0].ID.String(), "Ann", "", "ann@example.com", "", "Active",
		"", "12.5", "false", "vip;beta", "", "pro",
	}, rows[1])
	assert.Equal(t, "true", rows[2][8])
	assert.Equal(t, "Initech", rows[2][10])
}

func TestWriteExport_XLSX(t *testing.T) {
	profiles := exportFixtures()

	var buf bytes.Buffer
	require.NoError(t, profile.WriteExport(&buf, profile.FormatXLSX, profiles))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Profiles"}, f.GetSheetList())

	rows, err := f.GetRows("Profiles")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "email", rows[0][3])
	assert.Equal(t, "bo@example.com", rows[2][3])
}
