package importer

import (
	"strings"
	"unicode"

	"audience/internal/domain/profile"
)

// headerAliases maps normalised spreadsheet headers onto profile fields.
var headerAliases = map[string]string{
	"first_name": profile.FieldFirstName,
	"firstname":  profile.FieldFirstName,
	"first":      profile.FieldFirstName,
	"given_name": profile.FieldFirstName,
	"name":       profile.FieldFirstName,

	"last_name":   profile.FieldLastName,
	"lastname":    profile.FieldLastName,
	"last":        profile.FieldLastName,
	"surname":     profile.FieldLastName,
	"family_name": profile.FieldLastName,

	"email":         profile.FieldEmail,
	"e_mail":        profile.FieldEmail,
	"email_address": profile.FieldEmail,

	"mobile":        profile.FieldMobile,
	"mobile_number": profile.FieldMobile,
	"phone":         profile.FieldMobile,
	"phone_number":  profile.FieldMobile,
	"cell":          profile.FieldMobile,

	"status": profile.FieldStatus,

	"country": profile.FieldCountry,

	"lifetime_value": profile.FieldLifetimeValue,
	"ltv":            profile.FieldLifetimeValue,

	"is_subscribed": profile.FieldIsSubscribed,
	"subscribed":    profile.FieldIsSubscribed,
	"subscription":  profile.FieldIsSubscribed,

	"tags": profile.FieldTags,
	"tag":  profile.FieldTags,
}

// ignoredColumns are written by profile export but never imported.
var ignoredColumns = map[string]bool{
	"id":         true,
	"source":     true,
	"version":    true,
	"created_at": true,
	"updated_at": true,
}

const customPrefix = profile.FieldCustomFields + "."

// Column is one header cell resolved to its destination.
type Column struct {
	Header string `json:"header"`
	// Field is a profile field name, or the custom field key when Custom is set.
	Field  string `json:"field"`
	Custom bool   `json:"custom"`
	// Ignored columns are read but never stored.
	Ignored bool `json:"ignored"`
}

// NormalizeHeader lowercases h and collapses every run of non-alphanumeric
// characters into a single underscore. "First Name" and "first-name" both
// become "first_name".
func NormalizeHeader(h string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(strings.ToLower(h)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// ResolveColumns maps a header row. Unknown headers become custom fields keyed
// by their normalised name; "custom_fields.<key>" headers keep the bare key.
func ResolveColumns(header []string) []Column {
	cols := make([]Column, len(header))
	for i, h := range header {
		norm := NormalizeHeader(h)
		col := Column{Header: h}

		switch {
		case norm == "":
			col.Ignored = true
		case ignoredColumns[norm]:
			col.Field = norm
			col.Ignored = true
		case strings.HasPrefix(norm, customPrefix):
			col.Field = strings.TrimPrefix(norm, customPrefix)
			col.Custom = true
			col.Ignored = col.Field == ""
		default:
			if field, ok := headerAliases[norm]; ok {
				col.Field = field
			} else {
				col.Field = strings.ReplaceAll(norm, ".", "_")
				col.Custom = true
			}
		}
		cols[i] = col
	}
	return cols
}

// hasContactColumn reports whether any column can identify a profile.
func hasContactColumn(cols []Column) bool {
	for _, c := range cols {
		if !c.Custom && !c.Ignored && (c.Field == profile.FieldEmail || c.Field == profile.FieldMobile) {
			return true
		}
	}
	return false
}
