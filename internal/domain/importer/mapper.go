package importer

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"audience/internal/domain/filter"
	"audience/internal/domain/profile"
)

// RowError describes a rejected row.
type RowError struct {
	Line    int    `json:"line"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("line %d, column %s: %s", e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// MapRow converts a data row into an incoming profile. Blank cells are not
// carried, so they never overwrite stored values on merge.
func MapRow(cols []Column, row Row, defaultStatus profile.Status) (profile.Incoming, *RowError) {
	p := profile.New()
	p.Source = "import"
	p.Status = defaultStatus
	present := profile.NewFieldSet()

	fail := func(col Column, msg string) (profile.Incoming, *RowError) {
		return profile.Incoming{}, &RowError{Line: row.Line, Column: col.Header, Message: msg}
	}

	for i, col := range cols {
		if col.Ignored || i >= len(row.Cells) {
			continue
		}
		v := strings.TrimSpace(row.Cells[i])
		if v == "" {
			continue
		}

		if col.Custom {
			p.CustomFields[col.Field] = v
			present[profile.FieldCustomFields] = struct{}{}
			continue
		}

		switch col.Field {
		case profile.FieldFirstName:
			p.FirstName = v
		case profile.FieldLastName:
			p.LastName = v
		case profile.FieldEmail:
			p.Email = &v
		case profile.FieldMobile:
			p.Mobile = &v
		case profile.FieldCountry:
			p.Country = &v
		case profile.FieldStatus:
			st, ok := profile.ParseStatus(v)
			if !ok {
				return fail(col, fmt.Sprintf("unknown status %q", v))
			}
			p.Status = st
		case profile.FieldLifetimeValue:
			d, err := decimal.NewFromString(strings.TrimPrefix(v, "$"))
			if err != nil {
				return fail(col, fmt.Sprintf("%q is not a number", v))
			}
			p.LifetimeValue = decimal.NewNullDecimal(d)
		case profile.FieldIsSubscribed:
			b, ok := filter.ParseLooseBoolean(strings.ToLower(v))
			if !ok {
				return fail(col, fmt.Sprintf("%q is not yes/no", v))
			}
			p.IsSubscribed = b
		case profile.FieldTags:
			p.Tags = splitTags(v)
		}
		present[col.Field] = struct{}{}
	}

	return profile.Incoming{Profile: p, Present: present}, nil
}

func splitTags(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' })
}
