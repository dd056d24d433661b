package filter

import "strings"

// Record is the engine view of a profile: field name to value.
type Record map[string]any

// Well-known record fields.
const (
	TagsField         = "tags"
	CustomFieldsField = "custom_fields"
	StatusField       = "status"

	customFieldPrefix = CustomFieldsField + "."
)

// FieldKind tells how a FieldRef addresses a record.
type FieldKind uint8

const (
	FieldDirect FieldKind = iota
	FieldTags
	FieldCustom
)

// FieldRef is a parsed condition field: a direct field, the tags array, or a
// key inside custom_fields.
type FieldRef struct {
	Kind FieldKind
	Name string
}

// ParseFieldRef classifies a condition field.
func ParseFieldRef(field string) FieldRef {
	switch {
	case field == TagsField:
		return FieldRef{Kind: FieldTags, Name: TagsField}
	case strings.HasPrefix(field, customFieldPrefix):
		return FieldRef{Kind: FieldCustom, Name: strings.TrimPrefix(field, customFieldPrefix)}
	default:
		return FieldRef{Kind: FieldDirect, Name: field}
	}
}

// String returns the field spelling the ref was parsed from.
func (f FieldRef) String() string {
	if f.Kind == FieldCustom {
		return customFieldPrefix + f.Name
	}
	return f.Name
}

// Resolve returns the addressed value, or nil when it is absent.
func (f FieldRef) Resolve(r Record) any {
	switch f.Kind {
	case FieldTags:
		return r[TagsField]
	case FieldCustom:
		return lookupKey(r[CustomFieldsField], f.Name)
	default:
		return r[f.Name]
	}
}

func lookupKey(container any, key string) any {
	switch m := container.(type) {
	case map[string]any:
		return m[key]
	case Record:
		return m[key]
	case map[string]string:
		if s, ok := m[key]; ok {
			return s
		}
	}
	return nil
}
