// Package entity provides building blocks shared by stored entities.
package entity

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Attributes is a JSONB object of user-defined fields.
// Numbers decode as json.Number so large or decimal values survive a round-trip.
type Attributes map[string]any

// Scan implements sql.Scanner for JSONB columns.
func (a *Attributes) Scan(src any) error {
	var source []byte
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		source = v
	case string:
		source = []byte(v)
	default:
		return fmt.Errorf("unsupported type for Attributes: %T", src)
	}

	if len(bytes.TrimSpace(source)) == 0 {
		*a = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(source))
	dec.UseNumber()

	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return fmt.Errorf("decode attributes: %w", err)
	}
	*a = out
	return nil
}

// Value implements driver.Valuer. A nil map is stored as an empty object.
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	return slices.Sorted(maps.Keys(a))
}

// GetString returns the value under key rendered as text, or "".
func (a Attributes) GetString(key string) string {
	switch v := a[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Merge copies every entry of other into a, overwriting existing keys.
func (a *Attributes) Merge(other Attributes) {
	if len(other) == 0 {
		return
	}
	if *a == nil {
		*a = make(Attributes, len(other))
	}
	maps.Copy(*a, other)
}

// Clone creates a shallow copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	return maps.Clone(a)
}

// ValidateKeys rejects blank keys and keys containing '.', which would make
// custom_fields.<key> references ambiguous.
func (a Attributes) ValidateKeys() error {
	for k := range a {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("custom field name must not be blank")
		}
		if strings.Contains(k, ".") {
			return fmt.Errorf("custom field name %q must not contain '.'", k)
		}
	}
	return nil
}
