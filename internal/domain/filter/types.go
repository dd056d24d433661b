// Package filter implements the profile predicate engine used by the profile
// list and by segment membership.
package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Operator is the comparison applied by a Condition.
type Operator uint8

const (
	OpUnknown Operator = iota
	OpEquals
	OpNotEquals
	OpContains
	OpNotContains
	OpStartsWith
	OpEndsWith
	OpGreaterThan
	OpLessThan
	OpExists
	OpNotExists
	OpIsEmpty
)

// operatorSpellings maps every accepted wire spelling to its operator.
// "is" and "is not" are the UI aliases of equals / not_equals.
var operatorSpellings = map[string]Operator{
	"equals":       OpEquals,
	"is":           OpEquals,
	"not_equals":   OpNotEquals,
	"is not":       OpNotEquals,
	"contains":     OpContains,
	"not_contains": OpNotContains,
	"starts_with":  OpStartsWith,
	"ends_with":    OpEndsWith,
	"greater_than": OpGreaterThan,
	"less_than":    OpLessThan,
	"exists":       OpExists,
	"not_exists":   OpNotExists,
	"is_empty":     OpIsEmpty,
}

var operatorNames = [...]string{
	OpUnknown:     "unknown",
	OpEquals:      "equals",
	OpNotEquals:   "not_equals",
	OpContains:    "contains",
	OpNotContains: "not_contains",
	OpStartsWith:  "starts_with",
	OpEndsWith:    "ends_with",
	OpGreaterThan: "greater_than",
	OpLessThan:    "less_than",
	OpExists:      "exists",
	OpNotExists:   "not_exists",
	OpIsEmpty:     "is_empty",
}

// ParseOperator resolves a wire spelling. Unrecognised spellings yield OpUnknown.
func ParseOperator(s string) Operator {
	if op, ok := operatorSpellings[s]; ok {
		return op
	}
	return OpUnknown
}

// String returns the canonical spelling.
func (o Operator) String() string {
	if int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return operatorNames[OpUnknown]
}

// needsValue reports whether the operator compares against Condition.Value.
func (o Operator) needsValue() bool {
	switch o {
	case OpExists, OpNotExists, OpIsEmpty:
		return false
	}
	return true
}

// IsOperator reports whether s is an accepted operator spelling.
func IsOperator(s string) bool {
	_, ok := operatorSpellings[s]
	return ok
}

// Value is the comparison operand of a condition. It is always text; JSON
// numbers and booleans are kept in their literal spelling and null becomes "".
type Value string

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*v = ""
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	case bytes.Equal(b, []byte("true")), bytes.Equal(b, []byte("false")):
		*v = Value(b)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("filter value must be a string, number, boolean or null: %w", err)
	}
	*v = Value(n.String())
	return nil
}

// Condition is one {field, operator, value} predicate as authored in the UI.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    Value  `json:"value"`
}

// Group is an AND-ed set of conditions. Groups are OR-ed together.
type Group struct {
	Conditions []Condition `json:"conditions"`
}

// ProfileType is the coarse status bucket selected by the profile list tabs.
type ProfileType string

const (
	ProfileTypeAll          ProfileType = "all"
	ProfileTypeActive       ProfileType = "active"
	ProfileTypeMarketing    ProfileType = "marketing"
	ProfileTypeSuppressed   ProfileType = "suppressed"
	ProfileTypeUnsubscribed ProfileType = "unsubscribed"
	ProfileTypeDeleted      ProfileType = "deleted"
)

// Canonical profile status literals.
const (
	StatusActive       = "Active"
	StatusMarketing    = "Marketing"
	StatusSuppressed   = "Suppressed"
	StatusUnsubscribed = "Unsubscribed"
	StatusInactive     = "Inactive"
)

var profileTypeStatus = map[ProfileType]string{
	ProfileTypeActive:       StatusActive,
	ProfileTypeMarketing:    StatusMarketing,
	ProfileTypeSuppressed:   StatusSuppressed,
	ProfileTypeUnsubscribed: StatusUnsubscribed,
	ProfileTypeDeleted:      StatusInactive,
}

// IsAll reports whether the bucket imposes no restriction.
func (p ProfileType) IsAll() bool {
	return p == "" || p == ProfileTypeAll
}

// Status returns the status literal selected by the bucket.
func (p ProfileType) Status() (string, bool) {
	s, ok := profileTypeStatus[p]
	return s, ok
}

// Valid reports whether p is a known bucket.
func (p ProfileType) Valid() bool {
	if p.IsAll() {
		return true
	}
	_, ok := profileTypeStatus[p]
	return ok
}

// Criteria is the persisted, shareable filter: conditions, a status bucket
// and a free-text search, combined with AND.
type Criteria struct {
	Conditions  []Condition `json:"conditions"`
	ProfileType ProfileType `json:"profileType"`
	SearchTerm  string      `json:"searchTerm"`

	// Groups are OR-ed; a record must satisfy all conditions of at least one
	// non-empty group. Combined with Conditions by AND.
	Groups []Group `json:"groups,omitempty"`

	// ExcludeDeleted drops Inactive profiles unless the criteria explicitly
	// select them.
	ExcludeDeleted bool `json:"excludeDeleted,omitempty"`
}

// IsEmpty reports whether the criteria impose no restriction at all.
func (c Criteria) IsEmpty() bool {
	return len(c.Conditions) == 0 &&
		c.ProfileType.IsAll() &&
		c.SearchTerm == "" &&
		!hasConditions(c.Groups) &&
		!c.ExcludeDeleted
}

func hasConditions(groups []Group) bool {
	for _, g := range groups {
		if len(g.Conditions) > 0 {
			return true
		}
	}
	return false
}

// NewImportCriteria builds the cohort filter attached to an import batch.
func NewImportCriteria(tag string) Criteria {
	return Criteria{
		Conditions: []Condition{
			{Field: TagsField, Operator: "contains", Value: Value(tag)},
		},
		ProfileType: ProfileTypeAll,
	}
}
