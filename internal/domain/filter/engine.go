package filter

import (
	"slices"
	"strings"
)

// Apply returns the records satisfying every layer of c, in input order.
// Neither records nor c are modified.
func Apply(records []Record, c Criteria) []Record {
	return Select(records, func(r Record) Record { return r }, c)
}

// Select filters caller-owned items through their Record view.
func Select[T any](items []T, view func(T) Record, c Criteria) []T {
	m := Compile(c)
	out := make([]T, 0, len(items))
	for _, item := range items {
		if m.Match(view(item)) {
			out = append(out, item)
		}
	}
	return out
}

// EvaluateCondition reports whether a single condition holds for r.
func EvaluateCondition(r Record, c Condition) bool {
	return compileCondition(c).eval(r)
}

// Matcher is a compiled Criteria. It is immutable and safe for concurrent use.
type Matcher struct {
	typeStatus   string
	restrictType bool
	rejectAll    bool

	search string

	conditions []compiledCondition
	groups     [][]compiledCondition

	excludeDeleted bool
}

// Compile parses c once so it can be matched against many records.
func Compile(c Criteria) *Matcher {
	m := &Matcher{
		search:     strings.ToLower(c.SearchTerm),
		conditions: compileAll(c.Conditions),
	}

	if !c.ProfileType.IsAll() {
		status, ok := c.ProfileType.Status()
		m.restrictType = true
		m.typeStatus = status
		m.rejectAll = !ok
	}

	for _, g := range c.Groups {
		if len(g.Conditions) == 0 {
			continue
		}
		m.groups = append(m.groups, compileAll(g.Conditions))
	}

	m.excludeDeleted = c.ExcludeDeleted && !targetsDeleted(c)
	return m
}

// Match reports whether r passes the type, search and condition layers.
func (m *Matcher) Match(r Record) bool {
	if m.rejectAll {
		return false
	}

	if m.restrictType {
		status := normalize(r[StatusField])
		if status == nil || stringify(status) != m.typeStatus {
			return false
		}
	}

	if m.search != "" && !strings.Contains(searchText(r), m.search) {
		return false
	}

	for _, cc := range m.conditions {
		if !cc.eval(r) {
			return false
		}
	}

	if len(m.groups) > 0 && !m.matchAnyGroup(r) {
		return false
	}

	if m.excludeDeleted && strings.EqualFold(stringify(normalize(r[StatusField])), StatusInactive) {
		return false
	}

	return true
}

func (m *Matcher) matchAnyGroup(r Record) bool {
	for _, group := range m.groups {
		matched := true
		for _, cc := range group {
			if !cc.eval(r) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func searchText(r Record) string {
	parts := [4]string{
		stringify(normalize(r["first_name"])),
		stringify(normalize(r["last_name"])),
		stringify(normalize(r["email"])),
		stringify(normalize(r["mobile"])),
	}
	return strings.ToLower(strings.Join(parts[:], " "))
}

// targetsDeleted reports whether the criteria explicitly ask for deleted profiles.
func targetsDeleted(c Criteria) bool {
	if c.ProfileType == ProfileTypeDeleted {
		return true
	}
	check := func(conds []Condition) bool {
		for _, cond := range conds {
			if cond.Field != StatusField {
				continue
			}
			v := strings.ToLower(strings.TrimSpace(string(cond.Value)))
			if v == "inactive" || v == "deleted" {
				return true
			}
		}
		return false
	}
	if check(c.Conditions) {
		return true
	}
	for _, g := range c.Groups {
		if check(g.Conditions) {
			return true
		}
	}
	return false
}

type compiledCondition struct {
	field      string
	ref        FieldRef
	op         Operator
	raw        string
	lower      string
	looseBools bool
}

func compileAll(conds []Condition) []compiledCondition {
	if len(conds) == 0 {
		return nil
	}
	out := make([]compiledCondition, len(conds))
	for i, c := range conds {
		out[i] = compileCondition(c)
	}
	return out
}

func compileCondition(c Condition) compiledCondition {
	return compiledCondition{
		field:      c.Field,
		ref:        ParseFieldRef(c.Field),
		op:         ParseOperator(c.Operator),
		raw:        string(c.Value),
		lower:      strings.ToLower(string(c.Value)),
		looseBools: strings.Contains(c.Field, "is_") || strings.Contains(c.Field, "has_"),
	}
}

func (cc compiledCondition) eval(r Record) bool {
	v := normalize(cc.ref.Resolve(r))

	if v == nil {
		switch cc.op {
		case OpIsEmpty, OpNotExists:
			return true
		case OpEquals:
			return cc.raw == ""
		default:
			return false
		}
	}

	// Blank strings and empty arrays count as empty on every path.
	if cc.op == OpIsEmpty && isBlank(v) {
		return true
	}

	if b, ok := v.(bool); ok {
		return cc.evalBool(b)
	}
	if cc.looseBools {
		if b, ok := ParseLooseBoolean(stringify(v)); ok {
			if _, valueOK := ParseLooseBoolean(cc.raw); valueOK {
				return cc.evalBool(b)
			}
		}
	}

	if cc.field == StatusField {
		return compareText(strings.ToLower(stringify(v)), cc.lower, cc.op)
	}

	if members, joined, ok := arrayOf(v); ok {
		if cc.op == OpEquals {
			return slices.Contains(members, cc.raw)
		}
		return cc.evalScalar(joined, joined)
	}

	return cc.evalScalar(strings.ToLower(stringify(v)), v)
}

// evalBool compares a boolean field; any operator other than the negative
// ones is treated as equality.
func (cc compiledCondition) evalBool(field bool) bool {
	want, ok := ParseLooseBoolean(cc.raw)
	if !ok {
		return false
	}
	if cc.op == OpNotEquals {
		return field != want
	}
	return field == want
}

func (cc compiledCondition) evalScalar(text string, numeric any) bool {
	switch cc.op {
	case OpExists:
		return true
	case OpNotExists, OpIsEmpty:
		return false
	case OpGreaterThan, OpLessThan:
		a, okA := toNumber(numeric)
		b, okB := toNumber(cc.raw)
		if !okA || !okB {
			return false
		}
		if cc.op == OpGreaterThan {
			return a.GreaterThan(b)
		}
		return a.LessThan(b)
	}
	return compareText(text, cc.lower, cc.op)
}

// compareText applies the string operators to already lowercased operands.
func compareText(field, value string, op Operator) bool {
	switch op {
	case OpEquals:
		return field == value
	case OpNotEquals:
		return field != value
	case OpContains:
		return strings.Contains(field, value)
	case OpNotContains:
		return !strings.Contains(field, value)
	case OpStartsWith:
		return strings.HasPrefix(field, value)
	case OpEndsWith:
		return strings.HasSuffix(field, value)
	default:
		return false
	}
}
