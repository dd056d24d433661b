package filter

import (
	"fmt"
	"strings"

	"audience/internal/core/apperror"
)

// Problem describes one rejected part of a criteria document.
type Problem struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Validate checks criteria before they are persisted. Evaluation itself is
// fail-closed and never needs this; stored segments should not carry
// conditions that can never match.
func (c Criteria) Validate() error {
	var problems []Problem

	if !c.ProfileType.Valid() {
		problems = append(problems, Problem{
			Path:    "profileType",
			Message: fmt.Sprintf("unknown profile type %q", c.ProfileType),
		})
	}

	problems = append(problems, validateConditions("conditions", c.Conditions)...)
	for i, g := range c.Groups {
		problems = append(problems, validateConditions(fmt.Sprintf("groups[%d].conditions", i), g.Conditions)...)
	}

	if len(problems) == 0 {
		return nil
	}
	return apperror.NewInvalidFilter("filter criteria are invalid").WithDetail("problems", problems)
}

func validateConditions(path string, conds []Condition) []Problem {
	var problems []Problem
	for i, cond := range conds {
		at := fmt.Sprintf("%s[%d]", path, i)

		if strings.TrimSpace(cond.Field) == "" {
			problems = append(problems, Problem{Path: at + ".field", Message: "field is required"})
			continue
		}
		ref := ParseFieldRef(cond.Field)
		if ref.Kind == FieldCustom && strings.TrimSpace(ref.Name) == "" {
			problems = append(problems, Problem{Path: at + ".field", Message: "custom field key is required"})
		}

		op := ParseOperator(cond.Operator)
		if op == OpUnknown {
			problems = append(problems, Problem{
				Path:    at + ".operator",
				Message: fmt.Sprintf("unknown operator %q", cond.Operator),
			})
			continue
		}

		if op == OpGreaterThan || op == OpLessThan {
			if _, ok := toNumber(string(cond.Value)); !ok || strings.TrimSpace(string(cond.Value)) == "" {
				problems = append(problems, Problem{Path: at + ".value", Message: "numeric value is required"})
			}
			continue
		}

		if op.needsValue() && op != OpEquals && cond.Value == "" {
			problems = append(problems, Problem{Path: at + ".value", Message: "value is required"})
		}
	}
	return problems
}
