package dto

import "audience/internal/domain/filter"

// ConditionRequest is one {field, operator, value} predicate of a live
// filter. Unknown operators are not rejected here: the engine never matches
// them, so a half-edited condition narrows the result instead of failing it.
type ConditionRequest struct {
	Field    string       `json:"field" binding:"max=200"`
	Operator string       `json:"operator" binding:"max=50"`
	Value    filter.Value `json:"value"`
}

// GroupRequest is an AND-ed set of conditions; groups are OR-ed.
type GroupRequest struct {
	Conditions []ConditionRequest `json:"conditions" binding:"dive"`
}

// CriteriaRequest is the filter body of profile list, search and export.
type CriteriaRequest struct {
	Conditions     []ConditionRequest `json:"conditions" binding:"omitempty,max=100,dive"`
	ProfileType    string             `json:"profileType" binding:"omitempty,profile_type"`
	SearchTerm     string             `json:"searchTerm" binding:"max=200"`
	Groups         []GroupRequest     `json:"groups" binding:"omitempty,max=20,dive"`
	ExcludeDeleted bool               `json:"excludeDeleted"`
}

// ToCriteria converts the request into engine criteria.
func (r CriteriaRequest) ToCriteria() filter.Criteria {
	c := filter.Criteria{
		Conditions:     toConditions(r.Conditions),
		ProfileType:    filter.ProfileType(r.ProfileType),
		SearchTerm:     r.SearchTerm,
		ExcludeDeleted: r.ExcludeDeleted,
	}
	for _, g := range r.Groups {
		c.Groups = append(c.Groups, filter.Group{Conditions: toConditions(g.Conditions)})
	}
	return c
}

// SegmentConditionRequest is a condition that will be persisted with a segment.
type SegmentConditionRequest struct {
	Field    string       `json:"field" binding:"required,max=200"`
	Operator string       `json:"operator" binding:"required,filter_operator"`
	Value    filter.Value `json:"value"`
}

type SegmentGroupRequest struct {
	Conditions []SegmentConditionRequest `json:"conditions" binding:"dive"`
}

// SegmentCriteriaRequest is the criteria body of segment create, update and
// preview. Unlike CriteriaRequest it rejects unknown operators up front.
type SegmentCriteriaRequest struct {
	Conditions     []SegmentConditionRequest `json:"conditions" binding:"omitempty,max=100,dive"`
	ProfileType    string                    `json:"profileType" binding:"omitempty,profile_type"`
	SearchTerm     string                    `json:"searchTerm" binding:"max=200"`
	Groups         []SegmentGroupRequest     `json:"groups" binding:"omitempty,max=20,dive"`
	ExcludeDeleted bool                      `json:"excludeDeleted"`
}

// ToCriteria converts the request into engine criteria.
func (r SegmentCriteriaRequest) ToCriteria() filter.Criteria {
	live := CriteriaRequest{
		Conditions:     liveConditions(r.Conditions),
		ProfileType:    r.ProfileType,
		SearchTerm:     r.SearchTerm,
		ExcludeDeleted: r.ExcludeDeleted,
	}
	for _, g := range r.Groups {
		live.Groups = append(live.Groups, GroupRequest{Conditions: liveConditions(g.Conditions)})
	}
	return live.ToCriteria()
}

func liveConditions(in []SegmentConditionRequest) []ConditionRequest {
	out := make([]ConditionRequest, 0, len(in))
	for _, c := range in {
		out = append(out, ConditionRequest(c))
	}
	return out
}

func toConditions(in []ConditionRequest) []filter.Condition {
	out := make([]filter.Condition, 0, len(in))
	for _, c := range in {
		out = append(out, filter.Condition{Field: c.Field, Operator: c.Operator, Value: c.Value})
	}
	return out
}
