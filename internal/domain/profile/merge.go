package profile

import "strings"

// Field names an import column can set.
const (
	FieldFirstName     = "first_name"
	FieldLastName      = "last_name"
	FieldEmail         = "email"
	FieldMobile        = "mobile"
	FieldStatus        = "status"
	FieldCountry       = "country"
	FieldLifetimeValue = "lifetime_value"
	FieldIsSubscribed  = "is_subscribed"
	FieldTags          = "tags"
	FieldCustomFields  = "custom_fields"
)

// FieldSet records which fields an incoming row actually carried.
type FieldSet map[string]struct{}

func NewFieldSet(fields ...string) FieldSet {
	s := make(FieldSet, len(fields))
	for _, f := range fields {
		s[f] = struct{}{}
	}
	return s
}

func (s FieldSet) Has(field string) bool {
	_, ok := s[field]
	return ok
}

// Incoming is an imported profile plus the columns its source row carried.
type Incoming struct {
	Profile *Profile
	Present FieldSet
}

// MergeFrom applies the carried fields of in onto p. Tags are unioned and
// custom fields merged key by key; missing columns leave p untouched.
func (p *Profile) MergeFrom(in Incoming) {
	src := in.Profile
	set := in.Present

	if set.Has(FieldFirstName) && src.FirstName != "" {
		p.FirstName = src.FirstName
	}
	if set.Has(FieldLastName) && src.LastName != "" {
		p.LastName = src.LastName
	}
	if p.Email == nil && src.Email != nil {
		p.Email = src.Email
	}
	if p.Mobile == nil && src.Mobile != nil {
		p.Mobile = src.Mobile
	}
	if set.Has(FieldStatus) && src.Status != "" {
		p.Status = src.Status
	}
	if set.Has(FieldCountry) && src.Country != nil {
		p.Country = src.Country
	}
	if set.Has(FieldLifetimeValue) && src.LifetimeValue.Valid {
		p.LifetimeValue = src.LifetimeValue
	}
	if set.Has(FieldIsSubscribed) {
		p.IsSubscribed = src.IsSubscribed
	}
	for _, t := range src.Tags {
		p.AddTag(t)
	}
	p.CustomFields.Merge(src.CustomFields)
	p.Touch()
}

// UpsertPlan is the outcome of matching a batch against stored profiles.
type UpsertPlan struct {
	Inserts []*Profile
	Updates []*Profile
	// Merged counts incoming rows folded into an existing or earlier row.
	Merged int
}

// PlanUpsert matches every incoming row by email first, then mobile, against
// existing profiles and rows earlier in the same batch. Matches are merged,
// the rest become inserts. Order of Inserts and Updates follows first use.
func PlanUpsert(existing []*Profile, incoming []Incoming) UpsertPlan {
	var (
		plan     UpsertPlan
		byEmail  = make(map[string]*Profile)
		byMobile = make(map[string]*Profile)
		stored   = make(map[*Profile]bool, len(existing))
		queued   = make(map[*Profile]bool)
	)

	index := func(p *Profile) {
		if p.Email != nil {
			if _, taken := byEmail[strings.ToLower(*p.Email)]; !taken {
				byEmail[strings.ToLower(*p.Email)] = p
			}
		}
		if p.Mobile != nil {
			if _, taken := byMobile[*p.Mobile]; !taken {
				byMobile[*p.Mobile] = p
			}
		}
	}
	for _, p := range existing {
		stored[p] = true
		index(p)
	}

	for _, in := range incoming {
		var target *Profile
		if e := in.Profile.Email; e != nil {
			target = byEmail[strings.ToLower(*e)]
		}
		if target == nil && in.Profile.Mobile != nil {
			target = byMobile[*in.Profile.Mobile]
		}

		if target == nil {
			plan.Inserts = append(plan.Inserts, in.Profile)
			index(in.Profile)
			continue
		}

		target.MergeFrom(in)
		index(target)
		plan.Merged++
		if stored[target] && !queued[target] {
			queued[target] = true
			plan.Updates = append(plan.Updates, target)
		}
	}
	return plan
}
