// Package id generates identifiers for profiles and segments.
// UUIDv7 values sort by creation time, which keeps keyset pagination and B-tree inserts cheap.
package id

import (
	"github.com/google/uuid"
)

// ID is the identifier type shared by all stored entities.
type ID = uuid.UUID

// New returns a fresh UUIDv7, falling back to v4 if the clock source fails.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse converts s to an ID.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// ParseList converts every element of ss, stopping at the first invalid one.
func ParseList(ss []string) ([]ID, error) {
	out := make([]ID, 0, len(ss))
	for _, s := range ss {
		v, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// IsNil reports whether v is the zero UUID.
func IsNil(v ID) bool {
	return v == uuid.Nil
}
