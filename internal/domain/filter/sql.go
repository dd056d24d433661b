package filter

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Scan implements sql.Scanner for JSONB columns.
func (c *Criteria) Scan(src any) error {
	var source []byte
	switch v := src.(type) {
	case nil:
		*c = Criteria{}
		return nil
	case []byte:
		source = v
	case string:
		source = []byte(v)
	default:
		return fmt.Errorf("unsupported type for Criteria: %T", src)
	}

	if len(source) == 0 {
		*c = Criteria{}
		return nil
	}

	var out Criteria
	if err := json.Unmarshal(source, &out); err != nil {
		return fmt.Errorf("decode criteria: %w", err)
	}
	*c = out
	return nil
}

// Value implements driver.Valuer for JSONB columns.
func (c Criteria) Value() (driver.Value, error) {
	if c.Conditions == nil {
		c.Conditions = []Condition{}
	}
	if c.ProfileType == "" {
		c.ProfileType = ProfileTypeAll
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
