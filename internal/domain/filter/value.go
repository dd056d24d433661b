package filter

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// normalize collapses typed nil pointers and null wrappers to nil and
// dereferences the pointer types records commonly carry.
func normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case *string:
		if t == nil {
			return nil
		}
		return *t
	case *bool:
		if t == nil {
			return nil
		}
		return *t
	case *int:
		if t == nil {
			return nil
		}
		return *t
	case *int64:
		if t == nil {
			return nil
		}
		return *t
	case *float64:
		if t == nil {
			return nil
		}
		return *t
	case *decimal.Decimal:
		if t == nil {
			return nil
		}
		return *t
	case decimal.NullDecimal:
		if !t.Valid {
			return nil
		}
		return t.Decimal
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	}
	return v
}

// stringify renders a scalar the way it is shown in the UI.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case decimal.Decimal:
		return t.String()
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case []string:
		return strings.Join(t, ",")
	case fmt.Stringer:
		return t.String()
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
		return rv.String()
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}

// toNumber coerces a value to a number. Blank text is zero; anything that is
// not numeric reports false.
func toNumber(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int32:
		return decimal.NewFromInt32(t), true
	case int64:
		return decimal.NewFromInt(t), true
	case float32:
		return fromFloat(float64(t))
	case float64:
		return fromFloat(t)
	case bool:
		if t {
			return decimal.NewFromInt(1), true
		}
		return decimal.Zero, true
	}

	s := strings.TrimSpace(stringify(v))
	if s == "" {
		return decimal.Zero, true
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func fromFloat(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

// arrayOf returns the raw string elements and the lowercased space-joined
// form of an array value. ok is false for non-array values.
func arrayOf(v any) (members []string, joined string, ok bool) {
	switch t := v.(type) {
	case []string:
		return t, strings.ToLower(strings.Join(t, " ")), true
	case []any:
		members = make([]string, 0, len(t))
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s, isString := e.(string); isString {
				members = append(members, s)
			}
			parts = append(parts, stringify(normalize(e)))
		}
		return members, strings.ToLower(strings.Join(parts, " ")), true
	}
	return nil, "", false
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
