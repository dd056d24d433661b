package postgres

import (
	"reflect"
	"sync"
)

// column describes one db-tagged field, possibly reached through embedded structs.
type column struct {
	name  string
	index []int
}

var columnCache sync.Map // reflect.Type -> []column

func columnsOf(t reflect.Type) []column {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := columnCache.Load(t); ok {
		return cached.([]column)
	}

	var cols []column
	if t.Kind() == reflect.Struct {
		for _, f := range reflect.VisibleFields(t) {
			if f.Anonymous || !f.IsExported() {
				continue
			}
			tag := f.Tag.Get("db")
			if tag == "" || tag == "-" {
				continue
			}
			cols = append(cols, column{name: tag, index: f.Index})
		}
	}

	actual, _ := columnCache.LoadOrStore(t, cols)
	return actual.([]column)
}

// DBColumns returns the db tag names of T in field order, including embedded structs.
func DBColumns[T any]() []string {
	cols := columnsOf(reflect.TypeFor[T]())
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.name
	}
	return out
}

// StructToMap maps db tag names to field values. Reflection metadata is cached per type.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	cols := columnsOf(rv.Type())
	out := make(map[string]any, len(cols))
	for _, c := range cols {
		out[c.name] = rv.FieldByIndex(c.index).Interface()
	}
	return out
}

// PickColumns keeps only the entries of data whose key is listed in cols,
// skipping any key in omit.
func PickColumns(data map[string]any, cols []string, omit ...string) map[string]any {
	out := make(map[string]any, len(cols))
	for _, c := range cols {
		skip := false
		for _, o := range omit {
			if c == o {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		if v, ok := data[c]; ok {
			out[c] = v
		}
	}
	return out
}
