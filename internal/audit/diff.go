package audit

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"gorm.io/gorm"
)

// isoLayout is the canonical date-time representation stored in diffs.
const isoLayout = "2006-01-02T15:04:05.000Z"

var (
	timeType      = reflect.TypeOf(time.Time{})
	deletedAtType = reflect.TypeOf(gorm.DeletedAt{})
)

// Change is the before and after value of one field.
type Change struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// Changes maps field names to their change. A nil Changes means nothing
// differed.
type Changes map[string]Change

// Diff compares two snapshots of the same record and returns the fields whose
// normalized values differ. A nil snapshot is treated as empty. Values are
// compared structurally, so nested objects with the same content in a
// different key order are equal. Returns nil when nothing differs.
func Diff(before, after map[string]any) Changes {
	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}

	var changes Changes
	for k := range keys {
		from := normalize(before[k])
		to := normalize(after[k])
		if canonical(from) == canonical(to) {
			continue
		}
		if changes == nil {
			changes = make(Changes)
		}
		changes[k] = Change{From: from, To: to}
	}
	return changes
}

// normalize turns v into a concrete, comparable value: times become ISO
// strings and everything else is deep-copied through its JSON form. Values
// that cannot be represented collapse to nil.
func normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return t.UTC().Format(isoLayout)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(isoLayout)
	case string, bool:
		return t
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// canonical serializes a normalized value. encoding/json writes map keys in
// sorted order, which makes the text independent of property order.
func canonical(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// Snapshot converts a record into a field map using its JSON form, so fields
// hidden from JSON (password hashes, token hashes) never reach the audit log.
// Fields declared as times are rewritten to the canonical ISO layout so times
// read back from different drivers compare equal; strings are kept as stored.
// Maps are returned as is. Returns nil for a nil record or one that does not
// serialize to an object.
func Snapshot(v any) map[string]any {
	if v == nil {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	for k := range timeFields(reflect.TypeOf(v)) {
		s, ok := m[k].(string)
		if !ok {
			continue
		}
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			m[k] = ts.UTC().Format(isoLayout)
		}
	}
	return m
}

// timeFields returns the JSON names of the time-valued fields of struct type
// t, including those promoted from embedded structs.
func timeFields(t reflect.Type) map[string]bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	fields := map[string]bool{}
	if t.Kind() != reflect.Struct {
		return fields
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || (!f.Anonymous && !f.IsExported()) {
			continue
		}
		ft := f.Type
		for ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft == timeType || ft == deletedAtType {
			if name == "" {
				name = f.Name
			}
			fields[name] = true
			continue
		}
		if f.Anonymous && name == "" && ft.Kind() == reflect.Struct {
			for k := range timeFields(ft) {
				fields[k] = true
			}
		}
	}
	return fields
}
