package config

import "reflect"

// changedFields returns the names of the top-level struct fields that differ
// between old and new. Pointers are dereferenced; anything that is not a
// struct of the same type yields no fields.
func changedFields(old, new any) []string {
	changed := []string{}
	if old == nil || new == nil {
		return changed
	}

	ov := reflect.Indirect(reflect.ValueOf(old))
	nv := reflect.Indirect(reflect.ValueOf(new))
	if ov.Kind() != reflect.Struct || ov.Type() != nv.Type() {
		return changed
	}

	for i := 0; i < ov.NumField(); i++ {
		f := ov.Type().Field(i)
		if !f.IsExported() {
			continue
		}
		if !reflect.DeepEqual(ov.Field(i).Interface(), nv.Field(i).Interface()) {
			changed = append(changed, f.Name)
		}
	}
	return changed
}

func diffEvent(old, new any) Event {
	return Event{ChangedKeys: changedFields(old, new), OldConfig: old, NewConfig: new}
}
