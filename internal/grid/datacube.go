package grid

import "fmt"

// ── Datacube Flattening ────────────────────────────────────
// A datacube is a list of records whose fields are scalars, nested records
// or nested lists. Each nested list is another dimension: the record is
// repeated once per element, multiplied across every list it holds.

type flattener struct {
	headers []string
	seen    map[string]bool
	max     int
}

type rowFields map[string]any

func (a *Adapter) flattenDatacube(rows []any) ([]string, [][]any, error) {
	f := &flattener{headers: []string{}, seen: map[string]bool{}, max: a.MaxDatacubeRows}
	if f.max <= 0 {
		f.max = DefaultMaxDatacubeRows
	}
	records, err := f.flattenList(rows)
	if err != nil {
		return nil, nil, err
	}
	data := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(f.headers))
		for j, h := range f.headers {
			row[j] = rec[h]
		}
		data[i] = row
	}
	return f.headers, data, nil
}

func (f *flattener) flattenList(items []any) ([]rowFields, error) {
	var out []rowFields
	for _, item := range items {
		var sub []rowFields
		base := rowFields{}
		if obj, ok := asObject(item); ok {
			var err error
			if sub, err = f.flattenRecord(base, obj); err != nil {
				return nil, err
			}
		} else if list, ok := asList(item); ok {
			var err error
			if sub, err = f.flattenList(list); err != nil {
				return nil, err
			}
		} else {
			return nil, &UnrecognizedFormatError{Reason: fmt.Sprintf("datacube list holds a bare scalar %v", item)}
		}
		var err error
		if out, err = f.multiply(out, []rowFields{base}, sub); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// flattenRecord copies obj's scalar fields into base (and the scalar
// fields of nested records, recursively) and returns the product of its
// nested lists.
func (f *flattener) flattenRecord(base rowFields, obj *Object) ([]rowFields, error) {
	var lists [][]rowFields
	for _, key := range obj.Keys {
		v := obj.Values[key]
		if isScalar(v) {
			if !f.seen[key] {
				f.seen[key] = true
				f.headers = append(f.headers, key)
			}
			base[key] = normalizeScalar(v)
			continue
		}
		if list, ok := asList(v); ok {
			sub, err := f.flattenList(list)
			if err != nil {
				return nil, err
			}
			lists = append(lists, sub)
			continue
		}
		if nested, ok := asObject(v); ok {
			sub, err := f.flattenRecord(base, nested)
			if err != nil {
				return nil, err
			}
			lists = append(lists, sub)
			continue
		}
		return nil, &UnrecognizedFormatError{Reason: fmt.Sprintf("datacube field %q has unsupported value %T", key, v)}
	}

	product := []rowFields{{}}
	for _, l := range lists {
		var err error
		if product, err = f.multiply(nil, product, l); err != nil {
			return nil, err
		}
	}
	return product, nil
}

// multiply appends to out one merged row per (a, b) pair, b's fields
// overriding a's.
func (f *flattener) multiply(out, as, bs []rowFields) ([]rowFields, error) {
	if len(out)+len(as)*len(bs) > f.max {
		return nil, &UnrecognizedFormatError{
			Reason: fmt.Sprintf("datacube expands to more than %d rows", f.max),
		}
	}
	for _, a := range as {
		for _, b := range bs {
			row := make(rowFields, len(a)+len(b))
			for k, v := range a {
				row[k] = v
			}
			for k, v := range b {
				row[k] = v
			}
			out = append(out, row)
		}
	}
	return out, nil
}
