package grid

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// DefaultMaxDatacubeRows bounds the cross-product expansion of nested payloads.
const DefaultMaxDatacubeRows = 1_000_000

// Adapter normalizes decoded source payloads into typed Grids.
type Adapter struct {
	// MaxDatacubeRows caps the rows a datacube payload may flatten into.
	// Zero means DefaultMaxDatacubeRows.
	MaxDatacubeRows int
}

var defaultAdapter = &Adapter{}

// FromPayload converts one payload with the default Adapter.
func FromPayload(v any) (*Grid, error) {
	return defaultAdapter.FromPayload(v)
}

// FromPayloads converts every payload and merges the results in order.
func FromPayloads(vs []any) (*Grid, error) {
	return defaultAdapter.FromPayloads(vs)
}

// FromPayloads converts every payload and merges the results in order.
// An empty list yields an empty Grid.
func (a *Adapter) FromPayloads(vs []any) (*Grid, error) {
	grids := make([]*Grid, 0, len(vs))
	for _, v := range vs {
		g, err := a.FromPayload(v)
		if err != nil {
			return nil, err
		}
		grids = append(grids, g)
	}
	return MergeAll(grids), nil
}

// FromPayload tries the known payload shapes in priority order: a Grid,
// an error envelope, a gviz table, a {data, cols} envelope, a 2-D table
// with a header row, then a datacube.
func (a *Adapter) FromPayload(v any) (*Grid, error) {
	if g, ok := v.(*Grid); ok {
		return g.Clone(), nil
	}
	if obj, ok := asObject(v); ok {
		if g, ok, err := gridPassThrough(obj); ok || err != nil {
			return g, err
		}
		if err := envelopeError(obj); err != nil {
			return nil, err
		}
		if table, ok := obj.Get("table"); ok && truthy(table) {
			headers, data := fromGvizTable(table)
			return typed(headers, data), nil
		}
		d, hasData := obj.Get("data")
		c, hasCols := obj.Get("cols")
		if hasData && hasCols && truthy(d) && truthy(c) {
			headers, data := fromDataCols(d, c)
			return typed(headers, data), nil
		}
		return nil, &UnrecognizedFormatError{Reason: "object payload has no table, data or headers"}
	}

	rows, ok := asList(v)
	if !ok {
		return nil, &UnrecognizedFormatError{Reason: "payload is neither an object nor a list"}
	}
	if is2D(rows) {
		if len(rows) == 0 {
			return Empty(), nil
		}
		header, _ := asList(rows[0])
		headers := make([]string, len(header))
		for i, h := range header {
			headers[i] = CellString(normalizeScalar(h))
		}
		data := make([][]any, 0, len(rows)-1)
		for _, r := range rows[1:] {
			cells, _ := asList(r)
			data = append(data, fitRow(cells, len(headers)))
		}
		return typed(headers, data), nil
	}
	headers, data, err := a.flattenDatacube(rows)
	if err != nil {
		return nil, err
	}
	return typed(headers, data), nil
}

func typed(headers []string, data [][]any) *Grid {
	types := InferTypes(data, len(headers))
	return &Grid{Headers: headers, Types: types, Data: Coerce(data, types)}
}

// gridPassThrough accepts an object that already carries headers, types
// and data. Cells are coerced to the declared types; nothing is inferred.
func gridPassThrough(obj *Object) (*Grid, bool, error) {
	hv, okH := obj.Get("headers")
	tv, okT := obj.Get("types")
	dv, okD := obj.Get("data")
	if !okH || !okT || !okD || !truthy(hv) || !truthy(tv) || !truthy(dv) {
		return nil, false, nil
	}
	hs, _ := asList(hv)
	ts, _ := asList(tv)
	ds, _ := asList(dv)
	if len(hs) != len(ts) {
		return nil, true, &UnrecognizedFormatError{Reason: "grid payload has mismatched headers and types"}
	}
	g := &Grid{Headers: make([]string, len(hs)), Types: make([]Type, len(ts))}
	for i := range hs {
		g.Headers[i] = CellString(normalizeScalar(hs[i]))
		t := Type(strings.ToLower(CellString(ts[i])))
		if !t.Valid() {
			return nil, true, &UnrecognizedFormatError{Reason: "grid payload has unknown type " + string(t)}
		}
		g.Types[i] = t
	}
	data := make([][]any, 0, len(ds))
	for _, r := range ds {
		cells, _ := asList(r)
		data = append(data, fitRow(cells, len(hs)))
	}
	g.Data = Coerce(data, g.Types)
	return g, true, nil
}

func envelopeError(obj *Object) error {
	var e any
	if errs, ok := obj.Get("errors"); ok {
		if list, ok := asList(errs); ok && len(list) > 0 {
			e = list[0]
		}
	}
	if e == nil {
		if v, ok := obj.Get("error"); ok && truthy(v) {
			e = v
		}
	}
	if e == nil {
		return nil
	}
	if eo, ok := asObject(e); ok {
		var parts []string
		for _, k := range []string{"message", "detailed_message"} {
			if m, ok := eo.Get(k); ok && truthy(m) {
				parts = append(parts, CellString(normalizeScalar(m)))
			}
		}
		return &DataProviderError{Message: strings.Join(parts, ": ")}
	}
	return &DataProviderError{Message: CellString(normalizeScalar(e))}
}

// fromGvizTable reads {"cols":[{"id","label"}], "rows":[{"c":[{"v"}]}]}.
func fromGvizTable(table any) ([]string, [][]any) {
	t, _ := asObject(table)
	if t == nil {
		return []string{}, nil
	}
	colsV, _ := t.Get("cols")
	cols, _ := asList(colsV)
	headers := make([]string, len(cols))
	for i, c := range cols {
		co, _ := asObject(c)
		if co == nil {
			continue
		}
		if l, ok := co.Get("label"); ok && truthy(l) {
			headers[i] = CellString(normalizeScalar(l))
		} else if id, ok := co.Get("id"); ok {
			headers[i] = CellString(normalizeScalar(id))
		}
	}
	rowsV, _ := t.Get("rows")
	rows, _ := asList(rowsV)
	data := make([][]any, 0, len(rows))
	for _, r := range rows {
		ro, _ := asObject(r)
		var cells []any
		if ro != nil {
			cv, _ := ro.Get("c")
			cs, _ := asList(cv)
			for _, c := range cs {
				var val any
				if co, ok := asObject(c); ok {
					val, _ = co.Get("v")
				}
				cells = append(cells, normalizeScalar(val))
			}
		}
		data = append(data, fitRow(cells, len(headers)))
	}
	return headers, data
}

// fromDataCols reads {"cols":[{"caption"}|name...], "data":[[...]]}.
func fromDataCols(d, c any) ([]string, [][]any) {
	cols, _ := asList(c)
	headers := make([]string, len(cols))
	for i, col := range cols {
		if co, ok := asObject(col); ok {
			if caption, ok := co.Get("caption"); ok && truthy(caption) {
				headers[i] = CellString(normalizeScalar(caption))
			} else if name, ok := co.Get("name"); ok {
				headers[i] = CellString(normalizeScalar(name))
			}
			continue
		}
		headers[i] = CellString(normalizeScalar(col))
	}
	rows, _ := asList(d)
	data := make([][]any, 0, len(rows))
	for _, r := range rows {
		cells, _ := asList(r)
		data = append(data, fitRow(cells, len(headers)))
	}
	return headers, data
}

// is2D reports whether rows looks like a header-first 2-D table: a list of
// lists whose first five rows hold only scalars.
func is2D(rows []any) bool {
	for i := 0; i < len(rows) && i < 5; i++ {
		cells, ok := asList(rows[i])
		if !ok {
			return false
		}
		for _, c := range cells {
			if !isScalar(c) {
				return false
			}
		}
	}
	return true
}

func fitRow(cells []any, n int) []any {
	row := make([]any, n)
	for i := 0; i < n && i < len(cells); i++ {
		row[i] = normalizeScalar(cells[i])
	}
	return row
}

// ── Value helpers ──────────────────────────────────────────

func asList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case [][]any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, true
	case []string:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, true
	case [][]string:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, true
	case []*Object:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, true
	}
	return nil, false
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number, time.Time, []byte:
		return true
	}
	return false
}

// normalizeScalar maps the scalar types database drivers and decoders
// produce onto the few the engine works with.
func normalizeScalar(v any) any {
	switch x := v.(type) {
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC()
	}
	return v
}

// truthy follows the loose truthiness payload producers rely on: nil,
// false, 0, NaN and "" are false; empty lists and objects are true.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	}
	return true
}
