// Package ops implements the grid operators a query can chain: grouping,
// pivoting, tree building, row filters and column transforms.
package ops

import (
	"regexp"
	"sort"
	"strings"

	"condorview/internal/grid"
)

// Op identifies one operator of the closed operator set.
type Op int

const (
	OpGroup Op = iota + 1
	OpPivot
	OpTreeGroup
	OpFinishTree
	OpInvertTree
	OpCrackTree
	OpFilter
	OpQuery
	OpLimit
	OpDelta
	OpUnselect
	OpOrder
	OpExtractRegexp
	OpQuantize
	OpRename
	OpYSpread
	OpTranspose
	OpCumulativeIntegral
	OpMakeURL
	OpSetVal
	OpNanToZero
	OpCeil
	OpAdd
	OpSub
	OpMult
	OpDiv
)

// Handler transforms a grid it owns. Apply hands every handler a private
// copy, so handlers may rewrite rows in place.
type Handler func(g *grid.Grid, arg string, ctx *Context) (*grid.Grid, error)

type opInfo struct {
	name    string
	usage   string
	handler Handler
}

var table map[Op]opInfo

func init() {
	table = map[Op]opInfo{
		OpGroup:              {"group", "group=keys[;values] aggregate rows by key columns", group},
		OpPivot:              {"pivot", "pivot=rowkeys;colkeys[;values] fan column key values out into columns", pivot},
		OpTreeGroup:          {"treegroup", "treegroup=keys[;values] group and join keys into a _tree path", treeGroup},
		OpFinishTree:         {"finishtree", "finishtree=[keys] add rows for missing tree ancestors", finishTree},
		OpInvertTree:         {"inverttree", "inverttree=[key] reverse the segments of a tree path", invertTree},
		OpCrackTree:          {"cracktree", "cracktree=[key] split a tree path into _id and _parent", crackTree},
		OpFilter:             {"filter", "filter=col OP value[,value...] keep matching rows", filter},
		OpQuery:              {"q", "q=word[,!word...] free text row filter", queryWords},
		OpLimit:              {"limit", "limit=N keep the first N rows", limit},
		OpDelta:              {"delta", "delta=cols replace counters with their increase", delta},
		OpUnselect:           {"unselect", "unselect=cols drop columns", unselect},
		OpOrder:              {"order", "order=[-]col,... stable sort", order},
		OpExtractRegexp:      {"extract_regexp", "extract_regexp=col=pattern keep the captured groups", extractRegexp},
		OpQuantize:           {"quantize", "quantize=col=width or col=e1,e2,... bin values", quantize},
		OpRename:             {"rename", "rename=old=new rename a column", rename},
		OpYSpread:            {"yspread", "yspread normalize numeric cells to row shares", ySpread},
		OpTranspose:          {"transpose", "transpose=names swap rows and columns", transpose},
		OpCumulativeIntegral: {"cumulative_integral", "cumulative_integral running integral over hours of column 0", cumulativeIntegral},
		OpMakeURL:            {"make_url", "make_url=col=template build url|label link cells", makeURL},
		OpSetVal:             {"set_val", "set_val=col=value overwrite a column", setVal},
		OpNanToZero:          {"nan_to_zero", "nan_to_zero=col,target", arithmetic(OpNanToZero, nanToZero)},
		OpCeil:               {"ceil", "ceil=col,target", arithmetic(OpCeil, ceilOp)},
		OpAdd:                {"add", "add=a,b,target", arithmetic(OpAdd, addOp)},
		OpSub:                {"sub", "sub=a,b,target", arithmetic(OpSub, subOp)},
		OpMult:               {"mult", "mult=a,b,target", arithmetic(OpMult, multOp)},
		OpDiv:                {"div", "div=a,b,target", arithmetic(OpDiv, divOp)},
	}
}

// String returns the query key of the operator.
func (o Op) String() string {
	if info, ok := table[o]; ok {
		return info.name
	}
	return "unknown"
}

// Usage returns a one-line description of the operator's argument.
func (o Op) Usage() string {
	return table[o].usage
}

// Lookup maps a query key to its operator.
func Lookup(name string) (Op, bool) {
	for op, info := range table {
		if info.name == name {
			return op, true
		}
	}
	return 0, false
}

// All returns every operator ordered by query key.
func All() []Op {
	out := make([]Op, 0, len(table))
	for op := range table {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Apply runs op over a copy of g. The input grid is never modified.
func Apply(op Op, g *grid.Grid, arg string, ctx *Context) (*grid.Grid, error) {
	info, ok := table[op]
	if !ok {
		return nil, &UnknownOperatorArgumentError{Op: op.String(), Arg: arg, Reason: "unknown operator"}
	}
	if ctx == nil {
		ctx = NewContext()
	}
	return info.handler(g.Clone(), arg, ctx)
}

// ── Context ────────────────────────────────────────────────

// Context is the state shared by the operators of one pipeline run.
type Context struct {
	colors    map[string]float64
	nextColor float64
}

// NewContext returns a fresh run context.
func NewContext() *Context {
	return &Context{colors: map[string]float64{}}
}

// Color returns the stable color index of key, assigning the next one on
// first use.
func (c *Context) Color(key string) float64 {
	if v, ok := c.colors[key]; ok {
		return v
	}
	c.nextColor++
	c.colors[key] = c.nextColor
	return c.nextColor
}

// ── Column lookup ──────────────────────────────────────────

var funcRE = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// colNum resolves a column name; "*" means the first column.
func colNum(g *grid.Grid, name string) (int, error) {
	if name == "*" && g.NumCols() > 0 {
		return 0, nil
	}
	if i := g.ColIndex(name); i >= 0 {
		return i, nil
	}
	return -1, &UnknownColumnError{Column: name}
}

// keyCol resolves a key that may be wrapped as func(col).
func keyCol(g *grid.Grid, key string) (int, error) {
	if m := funcRE.FindStringSubmatch(key); m != nil {
		return colNum(g, m[2])
	}
	return colNum(g, key)
}

func keyCols(g *grid.Grid, keys []string) ([]int, error) {
	cols := make([]int, len(keys))
	for i, k := range keys {
		c, err := keyCol(g, k)
		if err != nil {
			return nil, err
		}
		cols[i] = c
	}
	return cols, nil
}

// keysOtherThan lists the headers not named by keys, in grid order.
func keysOtherThan(g *grid.Grid, keys []string) ([]string, error) {
	used := map[string]bool{}
	for _, k := range keys {
		c, err := keyCol(g, k)
		if err != nil {
			return nil, err
		}
		used[g.Headers[c]] = true
	}
	var out []string
	for _, h := range g.Headers {
		if !used[h] {
			out = append(out, h)
		}
	}
	return out, nil
}

// ── Argument helpers ───────────────────────────────────────

// splitNoEmpty splits s on sep; an empty s yields no parts.
func splitNoEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, sep)
}

// splitLimit splits s on sep and keeps at most n parts, dropping the rest.
func splitLimit(s, sep string, n int) []string {
	parts := strings.Split(s, sep)
	if len(parts) > n {
		parts = parts[:n]
	}
	return parts
}

// splitOne splits s at the first sep and trims both halves.
func splitOne(s, sep string) (string, string, bool) {
	before, after, ok := strings.Cut(s, sep)
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(before), strings.TrimSpace(after), true
}

// rowKey is the grouping identity of a set of cells.
func rowKey(cells []any) string {
	var b strings.Builder
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		b.WriteString(grid.CellString(c))
	}
	return b.String()
}

// cellText is the string a cell shows to text-matching operators.
func cellText(v any, t grid.Type) string {
	if t.IsTemporal() {
		return grid.Stringify(v, t)
	}
	return grid.CellString(v)
}
