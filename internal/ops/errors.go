package ops

import "fmt"

// UnknownColumnError is returned when an operator names a column the grid
// does not have.
type UnknownColumnError struct {
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column name %q", e.Column)
}

// UnknownAggregationFunctionError is returned for func(col) with an
// unregistered func.
type UnknownAggregationFunctionError struct {
	Name string
}

func (e *UnknownAggregationFunctionError) Error() string {
	return fmt.Sprintf("unknown aggregation function %q", e.Name)
}

// UnknownOperatorArgumentError is returned when an operator argument (or a
// query key) cannot be interpreted.
type UnknownOperatorArgumentError struct {
	Op     string
	Arg    string
	Reason string
}

func (e *UnknownOperatorArgumentError) Error() string {
	if e.Arg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: %s in %q", e.Op, e.Reason, e.Arg)
}

func badArg(op Op, arg, reason string) error {
	return &UnknownOperatorArgumentError{Op: op.String(), Arg: arg, Reason: reason}
}
