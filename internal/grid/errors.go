package grid

import "fmt"

// DataProviderError is returned when a payload is an error envelope
// ({"error": ...} or {"errors": [...]}) instead of data.
type DataProviderError struct {
	Message string
}

func (e *DataProviderError) Error() string {
	return "data provider returned an error: " + e.Message
}

// UnrecognizedFormatError is returned when a payload matches none of the
// known shapes, or the datacube flattener exceeds its row ceiling.
type UnrecognizedFormatError struct {
	Reason string
}

func (e *UnrecognizedFormatError) Error() string {
	return fmt.Sprintf("unrecognized data format: %s", e.Reason)
}
