package aoa

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedDatagram marks a payload that is not a usable +UUDF report.
	// It never leaves the ingestion path.
	ErrMalformedDatagram = errors.New("malformed datagram")

	// ErrMissingAnchorData is returned when one of the two anchors has not
	// reported yet. Callers may retry later.
	ErrMissingAnchorData = errors.New("both anchors not available")

	// ErrStaleAnchorData is returned when a reading is older than the
	// configured staleness window. It wraps ErrMissingAnchorData.
	ErrStaleAnchorData = fmt.Errorf("anchor reading is stale: %w", ErrMissingAnchorData)

	// ErrParallelRays is returned when the azimuth rays do not intersect in
	// the XY plane.
	ErrParallelRays = errors.New("parallel azimuth lines")

	// ErrInvalidSeparation is returned for a NaN or infinite D. A negative D
	// places anchor 2 on -X; zero puts both anchors at the origin.
	ErrInvalidSeparation = errors.New("anchor separation must be a finite number")
)

// Error codes reported to API clients.
const (
	CodeMissingAnchorData = "MissingAnchorData"
	CodeParallelRays      = "ParallelRays"
	CodeInvalidSeparation = "InvalidSeparation"
	CodeMalformedDatagram = "MalformedDatagram"
)

// ErrorCode maps a query error onto its wire code. Unknown errors map to "".
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingAnchorData):
		return CodeMissingAnchorData
	case errors.Is(err, ErrParallelRays):
		return CodeParallelRays
	case errors.Is(err, ErrInvalidSeparation):
		return CodeInvalidSeparation
	case errors.Is(err, ErrMalformedDatagram):
		return CodeMalformedDatagram
	default:
		return ""
	}
}
