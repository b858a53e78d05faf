package scan

import "errors"

// Sweep faults. None of them are fatal: the filter keeps the previous clearance.
var (
	// ErrEmptySweep is returned for a sweep with no ranges.
	ErrEmptySweep = errors.New("scan: empty sweep")

	// ErrEmptyWindow is returned when the sweep does not reach the front window.
	ErrEmptyWindow = errors.New("scan: sweep does not cover the front window")

	// ErrNoValidReadings is returned when every beam in the window is invalid.
	ErrNoValidReadings = errors.New("scan: no valid readings in the front window")

	// ErrMalformedSweep is returned by the line parser.
	ErrMalformedSweep = errors.New("scan: malformed sweep")
)
