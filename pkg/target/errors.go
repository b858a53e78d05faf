package target

import "errors"

// ErrInvalidSample is returned for samples with non-finite coordinates or a
// negative depth. The intake state is left untouched.
var ErrInvalidSample = errors.New("target: invalid sample")
