package pipeline

import "errors"

// ErrDecode is returned when an upload cannot be decoded by any codec.
var ErrDecode = errors.New("image decode failed")
