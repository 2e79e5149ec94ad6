package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound            = errors.New("not found")
	ErrWorkOrderCommitted  = errors.New("work order referenced by a committed schedule")
	ErrInvalidSnapshot     = errors.New("invalid snapshot")
	ErrUnsupportedSnapshot = errors.New("unsupported snapshot version")
)
