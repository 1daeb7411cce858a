package treepath

import "errors"

var (
	ErrNotFound  = errors.New("path is neither a container nor a file")
	ErrNotAFile  = errors.New("path is not a file or data object")
	ErrNotRooted = errors.New("path is not under the given root")
)
