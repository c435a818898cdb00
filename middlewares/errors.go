package middlewares

import "errors"

// Sanitize errors
var (
	ErrDangerousPattern = errors.New("invalid path: contains dangerous pattern")
	ErrSystemDirectory  = errors.New("invalid path: cannot write to system directory")
)
