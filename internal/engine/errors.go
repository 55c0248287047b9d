package engine

import "errors"

// Sentinel errors forming the engine's error taxonomy. Every engine-level
// failure reduces to exactly one of these, regardless of which core package
// raised the underlying error.
var (
	ErrSchemaMismatch      = errors.New("engine: schema mismatch")
	ErrDuplicateKey        = errors.New("engine: duplicate key")
	ErrUnsupportedOperation = errors.New("engine: unsupported operation")
	ErrMissingIndex        = errors.New("engine: missing index")
	ErrParseError          = errors.New("engine: parse error")
	ErrIOError             = errors.New("engine: I/O error")
	ErrTypeCoercionFailed  = errors.New("engine: type coercion failed")
)
