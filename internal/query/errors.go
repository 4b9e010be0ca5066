package query

import "errors"

// Validation failures are the only synchronous error path of Submit; every
// later failure surfaces as a JobResult with status "error" instead.
var (
	ErrNotAuthenticated   = errors.New("user not authenticated")
	ErrEmptyQuery         = errors.New("query must not be empty")
	ErrQueryTooLong       = errors.New("query exceeds maximum length")
	ErrTooManyFiles       = errors.New("too many input files")
	ErrFileTooLarge       = errors.New("input file exceeds maximum size")
	ErrUnsupportedType    = errors.New("unsupported input file type")
	ErrMissingDestination = errors.New("online output requires a destination URL")
	ErrUnsupportedFormat  = errors.New("unsupported download format")
	ErrInvalidOutputType  = errors.New("output type must be download or online")
)
