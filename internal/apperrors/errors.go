package apperrors

import "errors"

// Error kinds shared by the range parser, the orchestrator and the front
// ends. Details are attached with fmt.Errorf("%w: ...") and matched with
// errors.Is.
var (
	ErrInvalidRangeFormat = errors.New("invalid range format")
	ErrOutOfBounds        = errors.New("page out of bounds")
	ErrInsufficientInputs = errors.New("insufficient inputs")
	ErrNotAPDF            = errors.New("not a pdf file")
	ErrCorruptDocument    = errors.New("corrupt document")
	ErrIO                 = errors.New("io failure")
)
