package source

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by all backends. Backends wrap these so callers
// can branch with errors.Is while keeping format-specific detail.
var (
	// ErrPasswordRequired reports an encrypted document opened without a
	// password.
	ErrPasswordRequired = errors.New("password required")

	// ErrPasswordIncorrect reports an encrypted document whose password
	// did not verify. Distinct from ErrPasswordRequired so callers can
	// prompt differently.
	ErrPasswordIncorrect = errors.New("password incorrect")

	// ErrUnsupported reports a file that no backend understands.
	ErrUnsupported = errors.New("unsupported document format")

	// ErrCorrupt reports a file that matched a known format but could
	// not be parsed.
	ErrCorrupt = errors.New("corrupt document")
)

// CorruptError carries the position and cause of a parse failure.
// errors.Is(err, ErrCorrupt) is true for it.
type CorruptError struct {
	Path string
	Pos  int64
	Err  error
}

func (e *CorruptError) Error() string {
	if e.Pos > 0 {
		return fmt.Sprintf("%s: corrupt document at byte %d: %v", e.Path, e.Pos, e.Err)
	}
	return fmt.Sprintf("%s: corrupt document: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// Is reports ErrCorrupt so the sentinel matches through wrapping.
func (e *CorruptError) Is(target error) bool {
	return target == ErrCorrupt
}

// PageError reports a failure scoped to a single page. The engine records
// it against the page and keeps the rest of the document usable.
type PageError struct {
	Page int    // original index
	Op   string // "load", "text", "render" or "annotations"
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %s: %v", e.Page, e.Op, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}
