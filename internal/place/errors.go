package place

import (
	"errors"
	"fmt"
)

// ErrConflict signals a store uniqueness violation that is not a legitimate
// idempotent re-write, e.g. the same external id reported on a different page.
// It indicates a logic bug or a concurrent writer and is never retried.
var ErrConflict = errors.New("store conflict")

// ErrNotFound signals a reference to an id with no owner row.
var ErrNotFound = errors.New("not found")

// TransientFetchError wraps a network or timeout failure that is worth
// retrying with backoff.
type TransientFetchError struct {
	URL string
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient fetch failure for %s: %v", e.URL, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// ExtractionError records a malformed or unsupported input file. It is stored
// per document and never aborts the surrounding run.
type ExtractionError struct {
	FileName string
	Reason   string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %s", e.FileName, e.Reason)
}

// UnresolvedIdentifierError records a label batch entry whose external
// identifier could not be mapped to a document.
type UnresolvedIdentifierError struct {
	Identifier string
	Source     string
}

func (e *UnresolvedIdentifierError) Error() string {
	return fmt.Sprintf("cannot resolve %s identifier %q to a document", e.Source, e.Identifier)
}
