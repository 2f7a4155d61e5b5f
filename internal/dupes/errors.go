package dupes

import "fmt"

// MergeError reports a failed call to the merge transport. The scheduler
// does not retry; the account is checked again on its next change.
type MergeError struct {
	Keep   string
	Absorb string
	Err    error
}

// Error implements the error interface.
func (e *MergeError) Error() string {
	return fmt.Sprintf("merge %s into %s: %v", e.Absorb, e.Keep, e.Err)
}

// Unwrap returns the transport error.
func (e *MergeError) Unwrap() error {
	return e.Err
}
