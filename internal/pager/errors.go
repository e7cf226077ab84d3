package pager

import (
	"errors"
	"fmt"
	"time"
)

// PhantomReadError reports a page that stayed inconsistent through every
// retry. It usually means sustained concurrent writes, not corrupt data.
type PhantomReadError struct {
	// Attempts is the number of query rounds run.
	Attempts int

	// Elapsed is the wall time of the whole fetch, backoff included.
	Elapsed time.Duration

	// Page is the shape of the last inconsistent page.
	Page Snapshot
}

// Error implements the error interface.
func (e *PhantomReadError) Error() string {
	return fmt.Sprintf("phantom read: page still inconsistent after %d attempts in %s (rows=%d, total=%d, %s)",
		e.Attempts, e.Elapsed, e.Page.Rows, e.Page.Total, e.Page.PageControl)
}

// IsPhantomReadError reports whether err is or wraps a *PhantomReadError.
func IsPhantomReadError(err error) bool {
	var pe *PhantomReadError
	return errors.As(err, &pe)
}
