package resourcepool

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned by Checkout when no resource became available within the timeout.
	ErrTimeout = errors.New("resourcepool: checkout timed out")

	// ErrClosed is returned by operations on a closed pool.
	ErrClosed = errors.New("resourcepool: closed")

	// ErrBroken is returned by Checkout after an acquisition failure broke the pool. Reset clears it.
	ErrBroken = errors.New("resourcepool: broken after acquisition failure")

	// ErrUnknownResource is returned when a resource is not managed by the pool. This is the case for resources
	// already reclaimed as overdue or destroyed after a non-draining close.
	ErrUnknownResource = errors.New("resourcepool: resource not managed by this pool")

	// ErrNotCheckedOut is returned by Checkin for a resource that is idle or already being checked in.
	ErrNotCheckedOut = errors.New("resourcepool: resource is not checked out")
)

// AcquireError is returned to checkout waiters when the pool could not acquire new resources after exhausting its
// retries.
type AcquireError struct {
	Err error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("resourcepool: could not acquire resource: %v", e.Err)
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}
