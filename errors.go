package c3p0

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrPoolNotFound is returned by Manager.LookupPool when no sub-pool exists for a credential.
	ErrPoolNotFound = errors.New("c3p0: no pool for credential")

	// ErrClosed is returned by operations on a closed Manager, Pool or Conn.
	ErrClosed = errors.New("c3p0: closed")

	// ErrIncompatibleConnection may be wrapped by a ConnectionCustomizer to report a connection of a type it cannot
	// handle. It is the only customizer error that is not swallowed.
	ErrIncompatibleConnection = errors.New("c3p0: incompatible connection")

	// ErrPrepareUnsupported is returned by Conn.Prepare when the physical connection cannot prepare statements.
	ErrPrepareUnsupported = errors.New("c3p0: physical connection does not support prepared statements")
)

// TimeoutError is returned by Pool.Checkout when no connection became available within CheckoutTimeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("c3p0: checkout timed out after %v", e.Timeout)
}

// AcquireError is returned when physical connections could not be acquired after exhausting retries. Broken is true
// when the failure broke the pool; further checkouts fail until the pool is reset.
type AcquireError struct {
	User   string
	Broken bool
	Err    error
}

func (e *AcquireError) Error() string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "c3p0: could not acquire connection for %s", e.User)
	if e.Broken {
		sb.WriteString(", pool is broken")
	}
	if e.Err != nil {
		fmt.Fprintf(sb, ": %s", e.Err.Error())
	}
	return sb.String()
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

// ValidationError reports a connection that failed its health test.
type ValidationError struct {
	Result TestResult
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("c3p0: connection test failed: %s", e.Result)
	}
	return fmt.Sprintf("c3p0: connection test failed: %s: %s", e.Result, e.Err.Error())
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports an invalid configuration value or database state that prevents a pool from being built.
type ConfigurationError struct {
	Property string
	Msg      string
	Err      error
}

func (e *ConfigurationError) Error() string {
	sb := &strings.Builder{}
	sb.WriteString("c3p0: invalid configuration")
	if e.Property != "" {
		fmt.Fprintf(sb, " of %s", e.Property)
	}
	fmt.Fprintf(sb, ": %s", e.Msg)
	if e.Err != nil {
		fmt.Fprintf(sb, " (%s)", e.Err.Error())
	}
	return sb.String()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ResourceStateError reports a checkin of a connection the pool no longer recognizes, for example one already reclaimed
// as overdue.
type ResourceStateError struct {
	Msg string
	Err error
}

func (e *ResourceStateError) Error() string {
	if e.Err == nil {
		return "c3p0: " + e.Msg
	}
	return fmt.Sprintf("c3p0: %s: %s", e.Msg, e.Err.Error())
}

func (e *ResourceStateError) Unwrap() error {
	return e.Err
}
