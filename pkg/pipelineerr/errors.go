// Package pipelineerr defines the typed error taxonomy the processing
// pipeline uses instead of ad-hoc error strings. Every error that crosses a
// package boundary in pkg/workflow, pkg/quota, pkg/aiadapter, and
// pkg/repository is (or wraps) one of the kinds declared here, so callers
// can branch on kind with errors.As rather than string matching.
package pipelineerr

import (
	"errors"
	"fmt"
)

// TransientInfra wraps an error from a dependency expected to recover on its
// own (database connection drop, HTTP timeout, DNS failure). The workflow
// engine retries items failing with this kind under its backoff policy.
type TransientInfra struct {
	Op  string
	Err error
}

func (e *TransientInfra) Error() string {
	return fmt.Sprintf("transient infra error during %s: %v", e.Op, e.Err)
}

func (e *TransientInfra) Unwrap() error { return e.Err }

// NewTransientInfra wraps err as a TransientInfra error tagged with the
// operation that failed.
func NewTransientInfra(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientInfra{Op: op, Err: err}
}

// QuotaExceeded is returned by the quota manager when admitting a call would
// exceed a rolling limit. RetryAfter is the manager's best estimate of when
// the call would be admitted.
type QuotaExceeded struct {
	Service    string
	Limit      string
	RetryAfter string
}

func (e *QuotaExceeded) Error() string {
	return fmt.Sprintf("quota exceeded for %s (%s); retry after %s", e.Service, e.Limit, e.RetryAfter)
}

// AIParseError indicates the AI adapter received a response it could not
// parse into the expected schema, after exhausting its repair attempts.
type AIParseError struct {
	Stage    string
	RawReply string
	Err      error
}

func (e *AIParseError) Error() string {
	return fmt.Sprintf("failed to parse AI response at stage %s: %v", e.Stage, e.Err)
}

func (e *AIParseError) Unwrap() error { return e.Err }

// IntegrityConflict indicates a uniqueness or referential constraint was
// violated in a way that signals a genuine data conflict (two workers
// racing to create the same product) rather than a bug. Callers typically
// re-read and retry once rather than propagating.
type IntegrityConflict struct {
	Entity string
	Key    string
	Err    error
}

func (e *IntegrityConflict) Error() string {
	return fmt.Sprintf("integrity conflict on %s (key=%s): %v", e.Entity, e.Key, e.Err)
}

func (e *IntegrityConflict) Unwrap() error { return e.Err }

// BusinessLogicError indicates the pipeline reached a state it cannot make
// progress from through normal retry (malformed source data, a product with
// no resolvable identity). These are not retried; they move the workflow
// item to FAILED with the message preserved.
type BusinessLogicError struct {
	Reason string
}

func (e *BusinessLogicError) Error() string { return e.Reason }

// NewBusinessLogicError builds a BusinessLogicError from a formatted reason.
func NewBusinessLogicError(format string, args ...any) error {
	return &BusinessLogicError{Reason: fmt.Sprintf(format, args...)}
}

// Fatal indicates a misconfiguration or environment failure that no amount
// of per-item retry will resolve (missing credentials, schema mismatch at
// startup). The workflow engine moves an item failing with this kind to
// FAILED without retry and goes on claiming other work.
type Fatal struct {
	Reason string
	Err    error
}

func (e *Fatal) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *Fatal) Unwrap() error { return e.Err }

// NewFatal wraps err as a Fatal error with an operator-facing reason.
func NewFatal(reason string, err error) error {
	return &Fatal{Reason: reason, Err: err}
}

// IsTransient reports whether err (or something it wraps) is a
// TransientInfra error.
func IsTransient(err error) bool {
	var t *TransientInfra
	return errors.As(err, &t)
}

// IsQuotaExceeded reports whether err (or something it wraps) is a
// QuotaExceeded error.
func IsQuotaExceeded(err error) bool {
	var q *QuotaExceeded
	return errors.As(err, &q)
}

// IsAIParseError reports whether err (or something it wraps) is an
// AIParseError.
func IsAIParseError(err error) bool {
	var a *AIParseError
	return errors.As(err, &a)
}

// IsIntegrityConflict reports whether err (or something it wraps) is an
// IntegrityConflict error.
func IsIntegrityConflict(err error) bool {
	var i *IntegrityConflict
	return errors.As(err, &i)
}

// IsBusinessLogicError reports whether err (or something it wraps) is a
// BusinessLogicError.
func IsBusinessLogicError(err error) bool {
	var b *BusinessLogicError
	return errors.As(err, &b)
}

// IsFatal reports whether err (or something it wraps) is a Fatal error.
func IsFatal(err error) bool {
	var f *Fatal
	return errors.As(err, &f)
}

// Retryable reports whether the workflow engine should schedule a backoff
// retry for err, as opposed to failing the item outright. Transient infra
// and quota-exceeded errors are retryable; everything else is terminal for
// the current attempt.
func Retryable(err error) bool {
	return IsTransient(err) || IsQuotaExceeded(err)
}
