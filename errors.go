/*
Package dynatable – error taxonomy.
*/
package dynatable

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// ErrorCode is a well-known error category string.
type ErrorCode string

const (
	ErrValidation    ErrorCode = "ValidationError"
	ErrSerialization ErrorCode = "SerializationError"
	ErrTransport     ErrorCode = "TransportError"
	ErrArgument      ErrorCode = "ArgumentError"
)

// Error is the general library error. It carries a Code and an optional
// free-form Context map for extra debugging data.
type Error struct {
	Message string
	Code    ErrorCode
	Context map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs an Error.
func NewError(msg string, opts ...func(*Error)) *Error {
	err := &Error{Message: msg}
	for _, o := range opts {
		o(err)
	}
	return err
}

// WithCode sets the error code.
func WithCode(c ErrorCode) func(*Error) {
	return func(e *Error) { e.Code = c }
}

// WithContext attaches a context map.
func WithContext(ctx map[string]any) func(*Error) {
	return func(e *Error) { e.Context = ctx }
}

// WithCause wraps an underlying error.
func WithCause(cause error) func(*Error) {
	return func(e *Error) { e.Cause = cause }
}

func newValidationError(format string, args ...any) *Error {
	return NewError(fmt.Sprintf(format, args...), WithCode(ErrValidation))
}

func newSerializationError(format string, args ...any) *Error {
	return NewError(fmt.Sprintf(format, args...), WithCode(ErrSerialization))
}

// IsValidation reports whether err is a locally-detected malformed request.
func IsValidation(err error) bool { return hasCode(err, ErrValidation) }

// IsSerialization reports whether err is a wire-format conversion failure.
func IsSerialization(err error) bool { return hasCode(err, ErrSerialization) }

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// ─── Transport errors ─────────────────────────────────────────────────────────

// TransportError wraps a network or service-level failure from the injected
// client. Retryable distinguishes throttling / internal faults (eligible for
// backoff) from fatal rejections (access denied, resource missing).
type TransportError struct {
	Op        string
	Retryable bool
	Cause     error
}

func (e *TransportError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s: %s transport failure: %s", e.Op, kind, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// retryableFaults are service fault codes eligible for backoff and retry.
var retryableFaults = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"ThrottlingException":                    true,
	"RequestLimitExceeded":                   true,
	"InternalServerError":                    true,
	"ServiceUnavailable":                     true,
	"LimitExceededException":                 true,
	"TransactionInProgressException":         true,
}

// wrapTransport classifies a client error into a TransportError.
// Context cancellation is passed through untouched so callers can match
// context.Canceled / context.DeadlineExceeded directly.
func wrapTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &TransportError{Op: op, Retryable: isRetryableFault(err), Cause: err}
}

func isRetryableFault(err error) bool {
	var throttle *types.ProvisionedThroughputExceededException
	if errors.As(err, &throttle) {
		return true
	}
	var internal *types.InternalServerError
	if errors.As(err, &internal) {
		return true
	}
	var api smithy.APIError
	if errors.As(err, &api) {
		if retryableFaults[api.ErrorCode()] {
			return true
		}
		return api.ErrorFault() == smithy.FaultServer
	}
	// connection resets and other non-API failures are worth another try
	msg := err.Error()
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "EOF")
}

// IsRetryable reports whether err is a transient transport failure.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Retryable
}

// ─── Partial failure ──────────────────────────────────────────────────────────

// PartialFailureError is raised when a batch operation exhausts its retry
// budget with items still unprocessed. The remaining items are carried in
// deserialized form so the caller can resume.
type PartialFailureError struct {
	Op string

	// BatchWrite remainders
	UnprocessedPuts    []Item
	UnprocessedDeletes []Item

	// BatchGet remainder
	UnprocessedKeys []Item

	Cause error
}

func (e *PartialFailureError) Error() string {
	n := len(e.UnprocessedPuts) + len(e.UnprocessedDeletes) + len(e.UnprocessedKeys)
	return fmt.Sprintf("%s: %d items unprocessed after retries exhausted", e.Op, n)
}

func (e *PartialFailureError) Unwrap() error { return e.Cause }

// ─── Transaction cancellation ─────────────────────────────────────────────────

// Cancellation reason codes reported by the service per transaction item.
const (
	ReasonNone                  = "None"
	ReasonConditionCheckFailed  = "ConditionalCheckFailed"
	ReasonItemCollision         = "TransactionConflict"
	ReasonThroughputExceeded    = "ProvisionedThroughputExceeded"
	ReasonItemSizeLimitExceeded = "ItemCollectionSizeLimitExceeded"
	ReasonValidationFailed      = "ValidationError"
	ReasonDuplicateItem         = "DuplicateItem"
)

// CancellationReason describes why one operation inside a cancelled
// transaction was rejected. Code is ReasonNone for operations that were
// not at fault.
type CancellationReason struct {
	Code    string
	Message string
}

// TransactionCanceledError carries per-operation cancellation reasons.
// Reasons is index-aligned with the submitted operations.
type TransactionCanceledError struct {
	Reasons []CancellationReason
	Cause   error
}

func (e *TransactionCanceledError) Error() string {
	codes := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		codes[i] = r.Code
	}
	return fmt.Sprintf("transaction canceled: [%s]", strings.Join(codes, ", "))
}

func (e *TransactionCanceledError) Unwrap() error { return e.Cause }

// decodeCancellation converts a service TransactionCanceledException into a
// TransactionCanceledError, preserving the positional reason alignment. The
// reason list is padded to count entries when the response omits trailing
// reasons.
func decodeCancellation(err error, count int) (*TransactionCanceledError, bool) {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return nil, false
	}
	reasons := make([]CancellationReason, 0, count)
	for _, r := range canceled.CancellationReasons {
		reason := CancellationReason{Code: ReasonNone}
		if r.Code != nil {
			reason.Code = *r.Code
		}
		if r.Message != nil {
			reason.Message = *r.Message
		}
		reasons = append(reasons, reason)
	}
	for len(reasons) < count {
		reasons = append(reasons, CancellationReason{Code: ReasonNone})
	}
	return &TransactionCanceledError{Reasons: reasons, Cause: err}, true
}
