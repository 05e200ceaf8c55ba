package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"time"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeAlreadySettled         Code = "ALREADY_SETTLED"
	CodeAlreadyVoided          Code = "ALREADY_VOIDED"
	CodeInconsistent           Code = "INCONSISTENT_STATE"
	CodeMirrorProjectionFailed Code = "MIRROR_PROJECTION_FAILED"

	// Warning-only codes: they ride on a committed result, never on a failure.
	CodePayoutDivergence     Code = "PAYOUT_DIVERGES_FROM_AGREED"
	CodeSettledPayoutRemains Code = "SETTLED_PAYOUT_REMAINS"
	CodeOverpaid             Code = "COMMISSION_OVERPAID"
	CodeAmbiguousRetraction  Code = "AMBIGUOUS_RETRACTION"
)

// Metadata decides how a code is rendered to API clients.
type Metadata struct {
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
	// DetailsAllowed lets Error.Details reach the client.
	DetailsAllowed bool
	// ExposeMessage replaces PublicMessage with the error's own message. Only
	// set for codes whose messages are written for the till operator.
	ExposeMessage bool
	// RetryAfter is sent as a Retry-After header when non-zero.
	RetryAfter time.Duration
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true, ExposeMessage: true},
	CodeUnauthorized:  {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required", ExposeMessage: true},
	CodeForbidden:     {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied", ExposeMessage: true},
	CodeNotFound:      {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found", ExposeMessage: true},
	CodeConflict:      {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected", ExposeMessage: true},
	CodeStateConflict: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true, ExposeMessage: true},
	CodeIdempotency:   {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true, ExposeMessage: true},
	CodeInternal:      {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
		RetryAfter:     2 * time.Second,
	},

	CodeAlreadySettled: {HTTPStatus: http.StatusConflict, PublicMessage: "settlement already paid", DetailsAllowed: true, ExposeMessage: true},
	CodeAlreadyVoided:  {HTTPStatus: http.StatusConflict, PublicMessage: "sale already voided", ExposeMessage: true},
	// Negative derived stock means a compensating movement went missing upstream.
	CodeInconsistent: {HTTPStatus: http.StatusInternalServerError, PublicMessage: "ledger state is inconsistent", DetailsAllowed: true},
	CodeMirrorProjectionFailed: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "expense mirror could not be written",
		DetailsAllowed: true,
		RetryAfter:     30 * time.Second,
	},

	CodePayoutDivergence:     {HTTPStatus: http.StatusOK, PublicMessage: "payout differs from agreed price", DetailsAllowed: true},
	CodeSettledPayoutRemains: {HTTPStatus: http.StatusOK, PublicMessage: "settled payout needs manual reversal", DetailsAllowed: true},
	CodeOverpaid:             {HTTPStatus: http.StatusOK, PublicMessage: "commission overpaid for period", DetailsAllowed: true},
	CodeAmbiguousRetraction:  {HTTPStatus: http.StatusOK, PublicMessage: "mirrored expense match was ambiguous", DetailsAllowed: true},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error every layer returns. The code picks the HTTP
// status; the cause stays in logs only.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Errorf is New with a formatted message. %w is not honoured; use Wrap to
// keep a cause.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails attaches client-visible context; it is dropped for codes whose
// metadata disallows details.
func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
