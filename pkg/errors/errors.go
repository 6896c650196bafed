package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"
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
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeInvalidParty         Code = "INVALID_PARTY"
	CodeInvalidAmount        Code = "INVALID_AMOUNT"
	CodeInvalidDuration      Code = "INVALID_DURATION"
	CodeAlreadyPaused        Code = "ALREADY_PAUSED"
	CodeNotPaused            Code = "NOT_PAUSED"
	CodeGigCompleted         Code = "GIG_COMPLETED"
	CodeNotYetVested         Code = "NOT_YET_VESTED"
	CodeAlreadySettled       Code = "ALREADY_SETTLED"
	CodeNothingToPay         Code = "NOTHING_TO_PAY"
	CodeLedgerTransferFailed Code = "LEDGER_TRANSFER_FAILED"
	CodeConcurrencyConflict  Code = "CONCURRENCY_CONFLICT"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		Retryable:      false,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeUnauthorized: {
		HTTPStatus:     http.StatusUnauthorized,
		Retryable:      false,
		PublicMessage:  "authentication required",
		DetailsAllowed: false,
	},
	CodeForbidden: {
		HTTPStatus:     http.StatusForbidden,
		Retryable:      false,
		PublicMessage:  "access denied",
		DetailsAllowed: false,
	},
	CodeNotFound: {
		HTTPStatus:     http.StatusNotFound,
		Retryable:      false,
		PublicMessage:  "resource not found",
		DetailsAllowed: false,
	},
	CodeConflict: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      false,
		PublicMessage:  "conflict detected",
		DetailsAllowed: false,
	},
	CodeStateConflict: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
	},
	CodeIdempotency: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      false,
		PublicMessage:  "idempotency key reused",
		DetailsAllowed: true,
	},
	CodeRateLimit: {
		HTTPStatus:     http.StatusTooManyRequests,
		Retryable:      false,
		PublicMessage:  "rate limit exceeded",
		DetailsAllowed: false,
	},
	CodeInternal: {
		HTTPStatus:     http.StatusInternalServerError,
		Retryable:      true,
		PublicMessage:  "internal server error",
		DetailsAllowed: false,
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
	CodeInvalidParty: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "client and freelancer must be distinct identities",
		DetailsAllowed: true,
	},
	CodeInvalidAmount: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "amount must be positive and representable by the ledger",
		DetailsAllowed: true,
	},
	CodeInvalidDuration: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "duration must be positive",
		DetailsAllowed: true,
	},
	CodeAlreadyPaused: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		PublicMessage: "gig is already paused",
	},
	CodeNotPaused: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		PublicMessage: "gig is not paused",
	},
	CodeGigCompleted: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		PublicMessage: "gig has fully vested",
	},
	CodeNotYetVested: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "gig has not fully vested",
		DetailsAllowed: true,
	},
	CodeAlreadySettled: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		PublicMessage: "gig is already settled",
	},
	CodeNothingToPay: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		PublicMessage: "nothing has vested since the last payout",
	},
	CodeLedgerTransferFailed: {
		HTTPStatus:     http.StatusBadGateway,
		Retryable:      true,
		PublicMessage:  "ledger transfer failed; payout recorded for reconciliation",
		DetailsAllowed: true,
	},
	CodeConcurrencyConflict: {
		HTTPStatus:    http.StatusConflict,
		Retryable:     true,
		PublicMessage: "gig is busy, retry the operation",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
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

// Describe renders every link of err's chain, skipping links whose text
// the previous one already carries. Error() on a typed error stops at its
// own message, which loses the cause when the text is persisted.
func Describe(err error) string {
	var parts []string
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		msg := e.Error()
		if msg == "" {
			continue
		}
		if n := len(parts); n > 0 && strings.Contains(parts[n-1], msg) {
			continue
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

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
