package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
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
)

// Name-Your-Price codes. Eligibility and protocol codes are user correctable;
// commitment codes mean the agreement lapsed or was consumed.
const (
	CodeNotEligible        Code = "NOT_ELIGIBLE"
	CodeProductNotEligible Code = "PRODUCT_NOT_ELIGIBLE"
	CodeAlreadyOpen        Code = "ALREADY_OPEN"
	CodeNegotiationClosed  Code = "NEGOTIATION_CLOSED"
	CodeStaleAccept        Code = "STALE_ACCEPT"
	CodeInvalidAmount      Code = "INVALID_AMOUNT"
	CodeNoActiveAgreement  Code = "NO_ACTIVE_AGREEMENT"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeTokenInvalid       Code = "TOKEN_INVALID"
	CodeAlreadyPaid        Code = "ALREADY_PAID"
	CodeExpiredRejected    Code = "EXPIRED_REJECTED"
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
	CodeNotEligible: {
		HTTPStatus:     http.StatusForbidden,
		PublicMessage:  "not eligible for name your price",
		DetailsAllowed: true,
	},
	CodeProductNotEligible: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "product is not open to offers",
	},
	CodeAlreadyOpen: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "an open negotiation already exists for this product",
		DetailsAllowed: true,
	},
	CodeNegotiationClosed: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "negotiation is closed",
		DetailsAllowed: true,
	},
	CodeStaleAccept: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "offer is no longer current",
		DetailsAllowed: true,
	},
	CodeInvalidAmount: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "invalid amount",
		DetailsAllowed: true,
	},
	CodeNoActiveAgreement: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "no active agreement",
	},
	CodeTokenExpired: {
		HTTPStatus:     http.StatusGone,
		PublicMessage:  "purchase window has expired",
		DetailsAllowed: true,
	},
	CodeTokenInvalid: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "purchase token is invalid",
	},
	CodeAlreadyPaid: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "commitment already paid",
	},
	CodeExpiredRejected: {
		HTTPStatus:     http.StatusGone,
		PublicMessage:  "commitment expired before payment",
		DetailsAllowed: true,
	},
}

// IsClientFacing reports whether the message of an error with this code may be
// returned to the caller verbatim.
func IsClientFacing(code Code) bool {
	switch code {
	case CodeInternal, CodeDependency:
		return false
	}
	_, ok := metadataByCode[code]
	return ok
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

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// HasCode reports whether err carries the given typed code.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
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
