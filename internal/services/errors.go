package services

import (
	"errors"
	"fmt"
	"gorm.io/gorm"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindDomain
	KindExternal
)

// Error is a domain failure carrying the category the transport maps to a status.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind and message so wrapped copies still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

func newErr(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) error {
	return newErr(KindValidation, format, args...)
}

func NotFound(what string) error {
	return newErr(KindNotFound, "%s not found", what)
}

func Forbidden(format string, args ...interface{}) error {
	return newErr(KindForbidden, format, args...)
}

func Conflict(format string, args ...interface{}) error {
	return newErr(KindConflict, format, args...)
}

var (
	ErrUnauthorized       = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrInvalidCredentials = &Error{Kind: KindUnauthorized, Message: "invalid email or password"}
	ErrUserBlocked        = &Error{Kind: KindForbidden, Message: "account is blocked"}
	ErrSelfBooking        = &Error{Kind: KindDomain, Message: "you cannot book yourself"}
	ErrMentorNotPremium   = &Error{Kind: KindDomain, Message: "this mentor's premium has expired"}
	ErrPaymentInitiation  = &Error{Kind: KindExternal, Message: "could not initiate payment"}
	ErrAlreadyPremium     = &Error{Kind: KindConflict, Message: "user already has an active premium subscription"}
	ErrPaymentOutstanding = &Error{Kind: KindConflict, Message: "booking payment has not been completed"}
	ErrMentorLimitReached = &Error{Kind: KindDomain, Message: "free mentors cannot hold more active bookings"}
	ErrDuplicateReview    = &Error{Kind: KindConflict, Message: "this booking has already been reviewed"}
	ErrReviewNotAllowed   = &Error{Kind: KindDomain, Message: "only completed sessions can be reviewed"}
	ErrEmailTaken         = &Error{Kind: KindConflict, Message: "email already registered"}
	ErrInvalidTransition  = &Error{Kind: KindDomain, Message: "booking status transition not allowed"}
)

// KindOf reports the category of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return KindNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return KindConflict
	}
	return KindInternal
}

// HTTPStatus maps err to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindDomain:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage hides internal error details from clients.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	switch KindOf(err) {
	case KindNotFound:
		return "resource not found"
	case KindConflict:
		return "resource already exists"
	}
	return "internal server error"
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(what)
	}
	return err
}
