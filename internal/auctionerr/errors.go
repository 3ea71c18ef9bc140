// Package auctionerr holds the error taxonomy shared by the ledger, the
// lifecycle tracker, the query service and the HTTP layer.
package auctionerr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

type Code string

const (
	ValidationFailed Code = "ValidationFailed"
	Unauthorized     Code = "Unauthorized"
	Forbidden        Code = "Forbidden"
	ForbiddenSelfBid Code = "ForbiddenSelfBid"
	NotFound         Code = "NotFound"
	AuctionNotActive Code = "AuctionNotActive"
	BidTooLow        Code = "BidTooLow"
	Conflict         Code = "Conflict"
	InternalError    Code = "InternalError"
)

type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code, so the code-only sentinels below
// work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrValidation       = &Error{Code: ValidationFailed}
	ErrUnauthorized     = &Error{Code: Unauthorized}
	ErrForbidden        = &Error{Code: Forbidden}
	ErrForbiddenSelfBid = &Error{Code: ForbiddenSelfBid}
	ErrNotFound         = &Error{Code: NotFound}
	ErrAuctionNotActive = &Error{Code: AuctionNotActive}
	ErrBidTooLow        = &Error{Code: BidTooLow}
	ErrConflict         = &Error{Code: Conflict}
	ErrInternal         = &Error{Code: InternalError}
)

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(field, message string) *Error {
	return &Error{
		Code:    ValidationFailed,
		Message: fmt.Sprintf("%s %s", field, message),
		Details: map[string]any{"field": field},
	}
}

func TooLow(minimum decimal.Decimal) *Error {
	return &Error{
		Code:    BidTooLow,
		Message: fmt.Sprintf("bid must be at least %s", minimum.StringFixed(2)),
		Details: map[string]any{"minimumBid": minimum},
	}
}

func NotActive(auctionID string, reason string) *Error {
	return &Error{
		Code:    AuctionNotActive,
		Message: fmt.Sprintf("auction %s is not accepting bids: %s", auctionID, reason),
	}
}

// From returns the *Error in err's chain. Anything else becomes InternalError
// with a generic message.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: InternalError, Message: "internal server error"}
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	return From(err).Code
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ValidationFailed:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden, ForbiddenSelfBid:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case AuctionNotActive, Conflict:
		return http.StatusConflict
	case BidTooLow:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
