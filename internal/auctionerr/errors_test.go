package auctionerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("place bid: %w", TooLow(decimal.NewFromInt(110)))

	assert.True(t, errors.Is(err, ErrBidTooLow))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, BidTooLow, CodeOf(err))
	assert.True(t, decimal.NewFromInt(110).Equal(From(err).Details["minimumBid"].(decimal.Decimal)))
}

func TestFromHidesUnknownErrors(t *testing.T) {
	e := From(errors.New("pq: connection refused"))

	assert.Equal(t, InternalError, e.Code)
	assert.Equal(t, "internal server error", e.Message)
}

func TestHTTPStatus(t *testing.T) {
	tests := map[error]int{
		Validation("amount", "must be positive"): http.StatusBadRequest,
		ErrUnauthorized:                          http.StatusUnauthorized,
		ErrForbiddenSelfBid:                      http.StatusForbidden,
		ErrNotFound:                              http.StatusNotFound,
		NotActive("a1", "ended"):                 http.StatusConflict,
		ErrConflict:                              http.StatusConflict,
		TooLow(decimal.NewFromInt(1)):            http.StatusUnprocessableEntity,
		errors.New("boom"):                       http.StatusInternalServerError,
	}
	for err, want := range tests {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}
