package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:   http.StatusBadRequest,
		KindUnauthorized: http.StatusUnauthorized,
		KindForbidden:    http.StatusForbidden,
		KindNotFound:     http.StatusNotFound,
		KindConflict:     http.StatusConflict,
		KindRateLimited:  http.StatusTooManyRequests,
		KindUpstream:     http.StatusBadGateway,
		KindInternal:     http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.HTTPStatus(), kind.Code())
	}
}

func TestFromKeepsClassifiedErrors(t *testing.T) {
	base := Forbidden("not your order")
	wrapped := fmt.Errorf("notify: %w", base)

	got := From(wrapped)
	assert.Same(t, base, got)
	assert.Equal(t, KindForbidden, KindOf(wrapped))
}

func TestFromHidesRawErrors(t *testing.T) {
	raw := errors.New("pq: password authentication failed for user studio")
	got := From(raw)

	assert.Equal(t, KindInternal, got.Kind)
	assert.Equal(t, "internal error", got.Message)
	assert.NotContains(t, got.Message, "password")
	assert.ErrorIs(t, got, raw)
}

func TestMissedDeadlineIsUpstream(t *testing.T) {
	raw := fmt.Errorf("find order: %w", context.DeadlineExceeded)

	got := From(raw)
	assert.Equal(t, KindUpstream, got.Kind)
	assert.ErrorIs(t, got, context.DeadlineExceeded)
	assert.Equal(t, KindUpstream, Internal(raw).Kind)

	assert.Equal(t, KindInternal, Internal(context.Canceled).Kind)
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("x: %w", Upstream("payment gateway unavailable", errors.New("dial tcp: timeout")))
	assert.ErrorIs(t, err, &Error{Kind: KindUpstream})
	assert.NotErrorIs(t, err, &Error{Kind: KindConflict})
}

func TestRateLimitedCarriesRetryAfter(t *testing.T) {
	err := RateLimited(120)
	assert.Equal(t, 120, err.RetryAfter)
	assert.Equal(t, "RATE_LIMITED", err.Kind.Code())
}
