package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := New(KindNotFound, "gone")
	assert.Equal(t, KindNotFound, KindOf(err))

	// The kind survives wrapping.
	wrapped := fmt.Errorf("while handling request: %w", err)
	assert.Equal(t, KindNotFound, KindOf(wrapped))

	// Unclassified errors are internal.
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "gone", MessageOf(New(KindNotFound, "gone")))

	// Unclassified errors never leak their text to the client.
	assert.Equal(t, "Internal server error, please consult logs", MessageOf(errors.New("secret db details")))
}

func TestErrorString(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindUpstreamUnavailable, "store not reachable", cause)

	assert.Contains(t, err.Error(), "store not reachable")
	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind   Kind
		status int
	}{
		{KindBadRequest, http.StatusBadRequest},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindUnsupportedMediaType, http.StatusUnsupportedMediaType},
		{KindPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{KindUpstreamUnavailable, http.StatusBadGateway},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, HTTPStatus(tt.kind))
	}
}
