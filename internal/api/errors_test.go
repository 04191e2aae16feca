package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApiError(t *testing.T) {
	tcases := []struct {
		name       string
		err        *ApiError
		statusCode int
		message    string
	}{
		{name: "bad request", err: NewBadRequestError(), statusCode: http.StatusBadRequest, message: "bad request"},
		{name: "not found", err: NewNotFoundError(), statusCode: http.StatusNotFound, message: "not found"},
		{name: "unauthorized", err: NewUnauthorizedError(), statusCode: http.StatusUnauthorized, message: "unauthorized"},
		{name: "forbidden", err: NewForbiddenError(), statusCode: http.StatusForbidden, message: "forbidden"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.statusCode, tc.err.StatusCode, "expected status code to match")
			assert.Equal(t, tc.message, tc.err.Message, "expected message to match")
			assert.Equal(t, tc.message, tc.err.Error(), "expected Error to render the message")
		})
	}
}

func TestApiError_Wrapped(t *testing.T) {
	cause := errors.New("db down")
	err := NewInternalServerError(cause)

	assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
	assert.Equal(t, "internal server error: db down", err.Error(), "expected the cause in the rendered error")
	assert.ErrorIs(t, err, cause, "expected the cause to be unwrappable")
}
