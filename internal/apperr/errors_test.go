package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
	}{
		{&NetworkError{Op: "list notes", Err: context.DeadlineExceeded}, ErrNetwork},
		{&ServerError{Op: "list notes", Status: 503}, ErrServer},
		{&ValidationError{Fields: map[string]string{"title": "Title is required"}}, ErrValidation},
		{&NotFoundError{ID: "abc"}, ErrNotFound},
		{&ConfigError{Field: "api.token", Reason: "is required"}, ErrConfig},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("outer: %w", tc.err)
		assert.ErrorIs(t, wrapped, tc.sentinel, tc.err.Error())
	}
}

func TestNetworkErrorUnwraps(t *testing.T) {
	err := &NetworkError{Op: "delete note", Err: context.DeadlineExceeded}
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestValidationErrorMessageIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{
		"title":   "Title is required",
		"content": "Content is required",
	}}
	assert.Equal(t, "validation failed: content: Content is required; title: Title is required", err.Error())
	assert.Equal(t, "Title is required", err.Field("title"))
	assert.Empty(t, err.Field("tag"))
}

func TestServerErrorMessage(t *testing.T) {
	err := &ServerError{Op: "create note", Status: 500, Message: "boom"}
	assert.Equal(t, "create note: server returned 500: boom", err.Error())
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError(map[string]error{"title": errors.New("Title is required")})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Title is required", err.Field("title"))
}
