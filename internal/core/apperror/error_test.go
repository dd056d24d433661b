package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Chain(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("load segment: %w", NewInternal(cause).WithDetail("segment_id", "s-1"))

	appErr, ok := AsAppError(err)
	assert.True(t, ok)
	assert.Equal(t, CodeInternal, appErr.Code)
	assert.Equal(t, "s-1", appErr.Details["segment_id"])
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(err))
}

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidation("bad"), http.StatusBadRequest},
		{"filter", NewInvalidFilter("bad filter"), http.StatusBadRequest},
		{"not found", NewNotFound("profile", "p-1"), http.StatusNotFound},
		{"import", NewImportRejected("empty file"), http.StatusUnprocessableEntity},
		{"conflict", NewConcurrentModification("segment", "s-1"), http.StatusConflict},
		{"unavailable", NewUnavailable(errors.New("pool limit")), http.StatusServiceUnavailable},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetHTTPStatus(tt.err))
		})
	}
}

func TestCodePredicates(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", NewNotFound("segment", 1))))
	assert.False(t, IsNotFound(NewValidation("x")))
	assert.True(t, IsConcurrentModification(NewConcurrentModification("profile", 1)))
	assert.False(t, IsAppError(errors.New("plain")))
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("import: %w", NewImportRejected("file is empty").WithDetail("line", 1))
	assert.True(t, HasCode(err, CodeImportRejected))
	assert.False(t, HasCode(err, CodeValidation))
	assert.False(t, HasCode(nil, CodeImportRejected))

	appErr, _ := AsAppError(err)
	assert.Equal(t, "Import rejected: file is empty", appErr.Message)
	assert.Equal(t, map[string]any{"line": 1}, appErr.Details)
}
