package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audience/internal/core/apperror"
	"audience/internal/core/tx"
)

func TestPaginate(t *testing.T) {
	all := []int{1, 2, 3, 4, 5}

	tests := []struct {
		name          string
		limit, offset int
		want          []int
		wantLimit     int
	}{
		{"first page", 2, 0, []int{1, 2}, 2},
		{"last partial page", 2, 4, []int{5}, 2},
		{"past the end", 2, 10, []int{}, 2},
		{"default limit", 0, 0, []int{1, 2, 3, 4, 5}, DefaultPageSize},
		{"negative offset", 3, -1, []int{1, 2, 3}, 3},
		{"limit capped", MaxPageSize + 1, 0, []int{1, 2, 3, 4, 5}, MaxPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Paginate(all, tt.limit, tt.offset)
			assert.Equal(t, tt.want, got.Items)
			assert.Equal(t, int64(5), got.TotalCount)
			assert.Equal(t, tt.wantLimit, got.Limit)
		})
	}

	assert.NotNil(t, Paginate[int](nil, 10, 0).Items)
}

func TestHookRegistry_RunsAllHooks(t *testing.T) {
	reg := NewHookRegistry[string]()
	var calls []string

	reg.On(AfterUpdate, func(_ context.Context, s string) error {
		calls = append(calls, "first:"+s)
		return errors.New("boom")
	})
	reg.On(AfterUpdate, func(_ context.Context, s string) error {
		calls = append(calls, "second:"+s)
		return nil
	})

	err := reg.Run(context.Background(), AfterUpdate, "p-1")
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{"first:p-1", "second:p-1"}, calls)
	assert.NoError(t, reg.Run(context.Background(), AfterDelete, "p-1"))
}

func TestErrorNormalization(t *testing.T) {
	assert.NoError(t, ValidationErr(nil))

	appErr, ok := apperror.AsAppError(ValidationErr(errors.New("name is required")))
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)

	filterErr := apperror.NewInvalidFilter("bad")
	assert.Same(t, filterErr, ValidationErr(filterErr))

	appErr, _ = apperror.AsAppError(GetErr(apperror.NewNotFound("profiles", "x"), "profile", "p-1"))
	assert.Equal(t, "profile not found", appErr.Message)

	appErr, _ = apperror.AsAppError(GetErr(errors.New("conn reset"), "segment", "s-1"))
	assert.Equal(t, apperror.CodeInternal, appErr.Code)
}

func TestTxManager(t *testing.T) {
	txm, err := TxManager(context.Background(), tx.Noop{})
	require.NoError(t, err)
	assert.Equal(t, tx.Noop{}, txm)

	_, err = TxManager(context.Background(), nil)
	assert.Error(t, err)
}
