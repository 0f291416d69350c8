package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/chatline/internal/common"
)

func TestTry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Try(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestTry_RetriesTransientFailureOnce(t *testing.T) {
	transient := errors.New("connection reset")
	calls := 0
	err := Try(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return transient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestTry_GivesUpAfterSecondFailure(t *testing.T) {
	transient := errors.New("connection reset")
	calls := 0
	err := Try(context.Background(), func(ctx context.Context) error {
		calls++
		return transient
	})
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 2, calls)
}

func TestTry_NotFoundIsNotRetried(t *testing.T) {
	calls := 0
	err := Try(context.Background(), func(ctx context.Context) error {
		calls++
		return common.ErrNotFound
	})
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, 1, calls)
}
