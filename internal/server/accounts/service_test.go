package accounts

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/chatline/internal/common"
	"github.com/dmitrijs2005/chatline/internal/logging"
	"github.com/dmitrijs2005/chatline/internal/server/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	return NewService(store.NewMemory(), logger)
}

func TestCreateAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	require.NoError(t, s.Create(ctx, "alice", "s3cret"))

	assert.NoError(t, s.Authenticate(ctx, "alice", "s3cret"))
	assert.ErrorIs(t, s.Authenticate(ctx, "alice", "wrong"), common.ErrWrongPassword)
	assert.ErrorIs(t, s.Authenticate(ctx, "bob", "s3cret"), common.ErrNoSuchAccount)
}

func TestCreate_DuplicateUsername(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	require.NoError(t, s.Create(ctx, "alice", "first"))
	assert.ErrorIs(t, s.Create(ctx, "alice", "second"), common.ErrUsernameTaken)

	// The original credentials still work; the second create changed nothing.
	assert.NoError(t, s.Authenticate(ctx, "alice", "first"))
	assert.ErrorIs(t, s.Authenticate(ctx, "alice", "second"), common.ErrWrongPassword)
}

func TestCreate_CaseSensitiveUsernames(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	require.NoError(t, s.Create(ctx, "alice", "pw"))
	require.NoError(t, s.Create(ctx, "Alice", "pw"))

	assert.NoError(t, s.Authenticate(ctx, "Alice", "pw"))
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"empty username", "", "pw"},
		{"empty password", "alice", ""},
		{"slash in username", "ali/ce", "pw"},
		{"space in username", "ali ce", "pw"},
		{"overlong username", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "pw"},
		{"overlong password", "alice", string(make([]byte, 73))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.Create(ctx, tt.username, tt.password), common.ErrValidation)
		})
	}
}

func TestCreate_ConcurrentSameUsername(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.Create(ctx, "alice", "pw")
		}()
	}
	wg.Wait()
	close(results)

	var created, taken int
	for err := range results {
		switch {
		case err == nil:
			created++
		default:
			require.ErrorIs(t, err, common.ErrUsernameTaken)
			taken++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, taken)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	require.NoError(t, s.Create(ctx, "alice", "pw"))
	require.NoError(t, s.Delete(ctx, "alice"))

	assert.ErrorIs(t, s.Authenticate(ctx, "alice", "pw"), common.ErrNoSuchAccount)
	assert.ErrorIs(t, s.Delete(ctx, "alice"), common.ErrNoSuchAccount)

	// The name is free again.
	assert.NoError(t, s.Create(ctx, "alice", "pw2"))
}

func TestExistsAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	require.NoError(t, s.Create(ctx, "bob", "pw"))
	require.NoError(t, s.Create(ctx, "alice", "pw"))

	ok, err := s.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "carol")
	require.NoError(t, err)
	assert.False(t, ok)

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)
}
