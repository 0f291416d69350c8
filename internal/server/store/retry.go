package store

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/chatline/internal/common"
)

// Try runs fn, retrying exactly once after a short pause when it fails with
// a transient storage error. A missing key is a result, not a failure, and
// is never retried.
func Try(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(100*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || errors.Is(err, common.ErrNotFound) {
			return err
		}
		return retry.RetryableError(err)
	})
}
