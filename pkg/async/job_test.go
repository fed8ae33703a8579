package async_test

import (
	"context"
	"errors"
	"testing"

	"graphsync/pkg/async"

	"github.com/stretchr/testify/require"
)

func TestJob(t *testing.T) {
	t.Parallel()

	t.Run("returns the result", func(t *testing.T) {
		t.Parallel()

		job := async.Job(context.Background(), func(context.Context) (int, error) {
			return 42, nil
		})

		res, err := job.Wait()
		require.NoError(t, err)
		require.Equal(t, 42, res)

		// Wait is repeatable.
		res, err = job.Wait()
		require.NoError(t, err)
		require.Equal(t, 42, res)
	})

	t.Run("returns the error", func(t *testing.T) {
		t.Parallel()

		sentinel := errors.New("boom")
		job := async.Job(context.Background(), func(context.Context) (int, error) {
			return 0, sentinel
		})

		_, err := job.Wait()
		require.ErrorIs(t, err, sentinel)
		require.ErrorIs(t, job.Error(), sentinel)
	})

	t.Run("stop cancels the job context", func(t *testing.T) {
		t.Parallel()

		job := async.Job(context.Background(), func(ctx context.Context) (struct{}, error) {
			<-ctx.Done()
			return struct{}{}, ctx.Err()
		})

		job.Stop()
		job.Stop() // idempotent

		_, err := job.Wait()
		require.ErrorIs(t, err, context.Canceled)
	})
}
