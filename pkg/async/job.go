package async

import (
	"context"
	"sync/atomic"
)

// JobHandle owns a background goroutine with its own cancellation. Stop is
// idempotent; Wait blocks until the job returns.
type JobHandle[T any] struct {
	cancel  context.CancelFunc
	stopped atomic.Bool
	done    chan Result[T]
	err     atomic.Pointer[error]
}

func Job[T any](parent context.Context, job func(ctx context.Context) (T, error)) *JobHandle[T] {
	ctx, cancel := context.WithCancel(parent)
	handle := &JobHandle[T]{
		cancel: cancel,
		done:   make(chan Result[T], 1),
	}

	go func() {
		defer cancel()

		res, err := job(ctx)

		handle.err.Store(&err)
		handle.done <- NewResult(res, err)
	}()

	return handle
}

func (j *JobHandle[T]) Stop() {
	if j.stopped.CompareAndSwap(false, true) {
		j.cancel()
	}
}

func (j *JobHandle[T]) Wait() (T, error) {
	res := <-j.done
	j.done <- res
	return res.Unpack()
}

// Error returns the job's error once it has finished, nil before that.
func (j *JobHandle[T]) Error() error {
	err := j.err.Load()
	if err == nil {
		return nil
	}
	return *err
}
