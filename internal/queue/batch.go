package queue

import "context"

// BatchOpts configures AddBatch.
type BatchOpts struct {
	Priority   int
	OnProgress func(completed, total int)
	OnError    func(index int, err error)
	// StopOnError cancels the remaining items after the first permanent
	// failure. The default keeps going: one item's failure never aborts the
	// batch.
	StopOnError bool
}

// BatchResult holds one item's result-or-error.
type BatchResult[R any] struct {
	Value R
	Err   error
}

// AddBatch fans one task per item out onto the queue and collects a
// result-or-error per item, in input order. The queue's concurrency and
// rate limits still govern execution; AddBatch only shapes the fan-out and
// the error policy.
func AddBatch[T, R any](ctx context.Context, q *Queue, items []T, fn func(ctx context.Context, item T) (R, error), opts BatchOpts) ([]BatchResult[R], error) {
	results := make([]BatchResult[R], len(items))
	if len(items) == 0 {
		return results, nil
	}

	batchCtx := ctx
	var cancel context.CancelFunc
	if opts.StopOnError {
		batchCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	futures := make([]*Future, len(items))
	for i, it := range items {
		it := it
		f, err := q.Add(batchCtx, opts.Priority, func(tctx context.Context) (any, error) {
			return fn(tctx, it)
		})
		if err != nil {
			results[i].Err = err
			continue
		}
		futures[i] = f
	}

	var firstErr error
	completed := 0
	for i, f := range futures {
		if f == nil {
			continue
		}
		raw, err := f.Wait(ctx)
		if err != nil {
			results[i].Err = err
			if opts.OnError != nil {
				opts.OnError(i, err)
			}
			if opts.StopOnError && firstErr == nil {
				firstErr = err
				cancel()
			}
		} else {
			results[i].Value = raw.(R)
		}
		completed++
		if opts.OnProgress != nil {
			opts.OnProgress(completed, len(items))
		}
	}

	return results, firstErr
}
