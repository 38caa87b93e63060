package pipeline

import "context"

// RetryPolicy retries an operation immediately, up to Attempts calls in total.
type RetryPolicy struct {
	Attempts int
}

// Do calls fn until it succeeds, the attempts run out, or ctx ends. It returns
// the number of calls made and the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return attempt, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, err
		}
	}
	return attempts, err
}
