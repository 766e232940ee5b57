package fetch

import "context"

// Budget caps the aggregate number of in-flight downloads. One budget is
// shared by every fetcher in a run, so concurrent cases never exceed the
// configured download limit together.
type Budget struct {
	tokens chan struct{}
}

// NewBudget creates a budget allowing n concurrent acquisitions.
func NewBudget(n int) *Budget {
	if n <= 0 {
		n = 1
	}
	b := &Budget{tokens: make(chan struct{}, n)}
	for i := 0; i < n; i++ {
		b.tokens <- struct{}{}
	}
	return b
}

// Acquire takes a token, blocking until one is free or the context ends.
func (b *Budget) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.tokens:
		return nil
	}
}

// Release returns a token taken by Acquire.
func (b *Budget) Release() {
	b.tokens <- struct{}{}
}
