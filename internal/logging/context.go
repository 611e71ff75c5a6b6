package logging

import (
	"context"
	"time"
)

// DetachContext returns a context that keeps parent's values but not
// its cancellation. Audit writes use this so a cancelled request still
// produces its ledger row.
func DetachContext(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}

// DetachContextWithTimeout detaches from parent's cancellation and
// applies a fresh deadline, bounding how long a post-cancellation
// write may run.
func DetachContextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
