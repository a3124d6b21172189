package contxt

import (
	"context"
	"time"
)

// NewContext returns a context that keeps parent's values but not its cancellation, bounded by
// timeout. Used for sink writes that must still complete while a session shuts down.
func NewContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
