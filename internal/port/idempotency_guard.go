package port

import (
	"context"
	"time"
)

// IdempotencyWindow is how long a request key blocks a replay.
const IdempotencyWindow = 24 * time.Hour

// IdempotencyGuard claims request keys (transfer requests, sale creation).
type IdempotencyGuard interface {
	// SetIdempotency claims key; false means the key was already claimed.
	SetIdempotency(ctx context.Context, key string) (bool, error)
}
