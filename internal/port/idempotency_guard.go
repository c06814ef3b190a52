package port

import "context"

type IdempotencyGuard interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency forgets key so the request can be replayed
	ReleaseIdempotency(ctx context.Context, key string) error
}
