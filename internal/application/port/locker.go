package port

import "context"

// EntityLocker serializes work on a single entity key across callers
type EntityLocker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
