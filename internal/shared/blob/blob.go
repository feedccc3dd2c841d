// Package blob stores decree and F1 binary artifacts. Callers only hold
// opaque storage keys; the lifecycle engine never inspects content.
package blob

import (
	"context"
	"io"
	"time"
)

// Store persists binary documents under opaque keys.
type Store interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, key string) error
	PresignedGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
