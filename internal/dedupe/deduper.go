package dedupe

import "context"

// Idempotency of intent submissions (redis, in-memory)
type Deduper interface {
	// if alreadySeen=true -> duplicate submission, skip it
	Seen(ctx context.Context, key string) (alreadySeen bool, err error)
	// Forget releases key so a submission that failed downstream can be retried
	Forget(ctx context.Context, key string) error
	Health(ctx context.Context) error
}
