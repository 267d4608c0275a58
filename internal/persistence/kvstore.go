// Package persistence implements the KV warm-start/dashboard store
// (spec.md §6) and the batched persistence reporter that buffers writes
// per bucket (spec.md §4.13, grounded on
// original_source/src/redis_reporter.rs and
// original_source/src/utils/redis_util.rs). KVStore has two
// implementations: RedisStore (go-redis/v9, production) and FileStore
// (adapted from the teacher's internal/store/store.go atomic tmp+rename
// idiom, for local/dry-run use and as a test double).
package persistence

import "context"

// KVStore is the hash-per-bucket key-value interface every EMA warm-start
// path and the batched reporter depend on (spec.md §6). Reads are point
// reads; writes are multi-field batch sets.
type KVStore interface {
	Get(ctx context.Context, bucket, field string) (string, bool, error)
	SetMany(ctx context.Context, bucket string, fields map[string]string) error
	Close() error
}
