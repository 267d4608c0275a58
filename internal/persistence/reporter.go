package persistence

import (
	"context"
	"strconv"
	"sync"
)

// Bucket names matching original_source/src/utils/redis_util.rs's
// REDIS_OFFSET_KET / REDIS_SPREAD_KET / REDIS_DELAY_KET constants, plus
// new_coin_maker for the NewCoinMaker behavior's four-TEMA warm state
// (spec.md §6, a supplemented feature absent from the original's redis
// constants).
const (
	BucketOffset       = "offset"
	BucketSpread       = "spread"
	BucketDelay        = "delay"
	BucketNewCoinMaker = "new_coin_maker"
)

const (
	maxBucketLength   = 1000
	maxUpdateIntvalMs = 1000 * 60 * 10
)

// Reporter buffers float writes per bucket in memory and flushes them to a
// KVStore in batches, grounded on original_source/src/redis_reporter.rs's
// RedisReporter.record. A bucket flushes when any of three triggers fire:
// it holds more than maxBucketLength entries, it has never been flushed, or
// more than maxUpdateIntvalMs has elapsed since its last flush.
type Reporter struct {
	store KVStore

	mu          sync.Mutex
	cache       map[string]map[string]string
	lastFlushMs map[string]int64
}

// NewReporter wraps a KVStore with the batched-write buffering behavior.
func NewReporter(store KVStore) *Reporter {
	return &Reporter{
		store:       store,
		cache:       make(map[string]map[string]string),
		lastFlushMs: make(map[string]int64),
	}
}

// Record buffers one field=val write into bucket, flushing the bucket to
// the underlying store if a flush trigger fires.
func (r *Reporter) Record(ctx context.Context, bucket, field string, val float64, nowMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucketMap, ok := r.cache[bucket]
	if !ok {
		bucketMap = make(map[string]string)
		r.cache[bucket] = bucketMap
	}
	bucketMap[field] = strconv.FormatFloat(val, 'g', -1, 64)

	lastFlush, everFlushed := r.lastFlushMs[bucket]
	needUpload := len(bucketMap) > maxBucketLength ||
		!everFlushed ||
		lastFlush+maxUpdateIntvalMs < nowMs

	if !needUpload {
		return nil
	}
	if err := r.store.SetMany(ctx, bucket, bucketMap); err != nil {
		return err
	}
	r.cache[bucket] = make(map[string]string)
	r.lastFlushMs[bucket] = nowMs
	return nil
}

// Flush force-writes every buffered bucket regardless of trigger state,
// used on clean shutdown so no buffered sample is lost.
func (r *Reporter) Flush(ctx context.Context, nowMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for bucket, bucketMap := range r.cache {
		if len(bucketMap) == 0 {
			continue
		}
		if err := r.store.SetMany(ctx, bucket, bucketMap); err != nil {
			return err
		}
		r.cache[bucket] = make(map[string]string)
		r.lastFlushMs[bucket] = nowMs
	}
	return nil
}
