package persistence

import (
	"context"
	"testing"
)

func TestReporterFlushesOnFirstRecord(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := OpenFileStore(dir)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	defer store.Close()

	r := NewReporter(store)
	ctx := context.Background()

	if err := r.Record(ctx, BucketDelay, "BTC_1M", 12.5, 1000); err != nil {
		t.Fatalf("Record: %v", err)
	}

	val, found, err := store.Get(ctx, BucketDelay, "BTC_1M")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected first record to flush immediately (never-flushed trigger)")
	}
	if val != "12.5" {
		t.Errorf("val = %q, want 12.5", val)
	}
}

func TestReporterDoesNotReflushWithinInterval(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := OpenFileStore(dir)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	defer store.Close()

	r := NewReporter(store)
	ctx := context.Background()

	_ = r.Record(ctx, BucketDelay, "BTC_1M", 1, 1000)
	// Overwrite the underlying store value out of band to detect a spurious reflush.
	_ = store.SetMany(ctx, BucketDelay, map[string]string{"BTC_1M": "sentinel"})

	if err := r.Record(ctx, BucketDelay, "ETH_1M", 2, 1001); err != nil {
		t.Fatalf("Record: %v", err)
	}

	val, _, _ := store.Get(ctx, BucketDelay, "BTC_1M")
	if val != "sentinel" {
		t.Errorf("expected no reflush within the update interval, store BTC_1M = %q", val)
	}
}

func TestReporterFlushesAfterIntervalElapses(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := OpenFileStore(dir)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	defer store.Close()

	r := NewReporter(store)
	ctx := context.Background()

	_ = r.Record(ctx, BucketDelay, "BTC_1M", 1, 1000)
	if err := r.Record(ctx, BucketDelay, "BTC_1M", 2, 1000+maxUpdateIntvalMs+1); err != nil {
		t.Fatalf("Record: %v", err)
	}

	val, found, _ := store.Get(ctx, BucketDelay, "BTC_1M")
	if !found || val != "2" {
		t.Errorf("val, found = %q, %v, want 2, true", val, found)
	}
}

func TestReporterFlushWritesBufferedEntries(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := OpenFileStore(dir)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	defer store.Close()

	r := NewReporter(store)
	ctx := context.Background()

	_ = r.Record(ctx, BucketDelay, "BTC_1M", 1, 1000)
	_ = store.SetMany(ctx, BucketDelay, map[string]string{"BTC_1M": "sentinel"})
	_ = r.Record(ctx, BucketDelay, "ETH_1M", 2, 1001)

	if err := r.Flush(ctx, 2000); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	val, found, _ := store.Get(ctx, BucketDelay, "ETH_1M")
	if !found || val != "2" {
		t.Errorf("ETH_1M = %q, %v, want 2, true", val, found)
	}
}
