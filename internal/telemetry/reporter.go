package telemetry

import (
	"context"
	"sync"
)

// Sink delivers a Request to wherever telemetry is collected. HTTPSink is
// the production implementation; NullSink discards every request.
type Sink interface {
	Send(ctx context.Context, req Request) error
}

const (
	globalReportIntvalMs       = 3000
	customBatchReportIntvalMs  = 1000
	customSingleReportIntvalMs = 1000
)

// Reporter batches per-asset measurements and single-row events, flushing
// each on its own interval, plus a separate global-summary ping — mirroring
// original_source/src/reporter.rs's three independent cadences.
type Reporter struct {
	instanceID string
	sink       Sink

	mu sync.Mutex

	globalReportMs int64

	batchReportMs map[string]int64            // measurement -> last flush ms
	batchCache    map[string]map[string]Record // measurement -> tag key -> record

	singleReportMs int64
	singleCache    []Record
}

// New constructs a Reporter bound to instanceID and sink.
func New(instanceID string, sink Sink) *Reporter {
	return &Reporter{
		instanceID:    instanceID,
		sink:          sink,
		batchReportMs: make(map[string]int64),
		batchCache:    make(map[string]map[string]Record),
	}
}

// ReportGlobal sends a GlobalSummaryRequest if globalReportIntvalMs has
// elapsed since the last one.
func (r *Reporter) ReportGlobal(ctx context.Context, nowMs int64) error {
	r.mu.Lock()
	due := r.globalReportMs+globalReportIntvalMs <= nowMs
	if due {
		r.globalReportMs = nowMs
	}
	r.mu.Unlock()

	if !due {
		return nil
	}
	return r.sink.Send(ctx, GlobalSummaryRequest{InstanceID: r.instanceID})
}

// AddBatchReportData merges fields into the measurement's per-tagKey
// record, then flushes that measurement's batch if its interval elapsed.
// tagKey identifies the dimension being measured (e.g. an asset's string
// form) and is carried into the flushed Record's Tags under "asset".
func (r *Reporter) AddBatchReportData(ctx context.Context, measurement, tagKey string, fields map[string]float64, nowMs int64) error {
	r.mu.Lock()
	measurementMap, ok := r.batchCache[measurement]
	if !ok {
		measurementMap = make(map[string]Record)
		r.batchCache[measurement] = measurementMap
	}
	rec, ok := measurementMap[tagKey]
	if !ok {
		rec = Record{Measurement: measurement, Tags: map[string]string{"asset": tagKey}, Fields: make(map[string]float64)}
	}
	for k, v := range fields {
		rec.Fields[k] = v
	}
	measurementMap[tagKey] = rec
	r.mu.Unlock()

	return r.flushBatch(ctx, measurement, nowMs)
}

func (r *Reporter) flushBatch(ctx context.Context, measurement string, nowMs int64) error {
	r.mu.Lock()
	lastReportMs := r.batchReportMs[measurement]
	if lastReportMs+customBatchReportIntvalMs > nowMs {
		r.mu.Unlock()
		return nil
	}
	measurementMap, ok := r.batchCache[measurement]
	if !ok || len(measurementMap) == 0 {
		r.batchReportMs[measurement] = nowMs
		r.mu.Unlock()
		return nil
	}
	items := make([]Record, 0, len(measurementMap))
	for _, rec := range measurementMap {
		items = append(items, rec)
	}
	r.batchCache[measurement] = make(map[string]Record)
	r.batchReportMs[measurement] = nowMs
	r.mu.Unlock()

	return r.sink.Send(ctx, BatchRequest{InstanceID: r.instanceID, Items: items})
}

// AddSingleReportData appends one tagged Record to the single-row cache,
// then flushes the whole cache if its interval elapsed.
func (r *Reporter) AddSingleReportData(ctx context.Context, measurement string, tags map[string]string, fields map[string]float64, nowMs int64) error {
	r.mu.Lock()
	r.singleCache = append(r.singleCache, Record{Measurement: measurement, Tags: tags, Fields: fields})
	r.mu.Unlock()

	return r.flushSingle(ctx, nowMs)
}

func (r *Reporter) flushSingle(ctx context.Context, nowMs int64) error {
	r.mu.Lock()
	if r.singleReportMs+customSingleReportIntvalMs > nowMs {
		r.mu.Unlock()
		return nil
	}
	items := r.singleCache
	r.singleCache = nil
	r.singleReportMs = nowMs
	r.mu.Unlock()

	if len(items) == 0 {
		return nil
	}
	return r.sink.Send(ctx, BatchRequest{InstanceID: r.instanceID, Items: items})
}
