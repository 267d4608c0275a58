// Package telemetry reports operational metrics (per-asset measurements and
// a periodic global summary) to an external collector, grounded on
// original_source/src/reporter.rs. The original transported requests as a
// raw pointer cast through a legacy RPC boundary (Box::into_raw /
// Box::from_raw); spec.md §9 calls that out as a design smell to drop, so
// here Request is a typed Go sum type sent over an ordinary channel/Sink —
// no unsafe pointer laundering.
package telemetry

// Record is one measurement's field set at a point in time, tagged by
// asset (or any other dimension the caller chooses).
type Record struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]float64
}

// Request is the sum type sent to a Sink: either a GlobalSummaryRequest or
// a BatchRequest. Unexported marker method closes the set to this package.
type Request interface {
	isRequest()
}

// GlobalSummaryRequest asks the collector to snapshot instance-wide totals
// (matching report_global's CURRENCY_USDT ping in the original).
type GlobalSummaryRequest struct {
	InstanceID string
}

func (GlobalSummaryRequest) isRequest() {}

// BatchRequest carries one or more accumulated Records.
type BatchRequest struct {
	InstanceID string
	Items      []Record
}

func (BatchRequest) isRequest() {}
