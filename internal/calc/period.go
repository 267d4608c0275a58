// Package calc implements the engine's online smoothed statistics: the
// discrete, fixed-interval EMA estimators (offset/spread/delay) and the
// continuous-time TEMA used by the new-coin maker model. All constructors
// are pure — state is passed in, not read by the constructor itself (see
// DESIGN.md, Open Question (a) / spec.md §9 "warm-start indirection").
package calc

import (
	"fmt"
	"strconv"
)

// PeriodMs parses a period label of the form "<decimal><S|M|H|D>" into
// milliseconds. Case-sensitive. Any other suffix is a configuration error
// and fails loudly — this is only ever called at startup while building
// the offset grid (spec.md §4.1).
func PeriodMs(label string) (int64, error) {
	if len(label) < 2 {
		return 0, fmt.Errorf("period label %q: too short", label)
	}
	suffix := label[len(label)-1]
	n, err := strconv.ParseInt(label[:len(label)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("period label %q: invalid numeric prefix: %w", label, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("period label %q: must be positive", label)
	}

	var unitMs int64
	switch suffix {
	case 'S':
		unitMs = 1000
	case 'M':
		unitMs = 60 * 1000
	case 'H':
		unitMs = 60 * 60 * 1000
	case 'D':
		unitMs = 24 * 60 * 60 * 1000
	default:
		return 0, fmt.Errorf("period label %q: unknown suffix %q (want S/M/H/D)", label, suffix)
	}
	return n * unitMs, nil
}

// EMAParams holds the derived constants for a fixed-interval discrete EMA:
// length = period_ms/intval, decay = (length-1)/(length+1),
// alpha = 2/(length+1) (spec.md §3).
type EMAParams struct {
	Period string
	Intval int64
	Length float64
	Decay  float64
	Alpha  float64
}

// NewEMAParams derives the decay/alpha constants for a period label and
// sample interval. Fails if the period is shorter than the interval
// (length < 1 makes decay negative, which is always a config mistake).
func NewEMAParams(period string, intval int64) (EMAParams, error) {
	if intval <= 0 {
		return EMAParams{}, fmt.Errorf("ema params %q: intval must be positive, got %d", period, intval)
	}
	periodMs, err := PeriodMs(period)
	if err != nil {
		return EMAParams{}, err
	}
	length := float64(periodMs) / float64(intval)
	if length < 1 {
		return EMAParams{}, fmt.Errorf("ema params %q: period shorter than intval (length=%.4f)", period, length)
	}
	return EMAParams{
		Period: period,
		Intval: intval,
		Length: length,
		Decay:  (length - 1) / (length + 1),
		Alpha:  2 / (length + 1),
	}, nil
}
