package calc

import "testing"

func TestPeriodMs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		label string
		want  int64
	}{
		{"1S", 1000},
		{"30M", 30 * 60 * 1000},
		{"2H", 2 * 60 * 60 * 1000},
		{"1D", 24 * 60 * 60 * 1000},
	}
	for _, c := range cases {
		got, err := PeriodMs(c.label)
		if err != nil {
			t.Errorf("PeriodMs(%q) returned error: %v", c.label, err)
			continue
		}
		if got != c.want {
			t.Errorf("PeriodMs(%q) = %d, want %d", c.label, got, c.want)
		}
	}
}

func TestPeriodMsInvalidSuffix(t *testing.T) {
	t.Parallel()
	if _, err := PeriodMs("5X"); err == nil {
		t.Error("expected error for unknown suffix, got nil")
	}
}

func TestPeriodMsInvalidPrefix(t *testing.T) {
	t.Parallel()
	if _, err := PeriodMs("abcM"); err == nil {
		t.Error("expected error for non-numeric prefix, got nil")
	}
}

// TestEMAParamsIdentity checks the quantified property from spec.md §8.1:
// for length >= 2, 0 < decay < 1, 0 < alpha < 1, and
// decay + alpha == 1.
func TestEMAParamsIdentity(t *testing.T) {
	t.Parallel()

	periods := []string{"2S", "30M", "1H", "1D"}
	for _, p := range periods {
		params, err := NewEMAParams(p, 1000)
		if err != nil {
			t.Fatalf("NewEMAParams(%q): %v", p, err)
		}
		if params.Length < 2 {
			continue
		}
		if !(params.Decay > 0 && params.Decay < 1) {
			t.Errorf("period %q: decay = %v, want in (0,1)", p, params.Decay)
		}
		if !(params.Alpha > 0 && params.Alpha < 1) {
			t.Errorf("period %q: alpha = %v, want in (0,1)", p, params.Alpha)
		}
		identity := params.Decay + params.Alpha
		if diff := identity - 1; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("period %q: decay + alpha = %v, want 1", p, identity)
		}
	}
}
