package band

import (
	"testing"

	"github.com/ieltsdesk/ieltsdesk/internal/model"
)

func TestToBandListening(t *testing.T) {
	tests := []struct {
		raw  float64
		want float64
	}{
		{40, 9.0},
		{39, 9.0},
		{38, 8.5},
		{35, 8.0},
		{34, 7.5},
		{30, 7.0},
		{29, 6.5},
		{23, 6.0},
		{22, 5.5},
		{16, 5.0},
		{15, 4.5},
		{10, 4.0},
		{9, 3.5},
		{6, 3.0},
		{4, 2.5},
		{2, 2.0},
		{1, 1.0},
		{0, 0.0},
	}

	for _, tt := range tests {
		if got := ToBand(tt.raw, 40, model.SectionListening); got != tt.want {
			t.Errorf("ToBand(%v) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestToBandReading(t *testing.T) {
	tests := []struct {
		raw  float64
		want float64
	}{
		{40, 9.0},
		{37, 8.5},
		{34, 7.5}, // listening would give 7.5 at 32; reading needs 33
		{32, 7.0},
		{28, 6.5},
		{26, 6.0},
		{19, 5.5},
		{18, 5.0},
		{14, 4.5},
		{12, 4.0},
		{0, 0.0},
	}

	for _, tt := range tests {
		if got := ToBand(tt.raw, 40, model.SectionReading); got != tt.want {
			t.Errorf("ToBand(%v) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestToBandTablesDiverge(t *testing.T) {
	// The two scales disagree at several thresholds; 32/40 is one of them.
	if l, r := ToBand(32, 40, model.SectionListening), ToBand(32, 40, model.SectionReading); l == r {
		t.Errorf("expected listening != reading at raw 32, both %v", l)
	}
}

func TestToBandRescaling(t *testing.T) {
	// 13/20 rescales to round(26) = 26 -> listening 6.5.
	if got := ToBand(13, 20, model.SectionListening); got != 6.5 {
		t.Errorf("ToBand(13/20) = %v, want 6.5", got)
	}
	// 7/10 rescales to 28 -> reading 6.5.
	if got := ToBand(7, 10, model.SectionReading); got != 6.5 {
		t.Errorf("ToBand(7/10) = %v, want 6.5", got)
	}
	// Exact passthrough at total 40: no rescaling rounding artifacts.
	if got := ToBand(23, 40, model.SectionReading); got != 6.0 {
		t.Errorf("ToBand(23/40) = %v, want 6.0", got)
	}
	if got := ToBand(0, 0, model.SectionReading); got != 0 {
		t.Errorf("ToBand(0/0) = %v, want 0", got)
	}
}

func TestToBandMonotonic(t *testing.T) {
	for _, st := range []model.SectionType{model.SectionListening, model.SectionReading} {
		prev := -1.0
		for raw := 0; raw <= 40; raw++ {
			b := ToBand(float64(raw), 40, st)
			if b < prev {
				t.Fatalf("%s: band decreased at raw %d: %v -> %v", st, raw, prev, b)
			}
			prev = b
		}
	}
}
