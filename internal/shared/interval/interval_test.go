package interval

import (
	"testing"
	"time"
)

func at(h, m int) time.Time {
	return time.Date(2025, time.March, 3, h, m, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd time.Time
		expected                   bool
	}{
		{"disjoint before", at(9, 0), at(10, 0), at(10, 0), at(11, 0), false},
		{"disjoint after", at(10, 0), at(11, 0), at(9, 0), at(10, 0), false},
		{"partial overlap", at(9, 0), at(10, 30), at(10, 0), at(11, 0), true},
		{"contained", at(9, 0), at(12, 0), at(10, 0), at(11, 0), true},
		{"containing", at(10, 0), at(11, 0), at(9, 0), at(12, 0), true},
		{"identical", at(9, 0), at(10, 0), at(9, 0), at(10, 0), true},
		{"touching boundaries only", at(9, 0), at(10, 0), at(10, 0), at(10, 30), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd); got != tt.expected {
				t.Errorf("Overlaps() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestOverlapsSymmetric(t *testing.T) {
	cases := [][4]time.Time{
		{at(9, 0), at(10, 30), at(10, 0), at(11, 0)},
		{at(9, 0), at(10, 0), at(10, 0), at(11, 0)},
		{at(8, 0), at(12, 0), at(9, 0), at(10, 0)},
	}

	for _, c := range cases {
		forward := Overlaps(c[0], c[1], c[2], c[3])
		backward := Overlaps(c[2], c[3], c[0], c[1])
		if forward != backward {
			t.Errorf("Overlaps not symmetric for %v: %v vs %v", c, forward, backward)
		}
	}
}

func TestOverlapsReflexive(t *testing.T) {
	// A non-empty interval overlaps itself.
	if !Overlaps(at(9, 0), at(10, 0), at(9, 0), at(10, 0)) {
		t.Error("non-empty interval should overlap itself")
	}
}

func TestMinutesOverlap(t *testing.T) {
	tests := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd int
		expected                   bool
	}{
		{"morning vs afternoon", 540, 720, 780, 960, false},
		{"back to back", 540, 600, 600, 660, false},
		{"nested", 540, 720, 600, 660, true},
		{"offset", 540, 630, 600, 660, true},
		{"same window", 540, 600, 540, 600, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MinutesOverlap(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd); got != tt.expected {
				t.Errorf("MinutesOverlap() = %v, want %v", got, tt.expected)
			}
		})
	}
}
