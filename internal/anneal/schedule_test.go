package anneal

import (
	"math"
	"testing"
)

func TestSchedulesMonotone(t *testing.T) {
	schedules := map[string]Schedule{
		"constant":    Constant(2),
		"geometric":   Geometric{Initial: 10, Rate: 0.99, Floor: 0.01},
		"logarithmic": Logarithmic{Initial: 5},
	}
	for name, s := range schedules {
		t.Run(name, func(t *testing.T) {
			prev := s.Temperature(0)
			for k := 1; k < 5000; k++ {
				cur := s.Temperature(k)
				if cur > prev {
					t.Fatalf("Temperature rose at %d: %f > %f", k, cur, prev)
				}
				prev = cur
			}
		})
	}
}

func TestScheduleValues(t *testing.T) {
	if got := (Logarithmic{Initial: 3}).Temperature(0); math.Abs(got-3) > 1e-12 {
		t.Errorf("Logarithmic should start at its initial value, got %f", got)
	}
	if got := (Geometric{Initial: 8, Rate: 0.5}).Temperature(3); got != 1 {
		t.Errorf("Expected 1, got %f", got)
	}
	if got := (Geometric{Initial: 8, Rate: 0.5, Floor: 2}).Temperature(10); got != 2 {
		t.Errorf("Floor not applied, got %f", got)
	}
	if err := (Geometric{Initial: 1, Rate: 1.5}).Validate(); err == nil {
		t.Error("Rate above 1 should be rejected")
	}
}

func TestAnnealer(t *testing.T) {
	a := NewAnnealer(Geometric{Initial: 4, Rate: 0.5})
	if a.Current() != 4 {
		t.Errorf("Expected initial temperature 4, got %f", a.Current())
	}
	if a.Temperature(2) != 1 || a.Current() != 1 {
		t.Errorf("Expected temperature 1 at iteration 2")
	}
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name                string
		before, after, hast float64
		temp, u             float64
		want                bool
	}{
		{"downhill always", 5, 4, -100, 0, 0.999, true},
		{"flat at zero temperature", 5, 5, 0, 0, 0, false},
		{"uphill at zero temperature", 5, 6, 10, 0, 0, false},
		{"uphill accepted by low draw", 5, 6, 0, 1, math.Exp(-1) - 1e-9, true},
		{"uphill rejected by high draw", 5, 6, 0, 1, math.Exp(-1) + 1e-9, false},
		{"hastings term raises ratio", 5, 6, 1, 1, 0.99, true},
		{"flat with neutral hastings", 5, 5, 0, 1, 0.5, true},
		{"ratio capped at one", 5, 5, 3, 1, 0.999999, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Accept(tt.before, tt.after, tt.hast, tt.temp, tt.u); got != tt.want {
				t.Errorf("Accept = %v, expected %v", got, tt.want)
			}
		})
	}
}
