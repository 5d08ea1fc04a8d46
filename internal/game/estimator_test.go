package game

import (
	"math"
	"testing"
)

func TestLinearModel_TwoPoints(t *testing.T) {
	m := NewLinearModel()
	m.Add(0, 0)
	m.Add(1000, 1000)

	if got := m.Evaluate(500); math.Abs(got-500) > 1e-9 {
		t.Errorf("Evaluate(500) = %v, want 500", got)
	}
	if m.Count() != 2 {
		t.Errorf("Count() = %v, want 2", m.Count())
	}
}

func TestLinearModel_Degenerate(t *testing.T) {
	m := NewLinearModel()
	if got := m.Evaluate(42); got != 0 {
		t.Errorf("empty model Evaluate() = %v, want 0", got)
	}

	m.Add(10, 300)
	if got := m.Evaluate(1000); got != 300 {
		t.Errorf("single point Evaluate() = %v, want 300", got)
	}

	m.Add(10, 500)
	a, b := m.Coefficients()
	if a != 0 || b != 400 {
		t.Errorf("Coefficients() = (%v, %v), want (0, 400)", a, b)
	}
}

func TestLinearModel_LeastSquares(t *testing.T) {
	m := NewLinearModel()
	// y = 2x + 1 with symmetric noise
	m.Add(0, 1.5)
	m.Add(1, 2.5)
	m.Add(2, 5.5)
	m.Add(3, 6.5)

	a, b := m.Coefficients()
	if math.Abs(a-1.8) > 1e-9 || math.Abs(b-1.3) > 1e-9 {
		t.Errorf("Coefficients() = (%v, %v), want (1.8, 1.3)", a, b)
	}
}

func ticksFromDeltas(deltas []int64) []Tick {
	ticks := []Tick{{Elapsed: 0, Growth: 100}}
	var elapsed int64
	for _, d := range deltas {
		elapsed += d
		ticks = append(ticks, Tick{Elapsed: elapsed, Growth: Growth(elapsed)})
	}
	return ticks
}

func TestIntervalBounds(t *testing.T) {
	tests := []struct {
		name      string
		deltas    []int64
		wantLower int64
		wantUpper int64
	}{
		{"no ticks", nil, 0, 0},
		{"single delta", []int64{150}, 150, 150},
		{"two deltas", []int64{180, 120}, 120, 180},
		{"three deltas", []int64{100, 300, 200}, 100, 300},
		{"ten deltas", []int64{50, 10, 100, 30, 20, 90, 40, 60, 80, 70}, 10, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lower, upper := IntervalBounds(ticksFromDeltas(tt.deltas))
			if lower != tt.wantLower || upper != tt.wantUpper {
				t.Errorf("IntervalBounds() = (%v, %v), want (%v, %v)", lower, upper, tt.wantLower, tt.wantUpper)
			}
		})
	}

	if lower, upper := IntervalBounds([]Tick{{Elapsed: 0}}); lower != 0 || upper != 0 {
		t.Errorf("IntervalBounds(one tick) = (%v, %v), want (0, 0)", lower, upper)
	}
}

func TestPercentileBounds(t *testing.T) {
	deltas := []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	lower, upper := percentileBounds(deltas)
	if lower != 10 || upper != 100 {
		t.Errorf("percentileBounds(10) = (%v, %v), want (10, 100)", lower, upper)
	}

	hundred := make([]int64, 0, 100)
	for i := int64(100); i >= 1; i-- {
		hundred = append(hundred, i)
	}
	lower, upper = percentileBounds(hundred)
	if lower != 6 || upper != 96 {
		t.Errorf("percentileBounds(100) = (%v, %v), want (6, 96)", lower, upper)
	}
}

func BenchmarkLinearModel_Add(b *testing.B) {
	m := NewLinearModel()
	for i := 0; i < b.N; i++ {
		m.Add(float64(i), float64(i)*1000)
	}
}
