package game

import (
	"math"
	"slices"
)

// LinearModel is an incremental least-squares line fit. Only running sums
// are kept, so Add and Evaluate are O(1).
type LinearModel struct {
	n     float64
	sumX  float64
	sumY  float64
	sumXX float64
	sumXY float64
}

func NewLinearModel() *LinearModel {
	return &LinearModel{}
}

func (m *LinearModel) Add(x, y float64) {
	m.n++
	m.sumX += x
	m.sumY += y
	m.sumXX += x * x
	m.sumXY += x * y
}

func (m *LinearModel) Count() int {
	return int(m.n)
}

// Coefficients returns slope a and intercept b of y = a*x + b. With fewer
// than two distinct x values the slope is zero and b is the mean of y.
func (m *LinearModel) Coefficients() (a, b float64) {
	if m.n == 0 {
		return 0, 0
	}
	den := m.n*m.sumXX - m.sumX*m.sumX
	if m.n < 2 || den == 0 {
		return 0, m.sumY / m.n
	}
	a = (m.n*m.sumXY - m.sumX*m.sumY) / den
	b = (m.sumY - a*m.sumX) / m.n
	return a, b
}

func (m *LinearModel) Evaluate(x float64) float64 {
	a, b := m.Coefficients()
	return a*x + b
}

// IntervalBounds estimates the spread of the gap between consecutive ticks
// from the ticks seen so far in a round.
func IntervalBounds(ticks []Tick) (lower, upper int64) {
	switch {
	case len(ticks) < 2:
		return 0, 0
	case len(ticks) == 2:
		t := ticks[1].Elapsed - ticks[0].Elapsed
		return t, t
	case len(ticks) == 3:
		t1 := ticks[1].Elapsed - ticks[0].Elapsed
		t2 := ticks[2].Elapsed - ticks[1].Elapsed
		return min(t1, t2), max(t1, t2)
	}

	diffs := make([]int64, 0, len(ticks)-1)
	for i := 1; i < len(ticks); i++ {
		diffs = append(diffs, ticks[i].Elapsed-ticks[i-1].Elapsed)
	}
	return percentileBounds(diffs)
}

// percentileBounds sorts diffs in place and returns the 5th and 95th
// percentile entries.
func percentileBounds(diffs []int64) (lower, upper int64) {
	if len(diffs) == 0 {
		return 0, 0
	}
	slices.Sort(diffs)
	n := float64(len(diffs))
	return diffs[int(math.Floor(0.05*n))], diffs[int(math.Floor(0.95*n))]
}
