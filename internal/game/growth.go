package game

import (
	"math"
)

const (
	// GROWTH_RATE is the exponent applied per elapsed millisecond.
	GROWTH_RATE = 0.00006
	// GROWTH_INVERSE is 1/GROWTH_RATE as published by the game server.
	GROWTH_INVERSE = 16666.66666667
)

// Growth returns the multiplier, in hundredths, reached after elapsed
// milliseconds of a round. Growth(0) is 100 (1.00x).
func Growth(elapsed int64) int64 {
	return int64(math.Floor(100 * math.Pow(math.E, GROWTH_RATE*float64(elapsed))))
}

// InverseGrowth returns the elapsed milliseconds at which the round reaches
// the multiplier m (hundredths).
func InverseGrowth(m int64) float64 {
	return GROWTH_INVERSE * math.Log(0.01*float64(m))
}

// Duration is the length in milliseconds of a round that crashed at crash.
func Duration(crash int64) int64 {
	return int64(math.Ceil(InverseGrowth(crash + 1)))
}
