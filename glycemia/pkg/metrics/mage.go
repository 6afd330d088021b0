package metrics

import (
	"math"

	"github.com/montanaflynn/stats"
)

type Direction int

const (
	Undetermined Direction = iota
	Rising
	Falling
)

func (d Direction) String() string {
	return [...]string{"undetermined", "rising", "falling"}[d]
}

func directionOf(delta float64) Direction {
	if delta > 0 {
		return Rising
	}
	return Falling
}

// ExcursionState is the scan state between two consecutive readings.
type ExcursionState struct {
	Direction Direction
	Start     int // Index of the reading where the current swing began.
}

// Step consumes the delta between values[i-1] and values[i]. When the delta
// reverses the current direction it returns the amplitude of the swing that
// just ended and true.
func (s ExcursionState) Step(values []float64, i int, threshold float64) (ExcursionState, float64, bool) {
	delta := values[i] - values[i-1]
	if math.Abs(delta) <= threshold {
		return s, 0, false
	}

	dir := directionOf(delta)
	switch s.Direction {
	case Undetermined:
		return ExcursionState{Direction: dir, Start: i - 1}, 0, false
	case dir:
		return s, 0, false
	}

	amplitude := math.Abs(values[i-1] - values[s.Start])
	return ExcursionState{Direction: dir, Start: i - 1}, amplitude, true
}

// Excursions summarizes the MAGE scan. Mean is 0 when nothing qualified;
// LowConfidence separates that zero from a measured one.
type Excursions struct {
	Mean          float64 `json:"mean"`
	Count         int     `json:"count"`
	Threshold     float64 `json:"threshold"`
	LowConfidence bool    `json:"lowConfidence"`
}

// MAGE returns the mean amplitude of swings larger than one population SD.
func MAGE(values []float64) Excursions {
	if len(values) < 2 {
		return Excursions{LowConfidence: true}
	}

	threshold, _ := stats.StandardDeviationPopulation(values)

	amplitudes := make([]float64, 0)
	var state ExcursionState
	for i := 1; i < len(values); i++ {
		next, amplitude, reversed := state.Step(values, i, threshold)
		if reversed && amplitude > threshold {
			amplitudes = append(amplitudes, amplitude)
		}
		state = next
	}

	if len(amplitudes) == 0 {
		return Excursions{Threshold: threshold, LowConfidence: true}
	}

	mean, _ := stats.Mean(amplitudes)
	return Excursions{
		Mean:      mean,
		Count:     len(amplitudes),
		Threshold: threshold,
	}
}
