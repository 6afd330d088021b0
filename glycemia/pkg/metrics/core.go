package metrics

import (
	"github.com/montanaflynn/stats"
)

type Summary struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	SD     float64 `json:"sd"` // Population standard deviation.
	CV     float64 `json:"cv"` // SD / Mean * 100.
}

// Summarize returns the central tendency and dispersion of values.
func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, inputErr("summarize", ErrEmptyInput)
	}

	mean, _ := stats.Mean(values)
	median, _ := stats.Median(values)
	sd, _ := stats.StandardDeviationPopulation(values)

	return Summary{
		Mean:   mean,
		Median: median,
		SD:     sd,
		CV:     coefficientOfVariation(sd, mean),
	}, nil
}

func coefficientOfVariation(sd, mean float64) float64 {
	if mean == 0 {
		return 0
	}
	return sd / mean * 100
}
