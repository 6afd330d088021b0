package metrics

import (
	"fmt"
	"ichor/glycemia/defs"
	"time"
)

// Snapshot is the result of one Compute call. It is built once and not
// modified afterwards; the caller owns it.
type Snapshot struct {
	Target   defs.TargetRange `json:"target"`
	Readings int              `json:"readings"`
	Start    time.Time        `json:"start"`
	End      time.Time        `json:"end"`

	Summary    Summary        `json:"summary"`
	Ranges     RangeBreakdown `json:"ranges"`
	GMI        float64        `json:"gmi"`
	GRI        float64        `json:"gri"`
	Risk       RiskTier       `json:"risk"`
	Excursions Excursions     `json:"mage"`

	Hourly map[int]float64        `json:"hourly"`
	Daily  DailySummary           `json:"daily"`
	Bands  map[int]PercentileBand `json:"agp"`

	InsufficientData bool `json:"insufficientData"`
}

// Warning returns ErrInsufficientData when the snapshot was computed from a
// single reading.
func (s Snapshot) Warning() error {
	if s.InsufficientData {
		return ErrInsufficientData
	}
	return nil
}

// Compute derives every metric for readings against target. Readings must be
// sorted by time; values must be finite and non-negative.
func Compute(rs []defs.Reading, target defs.TargetRange) (Snapshot, error) {
	const op = "compute"

	if len(rs) == 0 {
		return Snapshot{}, inputErr(op, ErrEmptyInput)
	}
	if !target.Valid() {
		return Snapshot{}, inputErr(op, fmt.Errorf("%w: low %v, high %v", ErrInvalidRange, target.Low, target.High))
	}

	values := make([]float64, len(rs))
	for i, r := range rs {
		if !r.Valid() {
			return Snapshot{}, inputErr(op, fmt.Errorf("%w: value %v at index %d", ErrInvalidReading, r.Value, i))
		}
		if i > 0 && r.Time.Before(rs[i-1].Time) {
			return Snapshot{}, inputErr(op, fmt.Errorf("%w: unsorted timestamp at index %d", ErrInvalidReading, i))
		}
		values[i] = r.Value
	}

	summary, err := Summarize(values)
	if err != nil {
		return Snapshot{}, err
	}
	ranges := ClassifyRanges(values, target)
	gri := GRI(ranges)

	return Snapshot{
		Target:           target,
		Readings:         len(rs),
		Start:            rs[0].Time,
		End:              rs[len(rs)-1].Time,
		Summary:          summary,
		Ranges:           ranges,
		GMI:              GMI(summary.Mean),
		GRI:              gri,
		Risk:             RiskTierOf(gri),
		Excursions:       MAGE(values),
		Hourly:           HourlyPattern(rs),
		Daily:            DailyStats(rs),
		Bands:            PercentileBands(rs),
		InsufficientData: len(rs) < 2,
	}, nil
}
