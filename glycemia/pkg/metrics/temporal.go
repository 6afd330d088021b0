package metrics

import (
	"ichor/glycemia/defs"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

const dateFormat = "2006-01-02"

// HourlyPattern returns the mean value per hour of day. Hours without
// readings are absent.
func HourlyPattern(rs []defs.Reading) map[int]float64 {
	buckets := byHour(rs)
	pattern := make(map[int]float64, len(buckets))
	for h, vals := range buckets {
		pattern[h], _ = stats.Mean(vals)
	}
	return pattern
}

type DayStats struct {
	Date  string  `json:"date"` // YYYY-MM-DD in the readings' location.
	Mean  float64 `json:"mean"`
	SD    float64 `json:"sd"` // Sample SD, 0 when Count < 2.
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

type DailySummary struct {
	Days         []DayStats `json:"days"`
	MeanOfMeans  float64    `json:"meanOfMeans"`
	MeanOfSDs    float64    `json:"meanOfSDs"` // Days with a single reading have no SD and are skipped.
	DaysAnalyzed int        `json:"daysAnalyzed"`
}

// DailyStats groups readings by calendar date.
func DailyStats(rs []defs.Reading) DailySummary {
	order := make([]string, 0)
	groups := make(map[string][]float64)
	for _, r := range rs {
		d := r.Time.Format(dateFormat)
		if _, ok := groups[d]; !ok {
			order = append(order, d)
		}
		groups[d] = append(groups[d], r.Value)
	}
	sort.Strings(order)

	days := make([]DayStats, 0, len(order))
	means := make([]float64, 0, len(order))
	sds := make([]float64, 0, len(order))
	for _, d := range order {
		vals := groups[d]
		ds := DayStats{Date: d, Count: len(vals)}
		ds.Mean, _ = stats.Mean(vals)
		ds.Min, _ = stats.Min(vals)
		ds.Max, _ = stats.Max(vals)
		if len(vals) > 1 {
			ds.SD, _ = stats.StandardDeviationSample(vals)
			sds = append(sds, ds.SD)
		}
		days = append(days, ds)
		means = append(means, ds.Mean)
	}

	summary := DailySummary{Days: days, DaysAnalyzed: len(days)}
	if len(means) > 0 {
		summary.MeanOfMeans, _ = stats.Mean(means)
	}
	if len(sds) > 0 {
		summary.MeanOfSDs, _ = stats.Mean(sds)
	}
	return summary
}

type PercentileBand struct {
	P10 float64 `json:"p10"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
}

// PercentileBands returns the ambulatory glucose profile per hour of day.
// Fractional hour h+m/60 falls in [h, h+1) exactly when the clock hour is h,
// so buckets are keyed by hour. Fewer than two readings yields no bands.
func PercentileBands(rs []defs.Reading) map[int]PercentileBand {
	bands := make(map[int]PercentileBand)
	if len(rs) < 2 {
		return bands
	}

	for h, vals := range byHour(rs) {
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		bands[h] = PercentileBand{
			P10: quantile(0.10, sorted),
			P25: quantile(0.25, sorted),
			P50: quantile(0.50, sorted),
			P75: quantile(0.75, sorted),
			P90: quantile(0.90, sorted),
		}
	}
	return bands
}

func quantile(p float64, sorted []float64) float64 {
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}

func byHour(rs []defs.Reading) map[int][]float64 {
	buckets := make(map[int][]float64)
	for _, r := range rs {
		h := r.Time.Hour()
		buckets[h] = append(buckets[h], r.Value)
	}
	return buckets
}
