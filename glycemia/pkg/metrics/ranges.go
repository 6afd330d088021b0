package metrics

import (
	"ichor/glycemia/defs"
)

// Clinical band boundaries in mg/dL. They do not move with the target range.
const (
	VeryLowBound  = 54.0
	LowBound      = 70.0
	HighBound     = 180.0
	VeryHighBound = 250.0
)

// RangeBreakdown holds percentages of the total reading count.
//
// Percentages count readings, not elapsed time, so densely sampled periods
// weigh more than sparse ones when sampling is uneven.
type RangeBreakdown struct {
	// Fixed clinical bands, always summing to 100.
	VeryLow  float64 `json:"veryLow"`  // < 54
	Low      float64 `json:"low"`      // [54, 70)
	InRange  float64 `json:"inRange"`  // [70, 180]
	High     float64 `json:"high"`     // (180, 250]
	VeryHigh float64 `json:"veryHigh"` // > 250

	// Bands relative to the configured target, always summing to 100.
	TBR float64 `json:"tbr"` // < target.Low
	TIR float64 `json:"tir"` // [target.Low, target.High]
	TAR float64 `json:"tar"` // > target.High
}

func ClassifyRanges(values []float64, target defs.TargetRange) RangeBreakdown {
	if len(values) == 0 {
		return RangeBreakdown{}
	}

	var vlow, low, in, high, vhigh float64
	var below, above float64
	for _, v := range values {
		switch {
		case v < VeryLowBound:
			vlow++
		case v < LowBound:
			low++
		case v <= HighBound:
			in++
		case v <= VeryHighBound:
			high++
		default:
			vhigh++
		}

		switch {
		case v < target.Low:
			below++
		case v > target.High:
			above++
		}
	}

	total := float64(len(values))
	within := total - below - above
	return RangeBreakdown{
		VeryLow:  vlow / total * 100,
		Low:      low / total * 100,
		InRange:  in / total * 100,
		High:     high / total * 100,
		VeryHigh: vhigh / total * 100,
		TBR:      below / total * 100,
		TIR:      within / total * 100,
		TAR:      above / total * 100,
	}
}
