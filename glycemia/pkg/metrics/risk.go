package metrics

import "fmt"

// GMI estimates HbA1c (%) from mean glucose in mg/dL.
func GMI(mean float64) float64 {
	return 3.31 + 0.02392*mean
}

// GRI is the glycemic risk index over the fixed clinical bands.
func GRI(rb RangeBreakdown) float64 {
	return 3.0*rb.VeryLow + 2.4*rb.Low + 1.6*rb.VeryHigh + 0.8*rb.High
}

type RiskTier int

const (
	RiskLow RiskTier = iota
	RiskModerateLow
	RiskModerate
	RiskModerateHigh
	RiskHigh
)

func (rt RiskTier) String() string {
	return [...]string{"low", "moderate-low", "moderate", "moderate-high", "high"}[rt]
}

func RiskTierOf(gri float64) RiskTier {
	switch {
	case gri < 20:
		return RiskLow
	case gri < 40:
		return RiskModerateLow
	case gri < 60:
		return RiskModerate
	case gri < 80:
		return RiskModerateHigh
	default:
		return RiskHigh
	}
}

func (rt RiskTier) MarshalText() ([]byte, error) {
	return []byte(rt.String()), nil
}

func (rt *RiskTier) UnmarshalText(b []byte) error {
	for t := RiskLow; t <= RiskHigh; t++ {
		if t.String() == string(b) {
			*rt = t
			return nil
		}
	}
	return fmt.Errorf("unknown risk tier %q", b)
}
