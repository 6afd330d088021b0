package metrics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Flat keys. Hourly means use "hourly_HH" and AGP bands "agp_HH_pNN".
const (
	KeyReadings          = "readings"
	KeyStart             = "start_ms"
	KeyEnd               = "end_ms"
	KeyTargetLow         = "target_low"
	KeyTargetHigh        = "target_high"
	KeyMean              = "mean"
	KeyMedian            = "median"
	KeySD                = "sd"
	KeyCV                = "cv"
	KeyVeryLow           = "very_low"
	KeyLow               = "low"
	KeyInRange           = "in_range"
	KeyHigh              = "high"
	KeyVeryHigh          = "very_high"
	KeyTBR               = "tbr"
	KeyTIR               = "tir"
	KeyTAR               = "tar"
	KeyGMI               = "gmi"
	KeyGRI               = "gri"
	KeyMAGE              = "mage"
	KeyMAGECount         = "mage_count"
	KeyMAGEThreshold     = "mage_threshold"
	KeyMAGELowConfidence = "mage_low_confidence"
	KeyMeanOfDailyMeans  = "daily_mean_of_means"
	KeyMeanOfDailySDs    = "daily_mean_of_sds"
	KeyDaysAnalyzed      = "daily_days"
	KeyInsufficientData  = "insufficient_data"

	hourlyPrefix = "hourly_"
	agpPrefix    = "agp_"
)

// Flatten renders the scalar, hourly and AGP fields as a flat map. Per-day
// rows are not part of the flat form.
func (s Snapshot) Flatten() map[string]float64 {
	m := map[string]float64{
		KeyReadings:          float64(s.Readings),
		KeyStart:             float64(s.Start.UnixMilli()),
		KeyEnd:               float64(s.End.UnixMilli()),
		KeyTargetLow:         s.Target.Low,
		KeyTargetHigh:        s.Target.High,
		KeyMean:              s.Summary.Mean,
		KeyMedian:            s.Summary.Median,
		KeySD:                s.Summary.SD,
		KeyCV:                s.Summary.CV,
		KeyVeryLow:           s.Ranges.VeryLow,
		KeyLow:               s.Ranges.Low,
		KeyInRange:           s.Ranges.InRange,
		KeyHigh:              s.Ranges.High,
		KeyVeryHigh:          s.Ranges.VeryHigh,
		KeyTBR:               s.Ranges.TBR,
		KeyTIR:               s.Ranges.TIR,
		KeyTAR:               s.Ranges.TAR,
		KeyGMI:               s.GMI,
		KeyGRI:               s.GRI,
		KeyMAGE:              s.Excursions.Mean,
		KeyMAGECount:         float64(s.Excursions.Count),
		KeyMAGEThreshold:     s.Excursions.Threshold,
		KeyMAGELowConfidence: boolFloat(s.Excursions.LowConfidence),
		KeyMeanOfDailyMeans:  s.Daily.MeanOfMeans,
		KeyMeanOfDailySDs:    s.Daily.MeanOfSDs,
		KeyDaysAnalyzed:      float64(s.Daily.DaysAnalyzed),
		KeyInsufficientData:  boolFloat(s.InsufficientData),
	}

	for h, v := range s.Hourly {
		m[fmt.Sprintf("%s%02d", hourlyPrefix, h)] = v
	}
	for h, b := range s.Bands {
		prefix := fmt.Sprintf("%s%02d_", agpPrefix, h)
		m[prefix+"p10"] = b.P10
		m[prefix+"p25"] = b.P25
		m[prefix+"p50"] = b.P50
		m[prefix+"p75"] = b.P75
		m[prefix+"p90"] = b.P90
	}

	return m
}

// FromFlat rebuilds a snapshot from the output of Flatten.
func FromFlat(m map[string]float64) (Snapshot, error) {
	if _, ok := m[KeyReadings]; !ok {
		return Snapshot{}, fmt.Errorf("missing key %q", KeyReadings)
	}

	s := Snapshot{
		Readings: int(m[KeyReadings]),
		Start:    time.UnixMilli(int64(m[KeyStart])),
		End:      time.UnixMilli(int64(m[KeyEnd])),
		Summary: Summary{
			Mean:   m[KeyMean],
			Median: m[KeyMedian],
			SD:     m[KeySD],
			CV:     m[KeyCV],
		},
		Ranges: RangeBreakdown{
			VeryLow:  m[KeyVeryLow],
			Low:      m[KeyLow],
			InRange:  m[KeyInRange],
			High:     m[KeyHigh],
			VeryHigh: m[KeyVeryHigh],
			TBR:      m[KeyTBR],
			TIR:      m[KeyTIR],
			TAR:      m[KeyTAR],
		},
		GMI:  m[KeyGMI],
		GRI:  m[KeyGRI],
		Risk: RiskTierOf(m[KeyGRI]),
		Excursions: Excursions{
			Mean:          m[KeyMAGE],
			Count:         int(m[KeyMAGECount]),
			Threshold:     m[KeyMAGEThreshold],
			LowConfidence: m[KeyMAGELowConfidence] != 0,
		},
		Daily: DailySummary{
			MeanOfMeans:  m[KeyMeanOfDailyMeans],
			MeanOfSDs:    m[KeyMeanOfDailySDs],
			DaysAnalyzed: int(m[KeyDaysAnalyzed]),
		},
		Hourly:           make(map[int]float64),
		Bands:            make(map[int]PercentileBand),
		InsufficientData: m[KeyInsufficientData] != 0,
	}
	s.Target.Low = m[KeyTargetLow]
	s.Target.High = m[KeyTargetHigh]

	for k, v := range m {
		switch {
		case strings.HasPrefix(k, hourlyPrefix):
			h, err := strconv.Atoi(strings.TrimPrefix(k, hourlyPrefix))
			if err != nil {
				return Snapshot{}, fmt.Errorf("unable to parse hourly key %q: %w", k, err)
			}
			s.Hourly[h] = v
		case strings.HasPrefix(k, agpPrefix):
			parts := strings.Split(strings.TrimPrefix(k, agpPrefix), "_")
			if len(parts) != 2 {
				return Snapshot{}, fmt.Errorf("malformed agp key %q", k)
			}
			h, err := strconv.Atoi(parts[0])
			if err != nil {
				return Snapshot{}, fmt.Errorf("unable to parse agp key %q: %w", k, err)
			}
			b := s.Bands[h]
			switch parts[1] {
			case "p10":
				b.P10 = v
			case "p25":
				b.P25 = v
			case "p50":
				b.P50 = v
			case "p75":
				b.P75 = v
			case "p90":
				b.P90 = v
			default:
				return Snapshot{}, fmt.Errorf("unknown percentile in key %q", k)
			}
			s.Bands[h] = b
		}
	}

	return s, nil
}

// Encode converts the flat form into a protobuf Struct.
func (s Snapshot) Encode() (*structpb.Struct, error) {
	flat := s.Flatten()
	fields := make(map[string]interface{}, len(flat))
	for k, v := range flat {
		fields[k] = v
	}
	return structpb.NewStruct(fields)
}

// Decode is the inverse of Encode.
func Decode(st *structpb.Struct) (Snapshot, error) {
	flat := make(map[string]float64, len(st.GetFields()))
	for k, v := range st.GetFields() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return Snapshot{}, fmt.Errorf("non-numeric value for key %q", k)
		}
		flat[k] = n.NumberValue
	}
	return FromFlat(flat)
}

// MarshalBinary encodes the snapshot as a serialized protobuf Struct.
func (s Snapshot) MarshalBinary() ([]byte, error) {
	st, err := s.Encode()
	if err != nil {
		return nil, fmt.Errorf("unable to encode snapshot: %w", err)
	}
	return proto.Marshal(st)
}

// ParseBinary is the inverse of MarshalBinary.
func ParseBinary(b []byte) (Snapshot, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(b, &st); err != nil {
		return Snapshot{}, fmt.Errorf("unable to unmarshal snapshot: %w", err)
	}
	return Decode(&st)
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
