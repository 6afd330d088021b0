// Package csvin reads CGM exports in CSV form.
package csvin

import (
	"encoding/csv"
	"errors"
	"fmt"
	"ichor/glycemia/defs"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	MinPlausible = 20
	MaxPlausible = 600

	// Gaps longer than this are reported.
	GapThreshold = 30 * time.Minute

	// Expected CGM sampling; coverage below CoverageThreshold percent is reported.
	SampleInterval    = 5 * time.Minute
	CoverageThreshold = 70

	// Columns with more than this percentage of empty cells are reported.
	MissingThreshold = 30
)

var (
	ErrMissingColumns = errors.New("missing required columns")
	ErrNoReadings     = errors.New("no valid readings")
)

var (
	dateAliases      = []string{"Date", "date", "DATE"}
	timeAliases      = []string{"Time", "time", "TIME"}
	timestampAliases = []string{"Timestamp", "timestamp", "Device Timestamp", "DateTime"}
	glucoseAliases   = []string{
		"Sensor Glucose (mg/dL)",
		"Glucose Value (mg/dL)",
		"Historic Glucose mg/dL",
		"Historic Glucose (mg/dL)",
		"Blood Glucose",
		"Glucose",
		"glucose",
		"BG",
	}
)

var layouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"02-01-2006 15:04",
}

// Report describes what was dropped or corrected while reading.
type Report struct {
	Rows       int
	Dropped    int // Rows without a parseable time or numeric glucose.
	Duplicates int
	OutOfRange int
	Gaps       int
	Coverage   float64 // Percent of expected SampleInterval readings present.
	Unordered  bool
	Columns    map[string]string
	Missing    map[string]int // Empty cells per required column.
}

func (r Report) Warnings() []string {
	var ws []string
	if r.Dropped > 0 {
		ws = append(ws, fmt.Sprintf("%d rows with non-numeric glucose or unparseable time were ignored", r.Dropped))
	}
	if r.Duplicates > 0 {
		ws = append(ws, fmt.Sprintf("%d duplicate timestamps, last value kept", r.Duplicates))
	}
	if r.OutOfRange > 0 {
		ws = append(ws, fmt.Sprintf("%d values outside %d-%d mg/dL", r.OutOfRange, MinPlausible, MaxPlausible))
	}
	if r.Unordered {
		ws = append(ws, "readings were not in time order and have been sorted")
	}
	if r.Gaps > 0 {
		ws = append(ws, fmt.Sprintf("%d gaps longer than %v", r.Gaps, GapThreshold))
	}
	if r.Rows == 0 {
		return ws
	}
	if r.Coverage < CoverageThreshold {
		ws = append(ws, fmt.Sprintf("coverage %.1f%% is below %d%%", r.Coverage, CoverageThreshold))
	}
	names := make([]string, 0, len(r.Missing))
	for name := range r.Missing {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if pct := float64(r.Missing[name]) / float64(r.Rows) * 100; pct > MissingThreshold {
			ws = append(ws, fmt.Sprintf("column %q has %.1f%% missing values", r.Columns[name], pct))
		}
	}
	return ws
}

type columns struct {
	date, time, timestamp, glucose int
}

// Read parses readings with times in the local time zone.
func Read(r io.Reader) ([]defs.Reading, Report, error) {
	return ReadIn(r, time.Local)
}

// ReadIn parses readings, interpreting zone-less times in loc. The result is
// sorted ascending with one reading per timestamp.
func ReadIn(r io.Reader, loc *time.Location) ([]defs.Reading, Report, error) {
	var report Report

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, report, fmt.Errorf("unable to read csv headers: %w", err)
	}

	cols, found, err := discover(headers)
	if err != nil {
		return nil, report, err
	}
	report.Columns = found
	report.Missing = make(map[string]int, len(found))

	var rs []defs.Reading
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, report, fmt.Errorf("unable to read csv row %d: %w", report.Rows+1, err)
		}
		report.Rows++
		countMissing(row, cols, report.Missing)

		rd, ok := parseRow(row, cols, loc)
		if !ok {
			report.Dropped++
			continue
		}
		if rd.Value < MinPlausible || rd.Value > MaxPlausible {
			report.OutOfRange++
		}
		rs = append(rs, rd)
	}

	if len(rs) == 0 {
		return nil, report, ErrNoReadings
	}

	report.Unordered = !sort.SliceIsSorted(rs, func(i, j int) bool {
		return rs[i].Time.Before(rs[j].Time)
	})
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Time.Before(rs[j].Time)
	})

	deduped := rs[:1]
	for _, rd := range rs[1:] {
		last := &deduped[len(deduped)-1]
		if rd.Time.Equal(last.Time) {
			*last = rd
			report.Duplicates++
			continue
		}
		if rd.Time.Sub(last.Time) > GapThreshold {
			report.Gaps++
		}
		deduped = append(deduped, rd)
	}
	report.Coverage = coverage(deduped)

	return deduped, report, nil
}

// coverage compares the readings against one per SampleInterval over their span.
func coverage(rs []defs.Reading) float64 {
	span := rs[len(rs)-1].Time.Sub(rs[0].Time)
	expected := float64(span/SampleInterval) + 1
	return math.Min(100, float64(len(rs))/expected*100)
}

func countMissing(row []string, cols columns, missing map[string]int) {
	for name, i := range map[string]int{
		"Glucose":   cols.glucose,
		"Timestamp": cols.timestamp,
		"Date":      cols.date,
		"Time":      cols.time,
	} {
		if i < 0 {
			continue
		}
		if i >= len(row) || strings.TrimSpace(row[i]) == "" {
			missing[name]++
		}
	}
}

func discover(headers []string) (columns, map[string]string, error) {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, ok := idx[h]; !ok {
			idx[h] = i
		}
	}

	lookup := func(aliases []string) (int, string) {
		for _, a := range aliases {
			if i, ok := idx[a]; ok {
				return i, a
			}
		}
		return -1, ""
	}

	cols := columns{date: -1, time: -1, timestamp: -1, glucose: -1}
	found := make(map[string]string)
	var missing []string

	var name string
	if cols.glucose, name = lookup(glucoseAliases); cols.glucose >= 0 {
		found["Glucose"] = name
	} else {
		missing = append(missing, "Glucose")
	}

	if cols.timestamp, name = lookup(timestampAliases); cols.timestamp >= 0 {
		found["Timestamp"] = name
	} else {
		cols.date, name = lookup(dateAliases)
		if cols.date >= 0 {
			found["Date"] = name
		} else {
			missing = append(missing, "Date")
		}
		cols.time, name = lookup(timeAliases)
		if cols.time >= 0 {
			found["Time"] = name
		} else {
			missing = append(missing, "Time")
		}
	}

	if len(missing) > 0 {
		return cols, found, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return cols, found, nil
}

func parseRow(row []string, cols columns, loc *time.Location) (defs.Reading, bool) {
	field := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	value, err := strconv.ParseFloat(field(cols.glucose), 64)
	if err != nil {
		return defs.Reading{}, false
	}
	rd := defs.Reading{Value: value}
	if !rd.Valid() {
		return defs.Reading{}, false
	}

	raw := field(cols.timestamp)
	if cols.timestamp < 0 {
		raw = field(cols.date) + " " + field(cols.time)
	}
	t, ok := parseTime(raw, loc)
	if !ok {
		return defs.Reading{}, false
	}
	rd.Time = t

	return rd, true
}

func parseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
