package desc

import (
	"fmt"
	"ichor/glycemia/defs"
	"ichor/glycemia/pkg/metrics"
	"strings"
	"time"
)

const (
	reportTimeFormat = "2006-01-02 15:04"

	DefaultCVLimit = 36
	TBRLimit       = 4
	TARLimit       = 25
)

type Descriptor struct {
	Loc     *time.Location
	TIRGoal float64
	CVLimit float64
}

// New builds a descriptor; a zero cvLimit means DefaultCVLimit.
func New(loc *time.Location, tirGoal, cvLimit float64) *Descriptor {
	if cvLimit <= 0 {
		cvLimit = DefaultCVLimit
	}
	return &Descriptor{Loc: loc, TIRGoal: tirGoal, CVLimit: cvLimit}
}

func (d *Descriptor) Wrap(desc string) string {
	return "```" + desc + "```"
}

// Recommendations lists the clinical targets the snapshot misses.
func (d *Descriptor) Recommendations(s metrics.Snapshot) []string {
	var recs []string
	if s.Ranges.TIR < d.TIRGoal {
		recs = append(recs, fmt.Sprintf("TIR below goal (%.0f%%), review overall glucose management", d.TIRGoal))
	}
	if s.Summary.CV > d.CVLimit {
		recs = append(recs, fmt.Sprintf("high variability (CV > %.0f%%), review meals and insulin plan", d.CVLimit))
	}
	if s.Ranges.TBR > TBRLimit {
		recs = append(recs, "frequent lows, adjust treatment to avoid hypoglycemia")
	}
	if s.Ranges.TAR > TARLimit {
		recs = append(recs, "frequent highs, insulin dosing may need adjustment")
	}
	return recs
}

// Report renders a plain text report.
func (d *Descriptor) Report(s metrics.Snapshot) string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "CGM Analysis Report")
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "[Overview]")
	fmt.Fprintf(&b, "Period: %s to %s\n",
		s.Start.In(d.Loc).Format(reportTimeFormat),
		s.End.In(d.Loc).Format(reportTimeFormat),
	)
	fmt.Fprintf(&b, "Days: %d\n", s.Daily.DaysAnalyzed)
	fmt.Fprintf(&b, "Readings: %d\n", s.Readings)
	if s.InsufficientData {
		fmt.Fprintln(&b, "Warning: insufficient data for variability metrics")
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "[Key Metrics]")
	fmt.Fprintf(&b, "Mean: %.1f mg/dL\n", s.Summary.Mean)
	fmt.Fprintf(&b, "Median: %.1f mg/dL\n", s.Summary.Median)
	fmt.Fprintf(&b, "SD: %.1f mg/dL\n", s.Summary.SD)
	fmt.Fprintf(&b, "CV: %.1f%%\n", s.Summary.CV)
	fmt.Fprintf(&b, "GMI: %.1f%%\n", s.GMI)
	fmt.Fprintf(&b, "GRI: %.1f\n", s.GRI)
	fmt.Fprintf(&b, "MAGE: %.1f mg/dL", s.Excursions.Mean)
	if s.Excursions.LowConfidence {
		fmt.Fprint(&b, " (low confidence)")
	}
	fmt.Fprintln(&b)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "[Time in Range]")
	fmt.Fprintf(&b, "TIR (%.0f-%.0f): %.1f%%\n", s.Target.Low, s.Target.High, s.Ranges.TIR)
	fmt.Fprintf(&b, "TAR (>%.0f): %.1f%%\n", s.Target.High, s.Ranges.TAR)
	fmt.Fprintf(&b, "TBR (<%.0f): %.1f%%\n", s.Target.Low, s.Ranges.TBR)
	fmt.Fprintf(&b, "  - Very Low (<%.0f): %.1f%%\n", metrics.VeryLowBound, s.Ranges.VeryLow)
	fmt.Fprintf(&b, "  - Low (%.0f-%.0f): %.1f%%\n", metrics.VeryLowBound, metrics.LowBound-1, s.Ranges.Low)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "[Risk]")
	fmt.Fprintf(&b, "GRI tier: %s\n", s.Risk)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "[Recommendations]")
	recs := d.Recommendations(s)
	if len(recs) == 0 {
		fmt.Fprintln(&b, "- all targets met")
	}
	for _, r := range recs {
		fmt.Fprintf(&b, "- %s\n", r)
	}

	return b.String()
}

// Embed summarizes the snapshot for a chat message.
func (d *Descriptor) Embed(s metrics.Snapshot) defs.EmbedData {
	fields := []defs.EmbedField{
		{Name: "Mean", Value: fmt.Sprintf("%.1f", s.Summary.Mean), Inline: true},
		{Name: "CV", Value: fmt.Sprintf("%.1f%%", s.Summary.CV), Inline: true},
		{Name: "GMI", Value: fmt.Sprintf("%.1f%%", s.GMI), Inline: true},
		{Name: "TIR", Value: fmt.Sprintf("%.1f%%", s.Ranges.TIR), Inline: true},
		{Name: "TBR", Value: fmt.Sprintf("%.1f%%", s.Ranges.TBR), Inline: true},
		{Name: "TAR", Value: fmt.Sprintf("%.1f%%", s.Ranges.TAR), Inline: true},
		{Name: "GRI", Value: fmt.Sprintf("%.1f (%s)", s.GRI, s.Risk), Inline: true},
		{Name: "MAGE", Value: fmt.Sprintf("%.1f", s.Excursions.Mean), Inline: true},
		defs.EmptyEmbed(),
	}

	var description string
	if recs := d.Recommendations(s); len(recs) > 0 {
		description = d.Wrap(strings.Join(recs, "\n"))
	}

	return defs.EmbedData{
		Title: fmt.Sprintf("%s to %s",
			s.Start.In(d.Loc).Format(reportTimeFormat),
			s.End.In(d.Loc).Format(reportTimeFormat),
		),
		Description: description,
		Fields:      fields,
	}
}
