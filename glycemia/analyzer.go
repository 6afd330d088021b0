package glycemia

import (
	"context"
	"errors"
	"fmt"
	"ichor/glycemia/defs"
	"ichor/glycemia/pkg/desc"
	"ichor/glycemia/pkg/discgo"
	"ichor/glycemia/pkg/metrics"
	"ichor/glycemia/pkg/mg"
	"strings"
	"time"

	"go.uber.org/zap"
)

const HighRiskLabel = "⚠️ high glycemic risk"

type AnalyzerStore interface {
	mg.GlucoseStore
	mg.SnapshotStore
}

type Analyzer struct {
	Messager   discgo.Messager // Optional.
	Store      AnalyzerStore
	Descriptor *desc.Descriptor

	Logger   *zap.Logger
	Location *time.Location
	Target   defs.TargetRange
}

// Analyze computes a snapshot over [start, end], stores it and posts the
// report. An empty window is not an error and produces no snapshot.
func (an *Analyzer) Analyze(ctx context.Context, start, end time.Time) (*metrics.Snapshot, error) {
	rs, err := an.Store.ReadGlucose(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("unable to read glucose: %w", err)
	}

	if len(rs) == 0 {
		an.Logger.Debug("no readings to analyze",
			zap.Time("start", start),
			zap.Time("end", end),
		)
		return nil, nil
	}

	for i := range rs {
		rs[i].Time = rs[i].Time.In(an.Location)
	}

	snap, err := metrics.Compute(rs, an.Target)
	if err != nil {
		return nil, fmt.Errorf("unable to compute metrics: %w", err)
	}
	if w := snap.Warning(); w != nil {
		an.Logger.Debug("snapshot warning", zap.Error(w))
	}

	if _, err = an.Store.WriteSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("unable to write snapshot: %w", err)
	}

	an.Logger.Debug("computed snapshot",
		zap.Int("readings", snap.Readings),
		zap.Float64("mean", snap.Summary.Mean),
		zap.Float64("tir", snap.Ranges.TIR),
		zap.Stringer("risk", snap.Risk),
	)

	if an.Messager == nil {
		return &snap, nil
	}

	embed := an.Descriptor.Embed(snap)
	if err = an.Messager.UpdateMainMessage(defs.MessageData{Embeds: []defs.EmbedData{embed}}); err != nil {
		return &snap, fmt.Errorf("unable to update main message: %w", err)
	}

	report := defs.MessageData{
		Embeds: []defs.EmbedData{embed},
		Files: []defs.FileData{{
			Name:   "report-" + snap.End.In(an.Location).Format("2006-01-02-1504") + ".txt",
			Reader: strings.NewReader(an.Descriptor.Report(snap)),
		}},
	}
	if snap.Risk == metrics.RiskHigh {
		report.Content = "@everyone " + HighRiskLabel
		report.MentionEveryone = true
	}
	if _, err = an.Messager.SendMessage(report, defs.ReportsChannel); err != nil {
		return &snap, fmt.Errorf("unable to send report: %w", err)
	}

	return &snap, nil
}

// AnalyzeRecent analyzes the lookback window ending now.
func (an *Analyzer) AnalyzeRecent() error {
	ctx, cancel := context.WithTimeout(context.Background(), defs.TimeoutInterval)
	defer cancel()

	now := time.Now()
	_, err := an.Analyze(ctx, now.Add(defs.LookbackInterval), now)
	var inErr *metrics.InputError
	if errors.As(err, &inErr) {
		an.Logger.Debug("skipping analysis", zap.Error(err))
		return nil
	}
	return err
}
