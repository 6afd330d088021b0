package glycemia

import (
	"context"
	"fmt"
	"ichor/glycemia/defs"
	"ichor/glycemia/pkg/batch"
	"ichor/glycemia/pkg/csvin"
	"ichor/glycemia/pkg/desc"
	"ichor/glycemia/pkg/metrics"
	"os"

	"go.uber.org/zap"
)

// AnalyzeFile computes a snapshot for one CSV export and renders its report.
func AnalyzeFile(config defs.Config, path string) (metrics.Snapshot, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return metrics.Snapshot{}, "", fmt.Errorf("unable to open %s: %w", path, err)
	}
	defer f.Close()

	loc := config.Location()
	rs, report, err := csvin.ReadIn(f, loc)
	if err != nil {
		return metrics.Snapshot{}, "", fmt.Errorf("unable to read %s: %w", path, err)
	}
	for _, w := range report.Warnings() {
		config.Logger.Info("csv warning", zap.String("file", path), zap.String("warning", w))
	}

	snap, err := metrics.Compute(rs, config.Glucose.Range())
	if err != nil {
		return metrics.Snapshot{}, "", err
	}

	d := desc.New(loc, config.Glucose.TIRGoal(), config.Glucose.CVTarget())
	return snap, d.Report(snap), nil
}

// RunBatch analyzes every file matching pattern.
func RunBatch(ctx context.Context, config defs.Config, pattern string) (*batch.Summary, error) {
	paths, err := batch.Expand(pattern)
	if err != nil {
		return nil, err
	}

	loc := config.Location()
	p := batch.New(
		config.Batch,
		config.Glucose.Range(),
		loc,
		desc.New(loc, config.Glucose.TIRGoal(), config.Glucose.CVTarget()),
		config.Logger,
	)
	return p.Process(ctx, paths)
}
