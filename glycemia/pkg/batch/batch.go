// Package batch analyzes many CGM exports concurrently and compares them.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"ichor/glycemia/defs"
	"ichor/glycemia/pkg/csvin"
	"ichor/glycemia/pkg/desc"
	"ichor/glycemia/pkg/metrics"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxParallel = 4

	SummaryFile = "batch_summary.json"
	ReportFile  = "report.txt"
	MetricsFile = "metrics.json"

	// Thresholds for flagging a file for attention.
	attentionTIR = 70
	attentionTBR = 4
	attentionCV  = 36
)

var ErrNoFiles = errors.New("no files to process")

// Loader reads the readings of one file.
type Loader func(ctx context.Context, path string) ([]defs.Reading, error)

type Processor struct {
	MaxParallel int
	Timeout     time.Duration
	Target      defs.TargetRange
	Location    *time.Location
	OutputDir   string // Reports are only written when set.

	Load       Loader
	Descriptor *desc.Descriptor
	Logger     *zap.Logger
}

type Result struct {
	File     string            `json:"file"`
	Name     string            `json:"name"`
	Snapshot *metrics.Snapshot `json:"metrics,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
	Err      error             `json:"-"`
}

func New(cfg defs.BatchConfig, target defs.TargetRange, loc *time.Location, d *desc.Descriptor, logger *zap.Logger) *Processor {
	p := &Processor{
		MaxParallel: cfg.MaxParallel,
		Timeout:     cfg.Timeout,
		Target:      target,
		Location:    loc,
		OutputDir:   cfg.OutputDir,
		Descriptor:  d,
		Logger:      logger,
	}
	p.Load = p.loadCSV
	return p
}

// Expand resolves a glob pattern into a sorted file list.
func Expand(pattern string) ([]string, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("unable to expand %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFiles, pattern)
	}
	sort.Strings(paths)
	return paths, nil
}

// Process analyzes every path. A failing file is recorded in the summary and
// does not stop the others.
func (p *Processor) Process(ctx context.Context, paths []string) (*Summary, error) {
	if len(paths) == 0 {
		return nil, ErrNoFiles
	}

	limit := p.MaxParallel
	if limit <= 0 {
		limit = DefaultMaxParallel
	}

	p.Logger.Debug("processing files",
		zap.Int("count", len(paths)),
		zap.Int("max parallel", limit),
	)

	results := make([]Result, len(paths))
	names := reportNames(paths)

	g := new(errgroup.Group)
	g.SetLimit(limit)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			results[i] = p.processFile(ctx, path, names[i])
			return nil
		})
	}
	_ = g.Wait()

	summary := Summarize(results)
	if p.OutputDir != "" {
		if err := p.writeSummary(summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// reportNames derives one report directory name per path from its file stem.
// Repeated stems get a "-2", "-3", ... suffix in path order.
func reportNames(paths []string) []string {
	names := make([]string, len(paths))
	taken := make(map[string]bool, len(paths))
	seen := make(map[string]int, len(paths))
	for i, path := range paths {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		name := stem
		for taken[name] {
			seen[stem]++
			name = fmt.Sprintf("%s-%d", stem, seen[stem]+1)
		}
		taken[name] = true
		names[i] = name
	}
	return names
}

func (p *Processor) processFile(ctx context.Context, path, name string) Result {
	res := Result{
		File: path,
		Name: name,
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defs.FileTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		snap metrics.Snapshot
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		rs, err := p.Load(ctx, path)
		if err != nil {
			done <- outcome{err: fmt.Errorf("unable to load %s: %w", path, err)}
			return
		}
		snap, err := metrics.Compute(rs, p.Target)
		done <- outcome{snap: snap, err: err}
	}()

	select {
	case <-ctx.Done():
		res.Err = fmt.Errorf("processing %s: %w", path, ctx.Err())
	case o := <-done:
		if o.err != nil {
			res.Err = o.err
			break
		}
		res.Snapshot = &o.snap
		if w := o.snap.Warning(); w != nil {
			res.Warnings = append(res.Warnings, w.Error())
		}
	}

	if res.Err != nil {
		p.Logger.Debug("failed to process file", zap.String("file", path), zap.Error(res.Err))
		return res
	}

	if p.OutputDir != "" {
		if err := p.writeReport(res); err != nil {
			res.Err = err
			res.Snapshot = nil
		}
	}

	return res
}

func (p *Processor) loadCSV(_ context.Context, path string) ([]defs.Reading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	rs, report, err := csvin.ReadIn(f, loc)
	if err != nil {
		return nil, err
	}
	for _, w := range report.Warnings() {
		p.Logger.Debug("csv warning", zap.String("file", path), zap.String("warning", w))
	}
	return rs, nil
}

func (p *Processor) writeReport(res Result) error {
	dir := filepath.Join(p.OutputDir, res.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("unable to create report dir: %w", err)
	}

	b, err := json.MarshalIndent(res.Snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to marshal metrics: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetricsFile), b, 0o644); err != nil {
		return fmt.Errorf("unable to write metrics: %w", err)
	}

	if p.Descriptor == nil {
		return nil
	}
	report := p.Descriptor.Report(*res.Snapshot)
	if err := os.WriteFile(filepath.Join(dir, ReportFile), []byte(report), 0o644); err != nil {
		return fmt.Errorf("unable to write report: %w", err)
	}
	return nil
}

func (p *Processor) writeSummary(s *Summary) error {
	if err := os.MkdirAll(p.OutputDir, 0o755); err != nil {
		return fmt.Errorf("unable to create output dir: %w", err)
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to marshal summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(p.OutputDir, SummaryFile), b, 0o644); err != nil {
		return fmt.Errorf("unable to write summary: %w", err)
	}
	return nil
}

type Failure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

type Extreme struct {
	File  string  `json:"file"`
	Value float64 `json:"value"`
}

type Attention struct {
	File   string   `json:"file"`
	Issues []string `json:"issues"`
}

type Averages struct {
	Mean float64 `json:"mean"`
	TIR  float64 `json:"tir"`
	TAR  float64 `json:"tar"`
	TBR  float64 `json:"tbr"`
	CV   float64 `json:"cv"`
	GMI  float64 `json:"gmi"`
	GRI  float64 `json:"gri"`
}

type Summary struct {
	TotalFiles int       `json:"totalFiles"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Generated  time.Time `json:"generated"`

	Results  []Result  `json:"results"`
	Failures []Failure `json:"failures,omitempty"`

	Averages *Averages `json:"averages,omitempty"`
	BestTIR  *Extreme  `json:"bestTir,omitempty"`
	WorstTIR *Extreme  `json:"worstTir,omitempty"`
	BestCV   *Extreme  `json:"bestCv,omitempty"` // Lowest CV.
	WorstCV  *Extreme  `json:"worstCv,omitempty"`

	Attention []Attention `json:"attention,omitempty"`
}

// Summarize compares the successful results. Order of results is kept.
func Summarize(results []Result) *Summary {
	s := &Summary{
		TotalFiles: len(results),
		Generated:  time.Now(),
	}

	var ok []Result
	for _, r := range results {
		if r.Err != nil || r.Snapshot == nil {
			msg := "no result"
			if r.Err != nil {
				msg = r.Err.Error()
			}
			s.Failures = append(s.Failures, Failure{File: r.File, Error: msg})
			continue
		}
		ok = append(ok, r)
	}
	s.Results = ok
	s.Successful = len(ok)
	s.Failed = len(s.Failures)

	if len(ok) == 0 {
		return s
	}

	var means, tirs, tars, tbrs, cvs, gmis, gris []float64
	for _, r := range ok {
		snap := r.Snapshot
		means = append(means, snap.Summary.Mean)
		tirs = append(tirs, snap.Ranges.TIR)
		tars = append(tars, snap.Ranges.TAR)
		tbrs = append(tbrs, snap.Ranges.TBR)
		cvs = append(cvs, snap.Summary.CV)
		gmis = append(gmis, snap.GMI)
		gris = append(gris, snap.GRI)

		if issues := attentionIssues(snap); len(issues) > 0 {
			s.Attention = append(s.Attention, Attention{File: r.File, Issues: issues})
		}
	}

	s.Averages = &Averages{
		Mean: mean(means),
		TIR:  mean(tirs),
		TAR:  mean(tars),
		TBR:  mean(tbrs),
		CV:   mean(cvs),
		GMI:  mean(gmis),
		GRI:  mean(gris),
	}

	if len(ok) > 1 {
		s.BestTIR = extreme(ok, tirs, true)
		s.WorstTIR = extreme(ok, tirs, false)
		s.BestCV = extreme(ok, cvs, false)
		s.WorstCV = extreme(ok, cvs, true)
	}

	return s
}

func attentionIssues(s *metrics.Snapshot) []string {
	var issues []string
	if s.Ranges.TIR < attentionTIR {
		issues = append(issues, "TIR below target")
	}
	if s.Ranges.TBR > attentionTBR {
		issues = append(issues, "too much time below range")
	}
	if s.Summary.CV > attentionCV {
		issues = append(issues, "high glycemic variability")
	}
	return issues
}

func mean(vs []float64) float64 {
	m, err := stats.Mean(vs)
	if err != nil {
		return 0
	}
	return m
}

// extreme returns the first result holding the largest (or smallest) value.
func extreme(rs []Result, vs []float64, largest bool) *Extreme {
	best := 0
	for i := 1; i < len(vs); i++ {
		if (largest && vs[i] > vs[best]) || (!largest && vs[i] < vs[best]) {
			best = i
		}
	}
	return &Extreme{File: rs[best].File, Value: vs[best]}
}
