package batch

import (
	"context"
	"encoding/json"
	"errors"
	"ichor/glycemia/defs"
	"ichor/glycemia/pkg/desc"
	"ichor/glycemia/pkg/metrics"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type BatchTestSuite struct {
	suite.Suite
	p *Processor
}

func TestBatchTestSuite(t *testing.T) {
	suite.Run(t, new(BatchTestSuite))
}

func (suite *BatchTestSuite) SetupTest() {
	suite.p = New(
		defs.BatchConfig{MaxParallel: 2, Timeout: time.Second},
		defs.DefaultTargetRange,
		time.UTC,
		desc.New(time.UTC, 70, 0),
		zap.NewNop(),
	)
}

// day returns 5-minute readings cycling through values.
func day(values ...float64) []defs.Reading {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rs := make([]defs.Reading, 288)
	for i := range rs {
		rs[i] = defs.Reading{
			Time:  start.Add(time.Duration(i) * 5 * time.Minute),
			Value: values[i%len(values)],
		}
	}
	return rs
}

func (suite *BatchTestSuite) TestProcessSummary() {
	data := map[string][]defs.Reading{
		"steady.csv":  day(110, 120, 130),
		"swingy.csv":  day(50, 260, 60, 240),
		"missing.csv": nil,
	}
	suite.p.Load = func(_ context.Context, path string) ([]defs.Reading, error) {
		rs, ok := data[path]
		if !ok || rs == nil {
			return nil, errors.New("not found")
		}
		return rs, nil
	}

	s, err := suite.p.Process(context.Background(), []string{"steady.csv", "swingy.csv", "missing.csv"})
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), 3, s.TotalFiles)
	assert.Equal(suite.T(), 2, s.Successful)
	assert.Equal(suite.T(), 1, s.Failed)
	assert.Equal(suite.T(), "missing.csv", s.Failures[0].File)

	require.NotNil(suite.T(), s.Averages)
	assert.InDelta(suite.T(), 50, s.Averages.TIR, 1e-9)

	assert.Equal(suite.T(), "steady.csv", s.BestTIR.File)
	assert.Equal(suite.T(), "swingy.csv", s.WorstTIR.File)
	assert.Equal(suite.T(), "steady.csv", s.BestCV.File)
	assert.Equal(suite.T(), "swingy.csv", s.WorstCV.File)

	require.Len(suite.T(), s.Attention, 1)
	assert.Equal(suite.T(), "swingy.csv", s.Attention[0].File)
	assert.Contains(suite.T(), s.Attention[0].Issues, "TIR below target")
	assert.Contains(suite.T(), s.Attention[0].Issues, "too much time below range")
	assert.Contains(suite.T(), s.Attention[0].Issues, "high glycemic variability")
}

func (suite *BatchTestSuite) TestProcessTimeout() {
	suite.p.Timeout = 20 * time.Millisecond
	suite.p.Load = func(ctx context.Context, path string) ([]defs.Reading, error) {
		if path == "slow.csv" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return day(100), nil
	}

	s, err := suite.p.Process(context.Background(), []string{"slow.csv", "fast.csv"})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, s.Successful)
	require.Len(suite.T(), s.Failures, 1)
	assert.Equal(suite.T(), "slow.csv", s.Failures[0].File)
	assert.Contains(suite.T(), s.Failures[0].Error, context.DeadlineExceeded.Error())
}

func (suite *BatchTestSuite) TestProcessRespectsLimit() {
	var running, peak int32
	suite.p.MaxParallel = 2
	suite.p.Load = func(_ context.Context, _ string) ([]defs.Reading, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return day(100), nil
	}

	s, err := suite.p.Process(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 5, s.Successful)
	assert.LessOrEqual(suite.T(), atomic.LoadInt32(&peak), int32(2))
}

func (suite *BatchTestSuite) TestProcessNoFiles() {
	_, err := suite.p.Process(context.Background(), nil)
	assert.ErrorIs(suite.T(), err, ErrNoFiles)
}

func (suite *BatchTestSuite) TestProcessCSVFiles() {
	dir := suite.T().TempDir()
	in := filepath.Join(dir, "in")
	require.NoError(suite.T(), os.MkdirAll(in, 0o755))

	csv := "Date,Time,Sensor Glucose (mg/dL)\n" +
		"2024-03-01,08:00:00,100\n" +
		"2024-03-01,08:05:00,150\n" +
		"2024-03-01,08:10:00,200\n"
	require.NoError(suite.T(), os.WriteFile(filepath.Join(in, "patient.csv"), []byte(csv), 0o644))
	require.NoError(suite.T(), os.WriteFile(filepath.Join(in, "broken.csv"), []byte("a,b\n1,2\n"), 0o644))

	paths, err := Expand(filepath.Join(in, "*.csv"))
	require.NoError(suite.T(), err)
	require.Len(suite.T(), paths, 2)

	suite.p.OutputDir = filepath.Join(dir, "out")
	s, err := suite.p.Process(context.Background(), paths)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, s.Successful)
	assert.Equal(suite.T(), 1, s.Failed)
	assert.InDelta(suite.T(), 150, s.Results[0].Snapshot.Summary.Mean, 1e-9)
	assert.Nil(suite.T(), s.BestTIR)

	assert.FileExists(suite.T(), filepath.Join(suite.p.OutputDir, SummaryFile))
	assert.FileExists(suite.T(), filepath.Join(suite.p.OutputDir, "patient", ReportFile))
	assert.FileExists(suite.T(), filepath.Join(suite.p.OutputDir, "patient", MetricsFile))
}

func (suite *BatchTestSuite) TestProcessSameStemInDifferentDirs() {
	dir := suite.T().TempDir()
	header := "Date,Time,Sensor Glucose (mg/dL)\n"
	for sub, value := range map[string]string{"a": "100", "b": "300"} {
		require.NoError(suite.T(), os.MkdirAll(filepath.Join(dir, "in", sub), 0o755))
		csv := header +
			"2024-03-01,08:00:00," + value + "\n" +
			"2024-03-01,08:05:00," + value + "\n"
		require.NoError(suite.T(), os.WriteFile(filepath.Join(dir, "in", sub, "x.csv"), []byte(csv), 0o644))
	}

	paths, err := Expand(filepath.Join(dir, "in", "*", "*.csv"))
	require.NoError(suite.T(), err)
	require.Len(suite.T(), paths, 2)

	suite.p.OutputDir = filepath.Join(dir, "out")
	s, err := suite.p.Process(context.Background(), paths)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 2, s.Successful)
	assert.Equal(suite.T(), "x", s.Results[0].Name)
	assert.Equal(suite.T(), "x-2", s.Results[1].Name)

	for name, mean := range map[string]float64{"x": 100, "x-2": 300} {
		b, err := os.ReadFile(filepath.Join(suite.p.OutputDir, name, MetricsFile))
		require.NoError(suite.T(), err, name)
		var snap metrics.Snapshot
		require.NoError(suite.T(), json.Unmarshal(b, &snap))
		assert.InDelta(suite.T(), mean, snap.Summary.Mean, 1e-9, name)
	}
}

func TestReportNames(t *testing.T) {
	names := reportNames([]string{"a/x.csv", "b/x.csv", "x-2.csv", "c/x.csv", "y.txt"})
	assert.Equal(t, []string{"x", "x-2", "x-2-2", "x-3", "y"}, names)
}

func (suite *BatchTestSuite) TestExpandNoMatch() {
	_, err := Expand(filepath.Join(suite.T().TempDir(), "*.csv"))
	assert.ErrorIs(suite.T(), err, ErrNoFiles)
}

func TestSummarizeSingleResult(t *testing.T) {
	snap, err := metrics.Compute(day(100, 120), defs.DefaultTargetRange)
	require.NoError(t, err)

	s := Summarize([]Result{{File: "only.csv", Snapshot: &snap}})
	assert.Equal(t, 1, s.Successful)
	assert.Nil(t, s.BestTIR)
	assert.Empty(t, s.Attention)
	assert.InDelta(t, 110, s.Averages.Mean, 1e-9)
}
