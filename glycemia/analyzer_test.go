package glycemia

import (
	"context"
	"errors"
	"ichor/glycemia/defs"
	"ichor/glycemia/mocks"
	"ichor/glycemia/pkg/desc"
	"ichor/glycemia/pkg/metrics"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type memStore struct {
	readings  []defs.Reading
	snapshots []metrics.Snapshot
}

func (m *memStore) WriteGlucose(_ context.Context, r *defs.Reading) (*mongo.UpdateResult, error) {
	for _, existing := range m.readings {
		if existing.Time.Equal(r.Time) {
			return &mongo.UpdateResult{MatchedCount: 1}, nil
		}
	}
	m.readings = append(m.readings, *r)
	return &mongo.UpdateResult{UpsertedCount: 1}, nil
}

func (m *memStore) ReadGlucose(_ context.Context, start, end time.Time) ([]defs.Reading, error) {
	var rs []defs.Reading
	for _, r := range m.readings {
		if !r.Time.Before(start) && !r.Time.After(end) {
			rs = append(rs, r)
		}
	}
	return rs, nil
}

func (m *memStore) WriteSnapshot(_ context.Context, s metrics.Snapshot) (*mongo.UpdateResult, error) {
	m.snapshots = append(m.snapshots, s)
	return &mongo.UpdateResult{UpsertedCount: 1}, nil
}

func (m *memStore) ReadSnapshots(_ context.Context, _, _ time.Time) ([]metrics.Snapshot, error) {
	return m.snapshots, nil
}

type AnalyzerSuite struct {
	suite.Suite
	analyzer *Analyzer
	msger    *mocks.Messager
	store    *memStore
	start    time.Time
}

func TestAnalyzerSuite(t *testing.T) {
	suite.Run(t, new(AnalyzerSuite))
}

func (suite *AnalyzerSuite) SetupTest() {
	suite.start = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	suite.store = &memStore{}
	suite.msger = mocks.NewMessager()
	suite.analyzer = &Analyzer{
		Messager:   suite.msger,
		Store:      suite.store,
		Descriptor: desc.New(time.UTC, 70, 0),
		Logger:     zap.NewExample(),
		Location:   time.UTC,
		Target:     defs.DefaultTargetRange,
	}
}

func (suite *AnalyzerSuite) TestAnalyze() {
	ctx := context.Background()
	for i := 0; i < 288; i++ {
		_, err := suite.store.WriteGlucose(ctx, &defs.Reading{
			Time:  suite.start.Add(time.Duration(i) * 5 * time.Minute),
			Value: []float64{60, 120, 200}[i%3],
		})
		require.NoError(suite.T(), err)
	}

	snap, err := suite.analyzer.Analyze(ctx, suite.start, suite.start.Add(24*time.Hour))
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), snap)

	assert.Equal(suite.T(), 288, snap.Readings)
	assert.InDelta(suite.T(), 100.0/3, snap.Ranges.TIR, 1e-9)
	assert.Len(suite.T(), suite.store.snapshots, 1)

	require.NotNil(suite.T(), suite.msger.Main)
	require.Len(suite.T(), suite.msger.Channels[defs.ReportsChannel], 1)
	report := suite.msger.Channels[defs.ReportsChannel][0]
	assert.Contains(suite.T(), report.Embeds[0].Description, "TIR below goal")
	require.Len(suite.T(), report.Files, 1)
	assert.Equal(suite.T(), "report-2024-03-01-2355.txt", report.Files[0].Name)
	assert.False(suite.T(), report.MentionEveryone)
}

func (suite *AnalyzerSuite) TestAnalyzeHighRiskMentionsEveryone() {
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_, err := suite.store.WriteGlucose(ctx, &defs.Reading{
			Time:  suite.start.Add(time.Duration(i) * 5 * time.Minute),
			Value: []float64{40, 300}[i%2],
		})
		require.NoError(suite.T(), err)
	}

	snap, err := suite.analyzer.Analyze(ctx, suite.start, suite.start.Add(time.Hour))
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), metrics.RiskHigh, snap.Risk)

	require.Len(suite.T(), suite.msger.Channels[defs.ReportsChannel], 1)
	report := suite.msger.Channels[defs.ReportsChannel][0]
	assert.True(suite.T(), report.MentionEveryone)
	assert.Contains(suite.T(), report.Content, "@everyone")
	assert.False(suite.T(), suite.msger.Main.MentionEveryone)
}

func (suite *AnalyzerSuite) TestAnalyzeEmptyWindow() {
	snap, err := suite.analyzer.Analyze(context.Background(), suite.start, suite.start.Add(time.Hour))
	assert.NoError(suite.T(), err)
	assert.Nil(suite.T(), snap)
	assert.Empty(suite.T(), suite.store.snapshots)
	assert.Nil(suite.T(), suite.msger.Main)
}

func (suite *AnalyzerSuite) TestAnalyzeWithoutMessager() {
	suite.analyzer.Messager = nil
	_, err := suite.store.WriteGlucose(context.Background(), &defs.Reading{Time: suite.start, Value: 100})
	require.NoError(suite.T(), err)

	snap, err := suite.analyzer.Analyze(context.Background(), suite.start, suite.start.Add(time.Hour))
	require.NoError(suite.T(), err)
	assert.True(suite.T(), snap.InsufficientData)
	assert.Len(suite.T(), suite.store.snapshots, 1)
}

func (suite *AnalyzerSuite) TestAnalyzeUsesLocation() {
	loc := time.FixedZone("UTC+9", 9*60*60)
	suite.analyzer.Location = loc
	_, err := suite.store.WriteGlucose(context.Background(), &defs.Reading{Time: suite.start, Value: 100})
	require.NoError(suite.T(), err)
	_, err = suite.store.WriteGlucose(context.Background(), &defs.Reading{Time: suite.start.Add(5 * time.Minute), Value: 110})
	require.NoError(suite.T(), err)

	snap, err := suite.analyzer.Analyze(context.Background(), suite.start, suite.start.Add(time.Hour))
	require.NoError(suite.T(), err)
	assert.Contains(suite.T(), snap.Hourly, 9)
	assert.NotContains(suite.T(), snap.Hourly, 0)
}

type fakeSource struct {
	rs  []defs.Reading
	err error
}

func (f *fakeSource) Readings(_ context.Context, _, _ int) ([]defs.Reading, error) {
	return f.rs, f.err
}

func TestFetchAndLoad(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var rs []defs.Reading
	for i := 0; i < 5; i++ {
		rs = append(rs, defs.Reading{Time: start.Add(time.Duration(i) * 5 * time.Minute), Value: 100})
	}

	store := &memStore{}
	f := &Fetcher{Source: &fakeSource{rs: rs[:3]}, Store: store, Logger: zap.NewNop()}

	n, err := f.FetchAndLoad(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Only the two newer readings are written before hitting a stored one.
	f.Source = &fakeSource{rs: rs}
	n, err = f.FetchAndLoad(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, store.readings, 5)

	f.Source = &fakeSource{err: errors.New("share unavailable")}
	_, err = f.FetchAndLoad(context.Background())
	assert.Error(t, err)
}

func TestAnalyzeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.csv")
	csv := "Date,Time,Sensor Glucose (mg/dL)\n" +
		"2024-03-01,08:00:00,100\n" +
		"2024-03-01,08:05:00,140\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	config := defs.Config{Timezone: "UTC", Logger: zap.NewNop()}
	snap, report, err := AnalyzeFile(config, path)
	require.NoError(t, err)
	assert.InDelta(t, 120, snap.Summary.Mean, 1e-9)
	assert.Contains(t, report, "Mean: 120.0 mg/dL")

	_, _, err = AnalyzeFile(config, filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
