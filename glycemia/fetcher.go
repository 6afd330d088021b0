package glycemia

import (
	"context"
	"fmt"
	"ichor/glycemia/defs"
	"ichor/glycemia/pkg/dexcom"
	"ichor/glycemia/pkg/mg"

	"go.uber.org/zap"
)

type FetcherStore interface {
	mg.GlucoseStore
}

type Fetcher struct {
	Source dexcom.Source
	Store  FetcherStore

	Logger *zap.Logger
}

// FetchAndLoad writes new readings, newest first, until it meets one already
// stored.
func (f *Fetcher) FetchAndLoad(ctx context.Context) (int, error) {
	rs, err := f.Source.Readings(ctx, dexcom.MinuteLimit, dexcom.CountLimit)
	if err != nil {
		return 0, fmt.Errorf("unable to fetch readings: %w", err)
	}

	var written int
	for i := len(rs) - 1; i >= 0; i-- {
		r := rs[i]
		if !r.Valid() {
			f.Logger.Debug("skipping invalid reading", zap.Time("time", r.Time), zap.Float64("value", r.Value))
			continue
		}
		res, err := f.Store.WriteGlucose(ctx, &r)
		if err != nil {
			return written, fmt.Errorf("unable to write glucose to store: %w", err)
		}
		if res.MatchedCount > 0 {
			break
		}
		written++
	}

	f.Logger.Debug("loaded readings", zap.Int("written", written))
	return written, nil
}

func (f *Fetcher) FetchRecent() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*defs.TimeoutInterval)
	defer cancel()
	_, err := f.FetchAndLoad(ctx)
	return err
}
