package mg

import (
	"context"
	"fmt"
	"ichor/glycemia/defs"
	"ichor/glycemia/pkg/metrics"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	GlucoseCollection   = "glucose"
	SnapshotsCollection = "snapshots"
)

type GlucoseStore interface {
	WriteGlucose(ctx context.Context, r *defs.Reading) (*mongo.UpdateResult, error)
	ReadGlucose(ctx context.Context, start, end time.Time) ([]defs.Reading, error)
}

type SnapshotStore interface {
	WriteSnapshot(ctx context.Context, s metrics.Snapshot) (*mongo.UpdateResult, error)
	ReadSnapshots(ctx context.Context, start, end time.Time) ([]metrics.Snapshot, error)
}

// SnapshotDocument stores a snapshot in its flat form.
type SnapshotDocument struct {
	ID       *primitive.ObjectID `bson:"_id,omitempty"`
	Time     time.Time           `bson:"time"` // End of the analyzed window.
	Start    time.Time           `bson:"start"`
	Computed time.Time           `bson:"computed"`
	Metrics  map[string]float64  `bson:"metrics"`
}

type MongoStore struct {
	Client *mongo.Client
	Logger *zap.Logger

	DBName string
}

func New(ctx context.Context, cfg defs.MongoConfig, dbName string, logger *zap.Logger) (*MongoStore, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}

	mongoClient, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to mongo: %w", err)
	}

	return &MongoStore{
		Client: mongoClient,
		Logger: logger,
		DBName: dbName,
	}, nil
}

func (ms *MongoStore) InsertIfNew(ctx context.Context, collection string, filter bson.M, doc interface{}) (*mongo.UpdateResult, error) {
	ms.Logger.Debug(
		"inserting document",
		zap.String("collection", collection),
		zap.Any("filter", filter),
	)

	res, err := ms.Client.
		Database(ms.DBName).
		Collection(collection).
		UpdateOne(ctx, filter,
			bson.M{"$setOnInsert": doc},
			options.Update().SetUpsert(true),
		)
	if err != nil {
		return nil, fmt.Errorf("unable to insert if new: %w", err)
	}

	return res, nil
}

func (ms *MongoStore) Upsert(ctx context.Context, collection string, filter bson.M, doc interface{}) (*mongo.UpdateResult, error) {
	ms.Logger.Debug(
		"upserting document",
		zap.String("collection", collection),
		zap.Any("filter", filter),
	)

	res, err := ms.Client.
		Database(ms.DBName).
		Collection(collection).
		UpdateOne(ctx, filter,
			bson.M{"$set": doc},
			options.Update().SetUpsert(true),
		)
	if err != nil {
		ms.Logger.Debug(
			"unable to upsert document",
			zap.String("collection", collection),
			zap.Error(err),
		)
		return nil, fmt.Errorf("unable to upsert document: %w", err)
	}

	return res, nil
}

func (ms *MongoStore) getEventsBetween(ctx context.Context, collection string, start, end time.Time, slicePtr interface{}) error {
	ms.Logger.Debug(
		"reading events",
		zap.String("collection", collection),
		zap.Time("start", start),
		zap.Time("end", end),
	)

	findOptions := options.Find()
	findOptions.SetSort(bson.D{primitive.E{Key: "time", Value: 1}})

	cur, err := ms.Client.
		Database(ms.DBName).
		Collection(collection).
		Find(ctx, bson.M{
			"time": bson.M{
				"$gte": primitive.NewDateTimeFromTime(start),
				"$lte": primitive.NewDateTimeFromTime(end),
			},
		}, findOptions)
	if err != nil {
		ms.Logger.Debug(
			"unable to read events",
			zap.String("collection", collection),
			zap.Error(err),
		)
		return fmt.Errorf("unable to read events: %w", err)
	}

	return cur.All(ctx, slicePtr)
}

func (ms *MongoStore) WriteGlucose(ctx context.Context, r *defs.Reading) (*mongo.UpdateResult, error) {
	filter := bson.M{"time": r.Time}
	return ms.InsertIfNew(ctx, GlucoseCollection, filter, r)
}

// ReadGlucose returns readings in [start, end] sorted by time. Times are UTC.
func (ms *MongoStore) ReadGlucose(ctx context.Context, start, end time.Time) ([]defs.Reading, error) {
	var rs []defs.Reading
	if err := ms.getEventsBetween(ctx, GlucoseCollection, start, end, &rs); err != nil {
		return nil, fmt.Errorf("unable to read glucose: %w", err)
	}
	return rs, nil
}

// WriteSnapshot keeps one snapshot per analyzed window end.
func (ms *MongoStore) WriteSnapshot(ctx context.Context, s metrics.Snapshot) (*mongo.UpdateResult, error) {
	doc := SnapshotDocument{
		Time:     s.End,
		Start:    s.Start,
		Computed: time.Now(),
		Metrics:  s.Flatten(),
	}
	filter := bson.M{"time": s.End, "start": s.Start}
	return ms.Upsert(ctx, SnapshotsCollection, filter, doc)
}

func (ms *MongoStore) ReadSnapshots(ctx context.Context, start, end time.Time) ([]metrics.Snapshot, error) {
	var docs []SnapshotDocument
	if err := ms.getEventsBetween(ctx, SnapshotsCollection, start, end, &docs); err != nil {
		return nil, fmt.Errorf("unable to read snapshots: %w", err)
	}

	snaps := make([]metrics.Snapshot, 0, len(docs))
	for _, doc := range docs {
		s, err := metrics.FromFlat(doc.Metrics)
		if err != nil {
			return nil, fmt.Errorf("unable to decode snapshot %v: %w", doc.Time, err)
		}
		snaps = append(snaps, s)
	}
	return snaps, nil
}
