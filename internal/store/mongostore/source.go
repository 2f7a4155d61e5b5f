// Package mongostore adapts MongoDB collections to live.Source.
//
// Documents are expected to carry an updatedAt date field; an ascending
// index on {updatedAt: 1, _id: 1} keeps the watermark query cheap. Use
// EnsureIndexes at start-up to create it.
package mongostore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/drewdru/ponyTown-sub010/internal/live"
)

// StampField is the document field polled against the watermark.
const StampField = "updatedAt"

// Connect opens a client for uri and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// Source mirrors one MongoDB collection into records of type T. T must
// carry bson tags with the id mapped to "_id".
type Source[T any] struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

// NewSource binds coll to record type T.
func NewSource[T any](coll *mongo.Collection) *Source[T] {
	return &Source[T]{
		coll:   coll,
		logger: slog.Default().With("collection", coll.Name()),
	}
}

// EnsureIndexes creates the watermark index.
func (s *Source[T]) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: StampField, Value: 1}, {Key: "_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create index on %s: %w", s.coll.Name(), err)
	}
	return nil
}

// FindChangedSince implements live.Source. A document that does not decode
// into T still yields a row carrying its _id and updatedAt.
func (s *Source[T]) FindChangedSince(ctx context.Context, since time.Time, limit int) ([]live.Row[T], error) {
	filter := bson.M{}
	if !since.IsZero() {
		filter[StampField] = bson.M{"$gt": since}
	}
	opts := options.Find().SetSort(bson.D{{Key: StampField, Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", s.coll.Name(), err)
	}
	defer cur.Close(ctx)

	var rows []live.Row[T]
	for cur.Next(ctx) {
		rows = append(rows, decodeRow[T](cur.Current))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("find %s: %w", s.coll.Name(), err)
	}
	return rows, nil
}

// Find implements live.Source.
func (s *Source[T]) Find(ctx context.Context, filter live.Filter) ([]*T, error) {
	q := bson.M{}
	for k, v := range filter {
		q[k] = v
	}
	opts := options.Find().SetSort(bson.D{{Key: StampField, Value: 1}, {Key: "_id", Value: 1}})
	return s.find(ctx, q, opts)
}

// Delete implements live.Source.
func (s *Source[T]) Delete(ctx context.Context, id string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", s.coll.Name(), id, err)
	}
	return nil
}

// ListIDs implements live.Source.
func (s *Source[T]) ListIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list ids %s: %w", s.coll.Name(), err)
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("list ids %s: decode: %w", s.coll.Name(), err)
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}

// Put upserts item by its _id.
func (s *Source[T]) Put(ctx context.Context, id string, item *T) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": id}, item, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", s.coll.Name(), id, err)
	}
	return nil
}

// find decodes every matching document, logging and skipping those that
// do not decode into T.
func (s *Source[T]) find(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]*T, error) {
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", s.coll.Name(), err)
	}
	defer cur.Close(ctx)

	var out []*T
	for cur.Next(ctx) {
		row := decodeRow[T](cur.Current)
		if row.Err != nil {
			s.logger.Warn("skipping undecodable document", "id", row.ID, "error", row.Err)
			continue
		}
		out = append(out, row.Item)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("find %s: %w", s.coll.Name(), err)
	}
	return out, nil
}

// decodeRow decodes raw into T. The row's id and stamp are read from the
// raw document, so they survive a body that does not decode.
func decodeRow[T any](raw bson.Raw) live.Row[T] {
	var row live.Row[T]
	if v, err := raw.LookupErr("_id"); err == nil {
		if id, ok := v.StringValueOK(); ok {
			row.ID = id
		} else {
			row.ID = v.String()
		}
	}
	if v, err := raw.LookupErr(StampField); err == nil {
		if dt, ok := v.DateTimeOK(); ok {
			row.Stamp = time.UnixMilli(dt).UTC()
		}
	}

	item := new(T)
	if err := bson.Unmarshal(raw, item); err != nil {
		row.Err = fmt.Errorf("decode: %w", err)
		return row
	}
	row.Item = item
	return row
}
