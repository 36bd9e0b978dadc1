// Package docstore is the MongoDB repository. It stores the same records as
// the SQL store, one collection per record kind.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pavelanni/quizhall/internal/model"
)

// DefaultDatabase is used when the URI names no database.
const DefaultDatabase = "quizhall"

type Store struct {
	client *mongo.Client
	db     *mongo.Database

	users      *mongo.Collection
	authSess   *mongo.Collection
	categories *mongo.Collection
	questions  *mongo.Collection
	exams      *mongo.Collection
	sittings   *mongo.Collection
	attempts   *mongo.Collection
	importMeta *mongo.Collection
}

// New connects to uri, selects database and ensures the indexes exist.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	if database == "" {
		database = DefaultDatabase
	}
	db := client.Database(database)
	s := &Store{
		client:     client,
		db:         db,
		users:      db.Collection("users"),
		authSess:   db.Collection("auth_sessions"),
		categories: db.Collection("categories"),
		questions:  db.Collection("questions"),
		exams:      db.Collection("exams"),
		sittings:   db.Collection("sittings"),
		attempts:   db.Collection("attempts"),
		importMeta: db.Collection("import_metadata"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping checks the server connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Drop deletes the whole database. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	indexes := []struct {
		coll *mongo.Collection
		keys bson.D
		opts *options.IndexOptions
	}{
		{s.users, bson.D{{Key: "username", Value: 1}}, unique},
		{s.categories, bson.D{{Key: "name", Value: 1}}, unique},
		{s.questions, bson.D{{Key: "created_at", Value: 1}}, nil},
		{s.questions, bson.D{{Key: "category_id", Value: 1}}, nil},
		{s.attempts, bson.D{{Key: "score", Value: -1}, {Key: "created_at", Value: 1}}, nil},
	}
	for _, ix := range indexes {
		if _, err := ix.coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: ix.keys, Options: ix.opts}); err != nil {
			return err
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.ErrNotFound
	}
	return err
}

func deleted(res *mongo.DeleteResult, err error) error {
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}

func matched(res *mongo.UpdateResult, err error) error {
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}

func byID(id string) bson.M {
	return bson.M{"_id": id}
}

// findAll runs a query and decodes every document into out.
func findAll(ctx context.Context, coll *mongo.Collection, filter any, out any, opts ...*options.FindOptions) error {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, out)
}

// Timestamps are stored as unix nanoseconds; BSON dates only keep milliseconds.
func toUnix(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
