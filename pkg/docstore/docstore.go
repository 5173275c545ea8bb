// Package docstore defines the document-database operations the repository
// delegates to, with a MongoDB adapter, an in-memory implementation and a
// Prometheus-instrumented decorator.
//
// Filters and updates are opaque BSON documents (bson.D, bson.M or anything
// the bson package can marshal) and are passed to the backend untouched.
package docstore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
)

// ErrNoDocuments is returned by SingleResult when nothing matched.
var ErrNoDocuments = mongo.ErrNoDocuments

// Dialer connects to a backend identified by a connection string.
type Dialer func(ctx context.Context, uri string) (Client, error)

// Client is a connected backend.
type Client interface {
	Database(name string) Database
	Disconnect(ctx context.Context) error
}

// Database is a named logical database.
type Database interface {
	Name() string
	ListCollectionNames(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, name string) error
	Collection(name string) Collection
}

// FindOptions bounds a Find call. Zero values mean "no limit" and "whole document".
type FindOptions struct {
	Limit      int64
	Projection interface{}
}

// UpdateResult reports the effect of a replace or update.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
	UpsertedCount int64
	UpsertedID    interface{}
}

// Collection is a handle to a named set of documents.
type Collection interface {
	Name() string
	Find(ctx context.Context, filter interface{}, opts FindOptions) (Cursor, error)
	// CountDocuments counts matches; a positive limit stops counting early.
	CountDocuments(ctx context.Context, filter interface{}, limit int64) (int64, error)
	InsertOne(ctx context.Context, doc interface{}) error
	InsertMany(ctx context.Context, docs []interface{}) error
	ReplaceOne(ctx context.Context, filter, replacement interface{}, upsert bool) (UpdateResult, error)
	UpdateOne(ctx context.Context, filter, update interface{}, upsert bool) (UpdateResult, error)
	UpdateMany(ctx context.Context, filter, update interface{}) (UpdateResult, error)
	// FindOneAndUpdate applies update to the first match and returns the
	// document as it is after the update.
	FindOneAndUpdate(ctx context.Context, filter, update interface{}, upsert bool) SingleResult
	DeleteOne(ctx context.Context, filter interface{}) (int64, error)
	DeleteMany(ctx context.Context, filter interface{}) (int64, error)
}

// Cursor streams the results of Find. *mongo.Cursor satisfies it.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(v interface{}) error
	Err() error
	Close(ctx context.Context) error
}

// SingleResult is one decoded document or an error. *mongo.SingleResult satisfies it.
type SingleResult interface {
	Decode(v interface{}) error
	Err() error
}

// IsDuplicateKey reports whether err is a unique index violation.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// IsNamespaceExists reports whether err says the collection already exists.
func IsNamespaceExists(err error) bool {
	var ce mongo.CommandError
	return errors.As(err, &ce) && ce.Code == codeNamespaceExists
}

const (
	codeNamespaceExists = 48
	codeDuplicateKey    = 11000
)
