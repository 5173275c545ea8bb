package docstore

import (
	"context"
	"time"

	"github.com/gogotex/gogotex/backend/go-repository/internal/database"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const dialTimeout = 10 * time.Second

// DialMongo connects to MongoDB and pings the primary.
func DialMongo(ctx context.Context, uri string) (Client, error) {
	c, err := database.ConnectMongo(ctx, uri, dialTimeout)
	if err != nil {
		return nil, err
	}
	return NewMongoClient(c), nil
}

// MongoClient adapts *mongo.Client.
type MongoClient struct {
	client *mongo.Client
}

func NewMongoClient(c *mongo.Client) *MongoClient {
	return &MongoClient{client: c}
}

func (m *MongoClient) Database(name string) Database {
	return &MongoDatabase{db: m.client.Database(name)}
}

func (m *MongoClient) Disconnect(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// MongoDatabase adapts *mongo.Database.
type MongoDatabase struct {
	db *mongo.Database
}

func (m *MongoDatabase) Name() string { return m.db.Name() }

func (m *MongoDatabase) ListCollectionNames(ctx context.Context) ([]string, error) {
	return m.db.ListCollectionNames(ctx, bson.D{})
}

func (m *MongoDatabase) CreateCollection(ctx context.Context, name string) error {
	return m.db.CreateCollection(ctx, name)
}

func (m *MongoDatabase) Collection(name string) Collection {
	return NewMongoCollection(m.db.Collection(name))
}

// MongoCollection adapts *mongo.Collection.
type MongoCollection struct {
	col *mongo.Collection
}

func NewMongoCollection(col *mongo.Collection) *MongoCollection {
	return &MongoCollection{col: col}
}

func (m *MongoCollection) Name() string { return m.col.Name() }

func (m *MongoCollection) Find(ctx context.Context, filter interface{}, opts FindOptions) (Cursor, error) {
	fo := options.Find()
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}
	if opts.Projection != nil {
		fo.SetProjection(opts.Projection)
	}
	cur, err := m.col.Find(ctx, filter, fo)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (m *MongoCollection) CountDocuments(ctx context.Context, filter interface{}, limit int64) (int64, error) {
	co := options.Count()
	if limit > 0 {
		co.SetLimit(limit)
	}
	return m.col.CountDocuments(ctx, filter, co)
}

func (m *MongoCollection) InsertOne(ctx context.Context, doc interface{}) error {
	_, err := m.col.InsertOne(ctx, doc)
	return err
}

func (m *MongoCollection) InsertMany(ctx context.Context, docs []interface{}) error {
	_, err := m.col.InsertMany(ctx, docs)
	return err
}

func (m *MongoCollection) ReplaceOne(ctx context.Context, filter, replacement interface{}, upsert bool) (UpdateResult, error) {
	res, err := m.col.ReplaceOne(ctx, filter, replacement, options.Replace().SetUpsert(upsert))
	return fromMongo(res), err
}

func (m *MongoCollection) UpdateOne(ctx context.Context, filter, update interface{}, upsert bool) (UpdateResult, error) {
	res, err := m.col.UpdateOne(ctx, filter, update, options.Update().SetUpsert(upsert))
	return fromMongo(res), err
}

func (m *MongoCollection) UpdateMany(ctx context.Context, filter, update interface{}) (UpdateResult, error) {
	res, err := m.col.UpdateMany(ctx, filter, update)
	return fromMongo(res), err
}

func (m *MongoCollection) FindOneAndUpdate(ctx context.Context, filter, update interface{}, upsert bool) SingleResult {
	opts := options.FindOneAndUpdate().SetUpsert(upsert).SetReturnDocument(options.After)
	return m.col.FindOneAndUpdate(ctx, filter, update, opts)
}

func (m *MongoCollection) DeleteOne(ctx context.Context, filter interface{}) (int64, error) {
	res, err := m.col.DeleteOne(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (m *MongoCollection) DeleteMany(ctx context.Context, filter interface{}) (int64, error) {
	res, err := m.col.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func fromMongo(res *mongo.UpdateResult) UpdateResult {
	if res == nil {
		return UpdateResult{}
	}
	return UpdateResult{
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		UpsertedCount: res.UpsertedCount,
		UpsertedID:    res.UpsertedID,
	}
}
