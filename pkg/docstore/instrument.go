package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/gogotex/gogotex/backend/go-repository/pkg/metrics"
)

// Instrument wraps c so every call is counted and timed under the
// collection's name.
func Instrument(c Collection) Collection {
	if _, ok := c.(*instrumented); ok {
		return c
	}
	return &instrumented{next: c, name: c.Name()}
}

type instrumented struct {
	next Collection
	name string
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	metrics.ObserveStoreCall(i.name, op, start, err)
}

func (i *instrumented) Name() string { return i.name }

func (i *instrumented) Find(ctx context.Context, filter interface{}, opts FindOptions) (Cursor, error) {
	start := time.Now()
	cur, err := i.next.Find(ctx, filter, opts)
	i.observe("find", start, err)
	return cur, err
}

func (i *instrumented) CountDocuments(ctx context.Context, filter interface{}, limit int64) (int64, error) {
	start := time.Now()
	n, err := i.next.CountDocuments(ctx, filter, limit)
	i.observe("count", start, err)
	return n, err
}

func (i *instrumented) InsertOne(ctx context.Context, doc interface{}) error {
	start := time.Now()
	err := i.next.InsertOne(ctx, doc)
	i.observe("insert_one", start, err)
	return err
}

func (i *instrumented) InsertMany(ctx context.Context, docs []interface{}) error {
	start := time.Now()
	err := i.next.InsertMany(ctx, docs)
	i.observe("insert_many", start, err)
	return err
}

func (i *instrumented) ReplaceOne(ctx context.Context, filter, replacement interface{}, upsert bool) (UpdateResult, error) {
	start := time.Now()
	res, err := i.next.ReplaceOne(ctx, filter, replacement, upsert)
	i.observe("replace_one", start, err)
	return res, err
}

func (i *instrumented) UpdateOne(ctx context.Context, filter, update interface{}, upsert bool) (UpdateResult, error) {
	start := time.Now()
	res, err := i.next.UpdateOne(ctx, filter, update, upsert)
	i.observe("update_one", start, err)
	return res, err
}

func (i *instrumented) UpdateMany(ctx context.Context, filter, update interface{}) (UpdateResult, error) {
	start := time.Now()
	res, err := i.next.UpdateMany(ctx, filter, update)
	i.observe("update_many", start, err)
	return res, err
}

func (i *instrumented) FindOneAndUpdate(ctx context.Context, filter, update interface{}, upsert bool) SingleResult {
	start := time.Now()
	res := i.next.FindOneAndUpdate(ctx, filter, update, upsert)
	err := res.Err()
	if errors.Is(err, ErrNoDocuments) {
		err = nil
	}
	i.observe("find_one_and_update", start, err)
	return res
}

func (i *instrumented) DeleteOne(ctx context.Context, filter interface{}) (int64, error) {
	start := time.Now()
	n, err := i.next.DeleteOne(ctx, filter)
	i.observe("delete_one", start, err)
	return n, err
}

func (i *instrumented) DeleteMany(ctx context.Context, filter interface{}) (int64, error) {
	start := time.Now()
	n, err := i.next.DeleteMany(ctx, filter)
	i.observe("delete_many", start, err)
	return n, err
}
