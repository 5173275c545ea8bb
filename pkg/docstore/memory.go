package docstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MemoryClient is an in-process backend used by unit tests and by the demo
// service when no MongoDB URI is configured. Every dial returns the same
// client, so data survives re-configuration the way it would on a server.
type MemoryClient struct {
	mu  sync.Mutex
	dbs map[string]*MemoryDatabase
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{dbs: make(map[string]*MemoryDatabase)}
}

// Dialer returns a Dialer that ignores the connection string.
func (c *MemoryClient) Dialer() Dialer {
	return func(ctx context.Context, _ string) (Client, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return c, nil
	}
}

func (c *MemoryClient) Database(name string) Database {
	c.mu.Lock()
	defer c.mu.Unlock()
	db, ok := c.dbs[name]
	if !ok {
		db = &MemoryDatabase{name: name, cols: make(map[string]*MemoryCollection)}
		c.dbs[name] = db
	}
	return db
}

// Disconnect is a no-op; the data lives as long as the client.
func (c *MemoryClient) Disconnect(context.Context) error { return nil }

type MemoryDatabase struct {
	name string
	mu   sync.Mutex
	cols map[string]*MemoryCollection
}

func (d *MemoryDatabase) Name() string { return d.name }

func (d *MemoryDatabase) ListCollectionNames(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.cols))
	for name, col := range d.cols {
		if col.exists() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d *MemoryDatabase) CreateCollection(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	col := d.collection(name)
	col.mu.Lock()
	defer col.mu.Unlock()
	if col.created {
		return mongo.CommandError{
			Code:    codeNamespaceExists,
			Name:    "NamespaceExists",
			Message: fmt.Sprintf("Collection %s.%s already exists.", d.name, name),
		}
	}
	col.created = true
	return nil
}

func (d *MemoryDatabase) Collection(name string) Collection {
	return d.collection(name)
}

func (d *MemoryDatabase) collection(name string) *MemoryCollection {
	d.mu.Lock()
	defer d.mu.Unlock()
	col, ok := d.cols[name]
	if !ok {
		col = &MemoryCollection{name: name}
		d.cols[name] = col
	}
	return col
}

// MemoryCollection keeps documents in insertion order. Like MongoDB it
// creates itself on first insert and enforces a unique _id.
type MemoryCollection struct {
	name    string
	mu      sync.RWMutex
	created bool
	docs    []bson.M
}

func (c *MemoryCollection) Name() string { return c.name }

func (c *MemoryCollection) exists() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.created
}

// Find ignores opts.Projection and always returns whole documents.
func (c *MemoryCollection) Find(ctx context.Context, filter interface{}, opts FindOptions) (Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := normalizeD(filter)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []bson.Raw{}
	for _, doc := range c.docs {
		ok, err := matches(doc, f)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		raw, err := bson.Marshal(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
		if opts.Limit > 0 && int64(len(out)) >= opts.Limit {
			break
		}
	}
	return &memoryCursor{docs: out}, nil
}

func (c *MemoryCollection) CountDocuments(ctx context.Context, filter interface{}, limit int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := normalizeD(filter)
	if err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var n int64
	for _, doc := range c.docs {
		ok, err := matches(doc, f)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
			if limit > 0 && n >= limit {
				break
			}
		}
	}
	return n, nil
}

func (c *MemoryCollection) InsertOne(ctx context.Context, doc interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := normalize(doc)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(m)
}

// InsertMany is ordered: it stops at the first failure and keeps what was
// already written.
func (c *MemoryCollection) InsertMany(ctx context.Context, docs []interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(docs) == 0 {
		return mongo.ErrEmptySlice
	}
	batch := make([]bson.M, 0, len(docs))
	for _, doc := range docs {
		m, err := normalize(doc)
		if err != nil {
			return err
		}
		batch = append(batch, m)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range batch {
		if err := c.insertLocked(m); err != nil {
			return err
		}
	}
	return nil
}

func (c *MemoryCollection) ReplaceOne(ctx context.Context, filter, replacement interface{}, upsert bool) (UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return UpdateResult{}, err
	}
	f, err := normalizeD(filter)
	if err != nil {
		return UpdateResult{}, err
	}
	repl, err := normalize(replacement)
	if err != nil {
		return UpdateResult{}, err
	}
	for k := range repl {
		if strings.HasPrefix(k, "$") {
			return UpdateResult{}, fmt.Errorf("docstore: replacement document cannot contain operator %q", k)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i, err := c.firstMatch(f)
	if err != nil {
		return UpdateResult{}, err
	}
	if i >= 0 {
		id := c.docs[i]["_id"]
		if rid, ok := repl["_id"]; ok && !equal(rid, id) {
			return UpdateResult{}, immutableID()
		}
		repl["_id"] = id
		res := UpdateResult{MatchedCount: 1}
		if !reflect.DeepEqual(c.docs[i], repl) {
			res.ModifiedCount = 1
		}
		c.docs[i] = repl
		return res, nil
	}
	if !upsert {
		return UpdateResult{}, nil
	}
	for k, v := range seed(f) {
		if _, ok := repl[k]; !ok {
			repl[k] = v
		}
	}
	if err := c.insertLocked(repl); err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{UpsertedCount: 1, UpsertedID: repl["_id"]}, nil
}

func (c *MemoryCollection) UpdateOne(ctx context.Context, filter, update interface{}, upsert bool) (UpdateResult, error) {
	res, _, err := c.apply(ctx, filter, update, upsert, false)
	return res, err
}

func (c *MemoryCollection) UpdateMany(ctx context.Context, filter, update interface{}) (UpdateResult, error) {
	res, _, err := c.apply(ctx, filter, update, false, true)
	return res, err
}

func (c *MemoryCollection) FindOneAndUpdate(ctx context.Context, filter, update interface{}, upsert bool) SingleResult {
	_, doc, err := c.apply(ctx, filter, update, upsert, false)
	if err != nil {
		return &singleResult{err: err}
	}
	if doc == nil {
		return &singleResult{err: ErrNoDocuments}
	}
	raw, err := bson.Marshal(doc)
	return &singleResult{raw: raw, err: err}
}

func (c *MemoryCollection) DeleteOne(ctx context.Context, filter interface{}) (int64, error) {
	return c.remove(ctx, filter, false)
}

func (c *MemoryCollection) DeleteMany(ctx context.Context, filter interface{}) (int64, error) {
	return c.remove(ctx, filter, true)
}

func (c *MemoryCollection) apply(ctx context.Context, filter, update interface{}, upsert, many bool) (UpdateResult, bson.M, error) {
	if err := ctx.Err(); err != nil {
		return UpdateResult{}, nil, err
	}
	f, err := normalizeD(filter)
	if err != nil {
		return UpdateResult{}, nil, err
	}
	u, err := normalizeD(update)
	if err != nil {
		return UpdateResult{}, nil, err
	}
	if !isOperatorDoc(u) {
		return UpdateResult{}, nil, fmt.Errorf("docstore: update document requires atomic operators")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var res UpdateResult
	var last bson.M
	for i, doc := range c.docs {
		ok, err := matches(doc, f)
		if err != nil {
			return UpdateResult{}, nil, err
		}
		if !ok {
			continue
		}
		next := make(bson.M, len(doc))
		for k, v := range doc {
			next[k] = v
		}
		if err := applyUpdate(next, u, false); err != nil {
			return UpdateResult{}, nil, err
		}
		if !equal(next["_id"], doc["_id"]) {
			return UpdateResult{}, nil, immutableID()
		}
		res.MatchedCount++
		if !reflect.DeepEqual(doc, next) {
			res.ModifiedCount++
			c.docs[i] = next
		}
		last = c.docs[i]
		if !many {
			break
		}
	}
	if res.MatchedCount > 0 || !upsert {
		return res, last, nil
	}

	doc := seed(f)
	if err := applyUpdate(doc, u, true); err != nil {
		return UpdateResult{}, nil, err
	}
	if err := c.insertLocked(doc); err != nil {
		return UpdateResult{}, nil, err
	}
	res.UpsertedCount = 1
	res.UpsertedID = doc["_id"]
	return res, doc, nil
}

func (c *MemoryCollection) remove(ctx context.Context, filter interface{}, many bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := normalizeD(filter)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := make([]bson.M, 0, len(c.docs))
	var n int64
	for _, doc := range c.docs {
		if many || n == 0 {
			ok, err := matches(doc, f)
			if err != nil {
				return 0, err
			}
			if ok {
				n++
				continue
			}
		}
		kept = append(kept, doc)
	}
	c.docs = kept
	return n, nil
}

func (c *MemoryCollection) firstMatch(f bson.D) (int, error) {
	for i, doc := range c.docs {
		ok, err := matches(doc, f)
		if err != nil {
			return -1, err
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}

func (c *MemoryCollection) insertLocked(m bson.M) error {
	id, ok := m["_id"]
	if !ok {
		id = primitive.NewObjectID()
		m["_id"] = id
	}
	for _, doc := range c.docs {
		if equal(doc["_id"], id) {
			return mongo.WriteException{WriteErrors: []mongo.WriteError{{
				Code:    codeDuplicateKey,
				Message: fmt.Sprintf("E11000 duplicate key error collection: %s index: _id_ dup key: { _id: %v }", c.name, id),
			}}}
		}
	}
	c.docs = append(c.docs, m)
	c.created = true
	return nil
}

// seed builds the base document of an upsert from the filter's equality clauses.
func seed(f bson.D) bson.M {
	doc := bson.M{}
	for _, e := range f {
		if strings.HasPrefix(e.Key, "$") {
			continue
		}
		if d, ok := asDoc(e.Value); ok && isOperatorDoc(d) {
			continue
		}
		doc[e.Key] = e.Value
	}
	return doc
}

func applyUpdate(doc bson.M, u bson.D, inserting bool) error {
	for _, op := range u {
		fields, ok := asDoc(op.Value)
		if !ok {
			return fmt.Errorf("docstore: %s needs a document", op.Key)
		}
		switch op.Key {
		case "$set":
			for _, f := range fields {
				doc[f.Key] = f.Value
			}
		case "$setOnInsert":
			if inserting {
				for _, f := range fields {
					doc[f.Key] = f.Value
				}
			}
		case "$unset":
			for _, f := range fields {
				delete(doc, f.Key)
			}
		default:
			return fmt.Errorf("docstore: unsupported update operator %q", op.Key)
		}
	}
	return nil
}

func immutableID() error {
	return mongo.WriteException{WriteErrors: []mongo.WriteError{{
		Code:    66,
		Message: "Performing an update on the path '_id' would modify the immutable field '_id'",
	}}}
}

type memoryCursor struct {
	docs []bson.Raw
	pos  int
	cur  bson.Raw
	err  error
}

func (c *memoryCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.pos >= len(c.docs) {
		return false
	}
	c.cur = c.docs[c.pos]
	c.pos++
	return true
}

func (c *memoryCursor) Decode(v interface{}) error {
	if c.cur == nil {
		return fmt.Errorf("docstore: Decode called without a current document")
	}
	return bson.Unmarshal(c.cur, v)
}

func (c *memoryCursor) Err() error { return c.err }

func (c *memoryCursor) Close(context.Context) error {
	c.docs = nil
	return nil
}

type singleResult struct {
	raw bson.Raw
	err error
}

func (r *singleResult) Decode(v interface{}) error {
	if r.err != nil {
		return r.err
	}
	return bson.Unmarshal(r.raw, v)
}

func (r *singleResult) Err() error { return r.err }
