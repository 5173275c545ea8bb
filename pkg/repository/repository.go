package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/go-repository/pkg/docstore"
	"github.com/gogotex/gogotex/backend/go-repository/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
)

// Repository stores entities of type T in one collection. It is safe for
// concurrent use; concurrent writes to the same id are last-writer-wins.
type Repository[T any, PT Entity[T]] struct {
	dial docstore.Dialer
	now  func() time.Time

	mu     sync.RWMutex
	cfg    Config
	client docstore.Client
	col    docstore.Collection
	// cfgErr is why the last Configure failed while unbound.
	cfgErr error
	// closes counts Close calls so a Configure that was dialing when Close
	// ran does not bind afterwards.
	closes uint64
}

// New returns an unconfigured repository. Every operation fails with
// ErrNotConfigured until Configure succeeds.
func New[T any, PT Entity[T]](opts ...Option) *Repository[T, PT] {
	s := settings{dial: docstore.DialMongo, now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return &Repository[T, PT]{dial: s.dial, now: s.now}
}

// Open returns a repository that is already bound to cfg.
func Open[T any, PT Entity[T]](ctx context.Context, cfg *Config, opts ...Option) (*Repository[T, PT], error) {
	r := New[T, PT](opts...)
	if err := r.Configure(ctx, cfg); err != nil {
		return nil, err
	}
	return r, nil
}

// Configure validates cfg, connects, creates the collection when the
// database does not list it yet and binds the repository to it. Calling it
// again replaces the binding; a failed call leaves the current one in place.
// A Close that runs while Configure is connecting wins and Configure returns
// ErrClosed.
func (r *Repository[T, PT]) Configure(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		r.failed(err)
		return err
	}
	c := *cfg
	r.mu.RLock()
	gen := r.closes
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	client, err := r.dial(ctx, c.ConnectionString)
	if err != nil {
		r.failed(err)
		return err
	}
	col, err := ensureCollection(ctx, client.Database(c.Database), c.Collection)
	if err != nil {
		_ = client.Disconnect(context.Background())
		r.failed(err)
		return err
	}

	r.mu.Lock()
	if r.closes != gen {
		r.mu.Unlock()
		_ = client.Disconnect(context.Background())
		return ErrClosed
	}
	prev := r.client
	r.cfg, r.client, r.col, r.cfgErr = c, client, docstore.Instrument(col), nil
	r.mu.Unlock()

	if prev != nil && prev != client {
		if err := prev.Disconnect(context.Background()); err != nil {
			logger.Warnf("repository: disconnect previous client: %v", err)
		}
	}
	logger.Debugf("repository: bound to %s.%s (auto ids: %t)", c.Database, c.Collection, c.AutoGenerateIDs)
	return nil
}

func (r *Repository[T, PT]) failed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.col == nil {
		r.cfgErr = err
	}
}

func ensureCollection(ctx context.Context, db docstore.Database, name string) (docstore.Collection, error) {
	names, err := db.ListCollectionNames(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(names, name) {
		// another process may have created it since the listing
		if err := db.CreateCollection(ctx, name); err != nil && !docstore.IsNamespaceExists(err) {
			return nil, err
		}
		logger.Infof("repository: created collection %s.%s", db.Name(), name)
	}
	return db.Collection(name), nil
}

// Configured reports whether the repository is bound to a collection.
func (r *Repository[T, PT]) Configured() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.col != nil
}

// Config returns a copy of the active configuration.
func (r *Repository[T, PT]) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Close drops the binding and disconnects the client. The repository can be
// configured again afterwards.
func (r *Repository[T, PT]) Close(ctx context.Context) error {
	r.mu.Lock()
	client := r.client
	r.client, r.col, r.cfgErr = nil, nil, nil
	r.closes++
	r.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Disconnect(ctx)
}

func (r *Repository[T, PT]) binding() (docstore.Collection, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.col == nil {
		if r.cfgErr != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrNotConfigured, r.cfgErr)
		}
		return nil, false, ErrNotConfigured
	}
	return r.col, r.cfg.AutoGenerateIDs, nil
}

// All returns up to the row cap of the visible documents.
func (r *Repository[T, PT]) All(ctx context.Context, opts ...ReadOption) ([]PT, error) {
	return r.Query(ctx, nil, opts...)
}

// Query returns up to the row cap of the visible documents matching filter.
// filter is any BSON document; nil matches everything. Order is the store's.
func (r *Repository[T, PT]) Query(ctx context.Context, filter interface{}, opts ...ReadOption) ([]PT, error) {
	col, _, err := r.binding()
	if err != nil {
		return nil, err
	}
	o := newReadOptions(opts)
	return r.find(ctx, col, visible(filter, o.includeDeleted), o.maxRows)
}

func (r *Repository[T, PT]) find(ctx context.Context, col docstore.Collection, filter interface{}, limit int) ([]PT, error) {
	cur, err := col.Find(ctx, filter, docstore.FindOptions{Limit: int64(limit)})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []PT{}
	for len(out) < limit && cur.Next(ctx) {
		e := PT(new(T))
		if err := cur.Decode(e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the document with the given id, or nil when there is none
// visible.
func (r *Repository[T, PT]) Get(ctx context.Context, id string, opts ...ReadOption) (PT, error) {
	col, _, err := r.binding()
	if err != nil {
		return nil, err
	}
	o := newReadOptions(opts)
	found, err := r.find(ctx, col, visible(byID(id), o.includeDeleted), 1)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

// Count returns how many visible documents match filter.
func (r *Repository[T, PT]) Count(ctx context.Context, filter interface{}, opts ...ReadOption) (int64, error) {
	col, _, err := r.binding()
	if err != nil {
		return 0, err
	}
	o := newReadOptions(opts)
	return col.CountDocuments(ctx, visible(filter, o.includeDeleted), 0)
}

// Any reports whether at least one visible document matches filter.
func (r *Repository[T, PT]) Any(ctx context.Context, filter interface{}, opts ...ReadOption) (bool, error) {
	col, _, err := r.binding()
	if err != nil {
		return false, err
	}
	o := newReadOptions(opts)
	n, err := col.CountDocuments(ctx, visible(filter, o.includeDeleted), 1)
	return n > 0, err
}

// Insert stamps e and stores it. e is modified in place.
func (r *Repository[T, PT]) Insert(ctx context.Context, e PT) error {
	col, autoID, err := r.binding()
	if err != nil {
		return err
	}
	if e == nil {
		return ErrNullEntity
	}
	PrepareForInsert(e.Meta(), r.now(), autoID)
	return col.InsertOne(ctx, e)
}

// InsertMany stamps every entity and stores them in one call. If the store
// fails partway, the documents written before the failure stay.
func (r *Repository[T, PT]) InsertMany(ctx context.Context, es []PT) error {
	col, autoID, err := r.binding()
	if err != nil {
		return err
	}
	if slices.Contains(es, nil) {
		return ErrNullEntity
	}
	if len(es) == 0 {
		return nil
	}
	now := r.now()
	docs := make([]interface{}, len(es))
	for i, e := range es {
		PrepareForInsert(e.Meta(), now, autoID)
		docs[i] = e
	}
	return col.InsertMany(ctx, docs)
}

// Update replaces the stored document that has e's id with e. The stored
// createdAt always wins over e's and is copied back into e. It fails with
// ErrEntityNotFound when no document has that id.
func (r *Repository[T, PT]) Update(ctx context.Context, e PT) error {
	col, _, err := r.binding()
	if err != nil {
		return err
	}
	if e == nil {
		return ErrNullEntity
	}
	b := e.Meta()
	if b.ID == "" {
		return ErrEntityNotFound
	}
	PrepareForUpdate(b, r.now())
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		found, done, err := replaceStored(ctx, col, e)
		if err != nil {
			return err
		}
		if !found {
			return ErrEntityNotFound
		}
		if done {
			return nil
		}
	}
	return conflict(b.ID)
}

// Upsert inserts e when it has no id or no stored document has its id, and
// replaces the stored document like Update otherwise. A document created or
// removed by someone else between the lookup and the write makes it retry
// instead of overwriting that change.
func (r *Repository[T, PT]) Upsert(ctx context.Context, e PT) error {
	col, autoID, err := r.binding()
	if err != nil {
		return err
	}
	if e == nil {
		return ErrNullEntity
	}
	b := e.Meta()
	now := r.now()
	if b.ID == "" {
		PrepareForInsert(b, now, autoID)
		return col.InsertOne(ctx, e)
	}
	PrepareForUpdate(b, now)
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		found, done, err := replaceStored(ctx, col, e)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if found {
			continue
		}
		b.CreatedAt = b.ModifiedAt
		err = col.InsertOne(ctx, e)
		if !docstore.IsDuplicateKey(err) {
			return err
		}
	}
	return conflict(b.ID)
}

// Delete flags the document as deleted, or removes it with HardDelete.
// A missing id is not an error.
func (r *Repository[T, PT]) Delete(ctx context.Context, id string, opts ...DeleteOption) error {
	return r.DeleteMany(ctx, []string{id}, opts...)
}

// DeleteMany applies Delete to every id. Missing ids are skipped.
func (r *Repository[T, PT]) DeleteMany(ctx context.Context, ids []string, opts ...DeleteOption) error {
	col, _, err := r.binding()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	var filter bson.D
	if len(ids) == 1 {
		filter = byID(ids[0])
	} else {
		filter = bson.D{{Key: FieldID, Value: bson.D{{Key: "$in", Value: ids}}}}
	}

	if newDeleteOptions(opts).hard {
		if len(ids) == 1 {
			_, err = col.DeleteOne(ctx, filter)
		} else {
			_, err = col.DeleteMany(ctx, filter)
		}
		return err
	}

	// Already-deleted documents keep their deletion time so the retention
	// clock is not restarted.
	filter = append(filter, bson.E{Key: FieldDeleted, Value: bson.D{{Key: "$ne", Value: true}}})
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: FieldDeleted, Value: true},
		{Key: FieldModifiedAt, Value: stamp(r.now())},
	}}}
	if len(ids) == 1 {
		_, err = col.UpdateOne(ctx, filter, update, false)
	} else {
		_, err = col.UpdateMany(ctx, filter, update)
	}
	return err
}

// Undelete clears the deleted flag. Ids that no longer exist are ignored.
func (r *Repository[T, PT]) Undelete(ctx context.Context, id string) error {
	col, _, err := r.binding()
	if err != nil {
		return err
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: FieldDeleted, Value: false},
		{Key: FieldModifiedAt, Value: stamp(r.now())},
	}}}
	_, err = col.UpdateOne(ctx, byID(id), update, false)
	return err
}

// CleanHardDeleted permanently removes documents that were soft-deleted more
// than days ago and returns how many were removed.
func (r *Repository[T, PT]) CleanHardDeleted(ctx context.Context, days int) (int64, error) {
	if _, _, err := r.binding(); err != nil {
		return 0, err
	}
	if days < 0 {
		return 0, fmt.Errorf("repository: retention days must not be negative, got %d", days)
	}
	return r.PurgeDeleted(ctx, r.now().Add(-time.Duration(days)*24*time.Hour))
}

// PurgeDeleted permanently removes documents soft-deleted before cutoff. When
// ids are given only those documents are considered.
func (r *Repository[T, PT]) PurgeDeleted(ctx context.Context, cutoff time.Time, ids ...string) (int64, error) {
	col, _, err := r.binding()
	if err != nil {
		return 0, err
	}
	filter := DeletedBefore(cutoff)
	if len(ids) > 0 {
		filter = append(filter, bson.E{Key: FieldID, Value: bson.D{{Key: "$in", Value: ids}}})
	}
	return col.DeleteMany(ctx, filter)
}

// DeletedBefore matches documents soft-deleted before cutoff.
func DeletedBefore(cutoff time.Time) bson.D {
	return bson.D{
		{Key: FieldDeleted, Value: true},
		{Key: FieldModifiedAt, Value: bson.D{{Key: "$lt", Value: cutoff.UTC()}}},
	}
}

func byID(id string) bson.D {
	return bson.D{{Key: FieldID, Value: id}}
}

func visible(filter interface{}, includeDeleted bool) interface{} {
	if includeDeleted {
		if filter == nil {
			return bson.D{}
		}
		return filter
	}
	notDeleted := bson.D{{Key: FieldDeleted, Value: bson.D{{Key: "$ne", Value: true}}}}
	if filter == nil {
		return notDeleted
	}
	return bson.D{{Key: "$and", Value: bson.A{filter, notDeleted}}}
}

// maxWriteAttempts bounds how often Update and Upsert retry when the stored
// document changes under them.
const maxWriteAttempts = 5

func conflict(id string) error {
	return fmt.Errorf("repository: document %q kept changing, gave up after %d attempts", id, maxWriteAttempts)
}

// replaceStored overwrites the document with e's id by e, keeping the stored
// createdAt. The write is conditional on that createdAt so a document deleted
// and recreated in between is not clobbered. found reports whether the id
// exists; done is false when the document changed before the write.
func replaceStored(ctx context.Context, col docstore.Collection, e Item) (found, done bool, err error) {
	b := e.Meta()
	pin, created, found, err := storedCreatedAt(ctx, col, b.ID)
	if err != nil || !found {
		return false, false, err
	}
	if !created.IsZero() {
		b.CreatedAt = created
	}
	res, err := col.ReplaceOne(ctx, bson.D{{Key: FieldID, Value: b.ID}, pin}, e, false)
	if err != nil {
		return true, false, err
	}
	return true, res.MatchedCount > 0, nil
}

// storedCreatedAt reads the createdAt of the document with id. pin is the
// filter clause matching exactly that value, including its absence.
func storedCreatedAt(ctx context.Context, col docstore.Collection, id string) (pin bson.E, created time.Time, found bool, err error) {
	cur, err := col.Find(ctx, byID(id), docstore.FindOptions{
		Limit:      1,
		Projection: bson.D{{Key: FieldCreatedAt, Value: 1}},
	})
	if err != nil {
		return bson.E{}, time.Time{}, false, err
	}
	defer cur.Close(ctx)
	if !cur.Next(ctx) {
		return bson.E{}, time.Time{}, false, cur.Err()
	}
	var raw bson.Raw
	if err := cur.Decode(&raw); err != nil {
		return bson.E{}, time.Time{}, false, err
	}
	v, err := raw.LookupErr(FieldCreatedAt)
	if err != nil {
		return bson.E{Key: FieldCreatedAt, Value: bson.D{{Key: "$exists", Value: false}}}, time.Time{}, true, nil
	}
	if t, ok := v.TimeOK(); ok {
		created = t.UTC()
	}
	return bson.E{Key: FieldCreatedAt, Value: v}, created, true, nil
}
