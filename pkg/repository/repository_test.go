package repository

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogotex/gogotex/backend/go-repository/pkg/docstore"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type widget struct {
	Base `bson:",inline"`
	Name string `bson:"name"`
	Size int    `bson:"size"`
}

// tagged has fields that vanish from the stored document when cleared.
type tagged struct {
	Base `bson:",inline"`
	Name string   `bson:"name"`
	Note string   `bson:"note,omitempty"`
	Tags []string `bson:"tags,omitempty"`
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var t0 = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

type spyDialer struct {
	calls atomic.Int32
	mem   *docstore.MemoryClient
}

func (s *spyDialer) dial(ctx context.Context, uri string) (docstore.Client, error) {
	s.calls.Add(1)
	if uri == "unreachable" {
		return nil, errors.New("dial: connection refused")
	}
	return s.mem.Dialer()(ctx, uri)
}

func testConfig(autoID bool) *Config {
	cfg := DefaultConfig()
	cfg.ConnectionString = "memory://"
	cfg.Database = "test"
	cfg.Collection = "widgets"
	cfg.AutoGenerateIDs = autoID
	return &cfg
}

func newTestRepo(t *testing.T, autoID bool) (*Repository[widget, *widget], *fakeClock, *spyDialer) {
	t.Helper()
	clock := &fakeClock{t: t0}
	spy := &spyDialer{mem: docstore.NewMemoryClient()}
	r, err := Open[widget](context.Background(), testConfig(autoID), WithDialer(spy.dial), WithClock(clock.Now))
	require.NoError(t, err)
	return r, clock, spy
}

var hexID = regexp.MustCompile(`^[0-9A-F]{32}$`)

func TestInsertAssignsIDAndStamps(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRepo(t, true)

	w := &widget{Name: "bolt", Size: 3}
	require.NoError(t, r.Insert(ctx, w))
	require.Regexp(t, hexID, w.ID)
	require.Equal(t, t0, w.CreatedAt)
	require.Equal(t, t0, w.ModifiedAt)
	require.False(t, w.Deleted)

	ok, err := r.Any(ctx, bson.M{"_id": w.ID})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := r.Get(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, w, got)
}

func TestInsertIDPolicy(t *testing.T) {
	ctx := context.Background()

	auto, _, _ := newTestRepo(t, true)
	w := &widget{Base: Base{ID: "mine"}}
	require.NoError(t, auto.Insert(ctx, w))
	require.NotEqual(t, "mine", w.ID)
	require.Regexp(t, hexID, w.ID)

	manual, _, _ := newTestRepo(t, false)
	w = &widget{Base: Base{ID: "mine", Deleted: true}}
	require.NoError(t, manual.Insert(ctx, w))
	require.Equal(t, "mine", w.ID)
	require.False(t, w.Deleted)

	w = &widget{}
	require.NoError(t, manual.Insert(ctx, w))
	require.Regexp(t, hexID, w.ID)

	// uniqueness is enforced by the store, not by the repository
	err := manual.Insert(ctx, &widget{Base: Base{ID: "mine"}})
	require.Error(t, err)
	require.True(t, docstore.IsDuplicateKey(err))
}

func TestInsertNil(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRepo(t, true)

	require.ErrorIs(t, r.Insert(ctx, nil), ErrNullEntity)
	require.ErrorIs(t, r.InsertMany(ctx, []*widget{{Name: "a"}, nil}), ErrNullEntity)
	require.NoError(t, r.InsertMany(ctx, nil))

	n, err := r.Count(ctx, nil, IncludeDeleted())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestInsertMany(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRepo(t, true)

	ws := []*widget{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	require.NoError(t, r.InsertMany(ctx, ws))
	seen := map[string]bool{}
	for _, w := range ws {
		require.Regexp(t, hexID, w.ID)
		require.Equal(t, t0, w.CreatedAt)
		seen[w.ID] = true
	}
	require.Len(t, seen, 3)

	all, err := r.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestQueryFilterAndMaxRows(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRepo(t, true)
	for i := 1; i <= 5; i++ {
		require.NoError(t, r.Insert(ctx, &widget{Size: i}))
	}

	big, err := r.Query(ctx, bson.M{"size": bson.M{"$gt": 3}})
	require.NoError(t, err)
	require.Len(t, big, 2)

	capped, err := r.All(ctx, MaxRows(2))
	require.NoError(t, err)
	require.Len(t, capped, 2)

	none, err := r.Query(ctx, bson.M{"size": 99})
	require.NoError(t, err)
	require.NotNil(t, none)
	require.Empty(t, none)

	ok, err := r.Any(ctx, bson.M{"size": 99})
	require.NoError(t, err)
	require.False(t, ok)

	missing, err := r.Get(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestUpdatePreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	r, clock, _ := newTestRepo(t, true)

	w := &widget{Name: "first"}
	require.NoError(t, r.Insert(ctx, w))

	clock.Advance(time.Hour)
	stale := &widget{Base: Base{ID: w.ID, CreatedAt: t0.Add(-48 * time.Hour)}, Name: "second"}
	require.NoError(t, r.Update(ctx, stale))
	require.Equal(t, t0, stale.CreatedAt)
	require.Equal(t, t0.Add(time.Hour), stale.ModifiedAt)

	got, err := r.Get(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, "second", got.Name)
	require.Equal(t, t0, got.CreatedAt)
	require.Equal(t, t0.Add(time.Hour), got.ModifiedAt)
}

func newTaggedRepo(t *testing.T) (*Repository[tagged, *tagged], *fakeClock, docstore.Collection) {
	t.Helper()
	clock := &fakeClock{t: t0}
	mem := docstore.NewMemoryClient()
	r, err := Open[tagged](context.Background(), testConfig(true), WithDialer(mem.Dialer()), WithClock(clock.Now))
	require.NoError(t, err)
	return r, clock, mem.Database("test").Collection("widgets")
}

func storedDoc(t *testing.T, col docstore.Collection, id string) bson.M {
	t.Helper()
	ctx := context.Background()
	cur, err := col.Find(ctx, bson.D{{Key: FieldID, Value: id}}, docstore.FindOptions{})
	require.NoError(t, err)
	defer cur.Close(ctx)
	require.True(t, cur.Next(ctx))
	var m bson.M
	require.NoError(t, cur.Decode(&m))
	return m
}

func TestUpdateReplacesWholeDocument(t *testing.T) {
	ctx := context.Background()
	r, clock, col := newTaggedRepo(t)

	orig := &tagged{Name: "a", Note: "secret", Tags: []string{"x"}}
	require.NoError(t, r.Insert(ctx, orig))

	clock.Advance(time.Hour)
	next := &tagged{Base: Base{ID: orig.ID}, Name: "b"}
	require.NoError(t, r.Update(ctx, next))
	require.Empty(t, next.Note)
	require.Empty(t, next.Tags)
	require.Equal(t, t0, next.CreatedAt)

	got, err := r.Get(ctx, orig.ID)
	require.NoError(t, err)
	require.Equal(t, next, got)

	doc := storedDoc(t, col, orig.ID)
	require.NotContains(t, doc, "note")
	require.NotContains(t, doc, "tags")
	require.Equal(t, "b", doc["name"])
}

func TestUpsertReplacesExistingDocument(t *testing.T) {
	ctx := context.Background()
	r, clock, col := newTaggedRepo(t)

	require.NoError(t, r.Upsert(ctx, &tagged{Base: Base{ID: "k"}, Name: "a", Note: "secret", Tags: []string{"x"}}))

	clock.Advance(time.Minute)
	again := &tagged{Base: Base{ID: "k"}, Name: "b"}
	require.NoError(t, r.Upsert(ctx, again))
	require.Equal(t, t0, again.CreatedAt)
	require.Equal(t, t0.Add(time.Minute), again.ModifiedAt)

	doc := storedDoc(t, col, "k")
	require.NotContains(t, doc, "note")
	require.NotContains(t, doc, "tags")
	require.Equal(t, "b", doc["name"])
}

func TestUpdateDocumentWithoutCreatedAt(t *testing.T) {
	ctx := context.Background()
	r, clock, col := newTaggedRepo(t)
	require.NoError(t, col.InsertOne(ctx, bson.D{{Key: FieldID, Value: "legacy"}, {Key: "name", Value: "old"}}))

	clock.Advance(time.Hour)
	e := &tagged{Base: Base{ID: "legacy", CreatedAt: t0}, Name: "new"}
	require.NoError(t, r.Update(ctx, e))

	got, err := r.Get(ctx, "legacy")
	require.NoError(t, err)
	require.Equal(t, "new", got.Name)
	require.Equal(t, t0, got.CreatedAt)
	require.Equal(t, t0.Add(time.Hour), got.ModifiedAt)
}

func TestConcurrentUpsertsOfNewID(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRepo(t, true)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.Upsert(ctx, &widget{Base: Base{ID: "shared"}, Name: "racer", Size: i})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	n, err := r.Count(ctx, nil, IncludeDeleted())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	got, err := r.Get(ctx, "shared")
	require.NoError(t, err)
	require.Equal(t, t0, got.CreatedAt)
}

func TestUpdateFailures(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRepo(t, true)

	require.ErrorIs(t, r.Update(ctx, nil), ErrNullEntity)
	require.ErrorIs(t, r.Update(ctx, &widget{Name: "no id"}), ErrEntityNotFound)
	require.ErrorIs(t, r.Update(ctx, &widget{Base: Base{ID: "ghost"}}), ErrEntityNotFound)

	n, err := r.Count(ctx, nil, IncludeDeleted())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()
	r, clock, _ := newTestRepo(t, true)

	fresh := &widget{Name: "fresh"}
	require.NoError(t, r.Upsert(ctx, fresh))
	require.Regexp(t, hexID, fresh.ID)
	require.Equal(t, t0, fresh.CreatedAt)

	// unknown id is inserted under that id
	clock.Advance(time.Minute)
	named := &widget{Base: Base{ID: "named"}, Name: "v1"}
	require.NoError(t, r.Upsert(ctx, named))
	require.Equal(t, "named", named.ID)
	require.Equal(t, t0.Add(time.Minute), named.CreatedAt)

	// known id is updated and keeps its creation time
	clock.Advance(time.Minute)
	again := &widget{Base: Base{ID: "named", CreatedAt: time.Unix(0, 0).UTC()}, Name: "v2"}
	require.NoError(t, r.Upsert(ctx, again))
	require.Equal(t, t0.Add(time.Minute), again.CreatedAt)
	require.Equal(t, t0.Add(2*time.Minute), again.ModifiedAt)

	n, err := r.Count(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	got, err := r.Get(ctx, "named")
	require.NoError(t, err)
	require.Equal(t, again, got)

	require.ErrorIs(t, r.Upsert(ctx, nil), ErrNullEntity)
}

func TestSoftDeleteAndUndelete(t *testing.T) {
	ctx := context.Background()
	r, clock, _ := newTestRepo(t, true)

	w := &widget{Name: "w"}
	require.NoError(t, r.Insert(ctx, w))

	clock.Advance(time.Hour)
	require.NoError(t, r.Delete(ctx, w.ID))

	got, err := r.Get(ctx, w.ID)
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = r.Get(ctx, w.ID, IncludeDeleted())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, got.Deleted)
	require.Equal(t, t0.Add(time.Hour), got.ModifiedAt)
	require.Equal(t, t0, got.CreatedAt)

	// deleting again does not move the deletion time
	clock.Advance(time.Hour)
	require.NoError(t, r.Delete(ctx, w.ID))
	got, err = r.Get(ctx, w.ID, IncludeDeleted())
	require.NoError(t, err)
	require.Equal(t, t0.Add(time.Hour), got.ModifiedAt)

	clock.Advance(time.Hour)
	require.NoError(t, r.Undelete(ctx, w.ID))
	got, err = r.Get(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.False(t, got.Deleted)
	require.Equal(t, t0.Add(3*time.Hour), got.ModifiedAt)

	require.NoError(t, r.Undelete(ctx, "gone"))
	require.NoError(t, r.Delete(ctx, "gone"))
}

func TestCountVisibility(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRepo(t, true)

	ws := []*widget{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	require.NoError(t, r.InsertMany(ctx, ws))
	require.NoError(t, r.Delete(ctx, ws[1].ID))

	n, err := r.Count(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	n, err = r.Count(ctx, nil, IncludeDeleted())
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	all, err := r.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	ok, err := r.Any(ctx, bson.M{"name": "b"})
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = r.Any(ctx, bson.M{"name": "b"}, IncludeDeleted())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDeleteMany(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRepo(t, true)

	ws := []*widget{{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"}}
	require.NoError(t, r.InsertMany(ctx, ws))

	require.NoError(t, r.DeleteMany(ctx, []string{ws[0].ID, ws[1].ID, "missing"}))
	n, err := r.Count(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	require.NoError(t, r.DeleteMany(ctx, []string{ws[0].ID, ws[2].ID}, HardDelete()))
	n, err = r.Count(ctx, nil, IncludeDeleted())
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	require.NoError(t, r.Delete(ctx, ws[3].ID, HardDelete()))
	got, err := r.Get(ctx, ws[3].ID, IncludeDeleted())
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, r.DeleteMany(ctx, nil))
}

func TestCleanHardDeleted(t *testing.T) {
	ctx := context.Background()
	r, clock, _ := newTestRepo(t, true)

	old := &widget{Name: "old"}
	recent := &widget{Name: "recent"}
	live := &widget{Name: "live"}
	require.NoError(t, r.InsertMany(ctx, []*widget{old, recent, live}))
	require.NoError(t, r.Delete(ctx, old.ID))

	clock.Advance(30 * 24 * time.Hour)
	require.NoError(t, r.Delete(ctx, recent.ID))
	clock.Advance(10 * 24 * time.Hour)

	removed, err := r.CleanHardDeleted(ctx, DefaultRetentionDays)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	got, err := r.Get(ctx, old.ID, IncludeDeleted())
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = r.Get(ctx, recent.ID, IncludeDeleted())
	require.NoError(t, err)
	require.NotNil(t, got)

	// live documents are never purged, however old
	got, err = r.Get(ctx, live.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	_, err = r.CleanHardDeleted(ctx, -1)
	require.Error(t, err)

	removed, err = r.PurgeDeleted(ctx, clock.Now(), "other")
	require.NoError(t, err)
	require.Zero(t, removed)
	removed, err = r.PurgeDeleted(ctx, clock.Now(), recent.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}

func TestNotConfiguredMakesNoStoreCalls(t *testing.T) {
	ctx := context.Background()
	spy := &spyDialer{mem: docstore.NewMemoryClient()}
	r := New[widget](WithDialer(spy.dial))
	require.False(t, r.Configured())

	_, err := r.All(ctx)
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = r.Query(ctx, bson.M{})
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = r.Get(ctx, "x")
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = r.Count(ctx, nil)
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = r.Any(ctx, nil)
	require.ErrorIs(t, err, ErrNotConfigured)
	require.ErrorIs(t, r.Insert(ctx, &widget{}), ErrNotConfigured)
	require.ErrorIs(t, r.Insert(ctx, nil), ErrNotConfigured)
	require.ErrorIs(t, r.InsertMany(ctx, []*widget{{}}), ErrNotConfigured)
	require.ErrorIs(t, r.Update(ctx, &widget{}), ErrNotConfigured)
	require.ErrorIs(t, r.Upsert(ctx, &widget{}), ErrNotConfigured)
	require.ErrorIs(t, r.Delete(ctx, "x"), ErrNotConfigured)
	require.ErrorIs(t, r.DeleteMany(ctx, []string{"x"}, HardDelete()), ErrNotConfigured)
	require.ErrorIs(t, r.Undelete(ctx, "x"), ErrNotConfigured)
	_, err = r.CleanHardDeleted(ctx, 30)
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = r.PurgeDeleted(ctx, time.Now())
	require.ErrorIs(t, err, ErrNotConfigured)

	require.Zero(t, spy.calls.Load())
}

func TestConfigureValidation(t *testing.T) {
	ctx := context.Background()
	spy := &spyDialer{mem: docstore.NewMemoryClient()}
	r := New[widget](WithDialer(spy.dial))

	require.ErrorIs(t, r.Configure(ctx, nil), ErrInvalidConfiguration)
	cfg := testConfig(true)
	cfg.ConnectionString = ""
	require.ErrorIs(t, r.Configure(ctx, cfg), ErrInvalidConfiguration)
	require.Zero(t, spy.calls.Load())

	// the reason is carried by later operations
	_, err := r.All(ctx)
	require.ErrorIs(t, err, ErrNotConfigured)
	require.ErrorIs(t, err, ErrInvalidConfiguration)
	require.Contains(t, err.Error(), "connection string")

	_, err = Open[widget](ctx, &Config{ConnectionString: "memory://", Database: "db"}, WithDialer(spy.dial))
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestConfigureCreatesAndRebinds(t *testing.T) {
	ctx := context.Background()
	r, _, spy := newTestRepo(t, true)

	names, err := spy.mem.Database("test").ListCollectionNames(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"widgets"}, names)
	require.Equal(t, "widgets", r.Config().Collection)

	require.NoError(t, r.Insert(ctx, &widget{Name: "in widgets"}))

	cfg := testConfig(false)
	cfg.Collection = "gadgets"
	require.NoError(t, r.Configure(ctx, cfg))
	cfg.Collection = "mutated after configure"
	require.Equal(t, "gadgets", r.Config().Collection)
	require.False(t, r.Config().AutoGenerateIDs)

	n, err := r.Count(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, n)

	// existing collection is reused
	require.NoError(t, r.Configure(ctx, testConfig(true)))
	n, err = r.Count(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestConfigureFailureKeepsBinding(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRepo(t, true)

	cfg := testConfig(true)
	cfg.ConnectionString = "unreachable"
	require.Error(t, r.Configure(ctx, cfg))
	require.True(t, r.Configured())
	require.Equal(t, "memory://", r.Config().ConnectionString)

	_, err := r.All(ctx)
	require.NoError(t, err)
}

func TestDialFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	spy := &spyDialer{mem: docstore.NewMemoryClient()}
	cfg := testConfig(true)
	cfg.ConnectionString = "unreachable"

	_, err := Open[widget](ctx, cfg, WithDialer(spy.dial))
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection refused")
}

func TestCloseDuringConfigure(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryClient()
	dialing := make(chan struct{})
	proceed := make(chan struct{})
	dial := func(ctx context.Context, uri string) (docstore.Client, error) {
		close(dialing)
		<-proceed
		return mem.Dialer()(ctx, uri)
	}
	r := New[widget](WithDialer(dial))

	errc := make(chan error, 1)
	go func() { errc <- r.Configure(ctx, testConfig(true)) }()
	<-dialing
	require.NoError(t, r.Close(ctx))
	close(proceed)

	require.ErrorIs(t, <-errc, ErrClosed)
	require.False(t, r.Configured())
	_, err := r.All(ctx)
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	r, _, spy := newTestRepo(t, true)
	require.NoError(t, r.Close(ctx))
	require.False(t, r.Configured())

	_, err := r.All(ctx)
	require.ErrorIs(t, err, ErrNotConfigured)
	require.NoError(t, r.Close(ctx))

	require.NoError(t, r.Configure(ctx, testConfig(true)))
	require.Equal(t, int32(2), spy.calls.Load())
}
