package repository

import (
	"context"
	"time"

	"github.com/gogotex/gogotex/backend/go-repository/pkg/async"
)

// The Async variants run the matching operation on their own goroutine and
// behave exactly like it. Cancelling ctx before the store is called makes the
// future fail with ctx.Err(); afterwards cancellation is up to the store.

func (r *Repository[T, PT]) ConfigureAsync(ctx context.Context, cfg *Config) *async.Future[struct{}] {
	return async.Run(ctx, func(ctx context.Context) error { return r.Configure(ctx, cfg) })
}

func (r *Repository[T, PT]) AllAsync(ctx context.Context, opts ...ReadOption) *async.Future[[]PT] {
	return async.Go(ctx, func(ctx context.Context) ([]PT, error) { return r.All(ctx, opts...) })
}

func (r *Repository[T, PT]) QueryAsync(ctx context.Context, filter interface{}, opts ...ReadOption) *async.Future[[]PT] {
	return async.Go(ctx, func(ctx context.Context) ([]PT, error) { return r.Query(ctx, filter, opts...) })
}

func (r *Repository[T, PT]) GetAsync(ctx context.Context, id string, opts ...ReadOption) *async.Future[PT] {
	return async.Go(ctx, func(ctx context.Context) (PT, error) { return r.Get(ctx, id, opts...) })
}

func (r *Repository[T, PT]) CountAsync(ctx context.Context, filter interface{}, opts ...ReadOption) *async.Future[int64] {
	return async.Go(ctx, func(ctx context.Context) (int64, error) { return r.Count(ctx, filter, opts...) })
}

func (r *Repository[T, PT]) AnyAsync(ctx context.Context, filter interface{}, opts ...ReadOption) *async.Future[bool] {
	return async.Go(ctx, func(ctx context.Context) (bool, error) { return r.Any(ctx, filter, opts...) })
}

func (r *Repository[T, PT]) InsertAsync(ctx context.Context, e PT) *async.Future[struct{}] {
	return async.Run(ctx, func(ctx context.Context) error { return r.Insert(ctx, e) })
}

func (r *Repository[T, PT]) InsertManyAsync(ctx context.Context, es []PT) *async.Future[struct{}] {
	return async.Run(ctx, func(ctx context.Context) error { return r.InsertMany(ctx, es) })
}

func (r *Repository[T, PT]) UpdateAsync(ctx context.Context, e PT) *async.Future[struct{}] {
	return async.Run(ctx, func(ctx context.Context) error { return r.Update(ctx, e) })
}

func (r *Repository[T, PT]) UpsertAsync(ctx context.Context, e PT) *async.Future[struct{}] {
	return async.Run(ctx, func(ctx context.Context) error { return r.Upsert(ctx, e) })
}

func (r *Repository[T, PT]) DeleteAsync(ctx context.Context, id string, opts ...DeleteOption) *async.Future[struct{}] {
	return async.Run(ctx, func(ctx context.Context) error { return r.Delete(ctx, id, opts...) })
}

func (r *Repository[T, PT]) DeleteManyAsync(ctx context.Context, ids []string, opts ...DeleteOption) *async.Future[struct{}] {
	return async.Run(ctx, func(ctx context.Context) error { return r.DeleteMany(ctx, ids, opts...) })
}

func (r *Repository[T, PT]) UndeleteAsync(ctx context.Context, id string) *async.Future[struct{}] {
	return async.Run(ctx, func(ctx context.Context) error { return r.Undelete(ctx, id) })
}

func (r *Repository[T, PT]) CleanHardDeletedAsync(ctx context.Context, days int) *async.Future[int64] {
	return async.Go(ctx, func(ctx context.Context) (int64, error) { return r.CleanHardDeleted(ctx, days) })
}

func (r *Repository[T, PT]) PurgeDeletedAsync(ctx context.Context, cutoff time.Time, ids ...string) *async.Future[int64] {
	return async.Go(ctx, func(ctx context.Context) (int64, error) { return r.PurgeDeleted(ctx, cutoff, ids...) })
}
