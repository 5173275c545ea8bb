// Package retention purges soft-deleted documents once they are older than
// the retention window, optionally exporting them to object storage first.
package retention

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/gogotex/gogotex/backend/go-repository/pkg/logger"
	"github.com/gogotex/gogotex/backend/go-repository/pkg/metrics"
	"github.com/gogotex/gogotex/backend/go-repository/pkg/repository"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	DefaultInterval  = time.Hour
	DefaultBatchSize = 500
)

// Archiver keeps a copy of documents about to be purged.
type Archiver interface {
	Archive(ctx context.Context, key string, payload []byte) error
}

type options struct {
	days     int
	interval time.Duration
	batch    int
	locker   Locker
	archiver Archiver
	now      func() time.Time
}

type Option func(*options)

func WithRetentionDays(days int) Option {
	return func(o *options) {
		if days >= 0 {
			o.days = days
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithBatchSize bounds how many documents go into one archive object.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batch = n
		}
	}
}

// WithLocker makes sweeps skip while another holder has the collection's lease.
func WithLocker(l Locker) Option {
	return func(o *options) { o.locker = l }
}

// WithArchiver exports every purged document before it is removed.
func WithArchiver(a Archiver) Option {
	return func(o *options) { o.archiver = a }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Sweeper periodically runs the retention purge of one repository.
type Sweeper[T any, PT repository.Entity[T]] struct {
	repo *repository.Repository[T, PT]
	opts options
}

func NewSweeper[T any, PT repository.Entity[T]](repo *repository.Repository[T, PT], opts ...Option) *Sweeper[T, PT] {
	o := options{
		days:     repository.DefaultRetentionDays,
		interval: DefaultInterval,
		batch:    DefaultBatchSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Sweeper[T, PT]{repo: repo, opts: o}
}

// Run sweeps once right away and then on every interval until ctx is
// cancelled. Call from a goroutine.
func (s *Sweeper[T, PT]) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper[T, PT]) runOnce(ctx context.Context) {
	if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
		logger.Errorf("retention: sweep failed: %v", err)
	}
}

// SweepOnce purges what is due now and returns how many documents were
// removed. It returns 0 without error when another holder has the lease.
func (s *Sweeper[T, PT]) SweepOnce(ctx context.Context) (int64, error) {
	collection := s.repo.Config().Collection

	if s.opts.locker != nil {
		release, ok, err := s.opts.locker.Acquire(ctx, "retention:"+collection, s.opts.interval)
		if err != nil {
			metrics.RetentionRuns.WithLabelValues(collection, "error").Inc()
			return 0, fmt.Errorf("retention lock: %w", err)
		}
		if !ok {
			metrics.RetentionRuns.WithLabelValues(collection, "skipped").Inc()
			logger.Debugf("retention: %s is being swept elsewhere", collection)
			return 0, nil
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				logger.Warnf("retention: release lock: %v", err)
			}
		}()
	}

	var n int64
	var err error
	if s.opts.archiver == nil {
		n, err = s.repo.PurgeDeleted(ctx, s.cutoff())
	} else {
		n, err = s.archiveAndPurge(ctx, collection)
	}
	metrics.RetentionPurged.WithLabelValues(collection).Add(float64(n))
	if err != nil {
		metrics.RetentionRuns.WithLabelValues(collection, "error").Inc()
		return n, err
	}
	metrics.RetentionRuns.WithLabelValues(collection, "ok").Inc()
	if n > 0 {
		logger.Infof("retention: purged %d documents from %s", n, collection)
	}
	return n, nil
}

func (s *Sweeper[T, PT]) cutoff() time.Time {
	return s.opts.now().Add(-time.Duration(s.opts.days) * 24 * time.Hour)
}

// archiveAndPurge exports due documents batch by batch and only purges a
// batch once its export is stored.
func (s *Sweeper[T, PT]) archiveAndPurge(ctx context.Context, collection string) (int64, error) {
	cutoff := s.cutoff()
	var total int64
	for part := 0; ; part++ {
		due, err := s.repo.Query(ctx, repository.DeletedBefore(cutoff),
			repository.IncludeDeleted(), repository.MaxRows(s.opts.batch))
		if err != nil {
			return total, err
		}
		if len(due) == 0 {
			return total, nil
		}
		payload, ids, err := export(due)
		if err != nil {
			return total, err
		}
		if err := s.opts.archiver.Archive(ctx, archiveKey(collection, cutoff, part), payload); err != nil {
			return total, err
		}
		n, err := s.repo.PurgeDeleted(ctx, cutoff, ids...)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 || len(due) < s.opts.batch {
			return total, nil
		}
	}
}

func archiveKey(collection string, cutoff time.Time, part int) string {
	return fmt.Sprintf("%s/%s-%04d.json", collection, cutoff.UTC().Format("20060102T150405Z"), part)
}

// export renders docs as a JSON array of relaxed MongoDB Extended JSON.
func export[PT repository.Item](docs []PT) ([]byte, []string, error) {
	var buf bytes.Buffer
	ids := make([]string, 0, len(docs))
	buf.WriteByte('[')
	for i, d := range docs {
		b, err := bson.MarshalExtJSON(d, false, false)
		if err != nil {
			return nil, nil, fmt.Errorf("export %s: %w", d.Meta().ID, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(b)
		ids = append(ids, d.Meta().ID)
	}
	buf.WriteByte(']')
	return buf.Bytes(), ids, nil
}
