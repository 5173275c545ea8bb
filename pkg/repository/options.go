package repository

import (
	"time"

	"github.com/gogotex/gogotex/backend/go-repository/pkg/docstore"
)

type settings struct {
	dial docstore.Dialer
	now  func() time.Time
}

// Option customises a Repository at construction.
type Option func(*settings)

// WithDialer replaces the MongoDB dialer, e.g. with docstore.NewMemoryClient().Dialer().
func WithDialer(d docstore.Dialer) Option {
	return func(s *settings) {
		if d != nil {
			s.dial = d
		}
	}
}

// WithClock sets the time source used for lifecycle timestamps and retention cutoffs.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

type readOptions struct {
	includeDeleted bool
	maxRows        int
}

type ReadOption func(*readOptions)

// IncludeDeleted makes a read see soft-deleted documents too.
func IncludeDeleted() ReadOption {
	return func(o *readOptions) { o.includeDeleted = true }
}

// MaxRows caps All and Query. Values below 1 restore DefaultMaxRows.
func MaxRows(n int) ReadOption {
	return func(o *readOptions) {
		if n < 1 {
			n = DefaultMaxRows
		}
		o.maxRows = n
	}
}

func newReadOptions(opts []ReadOption) readOptions {
	o := readOptions{maxRows: DefaultMaxRows}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type deleteOptions struct {
	hard bool
}

type DeleteOption func(*deleteOptions)

// HardDelete removes documents permanently instead of flagging them.
func HardDelete() DeleteOption {
	return func(o *deleteOptions) { o.hard = true }
}

func newDeleteOptions(opts []DeleteOption) deleteOptions {
	var o deleteOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
