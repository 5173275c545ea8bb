package repository

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a random 128-bit id as 32 uppercase hex characters.
func NewID() string {
	u := uuid.New()
	return strings.ToUpper(hex.EncodeToString(u[:]))
}

// Timestamps are stored with millisecond precision; truncating up front keeps
// the caller's copy equal to what a read returns.
func stamp(now time.Time) time.Time {
	return now.UTC().Truncate(time.Millisecond)
}

// PrepareForInsert sets the bookkeeping fields of a new document. An id is
// assigned when autoID is set or when the entity has none.
func PrepareForInsert(b *Base, now time.Time, autoID bool) {
	if autoID || b.ID == "" {
		b.ID = NewID()
	}
	t := stamp(now)
	b.CreatedAt = t
	b.ModifiedAt = t
	b.Deleted = false
}

// PrepareForUpdate refreshes ModifiedAt. CreatedAt is left alone.
func PrepareForUpdate(b *Base, now time.Time) {
	b.ModifiedAt = stamp(now)
}
