// Package repository is a generic, soft-delete aware repository over a
// document store. Any struct embedding Base can be stored:
//
//	type Note struct {
//		repository.Base `bson:",inline"`
//		Title string `bson:"title" json:"title"`
//	}
//
//	notes, err := repository.Open[Note](ctx, cfg)
//
// Deleting a document only flags it unless HardDelete is passed, and reads
// skip flagged documents unless IncludeDeleted is passed.
package repository

import "time"

// Stored field names of the bookkeeping fields.
const (
	FieldID         = "_id"
	FieldCreatedAt  = "createdAt"
	FieldModifiedAt = "modifiedAt"
	FieldDeleted    = "deleted"
)

// Base holds the fields the repository maintains on every document.
type Base struct {
	ID         string    `bson:"_id" json:"id"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
	ModifiedAt time.Time `bson:"modifiedAt" json:"modifiedAt"`
	Deleted    bool      `bson:"deleted" json:"deleted"`
}

// Meta returns b itself, so every struct embedding Base is an Item.
func (b *Base) Meta() *Base { return b }

type Item interface {
	Meta() *Base
}

// Entity constrains the pointer type of a stored struct T.
type Entity[T any] interface {
	*T
	Item
}
