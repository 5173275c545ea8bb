package notes

import "github.com/gogotex/gogotex/backend/go-repository/pkg/repository"

// Note is the entity served by the demo API.
type Note struct {
	repository.Base `bson:",inline"`
	Title           string   `json:"title" bson:"title"`
	Body            string   `json:"body,omitempty" bson:"body"`
	Tags            []string `json:"tags,omitempty" bson:"tags"`
}

// Repository is the notes collection.
type Repository = repository.Repository[Note, *Note]
