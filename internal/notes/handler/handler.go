package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/go-repository/internal/notes"
	"github.com/gogotex/gogotex/backend/go-repository/pkg/docstore"
	"github.com/gogotex/gogotex/backend/go-repository/pkg/logger"
	"github.com/gogotex/gogotex/backend/go-repository/pkg/repository"
	"go.mongodb.org/mongo-driver/bson"
)

type noteRequest struct {
	ID    string   `json:"id"`
	Title string   `json:"title" binding:"required"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

func (r noteRequest) note() *notes.Note {
	n := &notes.Note{Title: r.Title, Body: r.Body, Tags: r.Tags}
	n.ID = r.ID
	return n
}

// RegisterNoteRoutes mounts the notes API on r. Reads accept
// ?includeDeleted=true; DELETE accepts ?hard=true.
func RegisterNoteRoutes(r gin.IRouter, repo *notes.Repository) {
	g := r.Group("/api/notes")

	g.GET("", func(c *gin.Context) {
		opts := readOptions(c)
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			opts = append(opts, repository.MaxRows(n))
		}
		var filter interface{}
		if tag := c.Query("tag"); tag != "" {
			filter = bson.D{{Key: "tags", Value: tag}}
		}
		list, err := repo.Query(c.Request.Context(), filter, opts...)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	g.GET("/count", func(c *gin.Context) {
		n, err := repo.Count(c.Request.Context(), nil, readOptions(c)...)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": n})
	})

	g.GET("/:id", func(c *gin.Context) {
		n, err := repo.Get(c.Request.Context(), c.Param("id"), readOptions(c)...)
		if err != nil {
			writeError(c, err)
			return
		}
		if n == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, n)
	})

	g.POST("", func(c *gin.Context) {
		var req noteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		n := req.note()
		if err := repo.Insert(c.Request.Context(), n); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, n)
	})

	g.POST("/batch", func(c *gin.Context) {
		var reqs []noteRequest
		if err := c.ShouldBindJSON(&reqs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		batch := make([]*notes.Note, 0, len(reqs))
		for _, req := range reqs {
			if req.Title == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "every note needs a title"})
				return
			}
			batch = append(batch, req.note())
		}
		if err := repo.InsertMany(c.Request.Context(), batch); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, batch)
	})

	// PUT replaces a stored note; with ?upsert=true it creates it when missing.
	// A soft-deleted note is not found here, like on GET; /undelete restores it.
	g.PUT("/:id", func(c *gin.Context) {
		var req noteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.ID = c.Param("id")
		stored, err := repo.Get(c.Request.Context(), req.ID, repository.IncludeDeleted())
		if err != nil {
			writeError(c, err)
			return
		}
		if stored != nil && stored.Deleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		n := req.note()
		if c.Query("upsert") == "true" {
			err = repo.Upsert(c.Request.Context(), n)
		} else {
			err = repo.Update(c.Request.Context(), n)
		}
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, n)
	})

	g.DELETE("/:id", func(c *gin.Context) {
		var opts []repository.DeleteOption
		if c.Query("hard") == "true" {
			opts = append(opts, repository.HardDelete())
		}
		if err := repo.Delete(c.Request.Context(), c.Param("id"), opts...); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	g.POST("/:id/undelete", func(c *gin.Context) {
		if err := repo.Undelete(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	g.POST("/purge", func(c *gin.Context) {
		days := repository.DefaultRetentionDays
		if v := c.Query("days"); v != "" {
			d, err := strconv.Atoi(v)
			if err != nil || d < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a non-negative integer"})
				return
			}
			days = d
		}
		n, err := repo.CleanHardDeleted(c.Request.Context(), days)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"purged": n})
	})
}

func readOptions(c *gin.Context) []repository.ReadOption {
	if c.Query("includeDeleted") == "true" {
		return []repository.ReadOption{repository.IncludeDeleted()}
	}
	return nil
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
	case errors.Is(err, repository.ErrEntityNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, repository.ErrNullEntity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case docstore.IsDuplicateKey(err):
		c.JSON(http.StatusConflict, gin.H{"error": "note already exists"})
	default:
		logger.Errorf("notes: %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
