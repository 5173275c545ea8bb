package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the notes API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(r gin.IRouter) {
	r.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	r.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>repod notes - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "repod notes", "version": "v0.1.0" },
  "components": {
    "schemas": {
      "Note": {"type":"object","properties":{"id":{"type":"string"},"createdAt":{"type":"string","format":"date-time"},"modifiedAt":{"type":"string","format":"date-time"},"deleted":{"type":"boolean"},"title":{"type":"string"},"body":{"type":"string"},"tags":{"type":"array","items":{"type":"string"}}}}
    }
  },
  "paths": {
    "/api/notes": {
      "get": { "summary": "List notes", "parameters": [{"name":"tag","in":"query","schema":{"type":"string"}},{"name":"limit","in":"query","schema":{"type":"integer"}},{"name":"includeDeleted","in":"query","schema":{"type":"boolean"}}], "responses": { "200": { "description": "notes" }, "503": { "description": "storage unavailable" } } },
      "post": { "summary": "Create a note", "requestBody": { "content": { "application/json": { "schema": {"$ref":"#/components/schemas/Note"}}}}, "responses": { "201": { "description": "created" }, "409": { "description": "id already exists" } } }
    },
    "/api/notes/batch": {
      "post": { "summary": "Create several notes", "responses": { "201": { "description": "created" } } }
    },
    "/api/notes/count": {
      "get": { "summary": "Count notes", "responses": { "200": { "description": "count" } } }
    },
    "/api/notes/{id}": {
      "get": { "summary": "Get a note", "responses": { "200": { "description": "note" }, "404": { "description": "not found" } } },
      "put": { "summary": "Update a note, or upsert with ?upsert=true", "responses": { "200": { "description": "stored note" }, "404": { "description": "not found" } } },
      "delete": { "summary": "Soft delete a note, or remove it with ?hard=true", "responses": { "204": { "description": "deleted" } } }
    },
    "/api/notes/{id}/undelete": {
      "post": { "summary": "Restore a soft-deleted note", "responses": { "204": { "description": "restored" } } }
    },
    "/api/notes/purge": {
      "post": { "summary": "Remove notes soft-deleted more than ?days ago (default 30)", "responses": { "200": { "description": "purged count" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
