// Serves the JSON Schema of the on-disk documents.

package handlers

import (
	"context"

	"github.com/invopop/jsonschema"
	"github.com/zheng93775/house-keeper/internal/docstore"
	"github.com/zheng93775/house-keeper/internal/models"
	"github.com/zheng93775/house-keeper/internal/server/dto"
)

// SchemaDocs maps a document name to the schema of one of its records.
var SchemaDocs = map[string]func() *jsonschema.Schema{
	"user":         docstore.Schema[models.User],
	"house":        docstore.Schema[models.House],
	"house-detail": docstore.Schema[models.HouseDetail],
}

// SchemaHandler serves document schemas.
type SchemaHandler struct{}

// GetSchema returns the schema of the requested document.
func (h *SchemaHandler) GetSchema(_ context.Context, req *dto.SchemaRequest) (*jsonschema.Schema, error) {
	fn, ok := SchemaDocs[req.Doc]
	if !ok {
		return nil, dto.NotFound("schema " + req.Doc)
	}
	return fn(), nil
}
