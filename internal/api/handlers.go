// Package api - HTTP data handlers
// Every data endpoint resolves its model and view from metadata, builds
// a row engine for the caller, and delegates. Handlers stay thin.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aethra/gridbase/internal/ast"
	"github.com/aethra/gridbase/internal/config"
	"github.com/aethra/gridbase/internal/engine"
	apperrors "github.com/aethra/gridbase/internal/errors"
	"github.com/aethra/gridbase/internal/meta"
	"github.com/aethra/gridbase/internal/models"
)

// DataHandler serves the row data API.
type DataHandler struct {
	deps engine.Deps
	meta *meta.Store
	cfg  *config.Config
	log  zerolog.Logger
}

// NewDataHandler creates the data handler.
func NewDataHandler(deps engine.Deps, store *meta.Store, cfg *config.Config, log zerolog.Logger) *DataHandler {
	return &DataHandler{
		deps: deps,
		meta: store,
		cfg:  cfg,
		log:  log.With().Str("component", "api").Logger(),
	}
}

// engineFor builds a row engine for the request's project, table and
// optional view, bound to the caller's roles.
func (h *DataHandler) engineFor(c *gin.Context) (*engine.RowEngine, error) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		return nil, apperrors.NewBadRequestError("invalid project id")
	}

	model, err := h.meta.GetModelByTitle(projectID, c.Param("tableName"))
	if err != nil {
		return nil, err
	}

	var view *models.View
	if name := c.Param("viewName"); name != "" {
		view, err = h.meta.GetView(model.ID, name)
		if err != nil {
			return nil, err
		}
	}

	return engine.New(c.Request.Context(), h.deps, model, view, callerRoles(c), auditCtx(c))
}

// respond writes the body with the elapsed handling time in the
// xc-db-response header.
func respond(c *gin.Context, started time.Time, body interface{}) {
	c.Header("xc-db-response", time.Since(started).String())
	c.JSON(http.StatusOK, body)
}

func respondError(c *gin.Context, err error) {
	status, body := apperrors.ToHTTPError(err)
	c.JSON(status, body)
}

// =============================================================================
// READ ENDPOINTS
// =============================================================================

// List returns one page of rows.
// GET /api/v1/db/data/:projectId/:tableName
func (h *DataHandler) List(c *gin.Context) {
	started := time.Now()
	eng, err := h.engineFor(c)
	if err != nil {
		respondError(c, err)
		return
	}

	params := ast.ParseQuery(c.Request.URL.Query())
	result, err := eng.List(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, started, result)
}

// Count returns the number of rows matching the filters.
// GET /api/v1/db/data/:projectId/:tableName/count
func (h *DataHandler) Count(c *gin.Context) {
	started := time.Now()
	eng, err := h.engineFor(c)
	if err != nil {
		respondError(c, err)
		return
	}

	count, err := eng.Count(ast.ParseQuery(c.Request.URL.Query()))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, started, gin.H{"count": count})
}

// FindOne returns the first matching row, or {} when nothing matches.
// GET /api/v1/db/data/:projectId/:tableName/find-one
func (h *DataHandler) FindOne(c *gin.Context) {
	started := time.Now()
	eng, err := h.engineFor(c)
	if err != nil {
		respondError(c, err)
		return
	}

	record, err := eng.FindOne(c.Request.Context(), ast.ParseQuery(c.Request.URL.Query()))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, started, record)
}

// GroupBy buckets rows by a column value.
// GET /api/v1/db/data/:projectId/:tableName/groupby?column_name=X
func (h *DataHandler) GroupBy(c *gin.Context) {
	started := time.Now()
	eng, err := h.engineFor(c)
	if err != nil {
		respondError(c, err)
		return
	}

	columnName := c.Query("column_name")
	if columnName == "" {
		respondError(c, apperrors.NewBadRequestError("column_name is required"))
		return
	}

	groups, err := eng.GroupBy(columnName, ast.ParseQuery(c.Request.URL.Query()))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, started, groups)
}

// GroupedList returns a page of rows per distinct value of a column.
// GET /api/v1/db/data/:projectId/:tableName/group/:columnId
func (h *DataHandler) GroupedList(c *gin.Context) {
	started := time.Now()
	eng, err := h.engineFor(c)
	if err != nil {
		respondError(c, err)
		return
	}

	groups, err := eng.GroupedList(c.Request.Context(), c.Param("columnId"), ast.ParseQuery(c.Request.URL.Query()))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, started, groups)
}

// Read returns one row by primary key.
// GET /api/v1/db/data/:projectId/:tableName/:rowId
func (h *DataHandler) Read(c *gin.Context) {
	started := time.Now()
	eng, err := h.engineFor(c)
	if err != nil {
		respondError(c, err)
		return
	}

	record, err := eng.ReadByPk(c.Request.Context(), c.Param("rowId"), ast.ParseQuery(c.Request.URL.Query()))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, started, record)
}

// Exist reports whether a row exists.
// GET /api/v1/db/data/:projectId/:tableName/:rowId/exist
func (h *DataHandler) Exist(c *gin.Context) {
	started := time.Now()
	eng, err := h.engineFor(c)
	if err != nil {
		respondError(c, err)
		return
	}

	exists, err := eng.Exist(c.Param("rowId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, started, exists)
}

// Export streams rows in batches within a wall-clock budget; callers
// resume by passing the returned offset back.
// GET /api/v1/db/data/:projectId/:tableName/export
func (h *DataHandler) Export(c *gin.Context) {
	started := time.Now()
	eng, err := h.engineFor(c)
	if err != nil {
		respondError(c, err)
		return
	}

	params := ast.ParseQuery(c.Request.URL.Query())
	budget := time.Duration(h.cfg.Data.ExportTimeoutMS) * time.Millisecond

	result, err := eng.StreamList(c.Request.Context(), params, params.Offset, budget)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, started, gin.H{
		"list":    result.Records,
		"offset":  result.Offset,
		"elapsed": result.Elapsed.Milliseconds(),
	})
}

// =============================================================================
// WRITE ENDPOINTS
// =============================================================================

// Insert creates one row, writing nested link payloads alongside.
// POST /api/v1/db/data/:projectId/:tableName
func (h *DataHandler) Insert(c *gin.Context) {
	started := time.Now()
	eng, err := h.engineFor(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}

	record, err := eng.NestedInsert(c.Request.Context(), payload)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, started, record)
}

// Update patches one row by primary key.
// PATCH /api/v1/db/data/:projectId/:tableName/:rowId
func (h *DataHandler) Update(c *gin.Context) {
	started := time.Now()
	eng, err := h.engineFor(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}

	record, err := eng.UpdateByPk(c.Request.Context(), c.Param("rowId"), payload)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, started, record)
}

// Delete removes one row. A row still linked from elsewhere is not
// deleted; the block reason comes back as a message, not a failure.
// DELETE /api/v1/db/data/:projectId/:tableName/:rowId
func (h *DataHandler) Delete(c *gin.Context) {
	started := time.Now()
	eng, err := h.engineFor(c)
	if err != nil {
		respondError(c, err)
		return
	}

	err = eng.DelByPk(c.Request.Context(), c.Param("rowId"))
	if blocked, ok := err.(*engine.DeleteBlocked); ok {
		respond(c, started, gin.H{"message": blocked.Message})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, started, gin.H{"deleted": true})
}

// =============================================================================
// BULK ENDPOINTS
// =============================================================================

// BulkInsert creates many rows.
// POST /api/v1/db/data/bulk/:projectId/:tableName
func (h *DataHandler) BulkInsert(c *gin.Context) {
	started := time.Now()
	eng, err := h.engineFor(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var payload []map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}

	count, err := eng.BulkInsert(c.Request.Context(), payload)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, started, gin.H{"inserted": count})
}

// BulkUpdate patches many rows, each addressed by its primary key.
// PATCH /api/v1/db/data/bulk/:projectId/:tableName
func (h *DataHandler) BulkUpdate(c *gin.Context) {
	started := time.Now()
	eng, err := h.engineFor(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var payload []map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}

	count, err := eng.BulkUpdate(c.Request.Context(), payload)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, started, gin.H{"updated": count})
}

// BulkDelete removes the rows named in the body, either as scalars or
// objects carrying the primary key.
// DELETE /api/v1/db/data/bulk/:projectId/:tableName
func (h *DataHandler) BulkDelete(c *gin.Context) {
	started := time.Now()
	eng, err := h.engineFor(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var payload []interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}

	pks, err := extractPKs(eng.Model(), payload)
	if err != nil {
		respondError(c, err)
		return
	}

	count, err := eng.BulkDelete(c.Request.Context(), pks)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, started, gin.H{"deleted": count})
}

// BulkUpdateAll patches every row matching the filters.
// PATCH /api/v1/db/data/bulk/:projectId/:tableName/all
func (h *DataHandler) BulkUpdateAll(c *gin.Context) {
	started := time.Now()
	eng, err := h.engineFor(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}

	count, err := eng.BulkUpdateAll(c.Request.Context(), ast.ParseQuery(c.Request.URL.Query()), payload)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, started, gin.H{"updated": count})
}

// BulkDeleteAll removes every row matching the filters.
// DELETE /api/v1/db/data/bulk/:projectId/:tableName/all
func (h *DataHandler) BulkDeleteAll(c *gin.Context) {
	started := time.Now()
	eng, err := h.engineFor(c)
	if err != nil {
		respondError(c, err)
		return
	}

	count, err := eng.BulkDeleteAll(c.Request.Context(), ast.ParseQuery(c.Request.URL.Query()))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, started, gin.H{"deleted": count})
}

// =============================================================================
// LINK ENDPOINTS
// =============================================================================

// AddLink attaches a child record through a link field.
// POST /api/v1/db/data/:projectId/:tableName/:rowId/links/:linkField/:childId
func (h *DataHandler) AddLink(c *gin.Context) {
	started := time.Now()
	eng, err := h.engineFor(c)
	if err != nil {
		respondError(c, err)
		return
	}

	err = eng.AddChild(c.Request.Context(), c.Param("linkField"), c.Param("rowId"), c.Param("childId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, started, gin.H{"msg": "success"})
}

// RemoveLink detaches a child record from a link field.
// DELETE /api/v1/db/data/:projectId/:tableName/:rowId/links/:linkField/:childId
func (h *DataHandler) RemoveLink(c *gin.Context) {
	started := time.Now()
	eng, err := h.engineFor(c)
	if err != nil {
		respondError(c, err)
		return
	}

	err = eng.RemoveChild(c.Request.Context(), c.Param("linkField"), c.Param("rowId"), c.Param("childId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, started, gin.H{"msg": "success"})
}

// extractPKs pulls primary keys from a bulk delete body.
func extractPKs(model *models.Model, payload []interface{}) ([]interface{}, error) {
	pkCol := model.PrimaryKeyColumn()
	if pkCol == nil {
		return nil, apperrors.NewConfigurationError("table has no primary key column")
	}

	pks := make([]interface{}, 0, len(payload))
	for _, item := range payload {
		switch v := item.(type) {
		case map[string]interface{}:
			if pk, ok := v[pkCol.Title]; ok {
				pks = append(pks, pk)
			} else if pk, ok := v[pkCol.ColumnName]; ok {
				pks = append(pks, pk)
			} else if pk, ok := v["id"]; ok {
				pks = append(pks, pk)
			}
		default:
			if v != nil {
				pks = append(pks, v)
			}
		}
	}
	return pks, nil
}
