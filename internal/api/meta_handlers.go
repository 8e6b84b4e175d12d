// Package api - metadata management handlers
// Schema mutations write the meta tables and issue DDL against the
// model's base in the same handler, then drop the metadata cache.
package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/aethra/gridbase/internal/engine"
	apperrors "github.com/aethra/gridbase/internal/errors"
	"github.com/aethra/gridbase/internal/meta"
	"github.com/aethra/gridbase/internal/models"
	"github.com/aethra/gridbase/internal/security"
)

// MetaHandler serves the schema management API.
type MetaHandler struct {
	store *meta.Store
	bases *engine.BaseManager
	log   zerolog.Logger
}

// NewMetaHandler creates the meta handler.
func NewMetaHandler(store *meta.Store, bases *engine.BaseManager, log zerolog.Logger) *MetaHandler {
	return &MetaHandler{
		store: store,
		bases: bases,
		log:   log.With().Str("component", "meta-api").Logger(),
	}
}

// tableManagerFor returns a DDL manager on the base a model lives in.
func (h *MetaHandler) tableManagerFor(c *gin.Context, model *models.Model) (*engine.TableManager, error) {
	db, err := h.bases.ForModel(c.Request.Context(), model)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return engine.NewTableManager(db), nil
}

// =============================================================================
// PROJECTS
// =============================================================================

// CreateProject creates a workspace.
// POST /api/v1/db/meta/projects
func (h *MetaHandler) CreateProject(c *gin.Context) {
	var req struct {
		Title  string `json:"title" binding:"required"`
		Prefix string `json:"prefix"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}

	project := models.Project{
		ID:       uuid.New(),
		Title:    req.Title,
		Prefix:   req.Prefix,
		IsActive: true,
	}
	if err := h.store.DB().Create(&project).Error; err != nil {
		respondError(c, apperrors.NewInternalError(err))
		return
	}
	c.JSON(http.StatusCreated, project)
}

// ListProjects lists active workspaces.
// GET /api/v1/db/meta/projects
func (h *MetaHandler) ListProjects(c *gin.Context) {
	var projects []models.Project
	err := h.store.DB().Where("is_active = ?", true).Order("created_at ASC").Find(&projects).Error
	if err != nil {
		respondError(c, apperrors.NewInternalError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": projects})
}

// GetProject returns one workspace.
// GET /api/v1/db/meta/projects/:projectId
func (h *MetaHandler) GetProject(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid project id"))
		return
	}
	project, err := h.store.GetProject(projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// DeleteProject retires a workspace. Data tables are left in place.
// DELETE /api/v1/db/meta/projects/:projectId
func (h *MetaHandler) DeleteProject(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid project id"))
		return
	}

	result := h.store.DB().Model(&models.Project{}).
		Where("id = ?", projectID).
		Update("is_active", false)
	if result.Error != nil {
		respondError(c, apperrors.NewInternalError(result.Error))
		return
	}
	if result.RowsAffected == 0 {
		respondError(c, apperrors.NewNotFoundError("project"))
		return
	}

	h.store.Invalidate()
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// =============================================================================
// BASES
// =============================================================================

type baseRequest struct {
	Alias     string `json:"alias"`
	Driver    string `json:"driver" binding:"required"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Database  string `json:"database" binding:"required"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	SSLMode   string `json:"ssl_mode"`
	IsDefault bool   `json:"is_default"`
}

func (r *baseRequest) toBase(projectID uuid.UUID) *models.Base {
	return &models.Base{
		ID:        uuid.New(),
		ProjectID: projectID,
		Alias:     r.Alias,
		Driver:    r.Driver,
		Host:      r.Host,
		Port:      r.Port,
		Database:  r.Database,
		Username:  r.Username,
		SSLMode:   r.SSLMode,
		IsDefault: r.IsDefault,
	}
}

// CreateBase registers an external database for a project.
// POST /api/v1/db/meta/projects/:projectId/bases
func (h *MetaHandler) CreateBase(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid project id"))
		return
	}

	var req baseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}

	base := req.toBase(projectID)
	if err := h.bases.SaveBase(base, req.Password); err != nil {
		respondError(c, apperrors.NewInternalError(err))
		return
	}
	c.JSON(http.StatusCreated, base)
}

// TestBase dials a base configuration without persisting it.
// POST /api/v1/db/meta/projects/:projectId/bases/test
func (h *MetaHandler) TestBase(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid project id"))
		return
	}

	var req baseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}

	base := req.toBase(projectID)
	encrypted, err := h.bases.Encrypt(req.Password)
	if err != nil {
		respondError(c, apperrors.NewInternalError(err))
		return
	}
	base.Password = encrypted

	if err := h.bases.TestBase(c.Request.Context(), base); err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListBases lists a project's registered databases.
// GET /api/v1/db/meta/projects/:projectId/bases
func (h *MetaHandler) ListBases(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid project id"))
		return
	}

	var bases []models.Base
	err = h.store.DB().Where("project_id = ?", projectID).Order("created_at ASC").Find(&bases).Error
	if err != nil {
		respondError(c, apperrors.NewInternalError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": bases})
}

// =============================================================================
// TABLES
// =============================================================================

type columnRequest struct {
	Title           string       `json:"title" binding:"required"`
	ColumnName      string       `json:"column_name"`
	UIDT            models.UIType `json:"uidt" binding:"required"`
	DataType        string       `json:"data_type"`
	IsPrimaryKey    bool         `json:"is_primary_key"`
	IsPrimaryValue  bool         `json:"is_primary_value"`
	IsSystem        bool         `json:"is_system"`
	IsRequired      bool         `json:"is_required"`
	IsUnique        bool         `json:"is_unique"`
	Order           int          `json:"order"`
	VisibilityRules models.JSONB `json:"visibility_rules"`
	Meta            models.JSONB `json:"meta"`

	LinkOption   *models.LinkColumnOption   `json:"link_option"`
	LookupOption *models.LookupColumnOption `json:"lookup_option"`
	RollupOption *models.RollupColumnOption `json:"rollup_option"`
}

func (r *columnRequest) toColumn(modelID uuid.UUID) models.Column {
	columnName := r.ColumnName
	if columnName == "" {
		columnName = strings.ToLower(strings.ReplaceAll(r.Title, " ", "_"))
	}
	return models.Column{
		ID:              uuid.New(),
		ModelID:         modelID,
		Title:           r.Title,
		ColumnName:      columnName,
		UIDT:            r.UIDT,
		DataType:        r.DataType,
		IsPrimaryKey:    r.IsPrimaryKey,
		IsPrimaryValue:  r.IsPrimaryValue,
		IsSystem:        r.IsSystem,
		IsRequired:      r.IsRequired,
		IsUnique:        r.IsUnique,
		Order:           r.Order,
		VisibilityRules: r.VisibilityRules,
		Meta:            r.Meta,
	}
}

// createColumnOptions persists the option row a virtual column needs.
func createColumnOptions(tx *gorm.DB, col *models.Column, req *columnRequest) error {
	switch col.UIDT {
	case models.UITypeLinkToAnotherRecord:
		if req.LinkOption == nil {
			return apperrors.NewBadRequestError("link column requires link_option")
		}
		opt := *req.LinkOption
		opt.ID = uuid.New()
		opt.ColumnID = col.ID
		return tx.Create(&opt).Error

	case models.UITypeLookup:
		if req.LookupOption == nil {
			return apperrors.NewBadRequestError("lookup column requires lookup_option")
		}
		opt := *req.LookupOption
		opt.ID = uuid.New()
		opt.ColumnID = col.ID
		return tx.Create(&opt).Error

	case models.UITypeRollup:
		if req.RollupOption == nil {
			return apperrors.NewBadRequestError("rollup column requires rollup_option")
		}
		opt := *req.RollupOption
		opt.ID = uuid.New()
		opt.ColumnID = col.ID
		return tx.Create(&opt).Error
	}
	return nil
}

// CreateTable creates a model, its columns, its physical table and a
// default grid view. A primary key column is added when none is given.
// POST /api/v1/db/meta/projects/:projectId/tables
func (h *MetaHandler) CreateTable(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid project id"))
		return
	}

	var req struct {
		Title     string          `json:"title" binding:"required"`
		TableName string          `json:"table_name"`
		BaseID    *uuid.UUID      `json:"base_id"`
		Columns   []columnRequest `json:"columns"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}

	tableName := req.TableName
	if tableName == "" {
		tableName = strings.ToLower(strings.ReplaceAll(req.Title, " ", "_"))
	}
	if err := security.ValidateIdentifier(tableName); err != nil {
		respondError(c, apperrors.NewBadRequestError(err.Error()))
		return
	}

	model := models.Model{
		ID:        uuid.New(),
		ProjectID: projectID,
		BaseID:    req.BaseID,
		Title:     req.Title,
		TableName: tableName,
		IsActive:  true,
	}

	columns := make([]models.Column, 0, len(req.Columns)+1)
	hasPK := false
	for i := range req.Columns {
		col := req.Columns[i].toColumn(model.ID)
		if col.Order == 0 {
			col.Order = i + 1
		}
		if col.IsPrimaryKey {
			hasPK = true
		}
		columns = append(columns, col)
	}
	if !hasPK {
		columns = append([]models.Column{{
			ID:           uuid.New(),
			ModelID:      model.ID,
			Title:        "Id",
			ColumnName:   "id",
			UIDT:         models.UITypeID,
			IsPrimaryKey: true,
			IsSystem:     true,
		}}, columns...)
	}

	view := models.View{
		ID:        uuid.New(),
		ModelID:   model.ID,
		Title:     "Default",
		Type:      models.ViewTypeGrid,
		IsDefault: true,
	}

	err = h.store.DB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return apperrors.NewInternalError(err)
		}
		for i := range columns {
			if err := tx.Create(&columns[i]).Error; err != nil {
				return apperrors.NewInternalError(err)
			}
			if err := createColumnOptions(tx, &columns[i], columnReq(req.Columns, columns[i].Title)); err != nil {
				return err
			}
		}
		if err := tx.Create(&view).Error; err != nil {
			return apperrors.NewInternalError(err)
		}
		for i := range columns {
			vc := models.ViewColumn{
				ID:       uuid.New(),
				ViewID:   view.ID,
				ColumnID: columns[i].ID,
				Show:     true,
				Order:    i + 1,
			}
			if err := tx.Create(&vc).Error; err != nil {
				return apperrors.NewInternalError(err)
			}
		}
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}

	tm, err := h.tableManagerFor(c, &model)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := tm.CreateModelTable(&model, columns); err != nil {
		respondError(c, err)
		return
	}

	h.store.Invalidate()
	model.Columns = columns
	c.JSON(http.StatusCreated, model)
}

// columnReq finds the request entry a created column came from. Columns
// injected by the handler have no entry and carry no options.
func columnReq(reqs []columnRequest, title string) *columnRequest {
	for i := range reqs {
		if reqs[i].Title == title {
			return &reqs[i]
		}
	}
	return &columnRequest{}
}

// ListTables lists a project's models.
// GET /api/v1/db/meta/projects/:projectId/tables
func (h *MetaHandler) ListTables(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid project id"))
		return
	}

	var tables []models.Model
	err = h.store.DB().
		Where("project_id = ? AND is_active = ?", projectID, true).
		Order(`"order" ASC, created_at ASC`).
		Find(&tables).Error
	if err != nil {
		respondError(c, apperrors.NewInternalError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": tables})
}

// GetTable returns one model with its columns.
// GET /api/v1/db/meta/tables/:tableId
func (h *MetaHandler) GetTable(c *gin.Context) {
	tableID, err := uuid.Parse(c.Param("tableId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid table id"))
		return
	}
	model, err := h.store.GetModel(tableID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model)
}

// DeleteTable retires a model and drops its physical table. Models that
// other tables still link into cannot be deleted.
// DELETE /api/v1/db/meta/tables/:tableId
func (h *MetaHandler) DeleteTable(c *gin.Context) {
	tableID, err := uuid.Parse(c.Param("tableId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid table id"))
		return
	}
	model, err := h.store.GetModel(tableID)
	if err != nil {
		respondError(c, err)
		return
	}

	links, err := h.store.LinksInto(model.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(links) > 0 {
		respondError(c, apperrors.NewBadRequestError("table is referenced by link columns of other tables"))
		return
	}

	err = h.store.DB().Model(&models.Model{}).
		Where("id = ?", model.ID).
		Update("is_active", false).Error
	if err != nil {
		respondError(c, apperrors.NewInternalError(err))
		return
	}

	tm, err := h.tableManagerFor(c, model)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := tm.DropModelTable(model); err != nil {
		respondError(c, err)
		return
	}

	h.store.Invalidate()
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// =============================================================================
// COLUMNS
// =============================================================================

// CreateColumn adds a column to a model, with DDL for stored types and
// an option row for virtual ones.
// POST /api/v1/db/meta/tables/:tableId/columns
func (h *MetaHandler) CreateColumn(c *gin.Context) {
	tableID, err := uuid.Parse(c.Param("tableId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid table id"))
		return
	}
	model, err := h.store.GetModel(tableID)
	if err != nil {
		respondError(c, err)
		return
	}

	var req columnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}

	col := req.toColumn(model.ID)
	if col.Order == 0 {
		col.Order = len(model.Columns) + 1
	}
	if err := security.ValidateIdentifier(col.ColumnName); err != nil {
		respondError(c, apperrors.NewBadRequestError(err.Error()))
		return
	}

	err = h.store.DB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&col).Error; err != nil {
			return apperrors.NewInternalError(err)
		}
		return createColumnOptions(tx, &col, &req)
	})
	if err != nil {
		respondError(c, err)
		return
	}

	tm, err := h.tableManagerFor(c, model)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := tm.AddColumn(model, &col); err != nil {
		respondError(c, err)
		return
	}

	h.store.Invalidate()
	c.JSON(http.StatusCreated, col)
}

// UpdateColumn patches a column's metadata. The physical column is not
// touched; renames change only the API-facing title.
// PATCH /api/v1/db/meta/columns/:columnId
func (h *MetaHandler) UpdateColumn(c *gin.Context) {
	columnID, err := uuid.Parse(c.Param("columnId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid column id"))
		return
	}

	var req struct {
		Title           *string       `json:"title"`
		Order           *int          `json:"order"`
		IsPrimaryValue  *bool         `json:"is_primary_value"`
		IsRequired      *bool         `json:"is_required"`
		VisibilityRules *models.JSONB `json:"visibility_rules"`
		Meta            *models.JSONB `json:"meta"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Order != nil {
		updates["order"] = *req.Order
	}
	if req.IsPrimaryValue != nil {
		updates["is_primary_value"] = *req.IsPrimaryValue
	}
	if req.IsRequired != nil {
		updates["is_required"] = *req.IsRequired
	}
	if req.VisibilityRules != nil {
		updates["visibility_rules"] = *req.VisibilityRules
	}
	if req.Meta != nil {
		updates["meta"] = *req.Meta
	}
	if len(updates) == 0 {
		respondError(c, apperrors.NewBadRequestError("nothing to update"))
		return
	}

	result := h.store.DB().Model(&models.Column{}).Where("id = ?", columnID).Updates(updates)
	if result.Error != nil {
		respondError(c, apperrors.NewInternalError(result.Error))
		return
	}
	if result.RowsAffected == 0 {
		respondError(c, apperrors.NewNotFoundError("column"))
		return
	}

	h.store.Invalidate()
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// DeleteColumn removes a column, its option rows, its per-view entries
// and, for stored columns, the physical column.
// DELETE /api/v1/db/meta/columns/:columnId
func (h *MetaHandler) DeleteColumn(c *gin.Context) {
	columnID, err := uuid.Parse(c.Param("columnId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid column id"))
		return
	}
	col, err := h.store.GetColumn(columnID)
	if err != nil {
		respondError(c, err)
		return
	}
	if col.IsPrimaryKey {
		respondError(c, apperrors.NewBadRequestError("primary key column cannot be deleted"))
		return
	}
	model, err := h.store.GetModel(col.ModelID)
	if err != nil {
		respondError(c, err)
		return
	}

	err = h.store.DB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("column_id = ?", col.ID).Delete(&models.ViewColumn{}).Error; err != nil {
			return apperrors.NewInternalError(err)
		}
		if err := tx.Where("column_id = ?", col.ID).Delete(&models.Filter{}).Error; err != nil {
			return apperrors.NewInternalError(err)
		}
		if err := tx.Where("column_id = ?", col.ID).Delete(&models.Sort{}).Error; err != nil {
			return apperrors.NewInternalError(err)
		}
		tx.Where("column_id = ?", col.ID).Delete(&models.LinkColumnOption{})
		tx.Where("column_id = ?", col.ID).Delete(&models.LookupColumnOption{})
		tx.Where("column_id = ?", col.ID).Delete(&models.RollupColumnOption{})
		if err := tx.Where("id = ?", col.ID).Delete(&models.Column{}).Error; err != nil {
			return apperrors.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}

	tm, err := h.tableManagerFor(c, model)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := tm.DropColumn(model, col); err != nil {
		respondError(c, err)
		return
	}

	h.store.Invalidate()
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// =============================================================================
// VIEWS
// =============================================================================

// CreateView adds a view showing every current column.
// POST /api/v1/db/meta/tables/:tableId/views
func (h *MetaHandler) CreateView(c *gin.Context) {
	tableID, err := uuid.Parse(c.Param("tableId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid table id"))
		return
	}
	model, err := h.store.GetModel(tableID)
	if err != nil {
		respondError(c, err)
		return
	}

	var req struct {
		Title            string `json:"title" binding:"required"`
		Type             string `json:"type"`
		ShowSystemFields bool   `json:"show_system_fields"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}
	if req.Type == "" {
		req.Type = models.ViewTypeGrid
	}

	view := models.View{
		ID:               uuid.New(),
		ModelID:          model.ID,
		Title:            req.Title,
		Type:             req.Type,
		ShowSystemFields: req.ShowSystemFields,
	}

	err = h.store.DB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&view).Error; err != nil {
			return apperrors.NewInternalError(err)
		}
		for i := range model.Columns {
			vc := models.ViewColumn{
				ID:       uuid.New(),
				ViewID:   view.ID,
				ColumnID: model.Columns[i].ID,
				Show:     true,
				Order:    i + 1,
			}
			if err := tx.Create(&vc).Error; err != nil {
				return apperrors.NewInternalError(err)
			}
		}
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.store.Invalidate()
	c.JSON(http.StatusCreated, view)
}

// ListViews lists a model's views.
// GET /api/v1/db/meta/tables/:tableId/views
func (h *MetaHandler) ListViews(c *gin.Context) {
	tableID, err := uuid.Parse(c.Param("tableId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid table id"))
		return
	}

	var views []models.View
	err = h.store.DB().
		Where("model_id = ?", tableID).
		Order(`"order" ASC, created_at ASC`).
		Find(&views).Error
	if err != nil {
		respondError(c, apperrors.NewInternalError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": views})
}

// DeleteView removes a view with its columns, filters and sorts.
// DELETE /api/v1/db/meta/views/:viewId
func (h *MetaHandler) DeleteView(c *gin.Context) {
	viewID, err := uuid.Parse(c.Param("viewId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid view id"))
		return
	}

	err = h.store.DB().Transaction(func(tx *gorm.DB) error {
		tx.Where("view_id = ?", viewID).Delete(&models.ViewColumn{})
		tx.Where("view_id = ?", viewID).Delete(&models.Filter{})
		tx.Where("view_id = ?", viewID).Delete(&models.Sort{})
		result := tx.Where("id = ?", viewID).Delete(&models.View{})
		if result.Error != nil {
			return apperrors.NewInternalError(result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.NewNotFoundError("view")
		}
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.store.Invalidate()
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// UpdateViewColumn patches per-view show/order/width for one column.
// PATCH /api/v1/db/meta/views/:viewId/columns/:columnId
func (h *MetaHandler) UpdateViewColumn(c *gin.Context) {
	viewID, err := uuid.Parse(c.Param("viewId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid view id"))
		return
	}
	columnID, err := uuid.Parse(c.Param("columnId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid column id"))
		return
	}

	var req struct {
		Show  *bool   `json:"show"`
		Order *int    `json:"order"`
		Width *string `json:"width"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}

	updates := map[string]interface{}{}
	if req.Show != nil {
		updates["show"] = *req.Show
	}
	if req.Order != nil {
		updates["order"] = *req.Order
	}
	if req.Width != nil {
		updates["width"] = *req.Width
	}
	if len(updates) == 0 {
		respondError(c, apperrors.NewBadRequestError("nothing to update"))
		return
	}

	result := h.store.DB().Model(&models.ViewColumn{}).
		Where("view_id = ? AND column_id = ?", viewID, columnID).
		Updates(updates)
	if result.Error != nil {
		respondError(c, apperrors.NewInternalError(result.Error))
		return
	}
	if result.RowsAffected == 0 {
		respondError(c, apperrors.NewNotFoundError("view column"))
		return
	}

	h.store.Invalidate()
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// =============================================================================
// FILTERS & SORTS
// =============================================================================

// CreateFilter adds a filter node to a view.
// POST /api/v1/db/meta/views/:viewId/filters
func (h *MetaHandler) CreateFilter(c *gin.Context) {
	viewID, err := uuid.Parse(c.Param("viewId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid view id"))
		return
	}

	var filter models.Filter
	if err := c.ShouldBindJSON(&filter); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}
	filter.ID = uuid.New()
	filter.ViewID = &viewID
	if filter.LogicalOp == "" {
		filter.LogicalOp = "and"
	}
	if filter.Order == 0 {
		filter.Order = 1
	}

	if err := h.store.DB().Create(&filter).Error; err != nil {
		respondError(c, apperrors.NewInternalError(err))
		return
	}

	h.store.Invalidate()
	c.JSON(http.StatusCreated, filter)
}

// DeleteFilter removes a filter node and its children.
// DELETE /api/v1/db/meta/filters/:filterId
func (h *MetaHandler) DeleteFilter(c *gin.Context) {
	filterID, err := uuid.Parse(c.Param("filterId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid filter id"))
		return
	}

	err = h.store.DB().Transaction(func(tx *gorm.DB) error {
		tx.Where("parent_id = ?", filterID).Delete(&models.Filter{})
		result := tx.Where("id = ?", filterID).Delete(&models.Filter{})
		if result.Error != nil {
			return apperrors.NewInternalError(result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.NewNotFoundError("filter")
		}
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.store.Invalidate()
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// CreateSort adds a sort entry to a view.
// POST /api/v1/db/meta/views/:viewId/sorts
func (h *MetaHandler) CreateSort(c *gin.Context) {
	viewID, err := uuid.Parse(c.Param("viewId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid view id"))
		return
	}

	var sort models.Sort
	if err := c.ShouldBindJSON(&sort); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}
	sort.ID = uuid.New()
	sort.ViewID = &viewID
	if sort.Direction == "" {
		sort.Direction = "asc"
	}
	if sort.Order == 0 {
		sort.Order = 1
	}

	if err := h.store.DB().Create(&sort).Error; err != nil {
		respondError(c, apperrors.NewInternalError(err))
		return
	}

	h.store.Invalidate()
	c.JSON(http.StatusCreated, sort)
}

// DeleteSort removes a sort entry.
// DELETE /api/v1/db/meta/sorts/:sortId
func (h *MetaHandler) DeleteSort(c *gin.Context) {
	sortID, err := uuid.Parse(c.Param("sortId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid sort id"))
		return
	}

	result := h.store.DB().Where("id = ?", sortID).Delete(&models.Sort{})
	if result.Error != nil {
		respondError(c, apperrors.NewInternalError(result.Error))
		return
	}
	if result.RowsAffected == 0 {
		respondError(c, apperrors.NewNotFoundError("sort"))
		return
	}

	h.store.Invalidate()
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
