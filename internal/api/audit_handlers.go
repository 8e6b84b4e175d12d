// Package api - audit trail handlers
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aethra/gridbase/internal/audit"
	apperrors "github.com/aethra/gridbase/internal/errors"
	"github.com/aethra/gridbase/internal/meta"
)

// AuditHandler serves the audit listing and row comments.
type AuditHandler struct {
	recorder *audit.Recorder
	meta     *meta.Store
}

// NewAuditHandler creates the audit handler.
func NewAuditHandler(recorder *audit.Recorder, store *meta.Store) *AuditHandler {
	return &AuditHandler{recorder: recorder, meta: store}
}

// List returns a project's audit entries, newest first, optionally
// narrowed to one table or one row.
// GET /api/v1/db/meta/projects/:projectId/audits
func (h *AuditHandler) List(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid project id"))
		return
	}

	opts := audit.ListOptions{RowID: c.Query("row_id")}
	if raw := c.Query("fk_model_id"); raw != "" {
		modelID, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, apperrors.NewBadRequestError("invalid fk_model_id"))
			return
		}
		opts.ModelID = &modelID
	}

	var paging struct {
		Limit  int `form:"limit"`
		Offset int `form:"offset"`
	}
	if err := c.ShouldBindQuery(&paging); err == nil {
		opts.Limit = paging.Limit
		opts.Offset = paging.Offset
	}

	entries, total, err := h.recorder.ProjectAuditList(projectID, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"list": entries,
		"pageInfo": gin.H{
			"totalRows": total,
		},
	})
}

// CreateComment attaches a comment to a row.
// POST /api/v1/db/meta/projects/:projectId/audits/comments
func (h *AuditHandler) CreateComment(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid project id"))
		return
	}

	var req struct {
		FkModelID   uuid.UUID `json:"fk_model_id" binding:"required"`
		RowID       string    `json:"row_id" binding:"required"`
		Description string    `json:"description" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}

	entry := h.recorder.Comment(auditCtx(c), projectID, req.FkModelID, req.RowID, req.Description)
	c.JSON(http.StatusCreated, entry)
}

// UpdateComment edits a comment's text. Data trail entries are
// immutable and cannot be edited through this endpoint.
// PATCH /api/v1/db/meta/audits/:auditId/comment
func (h *AuditHandler) UpdateComment(c *gin.Context) {
	auditID, err := uuid.Parse(c.Param("auditId"))
	if err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid audit id"))
		return
	}

	var req struct {
		Description string `json:"description" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}

	entry, err := h.recorder.UpdateComment(auditID, callerEmail(c), req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}
