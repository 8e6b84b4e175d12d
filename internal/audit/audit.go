// Package audit records the data trail. One entry per logical
// operation: bulk calls write a single entry carrying the affected
// count, row-level calls carry the row id. Recording failures are
// logged and swallowed so a full audit table never blocks writes.
package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	apperrors "github.com/aethra/gridbase/internal/errors"
	"github.com/aethra/gridbase/internal/models"
)

// Ctx carries caller attribution into audit entries.
type Ctx struct {
	User string
	IP   string
}

// Recorder writes and reads audit entries
type Recorder struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewRecorder creates an audit recorder
func NewRecorder(db *gorm.DB, log zerolog.Logger) *Recorder {
	return &Recorder{
		db:  db,
		log: log.With().Str("component", "audit").Logger(),
	}
}

// Record inserts one audit entry. Errors are logged, never returned.
func (r *Recorder) Record(entry *models.Audit) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.OpType == "" {
		entry.OpType = models.AuditOpTypeData
	}
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt

	if err := r.db.Create(entry).Error; err != nil {
		r.log.Error().Err(err).
			Str("op_sub_type", entry.OpSubType).
			Str("fk_model_id", entry.FkModelID.String()).
			Msg("failed to write audit entry")
	}
}

// RowInserted records a single-row insert.
func (r *Recorder) RowInserted(c Ctx, projectID uuid.UUID, model *models.Model, pk interface{}) {
	r.Record(&models.Audit{
		User:        c.User,
		IP:          c.IP,
		ProjectID:   projectID,
		FkModelID:   model.ID,
		RowID:       fmt.Sprintf("%v", pk),
		OpSubType:   models.AuditOpSubTypeInsert,
		Description: fmt.Sprintf("%v inserted into %s", pk, model.Title),
	})
}

// FieldChanged records a single-row update of one field.
func (r *Recorder) FieldChanged(c Ctx, projectID uuid.UUID, model *models.Model, pk interface{}, field string, oldVal, newVal interface{}) {
	r.Record(&models.Audit{
		User:      c.User,
		IP:        c.IP,
		ProjectID: projectID,
		FkModelID: model.ID,
		RowID:     fmt.Sprintf("%v", pk),
		OpSubType: models.AuditOpSubTypeUpdate,
		Description: fmt.Sprintf("Table %s : %v field %s got changed from %v to %v",
			model.TableName, pk, field, oldVal, newVal),
	})
}

// RowDeleted records a single-row delete.
func (r *Recorder) RowDeleted(c Ctx, projectID uuid.UUID, model *models.Model, pk interface{}) {
	r.Record(&models.Audit{
		User:        c.User,
		IP:          c.IP,
		ProjectID:   projectID,
		FkModelID:   model.ID,
		RowID:       fmt.Sprintf("%v", pk),
		OpSubType:   models.AuditOpSubTypeDelete,
		Description: fmt.Sprintf("%v deleted from %s", pk, model.Title),
	})
}

// BulkInserted records a bulk insert with the inserted count.
func (r *Recorder) BulkInserted(c Ctx, projectID uuid.UUID, model *models.Model, count int) {
	r.Record(&models.Audit{
		User:        c.User,
		IP:          c.IP,
		ProjectID:   projectID,
		FkModelID:   model.ID,
		OpSubType:   models.AuditOpSubTypeBulkInsert,
		Description: fmt.Sprintf("%d records bulk inserted into %s", count, model.Title),
	})
}

// BulkUpdated records a bulk update with the actually affected count.
func (r *Recorder) BulkUpdated(c Ctx, projectID uuid.UUID, model *models.Model, count int) {
	r.Record(&models.Audit{
		User:        c.User,
		IP:          c.IP,
		ProjectID:   projectID,
		FkModelID:   model.ID,
		OpSubType:   models.AuditOpSubTypeBulkUpdate,
		Description: fmt.Sprintf("%d records bulk updated in %s", count, model.Title),
	})
}

// BulkDeleted records a bulk delete with the actually affected count.
func (r *Recorder) BulkDeleted(c Ctx, projectID uuid.UUID, model *models.Model, count int) {
	r.Record(&models.Audit{
		User:        c.User,
		IP:          c.IP,
		ProjectID:   projectID,
		FkModelID:   model.ID,
		OpSubType:   models.AuditOpSubTypeBulkDelete,
		Description: fmt.Sprintf("%d records bulk deleted in %s", count, model.Title),
	})
}

// RecordLinked records an explicit link between two rows.
func (r *Recorder) RecordLinked(c Ctx, projectID uuid.UUID, model *models.Model, rowID, childID interface{}) {
	r.Record(&models.Audit{
		User:      c.User,
		IP:        c.IP,
		ProjectID: projectID,
		FkModelID: model.ID,
		RowID:     fmt.Sprintf("%v", rowID),
		OpSubType: models.AuditOpSubTypeLinkRecord,
		Description: fmt.Sprintf("Record [id:%v] record linked with record [id:%v] record in %s",
			childID, rowID, model.Title),
	})
}

// RecordUnlinked records an explicit unlink between two rows.
func (r *Recorder) RecordUnlinked(c Ctx, projectID uuid.UUID, model *models.Model, rowID, childID interface{}) {
	r.Record(&models.Audit{
		User:      c.User,
		IP:        c.IP,
		ProjectID: projectID,
		FkModelID: model.ID,
		RowID:     fmt.Sprintf("%v", rowID),
		OpSubType: models.AuditOpSubTypeUnlinkRecord,
		Description: fmt.Sprintf("Record [id:%v] record unlinked with record [id:%v] record in %s",
			childID, rowID, model.Title),
	})
}

// Comment inserts a row comment entry.
func (r *Recorder) Comment(c Ctx, projectID uuid.UUID, modelID uuid.UUID, rowID, description string) *models.Audit {
	entry := &models.Audit{
		User:        c.User,
		IP:          c.IP,
		ProjectID:   projectID,
		FkModelID:   modelID,
		RowID:       rowID,
		OpType:      models.AuditOpTypeComment,
		OpSubType:   models.AuditOpSubTypeComment,
		Description: description,
	}
	r.Record(entry)
	return entry
}

// ListOptions narrows and pages an audit listing.
type ListOptions struct {
	ModelID *uuid.UUID
	RowID   string
	Limit   int
	Offset  int
}

// ProjectAuditList returns a project's audit entries, newest first.
func (r *Recorder) ProjectAuditList(projectID uuid.UUID, opts ListOptions) ([]models.Audit, int64, error) {
	q := r.db.Model(&models.Audit{}).Where("project_id = ?", projectID)
	if opts.ModelID != nil {
		q = q.Where("fk_model_id = ?", *opts.ModelID)
	}
	if opts.RowID != "" {
		q = q.Where("row_id = ?", opts.RowID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperrors.NewInternalError(err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 25
	}

	var entries []models.Audit
	err := q.Order("created_at DESC").Limit(limit).Offset(opts.Offset).Find(&entries).Error
	if err != nil {
		return nil, 0, apperrors.NewInternalError(err)
	}
	return entries, total, nil
}

// UpdateComment edits the description of a comment entry. Data trail
// entries are immutable.
func (r *Recorder) UpdateComment(id uuid.UUID, user, description string) (*models.Audit, error) {
	var entry models.Audit
	if err := r.db.Where("id = ?", id).First(&entry).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NewNotFoundError("comment")
		}
		return nil, apperrors.NewInternalError(err)
	}
	if entry.OpType != models.AuditOpTypeComment {
		return nil, apperrors.NewBadRequestError("only comments can be edited")
	}

	entry.Description = description
	entry.User = user
	entry.UpdatedAt = time.Now()
	if err := r.db.Save(&entry).Error; err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &entry, nil
}
