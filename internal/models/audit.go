package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit operation types.
const (
	AuditOpTypeData    = "DATA"
	AuditOpTypeComment = "COMMENT"
)

// Audit operation sub types.
const (
	AuditOpSubTypeInsert       = "INSERT"
	AuditOpSubTypeUpdate       = "UPDATE"
	AuditOpSubTypeDelete       = "DELETE"
	AuditOpSubTypeBulkInsert   = "BULK_INSERT"
	AuditOpSubTypeBulkUpdate   = "BULK_UPDATE"
	AuditOpSubTypeBulkDelete   = "BULK_DELETE"
	AuditOpSubTypeLinkRecord   = "LINK_RECORD"
	AuditOpSubTypeUnlinkRecord = "UNLINK_RECORD"
	AuditOpSubTypeComment      = "COMMENT"
)

// Audit is one trail entry. RowID is the affected row's primary key
// rendered as a string; bulk operations leave it empty.
type Audit struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	User        string     `json:"user" gorm:"size:255"`
	IP          string     `json:"ip" gorm:"size:45"`
	BaseID      *uuid.UUID `json:"base_id" gorm:"type:uuid"`
	ProjectID   uuid.UUID  `json:"project_id" gorm:"type:uuid;index"`
	FkModelID   uuid.UUID  `json:"fk_model_id" gorm:"type:uuid;index"`
	RowID       string     `json:"row_id" gorm:"size:255;index"`
	OpType      string     `json:"op_type" gorm:"not null;size:20"`
	OpSubType   string     `json:"op_sub_type" gorm:"size:20"`
	Status      string     `json:"status" gorm:"size:20"`
	Description string     `json:"description"`
	Details     string     `json:"details"`
	CreatedAt   time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
