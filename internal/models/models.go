// Package models contains the Gridbase meta-schema data structures
// These models describe the user-defined tables, columns and views dynamically
package models

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// UI TYPES
// =============================================================================

// UIType classifies a column. Virtual types have no physical storage
// cell; their values are computed at read time from the column options.
type UIType string

const (
	UITypeID                  UIType = "ID"
	UITypeSingleLineText      UIType = "SingleLineText"
	UITypeLongText            UIType = "LongText"
	UITypeNumber              UIType = "Number"
	UITypeDecimal             UIType = "Decimal"
	UITypeCheckbox            UIType = "Checkbox"
	UITypeDate                UIType = "Date"
	UITypeDateTime            UIType = "DateTime"
	UITypeEmail               UIType = "Email"
	UITypeURL                 UIType = "URL"
	UITypeAttachment          UIType = "Attachment"
	UITypeSingleSelect        UIType = "SingleSelect"
	UITypeMultiSelect         UIType = "MultiSelect"
	UITypeJSON                UIType = "JSON"
	UITypeCreateTime          UIType = "CreateTime"
	UITypeLastModifiedTime    UIType = "LastModifiedTime"
	UITypeForeignKey          UIType = "ForeignKey"
	UITypeLinkToAnotherRecord UIType = "LinkToAnotherRecord"
	UITypeLookup              UIType = "Lookup"
	UITypeRollup              UIType = "Rollup"
	UITypeFormula             UIType = "Formula"
	UITypeBarcode             UIType = "Barcode"
	UITypeQrCode              UIType = "QrCode"
)

// IsVirtual reports whether a column of this UI type is computed rather
// than stored in the physical table.
func (t UIType) IsVirtual() bool {
	switch t {
	case UITypeLinkToAnotherRecord, UITypeLookup, UITypeRollup,
		UITypeFormula, UITypeBarcode, UITypeQrCode:
		return true
	}
	return false
}

// Relation types for LinkToAnotherRecord columns.
const (
	RelationHasMany    = "hm"
	RelationManyToMany = "mm"
	RelationBelongsTo  = "bt"
)

// Visibility rule values. A column with no rule for a role is visible
// to that role.
const (
	AccessAllow = "allow"
	AccessDeny  = "deny"
)

// =============================================================================
// META-SCHEMA MODELS
// =============================================================================

// Project groups bases, models and audit entries for one workspace
type Project struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Title     string    `json:"title" gorm:"not null;size:255"`
	Prefix    string    `json:"prefix" gorm:"size:50"`
	Meta      JSONB     `json:"meta" gorm:"type:jsonb"`
	IsActive  bool      `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Bases  []Base  `json:"bases,omitempty" gorm:"foreignKey:ProjectID"`
	Models []Model `json:"models,omitempty" gorm:"foreignKey:ProjectID"`
}

// Base is a physical database a project's tables live in. The default
// base of a project points at the platform database itself; additional
// bases carry their own connection settings.
type Base struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ProjectID uuid.UUID `json:"project_id" gorm:"type:uuid;index"`
	Alias     string    `json:"alias" gorm:"size:100"`
	Driver    string    `json:"driver" gorm:"size:30"` // postgres, mysql, sqlite
	Host      string    `json:"host" gorm:"size:255"`
	Port      int       `json:"port"`
	Database  string    `json:"database" gorm:"size:100"`
	Username  string    `json:"username" gorm:"size:100"`
	Password  string    `json:"-" gorm:"column:password_encrypted"`
	SSLMode   string    `json:"ssl_mode" gorm:"size:20;default:'disable'"`
	IsDefault bool      `json:"is_default" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Model represents a logical table the user defined
type Model struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	ProjectID uuid.UUID  `json:"project_id" gorm:"type:uuid;index"`
	BaseID    *uuid.UUID `json:"base_id" gorm:"type:uuid;index"`
	Title     string     `json:"title" gorm:"not null;size:255"`
	TableName string     `json:"table_name" gorm:"not null;size:255"`
	Order     int        `json:"order" gorm:"default:0"`
	Meta      JSONB      `json:"meta" gorm:"type:jsonb"`
	IsActive  bool       `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Relations
	Columns []Column `json:"columns,omitempty" gorm:"foreignKey:ModelID"`
	Views   []View   `json:"views,omitempty" gorm:"foreignKey:ModelID"`
}

// PrimaryKeyColumn returns the model's primary key column, if loaded.
func (m *Model) PrimaryKeyColumn() *Column {
	for i := range m.Columns {
		if m.Columns[i].IsPrimaryKey {
			return &m.Columns[i]
		}
	}
	return nil
}

// DisplayValueColumn returns the column used as the row's display value.
// At most one column per model carries the flag; when none does, the
// first non-virtual non-pk column stands in.
func (m *Model) DisplayValueColumn() *Column {
	for i := range m.Columns {
		if m.Columns[i].IsPrimaryValue {
			return &m.Columns[i]
		}
	}
	for i := range m.Columns {
		if !m.Columns[i].UIDT.IsVirtual() && !m.Columns[i].IsPrimaryKey {
			return &m.Columns[i]
		}
	}
	return nil
}

// ColumnByID returns the loaded column with the given id.
func (m *Model) ColumnByID(id uuid.UUID) *Column {
	for i := range m.Columns {
		if m.Columns[i].ID == id {
			return &m.Columns[i]
		}
	}
	return nil
}

// ColumnByTitle returns the loaded column with the given title.
func (m *Model) ColumnByTitle(title string) *Column {
	for i := range m.Columns {
		if m.Columns[i].Title == title {
			return &m.Columns[i]
		}
	}
	return nil
}

// Column represents a field of a model. Title is the JSON-facing name,
// ColumnName the physical one. VisibilityRules maps a role name to
// "allow" or "deny".
type Column struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ModelID         uuid.UUID `json:"model_id" gorm:"type:uuid;index"`
	Title           string    `json:"title" gorm:"not null;size:255"`
	ColumnName      string    `json:"column_name" gorm:"size:255"`
	UIDT            UIType    `json:"uidt" gorm:"column:uidt;not null;size:50"`
	DataType        string    `json:"data_type" gorm:"size:50"`
	IsPrimaryKey    bool      `json:"is_primary_key" gorm:"default:false"`
	IsPrimaryValue  bool      `json:"is_primary_value" gorm:"default:false"`
	IsSystem        bool      `json:"is_system" gorm:"default:false"`
	IsRequired      bool      `json:"is_required" gorm:"default:false"`
	IsUnique        bool      `json:"is_unique" gorm:"default:false"`
	Order           int       `json:"order" gorm:"default:0"`
	VisibilityRules JSONB     `json:"visibility_rules" gorm:"type:jsonb"`
	Meta            JSONB     `json:"meta" gorm:"type:jsonb"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// =============================================================================
// COLUMN OPTION MODELS
// =============================================================================

// LinkColumnOption describes a LinkToAnotherRecord column. For hm the
// foreign key lives on the child model, for bt on this model, and mm
// goes through a junction model.
type LinkColumnOption struct {
	ID                uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	ColumnID          uuid.UUID  `json:"column_id" gorm:"type:uuid;uniqueIndex"`
	RelationType      string     `json:"relation_type" gorm:"not null;size:10"` // hm, mm, bt
	RelatedModelID    uuid.UUID  `json:"related_model_id" gorm:"type:uuid"`
	ChildColumnID     *uuid.UUID `json:"child_column_id" gorm:"type:uuid"`
	ParentColumnID    *uuid.UUID `json:"parent_column_id" gorm:"type:uuid"`
	JunctionModelID   *uuid.UUID `json:"junction_model_id" gorm:"type:uuid"`
	JunctionParentCol *uuid.UUID `json:"junction_parent_col" gorm:"type:uuid"`
	JunctionChildCol  *uuid.UUID `json:"junction_child_col" gorm:"type:uuid"`
	CreatedAt         time.Time  `json:"created_at"`
}

// LookupColumnOption points a Lookup column at a field of the model a
// link column leads to. The target may itself be a lookup; the chain
// must terminate at a concrete column.
type LookupColumnOption struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ColumnID       uuid.UUID `json:"column_id" gorm:"type:uuid;uniqueIndex"`
	LinkColumnID   uuid.UUID `json:"link_column_id" gorm:"type:uuid"`
	LookupColumnID uuid.UUID `json:"lookup_column_id" gorm:"type:uuid"`
	CreatedAt      time.Time `json:"created_at"`
}

// RollupColumnOption aggregates a field of the linked rows.
type RollupColumnOption struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ColumnID       uuid.UUID `json:"column_id" gorm:"type:uuid;uniqueIndex"`
	LinkColumnID   uuid.UUID `json:"link_column_id" gorm:"type:uuid"`
	RollupColumnID uuid.UUID `json:"rollup_column_id" gorm:"type:uuid"`
	Function       string    `json:"function" gorm:"size:20;default:'count'"` // count, sum, min, max, avg
	CreatedAt      time.Time `json:"created_at"`
}

// =============================================================================
// VIEW MODELS
// =============================================================================

// View types.
const (
	ViewTypeGrid    = "grid"
	ViewTypeGallery = "gallery"
	ViewTypeForm    = "form"
	ViewTypeKanban  = "kanban"
)

// View represents a saved presentation of a model
type View struct {
	ID               uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ModelID          uuid.UUID `json:"model_id" gorm:"type:uuid;index"`
	Title            string    `json:"title" gorm:"not null;size:255"`
	Type             string    `json:"type" gorm:"not null;size:20"`
	IsDefault        bool      `json:"is_default" gorm:"default:false"`
	ShowSystemFields bool      `json:"show_system_fields" gorm:"default:false"`
	Order            int       `json:"order" gorm:"default:0"`
	Meta             JSONB     `json:"meta" gorm:"type:jsonb"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// Relations
	Columns []ViewColumn `json:"columns,omitempty" gorm:"foreignKey:ViewID"`
	Filters []Filter     `json:"filters,omitempty" gorm:"foreignKey:ViewID"`
	Sorts   []Sort       `json:"sorts,omitempty" gorm:"foreignKey:ViewID"`
}

// ViewColumn layers per-view show/hide/order/width on top of a Column
type ViewColumn struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ViewID    uuid.UUID `json:"view_id" gorm:"type:uuid;index"`
	ColumnID  uuid.UUID `json:"column_id" gorm:"type:uuid;index"`
	Show      bool      `json:"show" gorm:"default:true"`
	Order     int       `json:"order" gorm:"default:0"`
	Width     string    `json:"width" gorm:"size:20"`
	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// FILTER & SORT MODELS
// =============================================================================

// Filter is a node of a view's filter tree: either a leaf comparison or
// a group combining its children with LogicalOp. Order is a dense
// sequence starting at 1 within each sibling set.
type Filter struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	ViewID    *uuid.UUID `json:"view_id" gorm:"type:uuid;index"`
	ParentID  *uuid.UUID `json:"parent_id" gorm:"type:uuid;index"`
	ColumnID  *uuid.UUID `json:"column_id" gorm:"type:uuid"`
	LogicalOp string     `json:"logical_op" gorm:"size:5;default:'and'"` // and, or
	Op        string     `json:"op" gorm:"size:20"`
	Value     string     `json:"value"`
	IsGroup   bool       `json:"is_group" gorm:"default:false"`
	Order     int        `json:"order" gorm:"default:1"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Relations
	Children []Filter `json:"children,omitempty" gorm:"foreignKey:ParentID"`
}

// Sort orders a view by a column. One entry per column per view.
type Sort struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	ViewID    *uuid.UUID `json:"view_id" gorm:"type:uuid;index"`
	ColumnID  uuid.UUID  `json:"column_id" gorm:"type:uuid"`
	Direction string     `json:"direction" gorm:"size:4;default:'asc'"` // asc, desc
	Order     int        `json:"order" gorm:"default:1"`
	CreatedAt time.Time  `json:"created_at"`
}
