// Package engine - physical table management
// Creates and alters the real tables behind models when the meta API
// changes the schema.
package engine

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	apperrors "github.com/aethra/gridbase/internal/errors"
	"github.com/aethra/gridbase/internal/models"
	"github.com/aethra/gridbase/internal/security"
)

// TableManager issues DDL for model tables.
type TableManager struct {
	db *gorm.DB
}

// NewTableManager creates a table manager on the given base handle.
func NewTableManager(db *gorm.DB) *TableManager {
	return &TableManager{db: db}
}

// CreateModelTable creates the physical table for a model. Virtual
// columns get no storage.
func (tm *TableManager) CreateModelTable(model *models.Model, columns []models.Column) error {
	tableName, err := security.SafeIdentifier(model.TableName)
	if err != nil {
		return apperrors.NewBadRequestError(fmt.Sprintf("invalid table name: %v", err))
	}

	var defs []string
	for i := range columns {
		def, err := tm.columnDefinition(&columns[i])
		if err != nil {
			return err
		}
		if def != "" {
			defs = append(defs, def)
		}
	}
	if len(defs) == 0 {
		return apperrors.NewBadRequestError("table needs at least one stored column")
	}

	sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", tableName, strings.Join(defs, ",\n  "))

	return tm.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(sql).Error; err != nil {
			return apperrors.NewInternalError(fmt.Errorf("failed to create table %s: %w", tableName, err))
		}
		return tm.createIndexes(tx, model.TableName, columns)
	})
}

// AddColumn adds a stored column to an existing model table.
func (tm *TableManager) AddColumn(model *models.Model, col *models.Column) error {
	if col.UIDT.IsVirtual() {
		return nil
	}

	tableName, err := security.SafeIdentifier(model.TableName)
	if err != nil {
		return apperrors.NewBadRequestError(fmt.Sprintf("invalid table name: %v", err))
	}
	def, err := tm.columnDefinition(col)
	if err != nil {
		return err
	}
	if def == "" {
		return nil
	}

	sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", tableName, def)
	if err := tm.db.Exec(sql).Error; err != nil {
		return apperrors.NewInternalError(fmt.Errorf("failed to add column: %w", err))
	}
	return nil
}

// DropColumn removes a stored column from a model table.
func (tm *TableManager) DropColumn(model *models.Model, col *models.Column) error {
	if col.UIDT.IsVirtual() {
		return nil
	}

	tableName, err := security.SafeIdentifier(model.TableName)
	if err != nil {
		return apperrors.NewBadRequestError(fmt.Sprintf("invalid table name: %v", err))
	}
	columnName, err := security.SafeIdentifier(col.ColumnName)
	if err != nil {
		return apperrors.NewBadRequestError(fmt.Sprintf("invalid column name: %v", err))
	}

	sql := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", tableName, columnName)
	if err := tm.db.Exec(sql).Error; err != nil {
		return apperrors.NewInternalError(fmt.Errorf("failed to drop column: %w", err))
	}
	return nil
}

// DropModelTable drops a model's physical table.
func (tm *TableManager) DropModelTable(model *models.Model) error {
	tableName, err := security.SafeIdentifier(model.TableName)
	if err != nil {
		return apperrors.NewBadRequestError(fmt.Sprintf("invalid table name: %v", err))
	}

	sql := fmt.Sprintf("DROP TABLE IF EXISTS %s", tableName)
	if err := tm.db.Exec(sql).Error; err != nil {
		return apperrors.NewInternalError(fmt.Errorf("failed to drop table: %w", err))
	}
	return nil
}

func (tm *TableManager) columnDefinition(col *models.Column) (string, error) {
	if col.UIDT.IsVirtual() {
		return "", nil
	}

	columnName, err := security.SafeIdentifier(col.ColumnName)
	if err != nil {
		return "", apperrors.NewBadRequestError(fmt.Sprintf("invalid column name: %v", err))
	}

	columnType := col.DataType
	if columnType == "" {
		columnType = tm.mapUITypeToSQL(col.UIDT)
	}

	def := fmt.Sprintf("%s %s", columnName, columnType)

	if col.IsPrimaryKey {
		if col.UIDT == models.UITypeID {
			switch tm.db.Dialector.Name() {
			case "postgres":
				return fmt.Sprintf("%s BIGSERIAL PRIMARY KEY", columnName), nil
			case "sqlite":
				return fmt.Sprintf("%s INTEGER PRIMARY KEY AUTOINCREMENT", columnName), nil
			case "mysql":
				return fmt.Sprintf("%s BIGINT AUTO_INCREMENT PRIMARY KEY", columnName), nil
			}
		}
		def += " PRIMARY KEY"
		return def, nil
	}

	if col.IsRequired {
		def += " NOT NULL"
	}
	if col.IsUnique {
		def += " UNIQUE"
	}

	return def, nil
}

func (tm *TableManager) mapUITypeToSQL(t models.UIType) string {
	switch t {
	case models.UITypeID:
		return "BIGINT"
	case models.UITypeNumber:
		return "BIGINT"
	case models.UITypeDecimal:
		return "NUMERIC(15,2)"
	case models.UITypeCheckbox:
		return "BOOLEAN"
	case models.UITypeDate:
		return "DATE"
	case models.UITypeDateTime, models.UITypeCreateTime, models.UITypeLastModifiedTime:
		return "TIMESTAMP"
	case models.UITypeLongText:
		return "TEXT"
	case models.UITypeJSON, models.UITypeAttachment:
		if tm.db.Dialector.Name() == "postgres" {
			return "JSONB"
		}
		return "TEXT"
	case models.UITypeForeignKey:
		return "BIGINT"
	default:
		return "VARCHAR(255)"
	}
}

func (tm *TableManager) createIndexes(tx *gorm.DB, tableName string, columns []models.Column) error {
	quotedTable := security.QuoteIdentifier(tableName)

	for i := range columns {
		col := &columns[i]
		if col.UIDT.IsVirtual() || col.IsPrimaryKey {
			continue
		}
		if col.UIDT != models.UITypeForeignKey && !col.IsUnique {
			continue
		}

		if err := security.ValidateIdentifier(col.ColumnName); err != nil {
			continue
		}
		indexName := fmt.Sprintf("idx_%s_%s", tableName, col.ColumnName)
		if err := security.ValidateIdentifier(indexName); err != nil {
			continue
		}

		unique := ""
		if col.IsUnique {
			unique = "UNIQUE "
		}
		sql := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s(%s)",
			unique,
			security.QuoteIdentifier(indexName),
			quotedTable,
			security.QuoteIdentifier(col.ColumnName))
		if err := tx.Exec(sql).Error; err != nil {
			return apperrors.NewInternalError(err)
		}
	}
	return nil
}
