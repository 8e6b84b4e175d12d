// Package engine - row mutations
// Write paths validate against metadata, execute, then record audits.
// Audits are written only after the statement succeeded and carry
// actually affected counts.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/aethra/gridbase/internal/ast"
	apperrors "github.com/aethra/gridbase/internal/errors"
	"github.com/aethra/gridbase/internal/models"
	"github.com/aethra/gridbase/internal/security"
)

const bulkChunkSize = 100

// DeleteBlocked is returned when a row cannot be deleted because other
// rows still link to it. Handlers surface it as a message, not a
// failure.
type DeleteBlocked struct {
	Message string
}

func (e *DeleteBlocked) Error() string {
	return e.Message
}

// =============================================================================
// INSERT
// =============================================================================

// Insert creates one row and returns it projected through the default
// field set.
func (e *RowEngine) Insert(ctx context.Context, data map[string]interface{}) (Record, error) {
	values, err := e.writableValues(data, true)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, apperrors.NewBadRequestError("no insertable fields in payload")
	}

	row, err := e.insertRow(values)
	if err != nil {
		return nil, err
	}

	pkCol, err := e.pkColumn()
	if err != nil {
		return nil, err
	}
	pk := row[pkCol.ColumnName]

	e.deps.Audit.RowInserted(e.actx, e.model.ProjectID, e.model, pk)

	tree, err := e.deps.Builder.Build(e.model, e.view, e.roles, nil)
	if err != nil {
		return nil, err
	}
	return e.Project(ctx, tree, row)
}

// insertRow writes one physical row and returns it. Postgres and
// sqlite return it in the same statement; mysql needs a follow-up read
// inside the transaction.
func (e *RowEngine) insertRow(values map[string]interface{}) (map[string]interface{}, error) {
	table, err := e.tableName()
	if err != nil {
		return nil, err
	}

	columns := make([]string, 0, len(values))
	placeholders := make([]string, 0, len(values))
	args := make([]interface{}, 0, len(values))
	for col, val := range values {
		columns = append(columns, security.QuoteIdentifier(col))
		placeholders = append(placeholders, "?")
		args = append(args, val)
	}

	if e.db.Dialector.Name() == "mysql" {
		return e.insertRowMySQL(table, columns, placeholders, args, values)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		security.QuoteIdentifier(table), strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	rows, err := e.db.Raw(sql, args...).Rows()
	if err != nil {
		return nil, e.classifyDBError(err, "insert")
	}
	defer rows.Close()

	resultColumns, err := rows.Columns()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	if !rows.Next() {
		return nil, apperrors.NewInternalError(fmt.Errorf("insert returned no row"))
	}

	result := make(map[string]interface{})
	scanValues := make([]interface{}, len(resultColumns))
	valuePtrs := make([]interface{}, len(resultColumns))
	for i := range scanValues {
		valuePtrs[i] = &scanValues[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	for i, col := range resultColumns {
		if b, ok := scanValues[i].([]byte); ok {
			result[col] = string(b)
		} else {
			result[col] = scanValues[i]
		}
	}
	return result, nil
}

func (e *RowEngine) insertRowMySQL(table string, columns, placeholders []string, args []interface{}, values map[string]interface{}) (map[string]interface{}, error) {
	pkCol, err := e.pkColumn()
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	err = e.db.Transaction(func(tx *gorm.DB) error {
		sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			security.QuoteIdentifier(table), strings.Join(columns, ", "), strings.Join(placeholders, ", "))
		if err := tx.Exec(sql, args...).Error; err != nil {
			return e.classifyDBError(err, "insert")
		}

		pkVal, provided := values[pkCol.ColumnName]
		quotedPK := security.QuoteIdentifier(pkCol.ColumnName)
		var query *gorm.DB
		if provided {
			query = tx.Table(table).Where(quotedPK+" = ?", pkVal)
		} else {
			query = tx.Table(table).Where(quotedPK + " = LAST_INSERT_ID()")
		}

		rows, err := e.scanRows(query.Limit(1))
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return apperrors.NewInternalError(fmt.Errorf("inserted row not found"))
		}
		result = rows[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// BulkInsert creates many rows and writes a single audit entry with
// the inserted count.
func (e *RowEngine) BulkInsert(ctx context.Context, payload []map[string]interface{}) (int, error) {
	table, err := e.tableName()
	if err != nil {
		return 0, err
	}

	prepared := make([]map[string]interface{}, 0, len(payload))
	for _, data := range payload {
		values, err := e.writableValues(data, true)
		if err != nil {
			return 0, err
		}
		if len(values) == 0 {
			return 0, apperrors.NewBadRequestError("no insertable fields in payload")
		}
		prepared = append(prepared, values)
	}
	if len(prepared) == 0 {
		return 0, nil
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(prepared); start += bulkChunkSize {
			end := start + bulkChunkSize
			if end > len(prepared) {
				end = len(prepared)
			}
			chunk := prepared[start:end]
			if err := tx.Table(table).Create(chunk).Error; err != nil {
				return e.classifyDBError(err, "bulk insert")
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.deps.Audit.BulkInserted(e.actx, e.model.ProjectID, e.model, len(prepared))
	return len(prepared), nil
}

// =============================================================================
// UPDATE
// =============================================================================

// UpdateByPk updates one row and records one audit entry per field
// that actually changed.
func (e *RowEngine) UpdateByPk(ctx context.Context, pk interface{}, data map[string]interface{}) (Record, error) {
	old, err := e.readRaw(pk)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, apperrors.NewNotFoundError("record")
	}

	values, err := e.writableValues(data, false)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, apperrors.NewBadRequestError("no updatable fields in payload")
	}

	if err := e.updateRow(pk, values); err != nil {
		return nil, err
	}

	updated, err := e.readRaw(pk)
	if err != nil {
		return nil, err
	}

	for col := range values {
		if e.isTimestampColumn(col) {
			continue
		}
		oldVal, newVal := old[col], updated[col]
		if fmt.Sprintf("%v", oldVal) != fmt.Sprintf("%v", newVal) {
			if field := e.titleForColumnName(col); field != "" {
				e.deps.Audit.FieldChanged(e.actx, e.model.ProjectID, e.model, pk, field, oldVal, newVal)
			}
		}
	}

	tree, err := e.deps.Builder.Build(e.model, e.view, e.roles, nil)
	if err != nil {
		return nil, err
	}
	return e.Project(ctx, tree, updated)
}

func (e *RowEngine) updateRow(pk interface{}, values map[string]interface{}) error {
	table, err := e.tableName()
	if err != nil {
		return err
	}
	pkCol, err := e.pkColumn()
	if err != nil {
		return err
	}

	setClauses := make([]string, 0, len(values))
	args := make([]interface{}, 0, len(values)+1)
	for col, val := range values {
		setClauses = append(setClauses, security.QuoteIdentifier(col)+" = ?")
		args = append(args, val)
	}
	args = append(args, pk)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		security.QuoteIdentifier(table), strings.Join(setClauses, ", "), security.QuoteIdentifier(pkCol.ColumnName))

	result := e.db.Exec(sql, args...)
	if result.Error != nil {
		return e.classifyDBError(result.Error, "update")
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("record")
	}
	return nil
}

// BulkUpdate applies per-row updates keyed by primary key and records
// one audit entry with the count of rows that were actually touched.
func (e *RowEngine) BulkUpdate(ctx context.Context, payload []map[string]interface{}) (int, error) {
	pkCol, err := e.pkColumn()
	if err != nil {
		return 0, err
	}

	affected := 0
	for _, data := range payload {
		pk, ok := data[pkCol.Title]
		if !ok {
			pk, ok = data[pkCol.ColumnName]
		}
		if !ok || pk == nil {
			continue
		}

		values, err := e.writableValues(data, false)
		if err != nil {
			return affected, err
		}
		if len(values) == 0 {
			continue
		}

		if err := e.updateRow(pk, values); err != nil {
			if _, isNotFound := err.(*apperrors.NotFoundError); isNotFound {
				continue
			}
			return affected, err
		}
		affected++
	}

	if affected > 0 {
		e.deps.Audit.BulkUpdated(e.actx, e.model.ProjectID, e.model, affected)
	}
	return affected, nil
}

// BulkUpdateAll updates every row matching the filters in one
// statement. The audited count is the statement's affected rows; rows
// changed concurrently between building and executing are accepted.
func (e *RowEngine) BulkUpdateAll(ctx context.Context, params *ast.QueryParams, data map[string]interface{}) (int64, error) {
	values, err := e.writableValues(data, false)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, apperrors.NewBadRequestError("no updatable fields in payload")
	}

	query, err := e.baseQuery(params)
	if err != nil {
		return 0, err
	}

	// No filter means every row; lift gorm's global-update guard.
	result := query.Session(&gorm.Session{AllowGlobalUpdate: true}).Updates(values)
	if result.Error != nil {
		return 0, e.classifyDBError(result.Error, "bulk update")
	}

	if result.RowsAffected > 0 {
		e.deps.Audit.BulkUpdated(e.actx, e.model.ProjectID, e.model, int(result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// =============================================================================
// DELETE
// =============================================================================

// DelByPk deletes one row unless other rows still link to it.
func (e *RowEngine) DelByPk(ctx context.Context, pk interface{}) error {
	blocked, err := e.HasLTARData(pk)
	if err != nil {
		return err
	}
	if blocked != "" {
		return &DeleteBlocked{Message: blocked}
	}

	table, err := e.tableName()
	if err != nil {
		return err
	}
	pkCol, err := e.pkColumn()
	if err != nil {
		return err
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = ?",
		security.QuoteIdentifier(table), security.QuoteIdentifier(pkCol.ColumnName))
	result := e.db.Exec(sql, pk)
	if result.Error != nil {
		return e.classifyDBError(result.Error, "delete")
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("record")
	}

	e.deps.Audit.RowDeleted(e.actx, e.model.ProjectID, e.model, pk)
	return nil
}

// HasLTARData reports, as a human-readable message, the link columns
// still holding rows attached to the given record. Empty means the
// record is free to delete. Belongs-to links live on the record itself
// and never block.
func (e *RowEngine) HasLTARData(pk interface{}) (string, error) {
	var blocking []string

	for i := range e.model.Columns {
		col := &e.model.Columns[i]
		if col.UIDT != models.UITypeLinkToAnotherRecord {
			continue
		}
		link, err := e.deps.Meta.GetLinkOption(col.ID)
		if err != nil {
			return "", err
		}
		if link.RelationType == models.RelationBelongsTo {
			continue
		}
		related, err := e.deps.Meta.GetModel(link.RelatedModelID)
		if err != nil {
			return "", err
		}

		count, err := e.countLinked(link, related, pk)
		if err != nil {
			return "", err
		}
		if count > 0 {
			blocking = append(blocking, fmt.Sprintf("%s (%d)", col.Title, count))
		}
	}

	if len(blocking) == 0 {
		return "", nil
	}
	return fmt.Sprintf("record with id %v cannot be deleted, it is still linked through: %s",
		pk, strings.Join(blocking, ", ")), nil
}

func (e *RowEngine) countLinked(link *models.LinkColumnOption, related *models.Model, pk interface{}) (int64, error) {
	row := map[string]interface{}{}
	pkCol, err := e.pkColumn()
	if err != nil {
		return 0, err
	}
	row[pkCol.ColumnName] = pk

	cond, args, err := e.linkCondition(link, related, row)
	if err != nil {
		return 0, err
	}
	if cond == "" {
		return 0, nil
	}

	if err := security.ValidateIdentifier(related.TableName); err != nil {
		return 0, apperrors.NewConfigurationError("invalid related table name")
	}

	var count int64
	err = e.db.Table(related.TableName).
		Where(cond, args...).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.NewInternalError(err)
	}
	return count, nil
}

// BulkDelete removes the given rows by primary key in one statement.
func (e *RowEngine) BulkDelete(ctx context.Context, pks []interface{}) (int64, error) {
	if len(pks) == 0 {
		return 0, nil
	}

	table, err := e.tableName()
	if err != nil {
		return 0, err
	}
	pkCol, err := e.pkColumn()
	if err != nil {
		return 0, err
	}

	result := e.db.Table(table).
		Where(security.QuoteIdentifier(pkCol.ColumnName)+" IN ?", pks).
		Delete(nil)
	if result.Error != nil {
		return 0, e.classifyDBError(result.Error, "bulk delete")
	}

	if result.RowsAffected > 0 {
		e.deps.Audit.BulkDeleted(e.actx, e.model.ProjectID, e.model, int(result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// BulkDeleteAll removes every row matching the filters. Same
// concurrency stance as BulkUpdateAll.
func (e *RowEngine) BulkDeleteAll(ctx context.Context, params *ast.QueryParams) (int64, error) {
	query, err := e.baseQuery(params)
	if err != nil {
		return 0, err
	}

	result := query.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(nil)
	if result.Error != nil {
		return 0, e.classifyDBError(result.Error, "bulk delete")
	}

	if result.RowsAffected > 0 {
		e.deps.Audit.BulkDeleted(e.actx, e.model.ProjectID, e.model, int(result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// =============================================================================
// LINKS
// =============================================================================

// NestedInsert creates a row together with its link cells. Implied
// links are written silently; only the insert itself is audited.
func (e *RowEngine) NestedInsert(ctx context.Context, data map[string]interface{}) (Record, error) {
	plain := make(map[string]interface{})
	links := make(map[string]interface{})

	for key, val := range data {
		col := e.model.ColumnByTitle(key)
		if col != nil && col.UIDT == models.UITypeLinkToAnotherRecord {
			links[key] = val
			continue
		}
		plain[key] = val
	}

	// Belongs-to links become foreign key cells of the row itself.
	for title, val := range links {
		col := e.model.ColumnByTitle(title)
		link, err := e.deps.Meta.GetLinkOption(col.ID)
		if err != nil {
			return nil, err
		}
		if link.RelationType != models.RelationBelongsTo {
			continue
		}
		if link.ChildColumnID == nil {
			return nil, apperrors.NewConfigurationError("belongs-to link missing key columns")
		}
		fkCol := e.model.ColumnByID(*link.ChildColumnID)
		if fkCol == nil {
			return nil, apperrors.NewConfigurationError("belongs-to link key columns missing")
		}
		plain[fkCol.Title] = linkTargetPK(val)
		delete(links, title)
	}

	record, err := e.Insert(ctx, plain)
	if err != nil {
		return nil, err
	}

	pkCol, err := e.pkColumn()
	if err != nil {
		return nil, err
	}
	pk, _ := record.Get(pkCol.Title)

	for title, val := range links {
		for _, childPK := range linkTargetPKs(val) {
			if err := e.linkChild(title, pk, childPK); err != nil {
				return nil, err
			}
		}
	}

	if len(links) == 0 {
		return record, nil
	}

	// Re-read so link cells appear in the response.
	return e.ReadByPk(ctx, pk, nil)
}

// AddChild links a child record through a link column and audits it.
func (e *RowEngine) AddChild(ctx context.Context, linkTitle string, rowID, childID interface{}) error {
	if err := e.linkChild(linkTitle, rowID, childID); err != nil {
		return err
	}
	e.deps.Audit.RecordLinked(e.actx, e.model.ProjectID, e.model, rowID, childID)
	return nil
}

// RemoveChild unlinks a child record and audits it.
func (e *RowEngine) RemoveChild(ctx context.Context, linkTitle string, rowID, childID interface{}) error {
	if err := e.unlinkChild(linkTitle, rowID, childID); err != nil {
		return err
	}
	e.deps.Audit.RecordUnlinked(e.actx, e.model.ProjectID, e.model, rowID, childID)
	return nil
}

func (e *RowEngine) resolveLink(linkTitle string) (*models.Column, *models.LinkColumnOption, *models.Model, error) {
	col := e.model.ColumnByTitle(linkTitle)
	if col == nil || col.UIDT != models.UITypeLinkToAnotherRecord {
		return nil, nil, nil, apperrors.NewNotFoundError("link field")
	}
	if !e.visibleColumn(col) {
		return nil, nil, nil, apperrors.NewNotFoundError("link field")
	}
	link, err := e.deps.Meta.GetLinkOption(col.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	related, err := e.deps.Meta.GetModel(link.RelatedModelID)
	if err != nil {
		return nil, nil, nil, err
	}
	return col, link, related, nil
}

func (e *RowEngine) linkChild(linkTitle string, rowID, childID interface{}) error {
	_, link, related, err := e.resolveLink(linkTitle)
	if err != nil {
		return err
	}

	switch link.RelationType {
	case models.RelationHasMany:
		return e.setChildFK(link, related, childID, rowID)

	case models.RelationBelongsTo:
		if link.ChildColumnID == nil {
			return apperrors.NewConfigurationError("belongs-to link missing key columns")
		}
		fkCol := e.model.ColumnByID(*link.ChildColumnID)
		if fkCol == nil {
			return apperrors.NewConfigurationError("belongs-to link key columns missing")
		}
		return e.updateRow(rowID, map[string]interface{}{fkCol.ColumnName: childID})

	case models.RelationManyToMany:
		return e.insertJunctionRow(link, rowID, childID)

	default:
		return apperrors.NewConfigurationError("unknown relation type " + link.RelationType)
	}
}

func (e *RowEngine) unlinkChild(linkTitle string, rowID, childID interface{}) error {
	_, link, related, err := e.resolveLink(linkTitle)
	if err != nil {
		return err
	}

	switch link.RelationType {
	case models.RelationHasMany:
		return e.setChildFK(link, related, childID, nil)

	case models.RelationBelongsTo:
		if link.ChildColumnID == nil {
			return apperrors.NewConfigurationError("belongs-to link missing key columns")
		}
		fkCol := e.model.ColumnByID(*link.ChildColumnID)
		if fkCol == nil {
			return apperrors.NewConfigurationError("belongs-to link key columns missing")
		}
		return e.updateRow(rowID, map[string]interface{}{fkCol.ColumnName: nil})

	case models.RelationManyToMany:
		return e.deleteJunctionRow(link, rowID, childID)

	default:
		return apperrors.NewConfigurationError("unknown relation type " + link.RelationType)
	}
}

func (e *RowEngine) setChildFK(link *models.LinkColumnOption, related *models.Model, childPK, value interface{}) error {
	if link.ChildColumnID == nil {
		return apperrors.NewConfigurationError("has-many link missing child column")
	}
	childCol := related.ColumnByID(*link.ChildColumnID)
	relatedPK := related.PrimaryKeyColumn()
	if childCol == nil || relatedPK == nil {
		return apperrors.NewConfigurationError("has-many child column missing on related table")
	}
	if err := security.ValidateIdentifier(related.TableName); err != nil {
		return apperrors.NewConfigurationError("invalid related table name")
	}

	sql := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?",
		security.QuoteIdentifier(related.TableName),
		security.QuoteIdentifier(childCol.ColumnName),
		security.QuoteIdentifier(relatedPK.ColumnName))
	result := e.db.Exec(sql, value, childPK)
	if result.Error != nil {
		return e.classifyDBError(result.Error, "link")
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("linked record")
	}
	return nil
}

func (e *RowEngine) insertJunctionRow(link *models.LinkColumnOption, rowID, childID interface{}) error {
	junction, parentFK, childFK, err := e.junctionParts(link)
	if err != nil {
		return err
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?)",
		security.QuoteIdentifier(junction.TableName),
		security.QuoteIdentifier(parentFK.ColumnName),
		security.QuoteIdentifier(childFK.ColumnName))
	if err := e.db.Exec(sql, rowID, childID).Error; err != nil {
		return e.classifyDBError(err, "link")
	}
	return nil
}

func (e *RowEngine) deleteJunctionRow(link *models.LinkColumnOption, rowID, childID interface{}) error {
	junction, parentFK, childFK, err := e.junctionParts(link)
	if err != nil {
		return err
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?",
		security.QuoteIdentifier(junction.TableName),
		security.QuoteIdentifier(parentFK.ColumnName),
		security.QuoteIdentifier(childFK.ColumnName))
	if err := e.db.Exec(sql, rowID, childID).Error; err != nil {
		return e.classifyDBError(err, "unlink")
	}
	return nil
}

func (e *RowEngine) junctionParts(link *models.LinkColumnOption) (*models.Model, *models.Column, *models.Column, error) {
	if link.JunctionModelID == nil || link.JunctionParentCol == nil || link.JunctionChildCol == nil {
		return nil, nil, nil, apperrors.NewConfigurationError("many-many link missing junction wiring")
	}
	junction, err := e.deps.Meta.GetModel(*link.JunctionModelID)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := security.ValidateIdentifier(junction.TableName); err != nil {
		return nil, nil, nil, apperrors.NewConfigurationError("invalid junction table name")
	}
	parentFK := junction.ColumnByID(*link.JunctionParentCol)
	childFK := junction.ColumnByID(*link.JunctionChildCol)
	if parentFK == nil || childFK == nil {
		return nil, nil, nil, apperrors.NewConfigurationError("junction key columns missing")
	}
	return junction, parentFK, childFK, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// writableValues maps payload field titles to physical column values,
// dropping virtual, denied and unknown fields. Timestamp columns are
// stamped by the platform.
func (e *RowEngine) writableValues(data map[string]interface{}, isInsert bool) (map[string]interface{}, error) {
	values := make(map[string]interface{})

	for i := range e.model.Columns {
		col := &e.model.Columns[i]
		if col.UIDT.IsVirtual() {
			continue
		}
		if !e.visibleColumn(col) {
			continue
		}
		if col.UIDT == models.UITypeCreateTime || col.UIDT == models.UITypeLastModifiedTime {
			continue
		}
		if err := security.ValidateIdentifier(col.ColumnName); err != nil {
			continue
		}

		value, exists := data[col.Title]
		if !exists {
			// Writes may also address physical column names.
			value, exists = data[col.ColumnName]
		}
		if !exists {
			if isInsert && col.IsRequired && !col.IsPrimaryKey {
				return nil, apperrors.NewValidationError(col.Title, fmt.Sprintf("field '%s' is required", col.Title))
			}
			continue
		}

		values[col.ColumnName] = value
	}

	now := time.Now()
	for i := range e.model.Columns {
		col := &e.model.Columns[i]
		switch col.UIDT {
		case models.UITypeCreateTime:
			if isInsert {
				values[col.ColumnName] = now
			}
		case models.UITypeLastModifiedTime:
			values[col.ColumnName] = now
		}
	}

	return values, nil
}

func (e *RowEngine) isTimestampColumn(columnName string) bool {
	for i := range e.model.Columns {
		col := &e.model.Columns[i]
		if col.ColumnName != columnName {
			continue
		}
		return col.UIDT == models.UITypeCreateTime || col.UIDT == models.UITypeLastModifiedTime
	}
	return false
}

func (e *RowEngine) titleForColumnName(columnName string) string {
	for i := range e.model.Columns {
		if e.model.Columns[i].ColumnName == columnName {
			return e.model.Columns[i].Title
		}
	}
	return ""
}

// classifyDBError maps driver constraint violations to bad requests;
// everything else is internal and logged with full detail.
func (e *RowEngine) classifyDBError(err error, op string) error {
	if pqErr, ok := err.(*pq.Error); ok {
		if strings.HasPrefix(string(pqErr.Code), "23") {
			return apperrors.NewBadRequestError(pqErr.Message)
		}
	}
	if myErr, ok := err.(*mysql.MySQLError); ok {
		switch myErr.Number {
		case 1062, 1451, 1452, 1048:
			return apperrors.NewBadRequestError(myErr.Message)
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "constraint") {
		return apperrors.NewBadRequestError(err.Error())
	}

	e.log.Error().Err(err).Str("op", op).Msg("statement failed")
	return apperrors.NewInternalError(err)
}

// linkTargetPK extracts a primary key from a nested link payload: a
// scalar, or an object carrying an "id".
func linkTargetPK(val interface{}) interface{} {
	if m, ok := val.(map[string]interface{}); ok {
		if id, ok := m["id"]; ok {
			return id
		}
		if id, ok := m["Id"]; ok {
			return id
		}
		return nil
	}
	return val
}

// linkTargetPKs extracts primary keys from an array-valued link payload.
func linkTargetPKs(val interface{}) []interface{} {
	switch v := val.(type) {
	case []interface{}:
		out := make([]interface{}, 0, len(v))
		for _, item := range v {
			if pk := linkTargetPK(item); pk != nil {
				out = append(out, pk)
			}
		}
		return out
	case nil:
		return nil
	default:
		if pk := linkTargetPK(v); pk != nil {
			return []interface{}{pk}
		}
		return nil
	}
}
