// Package engine - result projection
// The projector turns scanned physical rows into response records
// shaped by the AST: same fields, same order, virtual columns resolved.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aethra/gridbase/internal/ast"
	apperrors "github.com/aethra/gridbase/internal/errors"
	"github.com/aethra/gridbase/internal/models"
	"github.com/aethra/gridbase/internal/security"
)

// Linked rows nested under a record are capped independently of the
// listing's own page size.
const nestedLimit = 25

// CellTransform rewrites a projected cell after read, e.g. signing
// attachment URLs. It sees the column and the raw cell value.
type CellTransform func(col *models.Column, value interface{}) interface{}

// Field is one projected cell.
type Field struct {
	Key   string
	Value interface{}
}

// Record is an ordered set of projected fields. It marshals to a JSON
// object whose key order matches the AST.
type Record []Field

// Get returns the value for a key, for callers that need lookup.
func (r Record) Get(key string) (interface{}, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// MarshalJSON writes the fields in order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Project shapes one physical row by the AST. A nil row projects to an
// empty record, which marshals to {}.
func (e *RowEngine) Project(ctx context.Context, tree *ast.Ast, row map[string]interface{}) (Record, error) {
	if row == nil {
		return Record{}, nil
	}

	out := make(Record, 0, len(tree.Nodes))
	for _, node := range tree.Nodes {
		value, err := e.projectNode(ctx, &node, row)
		if err != nil {
			return nil, err
		}
		if e.deps.Transform != nil {
			value = e.deps.Transform(&node.Column, value)
		}
		out = append(out, Field{Key: node.Title, Value: value})
	}
	return out, nil
}

// ProjectList shapes a page of rows.
func (e *RowEngine) ProjectList(ctx context.Context, tree *ast.Ast, rows []map[string]interface{}) ([]Record, error) {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := e.Project(ctx, tree, row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (e *RowEngine) projectNode(ctx context.Context, node *ast.Node, row map[string]interface{}) (interface{}, error) {
	switch node.Column.UIDT {
	case models.UITypeLinkToAnotherRecord:
		return e.projectLink(ctx, node, row)
	case models.UITypeLookup:
		return e.projectLookup(ctx, node, row)
	case models.UITypeRollup:
		return e.projectRollup(node, row)
	case models.UITypeFormula:
		return e.projectFormula(node, row), nil
	case models.UITypeBarcode, models.UITypeQrCode:
		return e.projectCodeValue(node, row), nil
	default:
		return row[node.Column.ColumnName], nil
	}
}

// projectLink resolves a LinkToAnotherRecord cell lazily through a
// child engine: bt yields one nested record or nil, hm and mm a capped
// list.
func (e *RowEngine) projectLink(ctx context.Context, node *ast.Node, row map[string]interface{}) (interface{}, error) {
	child, err := e.child(ctx, node.RelatedModel)
	if err != nil {
		return nil, err
	}

	linked, err := e.linkedRows(node.Link, node.RelatedModel, row, nestedLimit)
	if err != nil {
		return nil, err
	}

	if node.Link.RelationType == models.RelationBelongsTo {
		if len(linked) == 0 {
			return nil, nil
		}
		return child.Project(ctx, node.Nested, linked[0])
	}

	return child.ProjectList(ctx, node.Nested, linked)
}

// projectLookup walks the resolved chain row set by row set and
// collects the target column's values at the end.
func (e *RowEngine) projectLookup(ctx context.Context, node *ast.Node, row map[string]interface{}) (interface{}, error) {
	current := []map[string]interface{}{row}
	engine := e
	singular := true

	for _, hop := range node.Lookup.Chain {
		var next []map[string]interface{}
		for _, r := range current {
			linked, err := engine.linkedRows(&hop.Link, hop.Model, r, nestedLimit)
			if err != nil {
				return nil, err
			}
			next = append(next, linked...)
		}
		if hop.Link.RelationType != models.RelationBelongsTo {
			singular = false
		}
		current = next

		var err error
		engine, err = engine.child(ctx, hop.Model)
		if err != nil {
			return nil, err
		}
	}

	values := make([]interface{}, 0, len(current))
	for _, r := range current {
		values = append(values, r[node.Lookup.Target.ColumnName])
	}

	if singular {
		if len(values) == 0 {
			return nil, nil
		}
		return values[0], nil
	}
	return values, nil
}

// projectRollup aggregates in SQL on the related table.
func (e *RowEngine) projectRollup(node *ast.Node, row map[string]interface{}) (interface{}, error) {
	fn := strings.ToLower(node.Rollup.Function)
	switch fn {
	case "count", "sum", "min", "max", "avg":
	default:
		return nil, apperrors.NewConfigurationError("unsupported rollup function " + node.Rollup.Function)
	}

	if err := security.ValidateIdentifier(node.Rollup.RelatedModel.TableName); err != nil {
		return nil, apperrors.NewConfigurationError("invalid related table name")
	}
	targetCol := node.Rollup.Target.ColumnName
	if err := security.ValidateIdentifier(targetCol); err != nil {
		return nil, apperrors.NewConfigurationError("invalid rollup target column")
	}

	cond, arg, err := e.linkCondition(&node.Rollup.Link, node.Rollup.RelatedModel, row)
	if err != nil {
		return nil, err
	}
	if cond == "" {
		if fn == "count" {
			return int64(0), nil
		}
		return nil, nil
	}

	expr := fmt.Sprintf("%s(%s)", strings.ToUpper(fn), security.QuoteIdentifier(targetCol))
	if fn == "count" {
		expr = "COUNT(*)"
	}

	var result interface{}
	query := e.db.Table(node.Rollup.RelatedModel.TableName).
		Select(expr).
		Where(cond, arg...)
	rows, err := query.Rows()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&result); err != nil {
			return nil, apperrors.NewInternalError(err)
		}
	}
	if b, ok := result.([]byte); ok {
		return string(b), nil
	}
	return result, nil
}

// projectFormula substitutes {Field} tokens in the stored expression
// with the row's cell values and returns the rendered string.
func (e *RowEngine) projectFormula(node *ast.Node, row map[string]interface{}) interface{} {
	raw, _ := node.Column.Meta["formula_raw"].(string)
	if raw == "" {
		return nil
	}
	rendered := raw
	for i := range e.model.Columns {
		col := &e.model.Columns[i]
		if col.UIDT.IsVirtual() {
			continue
		}
		token := "{" + col.Title + "}"
		if strings.Contains(rendered, token) {
			rendered = strings.ReplaceAll(rendered, token, CellToString(row[col.ColumnName]))
		}
	}
	return rendered
}

// projectCodeValue returns the payload a barcode or QR cell encodes:
// the value of the column named in the options.
func (e *RowEngine) projectCodeValue(node *ast.Node, row map[string]interface{}) interface{} {
	ref, _ := node.Column.Meta["value_column"].(string)
	if ref == "" {
		return nil
	}
	src := e.model.ColumnByTitle(ref)
	if src == nil || src.UIDT.IsVirtual() {
		return nil
	}
	return CellToString(row[src.ColumnName])
}

// =============================================================================
// LINK TRAVERSAL
// =============================================================================

// linkedRows fetches the rows a link cell points at.
func (e *RowEngine) linkedRows(link *models.LinkColumnOption, related *models.Model, row map[string]interface{}, limit int) ([]map[string]interface{}, error) {
	if err := security.ValidateIdentifier(related.TableName); err != nil {
		return nil, apperrors.NewConfigurationError("invalid related table name")
	}

	cond, args, err := e.linkCondition(link, related, row)
	if err != nil {
		return nil, err
	}
	if cond == "" {
		return nil, nil
	}

	query := e.db.Table(related.TableName).Where(cond, args...)
	if pk := related.PrimaryKeyColumn(); pk != nil {
		query = query.Order(security.QuoteIdentifier(pk.ColumnName) + " ASC")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	return e.scanRows(query)
}

// linkCondition builds the WHERE clause selecting a link's target rows
// relative to one source row. An empty condition means the cell is
// empty (e.g. a null foreign key).
func (e *RowEngine) linkCondition(link *models.LinkColumnOption, related *models.Model, row map[string]interface{}) (string, []interface{}, error) {
	switch link.RelationType {
	case models.RelationBelongsTo:
		if link.ChildColumnID == nil || link.ParentColumnID == nil {
			return "", nil, apperrors.NewConfigurationError("belongs-to link missing key columns")
		}
		fkCol := e.model.ColumnByID(*link.ChildColumnID)
		parentCol := related.ColumnByID(*link.ParentColumnID)
		if fkCol == nil || parentCol == nil {
			return "", nil, apperrors.NewConfigurationError("belongs-to link key columns missing")
		}
		fkVal := row[fkCol.ColumnName]
		if fkVal == nil {
			return "", nil, nil
		}
		return security.QuoteIdentifier(parentCol.ColumnName) + " = ?", []interface{}{fkVal}, nil

	case models.RelationHasMany:
		if link.ChildColumnID == nil {
			return "", nil, apperrors.NewConfigurationError("has-many link missing child column")
		}
		childCol := related.ColumnByID(*link.ChildColumnID)
		if childCol == nil {
			return "", nil, apperrors.NewConfigurationError("has-many child column missing on related table")
		}
		pk, err := e.pkColumn()
		if err != nil {
			return "", nil, err
		}
		pkVal := row[pk.ColumnName]
		if pkVal == nil {
			return "", nil, nil
		}
		return security.QuoteIdentifier(childCol.ColumnName) + " = ?", []interface{}{pkVal}, nil

	case models.RelationManyToMany:
		return e.junctionCondition(link, related, row)

	default:
		return "", nil, apperrors.NewConfigurationError("unknown relation type " + link.RelationType)
	}
}

// junctionCondition selects related rows through the junction table
// with an IN subquery on the junction's child foreign key.
func (e *RowEngine) junctionCondition(link *models.LinkColumnOption, related *models.Model, row map[string]interface{}) (string, []interface{}, error) {
	if link.JunctionModelID == nil || link.JunctionParentCol == nil || link.JunctionChildCol == nil {
		return "", nil, apperrors.NewConfigurationError("many-many link missing junction wiring")
	}

	junction, err := e.deps.Meta.GetModel(*link.JunctionModelID)
	if err != nil {
		return "", nil, err
	}
	if err := security.ValidateIdentifier(junction.TableName); err != nil {
		return "", nil, apperrors.NewConfigurationError("invalid junction table name")
	}
	parentFK := junction.ColumnByID(*link.JunctionParentCol)
	childFK := junction.ColumnByID(*link.JunctionChildCol)
	if parentFK == nil || childFK == nil {
		return "", nil, apperrors.NewConfigurationError("junction key columns missing")
	}

	pk, err := e.pkColumn()
	if err != nil {
		return "", nil, err
	}
	pkVal := row[pk.ColumnName]
	if pkVal == nil {
		return "", nil, nil
	}

	relatedPK := related.PrimaryKeyColumn()
	if relatedPK == nil {
		return "", nil, apperrors.NewConfigurationError("related table has no primary key")
	}

	cond := fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s = ?)",
		security.QuoteIdentifier(relatedPK.ColumnName),
		security.QuoteIdentifier(childFK.ColumnName),
		security.QuoteIdentifier(junction.TableName),
		security.QuoteIdentifier(parentFK.ColumnName))
	return cond, []interface{}{pkVal}, nil
}

// =============================================================================
// DISPLAY SERIALIZATION
// =============================================================================

// CellToString renders a cell for display surfaces such as exports.
func CellToString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}
