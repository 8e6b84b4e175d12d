// Package engine - Row Engine
// Executes all dynamic row operations for one model, driven by table
// metadata instead of generated code.
package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/aethra/gridbase/internal/ast"
	"github.com/aethra/gridbase/internal/audit"
	"github.com/aethra/gridbase/internal/auth"
	"github.com/aethra/gridbase/internal/config"
	apperrors "github.com/aethra/gridbase/internal/errors"
	"github.com/aethra/gridbase/internal/meta"
	"github.com/aethra/gridbase/internal/models"
	"github.com/aethra/gridbase/internal/security"
)

// Deps bundles the shared collaborators a RowEngine needs.
type Deps struct {
	Meta    *meta.Store
	Bases   *BaseManager
	Builder *ast.Builder
	Audit   *audit.Recorder
	Data    config.DataConfig
	Log     zerolog.Logger

	// Transform, when set, rewrites projected cells after read. The
	// attachment URL signer hangs off this hook.
	Transform CellTransform
}

// RowEngine executes row operations for one model on behalf of one
// caller. It is cheap to construct and built per request.
type RowEngine struct {
	deps  Deps
	db    *gorm.DB
	model *models.Model
	view  *models.View
	roles auth.RoleSet
	actx  audit.Ctx
	log   zerolog.Logger
}

// New creates a row engine bound to a model, an optional view, and the
// caller's roles.
func New(ctx context.Context, deps Deps, model *models.Model, view *models.View, roles auth.RoleSet, actx audit.Ctx) (*RowEngine, error) {
	db, err := deps.Bases.ForModel(ctx, model)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &RowEngine{
		deps:  deps,
		db:    db,
		model: model,
		view:  view,
		roles: roles,
		actx:  actx,
		log:   deps.Log.With().Str("component", "engine").Str("table", model.TableName).Logger(),
	}, nil
}

// Model returns the engine's model.
func (e *RowEngine) Model() *models.Model {
	return e.model
}

// child builds an engine for a related model, inheriting the caller.
func (e *RowEngine) child(ctx context.Context, model *models.Model) (*RowEngine, error) {
	return New(ctx, e.deps, model, nil, e.roles, e.actx)
}

// =============================================================================
// PAGINATION
// =============================================================================

// PageInfo describes a page of a listing.
type PageInfo struct {
	TotalRows   int64 `json:"totalRows"`
	Page        int   `json:"page"`
	PageSize    int   `json:"pageSize"`
	IsFirstPage bool  `json:"isFirstPage"`
	IsLastPage  bool  `json:"isLastPage"`
}

// PagedResponse is the list envelope.
type PagedResponse struct {
	List     []Record `json:"list"`
	PageInfo PageInfo `json:"pageInfo"`
}

// NewPageInfo derives page numbers from limit/offset.
func NewPageInfo(total int64, limit, offset int) PageInfo {
	if limit < 1 {
		limit = 1
	}
	page := offset/limit + 1
	return PageInfo{
		TotalRows:   total,
		Page:        page,
		PageSize:    limit,
		IsFirstPage: offset == 0,
		IsLastPage:  int64(offset+limit) >= total,
	}
}

// clampLimit applies the default and the configured ceiling. The floor
// of 1 keeps a zeroed list-limit config from emptying every page.
func (e *RowEngine) clampLimit(limit int) int {
	if limit <= 0 {
		limit = e.deps.Data.ListLimit
	}
	if max := e.deps.Data.ListMaxLimit; max > 0 && limit > max {
		limit = max
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// =============================================================================
// QUERY SKELETON
// =============================================================================

// tableName validates the model's physical table name and returns it
// bare: gorm's clause builders quote per dialect, so only the raw SQL
// call sites quote it themselves.
func (e *RowEngine) tableName() (string, error) {
	if err := security.ValidateIdentifier(e.model.TableName); err != nil {
		return "", apperrors.NewConfigurationError(fmt.Sprintf("invalid table name: %v", err))
	}
	return e.model.TableName, nil
}

func (e *RowEngine) pkColumn() (*models.Column, error) {
	pk := e.model.PrimaryKeyColumn()
	if pk == nil {
		return nil, apperrors.NewConfigurationError("table has no primary key column")
	}
	return pk, nil
}

// baseQuery builds the filtered, unsorted query: view filters first,
// then request filters, both through the same compiler.
func (e *RowEngine) baseQuery(params *ast.QueryParams) (*gorm.DB, error) {
	table, err := e.tableName()
	if err != nil {
		return nil, err
	}

	query := e.db.Table(table)

	if e.view != nil && len(e.view.Filters) > 0 {
		cond, args, err := e.compileViewFilters(e.view.Filters)
		if err != nil {
			return nil, err
		}
		if cond != "" {
			query = query.Where(cond, args...)
		}
	}

	if params != nil && len(params.Filters) > 0 {
		cond, args, err := e.compileFilterSpecs(params.Filters)
		if err != nil {
			return nil, err
		}
		if cond != "" {
			query = query.Where(cond, args...)
		}
	}

	return query, nil
}

// applySorts layers view sorts then request sorts; the fallback is a
// stable order on the primary key.
func (e *RowEngine) applySorts(query *gorm.DB, params *ast.QueryParams) (*gorm.DB, error) {
	sorted := false

	if e.view != nil {
		for _, s := range e.view.Sorts {
			col := e.model.ColumnByID(s.ColumnID)
			clause, ok := e.sortClause(col, s.Direction)
			if !ok {
				continue
			}
			query = query.Order(clause)
			sorted = true
		}
	}

	if params != nil {
		for _, s := range params.Sorts {
			col := e.resolveSpecColumn(s.FkColumnID, s.Field)
			clause, ok := e.sortClause(col, s.Direction)
			if !ok {
				continue
			}
			query = query.Order(clause)
			sorted = true
		}
	}

	if !sorted {
		pk, err := e.pkColumn()
		if err != nil {
			return nil, err
		}
		query = query.Order(security.QuoteIdentifier(pk.ColumnName) + " ASC")
	}

	return query, nil
}

func (e *RowEngine) sortClause(col *models.Column, direction string) (string, bool) {
	if col == nil || col.UIDT.IsVirtual() {
		return "", false
	}
	if !e.columnUsable(col) {
		return "", false
	}
	dir := "ASC"
	if direction == "desc" {
		dir = "DESC"
	}
	return security.QuoteIdentifier(col.ColumnName) + " " + dir, true
}

// columnUsable gates filter/sort columns the same way projection is
// gated: a denied column cannot be probed through ordering either.
func (e *RowEngine) columnUsable(col *models.Column) bool {
	if err := security.ValidateIdentifier(col.ColumnName); err != nil {
		return false
	}
	return e.visibleColumn(col)
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// List returns one page of projected rows.
func (e *RowEngine) List(ctx context.Context, params *ast.QueryParams) (*PagedResponse, error) {
	tree, err := e.deps.Builder.Build(e.model, e.view, e.roles, params)
	if err != nil {
		return nil, err
	}

	query, err := e.baseQuery(params)
	if err != nil {
		return nil, err
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		e.log.Error().Err(err).Msg("count failed")
		return nil, apperrors.NewInternalError(err)
	}

	query, err = e.applySorts(query, params)
	if err != nil {
		return nil, err
	}

	limit := e.clampLimit(paramLimit(params))
	offset := paramOffset(params)
	query = query.Limit(limit).Offset(offset)

	rows, err := e.scanRows(query)
	if err != nil {
		return nil, err
	}

	list, err := e.ProjectList(ctx, tree, rows)
	if err != nil {
		return nil, err
	}

	return &PagedResponse{List: list, PageInfo: NewPageInfo(total, limit, offset)}, nil
}

// Count returns the number of rows matching the filters.
func (e *RowEngine) Count(params *ast.QueryParams) (int64, error) {
	query, err := e.baseQuery(params)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		e.log.Error().Err(err).Msg("count failed")
		return 0, apperrors.NewInternalError(err)
	}
	return total, nil
}

// FindOne returns the first row matching the filters, or nil.
func (e *RowEngine) FindOne(ctx context.Context, params *ast.QueryParams) (Record, error) {
	tree, err := e.deps.Builder.Build(e.model, e.view, e.roles, params)
	if err != nil {
		return nil, err
	}

	query, err := e.baseQuery(params)
	if err != nil {
		return nil, err
	}
	query, err = e.applySorts(query, params)
	if err != nil {
		return nil, err
	}

	rows, err := e.scanRows(query.Limit(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return e.Project(ctx, tree, nil)
	}
	return e.Project(ctx, tree, rows[0])
}

// ReadByPk returns one row by primary key, projected through the
// requested (or default) field set.
func (e *RowEngine) ReadByPk(ctx context.Context, pk interface{}, params *ast.QueryParams) (Record, error) {
	tree, err := e.deps.Builder.Build(e.model, e.view, e.roles, params)
	if err != nil {
		return nil, err
	}

	row, err := e.readRaw(pk)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apperrors.NewNotFoundError("record")
	}
	return e.Project(ctx, tree, row)
}

// Exist reports whether a row with the given primary key exists.
func (e *RowEngine) Exist(pk interface{}) (bool, error) {
	table, err := e.tableName()
	if err != nil {
		return false, err
	}
	pkCol, err := e.pkColumn()
	if err != nil {
		return false, err
	}

	var count int64
	err = e.db.Table(table).
		Where(security.QuoteIdentifier(pkCol.ColumnName)+" = ?", pk).
		Count(&count).Error
	if err != nil {
		e.log.Error().Err(err).Msg("exist probe failed")
		return false, apperrors.NewInternalError(err)
	}
	return count > 0, nil
}

// readRaw fetches one physical row by pk without projection, or nil.
func (e *RowEngine) readRaw(pk interface{}) (map[string]interface{}, error) {
	table, err := e.tableName()
	if err != nil {
		return nil, err
	}
	pkCol, err := e.pkColumn()
	if err != nil {
		return nil, err
	}

	rows, err := e.scanRows(e.db.Table(table).
		Where(security.QuoteIdentifier(pkCol.ColumnName)+" = ?", pk).
		Limit(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// =============================================================================
// GROUPING
// =============================================================================

// GroupByEntry is one bucket of a group-by aggregation.
type GroupByEntry struct {
	Key   interface{} `json:"key"`
	Count int64       `json:"count"`
}

// GroupBy buckets rows by a column's value, largest bucket first.
func (e *RowEngine) GroupBy(columnTitle string, params *ast.QueryParams) ([]GroupByEntry, error) {
	col := e.model.ColumnByTitle(columnTitle)
	if col == nil || col.UIDT.IsVirtual() || !e.columnUsable(col) {
		return nil, apperrors.NewBadRequestError("cannot group by this field")
	}

	query, err := e.baseQuery(params)
	if err != nil {
		return nil, err
	}

	quoted := security.QuoteIdentifier(col.ColumnName)
	limit := e.clampLimit(paramLimit(params))

	rows, err := query.
		Select(quoted + " AS key, COUNT(*) AS count").
		Group(col.ColumnName).
		Order("count DESC").
		Limit(limit).
		Offset(paramOffset(params)).
		Rows()
	if err != nil {
		e.log.Error().Err(err).Msg("groupby failed")
		return nil, apperrors.NewInternalError(err)
	}
	defer rows.Close()

	var out []GroupByEntry
	for rows.Next() {
		var entry GroupByEntry
		if err := rows.Scan(&entry.Key, &entry.Count); err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// GroupedEntry is one group of a grouped listing: the grouping value
// plus a page of its rows.
type GroupedEntry struct {
	Key   interface{}   `json:"key"`
	Value PagedResponse `json:"value"`
}

// GroupedList partitions the listing by a column and returns a page of
// rows per distinct value.
func (e *RowEngine) GroupedList(ctx context.Context, columnID string, params *ast.QueryParams) ([]GroupedEntry, error) {
	col := e.resolveSpecColumn(columnID, "")
	if col == nil || col.UIDT.IsVirtual() || !e.columnUsable(col) {
		return nil, apperrors.NewBadRequestError("cannot group by this field")
	}

	groups, err := e.GroupBy(col.Title, params)
	if err != nil {
		return nil, err
	}

	tree, err := e.deps.Builder.Build(e.model, e.view, e.roles, params)
	if err != nil {
		return nil, err
	}

	quoted := security.QuoteIdentifier(col.ColumnName)
	perGroup := e.clampLimit(paramLimit(params))

	out := make([]GroupedEntry, 0, len(groups))
	for _, g := range groups {
		query, err := e.baseQuery(params)
		if err != nil {
			return nil, err
		}
		if g.Key == nil {
			query = query.Where(quoted + " IS NULL")
		} else {
			query = query.Where(quoted+" = ?", g.Key)
		}
		query, err = e.applySorts(query, params)
		if err != nil {
			return nil, err
		}

		rows, err := e.scanRows(query.Limit(perGroup))
		if err != nil {
			return nil, err
		}
		list, err := e.ProjectList(ctx, tree, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, GroupedEntry{
			Key:   g.Key,
			Value: PagedResponse{List: list, PageInfo: NewPageInfo(g.Count, perGroup, 0)},
		})
	}
	return out, nil
}

// =============================================================================
// SCANNING
// =============================================================================

// scanRows executes the query and scans every row into a map keyed by
// physical column name.
func (e *RowEngine) scanRows(query *gorm.DB) ([]map[string]interface{}, error) {
	rows, err := query.Rows()
	if err != nil {
		e.log.Error().Err(err).Msg("query failed")
		return nil, apperrors.NewInternalError(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	var results []map[string]interface{}
	for rows.Next() {
		record := make(map[string]interface{})
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))

		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, apperrors.NewInternalError(err)
		}

		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}

		results = append(results, record)
	}

	return results, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func paramLimit(params *ast.QueryParams) int {
	if params == nil {
		return 0
	}
	return params.Limit
}

func paramOffset(params *ast.QueryParams) int {
	if params == nil {
		return 0
	}
	return params.Offset
}
