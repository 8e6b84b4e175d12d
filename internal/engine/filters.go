// Package engine - filter compilation
package engine

import (
	"strings"

	"github.com/google/uuid"

	"github.com/aethra/gridbase/internal/acl"
	"github.com/aethra/gridbase/internal/ast"
	"github.com/aethra/gridbase/internal/models"
	"github.com/aethra/gridbase/internal/security"
)

// compileFilterSpecs turns request filters into one SQL condition.
// Specs referencing unknown, virtual, or denied columns are dropped
// rather than rejected, matching the permissive parse of the payload
// they arrive in.
func (e *RowEngine) compileFilterSpecs(specs []ast.FilterSpec) (string, []interface{}, error) {
	var conds []string
	var args []interface{}

	for i, spec := range specs {
		cond, specArgs, ok := e.compileFilterSpec(spec)
		if !ok {
			continue
		}
		if len(conds) > 0 {
			conds = append(conds, logicalOp(specs[i].LogicalOp))
		}
		conds = append(conds, cond)
		args = append(args, specArgs...)
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return "(" + strings.Join(conds, " ") + ")", args, nil
}

func (e *RowEngine) compileFilterSpec(spec ast.FilterSpec) (string, []interface{}, bool) {
	if spec.IsGroup || len(spec.Children) > 0 {
		cond, args, err := e.compileFilterSpecs(spec.Children)
		if err != nil || cond == "" {
			return "", nil, false
		}
		return cond, args, true
	}

	col := e.resolveSpecColumn(spec.FkColumnID, spec.Field)
	if col == nil || col.UIDT.IsVirtual() || !e.columnUsable(col) {
		return "", nil, false
	}

	cond, args, err := security.BuildFilterCondition(col.ColumnName, spec.Op, spec.Value)
	if err != nil {
		return "", nil, false
	}
	return cond, args, true
}

// compileViewFilters compiles a view's persisted filter tree. Roots are
// the nodes without a parent; children nest under their group.
func (e *RowEngine) compileViewFilters(filters []models.Filter) (string, []interface{}, error) {
	byParent := make(map[uuid.UUID][]models.Filter)
	var roots []models.Filter
	for _, f := range filters {
		if f.ParentID == nil {
			roots = append(roots, f)
		} else {
			byParent[*f.ParentID] = append(byParent[*f.ParentID], f)
		}
	}
	sortFilters(roots)
	for _, children := range byParent {
		sortFilters(children)
	}
	return e.compileFilterLevel(roots, byParent)
}

func (e *RowEngine) compileFilterLevel(level []models.Filter, byParent map[uuid.UUID][]models.Filter) (string, []interface{}, error) {
	var conds []string
	var args []interface{}

	for _, f := range level {
		var cond string
		var fArgs []interface{}

		if f.IsGroup {
			var err error
			cond, fArgs, err = e.compileFilterLevel(byParent[f.ID], byParent)
			if err != nil || cond == "" {
				continue
			}
		} else {
			if f.ColumnID == nil {
				continue
			}
			col := e.model.ColumnByID(*f.ColumnID)
			if col == nil || col.UIDT.IsVirtual() || !e.columnUsable(col) {
				continue
			}
			var err error
			cond, fArgs, err = security.BuildFilterCondition(col.ColumnName, f.Op, f.Value)
			if err != nil {
				continue
			}
		}

		if len(conds) > 0 {
			conds = append(conds, logicalOp(f.LogicalOp))
		}
		conds = append(conds, cond)
		args = append(args, fArgs...)
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return "(" + strings.Join(conds, " ") + ")", args, nil
}

func sortFilters(filters []models.Filter) {
	// Order is a dense 1-based sequence per sibling set.
	for i := 1; i < len(filters); i++ {
		for j := i; j > 0 && filters[j].Order < filters[j-1].Order; j-- {
			filters[j], filters[j-1] = filters[j-1], filters[j]
		}
	}
}

func logicalOp(op string) string {
	if strings.EqualFold(op, "or") {
		return "OR"
	}
	return "AND"
}

// resolveSpecColumn accepts either a column id or a field title, the
// two ways request payloads address columns.
func (e *RowEngine) resolveSpecColumn(fkColumnID, field string) *models.Column {
	if fkColumnID != "" {
		if id, err := uuid.Parse(fkColumnID); err == nil {
			return e.model.ColumnByID(id)
		}
	}
	if field != "" {
		return e.model.ColumnByTitle(field)
	}
	return nil
}

// visibleColumn applies the caller's column gate to one column.
func (e *RowEngine) visibleColumn(col *models.Column) bool {
	return acl.ColumnVisible(col, e.roles)
}
