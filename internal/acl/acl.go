// Package acl filters table columns by the caller's roles.
//
// Every read and write path goes through FilterColumnsByRole before any
// SQL is built, so a denied column can neither be selected, filtered,
// sorted on, nor written.
package acl

import (
	"strings"

	"github.com/aethra/gridbase/internal/auth"
	"github.com/aethra/gridbase/internal/models"
)

// FilterColumnsByRole returns the columns visible to a caller holding
// the given roles. A column is excluded when any of the caller's roles
// has a deny rule on it; a role with no rule sees the column. Super
// bypasses the rules entirely.
func FilterColumnsByRole(columns []models.Column, roles auth.RoleSet) []models.Column {
	if roles.IsSuper() {
		return columns
	}

	visible := make([]models.Column, 0, len(columns))
	for _, col := range columns {
		if ColumnVisible(&col, roles) {
			visible = append(visible, col)
		}
	}
	return visible
}

// ColumnVisible reports whether a single column is visible to the
// caller. Rules are evaluated deny-wins across the caller's roles.
func ColumnVisible(col *models.Column, roles auth.RoleSet) bool {
	if roles.IsSuper() {
		return true
	}
	if len(col.VisibilityRules) == 0 {
		return true
	}
	for role, rule := range col.VisibilityRules {
		if !roles.Has(role) {
			continue
		}
		if s, ok := rule.(string); ok && strings.EqualFold(s, models.AccessDeny) {
			return false
		}
	}
	return true
}

// VisibleTitles returns the set of visible column titles, for quick
// membership checks when validating requested fields.
func VisibleTitles(columns []models.Column, roles auth.RoleSet) map[string]bool {
	titles := make(map[string]bool)
	for _, col := range FilterColumnsByRole(columns, roles) {
		titles[col.Title] = true
	}
	return titles
}

// IsSystemColumn reports whether a column is platform-managed. System
// columns are hidden from default projections unless the view opts in,
// independent of the visibility rules.
func IsSystemColumn(col *models.Column) bool {
	if col.IsSystem {
		return true
	}
	switch col.UIDT {
	case models.UITypeCreateTime, models.UITypeLastModifiedTime, models.UITypeForeignKey:
		return true
	}
	return false
}
