package acl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aethra/gridbase/internal/auth"
	"github.com/aethra/gridbase/internal/models"
)

func col(title string, rules models.JSONB) models.Column {
	return models.Column{Title: title, ColumnName: title, UIDT: models.UITypeSingleLineText, VisibilityRules: rules}
}

func TestColumnVisibleNoRules(t *testing.T) {
	c := col("plain", nil)
	assert.True(t, ColumnVisible(&c, auth.ParseRoles("viewer")))
}

func TestColumnVisibleDenyWins(t *testing.T) {
	c := col("salary", models.JSONB{"viewer": "deny", "editor": "allow"})

	// A caller holding both roles is denied: deny wins over allow.
	assert.False(t, ColumnVisible(&c, auth.ParseRoles("viewer,editor")))
	assert.True(t, ColumnVisible(&c, auth.ParseRoles("editor")))
	// A role with no rule sees the column.
	assert.True(t, ColumnVisible(&c, auth.ParseRoles("owner")))
}

func TestColumnVisibleDenyIsCaseInsensitive(t *testing.T) {
	c := col("salary", models.JSONB{"viewer": "DENY"})
	assert.False(t, ColumnVisible(&c, auth.ParseRoles("viewer")))
}

func TestSuperBypassesRules(t *testing.T) {
	c := col("salary", models.JSONB{"super": "deny", "viewer": "deny"})
	assert.True(t, ColumnVisible(&c, auth.ParseRoles("super")))
}

func TestFilterColumnsByRole(t *testing.T) {
	columns := []models.Column{
		col("a", nil),
		col("b", models.JSONB{"viewer": "deny"}),
		col("c", models.JSONB{"editor": "deny"}),
	}

	visible := FilterColumnsByRole(columns, auth.ParseRoles("viewer"))
	assert.Equal(t, []string{"a", "c"}, titles(visible))

	visible = FilterColumnsByRole(columns, auth.ParseRoles("super"))
	assert.Equal(t, []string{"a", "b", "c"}, titles(visible))
}

func TestVisibleTitles(t *testing.T) {
	columns := []models.Column{
		col("a", nil),
		col("b", models.JSONB{"viewer": "deny"}),
	}
	set := VisibleTitles(columns, auth.ParseRoles("viewer"))
	assert.True(t, set["a"])
	assert.False(t, set["b"])
}

func TestIsSystemColumn(t *testing.T) {
	assert.True(t, IsSystemColumn(&models.Column{IsSystem: true}))
	assert.True(t, IsSystemColumn(&models.Column{UIDT: models.UITypeCreateTime}))
	assert.True(t, IsSystemColumn(&models.Column{UIDT: models.UITypeLastModifiedTime}))
	assert.True(t, IsSystemColumn(&models.Column{UIDT: models.UITypeForeignKey}))
	assert.False(t, IsSystemColumn(&models.Column{UIDT: models.UITypeSingleLineText}))
}

func titles(cols []models.Column) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, c.Title)
	}
	return out
}
