package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRoles(t *testing.T) {
	set := ParseRoles("Editor, viewer ,,OWNER")

	assert.True(t, set.Has("editor"))
	assert.True(t, set.Has("viewer"))
	assert.True(t, set.Has("owner"))
	assert.False(t, set.Has("super"))
	assert.Len(t, set.Names(), 3)
}

func TestParseRolesEmpty(t *testing.T) {
	set := ParseRoles("")
	assert.Empty(t, set.Names())
	assert.False(t, set.IsSuper())
}

func TestRoleSetHasIsCaseInsensitive(t *testing.T) {
	set := ParseRoles("editor")
	assert.True(t, set.Has("Editor"))
	assert.True(t, set.Has("EDITOR"))
}

func TestIsSuper(t *testing.T) {
	assert.True(t, ParseRoles("super,editor").IsSuper())
	assert.False(t, ParseRoles("owner,editor").IsSuper())
}
