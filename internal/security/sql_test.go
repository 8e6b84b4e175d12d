package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, ValidateIdentifier("users"))
	assert.NoError(t, ValidateIdentifier("_private"))
	assert.NoError(t, ValidateIdentifier("order_items_2"))

	assert.Error(t, ValidateIdentifier(""))
	assert.Error(t, ValidateIdentifier("Users"))
	assert.Error(t, ValidateIdentifier("1table"))
	assert.Error(t, ValidateIdentifier("users; drop table users"))
	assert.Error(t, ValidateIdentifier("select"))
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"users"`, QuoteIdentifier("users"))
	assert.Equal(t, `"a""b"`, QuoteIdentifier(`a"b`))
}

func TestBuildFilterCondition(t *testing.T) {
	cond, args, err := BuildFilterCondition("title", "eq", "x")
	assert.NoError(t, err)
	assert.Equal(t, `"title" = ?`, cond)
	assert.Equal(t, []interface{}{"x"}, args)

	cond, args, err = BuildFilterCondition("qty", "gte", 5)
	assert.NoError(t, err)
	assert.Equal(t, `"qty" >= ?`, cond)
	assert.Equal(t, []interface{}{5}, args)
}

func TestBuildFilterConditionLike(t *testing.T) {
	// Bare values get wrapped in wildcards.
	cond, args, err := BuildFilterCondition("title", "like", "foo")
	assert.NoError(t, err)
	assert.Equal(t, `"title" LIKE ?`, cond)
	assert.Equal(t, []interface{}{"%foo%"}, args)

	// A caller-supplied pattern is kept as-is.
	_, args, err = BuildFilterCondition("title", "like", "foo%")
	assert.NoError(t, err)
	assert.Equal(t, []interface{}{"foo%"}, args)
}

func TestBuildFilterConditionValueless(t *testing.T) {
	cond, args, err := BuildFilterCondition("title", "null", nil)
	assert.NoError(t, err)
	assert.Equal(t, `"title" IS NULL`, cond)
	assert.Nil(t, args)

	cond, _, err = BuildFilterCondition("title", "notempty", nil)
	assert.NoError(t, err)
	assert.Equal(t, `"title" != ''`, cond)
}

func TestBuildFilterConditionIn(t *testing.T) {
	cond, args, err := BuildFilterCondition("id", "in", []interface{}{1, 2})
	assert.NoError(t, err)
	assert.Equal(t, `"id" IN (?)`, cond)
	assert.Len(t, args, 1)
}

func TestBuildFilterConditionRejectsUnknownOperator(t *testing.T) {
	_, _, err := BuildFilterCondition("title", "regex", ".*")
	assert.Error(t, err)
}

func TestBuildFilterConditionRejectsBadColumn(t *testing.T) {
	_, _, err := BuildFilterCondition("title; --", "eq", "x")
	assert.Error(t, err)
}
