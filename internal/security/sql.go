// Package security provides SQL identifier and filter safety utilities
package security

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidIdentifierRegex matches valid SQL identifiers
// Only allows lowercase letters, digits, and underscores, starting with a letter or underscore
var ValidIdentifierRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateIdentifier checks if a string is a valid SQL identifier
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 63 {
		return fmt.Errorf("identifier too long (max 63 characters)")
	}
	if !ValidIdentifierRegex.MatchString(name) {
		return fmt.Errorf("invalid identifier: must contain only lowercase letters, numbers, and underscores, starting with a letter or underscore")
	}
	// Check for reserved words
	if isReservedWord(name) {
		return fmt.Errorf("'%s' is a reserved SQL keyword", name)
	}
	return nil
}

// QuoteIdentifier safely quotes a SQL identifier
// This should only be used AFTER validation
func QuoteIdentifier(name string) string {
	// Double any internal quotes for safety
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

// SafeIdentifier validates and quotes an identifier for use in SQL
func SafeIdentifier(name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", err
	}
	return QuoteIdentifier(name), nil
}

// isReservedWord checks if a word is a SQL reserved word
func isReservedWord(word string) bool {
	reserved := map[string]bool{
		"all": true, "analyse": true, "analyze": true, "and": true, "any": true,
		"array": true, "as": true, "asc": true, "asymmetric": true, "both": true,
		"case": true, "cast": true, "check": true, "collate": true, "column": true,
		"constraint": true, "create": true, "current_catalog": true, "current_date": true,
		"current_role": true, "current_time": true, "current_timestamp": true,
		"current_user": true, "default": true, "deferrable": true, "desc": true,
		"distinct": true, "do": true, "else": true, "end": true, "except": true,
		"false": true, "fetch": true, "for": true, "foreign": true, "from": true,
		"grant": true, "group": true, "having": true, "in": true, "initially": true,
		"intersect": true, "into": true, "lateral": true, "leading": true, "limit": true,
		"localtime": true, "localtimestamp": true, "not": true, "null": true, "offset": true,
		"on": true, "only": true, "or": true, "order": true, "placing": true,
		"primary": true, "references": true, "returning": true, "select": true,
		"session_user": true, "some": true, "symmetric": true, "table": true,
		"then": true, "to": true, "trailing": true, "true": true, "union": true,
		"unique": true, "user": true, "using": true, "variadic": true, "when": true,
		"where": true, "window": true, "with": true,
	}
	return reserved[strings.ToLower(word)]
}

// AllowedFilterOperators defines the allowed comparison operators for filters
var AllowedFilterOperators = map[string]string{
	"eq":       "=",
	"neq":      "!=",
	"gt":       ">",
	"gte":      ">=",
	"lt":       "<",
	"lte":      "<=",
	"in":       "IN",
	"like":     "LIKE",
	"nlike":    "NOT LIKE",
	"null":     "IS NULL",
	"notnull":  "IS NOT NULL",
	"empty":    "= ''",
	"notempty": "!= ''",
}

// BuildFilterCondition builds a safe filter condition using the `?`
// placeholder style. Returns the condition and its parameters (none for
// the value-less operators).
func BuildFilterCondition(column string, operator string, value interface{}) (string, []interface{}, error) {
	if err := ValidateIdentifier(column); err != nil {
		return "", nil, err
	}

	quotedCol := QuoteIdentifier(column)

	op, exists := AllowedFilterOperators[operator]
	if !exists {
		return "", nil, fmt.Errorf("unsupported filter operator '%s'", operator)
	}

	switch operator {
	case "null", "notnull", "empty", "notempty":
		return fmt.Sprintf("%s %s", quotedCol, op), nil, nil
	case "like", "nlike":
		pattern := fmt.Sprintf("%v", value)
		if !strings.Contains(pattern, "%") {
			pattern = "%" + pattern + "%"
		}
		return fmt.Sprintf("%s %s ?", quotedCol, op), []interface{}{pattern}, nil
	case "in":
		return fmt.Sprintf("%s IN (?)", quotedCol), []interface{}{value}, nil
	default:
		return fmt.Sprintf("%s %s ?", quotedCol, op), []interface{}{value}, nil
	}
}
