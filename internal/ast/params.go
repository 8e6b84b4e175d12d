package ast

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// FilterSpec is one request-supplied filter node, either a leaf
// comparison or a group of children.
type FilterSpec struct {
	FkColumnID string       `json:"fk_column_id,omitempty"`
	Field      string       `json:"field,omitempty"`
	Op         string       `json:"comparison_op,omitempty"`
	Value      interface{}  `json:"value,omitempty"`
	LogicalOp  string       `json:"logical_op,omitempty"`
	IsGroup    bool         `json:"is_group,omitempty"`
	Children   []FilterSpec `json:"children,omitempty"`
}

// SortSpec is one request-supplied sort entry.
type SortSpec struct {
	FkColumnID string `json:"fk_column_id,omitempty"`
	Field      string `json:"field,omitempty"`
	Direction  string `json:"direction,omitempty"` // asc, desc
}

// QueryParams is the parsed form of a data request's query string.
type QueryParams struct {
	Fields  []string
	Nested  map[string][]string
	Filters []FilterSpec
	Sorts   []SortSpec
	Limit   int
	Offset  int
}

// ParseQuery reads the supported query parameters. Malformed
// filterArrJson or sortArrJson payloads are ignored rather than
// rejected, so a broken saved view link still returns data.
func ParseQuery(values url.Values) *QueryParams {
	p := &QueryParams{Nested: make(map[string][]string)}

	if f := values.Get("fields"); f != "" {
		p.Fields = splitList(f)
	}

	// nested[Link][fields]=A,B
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		if strings.HasPrefix(key, "nested[") && strings.HasSuffix(key, "][fields]") {
			link := key[len("nested[") : len(key)-len("][fields]")]
			if link != "" {
				p.Nested[link] = splitList(vals[0])
			}
		}
	}

	if raw := values.Get("filterArrJson"); raw != "" {
		var filters []FilterSpec
		if err := json.Unmarshal([]byte(raw), &filters); err == nil {
			p.Filters = filters
		}
	}

	if raw := values.Get("sortArrJson"); raw != "" {
		var sorts []SortSpec
		if err := json.Unmarshal([]byte(raw), &sorts); err == nil {
			p.Sorts = sorts
		}
	}

	// sort=-Title,Name shorthand, appended after sortArrJson entries
	if raw := values.Get("sort"); raw != "" {
		for _, part := range splitList(raw) {
			direction := "asc"
			if strings.HasPrefix(part, "-") {
				direction = "desc"
				part = part[1:]
			}
			if part != "" {
				p.Sorts = append(p.Sorts, SortSpec{Field: part, Direction: direction})
			}
		}
	}

	p.Limit = parseIntValue(values.Get("limit"), 0)
	p.Offset = parseIntValue(values.Get("offset"), 0)

	return p
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseIntValue(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return def
	}
	return i
}
