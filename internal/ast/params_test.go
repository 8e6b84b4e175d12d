package ast

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseQueryFields(t *testing.T) {
	p := ParseQuery(url.Values{"fields": {"Title, Qty ,"}})
	assert.Equal(t, []string{"Title", "Qty"}, p.Fields)
}

func TestParseQueryNestedFields(t *testing.T) {
	p := ParseQuery(url.Values{"nested[Books][fields]": {"Title,Year"}})
	assert.Equal(t, []string{"Title", "Year"}, p.Nested["Books"])
}

func TestParseQueryFilterArrJson(t *testing.T) {
	raw := `[{"field":"Title","comparison_op":"eq","value":"x"}]`
	p := ParseQuery(url.Values{"filterArrJson": {raw}})

	assert.Len(t, p.Filters, 1)
	assert.Equal(t, "Title", p.Filters[0].Field)
	assert.Equal(t, "eq", p.Filters[0].Op)
	assert.Equal(t, "x", p.Filters[0].Value)
}

func TestParseQueryMalformedFilterJsonIsIgnored(t *testing.T) {
	p := ParseQuery(url.Values{"filterArrJson": {`{not json`}})
	assert.Empty(t, p.Filters)
}

func TestParseQueryMalformedSortJsonIsIgnored(t *testing.T) {
	p := ParseQuery(url.Values{"sortArrJson": {`[[[`}})
	assert.Empty(t, p.Sorts)
}

func TestParseQuerySortShorthand(t *testing.T) {
	p := ParseQuery(url.Values{"sort": {"-Title,Name"}})

	assert.Len(t, p.Sorts, 2)
	assert.Equal(t, SortSpec{Field: "Title", Direction: "desc"}, p.Sorts[0])
	assert.Equal(t, SortSpec{Field: "Name", Direction: "asc"}, p.Sorts[1])
}

func TestParseQuerySortShorthandAppendsAfterJson(t *testing.T) {
	p := ParseQuery(url.Values{
		"sortArrJson": {`[{"field":"Qty","direction":"desc"}]`},
		"sort":        {"Title"},
	})
	assert.Equal(t, "Qty", p.Sorts[0].Field)
	assert.Equal(t, "Title", p.Sorts[1].Field)
}

func TestParseQueryPaging(t *testing.T) {
	p := ParseQuery(url.Values{"limit": {"50"}, "offset": {"100"}})
	assert.Equal(t, 50, p.Limit)
	assert.Equal(t, 100, p.Offset)
}

func TestParseQueryNegativePagingFallsBack(t *testing.T) {
	p := ParseQuery(url.Values{"limit": {"-5"}, "offset": {"junk"}})
	assert.Equal(t, 0, p.Limit)
	assert.Equal(t, 0, p.Offset)
}
