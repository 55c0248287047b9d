package sqlfront

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jochuuuu/reldb/internal/table"
	"github.com/jochuuuu/reldb/internal/types"
)

// SelectQuery is a parsed SELECT statement, already lowered to predicate
// lists against a specific table's schema.
type SelectQuery struct {
	TableName  string
	Attributes []string
	Equals     []table.EqualsPredicate
	Ranges     []table.RangePredicate
	Spatials   []table.SpatialPredicate
}

var reSelectHead = regexp.MustCompile(`(?is)^SELECT\s+(.+?)\s+FROM\s+(\w+)(?:\s+WHERE\s+(.+))?$`)

// SchemaLookup resolves a table name to its schema, for statements whose
// parsing depends on attribute types (WHERE-clause value coercion).
type SchemaLookup func(tableName string) (types.Schema, bool)

// ParseSelect parses "SELECT cols FROM table [WHERE ...]", resolving the
// table's schema via lookup.
func ParseSelect(stmt string, lookup SchemaLookup) (*SelectQuery, error) {
	m := reSelectHead.FindStringSubmatch(stmt)
	if m == nil {
		return nil, fmt.Errorf("invalid SELECT statement")
	}
	columnsStr := strings.TrimSpace(m[1])
	tableName := m[2]
	whereClause := strings.TrimSpace(m[3])

	schema, ok := lookup(tableName)
	if !ok {
		return nil, fmt.Errorf("table %q does not exist", tableName)
	}

	var attrs []string
	if columnsStr == "*" {
		for _, a := range schema.Attributes {
			attrs = append(attrs, a.Name)
		}
	} else {
		for _, name := range strings.Split(columnsStr, ",") {
			name = strings.TrimSpace(name)
			if _, ok := schema.Attribute(name); !ok {
				return nil, fmt.Errorf("attribute %q does not exist in table %q", name, tableName)
			}
			attrs = append(attrs, name)
		}
	}

	q := &SelectQuery{TableName: tableName, Attributes: attrs}
	if whereClause != "" {
		eq, rg, sp, err := parseWhere(whereClause, schema)
		if err != nil {
			return nil, fmt.Errorf("parsing WHERE clause: %w", err)
		}
		q.Equals, q.Ranges, q.Spatials = eq, rg, sp
	}
	return q, nil
}
