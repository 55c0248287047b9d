package sqlfront

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jochuuuu/reldb/internal/table"
)

// DeleteFrom is a parsed DELETE FROM statement. A WHERE clause is
// mandatory: unconditional deletes are rejected at parse time.
type DeleteFrom struct {
	TableName string
	Equals    []table.EqualsPredicate
	Ranges    []table.RangePredicate
	Spatials  []table.SpatialPredicate
}

var reDeleteHead = regexp.MustCompile(`(?is)^DELETE\s+FROM\s+(\w+)(?:\s+WHERE\s+(.+))?$`)

// ParseDelete parses "DELETE FROM table WHERE ...".
func ParseDelete(stmt string, lookup SchemaLookup) (*DeleteFrom, error) {
	m := reDeleteHead.FindStringSubmatch(stmt)
	if m == nil {
		return nil, fmt.Errorf("invalid DELETE FROM statement")
	}
	tableName := m[1]
	whereClause := strings.TrimSpace(m[2])

	schema, ok := lookup(tableName)
	if !ok {
		return nil, fmt.Errorf("table %q does not exist", tableName)
	}
	if whereClause == "" {
		return nil, fmt.Errorf("DELETE without WHERE is not permitted; specify WHERE conditions")
	}

	eq, rg, sp, err := parseWhere(whereClause, schema)
	if err != nil {
		return nil, fmt.Errorf("parsing WHERE clause: %w", err)
	}
	return &DeleteFrom{TableName: tableName, Equals: eq, Ranges: rg, Spatials: sp}, nil
}
