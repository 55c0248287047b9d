package sqlfront

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jochuuuu/reldb/internal/record"
	"github.com/jochuuuu/reldb/internal/types"
)

// InsertInto is a parsed INSERT INTO statement: the optional column list
// and one or more value tuples. Values are still raw literal strings;
// ResolveRows converts them against a schema.
type InsertInto struct {
	TableName string
	Columns   []string
	RawRows   [][]string
}

var (
	reInsertHead = regexp.MustCompile(`(?is)^INSERT\s+INTO\s+(\w+)\s*(?:\(([^)]*)\))?\s*VALUES\s*(.*)$`)
)

// ParseInsert parses "INSERT INTO table [(col, ...)] VALUES (v, ...), (v, ...), ...".
func ParseInsert(stmt string) (*InsertInto, error) {
	m := reInsertHead.FindStringSubmatch(stmt)
	if m == nil {
		return nil, fmt.Errorf("invalid INSERT INTO statement")
	}
	tableName := m[1]
	var columns []string
	if strings.TrimSpace(m[2]) != "" {
		for _, c := range strings.Split(m[2], ",") {
			columns = append(columns, strings.TrimSpace(c))
		}
	}

	rest := strings.TrimSpace(m[3])
	var rows [][]string
	for _, tuple := range splitValueTuples(rest) {
		rows = append(rows, splitTopLevel(tuple, ','))
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("invalid INSERT INTO statement: no value tuples")
	}

	return &InsertInto{TableName: tableName, Columns: columns, RawRows: rows}, nil
}

// splitValueTuples extracts the contents of each top-level "(...)" group in
// a comma-separated "(...), (...), ..." value list.
func splitValueTuples(s string) []string {
	var out []string
	depth := 0
	inString := false
	var quote byte
	var current strings.Builder

	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c == '\'' || c == '"') && (!inString || quote == c) {
			inString = !inString
			if inString {
				quote = c
			} else {
				quote = 0
			}
		}
		switch {
		case c == '(' && !inString:
			depth++
			if depth == 1 {
				current.Reset()
				continue
			}
		case c == ')' && !inString:
			depth--
			if depth == 0 {
				out = append(out, current.String())
				continue
			}
		}
		if depth > 0 {
			current.WriteByte(c)
		}
	}
	return out
}

// ResolveColumns returns the effective column list: the statement's
// explicit columns, or every schema attribute in declaration order if none
// were given.
func (ins *InsertInto) ResolveColumns(schema types.Schema) []string {
	if len(ins.Columns) > 0 {
		return ins.Columns
	}
	cols := make([]string, len(schema.Attributes))
	for i, a := range schema.Attributes {
		cols[i] = a.Name
	}
	return cols
}

// ResolveRows converts every raw value tuple into a record.Row keyed by the
// resolved column names, coercing each literal against its attribute type.
func (ins *InsertInto) ResolveRows(schema types.Schema) ([]record.Row, error) {
	columns := ins.ResolveColumns(schema)
	rows := make([]record.Row, 0, len(ins.RawRows))
	for _, raw := range ins.RawRows {
		row := make(record.Row, len(schema.Attributes))
		for _, attr := range schema.Attributes {
			row[attr.Name] = defaultValueForType(attr)
		}
		for i, literal := range raw {
			if i >= len(columns) {
				break
			}
			attr, ok := schema.Attribute(columns[i])
			if !ok {
				return nil, fmt.Errorf("unknown column %q for table %q", columns[i], schema.TableName)
			}
			v, err := convertValue(literal, attr)
			if err != nil {
				return nil, err
			}
			row[columns[i]] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}
