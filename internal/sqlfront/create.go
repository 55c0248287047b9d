package sqlfront

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jochuuuu/reldb/internal/types"
)

// CreateTable is a parsed CREATE TABLE statement, already shaped as a schema.
type CreateTable struct {
	Schema types.Schema
}

var (
	reTableName = regexp.MustCompile(`(?i)CREATE\s+TABLE\s+([A-Za-z_]\w*)\s*\(`)
	reParens    = regexp.MustCompile(`(?is)\((.*)\)`)
	reAttribute = regexp.MustCompile(`(?i)^(\w+)\s+([A-Za-z_]+)(?:\[(\d+)\])?(?:\s+(PRIMARY\s+KEY|KEY))?(?:\s+INDEX\s+(\w+))?(?:\s+SEQ)?$`)
)

// ParseCreateTable parses "CREATE TABLE name (attr TYPE[size] [PRIMARY KEY|KEY] [INDEX kind], ...)".
func ParseCreateTable(stmt string) (*CreateTable, error) {
	nameMatch := reTableName.FindStringSubmatch(stmt)
	if nameMatch == nil {
		return nil, fmt.Errorf("invalid CREATE TABLE: table name not found")
	}
	tableName := nameMatch[1]

	parenMatch := reParens.FindStringSubmatch(stmt)
	if parenMatch == nil {
		return nil, fmt.Errorf("invalid CREATE TABLE: no attribute list")
	}
	content := parenMatch[1]

	var attrs []types.Attribute
	for _, part := range splitTopLevel(content, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m := reAttribute.FindStringSubmatch(part)
		if m == nil {
			return nil, fmt.Errorf("invalid attribute definition: %q", part)
		}
		name := m[1]
		dataType := types.DataType(strings.ToUpper(m[2]))
		size := 0
		if m[3] != "" {
			n, err := strconv.Atoi(m[3])
			if err != nil {
				return nil, fmt.Errorf("invalid size for attribute %q: %w", name, err)
			}
			size = n
		}
		isKey := strings.EqualFold(m[4], "PRIMARY KEY") || strings.EqualFold(m[4], "KEY")
		indexKind := types.IndexHash
		if m[5] != "" {
			indexKind = types.IndexKind(strings.ToLower(m[5]))
		}

		attrs = append(attrs, types.Attribute{
			Name:  name,
			Type:  dataType,
			Size:  size,
			IsKey: isKey,
			Index: indexKind,
		})
	}

	schema := types.Schema{TableName: tableName, Attributes: attrs}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &CreateTable{Schema: schema}, nil
}
