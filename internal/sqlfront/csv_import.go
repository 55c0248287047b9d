package sqlfront

import (
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/jochuuuu/reldb/internal/record"
	"github.com/jochuuuu/reldb/internal/types"
)

// ImportCSV is a parsed "IMPORT FROM CSV '...' INTO table [WITH ...]"
// statement, already resolved to rows ready for Manager.Insert.
type ImportCSV struct {
	TableName string
	CSVPath   string
	Rows      []record.Row
	TotalRows int
	Valid     int
}

var (
	reImportHead    = regexp.MustCompile(`(?i)^IMPORT\s+FROM\s+CSV\s+'([^']+)'\s+INTO\s+(\w+)(?:\s+WITH\s+(.+?))?(?:\s*;)?$`)
	reDelimiterOpt  = regexp.MustCompile(`(?i)DELIMITER\s*['"]([^'"]+)['"]`)
	reNoHeaderOpt   = regexp.MustCompile(`(?i)NO_HEADER`)
)

// ParseImportCSV parses the statement and eagerly reads and converts the
// referenced CSV file into rows, skipping malformed lines.
func ParseImportCSV(stmt string, lookup SchemaLookup) (*ImportCSV, error) {
	m := reImportHead.FindStringSubmatch(strings.TrimSpace(stmt))
	if m == nil {
		return nil, fmt.Errorf("invalid IMPORT FROM CSV statement; use: IMPORT FROM CSV 'file.csv' INTO table")
	}
	csvPath := m[1]
	tableName := m[2]
	optionsStr := m[3]

	schema, ok := lookup(tableName)
	if !ok {
		return nil, fmt.Errorf("table %q does not exist", tableName)
	}
	if _, err := os.Stat(csvPath); err != nil {
		return nil, fmt.Errorf("CSV file %q does not exist", csvPath)
	}

	delimiter := ','
	skipHeader := true
	if optionsStr != "" {
		if dm := reDelimiterOpt.FindStringSubmatch(optionsStr); dm != nil && len(dm[1]) > 0 {
			delimiter = rune(dm[1][0])
		}
		if reNoHeaderOpt.MatchString(optionsStr) {
			skipHeader = false
		}
	}
	if !reDelimiterOpt.MatchString(optionsStr) {
		if raw, err := os.ReadFile(csvPath); err == nil {
			firstLine, _, _ := strings.Cut(string(raw), "\n")
			best := 0
			for _, c := range []rune{',', ';', '\t', '|'} {
				if n := strings.Count(firstLine, string(c)); n > best {
					best, delimiter = n, c
				}
			}
		}
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("opening CSV file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	allRows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV file: %w", err)
	}
	if len(allRows) == 0 {
		return nil, fmt.Errorf("CSV file is empty")
	}

	var headers []string
	dataRows := allRows
	if skipHeader {
		headers = make([]string, len(allRows[0]))
		for i, h := range allRows[0] {
			headers[i] = strings.TrimSpace(h)
		}
		dataRows = allRows[1:]
	} else {
		for _, a := range schema.Attributes {
			headers = append(headers, a.Name)
		}
	}

	mapping := mapCSVColumns(schema, headers)
	if len(mapping) == 0 {
		return nil, fmt.Errorf("could not map CSV columns to table %q", tableName)
	}

	var rows []record.Row
	for _, csvRow := range dataRows {
		row := make(record.Row, len(schema.Attributes))
		for _, attr := range schema.Attributes {
			row[attr.Name] = defaultValueForType(attr)
		}

		pkFailed := false
		for colIdx, attrName := range mapping {
			if colIdx >= len(csvRow) {
				continue
			}
			value := strings.TrimSpace(csvRow[colIdx])
			if value == "" || isNullToken(value) {
				continue
			}
			attr, _ := schema.Attribute(attrName)
			converted, err := convertValue(value, attr)
			if err != nil {
				pkFailed = pkFailed || attr.IsKey
				continue
			}
			row[attrName] = converted
		}
		if pkFailed {
			continue
		}

		if pk, ok := schema.PrimaryKey(); ok {
			if !primaryKeyPresentInCSV(pk.Name, mapping, csvRow) {
				continue
			}
		}

		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("no valid records could be converted from the CSV file")
	}

	return &ImportCSV{
		TableName: tableName,
		CSVPath:   csvPath,
		Rows:      rows,
		TotalRows: len(dataRows),
		Valid:     len(rows),
	}, nil
}

func isNullToken(v string) bool {
	switch strings.ToLower(v) {
	case "null", "none", "n/a", "na":
		return true
	default:
		return false
	}
}

func primaryKeyPresentInCSV(pkName string, mapping map[int]string, csvRow []string) bool {
	for colIdx, attrName := range mapping {
		if attrName != pkName {
			continue
		}
		if colIdx >= len(csvRow) {
			return false
		}
		v := strings.TrimSpace(csvRow[colIdx])
		return v != "" && !isNullToken(v)
	}
	return false
}

// mapCSVColumns matches CSV header names to schema attribute names: exact
// case-insensitive match first, then a loose substring/underscore-stripped
// match.
func mapCSVColumns(schema types.Schema, headers []string) map[int]string {
	mapping := make(map[int]string)
	lowerToName := make(map[string]string, len(schema.Attributes))
	for _, a := range schema.Attributes {
		lowerToName[strings.ToLower(a.Name)] = a.Name
	}

	for i, header := range headers {
		clean := strings.ToLower(strings.TrimSpace(header))
		if name, ok := lowerToName[clean]; ok {
			mapping[i] = name
			continue
		}
		for lower, original := range lowerToName {
			stripped := strings.ReplaceAll(strings.ReplaceAll(clean, "_", ""), " ", "")
			lowerStripped := strings.ReplaceAll(lower, "_", "")
			if strings.Contains(lower, clean) || strings.Contains(clean, lower) || stripped == lowerStripped {
				mapping[i] = original
				break
			}
		}
	}
	return mapping
}
