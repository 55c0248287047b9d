package sqlfront

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jochuuuu/reldb/internal/table"
	"github.com/jochuuuu/reldb/internal/types"
)

var (
	reBetween = regexp.MustCompile(`(?i)(\w+)\s+BETWEEN\s+(\S+)\s+AND\s+(\S+)`)
	reEquals  = regexp.MustCompile(`^(\w+)\s*=\s*(.+)$`)

	comparisonOps = []struct {
		re *regexp.Regexp
		op string
	}{
		{regexp.MustCompile(`(?i)(\w+)\s*>=\s*(\S+)`), ">="},
		{regexp.MustCompile(`(?i)(\w+)\s*<=\s*(\S+)`), "<="},
		{regexp.MustCompile(`(?i)(\w+)\s*>\s*(\S+)`), ">"},
		{regexp.MustCompile(`(?i)(\w+)\s*<\s*(\S+)`), "<"},
	}
)

// parseWhere lowers a WHERE clause (without the WHERE keyword) into equals,
// range, and spatial predicates against schema. Spatial predicates are
// extracted first via RADIUS(...)/KNN(...) function syntax, then BETWEEN,
// then comparison operators, with everything left over parsed as "attr = value".
func parseWhere(clause string, schema types.Schema) ([]table.EqualsPredicate, []table.RangePredicate, []table.SpatialPredicate, error) {
	var equals []table.EqualsPredicate
	var ranges []table.RangePredicate
	var spatials []table.SpatialPredicate

	remaining := strings.TrimSpace(clause)

	for _, kind := range []string{"RADIUS", "KNN"} {
		var spatial *table.SpatialPredicate
		var err error
		spatial, remaining, err = extractSpatial(remaining, kind, schema)
		if err != nil {
			return nil, nil, nil, err
		}
		if spatial != nil {
			spatials = append(spatials, *spatial)
		}
	}

	remaining = strings.TrimSpace(remaining)
	for strings.HasPrefix(strings.ToUpper(remaining), "AND ") {
		remaining = strings.TrimSpace(remaining[4:])
	}
	for strings.HasSuffix(strings.ToUpper(remaining), " AND") {
		remaining = strings.TrimSpace(remaining[:len(remaining)-4])
	}

	if remaining != "" {
		eq, rg, err := parseEqualsAndRanges(remaining, schema)
		if err != nil {
			return nil, nil, nil, err
		}
		equals = append(equals, eq...)
		ranges = append(ranges, rg...)
	}

	return equals, ranges, spatials, nil
}

func parseEqualsAndRanges(clause string, schema types.Schema) ([]table.EqualsPredicate, []table.RangePredicate, error) {
	var equals []table.EqualsPredicate
	var ranges []table.RangePredicate

	remaining := clause

	for _, m := range reBetween.FindAllStringSubmatchIndex(remaining, -1) {
		groups := reBetween.FindStringSubmatch(remaining[m[0]:m[1]])
		attr, ok := schema.Attribute(groups[1])
		if !ok {
			return nil, nil, fmt.Errorf("unknown attribute %q", groups[1])
		}
		if attr.Type == types.TypePoint {
			return nil, nil, fmt.Errorf("invalid predicate: POINT column %q cannot be used in BETWEEN; use RADIUS(...)/KNN(...) instead", attr.Name)
		}
		lo, err := convertValue(groups[2], attr)
		if err != nil {
			return nil, nil, err
		}
		hi, err := convertValue(groups[3], attr)
		if err != nil {
			return nil, nil, err
		}
		ranges = append(ranges, table.RangePredicate{Attr: attr.Name, Lo: lo, Hi: hi})
	}
	remaining = reBetween.ReplaceAllString(remaining, "")

	for _, c := range comparisonOps {
		matches := c.re.FindAllStringSubmatch(remaining, -1)
		for _, groups := range matches {
			attr, ok := schema.Attribute(groups[1])
			if !ok {
				return nil, nil, fmt.Errorf("unknown attribute %q", groups[1])
			}
			if attr.Type == types.TypePoint {
				return nil, nil, fmt.Errorf("invalid predicate: POINT column %q cannot be used in a %s comparison; use RADIUS(...)/KNN(...) instead", attr.Name, c.op)
			}
			value, err := convertValue(groups[2], attr)
			if err != nil {
				return nil, nil, err
			}
			lo, hi, ok := comparisonToRange(attr, c.op, value)
			if ok {
				ranges = append(ranges, table.RangePredicate{Attr: attr.Name, Lo: lo, Hi: hi})
			}
		}
		remaining = c.re.ReplaceAllString(remaining, "")
	}

	remaining = strings.TrimSpace(remaining)
	remaining = strings.Trim(remaining, " ")
	for strings.HasPrefix(strings.ToUpper(remaining), "AND ") {
		remaining = strings.TrimSpace(remaining[4:])
	}
	for strings.HasSuffix(strings.ToUpper(remaining), " AND") {
		remaining = strings.TrimSpace(remaining[:len(remaining)-4])
	}
	if remaining == "" {
		return equals, ranges, nil
	}

	for _, part := range regexp.MustCompile(`(?i)\s+AND\s+`).Split(remaining, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m := reEquals.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		attr, ok := schema.Attribute(m[1])
		if !ok {
			return nil, nil, fmt.Errorf("unknown attribute %q", m[1])
		}
		value, err := convertValue(strings.TrimSpace(m[2]), attr)
		if err != nil {
			return nil, nil, err
		}
		equals = append(equals, table.EqualsPredicate{Attr: attr.Name, Value: value})
	}

	return equals, ranges, nil
}

// extractSpatial pulls the first RADIUS(attr, point, param) or KNN(attr,
// point, k) function call out of clause, returning the remaining clause
// with that call excised.
func extractSpatial(clause, funcName string, schema types.Schema) (*table.SpatialPredicate, string, error) {
	upper := strings.ToUpper(clause)
	start := strings.Index(upper, strings.ToUpper(funcName)+"(")
	if start == -1 {
		return nil, clause, nil
	}
	parenStart := start + len(funcName)
	depth := 0
	end := parenStart
	for end < len(clause) {
		switch clause[end] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				goto found
			}
		}
		end++
	}
	return nil, clause, fmt.Errorf("unbalanced parentheses in %s(...)", funcName)

found:
	content := clause[parenStart+1 : end]
	parts := splitTopLevel(content, ',')
	if len(parts) != 3 {
		return nil, clause, fmt.Errorf("%s(...) requires exactly 3 arguments", funcName)
	}
	attrName := strings.TrimSpace(parts[0])
	centerStr := stripQuotes(strings.TrimSpace(parts[1]))
	paramStr := strings.TrimSpace(parts[2])

	attr, ok := schema.Attribute(attrName)
	if !ok {
		return nil, clause, fmt.Errorf("unknown attribute %q", attrName)
	}
	centerVal, err := convertValue(centerStr, attr)
	if err != nil {
		return nil, clause, err
	}
	center, ok := centerVal.(types.Point)
	if !ok {
		return nil, clause, fmt.Errorf("%s(...) center must resolve to a POINT", funcName)
	}

	var pred table.SpatialPredicate
	switch strings.ToUpper(funcName) {
	case "RADIUS":
		radius, err := strconv.ParseFloat(paramStr, 64)
		if err != nil {
			return nil, clause, fmt.Errorf("invalid RADIUS(...) radius %q: %w", paramStr, err)
		}
		pred = table.SpatialPredicate{Kind: "RADIUS", Attr: attrName, Center: center, Param: radius}
	case "KNN":
		k, err := strconv.ParseFloat(paramStr, 64)
		if err != nil {
			return nil, clause, fmt.Errorf("invalid KNN(...) k %q: %w", paramStr, err)
		}
		pred = table.SpatialPredicate{Kind: "KNN", Attr: attrName, Center: center, Param: k}
	}

	newClause := clause[:start] + clause[end+1:]
	return &pred, strings.TrimSpace(newClause), nil
}
