package sqlfront

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jochuuuu/reldb/internal/types"
)

// convertValue strips one pair of surrounding quotes from a SQL literal, if
// present, and converts it to the attribute's Go-native value.
func convertValue(literal string, attr types.Attribute) (any, error) {
	literal = stripQuotes(literal)
	switch attr.Type {
	case types.TypePoint:
		return types.ParsePoint(literal)
	case types.TypeInt, types.TypeDate:
		n, err := strconv.ParseInt(literal, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer literal %q: %w", literal, err)
		}
		return int32(n), nil
	case types.TypeDecimal:
		f, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid decimal literal %q: %w", literal, err)
		}
		return f, nil
	case types.TypeBool:
		lower := strings.ToLower(literal)
		return lower == "true" || lower == "yes" || lower == "1" || lower == "t" || lower == "y", nil
	default:
		return literal, nil
	}
}

// defaultValueForType is the zero value CSV import and INSERT fall back to
// for a column the input leaves out, and CSV import also for an empty or
// unparsable field.
func defaultValueForType(attr types.Attribute) any {
	switch attr.Type {
	case types.TypePoint:
		return types.Point{X: 0, Y: 0}
	case types.TypeInt, types.TypeDate:
		return int32(0)
	case types.TypeDecimal:
		return 0.0
	case types.TypeBool:
		return false
	default:
		return ""
	}
}

// maxValueForType bounds an open-ended ">"/">=" comparison range.
func maxValueForType(attr types.Attribute) any {
	switch attr.Type {
	case types.TypePoint:
		return types.Point{X: 999999, Y: 999999}
	case types.TypeInt, types.TypeDate:
		return int32(2147483647)
	case types.TypeDecimal:
		return 999999999.99
	default:
		return strings.Repeat("Z", 9)
	}
}

// minValueForType bounds an open-ended "<"/"<=" comparison range.
func minValueForType(attr types.Attribute) any {
	switch attr.Type {
	case types.TypePoint:
		return types.Point{X: -999999, Y: -999999}
	case types.TypeInt, types.TypeDate:
		return int32(-2147483648)
	case types.TypeDecimal:
		return -999999999.99
	default:
		return ""
	}
}

// comparisonToRange converts a single comparison operator (>, >=, <, <=)
// against value into a [min, max] range over attr's domain.
func comparisonToRange(attr types.Attribute, operator string, value any) (lo, hi any, ok bool) {
	switch operator {
	case ">":
		return bumpValue(attr, value, 1), maxValueForType(attr), true
	case ">=":
		return value, maxValueForType(attr), true
	case "<":
		return minValueForType(attr), bumpValue(attr, value, -1), true
	case "<=":
		return minValueForType(attr), value, true
	default:
		return nil, nil, false
	}
}

// bumpValue nudges value away from an exclusive comparison boundary by a
// small epsilon appropriate to the attribute's type.
func bumpValue(attr types.Attribute, value any, sign int) any {
	switch v := value.(type) {
	case int32:
		return v + int32(sign)
	case float64:
		return v + float64(sign)*0.01
	case types.Point:
		delta := float64(sign) * 0.01
		return types.Point{X: v.X + delta, Y: v.Y + delta}
	default:
		return value
	}
}
