package index

import (
	"fmt"

	"github.com/jochuuuu/reldb/internal/types"
)

// Compare orders two indexed-column values of (in the common case) the same
// declared type. POINT uses the distance-to-origin ordering everywhere
// except equality (see types.Point): Compare returns 0 exactly when the two
// points are types.Point.Equal, and otherwise -1 or 1 by distance to origin.
//
// Mixed-type comparisons (e.g. a string landing in a numeric column) are an
// implementer choice the original leaves open; this falls back to comparing
// both operands' string representations, matching that behavior.
func Compare(a, b any) int {
	switch av := a.(type) {
	case int32:
		if bv, ok := b.(int32); ok {
			return compareOrdered(av, bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return compareOrdered(av, bv)
		}
	case uint32:
		if bv, ok := b.(uint32); ok {
			return compareOrdered(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return compareOrdered(boolToInt(av), boolToInt(bv))
		}
	case string:
		if bv, ok := b.(string); ok {
			return compareOrdered(av, bv)
		}
	case types.Point:
		if bv, ok := b.(types.Point); ok {
			return comparePoints(av, bv)
		}
	}
	return compareOrdered(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

// Equal reports whether a and b are equal under the same rules Compare
// orders by; for two points it calls types.Point.Equal, the same test
// Compare uses for its 0 result.
func Equal(a, b any) bool {
	if ap, ok := a.(types.Point); ok {
		if bp, ok := b.(types.Point); ok {
			return ap.Equal(bp)
		}
	}
	return Compare(a, b) == 0
}

func comparePoints(a, b types.Point) int {
	if a.Equal(b) {
		return 0
	}
	if a.Less(b) {
		return -1
	}
	return 1
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type ordered interface {
	int | int32 | int64 | uint32 | float64 | string
}

func compareOrdered[T ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
