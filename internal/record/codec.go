// Package record implements the fixed-width record codec: encoding and
// decoding one row of a table's schema to and from a deterministic
// little-endian byte layout, plus the trailing `next` free-list field shared
// by every slot in a heap file.
package record

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jochuuuu/reldb/internal/types"
)

// Row holds one record's attribute values, keyed by attribute name. Values
// are the Go-native representation: int32, float64, bool, uint32 (DATE),
// string, or types.Point.
type Row map[string]any

// Live and End are the two sentinel values a record's trailing `next` field
// can carry. Live means the slot holds a record; any other value means the
// slot is free and `next` links to the next free slot (End terminates the
// chain). The two meanings must never be conflated: a live slot's `next` is
// always exactly Live.
const (
	Live int32 = -2
	End  int32 = -1
)

// Codec encodes and decodes records for one schema.
type Codec struct {
	schema types.Schema
}

// New builds a Codec for schema.
func New(schema types.Schema) *Codec {
	return &Codec{schema: schema}
}

// Size returns the total encoded size of one record, attributes plus the
// trailing 4-byte `next` field. Every slot in the owning heap file is
// exactly this many bytes.
func (c *Codec) Size() int {
	return c.schema.RecordSize()
}

// Encode serializes row against the schema, with next written as the
// trailing field. Every attribute declared in the schema must be present in
// row; Encode does not fill in defaults.
func (c *Codec) Encode(row Row, next int32) ([]byte, error) {
	buf := make([]byte, c.Size())
	offset := 0
	for _, attr := range c.schema.Attributes {
		v, ok := row[attr.Name]
		if !ok {
			return nil, fmt.Errorf("record: missing attribute %q", attr.Name)
		}
		n, err := encodeAttribute(buf[offset:], attr, v)
		if err != nil {
			return nil, fmt.Errorf("record: attribute %q: %w", attr.Name, err)
		}
		offset += n
	}
	binary.LittleEndian.PutUint32(buf[offset:], uint32(next))
	return buf, nil
}

// Decode reverses Encode, returning the attribute values and the trailing
// `next` field. Textual attributes have trailing NUL bytes trimmed.
func (c *Codec) Decode(buf []byte) (Row, int32, error) {
	if len(buf) != c.Size() {
		return nil, 0, fmt.Errorf("record: expected %d bytes, got %d", c.Size(), len(buf))
	}
	row := make(Row, len(c.schema.Attributes))
	offset := 0
	for _, attr := range c.schema.Attributes {
		v, n, err := decodeAttribute(buf[offset:], attr)
		if err != nil {
			return nil, 0, fmt.Errorf("record: attribute %q: %w", attr.Name, err)
		}
		row[attr.Name] = v
		offset += n
	}
	next := int32(binary.LittleEndian.Uint32(buf[offset:]))
	return row, next, nil
}

func encodeAttribute(dst []byte, attr types.Attribute, v any) (int, error) {
	switch attr.Type {
	case types.TypeInt:
		i, err := toInt32(v)
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint32(dst, uint32(i))
		return 4, nil
	case types.TypeDecimal:
		f, err := toFloat64(v)
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint64(dst, math.Float64bits(f))
		return 8, nil
	case types.TypeBool:
		b, err := toBool(v)
		if err != nil {
			return 0, err
		}
		if b {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
		return 1, nil
	case types.TypeDate:
		u, err := toUint32(v)
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint32(dst, u)
		return 4, nil
	case types.TypeChar, types.TypeVarchar:
		s, err := toStringValue(v)
		if err != nil {
			return 0, err
		}
		n := attr.Size
		if len(s) > n {
			return 0, fmt.Errorf("value %q exceeds capacity %d", s, n)
		}
		copy(dst[:n], s)
		for i := len(s); i < n; i++ {
			dst[i] = 0
		}
		return n, nil
	case types.TypePoint:
		p, err := toPoint(v)
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint64(dst[0:8], math.Float64bits(p.X))
		binary.LittleEndian.PutUint64(dst[8:16], math.Float64bits(p.Y))
		return 16, nil
	default:
		return 0, fmt.Errorf("unsupported data type %q", attr.Type)
	}
}

func decodeAttribute(src []byte, attr types.Attribute) (any, int, error) {
	switch attr.Type {
	case types.TypeInt:
		return int32(binary.LittleEndian.Uint32(src)), 4, nil
	case types.TypeDecimal:
		return math.Float64frombits(binary.LittleEndian.Uint64(src)), 8, nil
	case types.TypeBool:
		return src[0] != 0, 1, nil
	case types.TypeDate:
		return binary.LittleEndian.Uint32(src), 4, nil
	case types.TypeChar, types.TypeVarchar:
		n := attr.Size
		s := string(src[:n])
		return strings.TrimRight(s, "\x00"), n, nil
	case types.TypePoint:
		x := math.Float64frombits(binary.LittleEndian.Uint64(src[0:8]))
		y := math.Float64frombits(binary.LittleEndian.Uint64(src[8:16]))
		return types.Point{X: x, Y: y}, 16, nil
	default:
		return nil, 0, fmt.Errorf("unsupported data type %q", attr.Type)
	}
}

func toInt32(v any) (int32, error) {
	switch t := v.(type) {
	case int32:
		return t, nil
	case int:
		return int32(t), nil
	case int64:
		return int32(t), nil
	case float64:
		return int32(t), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 32)
		if err != nil {
			return 0, fmt.Errorf("cannot coerce %q to INT", t)
		}
		return int32(i), nil
	default:
		return 0, fmt.Errorf("cannot coerce %T to INT", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot coerce %q to DECIMAL", t)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot coerce %T to DECIMAL", v)
	}
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case int:
		return t != 0, nil
	case int32:
		return t != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "t", "yes":
			return true, nil
		case "false", "0", "f", "no", "":
			return false, nil
		}
		return false, fmt.Errorf("cannot coerce %q to BOOL", t)
	default:
		return false, fmt.Errorf("cannot coerce %T to BOOL", v)
	}
}

func toUint32(v any) (uint32, error) {
	switch t := v.(type) {
	case uint32:
		return t, nil
	case int:
		return uint32(t), nil
	case int32:
		return uint32(t), nil
	case int64:
		return uint32(t), nil
	case float64:
		return uint32(t), nil
	case string:
		u, err := strconv.ParseUint(strings.TrimSpace(t), 10, 32)
		if err != nil {
			return 0, fmt.Errorf("cannot coerce %q to DATE", t)
		}
		return uint32(u), nil
	default:
		return 0, fmt.Errorf("cannot coerce %T to DATE", v)
	}
}

func toStringValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func toPoint(v any) (types.Point, error) {
	switch t := v.(type) {
	case types.Point:
		return t, nil
	case *types.Point:
		return *t, nil
	case string:
		return types.ParsePoint(t)
	case [2]float64:
		return types.Point{X: t[0], Y: t[1]}, nil
	case []float64:
		if len(t) != 2 {
			return types.Point{}, fmt.Errorf("point tuple must have 2 elements, got %d", len(t))
		}
		return types.Point{X: t[0], Y: t[1]}, nil
	case []any:
		if len(t) != 2 {
			return types.Point{}, fmt.Errorf("point tuple must have 2 elements, got %d", len(t))
		}
		x, err := toFloat64(t[0])
		if err != nil {
			return types.Point{}, err
		}
		y, err := toFloat64(t[1])
		if err != nil {
			return types.Point{}, err
		}
		return types.Point{X: x, Y: y}, nil
	case map[string]any:
		x, xok := t["x"]
		y, yok := t["y"]
		if !xok || !yok {
			return types.Point{}, fmt.Errorf("point dict requires \"x\" and \"y\" keys")
		}
		xf, err := toFloat64(x)
		if err != nil {
			return types.Point{}, err
		}
		yf, err := toFloat64(y)
		if err != nil {
			return types.Point{}, err
		}
		return types.Point{X: xf, Y: yf}, nil
	default:
		return types.Point{}, fmt.Errorf("cannot coerce %T to POINT", v)
	}
}

// Coerce converts v into the Go-native representation for attr's declared
// type (the same conversions Encode uses internally), without encoding it.
// Table inserts use this to validate and normalize values before writing.
func Coerce(attr types.Attribute, v any) (any, error) {
	switch attr.Type {
	case types.TypeInt:
		return toInt32(v)
	case types.TypeDecimal:
		return toFloat64(v)
	case types.TypeBool:
		return toBool(v)
	case types.TypeDate:
		return toUint32(v)
	case types.TypeChar, types.TypeVarchar:
		s, err := toStringValue(v)
		if err != nil {
			return nil, err
		}
		if len(s) > attr.Size {
			return nil, fmt.Errorf("value %q exceeds capacity %d for %q", s, attr.Size, attr.Name)
		}
		return s, nil
	case types.TypePoint:
		return toPoint(v)
	default:
		return nil, fmt.Errorf("unsupported data type %q", attr.Type)
	}
}

// ZeroValue returns the declared-type default used when CSV import's type
// coercion fails for a non-key column: 0, 0.0, false, "", or the origin.
func ZeroValue(attr types.Attribute) any {
	switch attr.Type {
	case types.TypeInt:
		return int32(0)
	case types.TypeDecimal:
		return float64(0)
	case types.TypeBool:
		return false
	case types.TypeDate:
		return uint32(0)
	case types.TypeChar, types.TypeVarchar:
		return ""
	case types.TypePoint:
		return types.Point{}
	default:
		return nil
	}
}
