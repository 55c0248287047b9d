// Package types holds the data-model types shared by every layer of the
// storage engine: data types, attributes, schemas, and the Point geometry
// type. Nothing in this package touches disk.
package types

import "fmt"

// DataType identifies the wire/on-disk representation of an attribute.
type DataType string

const (
	TypeInt     DataType = "INT"
	TypeDecimal DataType = "DECIMAL"
	TypeBool    DataType = "BOOL"
	TypeDate    DataType = "DATE"
	TypeChar    DataType = "CHAR"
	TypeVarchar DataType = "VARCHAR"
	TypePoint   DataType = "POINT"
)

// FixedSize returns the encoded size in bytes for data types whose size does
// not depend on a declared capacity. CHAR/VARCHAR return 0; use
// Attribute.Size for those.
func (d DataType) FixedSize() int {
	switch d {
	case TypeInt:
		return 4
	case TypeDecimal:
		return 8
	case TypeBool:
		return 1
	case TypeDate:
		return 4
	case TypePoint:
		return 16
	default:
		return 0
	}
}

// IsTextual reports whether d is CHAR or VARCHAR, the only variable-capacity
// (but still fixed-width-on-disk) types.
func (d DataType) IsTextual() bool {
	return d == TypeChar || d == TypeVarchar
}

// IndexKind names the secondary-index structure backing a column.
type IndexKind string

const (
	IndexNone  IndexKind = ""
	IndexHash  IndexKind = "hash"
	IndexAVL   IndexKind = "avl"
	IndexBTree IndexKind = "btree"
	IndexISAM  IndexKind = "isam" // alias for btree, kept distinct in grammar
	IndexRTree IndexKind = "rtree"
)

// Normalize maps the ISAM alias onto btree; every other kind passes through
// unchanged.
func (k IndexKind) Normalize() IndexKind {
	if k == IndexISAM {
		return IndexBTree
	}
	return k
}

// Attribute describes one column of a Schema.
type Attribute struct {
	Name     string
	Type     DataType
	Size     int // capacity in bytes for CHAR/VARCHAR; ignored otherwise
	IsKey    bool
	Index    IndexKind
}

// EncodedSize returns the number of bytes this attribute occupies in a
// record, not including the trailing `next` field.
func (a Attribute) EncodedSize() int {
	if a.Type.IsTextual() {
		return a.Size
	}
	return a.Type.FixedSize()
}

// Validate checks that the attribute is internally consistent: a declared
// size for textual types, no size for fixed types, and rtree indexes only on
// POINT columns.
func (a Attribute) Validate() error {
	if a.Type.IsTextual() && a.Size <= 0 {
		return fmt.Errorf("attribute %q: %s requires a positive size", a.Name, a.Type)
	}
	if !a.Type.IsTextual() && a.Size != 0 {
		return fmt.Errorf("attribute %q: %s does not take a size", a.Name, a.Type)
	}
	if a.Index.Normalize() == IndexRTree && a.Type != TypePoint {
		return fmt.Errorf("attribute %q: rtree index requires POINT type, got %s", a.Name, a.Type)
	}
	return nil
}

// Schema is an ordered list of attributes for one table.
type Schema struct {
	TableName  string
	Attributes []Attribute
}

// RecordSize is the total encoded size of one record, attributes plus the
// trailing 4-byte signed `next` field.
func (s Schema) RecordSize() int {
	total := 4 // trailing next
	for _, a := range s.Attributes {
		total += a.EncodedSize()
	}
	return total
}

// Attribute looks up an attribute by name.
func (s Schema) Attribute(name string) (Attribute, bool) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// PrimaryKey returns the attribute marked IsKey, if any.
func (s Schema) PrimaryKey() (Attribute, bool) {
	for _, a := range s.Attributes {
		if a.IsKey {
			return a, true
		}
	}
	return Attribute{}, false
}

// Validate checks every attribute and that at most one is marked IsKey.
func (s Schema) Validate() error {
	if s.TableName == "" {
		return fmt.Errorf("schema: table name is required")
	}
	if len(s.Attributes) == 0 {
		return fmt.Errorf("schema %q: at least one attribute is required", s.TableName)
	}
	seen := make(map[string]bool, len(s.Attributes))
	keyCount := 0
	for _, a := range s.Attributes {
		if seen[a.Name] {
			return fmt.Errorf("schema %q: duplicate attribute %q", s.TableName, a.Name)
		}
		seen[a.Name] = true
		if err := a.Validate(); err != nil {
			return fmt.Errorf("schema %q: %w", s.TableName, err)
		}
		if a.IsKey {
			keyCount++
		}
	}
	if keyCount > 1 {
		return fmt.Errorf("schema %q: at most one primary key attribute is allowed", s.TableName)
	}
	return nil
}
