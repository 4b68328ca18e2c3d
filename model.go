package mongoferry

// Column represents a single column as reported by the source catalog.
type Column struct {
	Name       string // catalog-reported column name
	DataType   string // catalog-reported native type, lowercased (e.g. "varchar", "int")
	Nullable   bool
	OrdinalPos int
}

// ForeignKey is one foreign-key edge discovered by introspection:
// child table/column → parent table/column. A table may carry several.
type ForeignKey struct {
	ChildTable   string
	ChildColumn  string
	ParentTable  string
	ParentColumn string
}

// Table holds the full introspected definition of one source table.
type Table struct {
	Name        string
	Columns     []Column
	PrimaryKey  []string // primary-key column names in key order; empty when none
	ForeignKeys []ForeignKey
}

// TargetType is a member of the closed set of document-store types a value
// is coerced into before being written to MongoDB.
type TargetType string

const (
	TypeString   TargetType = "string"
	TypeInt32    TargetType = "int32"
	TypeInt64    TargetType = "int64"
	TypeFloat    TargetType = "float"
	TypeDecimal  TargetType = "decimal"
	TypeBool     TargetType = "bool"
	TypeDate     TargetType = "date"
	TypeDateTime TargetType = "datetime"
	TypeArray    TargetType = "array"
	TypeDict     TargetType = "dict"
	TypeObjectID TargetType = "objectid"
	TypeNull     TargetType = "null"
)

// TargetTypes lists every valid target type, in the order operators see them.
var TargetTypes = []TargetType{
	TypeString, TypeInt32, TypeInt64, TypeFloat, TypeDecimal,
	TypeBool, TypeDate, TypeDateTime, TypeArray, TypeDict,
	TypeObjectID, TypeNull,
}

// Valid reports whether t is a member of the closed target type set.
func (t TargetType) Valid() bool {
	for _, v := range TargetTypes {
		if t == v {
			return true
		}
	}
	return false
}

// FieldMapping is one resolved column mapping: which source column feeds
// which target field, and the type the value is coerced into.
type FieldMapping struct {
	SourceColumn string
	TargetName   string
	TargetType   TargetType
}

// Strategy is the operator's handling choice for a foreign-key edge.
// Strategies are advisory metadata only: the executor performs single-table
// scans and never nests or dereferences related rows.
type Strategy string

const (
	StrategyEmbed     Strategy = "embed"
	StrategyReference Strategy = "reference"
	StrategyIgnore    Strategy = "ignore"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyEmbed, StrategyReference, StrategyIgnore:
		return true
	}
	return false
}

// RelationshipAssignment pairs a discovered foreign-key edge with the
// strategy the operator chose for it.
type RelationshipAssignment struct {
	Edge     ForeignKey
	Strategy Strategy
}

// Row is one source row as a column name → native value mapping.
type Row map[string]any

// Document is one converted document, keyed by target field name. Values
// are BSON-level representations produced by Convert.
type Document map[string]any
