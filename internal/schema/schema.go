// Package schema turns raw introspection output into the immutable table
// descriptors the REST layer is built from. Descriptors are loaded once at
// startup and passed explicitly — there is no global registry.
package schema

// Kind is the scalar type tag used for request validation and path-parameter
// parsing. Database types with no mapping degrade to KindString: the value
// still round-trips, only type checking loses precision.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	case KindTime:
		return "datetime"
	default:
		return "string"
	}
}

// Column is the API-facing descriptor for one table column.
type Column struct {
	Name       string
	Kind       Kind
	Nullable   bool
	HasDefault bool
}

// Table is the API-facing descriptor for one exposed table.
// Built once at startup; read-only thereafter.
type Table struct {
	// LogicalName is the stable API-facing identifier (e.g. "assessments/eol").
	LogicalName string

	// Name is the physical table name in the database.
	Name string

	// Columns in ordinal position order.
	Columns []Column

	// PrimaryKey names the single PK column. Empty when the table has
	// no PK or a composite one; the router factory rejects both cases.
	PrimaryKey string
}

// Column returns the descriptor for the named column, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// PKColumn returns the descriptor of the primary key column, or nil.
func (t *Table) PKColumn() *Column {
	if t.PrimaryKey == "" {
		return nil
	}
	return t.Column(t.PrimaryKey)
}

// kindByDataType maps information_schema data_type names to scalar kinds.
var kindByDataType = map[string]Kind{
	"smallint":                    KindInt,
	"integer":                     KindInt,
	"bigint":                      KindInt,
	"smallserial":                 KindInt,
	"serial":                      KindInt,
	"bigserial":                   KindInt,
	"real":                        KindFloat,
	"double precision":            KindFloat,
	"numeric":                     KindFloat,
	"boolean":                     KindBool,
	"date":                        KindTime,
	"timestamp without time zone": KindTime,
	"timestamp with time zone":    KindTime,
	"time without time zone":      KindTime,
	"time with time zone":         KindTime,
	"text":                        KindString,
	"character varying":           KindString,
	"character":                   KindString,
	"uuid":                        KindString,
}

// KindOf returns the scalar kind for a Postgres data type name.
// Unknown types fall back to KindString.
func KindOf(dataType string) Kind {
	if k, ok := kindByDataType[dataType]; ok {
		return k
	}
	return KindString
}
