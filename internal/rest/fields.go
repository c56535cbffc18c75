package rest

import (
	"github.com/slpdev/slp-api/internal/schema"
)

// Record is the generic wire representation of one row: column name to
// scalar value. It is used uniformly for request and response bodies —
// no per-table entity types exist.
type Record map[string]any

// field is the derived validation descriptor for one column.
type field struct {
	name     string
	kind     schema.Kind
	nullable bool
	required bool
}

// fieldSet is a validation schema derived once per table at build time.
type fieldSet struct {
	byName map[string]field
}

// createFields derives the Create schema: every column is accepted, and a
// column is required when it is non-nullable and carries no server default
// (a serial primary key has a default, so clients may omit it).
func createFields(t *schema.Table) fieldSet {
	fs := fieldSet{byName: make(map[string]field, len(t.Columns))}
	for _, c := range t.Columns {
		fs.byName[c.Name] = field{
			name:     c.Name,
			kind:     c.Kind,
			nullable: c.Nullable,
			required: !c.Nullable && !c.HasDefault,
		}
	}
	return fs
}

// updateFields derives the Update schema: the same columns as Create, but
// all optional — the basis of partial update semantics.
func updateFields(t *schema.Table) fieldSet {
	fs := createFields(t)
	for name, f := range fs.byName {
		f.required = false
		fs.byName[name] = f
	}
	return fs
}

// responseFields derives the Response schema. It mirrors Create; responses
// are raw records so this exists for documentation and parity with the
// request schemas.
func responseFields(t *schema.Table) fieldSet {
	return createFields(t)
}
