package schema

import (
	"context"
	"fmt"
	"sort"

	"github.com/slpdev/slp-api/internal/database"
	"github.com/slpdev/slp-api/internal/errs"
)

// Mapping maps logical (API-facing) table names to physical table names.
type Mapping map[string]string

// DefaultMapping lists every table slp-api exposes.
func DefaultMapping() Mapping {
	return Mapping{
		"enrollments":          "enrollments",
		"subjects":             "subjects",
		"assessments/eol":      "assessments_eol",
		"assessments/fa":       "assessments_fa",
		"assessments/sa":       "assessments_sa",
		"assessment-weights":   "assessment_weights",
		"users-table":          "users_table",
		"myp-grade-boundaries": "myp_grade_boundaries",
		"dp-grade-boundaries":  "dp_grade_boundaries",
	}
}

// Registry holds the reflected descriptors of all exposed tables.
// Loaded once at startup; immutable and safe for concurrent reads.
type Registry struct {
	tables map[string]*Table // keyed by logical name
}

// Load reflects every table in the mapping eagerly. A logical name that
// resolves to a missing table is a startup error, not a first-request error.
func Load(ctx context.Context, db database.DB, mapping Mapping) (*Registry, error) {
	tables := make(map[string]*Table, len(mapping))

	// Deterministic reflection order keeps startup logs and failures stable.
	logicals := make([]string, 0, len(mapping))
	for logical := range mapping {
		logicals = append(logicals, logical)
	}
	sort.Strings(logicals)

	for _, logical := range logicals {
		physical := mapping[logical]

		// Cheap existence check before the column/key queries, so a
		// misconfigured mapping fails with a direct message.
		exists, err := db.TableExists(ctx, physical)
		if err != nil {
			return nil, fmt.Errorf("checking table %q (logical %q): %w", physical, logical, err)
		}
		if !exists {
			return nil, errs.New(errs.ErrKindNotFound,
				fmt.Sprintf("table %q (logical %q) does not exist", physical, logical))
		}

		info, err := db.InspectTable(ctx, physical)
		if err != nil {
			return nil, fmt.Errorf("reflecting table %q (logical %q): %w", physical, logical, err)
		}
		tables[logical] = fromTableInfo(logical, info)
	}

	return &Registry{tables: tables}, nil
}

// Lookup returns the descriptor for the logical name, or a NotFound error.
func (r *Registry) Lookup(logical string) (*Table, error) {
	t, ok := r.tables[logical]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound,
			fmt.Sprintf("table %q not found in registry", logical))
	}
	return t, nil
}

// Logical returns all logical names in sorted order.
func (r *Registry) Logical() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fromTableInfo converts raw introspection output into a Table descriptor.
// A composite primary key is recorded as no primary key: the router factory
// only supports single-column keys and must fail at build time.
func fromTableInfo(logical string, info *database.TableInfo) *Table {
	t := &Table{
		LogicalName: logical,
		Name:        info.Name,
		Columns:     make([]Column, len(info.Columns)),
	}

	for i, c := range info.Columns {
		t.Columns[i] = Column{
			Name:       c.Name,
			Kind:       KindOf(c.DataType),
			Nullable:   c.Nullable,
			HasDefault: c.HasDefault,
		}
	}

	if len(info.PrimaryKey) == 1 {
		t.PrimaryKey = info.PrimaryKey[0]
	}

	return t
}
