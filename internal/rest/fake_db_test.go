package rest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slpdev/slp-api/internal/database"
	"github.com/slpdev/slp-api/internal/logger"
	"github.com/slpdev/slp-api/internal/schema"
)

// call scripts one expected database operation: the SQL and args the
// handler must produce, and the result the fake returns.
type call struct {
	wantSQL  string
	wantArgs []any

	cols     []string
	rows     [][]any
	affected int64
	err      error
}

// fakeDB is a scripted database.DB. Every Query/Exec (directly or through a
// transaction) consumes the next scripted call and asserts the generated SQL.
type fakeDB struct {
	t     *testing.T
	calls []call
	next  int
	txs   []*fakeTx
}

func newFakeDB(t *testing.T, calls ...call) *fakeDB {
	return &fakeDB{t: t, calls: calls}
}

func (d *fakeDB) pop(sql string, args []any) call {
	d.t.Helper()
	require.Less(d.t, d.next, len(d.calls), "unexpected database call: %s", sql)
	c := d.calls[d.next]
	d.next++
	require.Equal(d.t, c.wantSQL, sql)
	if c.wantArgs == nil {
		require.Empty(d.t, args)
	} else {
		require.Equal(d.t, c.wantArgs, args)
	}
	return c
}

// assertDone verifies the whole script was consumed.
func (d *fakeDB) assertDone() {
	d.t.Helper()
	require.Equal(d.t, len(d.calls), d.next, "not all scripted database calls were made")
}

func (d *fakeDB) Ping(context.Context) error { return nil }
func (d *fakeDB) Close()                     {}

func (d *fakeDB) Query(_ context.Context, sql string, args ...any) (database.Rows, error) {
	c := d.pop(sql, args)
	if c.err != nil {
		return nil, c.err
	}
	return &fakeRows{names: c.cols, rows: c.rows}, nil
}

func (d *fakeDB) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	c := d.pop(sql, args)
	return c.affected, c.err
}

func (d *fakeDB) Begin(context.Context) (database.Tx, error) {
	tx := &fakeTx{db: d}
	d.txs = append(d.txs, tx)
	return tx, nil
}

func (d *fakeDB) TableExists(context.Context, string) (bool, error) {
	return true, nil
}

func (d *fakeDB) InspectTable(context.Context, string) (*database.TableInfo, error) {
	d.t.Fatal("InspectTable must not be called at request time")
	return nil, nil
}

// lastTx returns the single transaction the handler opened.
func (d *fakeDB) lastTx() *fakeTx {
	require.Len(d.t, d.txs, 1, "expected exactly one transaction")
	return d.txs[0]
}

type fakeTx struct {
	db         *fakeDB
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	return t.db.Query(ctx, sql, args...)
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

type fakeRows struct {
	names  []string
	rows   [][]any
	pos    int
	closed bool
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	for i := range dest {
		*(dest[i].(*any)) = row[i]
	}
	return nil
}

func (r *fakeRows) Columns() ([]string, error) { return r.names, nil }
func (r *fakeRows) Close()                     { r.closed = true }
func (r *fakeRows) Err() error                 { return nil }

// subjectsTable is the descriptor fixture used throughout the rest tests.
func subjectsTable() *schema.Table {
	return &schema.Table{
		LogicalName: "subjects",
		Name:        "subjects",
		Columns: []schema.Column{
			{Name: "id", Kind: schema.KindInt, Nullable: false, HasDefault: true},
			{Name: "enrollment_id", Kind: schema.KindString, Nullable: false},
			{Name: "subject", Kind: schema.KindString, Nullable: false},
			{Name: "teacher", Kind: schema.KindString, Nullable: true},
			{Name: "score", Kind: schema.KindFloat, Nullable: true},
		},
		PrimaryKey: "id",
	}
}

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "fatal", Format: "json"})
}
