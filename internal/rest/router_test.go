package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slpdev/slp-api/internal/errs"
	"github.com/slpdev/slp-api/internal/schema"
)

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeRecord(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func decodeRecords(t *testing.T, rec *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewTableRouter_RequiresSinglePK(t *testing.T) {
	table := subjectsTable()
	table.PrimaryKey = ""

	_, err := NewTableRouter(newFakeDB(t), table, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary key")
}

func TestList(t *testing.T) {
	db := newFakeDB(t, call{
		wantSQL:  `SELECT * FROM "subjects" LIMIT $1 OFFSET $2`,
		wantArgs: []any{10, 20},
		cols:     []string{"id", "subject"},
		rows:     [][]any{{int64(1), "Math"}, {int64(2), "Physics"}},
	})
	router, err := NewTableRouter(db, subjectsTable(), testLogger())
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodGet, "/?skip=20&limit=10", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	records := decodeRecords(t, rec)
	require.Len(t, records, 2)
	assert.Equal(t, "Math", records[0]["subject"])
	db.assertDone()
}

func TestList_Defaults(t *testing.T) {
	db := newFakeDB(t, call{
		wantSQL:  `SELECT * FROM "subjects" LIMIT $1 OFFSET $2`,
		wantArgs: []any{100, 0},
		cols:     []string{"id"},
	})
	router, err := NewTableRouter(db, subjectsTable(), testLogger())
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()), "empty result is an array, never null")
	db.assertDone()
}

func TestList_LimitZeroReturnsEmptyArray(t *testing.T) {
	db := newFakeDB(t, call{
		wantSQL:  `SELECT * FROM "subjects" LIMIT $1 OFFSET $2`,
		wantArgs: []any{0, 0},
		cols:     []string{"id"},
	})
	router, err := NewTableRouter(db, subjectsTable(), testLogger())
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodGet, "/?limit=0", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
	db.assertDone()
}

func TestList_BadParams(t *testing.T) {
	db := newFakeDB(t) // no calls: validation happens before the DB
	router, err := NewTableRouter(db, subjectsTable(), testLogger())
	require.NoError(t, err)

	for _, target := range []string{"/?skip=-1", "/?limit=abc", "/?limit=-5"} {
		rec := doRequest(t, router, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
	db.assertDone()
}

func TestList_QueryError(t *testing.T) {
	db := newFakeDB(t, call{
		wantSQL:  `SELECT * FROM "subjects" LIMIT $1 OFFSET $2`,
		wantArgs: []any{100, 0},
		err:      errs.New(errs.ErrKindQueryFailed, "boom"),
	})
	router, err := NewTableRouter(db, subjectsTable(), testLogger())
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeRecord(t, rec)["detail"], "Error fetching subjects")
}

func TestGet(t *testing.T) {
	db := newFakeDB(t, call{
		wantSQL:  `SELECT * FROM "subjects" WHERE "id" = $1`,
		wantArgs: []any{int64(5)},
		cols:     []string{"id", "subject"},
		rows:     [][]any{{int64(5), "Math"}},
	})
	router, err := NewTableRouter(db, subjectsTable(), testLogger())
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodGet, "/5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	record := decodeRecord(t, rec)
	assert.Equal(t, "Math", record["subject"])
	db.assertDone()
}

func TestGet_NotFound(t *testing.T) {
	db := newFakeDB(t, call{
		wantSQL:  `SELECT * FROM "subjects" WHERE "id" = $1`,
		wantArgs: []any{int64(99)},
		cols:     []string{"id"},
	})
	router, err := NewTableRouter(db, subjectsTable(), testLogger())
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodGet, "/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeRecord(t, rec)["detail"], "not found")
}

func TestGet_MalformedID(t *testing.T) {
	db := newFakeDB(t) // integer PK: a non-integer id never reaches the DB
	router, err := NewTableRouter(db, subjectsTable(), testLogger())
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodGet, "/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	db.assertDone()
}

func TestGet_StringPKPassesIDThrough(t *testing.T) {
	table := &schema.Table{
		LogicalName: "users-table",
		Name:        "users_table",
		Columns: []schema.Column{
			{Name: "email", Kind: schema.KindString},
			{Name: "name", Kind: schema.KindString, Nullable: true},
		},
		PrimaryKey: "email",
	}
	db := newFakeDB(t, call{
		wantSQL:  `SELECT * FROM "users_table" WHERE "email" = $1`,
		wantArgs: []any{"a@b.c"},
		cols:     []string{"email", "name"},
		rows:     [][]any{{"a@b.c", "Ada"}},
	})
	router, err := NewTableRouter(db, table, testLogger())
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodGet, "/a@b.c", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	db.assertDone()
}

func TestCreate(t *testing.T) {
	db := newFakeDB(t, call{
		wantSQL:  `INSERT INTO "subjects" ("enrollment_id", "subject") VALUES ($1, $2) RETURNING *`,
		wantArgs: []any{"E1", "Math"},
		cols:     []string{"id", "enrollment_id", "subject", "teacher", "score"},
		rows:     [][]any{{int64(1), "E1", "Math", nil, nil}},
	})
	router, err := NewTableRouter(db, subjectsTable(), testLogger())
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodPost, "/", `{"enrollment_id":"E1","subject":"Math"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	record := decodeRecord(t, rec)
	assert.Equal(t, float64(1), record["id"], "generated PK returned")
	assert.Equal(t, "E1", record["enrollment_id"])
	assert.Equal(t, "Math", record["subject"])

	assert.True(t, db.lastTx().committed)
	assert.False(t, db.lastTx().rolledBack)
	db.assertDone()
}

func TestCreate_ValidationFailsBeforeDB(t *testing.T) {
	db := newFakeDB(t) // no scripted calls: the DB must not be touched
	router, err := NewTableRouter(db, subjectsTable(), testLogger())
	require.NoError(t, err)

	tests := []string{
		`{"enrollment_id":"E1"}`,                // missing required subject
		`{"enrollment_id":"E1","subject":42}`,   // wrong type
		`{"enrollment_id":"E1","subject":null}`, // null on non-nullable
		`not json`,
	}
	for _, body := range tests {
		rec := doRequest(t, router, http.MethodPost, "/", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	db.assertDone()
	assert.Empty(t, db.txs, "no transaction may be opened for invalid input")
}

func TestCreate_IgnoresUnknownFields(t *testing.T) {
	db := newFakeDB(t, call{
		wantSQL:  `INSERT INTO "subjects" ("enrollment_id", "subject") VALUES ($1, $2) RETURNING *`,
		wantArgs: []any{"E1", "Math"},
		cols:     []string{"id", "enrollment_id", "subject", "teacher", "score"},
		rows:     [][]any{{int64(2), "E1", "Math", nil, nil}},
	})
	router, err := NewTableRouter(db, subjectsTable(), testLogger())
	require.NoError(t, err)

	// keys that are not columns never reach the generated SQL
	rec := doRequest(t, router, http.MethodPost, "/",
		`{"enrollment_id":"E1","subject":"Math","x":true}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	record := decodeRecord(t, rec)
	assert.Equal(t, "Math", record["subject"])
	assert.NotContains(t, record, "x")

	assert.True(t, db.lastTx().committed)
	db.assertDone()
}

func TestCreate_ConstraintViolationRollsBack(t *testing.T) {
	db := newFakeDB(t, call{
		wantSQL:  `INSERT INTO "subjects" ("enrollment_id", "subject") VALUES ($1, $2) RETURNING *`,
		wantArgs: []any{"E1", "Math"},
		err:      errs.New(errs.ErrKindConflict, "duplicate key value violates unique constraint"),
	})
	router, err := NewTableRouter(db, subjectsTable(), testLogger())
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodPost, "/", `{"enrollment_id":"E1","subject":"Math"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeRecord(t, rec)["detail"], "Error creating subjects")

	assert.True(t, db.lastTx().rolledBack)
	assert.False(t, db.lastTx().committed)
	db.assertDone()
}

func TestUpdate_Partial(t *testing.T) {
	db := newFakeDB(t,
		call{
			wantSQL:  `SELECT * FROM "subjects" WHERE "id" = $1`,
			wantArgs: []any{int64(5)},
			cols:     []string{"id", "enrollment_id", "subject", "teacher", "score"},
			rows:     [][]any{{int64(5), "E1", "Math", "Turing", 3.0}},
		},
		call{
			wantSQL:  `UPDATE "subjects" SET "subject" = $1 WHERE "id" = $2 RETURNING *`,
			wantArgs: []any{"Physics", int64(5)},
			cols:     []string{"id", "enrollment_id", "subject", "teacher", "score"},
			rows:     [][]any{{int64(5), "E1", "Physics", "Turing", 3.0}},
		},
	)
	router, err := NewTableRouter(db, subjectsTable(), testLogger())
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodPut, "/5", `{"subject":"Physics"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	record := decodeRecord(t, rec)
	assert.Equal(t, "Physics", record["subject"])
	assert.Equal(t, "Turing", record["teacher"], "omitted fields keep their prior value")

	assert.True(t, db.lastTx().committed)
	db.assertDone()
}

func TestUpdate_ExplicitNullClearsNullableColumn(t *testing.T) {
	db := newFakeDB(t,
		call{
			wantSQL:  `SELECT * FROM "subjects" WHERE "id" = $1`,
			wantArgs: []any{int64(5)},
			cols:     []string{"id", "teacher"},
			rows:     [][]any{{int64(5), "Turing"}},
		},
		call{
			wantSQL:  `UPDATE "subjects" SET "teacher" = $1 WHERE "id" = $2 RETURNING *`,
			wantArgs: []any{nil, int64(5)},
			cols:     []string{"id", "teacher"},
			rows:     [][]any{{int64(5), nil}},
		},
	)
	router, err := NewTableRouter(db, subjectsTable(), testLogger())
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodPut, "/5", `{"teacher":null}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeRecord(t, rec)["teacher"])
	db.assertDone()
}

func TestUpdate_NotFound(t *testing.T) {
	db := newFakeDB(t, call{
		wantSQL:  `SELECT * FROM "subjects" WHERE "id" = $1`,
		wantArgs: []any{int64(99)},
		cols:     []string{"id"},
	})
	router, err := NewTableRouter(db, subjectsTable(), testLogger())
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodPut, "/99", `{"subject":"Physics"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, db.lastTx().rolledBack)
	db.assertDone()
}

func TestUpdate_EmptyBodyReturnsCurrentRow(t *testing.T) {
	db := newFakeDB(t, call{
		wantSQL:  `SELECT * FROM "subjects" WHERE "id" = $1`,
		wantArgs: []any{int64(5)},
		cols:     []string{"id", "subject"},
		rows:     [][]any{{int64(5), "Math"}},
	})
	router, err := NewTableRouter(db, subjectsTable(), testLogger())
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodPut, "/5", `{}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Math", decodeRecord(t, rec)["subject"])
	assert.True(t, db.lastTx().committed)
	db.assertDone()
}

func TestDelete(t *testing.T) {
	db := newFakeDB(t, call{
		wantSQL:  `DELETE FROM "subjects" WHERE "id" = $1`,
		wantArgs: []any{int64(5)},
		affected: 1,
	})
	router, err := NewTableRouter(db, subjectsTable(), testLogger())
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodDelete, "/5", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.True(t, db.lastTx().committed)
	db.assertDone()
}

func TestDelete_SecondDeleteIs404(t *testing.T) {
	db := newFakeDB(t,
		call{wantSQL: `DELETE FROM "subjects" WHERE "id" = $1`, wantArgs: []any{int64(5)}, affected: 1},
		call{wantSQL: `DELETE FROM "subjects" WHERE "id" = $1`, wantArgs: []any{int64(5)}, affected: 0},
	)
	router, err := NewTableRouter(db, subjectsTable(), testLogger())
	require.NoError(t, err)

	first := doRequest(t, router, http.MethodDelete, "/5", "")
	assert.Equal(t, http.StatusNoContent, first.Code)

	second := doRequest(t, router, http.MethodDelete, "/5", "")
	assert.Equal(t, http.StatusNotFound, second.Code)

	require.Len(t, db.txs, 2)
	assert.True(t, db.txs[0].committed)
	assert.True(t, db.txs[1].rolledBack)
	db.assertDone()
}

func TestDelete_QueryError(t *testing.T) {
	db := newFakeDB(t, call{
		wantSQL:  `DELETE FROM "subjects" WHERE "id" = $1`,
		wantArgs: []any{int64(5)},
		err:      errs.New(errs.ErrKindQueryFailed, "boom"),
	})
	router, err := NewTableRouter(db, subjectsTable(), testLogger())
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodDelete, "/5", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, db.lastTx().rolledBack)
	db.assertDone()
}
