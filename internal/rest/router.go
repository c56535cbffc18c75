package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/slpdev/slp-api/internal/database"
	"github.com/slpdev/slp-api/internal/errs"
	"github.com/slpdev/slp-api/internal/logger"
	"github.com/slpdev/slp-api/internal/schema"
)

const defaultListLimit = 100

// tableRouter serves the five CRUD operations for one table. All schema
// work (locating the primary key, deriving the validation field sets)
// happens once in NewTableRouter, never per request.
type tableRouter struct {
	db    database.DB
	table *schema.Table
	log   *logger.Logger

	pk       schema.Column
	create   fieldSet
	update   fieldSet
	response fieldSet
}

// NewTableRouter builds the CRUD router for one reflected table:
//
//	GET    /        list (skip/limit)
//	GET    /{id}    fetch by primary key
//	POST   /        insert
//	PUT    /{id}    partial update
//	DELETE /{id}    delete by primary key
//
// It fails if the table does not have exactly one primary-key column.
func NewTableRouter(db database.DB, table *schema.Table, log *logger.Logger) (chi.Router, error) {
	pk := table.PKColumn()
	if pk == nil {
		return nil, errs.New(errs.ErrKindInvalidInput,
			fmt.Sprintf("table %q has no single-column primary key", table.Name))
	}

	tr := &tableRouter{
		db:       db,
		table:    table,
		log:      log.With().Str("table", table.Name).Logger(),
		pk:       *pk,
		create:   createFields(table),
		update:   updateFields(table),
		response: responseFields(table),
	}

	r := chi.NewRouter()
	r.Get("/", tr.handleList)
	r.Post("/", tr.handleCreate)
	r.Get("/{id}", tr.handleGet)
	r.Put("/{id}", tr.handleUpdate)
	r.Delete("/{id}", tr.handleDelete)
	return r, nil
}

// parseID converts the path parameter to the primary key's scalar kind.
// Integer keys are parsed strictly; every other kind is passed through as
// a string and cast by the database.
func (tr *tableRouter) parseID(r *http.Request) (any, error) {
	raw := chi.URLParam(r, "id")
	if tr.pk.Kind == schema.KindInt {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errs.New(errs.ErrKindInvalidInput,
				fmt.Sprintf("invalid id %q: expected integer", raw))
		}
		return id, nil
	}
	return raw, nil
}

// handleList returns up to limit rows starting at offset skip.
func (tr *tableRouter) handleList(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := parseListParams(r)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "%v", err)
		return
	}

	sql, args, err := database.Select(tr.table.Name).Limit(limit).Offset(skip).Build()
	if err != nil {
		tr.fail(w, http.StatusInternalServerError, "fetching", err)
		return
	}

	rows, err := tr.db.Query(r.Context(), sql, args...)
	if err != nil {
		tr.fail(w, http.StatusInternalServerError, "fetching", err)
		return
	}

	records, err := database.ScanRows(rows)
	if err != nil {
		tr.fail(w, http.StatusInternalServerError, "fetching", err)
		return
	}

	respondJSON(w, http.StatusOK, records)
}

// handleGet fetches a single row by primary key.
func (tr *tableRouter) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := tr.parseID(r)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "%v", err)
		return
	}

	record, err := tr.fetchByID(r.Context(), tr.db, id)
	if err != nil {
		if errs.IsNotFound(err) {
			respondDetail(w, http.StatusNotFound, "%s with id %v not found", tr.table.Name, id)
			return
		}
		tr.fail(w, http.StatusInternalServerError, "fetching", err)
		return
	}

	respondJSON(w, http.StatusOK, record)
}

// handleCreate validates the body against the Create schema and inserts a
// row with only the supplied fields; omitted columns take their defaults.
func (tr *tableRouter) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r.Body)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "%v", err)
		return
	}

	rec, err := tr.create.validate(body)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "Error creating %s: %v", tr.table.Name, err)
		return
	}

	ctx := r.Context()
	tx, err := tr.db.Begin(ctx)
	if err != nil {
		tr.fail(w, http.StatusBadRequest, "creating", err)
		return
	}

	ins := database.Insert(tr.table.Name)
	for _, col := range tr.table.Columns {
		if val, ok := rec[col.Name]; ok {
			ins.Set(col.Name, val)
		}
	}
	sql, args, err := ins.Build()
	if err != nil {
		tr.rollbackAndFail(w, tx, http.StatusBadRequest, "creating", err)
		return
	}

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		tr.rollbackAndFail(w, tx, http.StatusBadRequest, "creating", err)
		return
	}

	inserted, err := database.ScanOneRow(rows)
	if err != nil {
		tr.rollbackAndFail(w, tx, http.StatusBadRequest, "creating", err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		tr.rollbackAndFail(w, tx, http.StatusBadRequest, "creating", err)
		return
	}

	respondJSON(w, http.StatusCreated, inserted)
}

// handleUpdate applies a partial update: only fields present in the body
// change; an explicit null clears a nullable column; omitted fields keep
// their prior value.
func (tr *tableRouter) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := tr.parseID(r)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "%v", err)
		return
	}

	body, err := decodeBody(r.Body)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "%v", err)
		return
	}

	rec, err := tr.update.validate(body)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "Error updating %s: %v", tr.table.Name, err)
		return
	}

	ctx := r.Context()
	tx, err := tr.db.Begin(ctx)
	if err != nil {
		tr.fail(w, http.StatusBadRequest, "updating", err)
		return
	}

	current, err := tr.fetchByID(ctx, tx, id)
	if err != nil {
		if errs.IsNotFound(err) {
			tr.rollback(ctx, tx)
			respondDetail(w, http.StatusNotFound, "%s with id %v not found", tr.table.Name, id)
			return
		}
		tr.rollbackAndFail(w, tx, http.StatusBadRequest, "updating", err)
		return
	}

	upd := database.Update(tr.table.Name)
	supplied := 0
	for _, col := range tr.table.Columns {
		if val, ok := rec[col.Name]; ok {
			upd.Set(col.Name, val)
			supplied++
		}
	}

	// Empty body: nothing to change, return the row as-is.
	if supplied == 0 {
		if err := tx.Commit(ctx); err != nil {
			tr.rollbackAndFail(w, tx, http.StatusBadRequest, "updating", err)
			return
		}
		respondJSON(w, http.StatusOK, current)
		return
	}

	sql, args, err := upd.Where(tr.pk.Name, "=", id).Build()
	if err != nil {
		tr.rollbackAndFail(w, tx, http.StatusBadRequest, "updating", err)
		return
	}

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		tr.rollbackAndFail(w, tx, http.StatusBadRequest, "updating", err)
		return
	}

	updated, err := database.ScanOneRow(rows)
	if err != nil {
		tr.rollbackAndFail(w, tx, http.StatusBadRequest, "updating", err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		tr.rollbackAndFail(w, tx, http.StatusBadRequest, "updating", err)
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

// handleDelete removes a row by primary key. Deleting a missing row is 404;
// deleting an existing one returns 204 with an empty body.
func (tr *tableRouter) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := tr.parseID(r)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "%v", err)
		return
	}

	ctx := r.Context()
	tx, err := tr.db.Begin(ctx)
	if err != nil {
		tr.fail(w, http.StatusInternalServerError, "deleting", err)
		return
	}

	sql, args, err := database.Delete(tr.table.Name).Where(tr.pk.Name, "=", id).Build()
	if err != nil {
		tr.rollbackAndFail(w, tx, http.StatusInternalServerError, "deleting", err)
		return
	}

	affected, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		tr.rollbackAndFail(w, tx, http.StatusInternalServerError, "deleting", err)
		return
	}
	if affected == 0 {
		tr.rollback(ctx, tx)
		respondDetail(w, http.StatusNotFound, "%s with id %v not found", tr.table.Name, id)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		tr.rollbackAndFail(w, tx, http.StatusInternalServerError, "deleting", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// querier is the subset of DB/Tx the fetch helper needs, so reads work the
// same inside and outside a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (database.Rows, error)
}

// fetchByID selects one row by primary key equality.
func (tr *tableRouter) fetchByID(ctx context.Context, q querier, id any) (map[string]any, error) {
	sql, args, err := database.Select(tr.table.Name).Where(tr.pk.Name, "=", id).Build()
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	return database.ScanOneRow(rows)
}

// rollback ends a transaction, logging a rollback failure instead of
// masking the error that caused it.
func (tr *tableRouter) rollback(ctx context.Context, tx database.Tx) {
	if err := tx.Rollback(ctx); err != nil {
		tr.log.ErrorWith("rollback failed", err, map[string]interface{}{"table": tr.table.Name})
	}
}

// rollbackAndFail rolls the transaction back before surfacing the error,
// so the connection never returns to the pool mid-transaction.
func (tr *tableRouter) rollbackAndFail(w http.ResponseWriter, tx database.Tx, status int, verb string, err error) {
	tr.rollback(context.Background(), tx)
	tr.fail(w, status, verb, err)
}

func (tr *tableRouter) fail(w http.ResponseWriter, status int, verb string, err error) {
	tr.log.ErrorWith("request failed", err, map[string]interface{}{"op": verb})
	respondDetail(w, status, "Error %s %s: %v", verb, tr.table.Name, err)
}

// parseListParams reads skip and limit from the query string.
// Defaults: skip=0, limit=100. Negative values are rejected; limit=0 is
// valid and yields an empty result.
func parseListParams(r *http.Request) (skip, limit int, err error) {
	skip, err = intQueryParam(r, "skip", 0)
	if err != nil {
		return 0, 0, err
	}
	limit, err = intQueryParam(r, "limit", defaultListLimit)
	if err != nil {
		return 0, 0, err
	}
	return skip, limit, nil
}

func intQueryParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s parameter %q: expected non-negative integer", name, raw)
	}
	return v, nil
}
