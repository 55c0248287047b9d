// Package engine ties the catalog, table managers, and SQL front end
// together behind one mutex, producing the per-statement batch envelope
// every caller (CLI, REST) shares.
package engine

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jochuuuu/reldb/internal/catalog"
	"github.com/jochuuuu/reldb/internal/index"
	"github.com/jochuuuu/reldb/internal/logging"
	"github.com/jochuuuu/reldb/internal/record"
	"github.com/jochuuuu/reldb/internal/sqlfront"
	"github.com/jochuuuu/reldb/internal/types"
)

var log = logging.GetLogger("engine")

// Engine serializes every statement batch against one data directory's
// catalog behind a single mutex — the core packages stay single-writer;
// this lock just makes that true mechanically for concurrent callers.
type Engine struct {
	mu      sync.Mutex
	catalog *catalog.Catalog
}

// Open creates or rehydrates an Engine rooted at dataDir/indexDir.
func Open(dataDir, indexDir string) (*Engine, error) {
	cat, err := catalog.Open(dataDir, indexDir)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return &Engine{catalog: cat}, nil
}

// StatementResult is one element of a batch response's "results" array.
type StatementResult struct {
	Kind    string `json:"kind"`
	Error   bool   `json:"error"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// BatchResult is the top-level envelope every entry point (CLI, REST)
// returns for a ;-separated batch of statements.
type BatchResult struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Results []StatementResult `json:"results"`
}

// ExecuteBatch parses and runs every statement in sql in order, reporting
// success/failure per statement; a single statement's failure never aborts
// the rest of the batch.
func (e *Engine) ExecuteBatch(sql string) BatchResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	lookup := func(name string) (types.Schema, bool) {
		mgr, ok := e.catalog.Table(name)
		if !ok {
			return types.Schema{}, false
		}
		return mgr.Schema(), true
	}

	statements, err := sqlfront.Parse(sql, lookup)
	if err != nil {
		log.Error("batch parse failed", "error", err)
		return BatchResult{
			Success: false,
			Message: err.Error(),
			Results: []StatementResult{{Kind: "PARSE", Error: true, Message: err.Error()}},
		}
	}

	results := make([]StatementResult, 0, len(statements))
	allOK := true
	for _, stmt := range statements {
		res := e.executeOne(stmt)
		if res.Error {
			allOK = false
		}
		results = append(results, res)
	}

	message := "ok"
	if !allOK {
		message = "one or more statements failed"
	}
	return BatchResult{Success: allOK, Message: message, Results: results}
}

func (e *Engine) executeOne(stmt sqlfront.Statement) StatementResult {
	switch stmt.Kind {
	case sqlfront.KindCreate:
		return e.execCreate(stmt.Create)
	case sqlfront.KindInsert:
		return e.execInsert(stmt.Insert)
	case sqlfront.KindSelect:
		return e.execSelect(stmt.Select)
	case sqlfront.KindDelete:
		return e.execDelete(stmt.Delete)
	case sqlfront.KindImportCSV:
		return e.execImport(stmt.Import)
	default:
		return errResult(string(stmt.Kind), ErrParseError, "unrecognized statement")
	}
}

func (e *Engine) execCreate(c *sqlfront.CreateTable) StatementResult {
	if _, err := e.catalog.CreateTable(c.Schema); err != nil {
		return errResult("CREATE", classify(err), err.Error())
	}
	return StatementResult{Kind: "CREATE", Data: map[string]any{"table_name": c.Schema.TableName}}
}

func (e *Engine) execInsert(ins *sqlfront.InsertInto) StatementResult {
	mgr, ok := e.catalog.Table(ins.TableName)
	if !ok {
		return errResult("INSERT", ErrSchemaMismatch, fmt.Sprintf("table %q does not exist", ins.TableName))
	}
	rows, err := ins.ResolveRows(mgr.Schema())
	if err != nil {
		return errResult("INSERT", ErrTypeCoercionFailed, err.Error())
	}

	var insertedIDs []int32
	var failed []map[string]any
	for i, row := range rows {
		id, err := mgr.Insert(row)
		if err != nil {
			log.Error("insert failed", "table", ins.TableName, "row", i+1, "error", err)
			failed = append(failed, map[string]any{"row": i + 1, "error": err.Error()})
			continue
		}
		insertedIDs = append(insertedIDs, id)
	}

	data := map[string]any{
		"table_name":   ins.TableName,
		"inserted_ids": insertedIDs,
	}
	if len(failed) > 0 {
		data["failed"] = failed
	}
	if len(insertedIDs) == 0 && len(failed) > 0 {
		return StatementResult{Kind: "INSERT", Error: true, Message: "all rows failed to insert", Data: data}
	}
	return StatementResult{Kind: "INSERT", Data: data}
}

func (e *Engine) execSelect(q *sqlfront.SelectQuery) StatementResult {
	mgr, ok := e.catalog.Table(q.TableName)
	if !ok {
		return errResult("SELECT", ErrSchemaMismatch, fmt.Sprintf("table %q does not exist", q.TableName))
	}

	ids, err := mgr.Select(q.Equals, q.Ranges, q.Spatials)
	if err != nil {
		log.Error("select failed", "table", q.TableName, "error", err)
		return errResult("SELECT", classify(err), err.Error())
	}

	rows := make([]record.Row, 0, len(ids))
	for _, id := range ids {
		row, live, err := mgr.Get(id)
		if err != nil || !live {
			continue
		}
		rows = append(rows, projectRow(row, q.Attributes))
	}

	return StatementResult{Kind: "SELECT", Data: map[string]any{
		"table_name": q.TableName,
		"columns":    q.Attributes,
		"rows":       rows,
		"count":      len(rows),
	}}
}

func (e *Engine) execDelete(d *sqlfront.DeleteFrom) StatementResult {
	mgr, ok := e.catalog.Table(d.TableName)
	if !ok {
		return errResult("DELETE", ErrSchemaMismatch, fmt.Sprintf("table %q does not exist", d.TableName))
	}

	ids, err := mgr.Select(d.Equals, d.Ranges, d.Spatials)
	if err != nil {
		log.Error("delete probe failed", "table", d.TableName, "error", err)
		return errResult("DELETE", classify(err), err.Error())
	}

	deleted := make([]int32, 0, len(ids))
	for _, id := range ids {
		ok, err := mgr.Delete(id)
		if err != nil {
			log.Error("delete failed", "table", d.TableName, "id", id, "error", err)
			continue
		}
		if ok {
			deleted = append(deleted, id)
		}
	}

	return StatementResult{Kind: "DELETE", Data: map[string]any{
		"table_name": d.TableName,
		"deleted":    deleted,
		"count":      len(deleted),
	}}
}

func (e *Engine) execImport(imp *sqlfront.ImportCSV) StatementResult {
	mgr, ok := e.catalog.Table(imp.TableName)
	if !ok {
		return errResult("IMPORT_CSV", ErrSchemaMismatch, fmt.Sprintf("table %q does not exist", imp.TableName))
	}

	var insertedIDs []int32
	var failed []int
	for i, row := range imp.Rows {
		id, err := mgr.Insert(row)
		if err != nil {
			log.Error("csv import row failed", "table", imp.TableName, "row", i+1, "error", err)
			failed = append(failed, i+1)
			continue
		}
		insertedIDs = append(insertedIDs, id)
	}

	return StatementResult{Kind: "IMPORT_CSV", Data: map[string]any{
		"table_name":       imp.TableName,
		"csv_file":         imp.CSVPath,
		"total_rows":       imp.TotalRows,
		"inserted_ids":     insertedIDs,
		"failed_rows":      failed,
		"successful_count": len(insertedIDs),
		"failed_count":     len(failed),
	}}
}

func projectRow(row record.Row, columns []string) record.Row {
	out := make(record.Row, len(columns))
	for _, c := range columns {
		out[c] = row[c]
	}
	return out
}

func errResult(kind string, sentinel error, message string) StatementResult {
	return StatementResult{Kind: kind, Error: true, Message: message, Data: map[string]any{"error_kind": sentinel.Error()}}
}

// classify maps an arbitrary error from the core packages onto the
// engine's sentinel taxonomy, by sentinel comparison first and message
// substring matching as a fallback for the plain fmt.Errorf-wrapped
// errors the table/sqlfront packages return.
func classify(err error) error {
	switch {
	case errors.Is(err, index.ErrNotSupported):
		return ErrUnsupportedOperation
	case errors.Is(err, index.ErrDuplicateKey):
		return ErrDuplicateKey
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no index"):
		return ErrMissingIndex
	case strings.Contains(msg, "duplicate"):
		return ErrDuplicateKey
	case strings.Contains(msg, "does not exist") || strings.Contains(msg, "unknown attribute") || strings.Contains(msg, "unknown column"):
		return ErrSchemaMismatch
	case strings.Contains(msg, "invalid") || strings.Contains(msg, "parse"):
		return ErrParseError
	case strings.Contains(msg, "coerc") || strings.Contains(msg, "attribute"):
		return ErrTypeCoercionFailed
	default:
		return ErrIOError
	}
}
