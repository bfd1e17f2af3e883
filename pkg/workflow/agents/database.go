package agents

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/akios/akios/pkg/workflow"
)

const databaseMaxRows = 10_000

// ddlPrefixes are statement kinds a workflow step may never issue,
// regardless of allow_write (spec.md §4.9 database row: "DDL always
// rejected").
var ddlPrefixes = []string{"create", "alter", "drop", "truncate", "grant", "revoke"}

// dmlPrefixes are statement kinds that mutate data and require the
// step's config to set allow_write explicitly true.
var dmlPrefixes = []string{"insert", "update", "delete"}

// concatenationRe flags the classic sign of a hand-built query string —
// a quoted literal concatenated with another fragment — which defeats
// parameterized queries (spec.md §4.9 database row: "no
// string-concatenation patterns").
var concatenationRe = regexp.MustCompile(`'\s*\+\s*|\+\s*'|%s`)

// DatabaseAgent implements the `database` kind: a single parameterized
// query against a pre-opened connection (spec.md §4.9 database row).
// `select` is always permitted; insert/update/delete require the step to
// set `allow_write: true` explicitly; DDL (create/alter/drop/truncate/
// grant/revoke) is never permitted regardless of allow_write.
type DatabaseAgent struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewDatabaseAgent(db *sql.DB, logger *slog.Logger) *DatabaseAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatabaseAgent{db: db, logger: logger}
}

func (a *DatabaseAgent) Kind() workflow.AgentKind { return workflow.AgentDatabase }

// Validate enforces spec.md §4.9's database row: `query` is required,
// DDL is always rejected, DML requires `allow_write: true`, `timeout`
// (if present) is at most 60s, `max_rows` (if present) is at most
// 10,000, and the query text must not show the string-concatenation
// patterns of a hand-built, unparameterized query.
func (a *DatabaseAgent) Validate(cfg map[string]any) error {
	query, _ := cfg["query"].(string)
	if query == "" {
		return fmt.Errorf("database: missing required field 'query'")
	}
	normalized := strings.ToLower(strings.TrimSpace(query))
	firstWord := strings.Fields(normalized)
	verb := ""
	if len(firstWord) > 0 {
		verb = firstWord[0]
	}

	for _, ddl := range ddlPrefixes {
		if verb == ddl {
			return fmt.Errorf("database: security violation: %s statements are never permitted", ddl)
		}
	}

	isDML := false
	for _, dml := range dmlPrefixes {
		if verb == dml {
			isDML = true
			allowWrite, _ := cfg["allow_write"].(bool)
			if !allowWrite {
				return fmt.Errorf("database: security violation: %s requires 'allow_write: true'", dml)
			}
		}
	}
	if verb != "select" && !isDML {
		return fmt.Errorf("database: only select or allow_write-gated write statements are permitted, got %q", verb)
	}

	if concatenationRe.MatchString(query) {
		return fmt.Errorf("database: query must be parameterized, not string-concatenated")
	}

	if err := validTimeout(cfg, 60, "database"); err != nil {
		return err
	}
	if v, ok := cfg["max_rows"]; ok {
		n, ok := asInt(v)
		if !ok || n <= 0 || n > databaseMaxRows {
			return fmt.Errorf("database: 'max_rows' must be between 0 and %d", databaseMaxRows)
		}
	}
	return nil
}

func (a *DatabaseAgent) Execute(ctx context.Context, cfg map[string]any, ec *workflow.ExecutionContext) (any, error) {
	query := cfg["query"].(string)

	var args []any
	if raw, ok := cfg["args"].([]any); ok {
		args = raw
	}

	verb := ""
	if fields := strings.Fields(strings.ToLower(strings.TrimSpace(query))); len(fields) > 0 {
		verb = fields[0]
	}
	if verb != "select" {
		res, err := a.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("database: exec failed: %w", err)
		}
		n, _ := res.RowsAffected()
		a.logger.Info("agents: database write completed", "rows_affected", n)
		return map[string]any{"rows_affected": n}, nil
	}

	maxRows := databaseMaxRows
	if n, ok := asInt(cfg["max_rows"]); ok && n > 0 {
		maxRows = n
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database: query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("database: reading columns: %w", err)
	}

	var results []map[string]any
	for rows.Next() && len(results) < maxRows {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("database: scanning row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	a.logger.Info("agents: database query completed", "rows", len(results))
	return map[string]any{"rows": results, "count": len(results)}, nil
}
