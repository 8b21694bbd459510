package sqlite

import (
	"fmt"
	"strings"
)

// pragmaStatements run once on open, before the schema.
var pragmaStatements = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
}

// upsertClause returns the ON CONFLICT clause that overwrites updateColumns
// from the row being inserted. No columns means keep the existing row.
func upsertClause(conflictColumn string, updateColumns ...string) string {
	if len(updateColumns) == 0 {
		return fmt.Sprintf("ON CONFLICT(%s) DO NOTHING", conflictColumn)
	}
	updates := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updates[i] = fmt.Sprintf("%s=excluded.%s", col, col)
	}
	return fmt.Sprintf("ON CONFLICT(%s) DO UPDATE SET %s", conflictColumn, strings.Join(updates, ", "))
}

var upsertKV = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?) ` +
	upsertClause("key", "value", "updated_at")
