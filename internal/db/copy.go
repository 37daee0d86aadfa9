package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-inserts rows into a schema-qualified table ("schema.table"
// or "table") using the COPY protocol.
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := pool.CopyFrom(ctx, identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}

// ReplaceConfig describes a partition of a table that is rewritten as a unit.
type ReplaceConfig struct {
	Table     string   // target table, e.g. "food_access.nodes"
	Columns   []string // columns being inserted
	KeyColumn string   // column identifying the partition, e.g. "place"
	KeyValue  any
}

// ReplaceRows deletes every row whose key column equals the key value and
// COPYs the new rows in, inside one transaction. Readers never observe a
// partially written partition.
func ReplaceRows(ctx context.Context, pool Pool, cfg ReplaceConfig, rows [][]any) (int64, error) {
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: replace: no columns specified")
	}
	if cfg.KeyColumn == "" {
		return 0, eris.New("db: replace: no key column specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: replace: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		sanitizeTable(cfg.Table), pgx.Identifier{cfg.KeyColumn}.Sanitize())
	if _, err := tx.Exec(ctx, deleteSQL, cfg.KeyValue); err != nil {
		return 0, eris.Wrapf(err, "db: replace: delete from %s", cfg.Table)
	}

	var n int64
	if len(rows) > 0 {
		n, err = tx.CopyFrom(ctx, identifier(cfg.Table), cfg.Columns, pgx.CopyFromRows(rows))
		if err != nil {
			return 0, eris.Wrapf(err, "db: replace: COPY INTO %s", cfg.Table)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: replace: commit tx")
	}
	return n, nil
}

func identifier(table string) pgx.Identifier {
	parts := strings.SplitN(table, ".", 2)
	return pgx.Identifier(parts)
}

// sanitizeTable handles schema-qualified table names like "food_access.nodes".
func sanitizeTable(table string) string {
	return identifier(table).Sanitize()
}

// QuoteAndJoin quotes each column name and joins with commas.
func QuoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
