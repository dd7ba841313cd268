package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/okian/abbayes/internal/domain/model"
	_ "modernc.org/sqlite"
)

type sqliteSource struct {
	path  string
	table string
}

// Records reads every row of the table. A missing table or column wraps
// model.ErrSchema; NULL cells leave the field unset.
func (s *sqliteSource) Records(ctx context.Context) ([]model.Record, error) {
	if _, err := os.Stat(s.path); err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	q := fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(Columns, ", "), s.table)
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: query %s: %w", model.ErrSchema, s.table, err)
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var (
			treat        sql.NullFloat64
			arm          sql.NullString
			conv, trials sql.NullFloat64
			rec          model.Record
		)
		if err := rows.Scan(&treat, &arm, &conv, &trials); err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", model.ErrSchema, len(out)+1, err)
		}
		if treat.Valid {
			t, err := model.TreatFlag(treat.Float64)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", len(out)+1, err)
			}
			rec.Treat = &t
		}
		if arm.Valid {
			rec.ArmID = armID(arm.String)
		}
		if conv.Valid {
			rec.Conversions = &conv.Float64
		}
		if trials.Valid {
			rec.Trials = &trials.Float64
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// WriteSQLite creates table in the database at path, replacing it if it
// exists, and inserts the records in one transaction.
func WriteSQLite(ctx context.Context, path, table string, records []model.Record) (err error) {
	if !validIdent(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { err = errors.Join(err, db.Close()) }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmts := []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table),
		fmt.Sprintf(`CREATE TABLE %s (
			treat       INTEGER,
			arm_id      TEXT,
			conversions INTEGER,
			trials      INTEGER
		)`, table),
	}
	for _, stmt := range stmts {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	ins, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (treat, arm_id, conversions, trials) VALUES (?, ?, ?, ?)`, table))
	if err != nil {
		return err
	}
	defer ins.Close()
	for _, r := range records {
		if _, err = ins.ExecContext(ctx, nullable(r.Treat), string(r.ArmID), nullable(r.Conversions), nullable(r.Trials)); err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}
	return tx.Commit()
}

func nullable[T int | float64](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
