package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/GoPolymarket/treasury/internal/journal/migrations"
	"github.com/GoPolymarket/treasury/internal/reconcile"
)

// SQLiteStore persists entries in a SQLite database.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens the journal at path and applies the embedded schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

func applyMigrations(db *sql.DB) error {
	names, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		body, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return err
		}
		if _, err := db.Exec(string(body)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.ID == uuid.Nil {
		return fmt.Errorf("journal entry id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO journal_entries (
		   id, seq, kind, stage, block, recorded_at,
		   previous, reported, delta, fee, buffer_top_up, peg_recovered,
		   distributed, epoch_amount, buffer_burned, vault_burned, backing_reduction,
		   vault_frozen, principal_frozen
		 ) VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM journal_entries), ?, ?, ?, ?,
		   ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), string(e.Kind), int(e.Stage), int64(e.Block), e.At.UTC().UnixMilli(),
		dec(e.Previous), dec(e.Reported), dec(e.Delta), dec(e.Fee), dec(e.BufferTopUp), dec(e.PegRecovered),
		dec(e.Distributed), dec(e.EpochAmount), dec(e.BufferBurned), dec(e.VaultBurned), dec(e.BackingReduction),
		e.VaultFrozen, e.PrincipalFrozen,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, kind, stage, block, recorded_at,
		   previous, reported, delta, fee, buffer_top_up, peg_recovered,
		   distributed, epoch_amount, buffer_burned, vault_burned, backing_reduction,
		   vault_frozen, principal_frozen
		 FROM journal_entries ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			id      string
			kind    string
			stage   int
			block   int64
			at      int64
			amounts [11]string
		)
		if err := rows.Scan(&id, &kind, &stage, &block, &at,
			&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4], &amounts[5],
			&amounts[6], &amounts[7], &amounts[8], &amounts[9], &amounts[10],
			&e.VaultFrozen, &e.PrincipalFrozen); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("journal entry id %q: %w", id, err)
		}
		e.Kind = reconcile.Kind(kind)
		e.Stage = reconcile.Stage(stage)
		e.Block = uint64(block)
		e.At = time.UnixMilli(at).UTC()
		targets := []**uint256.Int{
			&e.Previous, &e.Reported, &e.Delta, &e.Fee, &e.BufferTopUp, &e.PegRecovered,
			&e.Distributed, &e.EpochAmount, &e.BufferBurned, &e.VaultBurned, &e.BackingReduction,
		}
		for i, dst := range targets {
			v, err := uint256.FromDecimal(amounts[i])
			if err != nil {
				return nil, fmt.Errorf("journal entry %s amount %q: %w", id, amounts[i], err)
			}
			*dst = v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
