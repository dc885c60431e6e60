package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/taskboard-labs/taskboard/internal/domain"
	dbplatform "github.com/taskboard-labs/taskboard/internal/platform/postgres"
	"github.com/taskboard-labs/taskboard/internal/repo"
)

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func handleNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repo.ErrNotFound
	}
	return err
}

// classifyWrite maps constraint violations onto repo sentinels.
func classifyWrite(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case dbplatform.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, repo.ErrConflict)
	case dbplatform.IsForeignKeyViolation(err):
		return fmt.Errorf("%s: %w", op, repo.ErrNotFound)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// expectRows turns an UPDATE or DELETE that matched fewer rows than expected
// into ErrNotFound.
func expectRows(res sql.Result, want int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != want {
		return repo.ErrNotFound
	}
	return nil
}

func nullDate(d *time.Time) sql.NullTime {
	if d == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: domain.Day(*d), Valid: true}
}

func datePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	d := domain.Day(v.Time)
	return &d
}

type scanner interface {
	Scan(dest ...any) error
}
