// Package mysql implements the repository contracts on MySQL through
// database/sql and go-sql-driver/mysql. Identifiers are UUIDv7 strings so
// that ordering by id follows insertion order, which cursor pagination
// relies on.
package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/iliyamo/task-manager/internal/repository"
)

//go:embed schema.sql
var schema string

// erDupEntry is MySQL's duplicate key error number.
const erDupEntry = 1062

// NewStore returns a repository.Store over db. Close closes db.
func NewStore(db *sql.DB) repository.Store {
	return repository.Store{
		Users:  NewUserRepo(db),
		Tokens: NewTokenRepo(db),
		Tasks:  NewTaskRepo(db),
		Close:  func(context.Context) error { return db.Close() },
	}
}

// EnsureSchema creates the tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == erDupEntry
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// now is truncated to the DATETIME(6) precision so values read back compare
// equal to the ones written.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
