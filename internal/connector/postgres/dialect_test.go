package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/glowcloud/glow/internal/connector"
)

func TestLockKeyUsesAdvisoryXactLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	xdb := sqlx.NewDb(db, "pgx")

	keyID := "0192a1b2-0000-7000-8000-000000000001"
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(connector.LockID(keyID)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := xdb.BeginTxx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTxx: %v", err)
	}
	unlock, err := New().LockKey(ctx, tx, keyID)
	if err != nil {
		t.Fatalf("LockKey: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	unlock()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLockKeyError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	xdb := sqlx.NewDb(db, "pgx")

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnError(errors.New("canceling statement due to user request"))
	mock.ExpectRollback()

	ctx := context.Background()
	tx, _ := xdb.BeginTxx(ctx, nil)
	if _, err := New().LockKey(ctx, tx, "k"); err == nil {
		t.Fatal("expected lock error")
	}
	tx.Rollback()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestIsDuplicateObject(t *testing.T) {
	d := New()
	if !d.IsDuplicateObject(&pgconn.PgError{Code: "42P07"}) {
		t.Error("42P07 should be a duplicate object")
	}
	if d.IsDuplicateObject(&pgconn.PgError{Code: "23505"}) {
		t.Error("23505 is a unique violation, not a duplicate object")
	}
	if d.IsDuplicateObject(errors.New("boom")) {
		t.Error("plain errors are not duplicate objects")
	}
}
