// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package store holds the PostgreSQL persistence for the category tree: the
// categories table and its closure index.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Errors reported when a write trips a schema constraint.
var (
	ErrTitleTaken    = errors.New("category title already taken")
	ErrParentMissing = errors.New("parent category does not exist")
	ErrNoTx          = errors.New("operation requires a transaction")
)

// PostgreSQL SQLSTATE codes mapped by mapWriteError.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// treeLockKey is the advisory lock taken by every structural mutation so
// that concurrent re-parents over overlapping subtrees serialize.
const treeLockKey int64 = 0x7461786f6e6f6d79

// DBTX is the subset of *sql.DB and *sql.Tx used by the store.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// conn returns the transaction carried by ctx, or the pool.
func (s *CategoryStore) conn(ctx context.Context) DBTX {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithinTx runs fn inside a single transaction. Store calls made with the
// context passed to fn join that transaction. The transaction commits only
// if fn returns nil; nested calls reuse the outer transaction.
func (s *CategoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LockTree takes the transaction-scoped tree lock. It is released on
// commit or rollback.
func (s *CategoryStore) LockTree(ctx context.Context) error {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	if !ok {
		return ErrNoTx
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, treeLockKey); err != nil {
		return fmt.Errorf("lock tree: %w", err)
	}
	return nil
}

// mapWriteError translates constraint violations into store errors.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%w: %s", ErrTitleTaken, pgErr.Detail)
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: %s", ErrParentMissing, pgErr.Detail)
	}
	return err
}
