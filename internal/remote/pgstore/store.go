package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/remote"
)

// Store implements remote.Store on Postgres via sqlx.
type Store struct {
	db  *sqlx.DB
	log *logger.Logger
}

var _ remote.Store = (*Store)(nil)

func New(db *sqlx.DB, log *logger.Logger) *Store {
	// Unsafe tolerates RETURNING * columns a destination struct does not map.
	return &Store{db: db.Unsafe(), log: log.With("store", "pgstore")}
}

func (s *Store) Select(ctx context.Context, q remote.Query, dest any) error {
	query, args, err := buildSelect(q)
	if err != nil {
		return err
	}
	if err := s.db.SelectContext(ctx, dest, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("select %s: %w", q.Table, err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context, table string, filters ...remote.Filter) (int, error) {
	query, args, err := buildCount(table, filters)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (s *Store) Insert(ctx context.Context, table string, values remote.Values, dest any) error {
	query, args, err := buildInsert(table, values, dest != nil)
	if err != nil {
		return err
	}
	query = s.db.Rebind(query)
	if dest == nil {
		_, err = s.db.ExecContext(ctx, query, args...)
	} else {
		err = s.db.GetContext(ctx, dest, query, args...)
	}
	if isUniqueViolation(err) {
		return remote.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table string, filters []remote.Filter, patch remote.Values, dest any) error {
	query, args, err := buildUpdate(table, filters, patch, dest != nil)
	if err != nil {
		return err
	}
	query = s.db.Rebind(query)
	switch {
	case dest == nil:
		_, err = s.db.ExecContext(ctx, query, args...)
	case isSlicePtr(dest):
		err = s.db.SelectContext(ctx, dest, query, args...)
	default:
		err = s.db.GetContext(ctx, dest, query, args...)
		if errors.Is(err, sql.ErrNoRows) {
			return remote.ErrNotFound
		}
	}
	if isUniqueViolation(err) {
		return remote.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table string, filters ...remote.Filter) error {
	query, args, err := buildDelete(table, filters)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

func isSlicePtr(v any) bool {
	t := reflect.TypeOf(v)
	return t != nil && t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Slice
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
