package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"learnhub.dev/internal/security"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrCheckViolation      = "23514"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements security.Store on PostgreSQL.
type Store struct {
	db *sql.DB
	q  querier
	tx bool
}

var _ security.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Identities(context.Context) security.IdentityStore   { return identityRepo{s.q} }
func (s *Store) Groups(context.Context) security.GroupStore           { return groupRepo{s.q} }
func (s *Store) Memberships(context.Context) security.MembershipStore { return membershipRepo{s.q} }
func (s *Store) Policies(context.Context) security.PolicyStore        { return policyRepo{s.q} }
func (s *Store) Invitations(context.Context) security.InvitationStore { return invitationRepo{s.q} }

// WithTx runs fn inside a transaction. Nested calls join the outer one.
func (s *Store) WithTx(ctx context.Context, fn func(tx security.Store) error) error {
	if s.tx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Store{db: s.db, q: tx, tx: true}); err != nil {
		return err
	}
	return tx.Commit()
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// mapError translates constraint violations into security sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return security.ErrNotFound
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s", security.ErrConflict, pgErr.ConstraintName)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: %s", security.ErrNotFound, pgErr.ConstraintName)
		case pgErrCheckViolation:
			return fmt.Errorf("%w: %s", security.ErrInvalidInput, pgErr.ConstraintName)
		}
	}
	return err
}

// expectOne turns an update or delete that touched nothing into ErrNotFound.
func expectOne(res sql.Result, err error) error {
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return security.ErrNotFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
