package pg

import (
	"context"
	"database/sql"
	"time"

	"learnhub.dev/internal/ids"
	"learnhub.dev/internal/security"
)

type identityRepo struct{ q querier }

const identityColumns = `id, name, email, password, language, status, created_at, last_login`

func (r identityRepo) Create(ctx context.Context, identity *security.Identity) error {
	if identity.ID == "" {
		identity.ID = ids.New()
	}
	_, err := r.q.ExecContext(ctx, `
		insert into identities (id, name, email, password, language, status, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, identity.ID, identity.Name, identity.Email, identity.PasswordHash, identity.Language, int(identity.Status), identity.CreatedAt)
	return mapError(err)
}

func (r identityRepo) Find(ctx context.Context, id string) (*security.Identity, error) {
	row := r.q.QueryRowContext(ctx, `select `+identityColumns+` from identities where id = $1`, id)
	return scanIdentity(row)
}

func (r identityRepo) FindByName(ctx context.Context, name string) (*security.Identity, error) {
	row := r.q.QueryRowContext(ctx, `
		select `+identityColumns+`
		from identities
		where lower(name) = lower($1) and status < $2
	`, name, int(security.StatusDeleted))
	return scanIdentity(row)
}

func (r identityRepo) FindByEmail(ctx context.Context, email string) (*security.Identity, error) {
	row := r.q.QueryRowContext(ctx, `
		select `+identityColumns+`
		from identities
		where lower(email) = lower($1) and status < $2
		order by created_at
		limit 1
	`, email, int(security.StatusDeleted))
	return scanIdentity(row)
}

func (r identityRepo) UpdateStatus(ctx context.Context, id string, status security.IdentityStatus) error {
	return expectOne(r.q.ExecContext(ctx, `update identities set status = $2 where id = $1`, id, int(status)))
}

func (r identityRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return expectOne(r.q.ExecContext(ctx, `update identities set last_login = $2 where id = $1`, id, at.UTC()))
}

func scanIdentity(row *sql.Row) (*security.Identity, error) {
	var (
		identity  security.Identity
		status    int
		lastLogin sql.NullTime
	)
	err := row.Scan(&identity.ID, &identity.Name, &identity.Email, &identity.PasswordHash,
		&identity.Language, &status, &identity.CreatedAt, &lastLogin)
	if err != nil {
		return nil, mapError(err)
	}
	identity.Status = security.IdentityStatus(status)
	identity.CreatedAt = identity.CreatedAt.UTC()
	identity.LastLogin = timePtr(lastLogin)
	return &identity, nil
}
