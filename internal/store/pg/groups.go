package pg

import (
	"context"
	"database/sql"
	"fmt"

	"learnhub.dev/internal/ids"
	"learnhub.dev/internal/security"
)

type groupRepo struct{ q querier }

func (r groupRepo) Create(ctx context.Context, group *security.Group) error {
	if group.ID == "" {
		group.ID = ids.New()
	}
	_, err := r.q.ExecContext(ctx, `insert into security_groups (id, created_at) values ($1, $2)`, group.ID, group.CreatedAt)
	return mapError(err)
}

func (r groupRepo) Find(ctx context.Context, id string) (*security.Group, error) {
	var g security.Group
	err := r.q.QueryRowContext(ctx, `select id, created_at from security_groups where id = $1`, id).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &g, nil
}

// Delete fails with ErrConflict while anything still references the group.
func (r groupRepo) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `delete from security_groups where id = $1`, id)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return fmt.Errorf("%w: group %s is still referenced", security.ErrConflict, id)
	}
	return expectOne(res, err)
}

func (r groupRepo) Bind(ctx context.Context, name, groupID string) error {
	_, err := r.q.ExecContext(ctx, `insert into named_groups (name, group_id) values ($1, $2)`, name, groupID)
	return mapError(err)
}

func (r groupRepo) Unbind(ctx context.Context, groupID string) error {
	_, err := r.q.ExecContext(ctx, `delete from named_groups where group_id = $1`, groupID)
	return err
}

func (r groupRepo) FindByName(ctx context.Context, name string) (*security.Group, error) {
	var g security.Group
	err := r.q.QueryRowContext(ctx, `
		select g.id, g.created_at
		from named_groups n
		join security_groups g on g.id = n.group_id
		where n.name = $1
	`, name).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &g, nil
}

type membershipRepo struct{ q querier }

func (r membershipRepo) Add(ctx context.Context, m security.Membership) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		insert into memberships (identity_id, group_id, joined_at)
		values ($1, $2, $3)
		on conflict (identity_id, group_id) do nothing
	`, m.IdentityID, m.GroupID, m.JoinedAt)
	if err != nil {
		return false, mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r membershipRepo) Remove(ctx context.Context, identityID, groupID string) error {
	return expectOne(r.q.ExecContext(ctx, `delete from memberships where identity_id = $1 and group_id = $2`, identityID, groupID))
}

func (r membershipRepo) Exists(ctx context.Context, identityID, groupID string) (bool, error) {
	n, err := r.Count(ctx, identityID, groupID)
	return n > 0, err
}

func (r membershipRepo) Count(ctx context.Context, identityID, groupID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `
		select count(*) from memberships where identity_id = $1 and group_id = $2
	`, identityID, groupID).Scan(&n)
	return n, err
}

func (r membershipRepo) ListByGroup(ctx context.Context, groupID string) ([]security.Membership, error) {
	rows, err := r.q.QueryContext(ctx, `
		select identity_id, group_id, joined_at
		from memberships
		where group_id = $1
		order by joined_at, identity_id
	`, groupID)
	if err != nil {
		return nil, err
	}
	return scanMemberships(rows)
}

func (r membershipRepo) ListByIdentity(ctx context.Context, identityID string) ([]security.Membership, error) {
	rows, err := r.q.QueryContext(ctx, `
		select identity_id, group_id, joined_at
		from memberships
		where identity_id = $1
		order by joined_at, group_id
	`, identityID)
	if err != nil {
		return nil, err
	}
	return scanMemberships(rows)
}

func (r membershipRepo) DeleteByGroup(ctx context.Context, groupID string) error {
	_, err := r.q.ExecContext(ctx, `delete from memberships where group_id = $1`, groupID)
	return err
}

func scanMemberships(rows *sql.Rows) ([]security.Membership, error) {
	defer rows.Close()
	var result []security.Membership
	for rows.Next() {
		var m security.Membership
		if err := rows.Scan(&m.IdentityID, &m.GroupID, &m.JoinedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
