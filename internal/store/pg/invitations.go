package pg

import (
	"context"
	"database/sql"
	"time"

	"learnhub.dev/internal/ids"
	"learnhub.dev/internal/security"
)

type invitationRepo struct{ q querier }

func (r invitationRepo) Create(ctx context.Context, inv *security.Invitation) error {
	if inv.ID == "" {
		inv.ID = ids.New()
	}
	_, err := r.q.ExecContext(ctx, `
		insert into invitations (id, token, group_id, email, created_at)
		values ($1, $2, $3, $4, $5)
	`, inv.ID, inv.Token, inv.GroupID, inv.Email, inv.CreatedAt)
	return mapError(err)
}

func (r invitationRepo) FindByToken(ctx context.Context, token string) (*security.Invitation, error) {
	var inv security.Invitation
	err := r.q.QueryRowContext(ctx, `
		select id, token, group_id, email, created_at from invitations where token = $1
	`, token).Scan(&inv.ID, &inv.Token, &inv.GroupID, &inv.Email, &inv.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &inv, nil
}

func (r invitationRepo) ListCreatedBefore(ctx context.Context, before time.Time) ([]security.Invitation, error) {
	rows, err := r.q.QueryContext(ctx, `
		select id, token, group_id, email, created_at
		from invitations
		where created_at < $1
		order by created_at
	`, before.UTC())
	if err != nil {
		return nil, err
	}
	return scanInvitations(rows)
}

func (r invitationRepo) ListByMember(ctx context.Context, identityID string) ([]security.Invitation, error) {
	rows, err := r.q.QueryContext(ctx, `
		select i.id, i.token, i.group_id, i.email, i.created_at
		from invitations i
		join memberships m on m.group_id = i.group_id
		where m.identity_id = $1
		order by i.created_at
	`, identityID)
	if err != nil {
		return nil, err
	}
	return scanInvitations(rows)
}

func (r invitationRepo) Delete(ctx context.Context, id string) error {
	return expectOne(r.q.ExecContext(ctx, `delete from invitations where id = $1`, id))
}

func (r invitationRepo) DeleteByGroup(ctx context.Context, groupID string) error {
	_, err := r.q.ExecContext(ctx, `delete from invitations where group_id = $1`, groupID)
	return err
}

func scanInvitations(rows *sql.Rows) ([]security.Invitation, error) {
	defer rows.Close()
	var result []security.Invitation
	for rows.Next() {
		var inv security.Invitation
		if err := rows.Scan(&inv.ID, &inv.Token, &inv.GroupID, &inv.Email, &inv.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
