package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"learnhub.dev/internal/ids"
	"learnhub.dev/internal/security"
)

type policyRepo struct{ q querier }

func (r policyRepo) Create(ctx context.Context, p *security.Policy) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	_, err := r.q.ExecContext(ctx, `
		insert into policies (id, group_id, permission, resource_type, resource_id, valid_from, valid_to, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.GroupID, string(p.Permission), p.Resource.TypeName, p.Resource.ID,
		nullTime(p.ValidFrom), nullTime(p.ValidTo), p.CreatedAt)
	return mapError(err)
}

func (r policyRepo) Delete(ctx context.Context, groupID string, perm security.Permission, resource security.ResourceRef) error {
	return expectOne(r.q.ExecContext(ctx, `
		delete from policies
		where group_id = $1 and permission = $2 and resource_type = $3 and resource_id = $4
	`, groupID, string(perm), resource.TypeName, resource.ID))
}

func (r policyRepo) DeleteByGroup(ctx context.Context, groupID string) error {
	_, err := r.q.ExecContext(ctx, `delete from policies where group_id = $1`, groupID)
	return err
}

// Find assembles the filter from the non-zero criteria fields. Window checks
// stay with the caller so the same rows serve listing and authorization.
func (r policyRepo) Find(ctx context.Context, c security.PolicyCriteria) ([]security.Policy, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if c.IdentityID != "" {
		where = append(where, "p.group_id in (select m.group_id from memberships m where m.identity_id = "+arg(c.IdentityID)+")")
	}
	if c.GroupID != "" {
		where = append(where, "p.group_id = "+arg(c.GroupID))
	}
	if c.Permission != "" {
		where = append(where, "p.permission = "+arg(string(c.Permission)))
	}
	if c.ResourceType != "" {
		where = append(where, "p.resource_type = "+arg(c.ResourceType))
	}
	if len(c.ResourceIDs) > 0 {
		placeholders := make([]string, len(c.ResourceIDs))
		for i, id := range c.ResourceIDs {
			placeholders[i] = arg(id)
		}
		where = append(where, "p.resource_id in ("+strings.Join(placeholders, ", ")+")")
	}

	query := `select p.id, p.group_id, p.permission, p.resource_type, p.resource_id, p.valid_from, p.valid_to, p.created_at from policies p`
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	query += " order by p.id"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []security.Policy
	for rows.Next() {
		var (
			p        security.Policy
			perm     string
			from, to sql.NullTime
			created  time.Time
		)
		if err := rows.Scan(&p.ID, &p.GroupID, &perm, &p.Resource.TypeName, &p.Resource.ID, &from, &to, &created); err != nil {
			return nil, err
		}
		p.Permission = security.Permission(perm)
		p.ValidFrom = timePtr(from)
		p.ValidTo = timePtr(to)
		p.CreatedAt = created.UTC()
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
