package repository

import (
	"context"
	"database/sql"

	"duck-warehouse/internal/domain"
)

// Compile-time check.
var _ domain.RoleRestrictionSource = (*RoleRepo)(nil)

// RoleRepo stores the dimension restrictions of roles.
type RoleRepo struct {
	db *sql.DB
}

// NewRoleRepo creates a new RoleRepo.
func NewRoleRepo(db *sql.DB) *RoleRepo {
	return &RoleRepo{db: db}
}

// Add stores one restriction. Adding the same restriction twice is a conflict.
func (r *RoleRepo) Add(ctx context.Context, rr domain.RoleRestriction) error {
	if rr.Role == "" || rr.Realm == "" || rr.Dimension == "" {
		return domain.ErrValidation("role, realm and dimension are required")
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO role_restrictions (id, role, realm, dimension, value) VALUES (?, ?, ?, ?, ?)`,
		domain.NewID(), rr.Role, rr.Realm, rr.Dimension, rr.Value)
	return mapDBError(err)
}

// ListRestrictions returns the restrictions of role within realm.
func (r *RoleRepo) ListRestrictions(ctx context.Context, role, realm string) ([]domain.RoleRestriction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT role, realm, dimension, value FROM role_restrictions
		 WHERE role = ? AND realm = ? ORDER BY dimension, value`, role, realm)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.RoleRestriction
	for rows.Next() {
		var rr domain.RoleRestriction
		if err := rows.Scan(&rr.Role, &rr.Realm, &rr.Dimension, &rr.Value); err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}

// List returns a page of the restrictions in realm ordered by role,
// dimension and value.
func (r *RoleRepo) List(ctx context.Context, realm string, req domain.PageRequest) (domain.Page[domain.RoleRestriction], error) {
	offset, err := req.Offset()
	if err != nil {
		return domain.Page[domain.RoleRestriction]{}, err
	}

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM role_restrictions WHERE realm = ?`, realm).Scan(&total); err != nil {
		return domain.Page[domain.RoleRestriction]{}, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT role, realm, dimension, value FROM role_restrictions
		 WHERE realm = ? ORDER BY role, dimension, value LIMIT ? OFFSET ?`,
		realm, req.Limit(), offset)
	if err != nil {
		return domain.Page[domain.RoleRestriction]{}, err
	}
	defer rows.Close() //nolint:errcheck

	out := []domain.RoleRestriction{}
	for rows.Next() {
		var rr domain.RoleRestriction
		if err := rows.Scan(&rr.Role, &rr.Realm, &rr.Dimension, &rr.Value); err != nil {
			return domain.Page[domain.RoleRestriction]{}, err
		}
		out = append(out, rr)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.RoleRestriction]{}, err
	}
	return domain.NewPage(out, offset, req.Limit(), total), nil
}

// Remove deletes one restriction.
func (r *RoleRepo) Remove(ctx context.Context, rr domain.RoleRestriction) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM role_restrictions WHERE role = ? AND realm = ? AND dimension = ? AND value = ?`,
		rr.Role, rr.Realm, rr.Dimension, rr.Value)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("restriction not found")
	}
	return nil
}
