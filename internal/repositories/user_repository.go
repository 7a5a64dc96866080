package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
)

// UserRepo reads the identity service's users table.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// MissingUsers returns the ids that do not exist, in input order.
func (r *UserRepo) MissingUsers(ctx context.Context, ids []int64) ([]int64, error) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var found []int64
	if err := r.db.SelectContext(ctx, &found, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return lo.Without(ids, found...), nil
}
