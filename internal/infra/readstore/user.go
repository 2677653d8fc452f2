package readstore

import (
	"context"

	"loyalty-core/internal/infra"
	"loyalty-core/internal/infra/db"
	"loyalty-core/internal/usecase/queries"

	"github.com/google/uuid"
)

type UserReadStore struct {
	db db.DBTX
}

func NewUserReadStore(dbtx db.DBTX) *UserReadStore {
	return &UserReadStore{db: dbtx}
}

func (s *UserReadStore) FindByID(ctx context.Context, id uuid.UUID) (*queries.UserView, error) {
	var v queries.UserView
	err := s.db.QueryRow(ctx,
		`SELECT id, email, role, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&v.ID, &v.Email, &v.Role, &v.CreatedAt)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, infra.WrapRepoErr("user not found", err, infra.KindNotFound)
		}
		return nil, infra.WrapRepoErr("failed to find user", err)
	}
	return &v, nil
}

func (s *UserReadStore) FindByEmail(ctx context.Context, email string) (*queries.UserCredentials, error) {
	var c queries.UserCredentials
	err := s.db.QueryRow(ctx,
		`SELECT id, email, role, created_at, password_hash FROM users WHERE email = $1`,
		email,
	).Scan(&c.ID, &c.Email, &c.Role, &c.CreatedAt, &c.PasswordHash)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, infra.WrapRepoErr("user not found", err, infra.KindNotFound)
		}
		return nil, infra.WrapRepoErr("failed to find user by email", err)
	}
	return &c, nil
}
