package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/model"
)

type userRepository struct{ base }

func (r *userRepository) Create(ctx context.Context, user *model.User) (err error) {
	start := time.Now()
	defer func() { r.observe("user_create", start, err) }()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, role, created_at, updated_at)
		VALUES (:id, :email, :password_hash, :full_name, :role, :created_at, :updated_at)`, user)
	return translate(err, "create user")
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, translate(err, "get user")
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE LOWER(email) = LOWER($1)`, email)
	if err != nil {
		return nil, translate(err, "get user by email")
	}
	return &user, nil
}
