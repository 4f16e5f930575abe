package repository

import (
	"context"
	"database/sql"
	"errors"

	"devconnect/chat-service/internal/models"
)

// ErrUserNotFound is returned when no user row matches the id.
var ErrUserNotFound = errors.New("user not found")

// UserRepository reads principals. The users table is written by the auth
// collaborator; this service never updates it.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	InitializeTables() error
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{
		db: db,
	}
}

func (r *userRepository) InitializeTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL UNIQUE,
		photo TEXT NOT NULL DEFAULT '',
		about TEXT NOT NULL DEFAULT '',
		password_changed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);
	`

	_, err := r.db.Exec(query)
	return err
}

func (r *userRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `
	SELECT id, first_name, last_name, email, photo, about, password_changed_at, created_at, updated_at
	FROM users
	WHERE id = $1
	`

	var user models.User
	var passwordChangedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Email,
		&user.Photo, &user.About, &passwordChangedAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if passwordChangedAt.Valid {
		user.PasswordChangedAt = &passwordChangedAt.Time
	}
	return &user, nil
}
