package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"account-service/internal/auth"
)

const pgUniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByID(ctx context.Context, id string) (auth.User, error) {
	var user auth.User
	var role string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Name, &user.Email, &role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.User{}, auth.ErrUserNotFound
		}
		return auth.User{}, fmt.Errorf("query user: %w", err)
	}

	user.Role = auth.Role(role)
	return user, nil
}

func (r *Repository) List(ctx context.Context) ([]auth.UserSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, role
		FROM users
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	summaries := make([]auth.UserSummary, 0)
	for rows.Next() {
		var summary auth.UserSummary
		var role string
		if err := rows.Scan(&summary.ID, &summary.Name, &summary.Email, &role); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		summary.Role = auth.Role(role)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return summaries, nil
}

func (r *Repository) Create(ctx context.Context, user auth.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, user.ID, user.Name, user.Email, user.PasswordHash, string(user.Role), user.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return auth.ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *Repository) UpdateName(ctx context.Context, id, name string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET name = $2, updated_at = $3
		WHERE id = $1
	`, id, name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update user name: %w", err)
	}

	return requireAffected(res)
}

// UpdateParams carries an admin edit. PasswordHash is applied only when
// non-nil.
type UpdateParams struct {
	ID           string
	Name         string
	Email        string
	Role         auth.Role
	PasswordHash *string
}

func (r *Repository) Update(ctx context.Context, params UpdateParams) error {
	var res sql.Result
	var err error
	if params.PasswordHash != nil {
		res, err = r.db.ExecContext(ctx, `
			UPDATE users
			SET name = $2, email = $3, role = $4, password_hash = $5, updated_at = $6
			WHERE id = $1
		`, params.ID, params.Name, params.Email, string(params.Role), *params.PasswordHash, time.Now().UTC())
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE users
			SET name = $2, email = $3, role = $4, updated_at = $5
			WHERE id = $1
		`, params.ID, params.Name, params.Email, string(params.Role), time.Now().UTC())
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return auth.ErrDuplicateEmail
		}
		return fmt.Errorf("update user: %w", err)
	}

	return requireAffected(res)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM users
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}
