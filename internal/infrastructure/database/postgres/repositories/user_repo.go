package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/turtacn/TransitLedger/internal/domain/user"
	"github.com/turtacn/TransitLedger/internal/infrastructure/database/postgres"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

type postgresUserRepo struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

func NewPostgresUserRepo(conn *postgres.Connection, log logging.Logger) user.UserRepository {
	return &postgresUserRepo{
		conn:     conn,
		log:      log,
		executor: conn.DB(),
	}
}

const userColumns = `id, email, username, display_name, password_hash, entreprise_id, is_active,
	last_login_at, last_login_ip, login_count, created_at, updated_at`

func (r *postgresUserRepo) Create(ctx context.Context, u *user.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.Email = user.NormalizeEmail(u.Email)
	query := `
		INSERT INTO users (id, email, username, display_name, password_hash, entreprise_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.executor.QueryRowContext(ctx, query,
		u.ID, u.Email, u.Username, u.DisplayName, u.PasswordHash, nullString(u.EntrepriseID), u.IsActive,
	).Scan(&u.CreatedAt, &u.UpdatedAt)

	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			switch constraint {
			case "users_email_key":
				return apperrors.Wrap(err, apperrors.ErrCodeConflict, "email already exists")
			case "users_username_key":
				return apperrors.Wrap(err, apperrors.ErrCodeConflict, "username already exists")
			}
			return apperrors.Wrap(err, apperrors.ErrCodeConflict, "user already exists")
		}
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to create user")
	}
	return nil
}

func (r *postgresUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.executor.QueryRowContext(ctx, query, id))
}

func (r *postgresUserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.executor.QueryRowContext(ctx, query, user.NormalizeEmail(email)))
}

func (r *postgresUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.executor.ExecContext(ctx, query, id, passwordHash)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to update password")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return apperrors.New(apperrors.ErrCodeUserNotFound, "user not found").WithDetail("id=" + id.String())
	}
	return nil
}

func (r *postgresUserRepo) UpdateLoginInfo(ctx context.Context, id uuid.UUID, ip string) error {
	query := `
		UPDATE users SET
			last_login_at = NOW(), last_login_ip = $2, login_count = login_count + 1, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.executor.ExecContext(ctx, query, id, ip)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to update login info")
	}
	return nil
}

func scanUser(row scanner) (*user.User, error) {
	u := &user.User{}
	var (
		entreprise sql.NullString
		lastLogin  sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.DisplayName, &u.PasswordHash, &entreprise, &u.IsActive,
		&lastLogin, &u.LastLoginIP, &u.LoginCount, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrCodeUserNotFound, "user not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to scan user")
	}
	u.EntrepriseID = entreprise.String
	u.LastLoginAt = timePtr(lastLogin)
	return u, nil
}
