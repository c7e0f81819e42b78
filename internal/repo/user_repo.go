package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/identra/server/internal/model"
)

// ErrNoRows is returned by lookups that find nothing. Callers translate it
// into their own taxonomy.
var ErrNoRows = sql.ErrNoRows

const userColumns = `id, email, phone, password_hash, first_name, last_name,
       is_active, is_staff, is_superuser, profile_picture, created_at, updated_at, deleted_at`

// UserRepo defines the interface for user repository operations. All lookups
// exclude soft-deleted rows.
type UserRepo interface {
	Create(ctx context.Context, q Querier, user *model.User) (model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByPhone(ctx context.Context, phone string) (model.User, error)
	UpdateProfilePicture(ctx context.Context, id uuid.UUID, picture string) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

// Create inserts a user. The Querier lets registration run this inside the
// same transaction that consumes the exchange token.
func (r *userRepo) Create(ctx context.Context, q Querier, user *model.User) (model.User, error) {
	if q == nil {
		q = r.db
	}
	query := `
		INSERT INTO users (email, phone, password_hash, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns
	row := q.QueryRowContext(ctx, query,
		user.Email, user.Phone, user.PasswordHash, user.FirstName, user.LastName)
	created, err := scanUser(row)
	if err != nil {
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return r.getBy(ctx, "id", id.String())
}

// GetByEmail retrieves a user by email
func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getBy(ctx, "email", email)
}

// GetByPhone retrieves a user by phone number
func (r *userRepo) GetByPhone(ctx context.Context, phone string) (model.User, error) {
	return r.getBy(ctx, "phone", phone)
}

func (r *userRepo) getBy(ctx context.Context, column, value string) (model.User, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM users
		WHERE %s = $1 AND deleted_at IS NULL
	`, userColumns, column)
	user, err := scanUser(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if err == sql.ErrNoRows {
			return model.User{}, ErrNoRows
		}
		return model.User{}, fmt.Errorf("query user by %s: %w", column, err)
	}
	return user, nil
}

// UpdateProfilePicture sets the profile picture reference for the user.
func (r *userRepo) UpdateProfilePicture(ctx context.Context, id uuid.UUID, picture string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET profile_picture = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, picture)
	if err != nil {
		return fmt.Errorf("update profile picture: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNoRows
	}
	return nil
}

// SoftDelete marks the user deleted; sessions are preserved. Users are never
// hard-deleted.
func (r *userRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("soft delete user: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (model.User, error) {
	var user model.User
	var idStr string
	err := row.Scan(
		&idStr,
		&user.Email,
		&user.Phone,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.IsActive,
		&user.IsStaff,
		&user.IsSuperuser,
		&user.ProfilePicture,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.DeletedAt,
	)
	if err != nil {
		return model.User{}, err
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("parse user ID: %w", err)
	}
	return user, nil
}
