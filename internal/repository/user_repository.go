package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fotoljay/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound      = domain.NewNotFound("user not found")
	ErrUserAlreadyExists = domain.NewConflict("user with this email already exists")
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	// List returns a page of accounts, newest first, and the total match count
	List(ctx context.Context, filter UserFilter) ([]*domain.User, int, error)
}

const DefaultUserPageSize = 50

// UserFilter narrows the admin account directory
type UserFilter struct {
	Role     *domain.Role
	IsActive *bool
	Limit    int
	Offset   int
}

// Normalize clamps paging to sane bounds
func (f UserFilter) Normalize() UserFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultUserPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new instance of UserRepository
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, email, password_hash, username, display_name, phone, role, is_active, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		user.ID, user.Email, user.PasswordHash,
		nullString(user.Username), nullString(user.DisplayName), nullString(user.Phone),
		string(user.Role), user.IsActive, user.CreatedAt, user.UpdatedAt,
	)
	switch {
	case isUniqueViolation(err):
		return ErrUserAlreadyExists
	case err != nil:
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindByEmail matches the address case-insensitively
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "lower(email) = lower($1)", email)
}

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.findOne(ctx, "id = $1", id)
}

func (r *userRepository) findOne(ctx context.Context, where string, arg interface{}) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// Update persists profile fields and the active flag. Email, password and
// role are never changed here.
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET username = $2, display_name = $3, phone = $4, is_active = $5, updated_at = $6 WHERE id = $1`,
		user.ID,
		nullString(user.Username), nullString(user.DisplayName), nullString(user.Phone),
		user.IsActive, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	} else if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *userRepository) List(ctx context.Context, filter UserFilter) ([]*domain.User, int, error) {
	filter = filter.Normalize()

	conditions := []string{"TRUE"}
	args := []interface{}{}
	if filter.Role != nil {
		args = append(args, string(*filter.Role))
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		userColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating users: %w", err)
	}
	return users, total, nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		user                         domain.User
		username, displayName, phone sql.NullString
		role                         string
	)
	if err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash,
		&username, &displayName, &phone,
		&role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		return nil, err
	}

	user.Username = stringPtr(username)
	user.DisplayName = stringPtr(displayName)
	user.Phone = stringPtr(phone)
	user.Role = domain.Role(role)
	return &user, nil
}
