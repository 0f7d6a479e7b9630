package repository

import (
	"context"
	"database/sql"
	"log"
	"strings"
	"testing"
	"time"

	"fotoljay/internal/database"
	"fotoljay/internal/domain"
	"fotoljay/migrations"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var testDB *sql.DB

func setupTestDB() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	var (
		dbName = "testdb"
		dbPwd  = "password"
		dbUser = "user"
	)

	dbContainer, err := postgres.Run(
		context.Background(),
		"postgres:15",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	connStr, err := dbContainer.ConnectionString(context.Background(), "sslmode=disable")
	if err != nil {
		return dbContainer.Terminate, err
	}

	testDB, err = sql.Open("pgx", connStr)
	if err != nil {
		return dbContainer.Terminate, err
	}

	if _, err := database.Migrate(context.Background(), testDB, migrations.FS, zap.NewNop()); err != nil {
		return dbContainer.Terminate, err
	}

	return dbContainer.Terminate, nil
}

func TestMigrateIsIdempotent(t *testing.T) {
	version, err := database.Migrate(context.Background(), testDB, migrations.FS, zap.NewNop())
	if err != nil {
		t.Fatalf("second migration run failed: %v", err)
	}
	if version != 9 {
		t.Errorf("schema version = %d, want 9", version)
	}
}

func TestMain(m *testing.M) {
	teardown, err := setupTestDB()
	if err != nil {
		log.Fatalf("could not start postgres container: %v", err)
	}

	m.Run()

	if teardown != nil {
		if err := teardown(context.Background()); err != nil {
			log.Fatalf("could not teardown postgres container: %v", err)
		}
	}
}

func createTestUser(t *testing.T, role domain.Role) *domain.User {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	user := &domain.User{
		ID:           uuid.New(),
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "$2a$10$placeholderplaceholderplaceholderplaceholderplace",
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := NewUserRepository(testDB).Create(context.Background(), user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return user
}

func TestProperty_RegistrationStoresHashedPasswords(t *testing.T) {
	repo := NewUserRepository(testDB)
	ctx := context.Background()

	properties := gopter.NewProperties(nil)

	properties.Property("passwords are stored as bcrypt hashes, never plaintext", prop.ForAll(
		func(email string, password string, username string) bool {
			_, _ = testDB.Exec("DELETE FROM users WHERE email = $1", email)

			hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
			if err != nil {
				t.Logf("Failed to hash password: %v", err)
				return false
			}

			user := &domain.User{
				ID:           uuid.New(),
				Email:        email,
				PasswordHash: string(hashedPassword),
				Username:     &username,
				Role:         domain.RoleSeller,
				IsActive:     true,
				CreatedAt:    time.Now(),
				UpdatedAt:    time.Now(),
			}

			if err := repo.Create(ctx, user); err != nil {
				t.Logf("Failed to create user: %v", err)
				return false
			}

			retrievedUser, err := repo.FindByEmail(ctx, email)
			if err != nil {
				t.Logf("Failed to find user: %v", err)
				return false
			}

			if retrievedUser.PasswordHash == password {
				t.Logf("Password was stored as plaintext!")
				return false
			}
			if err := bcrypt.CompareHashAndPassword([]byte(retrievedUser.PasswordHash), []byte(password)); err != nil {
				t.Logf("Stored password is not a valid bcrypt hash: %v", err)
				return false
			}
			if retrievedUser.Role != domain.RoleSeller || retrievedUser.Username == nil || *retrievedUser.Username != username {
				t.Logf("Round-tripped user differs: %+v", retrievedUser)
				return false
			}

			_, _ = testDB.Exec("DELETE FROM users WHERE email = $1", email)
			return true
		},
		gen.RegexMatch(`[a-z]{5,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`),
		gen.RegexMatch(`[a-z]{3,15}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestUserRepository_DuplicateEmailIsConflict(t *testing.T) {
	repo := NewUserRepository(testDB)
	existing := createTestUser(t, domain.RoleSeller)

	duplicate := *existing
	duplicate.ID = uuid.New()

	err := repo.Create(context.Background(), &duplicate)
	if err != ErrUserAlreadyExists {
		t.Fatalf("expected ErrUserAlreadyExists, got %v", err)
	}
}

func TestUserRepository_UnknownIDIsNotFound(t *testing.T) {
	_, err := NewUserRepository(testDB).FindByID(context.Background(), uuid.New())
	if err != ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRefreshTokenRepository_Sessions(t *testing.T) {
	stores := map[string]func() RefreshTokenRepository{
		"postgres": func() RefreshTokenRepository { return NewRefreshTokenRepository(testDB) },
		"memory":   NewMemoryRefreshTokenRepository,
	}

	for name, newRepo := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo()
			user := createTestUser(t, domain.RoleSeller)
			now := time.Now().UTC().Truncate(time.Microsecond)

			issue := func(expires time.Time) *domain.RefreshToken {
				token := &domain.RefreshToken{
					ID:        uuid.New(),
					UserID:    user.ID,
					Token:     strings.ReplaceAll(uuid.NewString(), "-", ""),
					ExpiresAt: expires,
					CreatedAt: now.Add(-2 * time.Hour),
				}
				if err := repo.Create(ctx, token); err != nil {
					t.Fatalf("Failed to create refresh token: %v", err)
				}
				return token
			}

			live := issue(now.Add(time.Hour))
			other := issue(now.Add(time.Hour))
			expired := issue(now.Add(-time.Hour))

			found, err := repo.FindByToken(ctx, live.Token)
			if err != nil {
				t.Fatalf("Failed to find refresh token: %v", err)
			}
			if found.Token != live.Token || found.UserID != user.ID {
				t.Fatalf("unexpected session %+v", found)
			}

			if name == "postgres" {
				var stored string
				if err := testDB.QueryRow(`SELECT token FROM refresh_tokens WHERE id = $1`, live.ID).Scan(&stored); err != nil {
					t.Fatalf("Failed to read stored token: %v", err)
				}
				if stored != TokenDigest(live.Token) {
					t.Fatalf("expected the digest to be stored, got %q", stored)
				}
			}

			if err := repo.Revoke(ctx, live.Token); err != nil {
				t.Fatalf("Failed to revoke refresh token: %v", err)
			}
			if _, err := repo.FindByToken(ctx, live.Token); err != ErrRefreshTokenRevoked {
				t.Fatalf("expected ErrRefreshTokenRevoked, got %v", err)
			}
			if err := repo.Revoke(ctx, live.Token); err != ErrRefreshTokenNotFound {
				t.Fatalf("second revoke should report not found, got %v", err)
			}
			if err := repo.Revoke(ctx, "unknown"); err != ErrRefreshTokenNotFound {
				t.Fatalf("expected ErrRefreshTokenNotFound, got %v", err)
			}

			// live is already revoked, so only other and expired change
			revoked, err := repo.RevokeAllForUser(ctx, user.ID)
			if err != nil {
				t.Fatalf("RevokeAllForUser failed: %v", err)
			}
			if revoked != 2 {
				t.Fatalf("expected 2 sessions revoked, got %d", revoked)
			}
			if _, err := repo.FindByToken(ctx, other.Token); err != ErrRefreshTokenRevoked {
				t.Fatalf("expected ErrRefreshTokenRevoked, got %v", err)
			}

			purged, err := repo.DeleteExpired(ctx, now)
			if err != nil {
				t.Fatalf("DeleteExpired failed: %v", err)
			}
			// the postgres table is shared with other tests
			if purged < 3 {
				t.Fatalf("expected at least 3 sessions purged, got %d", purged)
			}
			if _, err := repo.FindByToken(ctx, expired.Token); err != ErrRefreshTokenNotFound {
				t.Fatalf("expected ErrRefreshTokenNotFound, got %v", err)
			}
		})
	}
}

func TestUserRepository_List(t *testing.T) {
	repos := map[string]UserRepository{
		"postgres": NewUserRepository(testDB),
		"memory":   NewMemoryUserRepository(),
	}

	for name, repo := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC().Truncate(time.Microsecond)
			created := []*domain.User{}
			for i, role := range []domain.Role{domain.RoleSeller, domain.RoleSeller, domain.RoleModerator} {
				u := &domain.User{
					ID:           uuid.New(),
					Email:        uuid.NewString() + "@example.com",
					PasswordHash: "hash",
					Role:         role,
					IsActive:     i != 1,
					CreatedAt:    base.Add(time.Duration(i) * time.Second),
					UpdatedAt:    base,
				}
				if err := repo.Create(ctx, u); err != nil {
					t.Fatalf("Failed to create user: %v", err)
				}
				created = append(created, u)
			}

			seller := domain.RoleSeller
			active := true
			users, total, err := repo.List(ctx, UserFilter{Role: &seller, IsActive: &active, Limit: MaxPageSize})
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if total < 1 || total != len(users) {
				t.Errorf("unexpected total %d for %d users", total, len(users))
			}
			found := false
			for _, u := range users {
				if u.Role != domain.RoleSeller || !u.IsActive {
					t.Errorf("filter not applied: %+v", u)
				}
				if u.ID == created[1].ID {
					t.Errorf("inactive seller returned")
				}
				found = found || u.ID == created[0].ID
			}
			if !found {
				t.Errorf("active seller missing from the page")
			}

			page, _, err := repo.List(ctx, UserFilter{Limit: 1})
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(page) != 1 {
				t.Fatalf("expected one user on the page, got %d", len(page))
			}
			if page[0].CreatedAt.Before(created[2].CreatedAt) {
				t.Errorf("newest accounts should come first, got %v", page[0].CreatedAt)
			}
		})
	}
}
