package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"fotoljay/internal/domain"
	"fotoljay/internal/repository"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-key"

func newTestUserService() (UserService, repository.UserRepository, repository.RefreshTokenRepository) {
	userRepo := repository.NewMemoryUserRepository()
	refreshTokenRepo := repository.NewMemoryRefreshTokenRepository()
	svc := NewUserService(userRepo, refreshTokenRepo, TokenSettings{Secret: testSecret})
	return svc, userRepo, refreshTokenRepo
}

func TestProperty_RegistrationCreatesHashedSellerAccounts(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("registration stores a bcrypt hash and grants the seller role", prop.ForAll(
		func(email string, password string, username string) bool {
			service, userRepo, _ := newTestUserService()
			ctx := context.Background()

			user, err := service.Register(ctx, RegisterInput{Email: email, Password: password, Username: &username})
			if err != nil {
				t.Logf("FAIL: Register failed: %v", err)
				return false
			}

			if user.PasswordHash == password {
				t.Logf("FAIL: Password stored as plaintext for email %s", email)
				return false
			}
			if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
				t.Logf("FAIL: Password hash doesn't match: %v", err)
				return false
			}
			if user.Role != domain.RoleSeller || !user.IsActive {
				t.Logf("FAIL: new account should be an active seller, got %s active=%v", user.Role, user.IsActive)
				return false
			}

			storedUser, err := userRepo.FindByEmail(ctx, email)
			if err != nil {
				t.Logf("FAIL: Could not find stored user: %v", err)
				return false
			}
			return storedUser.PasswordHash == user.PasswordHash
		},
		gen.RegexMatch(`[a-z]{3,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`),
		gen.RegexMatch(`[a-z]{3,15}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_JWTTokensCarryRole(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("access tokens contain user ID and role claims", prop.ForAll(
		func(email string, password string, role domain.Role) bool {
			service, _, _ := newTestUserService()
			ctx := context.Background()

			user, err := service.Register(ctx, RegisterInput{Email: email, Password: password})
			if err != nil {
				return true
			}

			// promotion happens out of band, so seed a fresh store with the promoted account
			user.Role = role
			promoted := repository.NewMemoryUserRepository()
			if err := promoted.Create(ctx, user); err != nil {
				t.Logf("FAIL: could not seed promoted user: %v", err)
				return false
			}
			service = NewUserService(promoted, repository.NewMemoryRefreshTokenRepository(), TokenSettings{Secret: testSecret})

			session, err := service.Login(ctx, email, password)
			if err != nil {
				t.Logf("FAIL: Login failed: %v", err)
				return false
			}

			claims, err := service.ValidateToken(session.AccessToken)
			if err != nil {
				t.Logf("FAIL: Token validation failed: %v", err)
				return false
			}

			if claims.UserID != user.ID {
				t.Logf("FAIL: User ID claim mismatch. Expected %s, got %s", user.ID, claims.UserID)
				return false
			}
			if claims.Role != role {
				t.Logf("FAIL: Role claim mismatch. Expected %s, got %s", role, claims.Role)
				return false
			}
			return claims.ExpiresAt != nil && claims.IssuedAt != nil
		},
		gen.RegexMatch(`[a-z]{3,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`),
		gen.OneConstOf(domain.RoleSeller, domain.RoleModerator, domain.RoleAdmin),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_RefreshRotatesTheSession(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("a refresh token is good for exactly one new session", prop.ForAll(
		func(email string, password string) bool {
			service, _, _ := newTestUserService()
			ctx := context.Background()

			if _, err := service.Register(ctx, RegisterInput{Email: email, Password: password}); err != nil {
				return true
			}

			first, err := service.Login(ctx, email, password)
			if err != nil {
				t.Logf("FAIL: Login failed: %v", err)
				return false
			}

			second, err := service.Refresh(ctx, first.RefreshToken)
			if err != nil {
				t.Logf("FAIL: Refresh failed: %v", err)
				return false
			}
			if second.RefreshToken == first.RefreshToken {
				t.Logf("FAIL: refresh token was not rotated")
				return false
			}

			claims, err := service.ValidateToken(second.AccessToken)
			if err != nil {
				t.Logf("FAIL: New access token validation failed: %v", err)
				return false
			}
			if claims.UserID != first.User.ID || claims.Role != first.User.Role {
				t.Logf("FAIL: refreshed claims do not match the user")
				return false
			}

			if _, err := service.Refresh(ctx, first.RefreshToken); err != ErrInvalidToken {
				t.Logf("FAIL: replayed refresh token should be rejected, got %v", err)
				return false
			}
			_, err = service.Refresh(ctx, second.RefreshToken)
			return err == nil
		},
		gen.RegexMatch(`[a-z]{3,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_LogoutInvalidatesRefreshToken(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("logout revokes the refresh token", prop.ForAll(
		func(email string, password string) bool {
			service, _, refreshTokenRepo := newTestUserService()
			ctx := context.Background()

			if _, err := service.Register(ctx, RegisterInput{Email: email, Password: password}); err != nil {
				return true
			}

			session, err := service.Login(ctx, email, password)
			if err != nil {
				t.Logf("FAIL: Login failed: %v", err)
				return false
			}
			if err := service.Logout(ctx, session.RefreshToken); err != nil {
				t.Logf("FAIL: Logout failed: %v", err)
				return false
			}
			// logging out twice is harmless
			if err := service.Logout(ctx, session.RefreshToken); err != nil {
				t.Logf("FAIL: second Logout failed: %v", err)
				return false
			}

			if _, err := service.Refresh(ctx, session.RefreshToken); err != ErrInvalidToken {
				t.Logf("FAIL: Expected ErrInvalidToken after logout, got: %v", err)
				return false
			}

			stored, err := refreshTokenRepo.FindByToken(ctx, session.RefreshToken)
			return err == repository.ErrRefreshTokenRevoked && stored == nil
		},
		gen.RegexMatch(`[a-z]{3,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	service, _, _ := newTestUserService()
	ctx := context.Background()

	if _, err := service.Register(ctx, RegisterInput{Email: "awa@example.com", Password: "password1"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := service.Register(ctx, RegisterInput{Email: "AWA@example.com", Password: "password2"}); err != repository.ErrUserAlreadyExists {
		t.Fatalf("expected ErrUserAlreadyExists, got %v", err)
	}
}

func TestLoginRejectsWrongPasswordAndDisabledAccounts(t *testing.T) {
	service, _, _ := newTestUserService()
	ctx := context.Background()

	user, err := service.Register(ctx, RegisterInput{Email: "moussa@example.com", Password: "password1"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, err := service.Login(ctx, "moussa@example.com", "wrong-password"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}

	if _, err := service.Deactivate(ctx, user.ID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if _, err := service.Login(ctx, "moussa@example.com", "password1"); err != ErrAccountDisabled {
		t.Errorf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestUpdateProfileOnlyTouchesProvidedFields(t *testing.T) {
	service, _, _ := newTestUserService()
	ctx := context.Background()

	phone := "+221770000000"
	user, err := service.Register(ctx, RegisterInput{Email: "fatou@example.com", Password: "password1", Phone: &phone})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	displayName := "Fatou D."
	updated, err := service.UpdateProfile(ctx, user.ID, ProfileInput{DisplayName: &displayName})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if updated.DisplayName == nil || *updated.DisplayName != displayName {
		t.Errorf("display name not updated: %v", updated.DisplayName)
	}
	if updated.Phone == nil || *updated.Phone != phone {
		t.Errorf("phone should be unchanged, got %v", updated.Phone)
	}
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	service, _, _ := newTestUserService()
	ctx := context.Background()

	if _, err := service.Register(ctx, RegisterInput{Email: "ibou@example.com", Password: "password1"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	session, err := service.Login(ctx, "ibou@example.com", "password1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	other := NewUserService(repository.NewMemoryUserRepository(), repository.NewMemoryRefreshTokenRepository(), TokenSettings{Secret: "another-secret"})
	if _, err := other.ValidateToken(session.AccessToken); err == nil {
		t.Error("token signed with another secret must not validate")
	}
}

func TestDeactivateRevokesRefreshSessions(t *testing.T) {
	service, _, _ := newTestUserService()
	ctx := context.Background()

	user, err := service.Register(ctx, RegisterInput{Email: "aminata@example.com", Password: "password1"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	session, err := service.Login(ctx, "aminata@example.com", "password1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := service.Deactivate(ctx, user.ID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if _, err := service.Refresh(ctx, session.RefreshToken); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken after deactivation, got %v", err)
	}
}

func TestPurgeExpiredTokens(t *testing.T) {
	userRepo := repository.NewMemoryUserRepository()
	refreshTokenRepo := repository.NewMemoryRefreshTokenRepository()
	service := NewUserService(userRepo, refreshTokenRepo, TokenSettings{Secret: testSecret, RefreshExpiry: time.Millisecond})
	ctx := context.Background()

	if _, err := service.Register(ctx, RegisterInput{Email: "cheikh@example.com", Password: "password1"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	session, err := service.Login(ctx, "cheikh@example.com", "password1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	n, err := service.PurgeExpiredTokens(ctx)
	if err != nil {
		t.Fatalf("PurgeExpiredTokens failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged session, got %d", n)
	}
	if _, err := refreshTokenRepo.FindByToken(ctx, session.RefreshToken); err != repository.ErrRefreshTokenNotFound {
		t.Errorf("expected purged token to be gone, got %v", err)
	}
}

func TestListUsersIsReservedToAdmins(t *testing.T) {
	service, _, _ := newTestUserService()
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		if _, err := service.Register(ctx, RegisterInput{Email: email, Password: "password1"}); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	admin := domain.Actor{ID: uuid.New(), Role: domain.RoleAdmin}

	users, total, err := service.List(ctx, admin, repository.UserFilter{Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 3 || len(users) != 2 {
		t.Errorf("expected a page of 2 out of 3, got %d of %d", len(users), total)
	}

	moderator := domain.RoleModerator
	if _, total, err := service.List(ctx, admin, repository.UserFilter{Role: &moderator}); err != nil || total != 0 {
		t.Errorf("expected no moderators, got %d (%v)", total, err)
	}

	bogus := domain.Role("GUEST")
	if _, _, err := service.List(ctx, admin, repository.UserFilter{Role: &bogus}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected a validation error, got %v", err)
	}

	for _, role := range []domain.Role{domain.RoleSeller, domain.RoleModerator} {
		_, _, err := service.List(ctx, domain.Actor{ID: uuid.New(), Role: role}, repository.UserFilter{})
		if !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("%s: expected Unauthorized, got %v", role, err)
		}
	}
}
