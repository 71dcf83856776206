package service

import (
	"errors"
	"testing"
	"time"

	"mock_interview_backend/internal/config"
	"mock_interview_backend/internal/model"
	"mock_interview_backend/internal/repository"
	"mock_interview_backend/internal/util"
)

func newAuthService(t *testing.T) (*AuthService, *UserService) {
	t.Helper()
	db := openTestDB(t)
	cfg := &config.Config{JWT: config.JWTConfig{
		Secret:            "test-secret",
		ExpireTime:        time.Hour,
		RefreshExpireTime: 24 * time.Hour,
	}}
	users := repository.NewUserRepository(db)
	return NewAuthService(users, cfg), NewUserService(users)
}

// TestRegisterLoginRefresh verifies the account and token lifecycle.
func TestRegisterLoginRefresh(t *testing.T) {
	auth, _ := newAuthService(t)

	user, err := auth.Register(RegisterRequest{Email: " Ann@Example.com ", Username: "ann", Password: "secret1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "ann@example.com" || user.Role != model.RoleCandidate || user.Password == "secret1" {
		t.Fatalf("unexpected user %+v", user)
	}
	if _, err := auth.Register(RegisterRequest{Email: "ann@example.com", Username: "ann2", Password: "secret1"}); !errors.Is(err, util.ErrEmailRegistered) {
		t.Fatalf("expected email registered, got %v", err)
	}
	if _, err := auth.Register(RegisterRequest{Email: "b@example.com", Username: "b", Password: "secret1", Role: "root"}); !errors.Is(err, util.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	if _, err := auth.Login(LoginRequest{Email: "ann@example.com", Password: "wrong"}); !errors.Is(err, util.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	pair, err := auth.Login(LoginRequest{Email: "ANN@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.ExpiresIn != 3600 || pair.RefreshToken == "" {
		t.Fatalf("unexpected token pair %+v", pair)
	}

	if _, err := auth.Refresh(pair.AccessToken); !errors.Is(err, util.ErrInvalidCredentials) {
		t.Fatalf("access token must not refresh, got %v", err)
	}
	refreshed, err := auth.Refresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := util.ParseJWT(refreshed.AccessToken, "test-secret")
	if err != nil || claims.UserID != user.ID {
		t.Fatalf("unexpected refreshed claims %+v err=%v", claims, err)
	}
}

// TestInactiveUserCannotLogin verifies deactivation blocks login and refresh.
func TestInactiveUserCannotLogin(t *testing.T) {
	auth, users := newAuthService(t)
	admin, err := auth.Register(RegisterRequest{Email: "admin@example.com", Username: "admin", Password: "secret1", Role: model.RoleInterviewer})
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	adminActor := Actor{UserID: admin.ID, Role: admin.Role, IsSuperuser: true}

	user, err := auth.Register(RegisterRequest{Email: "c@example.com", Username: "c", Password: "secret1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	pair, err := auth.Login(LoginRequest{Email: "c@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	inactive := false
	if _, err := users.UpdateUser(adminActor, user.ID, AdminUserUpdate{IsActive: &inactive}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := auth.Login(LoginRequest{Email: "c@example.com", Password: "secret1"}); !errors.Is(err, util.ErrUserInactive) {
		t.Fatalf("expected inactive, got %v", err)
	}
	if _, err := auth.Refresh(pair.RefreshToken); !errors.Is(err, util.ErrUserInactive) {
		t.Fatalf("expected inactive on refresh, got %v", err)
	}
}

// TestUserServiceAdminRules verifies admin-only access and self-protection.
func TestUserServiceAdminRules(t *testing.T) {
	auth, users := newAuthService(t)
	admin, err := auth.Register(RegisterRequest{Email: "admin@example.com", Username: "admin", Password: "secret1", Role: model.RoleInterviewer})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	adminActor := Actor{UserID: admin.ID, Role: admin.Role, IsSuperuser: true}
	plain := Actor{UserID: admin.ID, Role: admin.Role}

	if _, _, err := users.GetUsers(plain, UserListQuery{}); !errors.Is(err, util.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	list, total, err := users.GetUsers(adminActor, UserListQuery{Role: model.RoleInterviewer})
	if err != nil || total != 1 || len(list) != 1 {
		t.Fatalf("list: total=%d err=%v", total, err)
	}

	no := false
	if _, err := users.UpdateUser(adminActor, admin.ID, AdminUserUpdate{IsSuperuser: &no}); !errors.Is(err, util.ErrInvalidArgument) {
		t.Fatalf("self demotion: expected invalid argument, got %v", err)
	}
	if _, err := users.UpdateUser(adminActor, 9999, AdminUserUpdate{}); !errors.Is(err, util.ErrUserNotFound) {
		t.Fatalf("missing user: expected user not found, got %v", err)
	}
}
