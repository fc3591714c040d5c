package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestService_Login(t *testing.T) {
	db := testDB(t)
	svc := NewService(NewUserRepository(db), testSecret, 30*time.Minute)
	ctx := context.Background()

	admin := seedTestUser(t, db, "alice", RoleAdmin)

	res, err := svc.Login(ctx, "alice", "test-password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.TokenType != "Bearer" || res.ExpiresIn != 1800 || res.User.ID != admin.ID {
		t.Errorf("LoginResult = %+v", res)
	}

	claims, err := svc.Authorize(res.AccessToken)
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if claims.Subject != admin.ID {
		t.Errorf("Subject = %q, want %q", claims.Subject, admin.ID)
	}
}

func TestService_LoginFailures(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	svc := NewService(repo, testSecret, time.Minute)
	ctx := context.Background()

	seedTestUser(t, db, "alice", RoleAdmin)

	if _, err := svc.Login(ctx, "alice", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, "nobody", "test-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user error = %v, want ErrInvalidCredentials", err)
	}

	hash, _ := HashPassword("pw") //nolint:errcheck // test setup
	inactive := &User{Username: "carol", PasswordHash: hash, Role: RoleAdmin}
	if err := repo.Create(ctx, inactive); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Login(ctx, "carol", "pw"); !errors.Is(err, ErrUserInactive) {
		t.Errorf("inactive user error = %v, want ErrUserInactive", err)
	}
}

func TestService_AuthorizeRequiresAdmin(t *testing.T) {
	db := testDB(t)
	svc := NewService(NewUserRepository(db), testSecret, time.Minute)

	seedTestUser(t, db, "bob", RoleUser)
	res, err := svc.Login(context.Background(), "bob", "test-password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if _, err := svc.Authorize(res.AccessToken); !errors.Is(err, ErrForbidden) {
		t.Errorf("Authorize(user token) error = %v, want ErrForbidden", err)
	}
	if _, err := svc.Authorize("garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Authorize(garbage) error = %v, want ErrTokenInvalid", err)
	}
}

func TestDirectory_DisplayName(t *testing.T) {
	db := testDB(t)
	dir := NewDirectory(NewUserRepository(db))
	ctx := context.Background()

	u := seedTestUser(t, db, "alice", RoleUser)

	name, err := dir.DisplayName(ctx, u.ID)
	if err != nil || name != "Display alice" {
		t.Errorf("DisplayName() = %q, %v", name, err)
	}
	if _, err := dir.DisplayName(ctx, "usr-missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("DisplayName(missing) error = %v, want ErrUserNotFound", err)
	}
}

func TestSeedAdmin(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	log := &recordingLogger{}

	password, err := SeedAdmin(ctx, repo, log)
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	if password == "" {
		t.Fatal("SeedAdmin() should return generated password")
	}
	if len(log.warnings) != 1 {
		t.Errorf("warnings = %v, want one", log.warnings)
	}

	admin, err := repo.GetByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("GetByUsername(admin) error = %v", err)
	}
	if admin.Role != RoleAdmin || !admin.IsActive {
		t.Errorf("seed admin = %+v", admin)
	}
	if ok, _ := VerifyPassword(password, admin.PasswordHash); !ok { //nolint:errcheck // hash is ours
		t.Error("generated password should verify against stored hash")
	}

	// Second call is a no-op.
	again, err := SeedAdmin(ctx, repo, log)
	if err != nil || again != "" {
		t.Errorf("second SeedAdmin() = %q, %v", again, err)
	}
}
