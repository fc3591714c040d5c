package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "alice", RoleAdmin)
	if !strings.HasPrefix(user.ID, "usr-") {
		t.Errorf("ID = %q, want usr- prefix", user.ID)
	}

	byID, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if byID.Username != "alice" || byID.Role != RoleAdmin || !byID.IsActive {
		t.Errorf("GetByID() = %+v", byID)
	}

	byName, err := repo.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if byName.ID != user.ID {
		t.Errorf("GetByUsername().ID = %q, want %q", byName.ID, user.ID)
	}
}

func TestUserRepository_Errors(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	seedTestUser(t, db, "alice", RoleUser)

	dup := &User{Username: "alice", PasswordHash: "x", Role: RoleUser}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrUsernameExists) {
		t.Errorf("duplicate Create() error = %v, want ErrUsernameExists", err)
	}

	bad := &User{Username: "bad name", PasswordHash: "x", Role: RoleUser}
	if err := repo.Create(ctx, bad); !errors.Is(err, ErrInvalidUser) {
		t.Errorf("invalid username error = %v, want ErrInvalidUser", err)
	}

	badRole := &User{Username: "bob", PasswordHash: "x", Role: "owner"}
	if err := repo.Create(ctx, badRole); !errors.Is(err, ErrInvalidUser) {
		t.Errorf("invalid role error = %v, want ErrInvalidUser", err)
	}

	if _, err := repo.GetByID(ctx, "usr-missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_ListAndCount(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	users, err := repo.List(ctx)
	if err != nil || len(users) != 0 {
		t.Fatalf("List() on empty = %v, %v", users, err)
	}

	seedTestUser(t, db, "alice", RoleAdmin)
	seedTestUser(t, db, "bob", RoleUser)

	users, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 2 {
		t.Errorf("len(List()) = %d, want 2", len(users))
	}

	count, err := repo.Count(ctx)
	if err != nil || count != 2 {
		t.Errorf("Count() = %d, %v", count, err)
	}
}

func TestUserRepository_SetActive(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := seedTestUser(t, db, "alice", RoleUser)

	if err := repo.SetActive(ctx, "alice", false); err != nil {
		t.Fatalf("SetActive(false) error = %v", err)
	}
	got, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.IsActive {
		t.Error("user should be inactive")
	}

	if err := repo.SetActive(ctx, "alice", true); err != nil {
		t.Fatalf("SetActive(true) error = %v", err)
	}
	if got, _ := repo.GetByUsername(ctx, "alice"); got == nil || !got.IsActive {
		t.Error("user should be active again")
	}

	if err := repo.SetActive(ctx, "ghost", false); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("SetActive(missing) error = %v, want ErrUserNotFound", err)
	}
}
