package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/hitoshi/mentorhub/internal/model"
)

func TestNewPostgresUserRepo_Initializes(t *testing.T) {
	repo := NewPostgresUserRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

func newTestUser(email string) *model.User {
	return &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         "Test User",
		PasswordHash: "$2a$12$abcdefghijklmnopqrstuu7Y9l1Q1o8r5Zb3wz5n7B1n5Hq8m2i0e",
		Role:         model.RoleUser,
		Level:        model.LevelHighSchool,
	}
}

func TestPostgresUserRepo_CreateAndFind(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	user := newTestUser("create@example.com")
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if user.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set by Create")
	}

	byID, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if byID == nil || byID.Email != user.Email {
		t.Fatalf("FindByID = %+v, want email %q", byID, user.Email)
	}

	byEmail, err := repo.FindByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("FindByEmail returned error: %v", err)
	}
	if byEmail == nil || byEmail.PasswordHash != user.PasswordHash {
		t.Fatalf("FindByEmail should return password hash, got %+v", byEmail)
	}

	role, err := repo.FindRoleByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("FindRoleByID returned error: %v", err)
	}
	if role != model.RoleUser {
		t.Errorf("role = %q, want %q", role, model.RoleUser)
	}
}

func TestPostgresUserRepo_NotFound_ReturnsNil(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	user, err := repo.FindByID(ctx, uuid.NewString())
	if err != nil || user != nil {
		t.Errorf("FindByID = (%v, %v), want (nil, nil)", user, err)
	}
	role, err := repo.FindRoleByID(ctx, uuid.NewString())
	if err != nil || role != "" {
		t.Errorf("FindRoleByID = (%q, %v), want (\"\", nil)", role, err)
	}
}

func TestPostgresUserRepo_Create_DuplicateEmail(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	if err := repo.Create(ctx, newTestUser("dup@example.com")); err != nil {
		t.Fatalf("first Create returned error: %v", err)
	}
	err := repo.Create(ctx, newTestUser("dup@example.com"))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("second Create error = %v, want ErrDuplicate", err)
	}
}

// TestPostgresUserRepo_FindByEmail_CaseInsensitive は大文字を含むメールアドレスで
// 登録された既存レコードも小文字の入力で見つかることを検証する。
func TestPostgresUserRepo_FindByEmail_CaseInsensitive(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	legacy := newTestUser("Mixed.Case@Example.com")
	if err := repo.Create(ctx, legacy); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	found, err := repo.FindByEmail(ctx, "mixed.case@example.com")
	if err != nil {
		t.Fatalf("FindByEmail returned error: %v", err)
	}
	if found == nil || found.ID != legacy.ID {
		t.Fatalf("FindByEmail = %+v, want user %s", found, legacy.ID)
	}

	// 大文字小文字だけが異なるメールアドレスは重複として扱う
	err = repo.Create(ctx, newTestUser("mixed.case@example.com"))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Create with case-variant email error = %v, want ErrDuplicate", err)
	}
}

func TestPostgresUserRepo_UpdateRole(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	user := newTestUser("promote@example.com")
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := repo.UpdateRole(ctx, user.ID, model.RoleAdmin); err != nil {
		t.Fatalf("UpdateRole returned error: %v", err)
	}
	role, _ := repo.FindRoleByID(ctx, user.ID)
	if role != model.RoleAdmin {
		t.Errorf("role = %q, want ADMIN", role)
	}

	if err := repo.UpdateRole(ctx, uuid.NewString(), model.RoleAdmin); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateRole on missing user error = %v, want ErrNotFound", err)
	}
}

func TestPostgresUserRepo_FindMissingIDs(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	user := newTestUser("present@example.com")
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	orphan := uuid.NewString()

	missing, err := repo.FindMissingIDs(ctx, []string{user.ID, orphan})
	if err != nil {
		t.Fatalf("FindMissingIDs returned error: %v", err)
	}
	if len(missing) != 1 || missing[0] != orphan {
		t.Errorf("missing = %v, want [%s]", missing, orphan)
	}
}

func TestPostgresUserRepo_FindMissingIDs_Empty(t *testing.T) {
	repo := NewPostgresUserRepo(nil)
	missing, err := repo.FindMissingIDs(context.Background(), nil)
	if err != nil || missing != nil {
		t.Errorf("FindMissingIDs(nil) = (%v, %v), want (nil, nil)", missing, err)
	}
}

func TestPostgresUserRepo_LegacyPasswords(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	hashed := newTestUser("hashed@example.com")
	legacy := newTestUser("legacy@example.com")
	legacy.PasswordHash = "Plaintext1!"
	for _, u := range []*model.User{hashed, legacy} {
		if err := repo.Create(ctx, u); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	count, err := repo.CountLegacyPasswords(ctx)
	if err != nil {
		t.Fatalf("CountLegacyPasswords returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("legacy count = %d, want 1", count)
	}

	list, err := repo.ListLegacyPasswords(ctx)
	if err != nil {
		t.Fatalf("ListLegacyPasswords returned error: %v", err)
	}
	if len(list) != 1 || list[0].UserID != legacy.ID || list[0].Secret != "Plaintext1!" {
		t.Fatalf("legacy list = %+v", list)
	}

	// 旧値が一致しない場合は更新しない
	if err := repo.UpdatePasswordHash(ctx, legacy.ID, "other", "$2a$12$x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdatePasswordHash with stale value error = %v, want ErrNotFound", err)
	}
	if err := repo.UpdatePasswordHash(ctx, legacy.ID, "Plaintext1!", hashed.PasswordHash); err != nil {
		t.Fatalf("UpdatePasswordHash returned error: %v", err)
	}
	count, _ = repo.CountLegacyPasswords(ctx)
	if count != 0 {
		t.Errorf("legacy count after migration = %d, want 0", count)
	}
}
