package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/danielsherratt/webchat/internal/db"
	"github.com/danielsherratt/webchat/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func seedUser(t *testing.T, gdb *gorm.DB, username, role string) models.User {
	t.Helper()
	hash, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := models.User{Username: username, PasswordHash: hash, Role: role}
	if err := gdb.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid password", "password123", false},
		{"empty password", "", false},
		{"long password", "a" + string(make([]byte, 70)), false}, // bcrypt max is 72 bytes
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("HashPassword() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && hash == "" {
				t.Error("HashPassword() returned empty hash")
			}
		})
	}
}

func TestVerifyPassword(t *testing.T) {
	password := "testpassword123"
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	tests := []struct {
		name     string
		hash     string
		password string
		want     bool
	}{
		{"correct password", hash, password, true},
		{"wrong password", hash, "wrongpassword", false},
		{"empty password", hash, "", false},
		{"invalid hash", "invalidhash", password, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyPassword(tt.hash, tt.password); got != tt.want {
				t.Errorf("VerifyPassword() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewSessionToken(t *testing.T) {
	token1, err := NewSessionToken()
	if err != nil {
		t.Fatalf("NewSessionToken() error = %v", err)
	}
	token2, err := NewSessionToken()
	if err != nil {
		t.Fatalf("NewSessionToken() error = %v", err)
	}

	if token1 == token2 {
		t.Error("NewSessionToken() should generate unique tokens")
	}
	// hex encoded 32 bytes = 64 chars
	if len(token1) != 64 {
		t.Errorf("NewSessionToken() token length = %d, want 64", len(token1))
	}
}

func TestSessionLifecycle(t *testing.T) {
	gdb := newTestDB(t)
	user := seedUser(t, gdb, "alice", models.RoleMember)

	session, err := CreateSession(gdb, user.ID, time.Hour)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	ident, err := ResolveIdentity(gdb, session.Token)
	if err != nil {
		t.Fatalf("ResolveIdentity() error = %v", err)
	}
	if ident.UserID != user.ID || ident.Username != "alice" || ident.Role != models.RoleMember {
		t.Errorf("ResolveIdentity() = %+v, want user %d alice member", ident, user.ID)
	}

	if err := DestroySession(gdb, session.Token); err != nil {
		t.Fatalf("DestroySession() error = %v", err)
	}
	if _, err := ResolveIdentity(gdb, session.Token); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("ResolveIdentity() after destroy error = %v, want ErrUnauthenticated", err)
	}

	// destroying an absent token is not an error
	if err := DestroySession(gdb, session.Token); err != nil {
		t.Errorf("DestroySession() second call error = %v", err)
	}
}

func TestResolveIdentity_Unknown(t *testing.T) {
	gdb := newTestDB(t)

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"unknown token", "deadbeef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ResolveIdentity(gdb, tt.token); !errors.Is(err, ErrUnauthenticated) {
				t.Errorf("ResolveIdentity() error = %v, want ErrUnauthenticated", err)
			}
		})
	}
}

func TestResolveIdentity_Expired(t *testing.T) {
	gdb := newTestDB(t)
	user := seedUser(t, gdb, "bob", models.RoleMember)

	session, err := CreateSession(gdb, user.ID, -time.Minute)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := ResolveIdentity(gdb, session.Token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("ResolveIdentity() expired error = %v, want ErrUnauthenticated", err)
	}

	// the expired row is gone, the token can never resolve again
	var count int64
	gdb.Model(&models.Session{}).Where("token = ?", session.Token).Count(&count)
	if count != 0 {
		t.Errorf("expired session row still present, count = %d", count)
	}
}

func TestResolveIdentity_DeletedUser(t *testing.T) {
	gdb := newTestDB(t)
	user := seedUser(t, gdb, "carol", models.RoleMember)

	session, err := CreateSession(gdb, user.ID, time.Hour)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if err := gdb.Delete(&models.User{}, user.ID).Error; err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := ResolveIdentity(gdb, session.Token); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("ResolveIdentity() for deleted user error = %v, want ErrUnauthenticated", err)
	}
}

func TestConcurrentSessions(t *testing.T) {
	gdb := newTestDB(t)
	user := seedUser(t, gdb, "dave", models.RoleAdmin)

	s1, err := CreateSession(gdb, user.ID, time.Hour)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	s2, err := CreateSession(gdb, user.ID, time.Hour)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if s1.Token == s2.Token {
		t.Fatal("two logins produced the same token")
	}

	// both sessions resolve independently; destroying one keeps the other
	if err := DestroySession(gdb, s1.Token); err != nil {
		t.Fatalf("DestroySession() error = %v", err)
	}
	if _, err := ResolveIdentity(gdb, s2.Token); err != nil {
		t.Errorf("ResolveIdentity() second session error = %v", err)
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	gdb := newTestDB(t)
	user := seedUser(t, gdb, "erin", models.RoleMember)

	if _, err := CreateSession(gdb, user.ID, -time.Minute); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := CreateSession(gdb, user.ID, time.Hour); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	removed, err := CleanupExpiredSessions(gdb)
	if err != nil {
		t.Fatalf("CleanupExpiredSessions() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("CleanupExpiredSessions() removed = %d, want 1", removed)
	}
}
