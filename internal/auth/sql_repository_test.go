package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"loginway/internal/platform/database"
	"loginway/internal/platform/migrate"
)

func newSQLiteRepository(t *testing.T) (*SQLRepository, *sqlx.DB) {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewSQLite(ctx, filepath.Join(t.TempDir(), "loginway.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := migrate.Apply(ctx, db, nil); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewSQLRepository(db), db
}

func TestSQLRepositoryUsers(t *testing.T) {
	repo, _ := newSQLiteRepository(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	federated := User{
		ID:          uuid.New(),
		Email:       "a@x.com",
		DisplayName: "Google A",
		Provider:    ProviderGoogle,
		ExternalID:  "g-sub",
		CreatedAt:   now,
		UpdatedAt:   now,
		LastLoginAt: now,
	}
	if _, err := repo.CreateUser(ctx, federated); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	found, err := repo.FindUserByExternalID(ctx, ProviderGoogle, "g-sub")
	if err != nil {
		t.Fatalf("FindUserByExternalID returned error: %v", err)
	}
	if found == nil || found.ID != federated.ID || found.HasPassword() {
		t.Fatalf("unexpected user: %+v", found)
	}
	if !found.CreatedAt.Equal(now) {
		t.Fatalf("expected created_at %s, got %s", now, found.CreatedAt)
	}

	if missing, err := repo.FindUserByExternalID(ctx, ProviderApple, "g-sub"); err != nil || missing != nil {
		t.Fatalf("expected no apple user, got %+v, %v", missing, err)
	}

	if _, err := repo.CreateUser(ctx, User{
		ID: uuid.New(), Provider: ProviderGoogle, ExternalID: "g-sub", CreatedAt: now, UpdatedAt: now, LastLoginAt: now,
	}); !errors.Is(err, errDuplicateIdentity) {
		t.Fatalf("expected errDuplicateIdentity, got %v", err)
	}

	password := User{
		ID:           uuid.New(),
		Email:        "a@x.com",
		PasswordHash: []byte("hash"),
		Provider:     ProviderPassword,
		ExternalID:   "a@x.com",
		CreatedAt:    now.Add(time.Second),
		UpdatedAt:    now.Add(time.Second),
		LastLoginAt:  now.Add(time.Second),
	}
	if _, err := repo.CreateUser(ctx, password); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	dup := password
	dup.ID = uuid.New()
	if _, err := repo.CreateUser(ctx, dup); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}

	byEmail, err := repo.FindUserByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("FindUserByEmail returned error: %v", err)
	}
	if byEmail == nil || byEmail.ID != password.ID || string(byEmail.PasswordHash) != "hash" {
		t.Fatalf("expected the password account to win, got %+v", byEmail)
	}

	later := now.Add(time.Hour)
	if err := repo.UpdateUserLogin(ctx, federated.ID, "new@x.com", "Renamed", later); err != nil {
		t.Fatalf("UpdateUserLogin returned error: %v", err)
	}
	updated, err := repo.FindUserByExternalID(ctx, ProviderGoogle, "g-sub")
	if err != nil {
		t.Fatalf("FindUserByExternalID returned error: %v", err)
	}
	if updated.Email != "new@x.com" || updated.DisplayName != "Renamed" || !updated.LastLoginAt.Equal(later) {
		t.Fatalf("unexpected updated user: %+v", updated)
	}
}

func TestSQLRepositorySessions(t *testing.T) {
	repo, _ := newSQLiteRepository(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	user := User{ID: uuid.New(), Provider: ProviderApple, ExternalID: "a-sub", CreatedAt: now, UpdatedAt: now, LastLoginAt: now}
	if _, err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	live := Session{
		ID: uuid.New(), UserID: user.ID, Provider: ProviderApple, Email: "a@relay.example",
		CreatedAt: now, ExpiresAt: now.Add(time.Hour), UserAgent: "ua", IPAddress: "203.0.113.9",
	}
	expired := Session{
		ID: uuid.New(), UserID: user.ID, Provider: ProviderApple,
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}
	if err := repo.CreateSession(ctx, live, "hash-live"); err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if err := repo.CreateSession(ctx, expired, "hash-expired"); err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	dup := live
	dup.ID = uuid.New()
	if err := repo.CreateSession(ctx, dup, "hash-live"); !errors.Is(err, errDuplicateSession) {
		t.Fatalf("expected errDuplicateSession, got %v", err)
	}

	got, err := repo.FindSessionByTokenHash(ctx, "hash-live")
	if err != nil {
		t.Fatalf("FindSessionByTokenHash returned error: %v", err)
	}
	if got == nil || got.ID != live.ID || got.UserID != user.ID || got.IPAddress != "203.0.113.9" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if !got.ExpiresAt.Equal(live.ExpiresAt) {
		t.Fatalf("expected expires_at %s, got %s", live.ExpiresAt, got.ExpiresAt)
	}

	removed, err := repo.DeleteExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions returned error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 expired session removed, got %d", removed)
	}

	if err := repo.DeleteSessionByTokenHash(ctx, "hash-live"); err != nil {
		t.Fatalf("DeleteSessionByTokenHash returned error: %v", err)
	}
	if err := repo.DeleteSessionByTokenHash(ctx, "hash-live"); err != nil {
		t.Fatalf("second DeleteSessionByTokenHash returned error: %v", err)
	}
	if got, err := repo.FindSessionByTokenHash(ctx, "hash-live"); err != nil || got != nil {
		t.Fatalf("expected session to be gone, got %+v, %v", got, err)
	}
}

func TestServiceOverSQLRepository(t *testing.T) {
	repo, _ := newSQLiteRepository(t)
	ctx := context.Background()

	svc, err := NewService(NewRegistry(repo), NewSessionStore(repo, time.Hour), NewBcryptHasher(4))
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}

	signup, err := svc.SignUp(ctx, "a@x.com", "p1", "Alice", ClientInfo{})
	if err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}
	login, err := svc.LoginWithPassword(ctx, "a@x.com", "p1", ClientInfo{})
	if err != nil {
		t.Fatalf("LoginWithPassword returned error: %v", err)
	}
	if login.Token == signup.Token {
		t.Fatal("expected distinct tokens")
	}

	identity, err := svc.Authenticate(ctx, login.Token)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if identity.UserID != signup.User.ID || identity.DisplayName != "Alice" {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	if err := svc.Logout(ctx, login.Token); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if _, err := svc.Authenticate(ctx, login.Token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
