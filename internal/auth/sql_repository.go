package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// SQLRepository implements Repository on top of sqlx. Queries are written with
// "?" placeholders and rebound for the connection's driver, so the same code
// serves postgres and sqlite.
type SQLRepository struct {
	db *sqlx.DB
}

// NewSQLRepository creates a new SQLRepository.
func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

const userColumns = `id, email, display_name, password_hash, provider, external_id, created_at, updated_at, last_login_at`

// FindUserByExternalID looks up a user by provider and provider subject.
func (r *SQLRepository) FindUserByExternalID(ctx context.Context, provider Provider, externalID string) (*User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE provider = ? AND external_id = ?`)

	var row userRow
	if err := r.db.GetContext(ctx, &row, query, string(provider), externalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toUser(), nil
}

// FindUserByEmail looks up a user by normalized email, password accounts first.
func (r *SQLRepository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	query := r.db.Rebind(`
		SELECT ` + userColumns + `
		FROM users
		WHERE email = ?
		ORDER BY CASE WHEN provider = 'password' THEN 0 ELSE 1 END, created_at
		LIMIT 1
	`)

	var row userRow
	if err := r.db.GetContext(ctx, &row, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toUser(), nil
}

// CreateUser inserts a new user.
func (r *SQLRepository) CreateUser(ctx context.Context, user User) (User, error) {
	query := r.db.Rebind(`
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName,
		nullableBytes(user.PasswordHash),
		string(user.Provider),
		user.ExternalID,
		user.CreatedAt.UTC(),
		user.UpdatedAt.UTC(),
		user.LastLoginAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			if user.Provider == ProviderPassword {
				return User{}, ErrEmailExists
			}
			return User{}, errDuplicateIdentity
		}
		return User{}, err
	}
	return user, nil
}

// UpdateUserLogin refreshes profile fields and the last login time.
func (r *SQLRepository) UpdateUserLogin(ctx context.Context, id uuid.UUID, email, displayName string, at time.Time) error {
	query := r.db.Rebind(`
		UPDATE users
		SET email = ?, display_name = ?, last_login_at = ?, updated_at = ?
		WHERE id = ?
	`)

	at = at.UTC()
	_, err := r.db.ExecContext(ctx, query, email, displayName, at, at, id)
	return err
}

// CreateSession inserts a new session.
func (r *SQLRepository) CreateSession(ctx context.Context, session Session, tokenHash string) error {
	query := r.db.Rebind(`
		INSERT INTO sessions (id, user_id, token_hash, provider, email, display_name, created_at, expires_at, user_agent, ip_address)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		tokenHash,
		string(session.Provider),
		session.Email,
		session.DisplayName,
		session.CreatedAt.UTC(),
		session.ExpiresAt.UTC(),
		session.UserAgent,
		session.IPAddress,
	)
	if isUniqueViolation(err) {
		return errDuplicateSession
	}
	return err
}

// FindSessionByTokenHash looks up a session by token hash.
func (r *SQLRepository) FindSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	query := r.db.Rebind(`
		SELECT id, user_id, provider, email, display_name, created_at, expires_at, user_agent, ip_address
		FROM sessions
		WHERE token_hash = ?
	`)

	var row sessionRow
	if err := r.db.GetContext(ctx, &row, query, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toSession(), nil
}

// DeleteSessionByTokenHash removes a session.
func (r *SQLRepository) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	query := r.db.Rebind(`DELETE FROM sessions WHERE token_hash = ?`)
	_, err := r.db.ExecContext(ctx, query, tokenHash)
	return err
}

// DeleteExpiredSessions removes all sessions expired as of now.
func (r *SQLRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	query := r.db.Rebind(`DELETE FROM sessions WHERE expires_at <= ?`)
	result, err := r.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// userRow is a database row representation of User.
type userRow struct {
	ID           uuid.UUID `db:"id"`
	Email        string    `db:"email"`
	DisplayName  string    `db:"display_name"`
	PasswordHash []byte    `db:"password_hash"`
	Provider     string    `db:"provider"`
	ExternalID   string    `db:"external_id"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	LastLoginAt  time.Time `db:"last_login_at"`
}

func (r *userRow) toUser() *User {
	return &User{
		ID:           r.ID,
		Email:        r.Email,
		DisplayName:  r.DisplayName,
		PasswordHash: r.PasswordHash,
		Provider:     Provider(r.Provider),
		ExternalID:   r.ExternalID,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastLoginAt:  r.LastLoginAt,
	}
}

type sessionRow struct {
	ID          uuid.UUID `db:"id"`
	UserID      uuid.UUID `db:"user_id"`
	Provider    string    `db:"provider"`
	Email       string    `db:"email"`
	DisplayName string    `db:"display_name"`
	CreatedAt   time.Time `db:"created_at"`
	ExpiresAt   time.Time `db:"expires_at"`
	UserAgent   string    `db:"user_agent"`
	IPAddress   string    `db:"ip_address"`
}

func (r *sessionRow) toSession() *Session {
	return &Session{
		ID:          r.ID,
		UserID:      r.UserID,
		Provider:    Provider(r.Provider),
		Email:       r.Email,
		DisplayName: r.DisplayName,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
		UserAgent:   r.UserAgent,
		IPAddress:   r.IPAddress,
	}
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ Repository = (*SQLRepository)(nil)
