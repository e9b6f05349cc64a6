package localidp

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

var errNotFound = errors.New("localidp: not found")

// store persists the stub provider's users, factors, sessions and
// magic links in a local SQLite database.
type store struct {
	db *sql.DB
}

func newStore(dsn string) (*store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &store{db: db}
	if err := s.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *store) Close() error { return s.db.Close() }

func (s *store) applySchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS users (
	id                 TEXT PRIMARY KEY,
	email              TEXT NOT NULL UNIQUE,
	encrypted_password TEXT NOT NULL,
	email_disabled     INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS factors (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	type       TEXT NOT NULL,
	status     TEXT NOT NULL,
	secret     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS challenges (
	id         TEXT PRIMARY KEY,
	factor_id  TEXT NOT NULL REFERENCES factors(id) ON DELETE CASCADE,
	expires_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	token   TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	amr     TEXT NOT NULL DEFAULT '[]',
	revoked INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS magic_links (
	token_hash TEXT PRIMARY KEY,
	email      TEXT NOT NULL,
	expires_at TIMESTAMP NOT NULL
);
`)
	return err
}

type userRow struct {
	ID                string
	Email             string
	EncryptedPassword string
	EmailDisabled     bool
	CreatedAt         time.Time
}

type factorRow struct {
	ID        string
	UserID    string
	Type      string
	Status    string
	Secret    string
	CreatedAt time.Time
}

func (s *store) createUser(ctx context.Context, u userRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, encrypted_password, email_disabled) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.EncryptedPassword, u.EmailDisabled,
	)
	return err
}

func (s *store) userByEmail(ctx context.Context, email string) (userRow, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, encrypted_password, email_disabled, created_at FROM users WHERE email = ?`,
		email,
	))
}

func (s *store) userByID(ctx context.Context, id string) (userRow, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, encrypted_password, email_disabled, created_at FROM users WHERE id = ?`,
		id,
	))
}

func (s *store) scanUser(row *sql.Row) (userRow, error) {
	var u userRow
	err := row.Scan(&u.ID, &u.Email, &u.EncryptedPassword, &u.EmailDisabled, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return userRow{}, errNotFound
	}
	if err != nil {
		return userRow{}, err
	}
	return u, nil
}

func (s *store) setEmailDisabled(ctx context.Context, userID string, disabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET email_disabled = ? WHERE id = ?`, disabled, userID)
	return err
}

func (s *store) createFactor(ctx context.Context, f factorRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO factors (id, user_id, type, status, secret) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.Type, f.Status, f.Secret,
	)
	return err
}

func (s *store) factorByID(ctx context.Context, id string) (factorRow, error) {
	var f factorRow
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, type, status, secret, created_at FROM factors WHERE id = ?`, id,
	).Scan(&f.ID, &f.UserID, &f.Type, &f.Status, &f.Secret, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return factorRow{}, errNotFound
	}
	if err != nil {
		return factorRow{}, err
	}
	return f, nil
}

func (s *store) factorsByUser(ctx context.Context, userID string) ([]factorRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, type, status, secret, created_at FROM factors WHERE user_id = ? ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var factors []factorRow
	for rows.Next() {
		var f factorRow
		if err := rows.Scan(&f.ID, &f.UserID, &f.Type, &f.Status, &f.Secret, &f.CreatedAt); err != nil {
			return nil, err
		}
		factors = append(factors, f)
	}
	return factors, rows.Err()
}

func (s *store) markFactorVerified(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE factors SET status = 'verified' WHERE id = ?`, id)
	return err
}

func (s *store) deleteFactor(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM factors WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *store) createChallenge(ctx context.Context, id, factorID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO challenges (id, factor_id, expires_at) VALUES (?, ?, ?)`,
		id, factorID, expiresAt,
	)
	return err
}

func (s *store) consumeChallenge(ctx context.Context, id, factorID string) (time.Time, error) {
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT expires_at FROM challenges WHERE id = ? AND factor_id = ?`, id, factorID,
	).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, errNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM challenges WHERE id = ?`, id)
	return expiresAt, err
}

// storeRefreshToken persists a refresh token together with the AMR history
// of the session it belongs to, so step-up survives token rotation.
func (s *store) storeRefreshToken(ctx context.Context, token, userID, amrJSON string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token, user_id, amr) VALUES (?, ?, ?)`, token, userID, amrJSON)
	return err
}

// rotateRefreshToken revokes the presented token and returns its owner and
// AMR history.
func (s *store) rotateRefreshToken(ctx context.Context, token string) (string, string, error) {
	var userID, amrJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, amr FROM refresh_tokens WHERE token = ? AND revoked = 0`, token,
	).Scan(&userID, &amrJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", errNotFound
	}
	if err != nil {
		return "", "", err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = 1 WHERE token = ?`, token)
	return userID, amrJSON, err
}

func (s *store) storeMagicLink(ctx context.Context, tokenHash, email string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO magic_links (token_hash, email, expires_at) VALUES (?, ?, ?)`,
		tokenHash, email, expiresAt,
	)
	return err
}

func (s *store) consumeMagicLink(ctx context.Context, tokenHash string) (string, time.Time, error) {
	var email string
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT email, expires_at FROM magic_links WHERE token_hash = ?`, tokenHash,
	).Scan(&email, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, errNotFound
	}
	if err != nil {
		return "", time.Time{}, err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM magic_links WHERE token_hash = ?`, tokenHash)
	return email, expiresAt, err
}
