package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsdeskhq/opsgate/internal/gate/domain"
	"github.com/opsdeskhq/opsgate/internal/gate/store"
)

// Store is the Postgres driver for store.RecordStore, backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	dsn  string
}

// NewStore creates a connection pool and verifies it with a ping.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &Store{pool: pool, dsn: dsn}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// QueryPasswordHash reads the stored hash from the identity store's own user
// table. The connection is acquired for this single query and released on
// every exit path.
func (s *Store) QueryPasswordHash(ctx context.Context, userID string) (string, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	var hash string
	err = conn.QueryRow(ctx,
		`SELECT encrypted_password FROM auth.users WHERE id = $1`,
		userID,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("query password hash: %w", err)
	}
	return hash, nil
}

func (s *Store) LookupAllowlist(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM admin_allowlist WHERE lower(email) = lower($1))`,
		email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup allowlist: %w", err)
	}
	return exists, nil
}

func (s *Store) LookupRoles(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("lookup roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lookup roles: %w", err)
	}
	return roles, nil
}

func (s *Store) LookupProfile(ctx context.Context, userID string) (string, error) {
	var displayName string
	err := s.pool.QueryRow(ctx,
		`SELECT display_name FROM profiles WHERE id = $1`,
		userID,
	).Scan(&displayName)
	if err != nil {
		// A user without a profile row is valid and yields an empty name.
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("lookup profile: %w", err)
	}
	return displayName, nil
}

func (s *Store) AppendAudit(ctx context.Context, entry domain.AuditEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, user_id, event, details, ip_address, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.UserID, entry.Event, entry.Details, entry.IPAddress, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}
