package store

import (
	"context"
	"errors"

	"github.com/opsdeskhq/opsgate/internal/gate/domain"
)

// ErrNotFound reports that a lookup matched no row.
var ErrNotFound = errors.New("store: not found")

// RecordStore is the privileged data access surface for the authorization
// tables and the one narrow read into the identity store. Concrete drivers
// (postgres) implement this.
type RecordStore interface {
	// QueryPasswordHash reads the stored password hash for an identity
	// directly from the identity store, bypassing the provider's HTTP
	// interface. This deliberate privilege escalation exists only because
	// the fallback sign-in path runs when that interface is disabled; keep
	// it this narrow so it can be removed without touching the rest of the
	// flow. Implementations must use a connection scoped to the call and
	// release it on every exit path.
	QueryPasswordHash(ctx context.Context, userID string) (string, error)

	// LookupAllowlist reports whether the email is on the admin allowlist.
	// A missing row is false, not an error.
	LookupAllowlist(ctx context.Context, email string) (bool, error)

	// LookupRoles returns the user's role assignments, empty when none.
	LookupRoles(ctx context.Context, userID string) ([]string, error)

	// LookupProfile returns the user's display name, empty when no profile
	// row exists.
	LookupProfile(ctx context.Context, userID string) (string, error)

	// AppendAudit writes one append-only audit record.
	AppendAudit(ctx context.Context, entry domain.AuditEntry) error

	// ApplyMigrations brings the authorization tables up to date.
	ApplyMigrations() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error

	// Close releases the underlying pool.
	Close() error
}
