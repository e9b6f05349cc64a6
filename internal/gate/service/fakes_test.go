package service

import (
	"context"
	"sync"

	"github.com/opsdeskhq/opsgate/internal/gate/domain"
	"github.com/opsdeskhq/opsgate/internal/gate/provider"
	"github.com/opsdeskhq/opsgate/internal/gate/store"
)

// fakeProvider is a scriptable provider.IdentityProvider recording call
// counts.
type fakeProvider struct {
	mu sync.Mutex

	grantSession domain.Session
	grantErr     error

	userByToken map[string]domain.Identity
	userErr     error

	adminUsers map[string]domain.Identity // keyed by email

	factors map[string][]domain.Factor // keyed by user id

	magicLinkHash string
	magicLinkErr  error

	grantCalls     int
	userCalls      int
	adminCalls     int
	factorCalls    int
	magicLinkCalls int
}

func (f *fakeProvider) PasswordGrant(ctx context.Context, email, password string) (domain.Session, error) {
	f.mu.Lock()
	f.grantCalls++
	f.mu.Unlock()
	if f.grantErr != nil {
		return domain.Session{}, f.grantErr
	}
	return f.grantSession, nil
}

func (f *fakeProvider) UserFromToken(ctx context.Context, accessToken string) (domain.Identity, error) {
	f.mu.Lock()
	f.userCalls++
	f.mu.Unlock()
	if f.userErr != nil {
		return domain.Identity{}, f.userErr
	}
	if id, ok := f.userByToken[accessToken]; ok {
		return id, nil
	}
	return domain.Identity{}, &provider.Error{Status: 401, Code: provider.CodeInvalidToken, Description: "invalid JWT"}
}

func (f *fakeProvider) AdminUserByEmail(ctx context.Context, email string) (domain.Identity, error) {
	f.mu.Lock()
	f.adminCalls++
	f.mu.Unlock()
	if id, ok := f.adminUsers[email]; ok {
		return id, nil
	}
	return domain.Identity{}, provider.ErrNotFound
}

func (f *fakeProvider) AdminListFactors(ctx context.Context, userID string) ([]domain.Factor, error) {
	f.mu.Lock()
	f.factorCalls++
	f.mu.Unlock()
	return f.factors[userID], nil
}

func (f *fakeProvider) GenerateMagicLink(ctx context.Context, email string) (string, error) {
	f.mu.Lock()
	f.magicLinkCalls++
	f.mu.Unlock()
	if f.magicLinkErr != nil {
		return "", f.magicLinkErr
	}
	return f.magicLinkHash, nil
}

func (f *fakeProvider) VerifyMagicLink(ctx context.Context, email, tokenHash string) (domain.Session, error) {
	return f.grantSession, nil
}

// fakeRecords is an in-memory store.RecordStore.
type fakeRecords struct {
	mu sync.Mutex

	hashes    map[string]string // user id -> password hash
	hashErr   error
	allowlist map[string]bool // email -> allowlisted
	roles     map[string][]string
	profiles  map[string]string

	audit    []domain.AuditEntry
	auditErr error

	hashCalls int
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		hashes:    make(map[string]string),
		allowlist: make(map[string]bool),
		roles:     make(map[string][]string),
		profiles:  make(map[string]string),
	}
}

func (f *fakeRecords) QueryPasswordHash(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	f.hashCalls++
	f.mu.Unlock()
	if f.hashErr != nil {
		return "", f.hashErr
	}
	hash, ok := f.hashes[userID]
	if !ok {
		return "", store.ErrNotFound
	}
	return hash, nil
}

func (f *fakeRecords) LookupAllowlist(ctx context.Context, email string) (bool, error) {
	return f.allowlist[email], nil
}

func (f *fakeRecords) LookupRoles(ctx context.Context, userID string) ([]string, error) {
	return f.roles[userID], nil
}

func (f *fakeRecords) LookupProfile(ctx context.Context, userID string) (string, error) {
	return f.profiles[userID], nil
}

func (f *fakeRecords) AppendAudit(ctx context.Context, entry domain.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.auditErr != nil {
		return f.auditErr
	}
	f.audit = append(f.audit, entry)
	return nil
}

func (f *fakeRecords) ApplyMigrations() error         { return nil }
func (f *fakeRecords) Ping(ctx context.Context) error { return nil }
func (f *fakeRecords) Close() error                   { return nil }
