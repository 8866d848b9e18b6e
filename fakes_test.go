package ident

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory Store with the same uniqueness and single-use
// guarantees the Redis store provides, used to exercise engine workflows
// without a server.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*Account

	failCreate error
	failUpdate error
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[string]*Account)}
}

func (m *memStore) GetByID(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return account.Clone(), nil
}

func (m *memStore) GetByUsername(_ context.Context, username string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, account := range m.accounts {
		if strings.EqualFold(account.Username, username) {
			return account.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, account := range m.accounts {
		if strings.EqualFold(account.Email, email) {
			return account.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) GetByProviderIdentity(_ context.Context, provider Provider, externalID string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, account := range m.accounts {
		if account.Identities[provider] == externalID {
			return account.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) Create(_ context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCreate != nil {
		return m.failCreate
	}
	if m.conflicts(account) {
		return ErrDuplicate
	}
	m.accounts[account.ID] = account.Clone()
	return nil
}

func (m *memStore) Update(_ context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failUpdate != nil {
		return m.failUpdate
	}
	if _, ok := m.accounts[account.ID]; !ok {
		return ErrNotFound
	}
	if m.conflicts(account) {
		return ErrDuplicate
	}
	m.accounts[account.ID] = account.Clone()
	return nil
}

// conflicts reports whether another account already claims any unique value
// of the candidate. Caller holds the mutex.
func (m *memStore) conflicts(candidate *Account) bool {
	for id, existing := range m.accounts {
		if id == candidate.ID {
			continue
		}
		if strings.EqualFold(existing.Username, candidate.Username) ||
			strings.EqualFold(existing.Email, candidate.Email) {
			return true
		}
		if candidate.VerificationToken != "" && existing.VerificationToken == candidate.VerificationToken {
			return true
		}
		if candidate.ResetToken != "" && existing.ResetToken == candidate.ResetToken {
			return true
		}
		for provider, externalID := range candidate.Identities {
			if existing.Identities[provider] == externalID {
				return true
			}
		}
	}
	return false
}

func (m *memStore) ConsumeToken(_ context.Context, class TokenClass, token string, now time.Time) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, account := range m.accounts {
		stored, expiry := account.Token(class)
		if stored == "" || stored != token {
			continue
		}
		if now.After(expiry) {
			return nil, ErrTokenExpired
		}
		account.ClearToken(class)
		account.Touch(now)
		return account.Clone(), nil
	}
	return nil, ErrTokenNotFound
}

func (m *memStore) ConsumeBackupCode(_ context.Context, accountID string, hash [32]byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return false, ErrNotFound
	}
	for i, record := range account.BackupCodes {
		if record.Hash == hash {
			account.BackupCodes = append(account.BackupCodes[:i], account.BackupCodes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// mutate applies fn to the stored account in place, bypassing engine
// workflows. Used to stage states such as expired tokens.
func (m *memStore) mutate(t *testing.T, id string, fn func(*Account)) {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		t.Fatalf("account %q not in store", id)
	}
	fn(account)
}

// snapshot returns a clone of the stored account for assertions.
func (m *memStore) snapshot(t *testing.T, id string) *Account {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		t.Fatalf("account %q not in store", id)
	}
	return account.Clone()
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (f *fakeNotifier) last(t *testing.T) sentMail {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.sent) == 0 {
		t.Fatal("no mail sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeSessions struct {
	err error
}

func (f *fakeSessions) IssueSession(_ context.Context, accountID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "sess-" + accountID, nil
}

func fastTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	return cfg
}

type testHarness struct {
	engine   *Engine
	store    *memStore
	notifier *fakeNotifier
	sessions *fakeSessions
}

func newTestEngine(t *testing.T, mutate ...func(*Config)) *testHarness {
	t.Helper()

	cfg := fastTestConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	store := newMemStore()
	notifier := &fakeNotifier{}
	sessions := &fakeSessions{}

	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithNotifier(notifier).
		WithSessionIssuer(sessions).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testHarness{engine: engine, store: store, notifier: notifier, sessions: sessions}
}

// registerVerified registers an account and completes email verification,
// returning the active account.
func (h *testHarness) registerVerified(t *testing.T, username, email, password string) *Account {
	t.Helper()
	ctx := context.Background()

	account, err := h.engine.Register(ctx, username, email, password)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	token, _ := h.store.snapshot(t, account.ID).Token(TokenVerification)
	verified, err := h.engine.VerifyEmail(ctx, token)
	if err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	return verified
}

// enableTwoFactor provisions and confirms TOTP for an account, returning the
// base32 secret and the plaintext backup codes.
func (h *testHarness) enableTwoFactor(t *testing.T, accountID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	setup, err := h.engine.ProvisionTwoFactor(ctx, accountID)
	if err != nil {
		t.Fatalf("ProvisionTwoFactor failed: %v", err)
	}

	codes, err := h.engine.ConfirmTwoFactor(ctx, accountID, h.totpCodeNow(t, setup.Secret))
	if err != nil {
		t.Fatalf("ConfirmTwoFactor failed: %v", err)
	}
	return setup.Secret, codes
}

// totpCodeNow computes the current TOTP code for a base32 secret using the
// engine's configured parameters.
func (h *testHarness) totpCodeNow(t *testing.T, secret string) string {
	t.Helper()

	code, err := h.engine.totp.currentCode(secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("computing totp code failed: %v", err)
	}
	return code
}

func mustBeSentinel(t *testing.T, err, sentinel error) {
	t.Helper()

	if !errors.Is(err, sentinel) {
		t.Fatalf("expected %v, got %v", sentinel, err)
	}
}
