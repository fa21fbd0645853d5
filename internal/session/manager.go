package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paasify/cfvault/internal/cfauth"
)

// Entry is a token together with the time it was obtained.
type Entry struct {
	Token      cfauth.Token
	ObtainedAt time.Time
}

// ExpiresAt reports when the token lease runs out. ok is false for tokens
// without a known expiry (fixed tokens and zero leases).
func (e Entry) ExpiresAt() (time.Time, bool) {
	lease, ok := e.Token.LeaseDuration()
	if !ok || lease <= 0 {
		return time.Time{}, false
	}
	return e.ObtainedAt.Add(lease), true
}

// Store persists the current token of a session.
type Store interface {
	Load(ctx context.Context, key string) (Entry, bool, error)
	Save(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
}

// Renewer extends the lease of a renewable token.
type Renewer interface {
	Renew(ctx context.Context, tok cfauth.Token) (cfauth.Token, error)
}

// Limiter throttles logins per key.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

type Config struct {
	// Key identifies the session in the Store, usually the auth mount.
	Key string
	// RenewBefore is how long before lease expiry a token stops being
	// handed out as is. It is capped at half the lease.
	RenewBefore time.Duration
}

type Option func(*Manager)

func WithRenewer(r Renewer) Option { return func(m *Manager) { m.renewer = r } }

func WithLimiter(l Limiter) Option { return func(m *Manager) { m.limiter = l } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// Manager hands out a usable Vault token, logging in or renewing on demand.
// Calls are serialized so concurrent callers share a single login.
type Manager struct {
	mu      sync.Mutex
	auth    cfauth.Authenticator
	store   Store
	cfg     Config
	logger  *zap.Logger
	renewer Renewer
	limiter Limiter
	now     func() time.Time
}

func NewManager(auth cfauth.Authenticator, store Store, cfg Config, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Key == "" {
		cfg.Key = cfauth.DefaultMountPath
	}
	m := &Manager{
		auth:   auth,
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns the current token, renewing or logging in when the stored
// one is missing or about to expire.
func (m *Manager) Token(ctx context.Context) (cfauth.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok, err := m.store.Load(ctx, m.cfg.Key)
	if err != nil {
		m.logger.Warn("session.store_load_failed", zap.String("key", m.cfg.Key), zap.Error(err))
		ok = false
	}

	if ok {
		if m.usable(entry) {
			return entry.Token, nil
		}
		if tok, renewed := m.renew(ctx, entry); renewed {
			return tok, nil
		}
	}

	return m.login(ctx)
}

// Secret returns the secret of the current token.
func (m *Manager) Secret(ctx context.Context) (string, error) {
	tok, err := m.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.Secret(), nil
}

// Invalidate drops the stored token so the next call logs in again.
func (m *Manager) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("session.token_invalidated", zap.String("key", m.cfg.Key))
	return m.store.Delete(ctx, m.cfg.Key)
}

func (m *Manager) usable(entry Entry) bool {
	if entry.Token.IsZero() {
		return false
	}
	expiresAt, ok := entry.ExpiresAt()
	if !ok {
		return true
	}
	return m.now().Before(expiresAt.Add(-m.renewWindow(entry)))
}

// renewWindow keeps a fresh token usable for at least half its lease.
func (m *Manager) renewWindow(entry Entry) time.Duration {
	lease, _ := entry.Token.LeaseDuration()
	return min(m.cfg.RenewBefore, lease/2)
}

func (m *Manager) renew(ctx context.Context, entry Entry) (cfauth.Token, bool) {
	if m.renewer == nil || !entry.Token.IsRenewable() {
		return cfauth.Token{}, false
	}
	if expiresAt, ok := entry.ExpiresAt(); ok && !m.now().Before(expiresAt) {
		return cfauth.Token{}, false
	}

	tok, err := m.renewer.Renew(ctx, entry.Token)
	if err != nil {
		m.logger.Warn("session.token_renew_failed", zap.String("key", m.cfg.Key), zap.Error(err))
		return cfauth.Token{}, false
	}

	m.save(ctx, tok)
	m.logger.Info("session.token_renewed", zap.String("key", m.cfg.Key), zap.Object("token", tok))
	return tok, true
}

func (m *Manager) login(ctx context.Context) (cfauth.Token, error) {
	attemptID := uuid.NewString()

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx, m.cfg.Key); err != nil {
			m.logger.Warn("session.login_throttled",
				zap.String("key", m.cfg.Key),
				zap.String("attempt_id", attemptID),
				zap.Error(err))
			return cfauth.Token{}, err
		}
	}

	tok, err := m.auth.Login(ctx)
	if err != nil {
		m.logger.Warn("session.login_failed",
			zap.String("key", m.cfg.Key),
			zap.String("attempt_id", attemptID),
			zap.Error(err))
		return cfauth.Token{}, err
	}

	m.save(ctx, tok)
	m.logger.Info("session.token_obtained",
		zap.String("key", m.cfg.Key),
		zap.String("attempt_id", attemptID),
		zap.Object("token", tok))
	return tok, nil
}

func (m *Manager) save(ctx context.Context, tok cfauth.Token) {
	entry := Entry{Token: tok, ObtainedAt: m.now()}
	if err := m.store.Save(ctx, m.cfg.Key, entry); err != nil {
		m.logger.Warn("session.store_save_failed", zap.String("key", m.cfg.Key), zap.Error(err))
	}
}
