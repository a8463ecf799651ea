// Package session owns the authenticated session: login, logout,
// refresh, profile updates, a background expiry watch that refreshes the
// access token before it lapses, and adoption of credentials written by
// other examdesk processes through the shared store.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opencampus/examdesk/internal/store"
	"github.com/opencampus/examdesk/pkg/examapi"
	"github.com/opencampus/examdesk/pkg/jwtx"
)

// API is the slice of the platform client the manager needs.
type API interface {
	Login(ctx context.Context, req examapi.LoginRequest) (*examapi.TokenPairResponse, error)
	Logout(ctx context.Context) error
	RefreshToken(ctx context.Context, refreshToken string) (*examapi.TokenPairResponse, error)
}

// Options tune the manager's background behavior. Zero values take the
// production defaults.
type Options struct {
	// CheckInterval is the cadence of the expiry watch. Default 60s.
	CheckInterval time.Duration

	// RefreshThreshold is the remaining lifetime below which a
	// background refresh fires. Default 300s.
	RefreshThreshold time.Duration

	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Manager is the token lifecycle manager. It is the exclusive owner of
// the in-memory Credential; the store holds a serialized replica for
// durability and cross-process visibility only.
type Manager struct {
	api    API
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time

	checkInterval    time.Duration
	refreshThreshold time.Duration

	mu              sync.Mutex
	cred            *Credential
	refreshInFlight bool

	kick chan struct{} // wakes the expiry watch on credential change

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewManager creates the manager, synchronously loads any persisted
// credential, and subscribes to external credential changes.
// Initialization completes regardless of outcome: an unreadable
// persisted value is discarded, not fatal.
func NewManager(api API, st *store.Store, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 60 * time.Second
	}
	if opts.RefreshThreshold <= 0 {
		opts.RefreshThreshold = 300 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Manager{
		api:              api,
		store:            st,
		logger:           logger.With("component", "session"),
		now:              opts.Now,
		checkInterval:    opts.CheckInterval,
		refreshThreshold: opts.RefreshThreshold,
		kick:             make(chan struct{}, 1),
		done:             make(chan struct{}),
	}

	m.loadPersisted()
	st.OnExternalChange(CredentialKey, m.onExternalCredential)

	return m
}

// loadPersisted adopts a stored credential without a validation
// round-trip; an invalid token surfaces on first authenticated call.
func (m *Manager) loadPersisted() {
	var cred Credential
	ok, err := m.store.Get(CredentialKey, &cred)
	if err != nil {
		m.logger.Warn("persisted credential unreadable, discarding", "error", err)
		_ = m.store.Remove(CredentialKey)
		return
	}
	if !ok || cred.AccessToken == "" {
		return
	}

	// A session from a non-remembered login lives only as long as some
	// process holds it; a fresh start discards it.
	if !cred.RememberMe {
		m.logger.Info("discarding non-remembered session", "user", cred.User.Username)
		_ = m.store.Remove(CredentialKey)
		return
	}

	m.mu.Lock()
	m.cred = &cred
	m.mu.Unlock()
	m.logger.Info("restored session", "user", cred.User.Username)
}

// Start launches the expiry watch. Safe to call once; Close stops it.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.expiryWatch()
	})
}

// Close stops background work. Idempotent.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.done) })
	m.wg.Wait()
}

// ============================================================================
// Public operations
// ============================================================================

// Login authenticates and replaces the session credential in full.
func (m *Manager) Login(ctx context.Context, username, password string, rememberMe bool) (*Credential, error) {
	pair, err := m.api.Login(ctx, examapi.LoginRequest{
		Username:   username,
		Password:   password,
		RememberMe: rememberMe,
	})
	if err != nil {
		return nil, classifyAPIError(err)
	}

	cred := &Credential{
		User:         pair.User,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		RememberMe:   rememberMe,
	}

	m.mu.Lock()
	m.cred = cred
	m.mu.Unlock()

	m.persist(cred)
	if rememberMe {
		if err := m.store.Set(RememberKey, true); err != nil {
			m.logger.Warn("failed to persist remember flag", "error", err)
		}
	} else {
		if err := m.store.Remove(RememberKey); err != nil {
			m.logger.Warn("failed to clear remember flag", "error", err)
		}
	}

	m.kickWatch()
	m.logger.Info("logged in", "user", cred.User.Username, "remember", rememberMe)
	return cred.clone(), nil
}

// Logout clears the session. Server-side invalidation is best-effort:
// its failure is logged and never surfaces.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.api.Logout(ctx); err != nil {
		m.logger.Warn("server-side logout failed", "error", err)
	}
	m.clearLocal(true)
	m.logger.Info("logged out")
}

// Refresh exchanges the refresh token for a new pair. A failed refresh
// always clears the credential (forced logout) before propagating the
// error; a half-valid session is unsafe to keep.
func (m *Manager) Refresh(ctx context.Context) (*Credential, error) {
	m.mu.Lock()
	if m.cred == nil || m.cred.RefreshToken == "" {
		m.mu.Unlock()
		return nil, ErrNoRefreshToken
	}
	refreshToken := m.cred.RefreshToken
	rememberMe := m.cred.RememberMe
	m.mu.Unlock()

	pair, err := m.api.RefreshToken(ctx, refreshToken)
	if err != nil {
		m.clearLocal(true)
		return nil, classifyAPIError(err)
	}

	cred := &Credential{
		User:         pair.User,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		RememberMe:   rememberMe,
	}

	m.mu.Lock()
	m.cred = cred
	m.mu.Unlock()

	m.persist(cred)
	m.kickWatch()
	return cred.clone(), nil
}

// UpdateProfile merges identity fields into the current credential and
// re-persists it. No-op when unauthenticated.
func (m *Manager) UpdateProfile(update ProfileUpdate) {
	m.mu.Lock()
	if m.cred == nil {
		m.mu.Unlock()
		return
	}
	update.apply(&m.cred.User)
	cred := m.cred.clone()
	m.mu.Unlock()

	m.persist(cred)
}

// IsAuthenticated reports whether an access token is present.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred != nil && m.cred.AccessToken != ""
}

// AccessToken returns the current access token, or "" when
// unauthenticated. This satisfies examapi.TokenProvider and the realtime
// manager's token source.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil {
		return ""
	}
	return m.cred.AccessToken
}

// Current returns a copy of the credential, or nil.
func (m *Manager) Current() *Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred.clone()
}

// ============================================================================
// Background behavior
// ============================================================================

// expiryWatch recomputes the token's remaining lifetime on a fixed
// cadence plus immediately on credential change, and triggers a
// background refresh when it drops under the threshold.
func (m *Manager) expiryWatch() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.checkExpiry()
		case <-m.kick:
			m.checkExpiry()
		}
	}
}

func (m *Manager) kickWatch() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

func (m *Manager) checkExpiry() {
	m.mu.Lock()
	if m.cred == nil || m.cred.AccessToken == "" || m.refreshInFlight {
		m.mu.Unlock()
		return
	}
	token := m.cred.AccessToken
	m.mu.Unlock()

	remaining, err := jwtx.Remaining(token, m.now())
	if err != nil {
		// Malformed token: no refresh needed, not fatal.
		m.logger.Warn("could not decode access token expiry", "error", err)
		return
	}

	if remaining <= 0 || remaining >= m.refreshThreshold {
		return
	}

	m.mu.Lock()
	if m.refreshInFlight {
		m.mu.Unlock()
		return
	}
	m.refreshInFlight = true
	m.mu.Unlock()

	m.logger.Info("access token near expiry, refreshing", "remaining", remaining)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			m.refreshInFlight = false
			m.mu.Unlock()
		}()

		// Background maintenance: failures are logged, never re-thrown.
		if _, err := m.Refresh(context.Background()); err != nil {
			m.logger.Error("background token refresh failed", "error", err)
		}
	}()
}

// onExternalCredential adopts a credential written by another process.
// The originating process already persisted it, so no re-persist here.
func (m *Manager) onExternalCredential(raw json.RawMessage) {
	if raw == nil {
		m.clearLocal(false)
		m.logger.Info("session cleared by another process")
		return
	}

	var cred Credential
	if err := m.store.DecodeRaw(CredentialKey, raw, &cred); err != nil {
		m.logger.Warn("ignoring malformed external credential", "error", err)
		return
	}
	if cred.AccessToken == "" || cred.RefreshToken == "" {
		m.logger.Warn("ignoring partial external credential")
		return
	}

	m.mu.Lock()
	m.cred = &cred
	m.mu.Unlock()

	m.kickWatch()
	m.logger.Info("adopted session from another process", "user", cred.User.Username)
}

// ============================================================================
// Persistence
// ============================================================================

func (m *Manager) persist(cred *Credential) {
	if err := m.store.Set(CredentialKey, cred); err != nil {
		m.logger.Error("failed to persist credential", "error", err)
	}
}

// clearLocal drops the in-memory credential; when clearPersisted is set
// the stored replica and remember flag go too.
func (m *Manager) clearLocal(clearPersisted bool) {
	m.mu.Lock()
	m.cred = nil
	m.mu.Unlock()

	if !clearPersisted {
		return
	}
	if err := m.store.Remove(CredentialKey); err != nil {
		m.logger.Warn("failed to clear persisted credential", "error", err)
	}
	if err := m.store.Remove(RememberKey); err != nil {
		m.logger.Warn("failed to clear remember flag", "error", err)
	}
}
