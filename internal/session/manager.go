// Package session owns the client's session lifecycle: sign-in, sign-up,
// sign-out, and resolution of the current session from memory, durable
// storage, or the backend.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"helpmarq/client/internal/api"
	"helpmarq/client/internal/state"
)

// Readiness poll settings: server-side session establishment is eventually
// consistent, so a fresh session may not be visible to get-session right away.
// Fixed interval and a fixed attempt budget; the cost of giving up is small.
const (
	readinessInterval = 300 * time.Millisecond
	readinessRetries  = 4
)

var validate = validator.New()

type signInInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type signUpInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
	Name     string `validate:"required"`
}

// Manager is the session store. At most one in-memory session per manager.
type Manager struct {
	api       *api.Client
	durable   state.Store
	ephemeral state.Store
	log       zerolog.Logger

	mu      sync.Mutex
	current *api.Session
}

// NewManager wires a manager and registers it as the client's forced sign-out
// path for 401s on authenticated calls.
func NewManager(client *api.Client, durable, ephemeral state.Store, log zerolog.Logger) *Manager {
	m := &Manager{
		api:       client,
		durable:   durable,
		ephemeral: ephemeral,
		log:       log,
	}
	client.SetTokenSource(m.token)
	client.SetOnUnauthorized(m.teardown)
	return m
}

// token is the bearer token source for authenticated calls.
func (m *Manager) token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return m.current.Token
	}
	return ""
}

// SignIn authenticates with the backend and persists the session. Nothing is
// persisted when authentication fails.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*api.Session, error) {
	if err := validate.Struct(signInInput{Email: email, Password: password}); err != nil {
		return nil, &api.AuthError{Kind: api.AuthKindInvalidCredentials, Message: "email and password are required"}
	}
	session, err := m.api.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	m.adopt(ctx, session)
	m.waitReady(ctx)
	return session, nil
}

// SignUp creates an account and persists its initial session.
func (m *Manager) SignUp(ctx context.Context, email, password, name string) (*api.Session, error) {
	if err := validate.Struct(signUpInput{Email: email, Password: password, Name: name}); err != nil {
		return nil, &api.AuthError{Kind: api.AuthKindInvalidCredentials, Message: "a valid email, a password of at least 8 characters, and a name are required"}
	}
	session, err := m.api.SignUp(ctx, email, password, name)
	if err != nil {
		return nil, err
	}
	m.adopt(ctx, session)
	m.waitReady(ctx)
	// First sign-up implies a freshly verified identity: the role resolver
	// treats "no role yet" as the first-time selection flow.
	_ = m.ephemeral.Set(ctx, state.KeyIdentityVerified, "1")
	return session, nil
}

// SignOut notifies the backend (best effort) and unconditionally clears all
// local state. It never fails.
func (m *Manager) SignOut(ctx context.Context) {
	if err := m.api.SignOut(ctx); err != nil {
		m.log.Warn().Err(err).Msg("sign-out notification failed, clearing local state anyway")
	}
	m.teardown()
}

// GetSession returns the current session: the in-memory copy, else the durable
// snapshot (if its credential has not expired), else a live backend probe.
// Transport errors and rejections read as "no session".
func (m *Manager) GetSession(ctx context.Context) *api.Session {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()
	if current != nil {
		if expired(current) {
			m.teardown()
			return nil
		}
		return current
	}

	if snapshot := m.loadSnapshot(ctx); snapshot != nil {
		if expired(snapshot) {
			m.teardown()
			return nil
		}
		m.mu.Lock()
		m.current = snapshot
		m.mu.Unlock()
		return snapshot
	}

	session, err := m.api.GetSession(ctx)
	if err != nil {
		m.log.Debug().Err(err).Msg("no live session")
		return nil
	}
	m.adopt(ctx, session)
	return session
}

// CurrentUser projects GetSession to its user snapshot.
func (m *Manager) CurrentUser(ctx context.Context) *api.User {
	session := m.GetSession(ctx)
	if session == nil {
		return nil
	}
	user := session.User
	return &user
}

// IsAuthenticated reports whether a session is available.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	return m.GetSession(ctx) != nil
}

// adopt stores the session in memory and snapshots it durably so a restart
// does not require re-authentication while the server-side session is valid.
func (m *Manager) adopt(ctx context.Context, session *api.Session) {
	m.mu.Lock()
	m.current = session
	m.mu.Unlock()
	encoded, err := json.Marshal(session)
	if err != nil {
		m.log.Warn().Err(err).Msg("snapshot session")
		return
	}
	if err := m.durable.Set(ctx, state.KeySession, string(encoded)); err != nil {
		m.log.Warn().Err(err).Msg("persist session")
	}
}

func (m *Manager) loadSnapshot(ctx context.Context) *api.Session {
	encoded, err := m.durable.Get(ctx, state.KeySession)
	if err != nil {
		return nil
	}
	var session api.Session
	if err := json.Unmarshal([]byte(encoded), &session); err != nil {
		m.log.Warn().Err(err).Msg("corrupt session snapshot")
		_ = m.durable.Delete(ctx, state.KeySession)
		return nil
	}
	return &session
}

// waitReady polls get-session until the backend sees the new session, with a
// fixed interval and attempt budget. Giving up is not an error: the session is
// already stored and later calls will find it once propagation completes.
func (m *Manager) waitReady(ctx context.Context) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(readinessInterval), readinessRetries),
		ctx,
	)
	err := backoff.Retry(func() error {
		_, err := m.api.GetSession(ctx)
		return err
	}, policy)
	if err != nil {
		m.log.Debug().Err(err).Msg("session not visible after readiness poll")
	}
}

// teardown clears every piece of local client state. Idempotent; also wired as
// the 401 hook.
func (m *Manager) teardown() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	ctx := context.Background()
	if err := m.durable.Clear(ctx); err != nil {
		m.log.Warn().Err(err).Msg("clear durable state")
	}
	if err := m.ephemeral.Clear(ctx); err != nil {
		m.log.Warn().Err(err).Msg("clear ephemeral state")
	}
	if cache := m.api.Cache(); cache != nil {
		cache.Clear()
	}
}

// expired reports whether the session credential is past its lifetime. JWT
// tokens are inspected for their exp claim (unverified: the client only needs
// the timestamp, the server enforces authenticity); otherwise the stored
// expiry applies.
func expired(session *api.Session) bool {
	if claims := parseClaims(session.Token); claims != nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return time.Now().After(exp.Time)
		}
	}
	if session.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(session.ExpiresAt)
}

func parseClaims(token string) jwt.Claims {
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	return parsed.Claims
}
