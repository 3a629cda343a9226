package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// VendorAPI is the slice of the mobile API the credential lifecycle
// needs: minting a vendor session from an identity token, and trading a
// refresh token for a new pair.
type VendorAPI interface {
	Login(ctx context.Context, mobileUUID, username, identityToken string) (access, refresh string, err error)
	RefreshToken(ctx context.Context, refreshToken string) (access, refresh string, err error)
}

// LoginResult reports the outcome of a login attempt. When MFARequired
// is set, no tokens were persisted; the pending challenge is held by
// the Manager until SubmitMFACode completes it.
type LoginResult struct {
	MFARequired bool
	MFAKind     string
}

// Manager drives the full login sequence: SRP exchange, optional MFA,
// subject decode, vendor session mint, and persistence of the pair.
type Manager struct {
	cognito *Cognito
	api     VendorAPI
	store   *Store
	log     *slog.Logger

	mu              sync.Mutex
	pending         *MFAChallenge
	pendingUsername string
}

// NewManager creates a login manager.
func NewManager(cognito *Cognito, api VendorAPI, store *Store, log *slog.Logger) *Manager {
	return &Manager{cognito: cognito, api: api, store: store, log: log}
}

// Login authenticates a user. On an MFA demand the challenge is parked
// and the caller must follow up with SubmitMFACode; otherwise the
// vendor pair is persisted before returning. Login errors are surfaced
// immediately with no retry: the user must resubmit.
func (m *Manager) Login(ctx context.Context, username, password string) (LoginResult, error) {
	identity, challenge, err := m.cognito.Authenticate(ctx, username, password)
	if err != nil {
		return LoginResult{}, err
	}

	if challenge != nil {
		m.mu.Lock()
		m.pending = challenge
		m.pendingUsername = username
		m.mu.Unlock()
		m.log.Info("login requires a second factor", "kind", challenge.Kind)
		return LoginResult{MFARequired: true, MFAKind: challenge.Kind}, nil
	}

	if err := m.completeLogin(ctx, username, identity); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{}, nil
}

// SubmitMFACode consumes the pending challenge with a one-time code.
// On success the vendor pair is persisted; on a rejected code nothing
// is persisted and the challenge stays pending for another attempt.
func (m *Manager) SubmitMFACode(ctx context.Context, code string) error {
	m.mu.Lock()
	challenge := m.pending
	username := m.pendingUsername
	m.mu.Unlock()

	if challenge == nil {
		return fmt.Errorf("auth: no MFA challenge pending")
	}

	identity, err := m.cognito.RespondToMFA(ctx, challenge, code)
	if err != nil {
		return err
	}

	if err := m.completeLogin(ctx, username, identity); err != nil {
		return err
	}

	m.mu.Lock()
	m.pending = nil
	m.pendingUsername = ""
	m.mu.Unlock()
	return nil
}

// MFAPending reports whether a challenge is parked, and its kind.
func (m *Manager) MFAPending() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return false, ""
	}
	return true, m.pending.Kind
}

func (m *Manager) completeLogin(ctx context.Context, username string, identity *IdentityResult) error {
	subject, err := DecodeSubject(identity.IDToken)
	if err != nil {
		return err
	}

	access, refresh, err := m.api.Login(ctx, subject, username, identity.AccessToken)
	if err != nil {
		return fmt.Errorf("auth: vendor session exchange: %w", err)
	}

	if err := m.store.SavePair(Credentials{AccessToken: access, RefreshToken: refresh}); err != nil {
		return err
	}
	m.log.Info("login complete, vendor session persisted")
	return nil
}
