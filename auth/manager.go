package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/reqflow/clock"
)

// Logout reasons passed to ManagerConfig.OnLogout.
const (
	ReasonUnavailable = "credential unavailable"
	ReasonExpired     = "session expired"
)

// ManagerConfig configures a TokenManager.
type ManagerConfig struct {
	// Renewer obtains fresh credentials. Required for renewal.
	Renewer Renewer

	// Token is an initial credential, e.g. from login.
	Token string

	// RenewTimeout bounds a single renewal.
	// Default: 10s
	RenewTimeout time.Duration

	// ExpirySkew treats JWTs expiring within this window as expired.
	// Default: 30s
	ExpirySkew time.Duration

	// OnLogout is called once per failed renewal, after the credential has
	// been cleared.
	OnLogout func(reason string)

	// OnRenew is called after each successful renewal.
	OnRenew func(Credential)

	// Clock is used for expiry checks.
	// Default: the wall clock
	Clock clock.Clock
}

// TokenManager holds the current credential and coordinates renewal.
// At most one renewal runs at a time; concurrent callers share its outcome.
type TokenManager struct {
	config ManagerConfig
	group  singleflight.Group

	mu       sync.RWMutex
	cred     Credential
	renewals int64
	failures int64
	logouts  int64
}

// NewTokenManager creates a token manager.
func NewTokenManager(config ManagerConfig) *TokenManager {
	if config.RenewTimeout <= 0 {
		config.RenewTimeout = 10 * time.Second
	}
	if config.ExpirySkew <= 0 {
		config.ExpirySkew = 30 * time.Second
	}
	config.Clock = clock.OrReal(config.Clock)

	m := &TokenManager{config: config}
	if config.Token != "" {
		m.cred = ParseCredential(config.Token, SourceCached)
	}
	return m
}

// Credential returns a usable credential, renewing when none is cached. A
// renewal failure clears the credential, triggers logout, and returns an
// error wrapping ErrAuthUnavailable.
func (m *TokenManager) Credential(ctx context.Context) (Credential, error) {
	if c, ok := m.current(); ok {
		c.Source = SourceCached
		return c, nil
	}
	c, err := m.renew(ctx, ReasonUnavailable)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrAuthUnavailable, err)
	}
	return c, nil
}

// Renew replaces a credential the server rejected. If the cached token has
// already moved on from stale, the newer credential is returned without
// another renewal. Failure clears the credential, triggers logout, and
// returns an error wrapping ErrRenewalFailed.
func (m *TokenManager) Renew(ctx context.Context, stale string) (Credential, error) {
	if c, ok := m.current(); ok && c.Token != stale {
		c.Source = SourceRenewed
		return c, nil
	}
	m.clearIf(stale)
	return m.renew(ctx, ReasonExpired)
}

func (m *TokenManager) renew(ctx context.Context, reason string) (Credential, error) {
	detached := context.WithoutCancel(ctx)
	ch := m.group.DoChan("renew", func() (any, error) {
		if m.config.Renewer == nil {
			m.logout(reason)
			return nil, ErrNoRenewer
		}
		rctx, cancel := context.WithTimeout(detached, m.config.RenewTimeout)
		defer cancel()

		c, err := m.config.Renewer.Renew(rctx)
		if err == nil && c.Token == "" {
			err = ErrTokenMalformed
		}
		if err != nil {
			m.mu.Lock()
			m.cred = Credential{}
			m.failures++
			m.mu.Unlock()
			m.logout(reason)
			if !errors.Is(err, ErrRenewalFailed) {
				err = fmt.Errorf("%w: %w", ErrRenewalFailed, err)
			}
			return nil, err
		}

		c.Source = SourceRenewed
		m.mu.Lock()
		m.cred = c
		m.renewals++
		m.mu.Unlock()
		if m.config.OnRenew != nil {
			m.config.OnRenew(c)
		}
		return c, nil
	})

	select {
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Credential{}, r.Err
		}
		return r.Val.(Credential), nil
	}
}

func (m *TokenManager) current() (Credential, bool) {
	m.mu.RLock()
	c := m.cred
	m.mu.RUnlock()
	return c, c.Usable(m.config.Clock.Now(), m.config.ExpirySkew)
}

func (m *TokenManager) clearIf(token string) {
	m.mu.Lock()
	if m.cred.Token == token {
		m.cred = Credential{}
	}
	m.mu.Unlock()
}

func (m *TokenManager) logout(reason string) {
	m.mu.Lock()
	m.logouts++
	m.mu.Unlock()
	if m.config.OnLogout != nil {
		m.config.OnLogout(reason)
	}
}

// Set installs a credential, e.g. after login.
func (m *TokenManager) Set(token string) {
	m.mu.Lock()
	m.cred = ParseCredential(token, SourceCached)
	m.mu.Unlock()
}

// Logout clears the credential and triggers the logout callback with reason.
// It is used when a replayed request is rejected after a successful renewal.
func (m *TokenManager) Logout(reason string) {
	m.Invalidate()
	m.logout(reason)
}

// Invalidate clears the cached credential without logging out.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.cred = Credential{}
	m.mu.Unlock()
}

// Stats returns renewal counters.
func (m *TokenManager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ManagerStats{
		HasCredential: m.cred.Token != "",
		ExpiresAt:     m.cred.ExpiresAt,
		Renewals:      m.renewals,
		Failures:      m.failures,
		Logouts:       m.logouts,
	}
}

// ManagerStats contains token manager statistics.
type ManagerStats struct {
	HasCredential bool
	ExpiresAt     time.Time
	Renewals      int64
	Failures      int64
	Logouts       int64
}
