package ident

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/keelhouse/ident/internal"
	"github.com/keelhouse/ident/password"
)

// Engine defines a public type used by ident APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config   Config
	store    Store
	notifier Notifier
	sessions SessionIssuer
	hasher   *password.Argon2
	totp     *totpManager
	audit    *auditDispatcher
	metrics  *Metrics
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// mapStoreErr hides backend detail from callers. Domain sentinels pass
// through untouched; anything else collapses to ErrStoreUnavailable.
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrTokenNotFound),
		errors.Is(err, ErrTokenExpired):
		return err
	default:
		return errors.Join(ErrStoreUnavailable, err)
	}
}

func (e *Engine) checkPasswordPolicy(plain string) error {
	if plain == "" {
		return ErrMissingFields
	}
	if min := e.config.Password.MinLength; min > 0 && len(plain) < min {
		return ErrPasswordPolicy
	}
	return nil
}

// notify delivers mail after the state change committed. Failures are
// recorded and logged but never surfaced to the caller.
func (e *Engine) notify(ctx context.Context, to, subject, body string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(ctx, to, subject, body); err != nil {
		e.metricInc(MetricNotifyFailure)
		log.Print("ident: notification delivery failed")
	}
}

func (e *Engine) establishSession(ctx context.Context, accountID string) (string, error) {
	if e.sessions == nil {
		return "", nil
	}
	token, err := e.sessions.IssueSession(ctx, accountID)
	if err != nil {
		return "", errors.Join(ErrSessionIssueFailed, err)
	}
	return token, nil
}

// issueToken stamps a fresh single-use token of the given class onto the
// account and persists it. The store's uniqueness index is the source of
// truth; a collision surfaces as ErrDuplicate and the issue is retried with
// a new token.
func (e *Engine) issueToken(ctx context.Context, account *Account, class TokenClass) (string, error) {
	attempts := e.config.Tokens.IssueAttempts
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		token, err := internal.NewToken()
		if err != nil {
			return "", errors.Join(ErrTokenIssueFailed, err)
		}

		now := time.Now().UTC()
		account.SetToken(class, token, now.Add(e.config.Tokens.TTL(class)))
		account.Touch(now)

		err = e.store.Update(ctx, account)
		if err == nil {
			return token, nil
		}
		if errors.Is(err, ErrDuplicate) {
			continue
		}
		return "", mapStoreErr(err)
	}

	return "", ErrTokenIssueFailed
}

// consumeToken resolves and atomically clears a single-use token. Unknown
// tokens map to ErrTokenInvalid so callers cannot distinguish "never issued"
// from "already spent"; expired tokens keep their stored value.
func (e *Engine) consumeToken(ctx context.Context, class TokenClass, token string) (*Account, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrTokenInvalid
	}

	account, err := e.store.ConsumeToken(ctx, class, token, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenNotFound):
			return nil, ErrTokenInvalid
		case errors.Is(err, ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, mapStoreErr(err)
		}
	}
	return account, nil
}
