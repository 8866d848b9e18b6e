package ident

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/keelhouse/ident/internal"
)

// Login describes the login operation and its observable behavior.
//
// The activity gate runs before the password check, and an unknown identifier
// reports the same ErrAccountNotActive as a real unverified account, so the
// response never reveals whether the identifier exists. When the account has a
// second factor enabled the result carries TwoFactorRequired and no session;
// the login completes through CompleteTwoFactor.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Login(ctx context.Context, identifier, plainPassword string) (*LoginResult, error) {
	if e == nil || e.store == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || plainPassword == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrMissingFields, nil)
		return nil, ErrMissingFields
	}

	account, err := e.lookupByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrAccountNotActive, func() map[string]string {
				return map[string]string{"reason": "unknown_identifier"}
			})
			return nil, ErrAccountNotActive
		}
		return nil, mapStoreErr(err)
	}

	if !account.Active {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, ErrAccountNotActive, func() map[string]string {
			return map[string]string{"reason": "inactive"}
		})
		return nil, ErrAccountNotActive
	}

	// A federated-only account has no local hash and can never pass here.
	if account.PasswordHash == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "no_local_credential"}
		})
		return nil, ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(plainPassword, account.PasswordHash)
	plainPassword = ""
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "password_mismatch"}
		})
		return nil, ErrInvalidCredentials
	}

	if account.TwoFactorEnabled {
		e.metricInc(MetricMFARequired)
		e.emitAudit(ctx, auditEventMFARequired, true, account.ID, nil, nil)
		return &LoginResult{AccountID: account.ID, TwoFactorRequired: true}, nil
	}

	session, err := e.establishSession(ctx, account.ID)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, err, nil)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, nil, nil)

	return &LoginResult{AccountID: account.ID, SessionToken: session}, nil
}

// CompleteTwoFactor describes the completetwofactor operation and its observable behavior.
//
// The code is checked as a TOTP value first and as a backup code second.
// A spent backup code fails: consumption is atomic in the store, so of two
// concurrent presentations of the same code exactly one wins.
//
// CompleteTwoFactor may return an error when input validation, dependency calls, or security checks fail.
// CompleteTwoFactor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CompleteTwoFactor(ctx context.Context, accountID, code string) (*LoginResult, error) {
	if e == nil || e.store == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}
	if accountID == "" || strings.TrimSpace(code) == "" {
		return nil, ErrMissingFields
	}

	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.metricInc(MetricMFAFailure)
			e.emitAudit(ctx, auditEventMFAFailure, false, accountID, ErrAccountNotActive, nil)
			return nil, ErrAccountNotActive
		}
		return nil, mapStoreErr(err)
	}
	if !account.Active {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, account.ID, ErrAccountNotActive, nil)
		return nil, ErrAccountNotActive
	}
	if !account.TwoFactorEnabled {
		e.emitAudit(ctx, auditEventMFAFailure, false, account.ID, ErrTwoFactorNotProvisioned, nil)
		return nil, ErrTwoFactorNotProvisioned
	}

	ok, err := e.totp.VerifyCode(account.TwoFactorSecret, code, time.Now())
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, account.ID, ErrTwoFactorCodeInvalid, nil)
		return nil, ErrTwoFactorCodeInvalid
	}

	usedBackup := false
	if !ok {
		canonical := internal.CanonicalizeBackupCode(code)
		if canonical != "" {
			consumed, err := e.store.ConsumeBackupCode(ctx, account.ID, internal.BackupCodeHash(account.ID, canonical))
			if err != nil {
				return nil, mapStoreErr(err)
			}
			if consumed {
				ok = true
				usedBackup = true
			}
		}
	}

	if !ok {
		e.metricInc(MetricMFAFailure)
		e.metricInc(MetricBackupCodeFailed)
		e.emitAudit(ctx, auditEventMFAFailure, false, account.ID, ErrTwoFactorCodeInvalid, nil)
		return nil, ErrTwoFactorCodeInvalid
	}

	session, err := e.establishSession(ctx, account.ID)
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, account.ID, err, nil)
		return nil, err
	}

	if usedBackup {
		e.metricInc(MetricBackupCodeUsed)
		e.emitAudit(ctx, auditEventBackupCodeUsed, true, account.ID, nil, nil)
	}
	e.metricInc(MetricMFASuccess)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventMFASuccess, true, account.ID, nil, nil)

	return &LoginResult{AccountID: account.ID, SessionToken: session}, nil
}

func (e *Engine) lookupByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	if strings.Contains(identifier, "@") {
		return e.store.GetByEmail(ctx, normalizeEmail(identifier))
	}
	return e.store.GetByUsername(ctx, identifier)
}
