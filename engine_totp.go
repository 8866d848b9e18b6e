package ident

import (
	"context"
	"errors"
	"time"
)

// ProvisionTwoFactor describes the provisiontwofactor operation and its observable behavior.
//
// Provisioning stages a secret without enabling enforcement; logins continue
// on password alone until ConfirmTwoFactor proves the authenticator works.
// Calling it again before confirmation replaces the staged secret.
//
// ProvisionTwoFactor may return an error when input validation, dependency calls, or security checks fail.
// ProvisionTwoFactor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ProvisionTwoFactor(ctx context.Context, accountID string) (*TwoFactorSetup, error) {
	if e == nil || e.store == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}
	if accountID == "" {
		return nil, ErrMissingFields
	}

	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, mapStoreErr(err)
	}
	if !account.Active {
		return nil, ErrAccountNotActive
	}
	if account.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	secret, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	account.TwoFactorSecret = secret
	account.Touch(time.Now().UTC())

	if err := e.store.Update(ctx, account); err != nil {
		return nil, mapStoreErr(err)
	}

	e.metricInc(MetricTOTPProvisioned)
	e.emitAudit(ctx, auditEventTOTPSetupRequested, true, account.ID, nil, nil)

	return &TwoFactorSetup{
		Secret: secret,
		URI:    e.totp.ProvisionURI(secret, account.Email),
	}, nil
}

// ConfirmTwoFactor describes the confirmtwofactor operation and its observable behavior.
//
// A valid code from the staged secret flips enforcement on and mints the
// backup code set. The returned plaintext codes are shown exactly once; only
// their hashes persist.
//
// ConfirmTwoFactor may return an error when input validation, dependency calls, or security checks fail.
// ConfirmTwoFactor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ConfirmTwoFactor(ctx context.Context, accountID, code string) ([]string, error) {
	if e == nil || e.store == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}
	if accountID == "" || code == "" {
		return nil, ErrMissingFields
	}

	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, mapStoreErr(err)
	}
	if !account.Active {
		return nil, ErrAccountNotActive
	}
	if account.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	if account.TwoFactorSecret == "" {
		return nil, ErrTwoFactorNotProvisioned
	}

	ok, err := e.totp.VerifyCode(account.TwoFactorSecret, code, time.Now())
	if err != nil || !ok {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, account.ID, ErrTwoFactorCodeInvalid, func() map[string]string {
			return map[string]string{"phase": "confirm"}
		})
		return nil, ErrTwoFactorCodeInvalid
	}

	plaintext, records, err := e.newBackupCodeSet(account.ID)
	if err != nil {
		return nil, err
	}

	account.TwoFactorEnabled = true
	account.BackupCodes = records
	account.Touch(time.Now().UTC())

	if err := e.store.Update(ctx, account); err != nil {
		return nil, mapStoreErr(err)
	}

	e.metricInc(MetricTOTPEnabled)
	e.emitAudit(ctx, auditEventTOTPEnabled, true, account.ID, nil, nil)

	return plaintext, nil
}

// DisableTwoFactor describes the disabletwofactor operation and its observable behavior.
//
// The wipe is unconditional and idempotent: secret, enforcement flag, and all
// remaining backup codes are removed in one store write.
//
// DisableTwoFactor may return an error when input validation, dependency calls, or security checks fail.
// DisableTwoFactor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) DisableTwoFactor(ctx context.Context, accountID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if accountID == "" {
		return ErrMissingFields
	}

	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrAccountNotFound
		}
		return mapStoreErr(err)
	}

	account.TwoFactorEnabled = false
	account.TwoFactorSecret = ""
	account.BackupCodes = nil
	account.Touch(time.Now().UTC())

	if err := e.store.Update(ctx, account); err != nil {
		return mapStoreErr(err)
	}

	e.metricInc(MetricTOTPDisabled)
	e.emitAudit(ctx, auditEventTOTPDisabled, true, account.ID, nil, nil)

	return nil
}
