package ident

import (
	"context"
	"errors"
	"time"

	"github.com/keelhouse/ident/internal"
)

// newBackupCodeSet mints the configured number of backup codes for the
// account. Plaintext goes back to the caller for one-time display; the
// returned records carry only account-bound hashes.
func (e *Engine) newBackupCodeSet(accountID string) ([]string, []BackupCodeRecord, error) {
	count := e.config.TwoFactor.BackupCodeCount
	length := e.config.TwoFactor.BackupCodeLength

	plaintext := make([]string, 0, count)
	records := make([]BackupCodeRecord, 0, count)
	for i := 0; i < count; i++ {
		raw, err := internal.NewBackupCode(length, nil)
		if err != nil {
			return nil, nil, err
		}
		canonical := internal.CanonicalizeBackupCode(raw)
		records = append(records, BackupCodeRecord{Hash: internal.BackupCodeHash(accountID, canonical)})
		plaintext = append(plaintext, internal.FormatBackupCode(raw))
	}

	return plaintext, records, nil
}

// RegenerateBackupCodes describes the regeneratebackupcodes operation and its observable behavior.
//
// Regeneration replaces the entire remaining set and requires a fresh TOTP
// code, not a backup code: a stolen backup code must not be able to mint more
// of itself.
//
// RegenerateBackupCodes may return an error when input validation, dependency calls, or security checks fail.
// RegenerateBackupCodes does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID, totpCode string) ([]string, error) {
	if e == nil || e.store == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}
	if accountID == "" || totpCode == "" {
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
	if !account.TwoFactorEnabled {
		return nil, ErrTwoFactorNotProvisioned
	}

	ok, err := e.totp.VerifyCode(account.TwoFactorSecret, totpCode, time.Now())
	if err != nil || !ok {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, account.ID, ErrTwoFactorCodeInvalid, func() map[string]string {
			return map[string]string{"phase": "backup_regenerate"}
		})
		return nil, ErrTwoFactorCodeInvalid
	}

	plaintext, records, err := e.newBackupCodeSet(account.ID)
	if err != nil {
		return nil, err
	}

	account.BackupCodes = records
	account.Touch(time.Now().UTC())

	if err := e.store.Update(ctx, account); err != nil {
		return nil, mapStoreErr(err)
	}

	e.emitAudit(ctx, auditEventTOTPEnabled, true, account.ID, nil, func() map[string]string {
		return map[string]string{"phase": "backup_regenerate"}
	})

	return plaintext, nil
}
