package ident

import (
	"context"
	"errors"
	"time"
)

// RequestPasswordReset describes the requestpasswordreset operation and its observable behavior.
//
// The response is identical whether or not the address belongs to an account:
// an unknown email is acknowledged with nil after the same audit trail. The
// caller only sees an error when the credential store itself failed.
//
// RequestPasswordReset may return an error when input validation, dependency calls, or security checks fail.
// RequestPasswordReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" {
		return ErrMissingFields
	}

	account, err := e.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.metricInc(MetricPasswordResetRequest)
			e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", nil, func() map[string]string {
				return map[string]string{"outcome": "unknown_email"}
			})
			return nil
		}
		return mapStoreErr(err)
	}

	token, err := e.issueToken(ctx, account, TokenReset)
	if err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, account.ID, nil, nil)

	e.notify(ctx, account.Email, "Reset your password",
		"Reset your password by opening: "+e.config.Mail.ResetURL+token)

	return nil
}

// ResetPassword describes the resetpassword operation and its observable behavior.
//
// Policy runs before consumption so a rejected replacement password does not
// burn the token. Consumption itself is atomic: a token can rewrite exactly
// one password, and expired tokens are reported without being cleared.
//
// ResetPassword may return an error when input validation, dependency calls, or security checks fail.
// ResetPassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if e == nil || e.store == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	account, err := e.consumeToken(ctx, TokenReset, token)
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", err, nil)
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	newPassword = ""
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, account.ID, ErrPasswordPolicy, nil)
		return ErrPasswordPolicy
	}

	account.PasswordHash = hash
	account.Touch(time.Now().UTC())

	if err := e.store.Update(ctx, account); err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, account.ID, err, nil)
		return mapStoreErr(err)
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, account.ID, nil, nil)

	e.notify(ctx, account.Email, "Your password was changed",
		"The password on your account was just reset. If this was not you, contact support immediately.")

	return nil
}

// ChangePassword describes the changepassword operation and its observable behavior.
//
// ChangePassword may return an error when input validation, dependency calls, or security checks fail.
// ChangePassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if e == nil || e.store == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	if accountID == "" || oldPassword == "" {
		return ErrMissingFields
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, ErrAccountNotFound, nil)
			return ErrAccountNotFound
		}
		return mapStoreErr(err)
	}
	if !account.Active {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, ErrAccountNotActive, nil)
		return ErrAccountNotActive
	}

	if account.PasswordHash == "" {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "no_local_credential"}
		})
		return ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(oldPassword, account.PasswordHash)
	oldPassword = ""
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	hash, err := e.hasher.Hash(newPassword)
	newPassword = ""
	if err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, ErrPasswordPolicy, nil)
		return ErrPasswordPolicy
	}

	account.PasswordHash = hash
	account.Touch(time.Now().UTC())

	if err := e.store.Update(ctx, account); err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, err, nil)
		return mapStoreErr(err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, account.ID, nil, nil)

	return nil
}
