package ident

import (
	"context"
	"time"
)

// VerifyEmail describes the verifyemail operation and its observable behavior.
//
// The token is consumed atomically by the store: of two concurrent calls with
// the same token exactly one succeeds and the other observes ErrTokenInvalid.
// An expired token is reported as ErrTokenExpired and stays stored so the
// distinction survives retries.
//
// VerifyEmail may return an error when input validation, dependency calls, or security checks fail.
// VerifyEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) VerifyEmail(ctx context.Context, token string) (*Account, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.consumeToken(ctx, TokenVerification, token)
	if err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerificationConfirm, false, "", err, nil)
		return nil, err
	}

	account.EmailVerified = true
	account.Active = true
	account.Touch(time.Now().UTC())

	if err := e.store.Update(ctx, account); err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerificationConfirm, false, account.ID, err, nil)
		return nil, mapStoreErr(err)
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, true, account.ID, nil, nil)

	return account.Clone(), nil
}
