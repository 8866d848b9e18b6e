package ident

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

// Register describes the register operation and its observable behavior.
//
// Register creates a pending account: inactive, unverified, holding a fresh
// verification token. The verification mail is sent only after the account
// committed; a delivery failure leaves the account registered and is recovered
// through ResendVerification.
//
// Register may return an error when input validation, dependency calls, or security checks fail.
// Register does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Register(ctx context.Context, username, email, plainPassword string) (*Account, error) {
	if e == nil || e.store == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}

	username = normalizeUsername(username)
	email = normalizeEmail(email)
	if username == "" || email == "" || plainPassword == "" {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrMissingFields, nil)
		return nil, ErrMissingFields
	}
	if !strings.Contains(email, "@") {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrMissingFields, func() map[string]string {
			return map[string]string{"reason": "malformed_email"}
		})
		return nil, ErrMissingFields
	}
	if err := e.checkPasswordPolicy(plainPassword); err != nil {
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, func() map[string]string {
			return map[string]string{"reason": "password_policy"}
		})
		return nil, err
	}

	hash, err := e.hasher.Hash(plainPassword)
	if err != nil {
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrPasswordPolicy, func() map[string]string {
			return map[string]string{"reason": "hash_failed"}
		})
		return nil, ErrPasswordPolicy
	}
	plainPassword = ""

	now := time.Now().UTC()
	account := &Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := e.store.Create(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicate) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", ErrAccountExists, func() map[string]string {
				return map[string]string{"username": username}
			})
			return nil, ErrAccountExists
		}
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, nil)
		return nil, mapStoreErr(err)
	}

	token, err := e.issueToken(ctx, account, TokenVerification)
	if err != nil {
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, account.ID, err, func() map[string]string {
			return map[string]string{"reason": "token_issue_failed"}
		})
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.metricInc(MetricEmailVerificationRequest)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, account.ID, nil, nil)
	e.emitAudit(ctx, auditEventEmailVerificationRequest, true, account.ID, nil, nil)

	e.notify(ctx, account.Email, "Verify your email address",
		"Confirm your address by opening: "+e.config.Mail.VerificationURL+token)

	return account.Clone(), nil
}

// ResendVerification describes the resendverification operation and its observable behavior.
//
// A fresh token replaces the previous one; the old link stops working the
// moment the store write lands. Unknown addresses are acknowledged without
// effect so the endpoint cannot be used to probe for accounts.
//
// ResendVerification may return an error when input validation, dependency calls, or security checks fail.
// ResendVerification does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
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
			e.emitAudit(ctx, auditEventEmailVerificationRequest, true, "", nil, func() map[string]string {
				return map[string]string{"outcome": "unknown_email"}
			})
			return nil
		}
		return mapStoreErr(err)
	}
	if account.EmailVerified {
		e.emitAudit(ctx, auditEventEmailVerificationRequest, false, account.ID, ErrAlreadyVerified, nil)
		return ErrAlreadyVerified
	}

	token, err := e.issueToken(ctx, account, TokenVerification)
	if err != nil {
		return err
	}

	e.metricInc(MetricEmailVerificationRequest)
	e.emitAudit(ctx, auditEventEmailVerificationRequest, true, account.ID, nil, nil)

	e.notify(ctx, account.Email, "Verify your email address",
		"Confirm your address by opening: "+e.config.Mail.VerificationURL+token)

	return nil
}
