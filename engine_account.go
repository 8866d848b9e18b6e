package ident

import (
	"context"
	"errors"
)

// Profile describes the profile operation and its observable behavior.
//
// The snapshot exposes only what the account holder may see again: credential
// hashes, token values, and the TOTP secret never appear, and backup codes are
// reduced to a remaining count.
//
// Profile may return an error when input validation, dependency calls, or security checks fail.
// Profile does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Profile(ctx context.Context, accountID string) (*Profile, error) {
	if e == nil || e.store == nil {
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

	return &Profile{
		AccountID:            account.ID,
		Username:             account.Username,
		Email:                account.Email,
		EmailVerified:        account.EmailVerified,
		Active:               account.Active,
		TwoFactorEnabled:     account.TwoFactorEnabled,
		BackupCodesRemaining: len(account.BackupCodes),
		PrimaryProvider:      account.PrimaryProvider,
		LinkedProviders:      account.LinkedProviders(),
		CreatedAt:            account.CreatedAt,
	}, nil
}
