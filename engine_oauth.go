package ident

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// FederatedLogin describes the federatedlogin operation and its observable behavior.
//
// The identity comes from a completed upstream handshake, so a new account is
// born active and verified. Matching is by provider identity only: an existing
// account holding the same email but no such link surfaces as ErrAccountExists
// rather than being silently taken over.
//
// FederatedLogin may return an error when input validation, dependency calls, or security checks fail.
// FederatedLogin does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) FederatedLogin(ctx context.Context, identity FederatedIdentity) (*LoginResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if err := e.validateIdentity(identity); err != nil {
		return nil, err
	}

	account, err := e.store.GetByProviderIdentity(ctx, identity.Provider, identity.ExternalID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, mapStoreErr(err)
	}

	if account == nil {
		now := time.Now().UTC()
		account = &Account{
			ID:              uuid.NewString(),
			Username:        normalizeUsername(identity.Username),
			Email:           normalizeEmail(identity.Email),
			Active:          true,
			EmailVerified:   true,
			Identities:      map[Provider]string{identity.Provider: identity.ExternalID},
			PrimaryProvider: identity.Provider,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := e.store.Create(ctx, account); err != nil {
			if errors.Is(err, ErrDuplicate) {
				e.emitAudit(ctx, auditEventFederatedLogin, false, "", ErrAccountExists, func() map[string]string {
					return map[string]string{"provider": string(identity.Provider)}
				})
				return nil, ErrAccountExists
			}
			return nil, mapStoreErr(err)
		}
	} else if !account.Active {
		e.emitAudit(ctx, auditEventFederatedLogin, false, account.ID, ErrAccountNotActive, nil)
		return nil, ErrAccountNotActive
	}

	session, err := e.establishSession(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricFederatedLogin)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventFederatedLogin, true, account.ID, nil, func() map[string]string {
		return map[string]string{"provider": string(identity.Provider)}
	})

	return &LoginResult{AccountID: account.ID, SessionToken: session}, nil
}

// LinkProvider describes the linkprovider operation and its observable behavior.
//
// Re-linking the identical pair is a no-op. A pair already owned elsewhere, or
// a second identity under the same provider, reports ErrProviderAlreadyLinked.
//
// LinkProvider may return an error when input validation, dependency calls, or security checks fail.
// LinkProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LinkProvider(ctx context.Context, accountID string, identity FederatedIdentity) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if accountID == "" {
		return ErrMissingFields
	}
	if !e.config.providerSupported(identity.Provider) {
		return ErrUnsupportedProvider
	}
	if identity.ExternalID == "" {
		return ErrMissingFields
	}

	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrAccountNotFound
		}
		return mapStoreErr(err)
	}
	if !account.Active {
		return ErrAccountNotActive
	}

	if existing, linked := account.Identities[identity.Provider]; linked {
		if existing == identity.ExternalID {
			return nil
		}
		e.emitAudit(ctx, auditEventProviderLinked, false, account.ID, ErrProviderAlreadyLinked, nil)
		return ErrProviderAlreadyLinked
	}

	if account.Identities == nil {
		account.Identities = make(map[Provider]string, 1)
	}
	account.Identities[identity.Provider] = identity.ExternalID
	account.Touch(time.Now().UTC())

	if err := e.store.Update(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicate) {
			e.emitAudit(ctx, auditEventProviderLinked, false, account.ID, ErrProviderAlreadyLinked, nil)
			return ErrProviderAlreadyLinked
		}
		return mapStoreErr(err)
	}

	e.metricInc(MetricProviderLinked)
	e.emitAudit(ctx, auditEventProviderLinked, true, account.ID, nil, func() map[string]string {
		return map[string]string{"provider": string(identity.Provider)}
	})

	return nil
}

// UnlinkProvider describes the unlinkprovider operation and its observable behavior.
//
// An account must always retain a way in: removing the last linked provider
// from an account with no local password is refused with ErrLastCredential.
//
// UnlinkProvider may return an error when input validation, dependency calls, or security checks fail.
// UnlinkProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) UnlinkProvider(ctx context.Context, accountID string, provider Provider) error {
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

	if _, linked := account.Identities[provider]; !linked {
		return ErrProviderNotLinked
	}
	if account.PasswordHash == "" && len(account.Identities) == 1 {
		e.emitAudit(ctx, auditEventProviderUnlinked, false, account.ID, ErrLastCredential, nil)
		return ErrLastCredential
	}

	delete(account.Identities, provider)
	if account.PrimaryProvider == provider {
		account.PrimaryProvider = ""
	}
	account.Touch(time.Now().UTC())

	if err := e.store.Update(ctx, account); err != nil {
		return mapStoreErr(err)
	}

	e.metricInc(MetricProviderUnlinked)
	e.emitAudit(ctx, auditEventProviderUnlinked, true, account.ID, nil, func() map[string]string {
		return map[string]string{"provider": string(provider)}
	})

	return nil
}

func (e *Engine) validateIdentity(identity FederatedIdentity) error {
	if !e.config.providerSupported(identity.Provider) {
		return ErrUnsupportedProvider
	}
	if identity.ExternalID == "" || normalizeEmail(identity.Email) == "" || normalizeUsername(identity.Username) == "" {
		return ErrMissingFields
	}
	return nil
}
