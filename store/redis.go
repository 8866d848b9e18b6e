package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keelhouse/ident"
)

const (
	defaultKeyPrefix = "ident"
	recordVersionV1  = 1

	// tokenIndexGrace keeps the token index alive past expiry so a late
	// consume can still be told "expired" instead of "never existed".
	tokenIndexGrace = 72 * time.Hour

	maxTxRetries = 4
)

var (
	errUsernameImmutable = errors.New("username cannot change after creation")
	errRedisUnavailable  = errors.New("redis unavailable")
)

// Redis implements ident.Store on a single Redis instance.
//
// Layout (all keys share the configured prefix):
//
//	<p>:acct:<id>              JSON account record
//	<p>:uname:<username>       username index -> account id
//	<p>:email:<email>          email index -> account id
//	<p>:tok:v:<token>          verification-token index -> account id
//	<p>:tok:r:<token>          reset-token index -> account id
//	<p>:fid:<provider>:<ext>   provider-identity index -> account id
//
// Uniqueness is enforced through SETNX on the index keys; single-use
// consumption runs under WATCH so concurrent consumers serialize on the
// account key.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis describes the newredis operation and its observable behavior.
//
// NewRedis may return an error when input validation, dependency calls, or security checks fail.
// NewRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (s *Redis) acctKey(id string) string {
	return s.prefix + ":acct:" + id
}

func (s *Redis) usernameKey(username string) string {
	return s.prefix + ":uname:" + strings.ToLower(username)
}

func (s *Redis) emailKey(email string) string {
	return s.prefix + ":email:" + strings.ToLower(email)
}

func (s *Redis) tokenKey(class ident.TokenClass, token string) string {
	if class == ident.TokenReset {
		return s.prefix + ":tok:r:" + token
	}
	return s.prefix + ":tok:v:" + token
}

func (s *Redis) identityKey(provider ident.Provider, externalID string) string {
	return s.prefix + ":fid:" + string(provider) + ":" + externalID
}

// GetByID describes the getbyid operation and its observable behavior.
//
// GetByID may return an error when input validation, dependency calls, or security checks fail.
// GetByID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Redis) GetByID(ctx context.Context, id string) (*ident.Account, error) {
	data, err := s.client.Get(ctx, s.acctKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ident.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	return decodeAccountRecord(data)
}

// GetByUsername describes the getbyusername operation and its observable behavior.
//
// GetByUsername may return an error when input validation, dependency calls, or security checks fail.
// GetByUsername does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Redis) GetByUsername(ctx context.Context, username string) (*ident.Account, error) {
	return s.getByIndex(ctx, s.usernameKey(username))
}

// GetByEmail describes the getbyemail operation and its observable behavior.
//
// GetByEmail may return an error when input validation, dependency calls, or security checks fail.
// GetByEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Redis) GetByEmail(ctx context.Context, email string) (*ident.Account, error) {
	return s.getByIndex(ctx, s.emailKey(email))
}

// GetByProviderIdentity describes the getbyprovideridentity operation and its observable behavior.
//
// GetByProviderIdentity may return an error when input validation, dependency calls, or security checks fail.
// GetByProviderIdentity does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Redis) GetByProviderIdentity(ctx context.Context, provider ident.Provider, externalID string) (*ident.Account, error) {
	return s.getByIndex(ctx, s.identityKey(provider, externalID))
}

func (s *Redis) getByIndex(ctx context.Context, indexKey string) (*ident.Account, error) {
	id, err := s.client.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ident.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	return s.GetByID(ctx, id)
}

// Create describes the create operation and its observable behavior.
//
// Create may return an error when input validation, dependency calls, or security checks fail.
// Create does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Redis) Create(ctx context.Context, account *ident.Account) error {
	encoded, err := encodeAccountRecord(account)
	if err != nil {
		return err
	}

	type claim struct {
		key string
		ttl time.Duration
	}
	claims := []claim{
		{key: s.usernameKey(account.Username)},
		{key: s.emailKey(account.Email)},
	}
	for provider, externalID := range account.Identities {
		claims = append(claims, claim{key: s.identityKey(provider, externalID)})
	}
	if account.VerificationToken != "" {
		claims = append(claims, claim{
			key: s.tokenKey(ident.TokenVerification, account.VerificationToken),
			ttl: time.Until(account.VerificationExpiry) + tokenIndexGrace,
		})
	}
	if account.ResetToken != "" {
		claims = append(claims, claim{
			key: s.tokenKey(ident.TokenReset, account.ResetToken),
			ttl: time.Until(account.ResetExpiry) + tokenIndexGrace,
		})
	}

	// Claim every index with SETNX; on any collision release what was taken.
	claimed := make([]string, 0, len(claims))
	for _, c := range claims {
		ok, err := s.client.SetNX(ctx, c.key, account.ID, c.ttl).Result()
		if err != nil {
			s.release(ctx, claimed)
			return fmt.Errorf("%w: %v", errRedisUnavailable, err)
		}
		if !ok {
			s.release(ctx, claimed)
			return ident.ErrDuplicate
		}
		claimed = append(claimed, c.key)
	}

	if err := s.client.Set(ctx, s.acctKey(account.ID), encoded, 0).Err(); err != nil {
		s.release(ctx, claimed)
		return fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}

	return nil
}

func (s *Redis) release(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	_ = s.client.Del(ctx, keys...).Err()
}

// Update describes the update operation and its observable behavior.
//
// The account key and every index key the new state claims are watched, so a
// concurrent writer racing for the same email, token, or provider identity
// forces a retry and at most one wins.
//
// Update may return an error when input validation, dependency calls, or security checks fail.
// Update does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Redis) Update(ctx context.Context, account *ident.Account) error {
	encoded, err := encodeAccountRecord(account)
	if err != nil {
		return err
	}

	acctKey := s.acctKey(account.ID)
	watchKeys := append([]string{acctKey}, s.claimableKeys(account)...)

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, acctKey).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ident.ErrNotFound
				}
				return err
			}
			current, err := decodeAccountRecord(data)
			if err != nil {
				return err
			}
			if !strings.EqualFold(current.Username, account.Username) {
				return errUsernameImmutable
			}

			// Every index the new state claims must be free or already ours.
			for _, key := range s.claimableKeys(account) {
				owner, err := tx.Get(ctx, key).Result()
				if err != nil && !errors.Is(err, redis.Nil) {
					return err
				}
				if err == nil && owner != account.ID {
					return ident.ErrDuplicate
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				s.reindex(ctx, pipe, current, account)
				pipe.Set(ctx, acctKey, encoded, 0)
				return nil
			})
			return err
		}, watchKeys...)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ident.ErrNotFound),
				errors.Is(err, ident.ErrDuplicate),
				errors.Is(err, errUsernameImmutable):
				return err
			default:
				return fmt.Errorf("%w: %v", errRedisUnavailable, err)
			}
		}
		return nil
	}

	return fmt.Errorf("%w: transaction retries exhausted", errRedisUnavailable)
}

// claimableKeys lists the index keys the new account state needs beyond the
// immutable username index.
func (s *Redis) claimableKeys(account *ident.Account) []string {
	keys := []string{s.emailKey(account.Email)}
	if account.VerificationToken != "" {
		keys = append(keys, s.tokenKey(ident.TokenVerification, account.VerificationToken))
	}
	if account.ResetToken != "" {
		keys = append(keys, s.tokenKey(ident.TokenReset, account.ResetToken))
	}
	for provider, externalID := range account.Identities {
		keys = append(keys, s.identityKey(provider, externalID))
	}
	return keys
}

// reindex queues index deletions and writes reflecting the transition from
// old to new account state.
func (s *Redis) reindex(ctx context.Context, pipe redis.Pipeliner, old, next *ident.Account) {
	if !strings.EqualFold(old.Email, next.Email) {
		pipe.Del(ctx, s.emailKey(old.Email))
		pipe.Set(ctx, s.emailKey(next.Email), next.ID, 0)
	}

	s.reindexToken(ctx, pipe, ident.TokenVerification,
		old.VerificationToken, next.VerificationToken, next.VerificationExpiry, next.ID)
	s.reindexToken(ctx, pipe, ident.TokenReset,
		old.ResetToken, next.ResetToken, next.ResetExpiry, next.ID)

	for provider, externalID := range old.Identities {
		if current, ok := next.Identities[provider]; !ok || current != externalID {
			pipe.Del(ctx, s.identityKey(provider, externalID))
		}
	}
	for provider, externalID := range next.Identities {
		if previous, ok := old.Identities[provider]; !ok || previous != externalID {
			pipe.Set(ctx, s.identityKey(provider, externalID), next.ID, 0)
		}
	}
}

func (s *Redis) reindexToken(ctx context.Context, pipe redis.Pipeliner, class ident.TokenClass, oldToken, newToken string, newExpiry time.Time, id string) {
	if oldToken == newToken {
		return
	}
	if oldToken != "" {
		pipe.Del(ctx, s.tokenKey(class, oldToken))
	}
	if newToken != "" {
		ttl := time.Until(newExpiry) + tokenIndexGrace
		pipe.Set(ctx, s.tokenKey(class, newToken), id, ttl)
	}
}

// ConsumeToken describes the consumetoken operation and its observable behavior.
//
// The account key is watched while the token is compared and cleared, so two
// concurrent consumers of the same token cannot both succeed. An expired
// token returns ident.ErrTokenExpired and leaves the record untouched.
//
// ConsumeToken may return an error when input validation, dependency calls, or security checks fail.
// ConsumeToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Redis) ConsumeToken(ctx context.Context, class ident.TokenClass, token string, now time.Time) (*ident.Account, error) {
	indexKey := s.tokenKey(class, token)

	id, err := s.client.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ident.ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}

	acctKey := s.acctKey(id)

	for i := 0; i < maxTxRetries; i++ {
		var consumed *ident.Account

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, acctKey).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ident.ErrTokenNotFound
				}
				return err
			}
			account, err := decodeAccountRecord(data)
			if err != nil {
				return err
			}

			stored, expiry := account.Token(class)
			if stored != token {
				// Stale index: the token was already replaced or cleared.
				_, pipeErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, indexKey)
					return nil
				})
				if pipeErr != nil {
					return pipeErr
				}
				return ident.ErrTokenNotFound
			}
			if now.After(expiry) {
				return ident.ErrTokenExpired
			}

			account.ClearToken(class)
			account.Touch(now)
			encoded, err := encodeAccountRecord(account)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, indexKey)
				pipe.Set(ctx, acctKey, encoded, 0)
				return nil
			})
			if err != nil {
				return err
			}

			consumed = account
			return nil
		}, acctKey, indexKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ident.ErrTokenNotFound), errors.Is(err, ident.ErrTokenExpired):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errRedisUnavailable, err)
			}
		}
		return consumed, nil
	}

	return nil, fmt.Errorf("%w: transaction retries exhausted", errRedisUnavailable)
}

// ConsumeBackupCode describes the consumebackupcode operation and its observable behavior.
//
// ConsumeBackupCode may return an error when input validation, dependency calls, or security checks fail.
// ConsumeBackupCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Redis) ConsumeBackupCode(ctx context.Context, accountID string, hash [32]byte) (bool, error) {
	acctKey := s.acctKey(accountID)

	for i := 0; i < maxTxRetries; i++ {
		var found bool

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, acctKey).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ident.ErrNotFound
				}
				return err
			}
			account, err := decodeAccountRecord(data)
			if err != nil {
				return err
			}

			idx := -1
			for j, record := range account.BackupCodes {
				if record.Hash == hash {
					idx = j
					break
				}
			}
			if idx < 0 {
				found = false
				return nil
			}

			account.BackupCodes = append(account.BackupCodes[:idx], account.BackupCodes[idx+1:]...)
			account.Touch(time.Now().UTC())
			encoded, err := encodeAccountRecord(account)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, acctKey, encoded, 0)
				return nil
			})
			if err != nil {
				return err
			}

			found = true
			return nil
		}, acctKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ident.ErrNotFound) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", errRedisUnavailable, err)
		}
		return found, nil
	}

	return false, fmt.Errorf("%w: transaction retries exhausted", errRedisUnavailable)
}

type accountRecord struct {
	Version            int               `json:"v"`
	ID                 string            `json:"id"`
	Username           string            `json:"username"`
	Email              string            `json:"email"`
	PasswordHash       string            `json:"password_hash,omitempty"`
	Active             bool              `json:"active"`
	EmailVerified      bool              `json:"email_verified"`
	VerificationToken  string            `json:"verification_token,omitempty"`
	VerificationExpiry int64             `json:"verification_expiry,omitempty"`
	ResetToken         string            `json:"reset_token,omitempty"`
	ResetExpiry        int64             `json:"reset_expiry,omitempty"`
	TwoFactorEnabled   bool              `json:"totp_enabled"`
	TwoFactorSecret    string            `json:"totp_secret,omitempty"`
	BackupCodes        []string          `json:"backup_codes,omitempty"`
	Identities         map[string]string `json:"identities,omitempty"`
	PrimaryProvider    string            `json:"primary_provider,omitempty"`
	CreatedAt          int64             `json:"created_at"`
	UpdatedAt          int64             `json:"updated_at"`
}

func encodeAccountRecord(account *ident.Account) ([]byte, error) {
	rec := accountRecord{
		Version:          recordVersionV1,
		ID:               account.ID,
		Username:         account.Username,
		Email:            account.Email,
		PasswordHash:     account.PasswordHash,
		Active:           account.Active,
		EmailVerified:    account.EmailVerified,
		TwoFactorEnabled: account.TwoFactorEnabled,
		TwoFactorSecret:  account.TwoFactorSecret,
		PrimaryProvider:  string(account.PrimaryProvider),
		CreatedAt:        account.CreatedAt.UnixNano(),
		UpdatedAt:        account.UpdatedAt.UnixNano(),
	}

	rec.VerificationToken = account.VerificationToken
	if !account.VerificationExpiry.IsZero() {
		rec.VerificationExpiry = account.VerificationExpiry.UnixNano()
	}
	rec.ResetToken = account.ResetToken
	if !account.ResetExpiry.IsZero() {
		rec.ResetExpiry = account.ResetExpiry.UnixNano()
	}

	for _, code := range account.BackupCodes {
		rec.BackupCodes = append(rec.BackupCodes, base64.StdEncoding.EncodeToString(code.Hash[:]))
	}
	if len(account.Identities) > 0 {
		rec.Identities = make(map[string]string, len(account.Identities))
		for provider, externalID := range account.Identities {
			rec.Identities[string(provider)] = externalID
		}
	}

	return json.Marshal(rec)
}

func decodeAccountRecord(data []byte) (*ident.Account, error) {
	var rec accountRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if rec.Version != recordVersionV1 {
		return nil, fmt.Errorf("unsupported account record version %d", rec.Version)
	}

	account := &ident.Account{
		ID:                rec.ID,
		Username:          rec.Username,
		Email:             rec.Email,
		PasswordHash:      rec.PasswordHash,
		Active:            rec.Active,
		EmailVerified:     rec.EmailVerified,
		VerificationToken: rec.VerificationToken,
		ResetToken:        rec.ResetToken,
		TwoFactorEnabled:  rec.TwoFactorEnabled,
		TwoFactorSecret:   rec.TwoFactorSecret,
		PrimaryProvider:   ident.Provider(rec.PrimaryProvider),
		CreatedAt:         time.Unix(0, rec.CreatedAt).UTC(),
		UpdatedAt:         time.Unix(0, rec.UpdatedAt).UTC(),
	}
	if rec.VerificationExpiry != 0 {
		account.VerificationExpiry = time.Unix(0, rec.VerificationExpiry).UTC()
	}
	if rec.ResetExpiry != 0 {
		account.ResetExpiry = time.Unix(0, rec.ResetExpiry).UTC()
	}

	for _, encoded := range rec.BackupCodes {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(raw) != 32 {
			return nil, errors.New("corrupt backup code record")
		}
		var record ident.BackupCodeRecord
		copy(record.Hash[:], raw)
		account.BackupCodes = append(account.BackupCodes, record)
	}
	if len(rec.Identities) > 0 {
		account.Identities = make(map[ident.Provider]string, len(rec.Identities))
		for provider, externalID := range rec.Identities {
			account.Identities[ident.Provider(provider)] = externalID
		}
	}

	return account, nil
}
