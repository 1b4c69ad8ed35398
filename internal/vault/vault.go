// Package vault owns the ESP account collection: credential crypto at rest,
// account-to-lead resolution, and the per-brand primary invariant. It is the
// sole writer-of-record for accounts; the UI and the backfill orchestrator
// both mutate through it, never around it.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"leadflow/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrAccountNotFound is returned when an account id does not exist within a brand
var ErrAccountNotFound = errors.New("account not found")

// LeadDeleter is the persistence surface the vault needs for cascade deletes
type LeadDeleter interface {
	DeleteLeadsByAccount(ctx context.Context, accountID string) error
}

// Vault holds accounts in memory, keyed by brand. All mutations are
// serialized under one lock so a user editing accounts cannot race a
// backfill marking them backfilled.
type Vault struct {
	mu       sync.RWMutex
	accounts map[string][]models.Account // brandID -> accounts
	key      [32]byte
	leads    LeadDeleter
	logger   zerolog.Logger
}

// New creates a vault using the given encryption secret
func New(encryptionSecret string, leads LeadDeleter, logger zerolog.Logger) *Vault {
	return &Vault{
		accounts: make(map[string][]models.Account),
		key:      deriveKey(encryptionSecret),
		leads:    leads,
		logger:   logger,
	}
}

// AddAccount registers an account, encrypting its credential. The first
// account of a brand always becomes primary; a new primary demotes the
// previous one so at most one account per brand is primary.
func (v *Vault) AddAccount(account models.Account, plainCredential string) (models.Account, error) {
	encrypted, err := v.Encrypt(plainCredential)
	if err != nil {
		return models.Account{}, fmt.Errorf("failed to encrypt credential: %w", err)
	}

	if account.AccountID == "" {
		account.AccountID = uuid.NewString()
	}
	account.EncryptedCredential = encrypted
	account.CreatedAt = time.Now().UTC()
	account.UpdatedAt = account.CreatedAt

	v.mu.Lock()
	defer v.mu.Unlock()

	existing := v.accounts[account.BrandID]
	if len(existing) == 0 {
		account.IsPrimary = true
	} else if account.IsPrimary {
		for i := range existing {
			existing[i].IsPrimary = false
		}
	}

	v.accounts[account.BrandID] = append(existing, account)
	v.logger.Info().
		Str("brand_id", account.BrandID).
		Str("account_id", account.AccountID).
		Str("provider", string(account.Provider)).
		Bool("is_primary", account.IsPrimary).
		Msg("Account registered")

	return account, nil
}

// Restore loads persisted accounts into an empty vault, typically at startup.
// Credentials arrive already encrypted and are stored as-is; primary flags are
// trusted from the store.
func (v *Vault) Restore(accounts []models.Account) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, account := range accounts {
		v.accounts[account.BrandID] = append(v.accounts[account.BrandID], account)
	}

	if len(accounts) > 0 {
		v.logger.Info().Int("accounts", len(accounts)).Msg("Restored accounts from store")
	}
}

// Accounts returns a copy of the brand's accounts
func (v *Vault) Accounts(brandID string) []models.Account {
	v.mu.RLock()
	defer v.mu.RUnlock()

	accounts := make([]models.Account, len(v.accounts[brandID]))
	copy(accounts, v.accounts[brandID])
	return accounts
}

// GetAccount looks up one account by id within a brand
func (v *Vault) GetAccount(brandID, accountID string) (models.Account, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	for _, account := range v.accounts[brandID] {
		if account.AccountID == accountID {
			return account, nil
		}
	}
	return models.Account{}, ErrAccountNotFound
}

// FindAccount looks up one account by id across all brands
func (v *Vault) FindAccount(accountID string) (models.Account, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	for _, accounts := range v.accounts {
		for _, account := range accounts {
			if account.AccountID == accountID {
				return account, nil
			}
		}
	}
	return models.Account{}, ErrAccountNotFound
}

// RemoveAccount deletes an account and cascades to its leads. The cascade is
// part of the same logical operation: if the lead deletion fails the account
// stays, so no orphaned leads are silently left behind. Removing the primary
// promotes another account in the same critical section; there is no window
// where accounts exist but none is primary.
func (v *Vault) RemoveAccount(ctx context.Context, brandID, accountID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	accounts := v.accounts[brandID]
	idx := -1
	for i, account := range accounts {
		if account.AccountID == accountID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrAccountNotFound
	}

	if v.leads != nil {
		if err := v.leads.DeleteLeadsByAccount(ctx, accountID); err != nil {
			return fmt.Errorf("failed to cascade lead deletion for account %s: %w", accountID, err)
		}
	}

	wasPrimary := accounts[idx].IsPrimary
	accounts = append(accounts[:idx], accounts[idx+1:]...)

	if wasPrimary && len(accounts) > 0 {
		accounts[0].IsPrimary = true
		v.logger.Info().
			Str("brand_id", brandID).
			Str("account_id", accounts[0].AccountID).
			Msg("Promoted account to primary after removal")
	}

	if len(accounts) == 0 {
		delete(v.accounts, brandID)
	} else {
		v.accounts[brandID] = accounts
	}

	return nil
}

// SetPrimary makes the given account the brand's primary, demoting the rest
func (v *Vault) SetPrimary(brandID, accountID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	accounts := v.accounts[brandID]
	found := false
	for i := range accounts {
		if accounts[i].AccountID == accountID {
			found = true
			break
		}
	}
	if !found {
		return ErrAccountNotFound
	}

	for i := range accounts {
		accounts[i].IsPrimary = accounts[i].AccountID == accountID
		accounts[i].UpdatedAt = time.Now().UTC()
	}
	return nil
}

// MarkBackfilled flags an account as backfilled. Called by the orchestrator
// after a successful insert phase.
func (v *Vault) MarkBackfilled(accountID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for brandID, accounts := range v.accounts {
		for i := range accounts {
			if accounts[i].AccountID == accountID {
				accounts[i].Backfilled = true
				accounts[i].UpdatedAt = time.Now().UTC()
				v.accounts[brandID] = accounts
				return nil
			}
		}
	}
	return ErrAccountNotFound
}

// Credential decrypts an account's stored credential
func (v *Vault) Credential(account models.Account) (string, error) {
	return v.Decrypt(account.EncryptedCredential)
}

// ResolveAccountForLead picks the account responsible for a lead. Priority:
// exact id match, then the primary account, then the first account, then nil
// when no accounts exist. The order is a hard contract.
func ResolveAccountForLead(lead models.Lead, accounts []models.Account) *models.Account {
	if lead.AccountID != nil {
		for i := range accounts {
			if accounts[i].AccountID == *lead.AccountID {
				return &accounts[i]
			}
		}
	}

	for i := range accounts {
		if accounts[i].IsPrimary {
			return &accounts[i]
		}
	}

	if len(accounts) > 0 {
		return &accounts[0]
	}

	return nil
}
