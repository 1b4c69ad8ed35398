package vault

import (
	"context"
	"errors"
	"testing"

	"leadflow/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLeadDeleter records cascade requests
type fakeLeadDeleter struct {
	deleted []string
	err     error
}

func (f *fakeLeadDeleter) DeleteLeadsByAccount(_ context.Context, accountID string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, accountID)
	return nil
}

func newTestVault(leads LeadDeleter) *Vault {
	return New("test-secret", leads, zerolog.Nop())
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	v := newTestVault(nil)

	tests := []struct {
		name  string
		input string
	}{
		{name: "api key", input: "sk-live-abc123"},
		{name: "empty string", input: ""},
		{name: "unicode", input: "clé-secrète-日本語"},
		{name: "long value", input: string(make([]byte, 4096))},
		{name: "value that looks like our prefix content", input: "lf1-but-not-quite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := v.Encrypt(tt.input)
			require.NoError(t, err)

			decrypted, err := v.Decrypt(encrypted)
			require.NoError(t, err)
			assert.Equal(t, tt.input, decrypted)

			if tt.input != "" {
				assert.NotEqual(t, tt.input, encrypted)
			}
		})
	}
}

func TestDecrypt_LegacyPlaintextPassthrough(t *testing.T) {
	v := newTestVault(nil)

	// Credentials stored before encryption-at-rest have no prefix and must
	// come back unchanged.
	legacy := "plain-old-api-key"
	decrypted, err := v.Decrypt(legacy)
	require.NoError(t, err)
	assert.Equal(t, legacy, decrypted)
}

func TestEncrypt_ProducesDifferentCiphertexts(t *testing.T) {
	v := newTestVault(nil)

	a, err := v.Encrypt("same-input")
	require.NoError(t, err)
	b, err := v.Encrypt("same-input")
	require.NoError(t, err)

	// Random IV per call
	assert.NotEqual(t, a, b)
}

func TestResolveAccountForLead(t *testing.T) {
	idMatch := "acc-2"

	tests := []struct {
		name     string
		lead     models.Lead
		accounts []models.Account
		wantID   string
		wantNil  bool
	}{
		{
			name:    "zero accounts yields nil",
			lead:    models.Lead{},
			wantNil: true,
		},
		{
			name:     "single non-primary account with no id match",
			lead:     models.Lead{},
			accounts: []models.Account{{AccountID: "acc-1"}},
			wantID:   "acc-1",
		},
		{
			name: "id match wins over primary flag",
			lead: models.Lead{AccountID: &idMatch},
			accounts: []models.Account{
				{AccountID: "acc-1", IsPrimary: true},
				{AccountID: "acc-2"},
			},
			wantID: "acc-2",
		},
		{
			name: "primary wins when id does not match",
			lead: models.Lead{},
			accounts: []models.Account{
				{AccountID: "acc-1"},
				{AccountID: "acc-2", IsPrimary: true},
			},
			wantID: "acc-2",
		},
		{
			name: "stale id falls through to primary",
			lead: models.Lead{AccountID: strPtr("acc-gone")},
			accounts: []models.Account{
				{AccountID: "acc-1"},
				{AccountID: "acc-2", IsPrimary: true},
			},
			wantID: "acc-2",
		},
		{
			name: "no primary falls through to first",
			lead: models.Lead{},
			accounts: []models.Account{
				{AccountID: "acc-1"},
				{AccountID: "acc-2"},
			},
			wantID: "acc-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveAccountForLead(tt.lead, tt.accounts)
			if tt.wantNil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, tt.wantID, got.AccountID)
			}
		})
	}
}

func TestAddAccount_FirstAccountBecomesPrimary(t *testing.T) {
	v := newTestVault(nil)

	account, err := v.AddAccount(models.Account{
		BrandID:     "brand-1",
		DisplayName: "Main",
		Provider:    models.ProviderSmartlead,
		IsPrimary:   false,
	}, "key-1")
	require.NoError(t, err)

	assert.True(t, account.IsPrimary)
	assert.NotEmpty(t, account.AccountID)
}

func TestAddAccount_NewPrimaryDemotesOld(t *testing.T) {
	v := newTestVault(nil)

	first, err := v.AddAccount(models.Account{BrandID: "brand-1", Provider: models.ProviderSmartlead}, "key-1")
	require.NoError(t, err)

	second, err := v.AddAccount(models.Account{
		BrandID:   "brand-1",
		Provider:  models.ProviderInstantly,
		IsPrimary: true,
	}, "key-2")
	require.NoError(t, err)

	assert.True(t, second.IsPrimary)
	assertPrimaryCount(t, v, "brand-1", 1)

	updated, err := v.GetAccount("brand-1", first.AccountID)
	require.NoError(t, err)
	assert.False(t, updated.IsPrimary)
}

func TestRemoveAccount_PromotesNewPrimary(t *testing.T) {
	leads := &fakeLeadDeleter{}
	v := newTestVault(leads)

	first, err := v.AddAccount(models.Account{BrandID: "brand-1", Provider: models.ProviderSmartlead}, "key-1")
	require.NoError(t, err)
	_, err = v.AddAccount(models.Account{BrandID: "brand-1", Provider: models.ProviderInstantly}, "key-2")
	require.NoError(t, err)

	require.True(t, first.IsPrimary)

	err = v.RemoveAccount(context.Background(), "brand-1", first.AccountID)
	require.NoError(t, err)

	// Cascade was requested for the removed account
	assert.Equal(t, []string{first.AccountID}, leads.deleted)

	// The survivor is primary; never a window with accounts but no primary
	remaining := v.Accounts("brand-1")
	require.Len(t, remaining, 1)
	assert.True(t, remaining[0].IsPrimary)
}

func TestRemoveAccount_CascadeFailureKeepsAccount(t *testing.T) {
	leads := &fakeLeadDeleter{err: errors.New("db down")}
	v := newTestVault(leads)

	account, err := v.AddAccount(models.Account{BrandID: "brand-1", Provider: models.ProviderSmartlead}, "key-1")
	require.NoError(t, err)

	err = v.RemoveAccount(context.Background(), "brand-1", account.AccountID)
	assert.Error(t, err)

	// The account must not be removed if its leads could not be cascaded
	assert.Len(t, v.Accounts("brand-1"), 1)
}

func TestRemoveAccount_NotFound(t *testing.T) {
	v := newTestVault(nil)
	err := v.RemoveAccount(context.Background(), "brand-1", "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestSetPrimary(t *testing.T) {
	v := newTestVault(nil)

	_, err := v.AddAccount(models.Account{BrandID: "brand-1", Provider: models.ProviderSmartlead}, "key-1")
	require.NoError(t, err)
	second, err := v.AddAccount(models.Account{BrandID: "brand-1", Provider: models.ProviderEmailBison}, "key-2")
	require.NoError(t, err)

	require.NoError(t, v.SetPrimary("brand-1", second.AccountID))
	assertPrimaryCount(t, v, "brand-1", 1)

	updated, err := v.GetAccount("brand-1", second.AccountID)
	require.NoError(t, err)
	assert.True(t, updated.IsPrimary)

	assert.ErrorIs(t, v.SetPrimary("brand-1", "missing"), ErrAccountNotFound)
}

func TestMarkBackfilled(t *testing.T) {
	v := newTestVault(nil)

	account, err := v.AddAccount(models.Account{BrandID: "brand-1", Provider: models.ProviderSmartlead}, "key-1")
	require.NoError(t, err)
	require.False(t, account.Backfilled)

	require.NoError(t, v.MarkBackfilled(account.AccountID))

	updated, err := v.FindAccount(account.AccountID)
	require.NoError(t, err)
	assert.True(t, updated.Backfilled)

	assert.ErrorIs(t, v.MarkBackfilled("missing"), ErrAccountNotFound)
}

func TestRestore_ReloadsPersistedAccounts(t *testing.T) {
	original := newTestVault(nil)

	_, err := original.AddAccount(models.Account{BrandID: "brand-1", Provider: models.ProviderSmartlead}, "sk-old")
	require.NoError(t, err)
	second, err := original.AddAccount(models.Account{
		BrandID:   "brand-1",
		Provider:  models.ProviderInstantly,
		IsPrimary: true,
	}, "sk-new")
	require.NoError(t, err)

	// A restart: a fresh vault with the same key, fed the persisted rows
	restored := newTestVault(nil)
	restored.Restore(original.Accounts("brand-1"))

	accounts := restored.Accounts("brand-1")
	require.Len(t, accounts, 2)
	assertPrimaryCount(t, restored, "brand-1", 1)

	found, err := restored.FindAccount(second.AccountID)
	require.NoError(t, err)
	assert.True(t, found.IsPrimary)

	// Stored credentials stay encrypted and still decrypt after the reload
	credential, err := restored.Credential(found)
	require.NoError(t, err)
	assert.Equal(t, "sk-new", credential)
}

func TestCredential_DecryptsStoredValue(t *testing.T) {
	v := newTestVault(nil)

	account, err := v.AddAccount(models.Account{BrandID: "brand-1", Provider: models.ProviderSmartlead}, "sk-abc")
	require.NoError(t, err)
	require.NotEqual(t, "sk-abc", account.EncryptedCredential)

	credential, err := v.Credential(account)
	require.NoError(t, err)
	assert.Equal(t, "sk-abc", credential)
}

func assertPrimaryCount(t *testing.T, v *Vault, brandID string, want int) {
	t.Helper()
	count := 0
	for _, account := range v.Accounts(brandID) {
		if account.IsPrimary {
			count++
		}
	}
	assert.Equal(t, want, count)
}

func strPtr(s string) *string { return &s }
