package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"leadflow/internal/cache"
	"leadflow/internal/models"
	"leadflow/internal/vault"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAccountStore records persistence calls
type fakeAccountStore struct {
	saved   []models.Account
	deleted []string
	saveErr error
}

func (f *fakeAccountStore) SaveAccount(ctx context.Context, account models.Account) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, account)
	return nil
}

func (f *fakeAccountStore) DeleteAccount(ctx context.Context, accountID string) error {
	f.deleted = append(f.deleted, accountID)
	return nil
}

func newTestVault() *vault.Vault {
	return vault.New("test-secret", nil, zerolog.Nop())
}

func postJSON(e *echo.Echo, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestCreateAccountHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		checkResponse  func(t *testing.T, v *vault.Vault, store *fakeAccountStore, rec *httptest.ResponseRecorder)
	}{
		{
			name:           "registers account and persists it",
			body:           `{"brand_id":"brand-1","display_name":"Main Sender","provider":"smartlead","credential":"sk-abc"}`,
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, v *vault.Vault, store *fakeAccountStore, rec *httptest.ResponseRecorder) {
				var account models.Account
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &account))
				assert.NotEmpty(t, account.AccountID)
				assert.Equal(t, "Main Sender", account.DisplayName)
				assert.True(t, account.IsPrimary) // first account of the brand
				// Credential never comes back in plaintext
				assert.NotContains(t, rec.Body.String(), "sk-abc")

				require.Len(t, store.saved, 1)
				assert.Equal(t, account.AccountID, store.saved[0].AccountID)
			},
		},
		{
			name:           "defaults display name from provider",
			body:           `{"brand_id":"brand-1","provider":"email_bison","credential":"key"}`,
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, v *vault.Vault, store *fakeAccountStore, rec *httptest.ResponseRecorder) {
				var account models.Account
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &account))
				assert.Equal(t, "Email Bison Account", account.DisplayName)
			},
		},
		{
			name:           "rejects unknown provider",
			body:           `{"brand_id":"brand-1","provider":"mailchimp","credential":"key"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "rejects missing brand",
			body:           `{"provider":"smartlead","credential":"key"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "rejects missing credential",
			body:           `{"brand_id":"brand-1","provider":"smartlead"}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			v := newTestVault()
			store := &fakeAccountStore{}
			c, rec := postJSON(e, "/api/accounts", tt.body)

			handler := CreateAccountHandler(v, store, zerolog.Nop())
			require.NoError(t, handler(c))
			assert.Equal(t, tt.expectedStatus, rec.Code)

			if tt.checkResponse != nil {
				tt.checkResponse(t, v, store, rec)
			}
		})
	}
}

func TestListAccountsHandler(t *testing.T) {
	e := echo.New()
	v := newTestVault()
	_, err := v.AddAccount(models.Account{BrandID: "brand-1", Provider: models.ProviderSmartlead}, "key-1")
	require.NoError(t, err)
	_, err = v.AddAccount(models.Account{BrandID: "brand-1", Provider: models.ProviderInstantly}, "key-2")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts?brand_id=brand-1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, ListAccountsHandler(v)(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var accounts []models.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accounts))
	assert.Len(t, accounts, 2)
}

func TestListAccountsHandler_RequiresBrand(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, ListAccountsHandler(newTestVault())(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteAccountHandler(t *testing.T) {
	e := echo.New()
	v := newTestVault()
	account, err := v.AddAccount(models.Account{BrandID: "brand-1", Provider: models.ProviderSmartlead}, "key")
	require.NoError(t, err)

	store := &fakeAccountStore{}
	leadCache := cache.New(time.Minute)
	leadCache.Set("some-query", []models.Lead{{ID: 1}})

	req := httptest.NewRequest(http.MethodDelete, "/api/accounts/"+account.AccountID+"?brand_id=brand-1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(account.AccountID)

	handler := DeleteAccountHandler(v, store, leadCache, zerolog.Nop())
	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, v.Accounts("brand-1"))
	assert.Equal(t, []string{account.AccountID}, store.deleted)

	// Cached lead queries were invalidated by the cascade
	_, exists := leadCache.Get("some-query")
	assert.False(t, exists)
}

func TestDeleteAccountHandler_NotFound(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/accounts/nope?brand_id=brand-1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("nope")

	handler := DeleteAccountHandler(newTestVault(), &fakeAccountStore{}, cache.New(time.Minute), zerolog.Nop())
	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetPrimaryAccountHandler(t *testing.T) {
	e := echo.New()
	v := newTestVault()
	first, err := v.AddAccount(models.Account{BrandID: "brand-1", Provider: models.ProviderSmartlead}, "key-1")
	require.NoError(t, err)
	second, err := v.AddAccount(models.Account{BrandID: "brand-1", Provider: models.ProviderInstantly}, "key-2")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/api/accounts/"+second.AccountID+"/primary?brand_id=brand-1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(second.AccountID)

	require.NoError(t, SetPrimaryAccountHandler(v, zerolog.Nop())(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	accounts := v.Accounts("brand-1")
	for _, account := range accounts {
		if account.AccountID == second.AccountID {
			assert.True(t, account.IsPrimary)
		}
		if account.AccountID == first.AccountID {
			assert.False(t, account.IsPrimary)
		}
	}
}
