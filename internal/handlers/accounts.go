package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"leadflow/internal/cache"
	"leadflow/internal/models"
	"leadflow/internal/vault"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// AccountStore is the persistence surface the account handlers need
type AccountStore interface {
	SaveAccount(ctx context.Context, account models.Account) error
	DeleteAccount(ctx context.Context, accountID string) error
}

// CreateAccountHandler registers an ESP account in the vault
// @Summary Register an ESP account
// @Description Stores the account with its credential encrypted at rest. The first account of a brand becomes primary.
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body models.CreateAccountRequest true "Account payload"
// @Success 201 {object} models.Account
// @Failure 400 {object} map[string]string
// @Router /api/accounts [post]
func CreateAccountHandler(v *vault.Vault, store AccountStore, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.CreateAccountRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		}

		if req.BrandID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "brand_id is required"})
		}
		if !models.ValidProvider(req.Provider) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown provider"})
		}
		if req.Credential == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "credential is required"})
		}

		displayName := req.DisplayName
		if displayName == "" {
			providerName := strings.ReplaceAll(string(req.Provider), "_", " ")
			displayName = titleCaser.String(providerName) + " Account"
		}

		account, err := v.AddAccount(models.Account{
			BrandID:     req.BrandID,
			DisplayName: displayName,
			Provider:    req.Provider,
			IsPrimary:   req.IsPrimary,
		}, req.Credential)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}

		if store != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()
			if err := store.SaveAccount(ctx, account); err != nil {
				logger.Warn().Err(err).Str("account_id", account.AccountID).Msg("Failed to persist account")
			}
		}

		return c.JSON(http.StatusCreated, account)
	}
}

// ListAccountsHandler lists a brand's registered accounts
// @Summary List ESP accounts
// @Description Returns the brand's accounts. Credentials stay encrypted.
// @Tags accounts
// @Produce json
// @Param brand_id query string true "Brand ID"
// @Success 200 {array} models.Account
// @Router /api/accounts [get]
func ListAccountsHandler(v *vault.Vault) echo.HandlerFunc {
	return func(c echo.Context) error {
		brandID := c.QueryParam("brand_id")
		if brandID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "brand_id is required"})
		}
		return c.JSON(http.StatusOK, v.Accounts(brandID))
	}
}

// DeleteAccountHandler removes an account and its imported leads
// @Summary Remove an ESP account
// @Description Deletes the account and cascades to every lead it imported
// @Tags accounts
// @Produce json
// @Param brand_id query string true "Brand ID"
// @Param id path string true "Account ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/accounts/{id} [delete]
func DeleteAccountHandler(v *vault.Vault, store AccountStore, leadCache *cache.LeadCache, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		brandID := c.QueryParam("brand_id")
		accountID := c.Param("id")
		if brandID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "brand_id is required"})
		}

		if err := v.RemoveAccount(c.Request().Context(), brandID, accountID); err != nil {
			if errors.Is(err, vault.ErrAccountNotFound) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "account not found"})
			}
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}

		if store != nil {
			if err := store.DeleteAccount(c.Request().Context(), accountID); err != nil {
				logger.Warn().Err(err).Str("account_id", accountID).Msg("Failed to delete persisted account")
			}
		}

		// The cascade removed leads; cached query results are stale
		leadCache.Invalidate()

		logger.Info().
			Str("brand_id", brandID).
			Str("account_id", accountID).
			Msg("Account removed")
		return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// SetPrimaryAccountHandler marks an account as the brand's primary
// @Summary Set the primary account
// @Description Makes the account primary for its brand, demoting the others
// @Tags accounts
// @Produce json
// @Param brand_id query string true "Brand ID"
// @Param id path string true "Account ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/accounts/{id}/primary [put]
func SetPrimaryAccountHandler(v *vault.Vault, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		brandID := c.QueryParam("brand_id")
		accountID := c.Param("id")
		if brandID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "brand_id is required"})
		}

		if err := v.SetPrimary(brandID, accountID); err != nil {
			if errors.Is(err, vault.ErrAccountNotFound) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "account not found"})
			}
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}

		logger.Info().
			Str("brand_id", brandID).
			Str("account_id", accountID).
			Msg("Primary account changed")
		return c.JSON(http.StatusOK, map[string]string{"status": "primary set"})
	}
}
