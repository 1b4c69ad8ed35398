package handlers

import (
	"context"
	"net/http"
	"time"

	"leadflow/internal/esp"
	"leadflow/internal/models"
	"leadflow/internal/vault"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ClientFactory builds an ESP client for a provider
type ClientFactory func(provider models.Provider) (esp.Client, error)

// SendReplyHandler relays a reply to a lead through its originating ESP
// @Summary Send a reply to a lead
// @Description Resolves the sending account (lead's account, else the brand's primary), decrypts its credential and passes the reply through to the ESP. An optional scheduled_at defers the send.
// @Tags reply
// @Accept json
// @Produce json
// @Param request body models.SendReplyRequest true "Reply payload"
// @Success 200 {object} models.SendResult
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 502 {object} models.SendResult
// @Router /api/reply [post]
func SendReplyHandler(store LeadQuerier, v *vault.Vault, clients ClientFactory, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.SendReplyRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		}
		if req.Body == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "body is required"})
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
		defer cancel()

		lead, err := store.GetLead(ctx, req.LeadID)
		if err != nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "lead not found"})
		}

		account := vault.ResolveAccountForLead(lead, v.Accounts(lead.BrandID))
		if account == nil {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "no account available to send from",
			})
		}

		credential, err := v.Credential(*account)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "failed to decrypt account credential",
			})
		}

		client, err := clients(account.Provider)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}

		result, err := client.SendReply(ctx, credential, lead.CampaignID, lead.ProviderLeadID, req.Body, req.ScheduledAt)
		if err != nil {
			logger.Error().Err(err).
				Int64("lead_id", lead.ID).
				Str("provider", string(account.Provider)).
				Msg("Reply send failed")
			return c.JSON(http.StatusBadGateway, models.SendResult{
				Success:  false,
				Message:  err.Error(),
				Provider: account.Provider,
			})
		}

		result.Provider = account.Provider
		logger.Info().
			Int64("lead_id", lead.ID).
			Str("provider", string(account.Provider)).
			Bool("success", result.Success).
			Msg("Reply relayed to ESP")
		return c.JSON(http.StatusOK, result)
	}
}
