package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"leadflow/internal/cache"
	"leadflow/internal/database"
	"leadflow/internal/engage"
	"leadflow/internal/models"
	"leadflow/internal/normalize"

	"github.com/labstack/echo/v4"
)

// LeadQuerier is the read surface the lead handlers need
type LeadQuerier interface {
	QueryLeads(ctx context.Context, filter database.LeadFilter) ([]models.Lead, error)
	GetLead(ctx context.Context, id int64) (models.Lead, error)
}

// LeadsHandler queries imported leads, serving repeated queries from cache
// @Summary Query imported leads
// @Description Filters leads by brand, account, campaign or category
// @Tags leads
// @Produce json
// @Param brand_id query string false "Brand ID"
// @Param account_id query string false "Account ID"
// @Param campaign_id query string false "Campaign ID"
// @Param category query string false "Category name"
// @Param limit query int false "Maximum rows"
// @Success 200 {array} models.Lead
// @Router /api/leads [get]
func LeadsHandler(store LeadQuerier, leadCache *cache.LeadCache) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 0
		if raw := c.QueryParam("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			}
			limit = parsed
		}

		filter := database.LeadFilter{
			BrandID:    c.QueryParam("brand_id"),
			AccountID:  c.QueryParam("account_id"),
			CampaignID: c.QueryParam("campaign_id"),
			Category:   c.QueryParam("category"),
			Limit:      limit,
		}

		key := cache.Key(filter)
		if leads, ok := leadCache.Get(key); ok {
			return c.JSON(http.StatusOK, leads)
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
		defer cancel()

		leads, err := store.QueryLeads(ctx, filter)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}

		leadCache.Set(key, leads)
		return c.JSON(http.StatusOK, leads)
	}
}

// EngagementHandler computes engagement metrics for a raw conversation
// @Summary Compute engagement metrics
// @Description Normalizes the thread and derives an engagement score plus response urgency. Metrics are derived on demand, never stored.
// @Tags engagement
// @Accept json
// @Produce json
// @Param request body models.EngagementRequest true "Raw provider thread"
// @Success 200 {object} models.EngagementResponse
// @Failure 400 {object} models.EngagementResponse
// @Router /api/engagement [post]
func EngagementHandler(scorer *engage.Scorer) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.EngagementRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.EngagementResponse{
				Error: "Invalid request body",
			})
		}

		thread := normalize.Normalize(req.Thread)
		metrics := scorer.Score(thread, time.Now().UTC())

		return c.JSON(http.StatusOK, models.EngagementResponse{Metrics: metrics})
	}
}

// LeadEngagementHandler computes engagement metrics for a stored lead
// @Summary Compute engagement metrics for a lead
// @Description Scores the lead's stored conversation
// @Tags engagement
// @Produce json
// @Param id path int true "Lead ID"
// @Success 200 {object} models.EngagementResponse
// @Failure 404 {object} models.EngagementResponse
// @Router /api/leads/{id}/engagement [get]
func LeadEngagementHandler(store LeadQuerier, scorer *engage.Scorer) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.EngagementResponse{
				Error: "invalid lead id",
			})
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
		defer cancel()

		lead, err := store.GetLead(ctx, id)
		if err != nil {
			return c.JSON(http.StatusNotFound, models.EngagementResponse{
				Error: "lead not found",
			})
		}

		thread, err := lead.Thread()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.EngagementResponse{
				Error: "stored conversation is unreadable",
			})
		}

		metrics := scorer.Score(thread, time.Now().UTC())
		return c.JSON(http.StatusOK, models.EngagementResponse{Metrics: metrics})
	}
}
