package handlers

import (
	"errors"
	"net/http"

	"leadflow/internal/backfill"
	"leadflow/internal/cache"
	"leadflow/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// StartBackfillHandler triggers a backfill run for an account
// @Summary Start a backfill run
// @Description Imports historical campaign and lead data from the account's ESP. An optional cutoff_days restricts the run to recently created campaigns. At most one run per account may be in flight.
// @Tags backfill
// @Accept json
// @Produce json
// @Param request body models.StartBackfillRequest true "Backfill request"
// @Success 202 {object} models.StartBackfillResponse
// @Failure 400 {object} models.StartBackfillResponse
// @Failure 409 {object} models.StartBackfillResponse
// @Router /api/backfill [post]
func StartBackfillHandler(manager *backfill.Manager, leadCache *cache.LeadCache, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.StartBackfillRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.StartBackfillResponse{
				Error: "Invalid request body",
			})
		}
		if req.AccountID == "" {
			return c.JSON(http.StatusBadRequest, models.StartBackfillResponse{
				Error: "account_id is required",
			})
		}

		run, err := manager.Start(req.AccountID, req.CutoffDays)
		if err != nil {
			if errors.Is(err, backfill.ErrRunInFlight) {
				return c.JSON(http.StatusConflict, models.StartBackfillResponse{
					Error: err.Error(),
				})
			}
			return c.JSON(http.StatusInternalServerError, models.StartBackfillResponse{
				Error: err.Error(),
			})
		}

		// The run will write leads; any cached query result may now go stale
		leadCache.Invalidate()

		logger.Info().
			Str("run_id", run.ID).
			Str("account_id", req.AccountID).
			Msg("Backfill run started")

		return c.JSON(http.StatusAccepted, models.StartBackfillResponse{
			Success: true,
			RunID:   run.ID,
		})
	}
}

// BackfillStatusHandler reports the state of a backfill run
// @Summary Get backfill run status
// @Description Returns the run's current phase, progress and terminal result
// @Tags backfill
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} models.BackfillStatusResponse
// @Failure 404 {object} map[string]string
// @Router /api/backfill/{id} [get]
func BackfillStatusHandler(manager *backfill.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		run, ok := manager.Get(c.Param("id"))
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": "run not found",
			})
		}

		state, progress, result := run.Snapshot()
		return c.JSON(http.StatusOK, models.BackfillStatusResponse{
			RunID:    run.ID,
			State:    state,
			Progress: progress,
			Result:   result,
		})
	}
}

// CancelBackfillHandler aborts a running backfill
// @Summary Cancel a backfill run
// @Description Aborts the run. Records already written stay written.
// @Tags backfill
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/backfill/{id} [delete]
func CancelBackfillHandler(manager *backfill.Manager, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		runID := c.Param("id")
		if !manager.Cancel(runID) {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": "run not found",
			})
		}

		logger.Info().Str("run_id", runID).Msg("Backfill run canceled")
		return c.JSON(http.StatusOK, map[string]string{
			"status": "canceling",
		})
	}
}
