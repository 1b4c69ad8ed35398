// Package backfill orchestrates the import of historical campaign data from
// an ESP account: campaign discovery, per-category lead fetches, conversation
// normalization, a probe-then-commit write policy, bulk insert, and intent
// classification. Fetch failures degrade to smaller imports; only write-policy
// violations and cancellation abort a run.
package backfill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"leadflow/internal/database"
	"leadflow/internal/esp"
	"leadflow/internal/models"
	"leadflow/internal/normalize"

	"github.com/rs/zerolog"
)

// LeadStore is the persistence surface a run needs
type LeadStore interface {
	InsertLead(ctx context.Context, lead *models.Lead) error
	QueryLeads(ctx context.Context, filter database.LeadFilter) ([]models.Lead, error)
	DeleteRecord(ctx context.Context, id int64) error
	UpdateIntentScore(ctx context.Context, id int64, score int) error
	UpdateAccount(ctx context.Context, accountID string, fields map[string]interface{}) error
}

// AccountSource resolves accounts and their credentials
type AccountSource interface {
	FindAccount(accountID string) (models.Account, error)
	Credential(account models.Account) (string, error)
	MarkBackfilled(accountID string) error
}

// ThreadClassifier scores conversations for purchase intent
type ThreadClassifier interface {
	ShouldClassify(category string) bool
	Classify(ctx context.Context, thread models.ConversationThread) (int, error)
}

// ClientFactory builds an ESP client for the account's provider
type ClientFactory func(provider models.Provider) (esp.Client, error)

// Notifier alerts an operator about failures that need human attention
type Notifier interface {
	NotifyRunFailed(ctx context.Context, accountID, reason string) error
}

// Config holds the run-shaping knobs
type Config struct {
	// CutoffDays limits the import to campaigns created within the last N
	// days. Zero means no cutoff.
	CutoffDays int

	// FetchInterval paces message-history fetches against the ESP
	FetchInterval time.Duration

	// ClassifyInterval paces classification calls against the LLM endpoint
	ClassifyInterval time.Duration
}

// Orchestrator executes backfill runs
type Orchestrator struct {
	accounts   AccountSource
	store      LeadStore
	classifier ThreadClassifier
	clients    ClientFactory
	notifier   Notifier
	config     Config
	logger     zerolog.Logger

	// injectable clocks for tests
	now   func() time.Time
	sleep func(time.Duration)
}

// NewOrchestrator wires an orchestrator. The notifier may be nil.
func NewOrchestrator(accounts AccountSource, store LeadStore, classifier ThreadClassifier, clients ClientFactory, notifier Notifier, config Config, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		accounts:   accounts,
		store:      store,
		classifier: classifier,
		clients:    clients,
		notifier:   notifier,
		config:     config,
		logger:     logger,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// Execute runs the full backfill state machine for one account and returns
// the terminal result. It never panics the caller's goroutine; every failure
// path produces a FAILED result instead.
func (o *Orchestrator) Execute(ctx context.Context, run *Run) *models.BackfillResult {
	result := &models.BackfillResult{
		RunID:     run.ID,
		AccountID: run.AccountID,
		StartedAt: o.now().UTC(),
	}

	account, err := o.accounts.FindAccount(run.AccountID)
	if err != nil {
		return o.fail(ctx, run, result, fmt.Errorf("account lookup failed: %w", err))
	}
	credential, err := o.accounts.Credential(account)
	if err != nil {
		return o.fail(ctx, run, result, fmt.Errorf("credential decryption failed: %w", err))
	}
	client, err := o.clients(account.Provider)
	if err != nil {
		return o.fail(ctx, run, result, fmt.Errorf("no client for provider %s: %w", account.Provider, err))
	}

	logger := o.logger.With().
		Str("run_id", run.ID).
		Str("account_id", account.AccountID).
		Str("provider", string(account.Provider)).
		Logger()

	campaigns := o.fetchCampaigns(ctx, run, client, credential, logger)
	if err := ctx.Err(); err != nil {
		return o.fail(ctx, run, result, err)
	}

	staged, err := o.stageLeads(ctx, run, client, credential, account, campaigns, logger)
	if err != nil {
		return o.fail(ctx, run, result, err)
	}

	run.setState(models.RunStaging, fmt.Sprintf("Staged %d leads from %d campaigns", len(staged), len(campaigns)))
	logger.Info().Int("leads", len(staged)).Int("campaigns", len(campaigns)).Msg("Staging complete")

	if len(staged) == 0 {
		return o.succeed(run, result)
	}

	if err := o.validateWritePolicy(ctx, run, staged[0]); err != nil {
		return o.fail(ctx, run, result, err)
	}

	if err := o.bulkInsert(ctx, run, staged, result, logger); err != nil {
		return o.fail(ctx, run, result, err)
	}

	o.markBackfilled(ctx, account.AccountID, logger)
	o.classify(ctx, run, account, staged, result, logger)
	if err := ctx.Err(); err != nil {
		return o.fail(ctx, run, result, err)
	}

	return o.succeed(run, result)
}

// fetchCampaigns lists the account's campaigns and applies the date cutoff.
// A listing failure degrades to zero campaigns rather than aborting the run.
func (o *Orchestrator) fetchCampaigns(ctx context.Context, run *Run, client esp.Client, credential string, logger zerolog.Logger) []models.Campaign {
	run.setState(models.RunFetchingCampaigns, "Fetching campaigns")

	campaigns, err := client.ListCampaigns(ctx, credential)
	if err != nil {
		logger.Warn().Err(err).Msg("Campaign listing failed, continuing with no campaigns")
		return nil
	}

	run.setState(models.RunFilteringByDate, "Filtering campaigns by date")
	cutoffDays := run.CutoffDays
	if cutoffDays <= 0 {
		cutoffDays = o.config.CutoffDays
	}
	if cutoffDays <= 0 {
		return campaigns
	}

	cutoff := o.now().UTC().AddDate(0, 0, -cutoffDays)
	var kept []models.Campaign
	for _, campaign := range campaigns {
		// Campaigns without a creation date cannot be judged against the
		// cutoff and are kept.
		if campaign.CreatedAt.IsZero() || campaign.CreatedAt.After(cutoff) {
			kept = append(kept, campaign)
		}
	}

	logger.Info().
		Int("total", len(campaigns)).
		Int("kept", len(kept)).
		Int("cutoff_days", cutoffDays).
		Msg("Filtered campaigns by date")
	return kept
}

// stageLeads walks every campaign and category partition, fetches each lead's
// message history and builds the in-memory staging set. Per-category and
// per-lead fetch failures degrade; only cancellation returns an error.
func (o *Orchestrator) stageLeads(ctx context.Context, run *Run, client esp.Client, credential string, account models.Account, campaigns []models.Campaign, logger zerolog.Logger) ([]models.Lead, error) {
	run.addTotal(len(campaigns))
	pacer := NewPacerWithClock(o.config.FetchInterval, o.now, o.sleep)

	var staged []models.Lead
	for _, campaign := range campaigns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		run.setState(models.RunFetchingLeads, fmt.Sprintf("Fetching leads for campaign %s", campaign.Name))

		for category := esp.MinCategory; category <= esp.MaxCategory; category++ {
			leads, err := client.ListLeads(ctx, credential, campaign.ID, category)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				logger.Warn().Err(err).
					Str("campaign_id", campaign.ID).
					Int("category", category).
					Msg("Lead listing failed for category, skipping")
				continue
			}

			for _, raw := range leads {
				if err := pacer.Wait(ctx); err != nil {
					return nil, err
				}
				run.setState(models.RunFetchingHistory, fmt.Sprintf("Fetching history for lead %s", raw.ID))

				history, err := client.GetMessageHistory(ctx, credential, campaign.ID, raw.ID)
				if err != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					logger.Warn().Err(err).
						Str("lead_id", raw.ID).
						Msg("History fetch failed, importing lead with empty conversation")
					history = nil
				}

				staged = append(staged, o.buildLead(account, campaign.ID, raw, category, history, logger))
			}
		}
		run.advance()
	}

	return staged, nil
}

// buildLead normalizes one lead's conversation and assembles the row to insert
func (o *Orchestrator) buildLead(account models.Account, campaignID string, raw models.RawLead, category int, history models.RawThread, logger zerolog.Logger) models.Lead {
	thread := normalize.Normalize(history)

	conversation, err := json.Marshal(thread)
	if err != nil {
		logger.Warn().Err(err).Str("lead_id", raw.ID).Msg("Failed to encode conversation")
		conversation = []byte(`{"messages":[]}`)
	}
	rawConversation, err := json.Marshal(history)
	if err != nil {
		rawConversation = []byte(`[]`)
	}

	accountID := account.AccountID
	return models.Lead{
		BrandID:         account.BrandID,
		AccountID:       &accountID,
		CampaignID:      campaignID,
		ProviderLeadID:  raw.ID,
		Category:        esp.CategoryName(category),
		Email:           raw.Email,
		FirstName:       raw.FirstName,
		LastName:        raw.LastName,
		Company:         raw.Company,
		Conversation:    string(conversation),
		RawConversation: string(rawConversation),
		Status:          models.LeadStatusNew,
	}
}

// validateWritePolicy proves the destination accepts writes before committing
// the whole staged set: insert one probe record, read it back, delete it.
// Any step failing fails the run, because the same failure would hit every
// record of the bulk insert.
func (o *Orchestrator) validateWritePolicy(ctx context.Context, run *Run, sample models.Lead) error {
	run.setState(models.RunValidatingWrite, "Validating write policy")

	probe := sample
	if err := o.store.InsertLead(ctx, &probe); err != nil {
		// A duplicate means an earlier run already landed this record, which
		// itself proves the table accepts our writes.
		if errors.Is(err, database.ErrDuplicateKey) {
			return nil
		}
		if errors.Is(err, database.ErrPermission) {
			return fmt.Errorf("write probe rejected, the destination denies inserts: %w", err)
		}
		return fmt.Errorf("write probe failed: %w", err)
	}

	rows, err := o.store.QueryLeads(ctx, database.LeadFilter{
		CampaignID:     probe.CampaignID,
		ProviderLeadID: probe.ProviderLeadID,
	})
	if err != nil {
		return fmt.Errorf("write probe read-back failed: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("write probe read-back found no record, writes are not landing")
	}

	if err := o.store.DeleteRecord(ctx, rows[0].ID); err != nil {
		return fmt.Errorf("failed to clean up write probe record: %w", err)
	}

	return nil
}

// bulkInsert commits the staged set record by record. Duplicates are expected
// (the probe record, re-runs over the same campaigns) and counted as skipped;
// any other write error aborts the run, keeping what was already inserted.
func (o *Orchestrator) bulkInsert(ctx context.Context, run *Run, staged []models.Lead, result *models.BackfillResult, logger zerolog.Logger) error {
	run.setState(models.RunBulkInserting, fmt.Sprintf("Inserting %d leads", len(staged)))
	run.addTotal(len(staged))

	for i := range staged {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := o.store.InsertLead(ctx, &staged[i])
		switch {
		case err == nil:
			result.Imported++
		case errors.Is(err, database.ErrDuplicateKey):
			result.Skipped++
			logger.Debug().
				Str("campaign_id", staged[i].CampaignID).
				Str("lead_id", staged[i].ProviderLeadID).
				Msg("Skipping duplicate lead")
		default:
			return fmt.Errorf("bulk insert aborted at record %d of %d: %w", i+1, len(staged), err)
		}
		run.advance()
	}

	return nil
}

// markBackfilled flags the account in the vault and in the database. Either
// failing is logged, not fatal: the leads are already imported.
func (o *Orchestrator) markBackfilled(ctx context.Context, accountID string, logger zerolog.Logger) {
	if err := o.accounts.MarkBackfilled(accountID); err != nil {
		logger.Warn().Err(err).Msg("Failed to mark account backfilled in vault")
	}
	if err := o.store.UpdateAccount(ctx, accountID, map[string]interface{}{"backfilled": true}); err != nil {
		logger.Warn().Err(err).Msg("Failed to mark account backfilled in database")
	}
}

// classify scores eligible imported leads. Classification is best-effort: a
// failed attempt leaves the lead with a NULL score and the run continues.
func (o *Orchestrator) classify(ctx context.Context, run *Run, account models.Account, staged []models.Lead, result *models.BackfillResult, logger zerolog.Logger) {
	run.setState(models.RunClassifying, "Classifying lead intent")

	persisted, err := o.store.QueryLeads(ctx, database.LeadFilter{AccountID: account.AccountID})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read back imported leads, skipping classification")
		return
	}

	byKey := make(map[string]models.Lead, len(persisted))
	for _, lead := range persisted {
		byKey[lead.CampaignID+"\x00"+lead.ProviderLeadID] = lead
	}

	var eligible []models.Lead
	for _, lead := range staged {
		if !o.classifier.ShouldClassify(lead.Category) {
			continue
		}
		row, ok := byKey[lead.CampaignID+"\x00"+lead.ProviderLeadID]
		if !ok || row.IntentScore != nil {
			// Not persisted, or already scored by an earlier run
			continue
		}
		lead.ID = row.ID
		eligible = append(eligible, lead)
	}
	run.addTotal(len(eligible))

	pacer := NewPacerWithClock(o.config.ClassifyInterval, o.now, o.sleep)
	for _, lead := range eligible {
		if err := pacer.Wait(ctx); err != nil {
			return
		}

		thread, err := lead.Thread()
		if err != nil {
			result.Failed++
			logger.Warn().Err(err).Int64("lead_id", lead.ID).Msg("Failed to decode conversation for classification")
			run.advance()
			continue
		}

		score, err := o.classifier.Classify(ctx, thread)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			result.Failed++
			logger.Warn().Err(err).Int64("lead_id", lead.ID).Msg("Classification failed, leaving lead unscored")
			run.advance()
			continue
		}

		if err := o.store.UpdateIntentScore(ctx, lead.ID, score); err != nil {
			result.Failed++
			logger.Warn().Err(err).Int64("lead_id", lead.ID).Msg("Failed to persist intent score")
			run.advance()
			continue
		}

		result.Analyzed++
		run.advance()
	}
}

// succeed finalizes a DONE result
func (o *Orchestrator) succeed(run *Run, result *models.BackfillResult) *models.BackfillResult {
	result.State = models.RunDone
	result.Status = fmt.Sprintf("Imported %d leads, analyzed %d, skipped %d duplicates, %d failures",
		result.Imported, result.Analyzed, result.Skipped, result.Failed)
	result.FinishedAt = o.now().UTC()
	return result
}

// fail finalizes a FAILED result and notifies the operator when the failure
// is a write-permission problem that needs human attention
func (o *Orchestrator) fail(ctx context.Context, run *Run, result *models.BackfillResult, cause error) *models.BackfillResult {
	result.State = models.RunFailed
	result.Error = cause.Error()
	result.Status = fmt.Sprintf("Failed after importing %d leads, analyzed %d, skipped %d duplicates, %d failures: %v",
		result.Imported, result.Analyzed, result.Skipped, result.Failed, cause)
	result.FinishedAt = o.now().UTC()

	o.logger.Error().Err(cause).
		Str("run_id", run.ID).
		Str("account_id", run.AccountID).
		Int("imported", result.Imported).
		Msg("Backfill run failed")

	if o.notifier != nil && errors.Is(cause, database.ErrPermission) {
		// Use a fresh context: the run context may already be canceled
		notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.notifier.NotifyRunFailed(notifyCtx, run.AccountID, cause.Error()); err != nil {
			o.logger.Warn().Err(err).Msg("Failed to notify operator about run failure")
		}
	}

	return result
}
