package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadflow/internal/models"

	"github.com/jmoiron/sqlx"
)

// LeadService handles lead and account persistence for the ingestion engine
type LeadService struct {
	db *sqlx.DB
}

// NewLeadService creates a new lead service and ensures its tables exist
func NewLeadService(db *sqlx.DB) (*LeadService, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required for lead service")
	}

	service := &LeadService{db: db}

	if err := service.CreateTables(); err != nil {
		return nil, fmt.Errorf("failed to create lead tables: %w", err)
	}

	return service, nil
}

// CreateTables creates the lead and account tables in the database
func (s *LeadService) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS leads (
			id SERIAL PRIMARY KEY,
			brand_id VARCHAR(64) NOT NULL,
			account_id VARCHAR(36),
			campaign_id VARCHAR(64) NOT NULL,
			provider_lead_id VARCHAR(64) NOT NULL,
			category VARCHAR(64) NOT NULL DEFAULT '',
			email VARCHAR(255) NOT NULL DEFAULT '',
			first_name VARCHAR(255) NOT NULL DEFAULT '',
			last_name VARCHAR(255) NOT NULL DEFAULT '',
			company VARCHAR(255) NOT NULL DEFAULT '',
			conversation TEXT,
			raw_conversation TEXT,
			intent_score INT,
			status VARCHAR(32) NOT NULL DEFAULT 'new',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (campaign_id, provider_lead_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_account_id ON leads(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_brand_id ON leads(brand_id)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_category ON leads(category)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			account_id VARCHAR(36) PRIMARY KEY,
			brand_id VARCHAR(64) NOT NULL,
			display_name VARCHAR(255) NOT NULL DEFAULT '',
			provider VARCHAR(32) NOT NULL,
			encrypted_credential TEXT,
			is_primary BOOLEAN DEFAULT FALSE,
			backfilled BOOLEAN DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_brand_id ON accounts(brand_id)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			// Ignore "already exists" errors
			continue
		}
	}

	return nil
}

// InsertLead inserts one lead row. Driver errors are classified into the
// write taxonomy: ErrDuplicateKey for unique violations, ErrPermission for
// privilege failures, anything else passes through wrapped.
func (s *LeadService) InsertLead(ctx context.Context, lead *models.Lead) error {
	now := time.Now().UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	if lead.Status == "" {
		lead.Status = models.LeadStatusNew
	}

	query := s.db.Rebind(`
		INSERT INTO leads (
			brand_id, account_id, campaign_id, provider_lead_id, category,
			email, first_name, last_name, company,
			conversation, raw_conversation, intent_score, status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := s.db.ExecContext(ctx, query,
		lead.BrandID, lead.AccountID, lead.CampaignID, lead.ProviderLeadID, lead.Category,
		lead.Email, lead.FirstName, lead.LastName, lead.Company,
		lead.Conversation, lead.RawConversation, lead.IntentScore, lead.Status,
		lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lead: %w", classifyWriteError(err))
	}

	return nil
}

// LeadFilter narrows a lead query; zero-valued fields are ignored
type LeadFilter struct {
	BrandID        string
	AccountID      string
	CampaignID     string
	ProviderLeadID string
	Category       string
	Limit          int
}

// QueryLeads retrieves leads matching the filter, newest first
func (s *LeadService) QueryLeads(ctx context.Context, filter LeadFilter) ([]models.Lead, error) {
	query := `SELECT * FROM leads`
	var clauses []string
	var args []interface{}

	if filter.BrandID != "" {
		clauses = append(clauses, "brand_id = ?")
		args = append(args, filter.BrandID)
	}
	if filter.AccountID != "" {
		clauses = append(clauses, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.CampaignID != "" {
		clauses = append(clauses, "campaign_id = ?")
		args = append(args, filter.CampaignID)
	}
	if filter.ProviderLeadID != "" {
		clauses = append(clauses, "provider_lead_id = ?")
		args = append(args, filter.ProviderLeadID)
	}
	if filter.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, filter.Category)
	}

	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var leads []models.Lead
	if err := s.db.SelectContext(ctx, &leads, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}

	// Ensure we return an empty slice, not nil
	if leads == nil {
		leads = []models.Lead{}
	}

	return leads, nil
}

// GetLead retrieves a single lead by id
func (s *LeadService) GetLead(ctx context.Context, id int64) (models.Lead, error) {
	var lead models.Lead
	query := s.db.Rebind(`SELECT * FROM leads WHERE id = ?`)
	if err := s.db.GetContext(ctx, &lead, query, id); err != nil {
		return models.Lead{}, fmt.Errorf("failed to get lead %d: %w", id, err)
	}
	return lead, nil
}

// DeleteRecord deletes one lead row by id
func (s *LeadService) DeleteRecord(ctx context.Context, id int64) error {
	query := s.db.Rebind(`DELETE FROM leads WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete lead %d: %w", id, classifyWriteError(err))
	}
	return nil
}

// DeleteLeadsByAccount deletes all leads belonging to an account. Used by the
// vault to cascade an account removal.
func (s *LeadService) DeleteLeadsByAccount(ctx context.Context, accountID string) error {
	query := s.db.Rebind(`DELETE FROM leads WHERE account_id = ?`)
	if _, err := s.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("failed to delete leads for account %s: %w", accountID, classifyWriteError(err))
	}
	return nil
}

// UpdateIntentScore records a classification result on a lead
func (s *LeadService) UpdateIntentScore(ctx context.Context, id int64, score int) error {
	query := s.db.Rebind(`UPDATE leads SET intent_score = ?, updated_at = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, score, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to update intent score for lead %d: %w", id, classifyWriteError(err))
	}
	return nil
}

// accountColumns whitelists the account fields UpdateAccount may touch
var accountColumns = map[string]bool{
	"display_name":         true,
	"encrypted_credential": true,
	"is_primary":           true,
	"backfilled":           true,
}

// SaveAccount upserts an account row
func (s *LeadService) SaveAccount(ctx context.Context, account models.Account) error {
	query := s.db.Rebind(`
		INSERT INTO accounts (
			account_id, brand_id, display_name, provider,
			encrypted_credential, is_primary, backfilled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			encrypted_credential = EXCLUDED.encrypted_credential,
			is_primary = EXCLUDED.is_primary,
			backfilled = EXCLUDED.backfilled,
			updated_at = EXCLUDED.updated_at
	`)

	_, err := s.db.ExecContext(ctx, query,
		account.AccountID, account.BrandID, account.DisplayName, account.Provider,
		account.EncryptedCredential, account.IsPrimary, account.Backfilled,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", account.AccountID, classifyWriteError(err))
	}
	return nil
}

// ListAccounts returns every persisted account, oldest first. The vault loads
// these at startup to survive restarts.
func (s *LeadService) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	if err := s.db.SelectContext(ctx, &accounts, `SELECT * FROM accounts ORDER BY created_at ASC`); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// UpdateAccount updates whitelisted fields of an account row
func (s *LeadService) UpdateAccount(ctx context.Context, accountID string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	var sets []string
	var args []interface{}
	for column, value := range fields {
		if !accountColumns[column] {
			return fmt.Errorf("refusing to update unknown account column %q", column)
		}
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC())
	args = append(args, accountID)

	query := s.db.Rebind(`UPDATE accounts SET ` + strings.Join(sets, ", ") + ` WHERE account_id = ?`)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update account %s: %w", accountID, classifyWriteError(err))
	}
	return nil
}

// DeleteAccount removes an account row
func (s *LeadService) DeleteAccount(ctx context.Context, accountID string) error {
	query := s.db.Rebind(`DELETE FROM accounts WHERE account_id = ?`)
	if _, err := s.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("failed to delete account %s: %w", accountID, classifyWriteError(err))
	}
	return nil
}
