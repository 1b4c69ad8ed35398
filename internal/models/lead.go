package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Lead statuses as written by the ingestion engine. The surrounding application
// mutates status afterwards (tagging, stage changes); those values are opaque here.
const (
	LeadStatusNew = "new"
)

// Lead represents a single imported lead and its conversation history
type Lead struct {
	ID             int64   `db:"id" json:"id"`
	BrandID        string  `db:"brand_id" json:"brand_id"`
	AccountID      *string `db:"account_id" json:"account_id,omitempty"` // FK to Account.AccountID, nullable
	CampaignID     string  `db:"campaign_id" json:"campaign_id"`
	ProviderLeadID string  `db:"provider_lead_id" json:"provider_lead_id"`
	Category       string  `db:"category" json:"category"`

	Email     string `db:"email" json:"email"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	Company   string `db:"company" json:"company"`

	// Conversation is the canonical thread, serialized as JSON for storage.
	// RawConversation keeps the provider payload as an archival blob.
	Conversation    string `db:"conversation" json:"-"`
	RawConversation string `db:"raw_conversation" json:"-"`

	// IntentScore is 1-10, or NULL when no classification attempt succeeded.
	// NULL is distinct from any numeric value; it never means "zero interest".
	IntentScore *int `db:"intent_score" json:"intent_score,omitempty"`

	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Thread decodes the stored canonical conversation
func (l Lead) Thread() (ConversationThread, error) {
	if l.Conversation == "" {
		return ConversationThread{}, nil
	}

	var thread ConversationThread
	if err := json.Unmarshal([]byte(l.Conversation), &thread); err != nil {
		return ConversationThread{}, fmt.Errorf("failed to decode conversation for lead %d: %w", l.ID, err)
	}
	return thread, nil
}

// RawLead represents a lead record as returned by an ESP list-leads endpoint
type RawLead struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Category  int    `json:"category"` // provider category id, 1-8
}

// Campaign represents an ESP campaign as returned by a list-campaigns endpoint
type Campaign struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
