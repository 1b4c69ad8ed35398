package models

import "time"

// HealthResponse represents a basic health check response
// @Description Health check response
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`                 // Health status
	Timestamp time.Time `json:"timestamp" example:"2023-01-01T00:00:00Z"` // Timestamp of the check
	Version   string    `json:"version" example:"1.0.0"`                  // Application version
}

// DBHealthResponse represents a database health check response
// @Description Database health check response
type DBHealthResponse struct {
	Status    string        `json:"status" example:"healthy"`                   // Health status
	Timestamp time.Time     `json:"timestamp" example:"2023-01-01T00:00:00Z"`   // Timestamp of the check
	Connected bool          `json:"connected" example:"true"`                   // Database connection status
	Latency   time.Duration `json:"latency" swaggertype:"string" example:"1ms"` // Database ping latency
	Error     string        `json:"error,omitempty" example:""`                 // Error message if any
}

// StartBackfillRequest is the request body for triggering a backfill run
// @Description Backfill trigger payload
type StartBackfillRequest struct {
	AccountID  string `json:"account_id" example:"7b0c3a1e-4c2f-4f6a-9a6c-1d2e3f405060"`
	CutoffDays int    `json:"cutoff_days" example:"30"` // only campaigns created in the last N days
}

// StartBackfillResponse is the response from triggering a backfill run
// @Description Backfill trigger response
type StartBackfillResponse struct {
	Success bool   `json:"success"`
	RunID   string `json:"run_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BackfillStatusResponse reports the state of one backfill run
// @Description Backfill run status
type BackfillStatusResponse struct {
	RunID    string          `json:"run_id"`
	State    RunState        `json:"state"`
	Progress Progress        `json:"progress"`
	Result   *BackfillResult `json:"result,omitempty"` // set once the run is terminal
}

// EngagementRequest is the request body for computing engagement metrics
// @Description Engagement computation payload: a raw provider thread
type EngagementRequest struct {
	Thread RawThread `json:"thread"`
}

// EngagementResponse carries computed engagement metrics
// @Description Engagement computation response
type EngagementResponse struct {
	Metrics EngagementMetrics `json:"metrics"`
	Error   string            `json:"error,omitempty"`
}

// CreateAccountRequest is the request body for registering an ESP account
// @Description Account registration payload
type CreateAccountRequest struct {
	BrandID     string   `json:"brand_id"`
	DisplayName string   `json:"display_name"`
	Provider    Provider `json:"provider"`
	Credential  string   `json:"credential"` // API key, stored encrypted
	IsPrimary   bool     `json:"is_primary"`
}

// SendReplyRequest is the request body for sending a reply through the lead's ESP
// @Description Reply send payload
type SendReplyRequest struct {
	LeadID      int64      `json:"lead_id"`
	Body        string     `json:"body"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// SendResult is the provider-neutral outcome of a reply send.
// ESP responses vary between JSON and plain-text success messages; the client
// normalizes both shapes into this type before any business logic sees them.
type SendResult struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Provider Provider `json:"provider"`
}
