package models

import "time"

// RunState is one phase of a backfill run's state machine
type RunState string

const (
	RunFetchingCampaigns RunState = "FETCHING_CAMPAIGNS"
	RunFilteringByDate   RunState = "FILTERING_BY_DATE"
	RunFetchingLeads     RunState = "FETCHING_LEADS"
	RunFetchingHistory   RunState = "FETCHING_HISTORY"
	RunStaging           RunState = "STAGING"
	RunValidatingWrite   RunState = "VALIDATING_WRITE_POLICY"
	RunBulkInserting     RunState = "BULK_INSERTING"
	RunClassifying       RunState = "CLASSIFYING"
	RunDone              RunState = "DONE"
	RunFailed            RunState = "FAILED"
)

// Terminal reports whether the state ends a run
func (s RunState) Terminal() bool {
	return s == RunDone || s == RunFailed
}

// Progress is a snapshot of a running backfill, consumable for UI progress.
// Current advances monotonically within a run; it is a side-channel, never a
// control dependency.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Status  string `json:"status"`
}

// BackfillResult is the terminal outcome of one backfill run
type BackfillResult struct {
	RunID      string    `json:"run_id"`
	AccountID  string    `json:"account_id"`
	State      RunState  `json:"state"`
	Imported   int       `json:"imported"`
	Analyzed   int       `json:"analyzed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Status     string    `json:"status"` // human-readable terminal summary
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
