package backfill

import (
	"context"
	"errors"
	"sync"

	"leadflow/internal/models"

	"github.com/google/uuid"
)

// ErrRunInFlight is returned when a backfill is started for an account that
// already has one running
var ErrRunInFlight = errors.New("a backfill is already running for this account")

// Run tracks one backfill execution. State and progress are observable while
// the run is in flight; the result is set exactly once when it terminates.
type Run struct {
	ID        string
	AccountID string

	// CutoffDays limits this run to campaigns created within the last N days.
	// Zero or negative falls back to the orchestrator's configured default.
	CutoffDays int

	mu       sync.Mutex
	state    models.RunState
	progress models.Progress
	result   *models.BackfillResult

	cancel context.CancelFunc
	done   chan struct{}
}

func newRun(accountID string, cutoffDays int, cancel context.CancelFunc) *Run {
	return &Run{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		CutoffDays: cutoffDays,
		state:      models.RunFetchingCampaigns,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// setState moves the run into a new phase and updates the status text
func (r *Run) setState(state models.RunState, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	r.progress.Status = status
}

// addTotal grows the amount of known work. Totals only ever grow so the
// progress bar never jumps backwards.
func (r *Run) addTotal(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Total += n
}

// advance marks one unit of work complete
func (r *Run) advance() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Current++
}

// Snapshot returns the current state, progress and terminal result (nil while
// the run is still in flight)
func (r *Run) Snapshot() (models.RunState, models.Progress, *models.BackfillResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.progress, r.result
}

// finish records the terminal result and releases waiters
func (r *Run) finish(result *models.BackfillResult) {
	r.mu.Lock()
	r.state = result.State
	r.progress.Status = result.Status
	r.result = result
	r.mu.Unlock()
	close(r.done)
}

// Cancel aborts the run. Work already written stays written.
func (r *Run) Cancel() {
	r.cancel()
}

// Wait blocks until the run terminates and returns its result
func (r *Run) Wait() *models.BackfillResult {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Manager enforces single-flight backfills per account and keeps a registry
// of runs for status queries
type Manager struct {
	orchestrator *Orchestrator

	mu       sync.Mutex
	inflight map[string]*Run // accountID -> active run
	runs     map[string]*Run // runID -> run, including finished ones
}

// NewManager creates a run manager around an orchestrator
func NewManager(orchestrator *Orchestrator) *Manager {
	return &Manager{
		orchestrator: orchestrator,
		inflight:     make(map[string]*Run),
		runs:         make(map[string]*Run),
	}
}

// Start launches a backfill for the account in a background goroutine.
// At most one run per account may be in flight. A positive cutoffDays
// overrides the configured campaign cutoff for this run only.
func (m *Manager) Start(accountID string, cutoffDays int) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.inflight[accountID]; busy {
		return nil, ErrRunInFlight
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := newRun(accountID, cutoffDays, cancel)
	m.inflight[accountID] = run
	m.runs[run.ID] = run

	go func() {
		defer cancel()

		result := m.orchestrator.Execute(ctx, run)

		// Clear the single-flight slot before releasing waiters so a caller
		// woken by Wait can immediately start a new run for the account.
		m.mu.Lock()
		delete(m.inflight, accountID)
		m.mu.Unlock()

		run.finish(result)
	}()

	return run, nil
}

// Get looks up a run by id
func (m *Manager) Get(runID string) (*Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	return run, ok
}

// Cancel aborts a run by id. Returns false when the run id is unknown.
func (m *Manager) Cancel(runID string) bool {
	m.mu.Lock()
	run, ok := m.runs[runID]
	m.mu.Unlock()

	if !ok {
		return false
	}
	run.Cancel()
	return true
}
