// Package esp talks to the external email-sending platforms that hold
// campaign and lead history data. All calls carry bounded timeouts; a
// timed-out call surfaces as an ordinary fetch error and never crashes a run.
package esp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"leadflow/internal/models"

	"github.com/rs/zerolog"
)

// Lead categories as partitioned by the ESP APIs. Leads are queried one
// category at a time; the ids and names are stable across providers.
const (
	MinCategory = 1
	MaxCategory = 8
)

var categoryNames = map[int]string{
	1: "interested",
	2: "meeting request",
	3: "not interested",
	4: "do not contact",
	5: "information request",
	6: "out of office",
	7: "wrong person",
	8: "uncategorizable",
}

// CategoryName maps a provider category id onto its canonical name
func CategoryName(id int) string {
	if name, ok := categoryNames[id]; ok {
		return name
	}
	return fmt.Sprintf("category-%d", id)
}

// defaultBaseURLs per provider
var defaultBaseURLs = map[models.Provider]string{
	models.ProviderSmartlead:  "https://server.smartlead.ai/api/v1",
	models.ProviderEmailBison: "https://app.emailbison.com/api/v1",
	models.ProviderInstantly:  "https://api.instantly.ai/api/v1",
}

// Client is the ESP surface the orchestrator consumes
type Client interface {
	Provider() models.Provider
	ListCampaigns(ctx context.Context, credential string) ([]models.Campaign, error)
	ListLeads(ctx context.Context, credential, campaignID string, category int) ([]models.RawLead, error)
	GetMessageHistory(ctx context.Context, credential, campaignID, leadID string) (models.RawThread, error)
	SendReply(ctx context.Context, credential, campaignID, leadID, body string, scheduledAt *time.Time) (models.SendResult, error)
}

// API is the REST implementation of Client for one provider
type API struct {
	provider models.Provider
	baseURL  string
	http     *http.Client
	logger   zerolog.Logger
}

// New creates a client for the given provider with a bounded request timeout
func New(provider models.Provider, timeout time.Duration, logger zerolog.Logger) (*API, error) {
	baseURL, ok := defaultBaseURLs[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
	return NewWithBaseURL(provider, baseURL, timeout, logger), nil
}

// NewWithBaseURL creates a client against an explicit base URL.
// Used directly in tests.
func NewWithBaseURL(provider models.Provider, baseURL string, timeout time.Duration, logger zerolog.Logger) *API {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &API{
		provider: provider,
		baseURL:  baseURL,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Provider returns which ESP this client talks to
func (a *API) Provider() models.Provider {
	return a.provider
}

// ListCampaigns fetches all campaigns visible to the credential
func (a *API) ListCampaigns(ctx context.Context, credential string) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	if err := a.getJSON(ctx, credential, "/campaigns", nil, &campaigns); err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

// ListLeads fetches the leads of one campaign category partition
func (a *API) ListLeads(ctx context.Context, credential, campaignID string, category int) ([]models.RawLead, error) {
	path := fmt.Sprintf("/campaigns/%s/leads", url.PathEscape(campaignID))
	query := url.Values{"category": []string{fmt.Sprintf("%d", category)}}

	var leads []models.RawLead
	if err := a.getJSON(ctx, credential, path, query, &leads); err != nil {
		return nil, fmt.Errorf("failed to list leads for campaign %s category %d: %w", campaignID, category, err)
	}
	return leads, nil
}

// GetMessageHistory fetches the raw conversation for one lead
func (a *API) GetMessageHistory(ctx context.Context, credential, campaignID, leadID string) (models.RawThread, error) {
	path := fmt.Sprintf("/campaigns/%s/leads/%s/message-history",
		url.PathEscape(campaignID), url.PathEscape(leadID))

	var thread models.RawThread
	if err := a.getJSON(ctx, credential, path, nil, &thread); err != nil {
		return nil, fmt.Errorf("failed to fetch message history for lead %s: %w", leadID, err)
	}
	return thread, nil
}

// sendReplyRequest is the wire payload for a reply send
type sendReplyRequest struct {
	EmailBody   string     `json:"email_body"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// SendReply sends (or schedules) a reply to a lead. Providers answer with
// either a JSON object or a bare plain-text success message; both are
// normalized into a SendResult before returning.
func (a *API) SendReply(ctx context.Context, credential, campaignID, leadID, body string, scheduledAt *time.Time) (models.SendResult, error) {
	path := fmt.Sprintf("/campaigns/%s/leads/%s/reply",
		url.PathEscape(campaignID), url.PathEscape(leadID))

	payload, err := json.Marshal(sendReplyRequest{EmailBody: body, ScheduledAt: scheduledAt})
	if err != nil {
		return models.SendResult{}, fmt.Errorf("failed to encode reply payload: %w", err)
	}

	req, err := a.newRequest(ctx, http.MethodPost, path, nil, bytes.NewReader(payload), credential)
	if err != nil {
		return models.SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return models.SendResult{}, fmt.Errorf("reply send failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Error closing response body")
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.SendResult{}, fmt.Errorf("failed to read reply response: %w", err)
	}

	return normalizeSendResponse(a.provider, resp.StatusCode, raw), nil
}

// getJSON performs an authenticated GET and decodes a JSON body into dest
func (a *API) getJSON(ctx context.Context, credential, path string, query url.Values, dest interface{}) error {
	req, err := a.newRequest(ctx, http.MethodGet, path, query, nil, credential)
	if err != nil {
		return err
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Error closing response body")
		}
	}()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned status %d: %s", a.provider, resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// newRequest builds a request with the provider's authentication scheme
func (a *API) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, credential string) (*http.Request, error) {
	if query == nil {
		query = url.Values{}
	}

	// Smartlead authenticates via query parameter, the others via bearer header
	if a.provider == models.ProviderSmartlead {
		query.Set("api_key", credential)
	}

	endpoint := a.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if a.provider != models.ProviderSmartlead {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	return req, nil
}
