package models

import "time"

// Direction indicates whether a message was sent by a campaign or received from a lead
type Direction string

const (
	DirectionSent  Direction = "SENT"
	DirectionReply Direction = "REPLY"
)

// RawMessage represents a single message object as returned by an ESP message-history endpoint.
// Field availability varies across providers; everything is optional except Type.
type RawMessage struct {
	Type       string   `json:"type"`       // "SENT" or "REPLY" (providers also use lowercase)
	Time       string   `json:"time"`       // timestamp string, format varies by provider
	From       string   `json:"from"`       // sender address
	To         string   `json:"to"`         // recipient address
	CC         []string `json:"cc"`         // CC addresses
	Subject    string   `json:"subject"`    // message subject
	EmailBody  string   `json:"email_body"` // raw body, usually HTML
	OpenCount  int      `json:"open_count"` // engagement counters
	ClickCount int      `json:"click_count"`
}

// RawThread is the provider-specific payload for one lead's message history.
// It is ephemeral input; it is never persisted as-is beyond an archival blob.
type RawThread []RawMessage

// CanonicalMessage is the normalized form of a RawMessage
type CanonicalMessage struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	CC        []string  `json:"cc,omitempty"`
	Direction Direction `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
	PlainText string    `json:"plain_text"`
	Opened    bool      `json:"opened"`
	Clicked   bool      `json:"clicked"`

	// ResponseLatency is the delay in hours between a SENT message and the REPLY
	// that immediately follows it. Set only on such a REPLY; nil everywhere else.
	ResponseLatency *float64 `json:"response_latency_hours,omitempty"`
}

// ConversationThread is the ordered message history owned by exactly one lead.
// Ordering is chronological as given by the source; the normalizer does not re-sort.
type ConversationThread struct {
	Messages []CanonicalMessage `json:"messages"`
}

// LastMessage returns the final message in conversation order, or nil for an empty thread
func (t ConversationThread) LastMessage() *CanonicalMessage {
	if len(t.Messages) == 0 {
		return nil
	}
	return &t.Messages[len(t.Messages)-1]
}
