package models

// Urgency classifies whether a lead's thread currently demands operator action.
// It is evaluated strictly from the final message and the current time.
type Urgency string

const (
	UrgencyNone           Urgency = "NONE"
	UrgencyNeedsResponse  Urgency = "NEEDS_RESPONSE"
	UrgencyUrgentResponse Urgency = "URGENT_RESPONSE"
	UrgencyNeedsFollowup  Urgency = "NEEDS_FOLLOWUP"
)

// EngagementMetrics is derived from a conversation thread and the current time.
// It is recomputed on demand and never persisted as ground truth.
type EngagementMetrics struct {
	Score   int     `json:"score"` // 0-100
	Urgency Urgency `json:"urgency"`
}
