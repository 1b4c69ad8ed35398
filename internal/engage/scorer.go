package engage

import (
	"math"
	"time"

	"leadflow/internal/models"
)

// LatencyBonus awards extra points when the mean response latency of a thread
// is below a threshold. Tiers are evaluated in order; the first match wins.
type LatencyBonus struct {
	UnderHours float64
	Points     float64
}

// Weights holds the tunable scoring parameters. The defaults reproduce the
// established product behavior; they are parameters, not invariants.
type Weights struct {
	ReplyRatioMax  float64        // cap on the reply-ratio term
	LatencyBonuses []LatencyBonus // ordered fastest-first
	ReplyUrgentAge time.Duration  // REPLY older than this demands urgent response
	FollowupAge    time.Duration  // SENT older than this needs a followup
	MaxScore       float64
}

// DefaultWeights returns the standard scoring parameters
func DefaultWeights() Weights {
	return Weights{
		ReplyRatioMax: 60,
		LatencyBonuses: []LatencyBonus{
			{UnderHours: 1, Points: 40},
			{UnderHours: 4, Points: 30},
			{UnderHours: 24, Points: 20},
			{UnderHours: 72, Points: 10},
		},
		ReplyUrgentAge: 24 * time.Hour,
		FollowupAge:    72 * time.Hour,
		MaxScore:       100,
	}
}

// Scorer computes engagement metrics from a normalized thread.
// Scoring is pure and synchronous; metrics are recomputed on demand and are
// always recoverable from the thread plus the current time.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the given weights
func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Score computes the 0-100 engagement score and the response urgency for a
// thread as of now
func (s *Scorer) Score(thread models.ConversationThread, now time.Time) models.EngagementMetrics {
	return models.EngagementMetrics{
		Score:   s.engagementScore(thread),
		Urgency: s.urgency(thread.LastMessage(), now),
	}
}

// engagementScore is min(replyRatio*max, max) plus a mean-latency bonus,
// capped and rounded
func (s *Scorer) engagementScore(thread models.ConversationThread) int {
	var sent, replies int
	var latencies []float64

	for _, msg := range thread.Messages {
		switch msg.Direction {
		case models.DirectionSent:
			sent++
		case models.DirectionReply:
			replies++
		}
		if msg.ResponseLatency != nil {
			latencies = append(latencies, *msg.ResponseLatency)
		}
	}

	if sent == 0 {
		return 0
	}

	replyRatio := float64(replies) / float64(sent)
	score := math.Min(replyRatio*s.weights.ReplyRatioMax, s.weights.ReplyRatioMax)
	score += s.latencyBonus(latencies)

	if score > s.weights.MaxScore {
		score = s.weights.MaxScore
	}
	return int(math.Round(score))
}

// latencyBonus awards points based on the mean of all recorded response latencies
func (s *Scorer) latencyBonus(latencies []float64) float64 {
	if len(latencies) == 0 {
		return 0
	}

	var sum float64
	for _, l := range latencies {
		sum += l
	}
	mean := sum / float64(len(latencies))

	for _, tier := range s.weights.LatencyBonuses {
		if mean < tier.UnderHours {
			return tier.Points
		}
	}
	return 0
}

// urgency is a pure function of the last message and the current time.
// Earlier messages never influence the result.
func (s *Scorer) urgency(last *models.CanonicalMessage, now time.Time) models.Urgency {
	if last == nil {
		return models.UrgencyNone
	}

	age := now.Sub(last.Timestamp)

	switch last.Direction {
	case models.DirectionReply:
		if age >= s.weights.ReplyUrgentAge {
			return models.UrgencyUrgentResponse
		}
		return models.UrgencyNeedsResponse
	case models.DirectionSent:
		if age >= s.weights.FollowupAge {
			return models.UrgencyNeedsFollowup
		}
	}

	return models.UrgencyNone
}
