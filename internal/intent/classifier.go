// Package intent scores a lead's purchase intent from its conversation
// history using an external LLM completion endpoint.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"leadflow/internal/models"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// ErrClassification marks any inconclusive classification attempt: a
// non-numeric or out-of-range model reply, or an upstream rejection.
// Callers log it and leave the lead unclassified; it never aborts a run.
var ErrClassification = errors.New("classification failed")

// maxMessageChars bounds how much of each message body is sent to the model.
// Full HTML and attachments are never sent.
const maxMessageChars = 400

// DefaultCategories is the default allow-list of lead categories eligible for
// classification. It is product policy, kept as configurable data.
var DefaultCategories = []string{
	"interested",
	"meeting request",
	"information request",
	"uncategorizable",
}

// Completer is the minimal completion surface the classifier needs.
// The model endpoint is treated as opaque; only the returned text is interpreted.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OpenAICompleter implements Completer on top of the OpenAI chat API
type OpenAICompleter struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAICompleter creates a completer for the given API key.
// An empty model selects GPT-4o mini.
func NewOpenAICompleter(apiKey, model string, timeout time.Duration) *OpenAICompleter {
	if model == "" {
		model = string(openai.GPT4oMini)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAICompleter{
		client:  openai.NewClient(apiKey),
		model:   model,
		timeout: timeout,
	}
}

// Complete sends a single-shot prompt and returns the raw completion text
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   8,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// Classifier assigns 1-10 intent scores to conversation threads
type Classifier struct {
	completer  Completer
	categories map[string]struct{}
	logger     zerolog.Logger
}

// NewClassifier creates a classifier restricted to the given category
// allow-list. An empty list falls back to DefaultCategories.
func NewClassifier(completer Completer, categories []string, logger zerolog.Logger) *Classifier {
	if len(categories) == 0 {
		categories = DefaultCategories
	}

	set := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		set[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}

	return &Classifier{
		completer:  completer,
		categories: set,
		logger:     logger,
	}
}

// ShouldClassify reports whether a lead category is eligible for
// classification. Ineligible categories are skipped by policy, not because of
// API behavior.
func (c *Classifier) ShouldClassify(category string) bool {
	_, ok := c.categories[strings.ToLower(strings.TrimSpace(category))]
	return ok
}

// promptMessage is the bounded projection of a message sent to the model
type promptMessage struct {
	Type    string `json:"type"`
	Time    string `json:"time"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// Classify sends a bounded summary of the thread to the completion endpoint
// and parses a bare 1-10 integer out of the reply. Anything else is an
// ErrClassification.
//
// When invoked in a loop over many leads, callers must pace calls with an
// inter-call delay (about one second) to respect upstream rate limits; the
// backfill pacer provides this. Pacing is a property of the caller's loop,
// not of a single call.
func (c *Classifier) Classify(ctx context.Context, thread models.ConversationThread) (int, error) {
	prompt, err := c.buildPrompt(thread)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrClassification, err)
	}

	reply, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrClassification, err)
	}

	score, err := parseScore(reply)
	if err != nil {
		c.logger.Warn().Str("reply", reply).Msg("Classifier returned an unusable reply")
		return 0, err
	}

	return score, nil
}

// buildPrompt assembles the single-shot instruction plus the bounded thread payload
func (c *Classifier) buildPrompt(thread models.ConversationThread) (string, error) {
	payload := make([]promptMessage, 0, len(thread.Messages))
	for _, msg := range thread.Messages {
		payload = append(payload, promptMessage{
			Type:    string(msg.Direction),
			Time:    msg.Timestamp.Format(time.RFC3339),
			From:    msg.From,
			Subject: msg.Subject,
			Content: truncate(msg.PlainText, maxMessageChars),
		})
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode thread payload: %w", err)
	}

	return fmt.Sprintf(`You are scoring the purchase intent of a sales lead based on an email conversation.
SENT messages are from our campaign; REPLY messages are from the lead.

Conversation:
%s

Rate the lead's purchase intent from 1 (no interest) to 10 (ready to buy).
Respond with a single integer between 1 and 10. No words, no punctuation, no explanation.`, encoded), nil
}

// parseScore accepts only a bare in-range integer. "7 - high intent" is not a
// score; coercing it would hide model drift.
func parseScore(reply string) (int, error) {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty reply", ErrClassification)
	}

	score, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric reply %q", ErrClassification, reply)
	}
	if score < 1 || score > 10 {
		return 0, fmt.Errorf("%w: score %d out of range", ErrClassification, score)
	}

	return score, nil
}

// truncate limits s to max characters, rune-safe
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
