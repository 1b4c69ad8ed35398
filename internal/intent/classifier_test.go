package intent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"leadflow/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompleter records the prompt it was given and returns a canned reply
type fakeCompleter struct {
	reply      string
	err        error
	lastPrompt string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	return f.reply, f.err
}

func newTestClassifier(completer Completer) *Classifier {
	return NewClassifier(completer, nil, zerolog.Nop())
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		want      int
		wantError bool
	}{
		{name: "bare integer", reply: "7", want: 7},
		{name: "surrounding whitespace", reply: " 7 \n", want: 7},
		{name: "minimum", reply: "1", want: 1},
		{name: "maximum", reply: "10", want: 10},
		{name: "annotated reply rejected", reply: "7 - high intent", wantError: true},
		{name: "zero out of range", reply: "0", wantError: true},
		{name: "eleven out of range", reply: "11", wantError: true},
		{name: "negative out of range", reply: "-3", wantError: true},
		{name: "words rejected", reply: "seven", wantError: true},
		{name: "empty reply rejected", reply: "", wantError: true},
		{name: "float rejected", reply: "7.0", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseScore(tt.reply)
			if tt.wantError {
				assert.ErrorIs(t, err, ErrClassification)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestShouldClassify(t *testing.T) {
	classifier := newTestClassifier(&fakeCompleter{})

	tests := []struct {
		category string
		want     bool
	}{
		{"interested", true},
		{"meeting request", true},
		{"information request", true},
		{"uncategorizable", true},
		{"Interested", true},
		{"  meeting request  ", true},
		{"not interested", false},
		{"do not contact", false},
		{"out of office", false},
		{"wrong person", false},
		{"", false},
		{"some-future-category", false},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			assert.Equal(t, tt.want, classifier.ShouldClassify(tt.category))
		})
	}
}

func TestShouldClassify_CustomAllowList(t *testing.T) {
	classifier := NewClassifier(&fakeCompleter{}, []string{"vip"}, zerolog.Nop())

	assert.True(t, classifier.ShouldClassify("vip"))
	assert.False(t, classifier.ShouldClassify("interested"))
}

func TestClassify_Success(t *testing.T) {
	completer := &fakeCompleter{reply: "8"}
	classifier := newTestClassifier(completer)

	thread := models.ConversationThread{Messages: []models.CanonicalMessage{
		{Direction: models.DirectionSent, Timestamp: time.Now(), PlainText: "Hi, interested in our tool?"},
		{Direction: models.DirectionReply, Timestamp: time.Now(), PlainText: "Yes, send pricing please"},
	}}

	score, err := classifier.Classify(context.Background(), thread)
	require.NoError(t, err)
	assert.Equal(t, 8, score)
	assert.Contains(t, completer.lastPrompt, "send pricing please")
	assert.Contains(t, completer.lastPrompt, "single integer between 1 and 10")
}

func TestClassify_CompleterError(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("429 too many requests")}
	classifier := newTestClassifier(completer)

	_, err := classifier.Classify(context.Background(), models.ConversationThread{})
	assert.ErrorIs(t, err, ErrClassification)
}

func TestClassify_AnnotatedReplyIsError(t *testing.T) {
	completer := &fakeCompleter{reply: "7 - high intent"}
	classifier := newTestClassifier(completer)

	_, err := classifier.Classify(context.Background(), models.ConversationThread{})
	assert.ErrorIs(t, err, ErrClassification)
}

func TestClassify_TruncatesLongMessages(t *testing.T) {
	completer := &fakeCompleter{reply: "5"}
	classifier := newTestClassifier(completer)

	long := strings.Repeat("x", 5000)
	thread := models.ConversationThread{Messages: []models.CanonicalMessage{
		{Direction: models.DirectionReply, Timestamp: time.Now(), PlainText: long},
	}}

	_, err := classifier.Classify(context.Background(), thread)
	require.NoError(t, err)

	// The prompt carries at most the bounded slice of the body
	assert.Contains(t, completer.lastPrompt, strings.Repeat("x", maxMessageChars))
	assert.NotContains(t, completer.lastPrompt, strings.Repeat("x", maxMessageChars+1))
}
