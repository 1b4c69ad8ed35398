package normalize

import (
	"testing"
	"time"

	"leadflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_PreservesMessageCount(t *testing.T) {
	tests := []struct {
		name string
		raw  models.RawThread
	}{
		{
			name: "empty thread",
			raw:  models.RawThread{},
		},
		{
			name: "single well-formed message",
			raw: models.RawThread{
				{Type: "SENT", Time: "2024-03-01T10:00:00Z", From: "a@x.com", EmailBody: "Hi there"},
			},
		},
		{
			name: "malformed entries are kept, not dropped",
			raw: models.RawThread{
				{Type: "", Time: "not-a-date", EmailBody: ""},
				{Type: "garbage", Time: "", EmailBody: "<"},
				{Type: "REPLY", Time: "2024-03-01T10:00:00Z", EmailBody: "ok"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thread := Normalize(tt.raw)
			assert.Len(t, thread.Messages, len(tt.raw))
		})
	}
}

func TestNormalize_ResponseLatency(t *testing.T) {
	t0 := "2024-03-01T10:00:00Z"
	t0plus2h := "2024-03-01T12:00:00Z"

	tests := []struct {
		name        string
		raw         models.RawThread
		wantLatency []*float64
	}{
		{
			name: "reply two hours after sent",
			raw: models.RawThread{
				{Type: "SENT", Time: t0},
				{Type: "REPLY", Time: t0plus2h},
			},
			wantLatency: []*float64{nil, floatPtr(2)},
		},
		{
			name: "reply after reply gets no latency",
			raw: models.RawThread{
				{Type: "REPLY", Time: t0},
				{Type: "REPLY", Time: t0plus2h},
			},
			wantLatency: []*float64{nil, nil},
		},
		{
			name: "sent after sent gets no latency",
			raw: models.RawThread{
				{Type: "SENT", Time: t0},
				{Type: "SENT", Time: t0plus2h},
			},
			wantLatency: []*float64{nil, nil},
		},
		{
			name: "invalid reply timestamp omits latency",
			raw: models.RawThread{
				{Type: "SENT", Time: t0},
				{Type: "REPLY", Time: "yesterday-ish"},
			},
			wantLatency: []*float64{nil, nil},
		},
		{
			name: "invalid sent timestamp omits latency",
			raw: models.RawThread{
				{Type: "SENT", Time: ""},
				{Type: "REPLY", Time: t0plus2h},
			},
			wantLatency: []*float64{nil, nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thread := Normalize(tt.raw)
			require.Len(t, thread.Messages, len(tt.wantLatency))

			for i, want := range tt.wantLatency {
				got := thread.Messages[i].ResponseLatency
				if want == nil {
					assert.Nil(t, got, "message %d", i)
				} else {
					require.NotNil(t, got, "message %d", i)
					assert.InDelta(t, *want, *got, 0.001, "message %d", i)
				}
			}
		})
	}
}

func TestNormalize_Directions(t *testing.T) {
	thread := Normalize(models.RawThread{
		{Type: "SENT"},
		{Type: "reply"},
		{Type: "RECEIVED"},
		{Type: "something-unknown"},
	})

	require.Len(t, thread.Messages, 4)
	assert.Equal(t, models.DirectionSent, thread.Messages[0].Direction)
	assert.Equal(t, models.DirectionReply, thread.Messages[1].Direction)
	assert.Equal(t, models.DirectionReply, thread.Messages[2].Direction)
	assert.Equal(t, models.DirectionSent, thread.Messages[3].Direction)
}

func TestNormalize_EngagementFlags(t *testing.T) {
	thread := Normalize(models.RawThread{
		{Type: "SENT", OpenCount: 3, ClickCount: 0},
		{Type: "SENT", OpenCount: 0, ClickCount: 1},
	})

	require.Len(t, thread.Messages, 2)
	assert.True(t, thread.Messages[0].Opened)
	assert.False(t, thread.Messages[0].Clicked)
	assert.False(t, thread.Messages[1].Opened)
	assert.True(t, thread.Messages[1].Clicked)
}

func TestCleanBody(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain text untouched",
			input:    "Thanks, sounds good!",
			expected: "Thanks, sounds good!",
		},
		{
			name:     "html tags stripped",
			input:    "<div><p>Hello <b>world</b></p></div>",
			expected: "Hello world",
		},
		{
			name:     "named and numeric entities decoded",
			input:    "Tom &amp; Jerry &lt;3 &#8212; really",
			expected: "Tom & Jerry <3 — really",
		},
		{
			name:     "quoted reply cut at On ... wrote:",
			input:    "Sure, works for me.\nOn Mon, Mar 4, 2024 at 9:12 AM Jane Doe wrote:\n> earlier text",
			expected: "Sure, works for me.",
		},
		{
			name:     "quoted reply cut at original message marker",
			input:    "See attached.\n-----Original Message-----\nFrom: someone",
			expected: "See attached.",
		},
		{
			name:     "quote lines cut",
			input:    "Agreed.\n> what about Tuesday?\n> or Wednesday",
			expected: "Agreed.",
		},
		{
			name:     "signature delimiter cut",
			input:    "Best regards\n--\nJane Doe\nVP Sales",
			expected: "Best regards",
		},
		{
			name:     "entirely quoted body falls back to stripped text",
			input:    "> the whole thing is a quote",
			expected: "> the whole thing is a quote",
		},
		{
			name:     "empty body stays empty",
			input:    "",
			expected: "",
		},
		{
			name:     "body that is pure boilerplate falls back to unstripped text",
			input:    "On Mon, Mar 4, 2024 at 9:12 AM Jane wrote:\n> earlier",
			expected: "On Mon, Mar 4, 2024 at 9:12 AM Jane wrote:\n> earlier",
		},
		{
			name:     "script content removed",
			input:    "<script>alert('x')</script>Meeting confirmed",
			expected: "Meeting confirmed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanBody(tt.input))
		})
	}
}

func TestCleanBody_ShorterPassWins(t *testing.T) {
	// The marker pass cuts at "From:" while the line pass would keep the
	// signature block; the shorter result is the cleaned body.
	input := "Quick question about pricing.\nFrom: Jane\nSent: whenever\nlots of quoted text here"
	assert.Equal(t, "Quick question about pricing.", CleanBody(input))
}

func TestParseTime_Formats(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"2024-03-01T10:00:00Z", true},
		{"2024-03-01 10:00:00", true},
		{"Mon, 04 Mar 2024 09:12:33 +0200", true},
		{"", false},
		{"tomorrow", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ts, ok := parseTime(tt.input)
			assert.Equal(t, tt.valid, ok)
			if ok {
				assert.False(t, ts.IsZero())
			}
		})
	}
}

func TestNormalize_ChronologicalOrderKept(t *testing.T) {
	// The source is trusted to be time-ordered; the normalizer must not re-sort.
	thread := Normalize(models.RawThread{
		{Type: "SENT", Time: "2024-03-02T10:00:00Z", Subject: "second"},
		{Type: "SENT", Time: "2024-03-01T10:00:00Z", Subject: "first"},
	})

	require.Len(t, thread.Messages, 2)
	assert.Equal(t, "second", thread.Messages[0].Subject)
	assert.Equal(t, "first", thread.Messages[1].Subject)
	assert.True(t, thread.Messages[0].Timestamp.After(thread.Messages[1].Timestamp))
}

func floatPtr(f float64) *float64 { return &f }

func TestNormalize_LatencyUsesHours(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	thread := Normalize(models.RawThread{
		{Type: "SENT", Time: base.Format(time.RFC3339)},
		{Type: "REPLY", Time: base.Add(30 * time.Minute).Format(time.RFC3339)},
	})

	require.Len(t, thread.Messages, 2)
	require.NotNil(t, thread.Messages[1].ResponseLatency)
	assert.InDelta(t, 0.5, *thread.Messages[1].ResponseLatency, 0.001)
}
