package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"leadflow/internal/models"
)

// Reply markers that start quoted-reply boilerplate. Everything from the first
// marker onward is trailing quote content, not part of the message itself.
var (
	onWrotePattern   = regexp.MustCompile(`(?mi)^On .{0,300}wrote:`)
	numericEntity    = regexp.MustCompile(`&#(\d{1,7});`)
	quoteLinePattern = regexp.MustCompile(`^>`)

	replyMarkers = []string{
		"-----Original Message-----",
		"________________________________",
		"From:",
		"Sent from my iPhone",
		"Sent from my Android",
	}
)

// timeFormats are tried in order when parsing provider timestamps
var timeFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC1123Z,
	time.RFC1123,
}

// Normalize turns a raw provider thread into a canonical conversation.
// It never fails: malformed entries are emitted with empty text rather than
// dropped, so the output always has exactly one message per input entry.
func Normalize(raw models.RawThread) models.ConversationThread {
	messages := make([]models.CanonicalMessage, 0, len(raw))
	valid := make([]bool, len(raw))

	for i, rm := range raw {
		ts, ok := parseTime(rm.Time)
		valid[i] = ok

		messages = append(messages, models.CanonicalMessage{
			From:      rm.From,
			To:        rm.To,
			CC:        rm.CC,
			Direction: parseDirection(rm.Type),
			Timestamp: ts,
			Subject:   rm.Subject,
			PlainText: CleanBody(rm.EmailBody),
			Opened:    rm.OpenCount > 0,
			Clicked:   rm.ClickCount > 0,
		})
	}

	// Response latency: set only on a REPLY immediately following a SENT, and
	// only when both timestamps parsed. Invalid dates omit the latency rather
	// than producing NaN or infinity.
	for i := 1; i < len(messages); i++ {
		if messages[i].Direction != models.DirectionReply {
			continue
		}
		if messages[i-1].Direction != models.DirectionSent {
			continue
		}
		if !valid[i] || !valid[i-1] {
			continue
		}
		hours := messages[i].Timestamp.Sub(messages[i-1].Timestamp).Hours()
		messages[i].ResponseLatency = &hours
	}

	return models.ConversationThread{Messages: messages}
}

// CleanBody strips HTML from a raw message body and removes trailing
// quoted-reply content. Two independent extraction passes run over the
// stripped text (marker scan and line scan); the shorter non-empty result
// wins. If extraction empties the message entirely, the unstripped input is
// returned instead so the message is never lost.
func CleanBody(raw string) string {
	stripped := stripHTML(raw)

	byMarker := cutAtFirstMarker(stripped)
	byLine := cutQuotedLines(stripped)

	cleaned := shorterNonEmpty(byMarker, byLine)
	if cleaned == "" {
		cleaned = strings.TrimSpace(stripped)
	}
	if cleaned == "" {
		return strings.TrimSpace(raw)
	}
	return cleaned
}

// cutAtFirstMarker truncates text at the earliest occurrence of any reply marker
func cutAtFirstMarker(text string) string {
	cut := len(text)

	if loc := onWrotePattern.FindStringIndex(text); loc != nil && loc[0] < cut {
		cut = loc[0]
	}
	for _, marker := range replyMarkers {
		if idx := strings.Index(text, marker); idx != -1 && idx < cut {
			cut = idx
		}
	}

	return strings.TrimSpace(text[:cut])
}

// cutQuotedLines keeps lines up to the first quoted or signature line
func cutQuotedLines(text string) string {
	lines := strings.Split(text, "\n")
	var kept []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if quoteLinePattern.MatchString(trimmed) {
			break
		}
		if trimmed == "--" || trimmed == "—" {
			break
		}
		if onWrotePattern.MatchString(trimmed) {
			break
		}
		kept = append(kept, line)
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// shorterNonEmpty returns the shorter of two strings, skipping empty candidates
func shorterNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case len(b) < len(a):
		return b
	default:
		return a
	}
}

// stripHTML removes tags and decodes common character entities
func stripHTML(html string) string {
	// Remove script and style tags with their contents
	html = removeTagsWithContent(html, "script")
	html = removeTagsWithContent(html, "style")

	// Structural tags become line breaks before tag removal
	html = strings.ReplaceAll(html, "<br>", "\n")
	html = strings.ReplaceAll(html, "<br/>", "\n")
	html = strings.ReplaceAll(html, "<br />", "\n")
	html = strings.ReplaceAll(html, "</p>", "\n\n")
	html = strings.ReplaceAll(html, "</div>", "\n")

	// Remove all remaining HTML tags
	var result strings.Builder
	inTag := false
	for _, char := range html {
		if char == '<' {
			inTag = true
			continue
		}
		if char == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(char)
		}
	}

	text := result.String()

	// Decode common named entities
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", "\"")
	text = strings.ReplaceAll(text, "&#39;", "'")
	text = strings.ReplaceAll(text, "&apos;", "'")
	text = strings.ReplaceAll(text, "&amp;", "&")

	// Decode numeric entities
	text = numericEntity.ReplaceAllStringFunc(text, func(entity string) string {
		code, err := strconv.Atoi(numericEntity.FindStringSubmatch(entity)[1])
		if err != nil || code <= 0 || code > 0x10FFFF {
			return entity
		}
		return string(rune(code))
	})

	text = strings.TrimSpace(text)

	// Collapse excessive newlines
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}

	return text
}

// removeTagsWithContent removes HTML tags and their content
func removeTagsWithContent(html, tag string) string {
	openTag := "<" + tag
	closeTag := "</" + tag + ">"

	for {
		start := strings.Index(strings.ToLower(html), strings.ToLower(openTag))
		if start == -1 {
			break
		}

		end := strings.Index(strings.ToLower(html[start:]), strings.ToLower(closeTag))
		if end == -1 {
			break
		}
		end += start + len(closeTag)

		html = html[:start] + html[end:]
	}

	return html
}

// parseDirection maps a provider message type onto a canonical direction.
// Anything that is not recognizably a reply counts as SENT.
func parseDirection(t string) models.Direction {
	switch strings.ToUpper(strings.TrimSpace(t)) {
	case "REPLY", "RECEIVED", "INBOUND":
		return models.DirectionReply
	default:
		return models.DirectionSent
	}
}

// parseTime tries the known provider timestamp formats in order
func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, format := range timeFormats {
		if ts, err := time.Parse(format, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
