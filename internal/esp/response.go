package esp

import (
	"encoding/json"
	"strings"

	"leadflow/internal/models"
)

// payloadKind tags which shape a provider's send response took
type payloadKind int

const (
	payloadJSON payloadKind = iota
	payloadPlainText
)

// sendPayload is the tagged union of the two response shapes providers use
// for reply sends. It exists only at the client boundary; business logic only
// ever sees the normalized SendResult.
type sendPayload struct {
	kind payloadKind
	obj  sendJSONBody
	text string
}

// sendJSONBody covers the field variants seen across providers
type sendJSONBody struct {
	Success *bool  `json:"success"`
	OK      *bool  `json:"ok"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// parseSendPayload classifies a raw response body as JSON or plain text
func parseSendPayload(raw []byte) sendPayload {
	trimmed := strings.TrimSpace(string(raw))

	if strings.HasPrefix(trimmed, "{") {
		var body sendJSONBody
		if err := json.Unmarshal(raw, &body); err == nil {
			return sendPayload{kind: payloadJSON, obj: body}
		}
	}

	return sendPayload{kind: payloadPlainText, text: trimmed}
}

// normalizeSendResponse turns a provider send response of either shape into a
// SendResult. HTTP status is the source of truth for success unless the JSON
// body says otherwise.
func normalizeSendResponse(provider models.Provider, statusCode int, raw []byte) models.SendResult {
	result := models.SendResult{
		Provider: provider,
		Success:  statusCode < 400,
	}

	payload := parseSendPayload(raw)
	switch payload.kind {
	case payloadJSON:
		if payload.obj.Success != nil {
			result.Success = *payload.obj.Success
		} else if payload.obj.OK != nil {
			result.Success = *payload.obj.OK
		}
		result.Message = payload.obj.Message
		if result.Message == "" && payload.obj.Error != "" {
			result.Message = payload.obj.Error
		}
	case payloadPlainText:
		result.Message = payload.text
	}

	return result
}
