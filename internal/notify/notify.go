// Package notify sends operator alerts via SendGrid. Alerts are reserved for
// failures that need a human, currently write-permission run failures.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Service handles sending operator emails via SendGrid
type Service struct {
	apiKey        string
	operatorEmail string
	senderEmail   string
	logger        zerolog.Logger
}

// NewService creates a new notification service instance
func NewService(apiKey, operatorEmail, senderEmail string, logger zerolog.Logger) *Service {
	if senderEmail == "" {
		senderEmail = "alerts@leadflow.local"
	}
	return &Service{
		apiKey:        apiKey,
		operatorEmail: operatorEmail,
		senderEmail:   senderEmail,
		logger:        logger,
	}
}

// NotifyRunFailed emails the operator about a failed backfill run
func (s *Service) NotifyRunFailed(ctx context.Context, accountID, reason string) error {
	if s.apiKey == "" {
		return fmt.Errorf("SendGrid API key not configured")
	}
	if s.operatorEmail == "" {
		return fmt.Errorf("operator email not configured")
	}

	from := mail.NewEmail("Leadflow Ingestion", s.senderEmail)
	to := mail.NewEmail("Operator", s.operatorEmail)

	subject := fmt.Sprintf("Backfill failed for account %s", accountID)

	body := fmt.Sprintf(`A backfill run failed and needs attention.

Account: %s
Timestamp: %s

Reason:
%s

Write-permission failures do not resolve on retry; check the destination
database grants before starting another run.`, accountID, time.Now().Format(time.RFC3339), reason)

	message := mail.NewSingleEmail(from, subject, to, body, body)

	client := sendgrid.NewSendClient(s.apiKey)
	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("SendGrid API error: status %d, body: %s", response.StatusCode, response.Body)
	}

	s.logger.Info().
		Str("account_id", accountID).
		Str("operator", s.operatorEmail).
		Msg("Operator notified about failed run")
	return nil
}
