package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI is the subset of the SES client used for alerts
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier emails the account owner when their account is locked
type SESNotifier struct {
	client      SESAPI
	fromAddress string
	logger      *slog.Logger
}

// NewSESNotifier loads the default AWS credential chain for region
func NewSESNotifier(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSESNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

func NewSESNotifierWithClient(client SESAPI, fromAddress string, logger *slog.Logger) *SESNotifier {
	return &SESNotifier{
		client:      client,
		fromAddress: fromAddress,
		logger:      logger,
	}
}

// NotifyAccountLocked sends the lockout alert
func (n *SESNotifier) NotifyAccountLocked(ctx context.Context, email string, lockedUntil time.Time, rc models.RequestContext) error {
	until := lockedUntil.UTC().Format("15:04 MST on Jan 2, 2006")

	source := "an unknown address"
	if rc.IPAddress != "" {
		source = rc.IPAddress
	}

	textBody := fmt.Sprintf(`Your account has been temporarily locked

We detected several failed sign-in attempts on your account, the most recent from %s.
To protect you, sign-in is disabled until %s.

If this was you, wait until then and try again.
If it was not, we recommend changing your password and enabling two-factor authentication.

This is an automated message. Please do not reply to this email.
`, source, until)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <h2>Your account has been temporarily locked</h2>
    <p>We detected several failed sign-in attempts on your account, the most recent from <code>%s</code>.</p>
    <p>To protect you, sign-in is disabled until <strong>%s</strong>.</p>
    <p>If this was not you, we recommend changing your password and enabling two-factor authentication.</p>
    <p style="color: #666; font-size: 12px;">This is an automated message. Please do not reply to this email.</p>
</body>
</html>
`, source, until)

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Your account has been temporarily locked"),
			},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send lockout email: %w", err)
	}

	n.logger.Info("lockout notification sent",
		slog.String("email", logger.SanitizedEmail(email)),
		slog.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}
