package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/scribe/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// Notifier tells account holders about lifecycle changes made by admins.
type Notifier interface {
	SendDeletionNotice(ctx context.Context, email string, scheduledAt time.Time) error
}

// SESAPI is the subset of the SES client used for sending.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESNotifier sends notices using AWS SES
type AWSSESNotifier struct {
	client      SESAPI
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESNotifier loads the default AWS credential chain for region.
func NewAWSSESNotifier(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*AWSSESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewAWSSESNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

// NewAWSSESNotifierWithClient wraps an existing SES client.
func NewAWSSESNotifierWithClient(client SESAPI, fromAddress string, logger *slog.Logger) *AWSSESNotifier {
	return &AWSSESNotifier{
		client:      client,
		fromAddress: fromAddress,
		logger:      logger,
	}
}

// SendDeletionNotice tells the user when their account will be removed and
// that support can still cancel it until then.
func (s *AWSSESNotifier) SendDeletionNotice(ctx context.Context, email string, scheduledAt time.Time) error {
	when := scheduledAt.UTC().Format("January 2, 2006 15:04 MST")

	textBody := fmt.Sprintf(`Your account is scheduled for deletion

An administrator has scheduled your account for deletion on %s.

Until then your data is retained and the deletion can be cancelled.
If you did not expect this, contact our support team before that date.

This is an automated message. Please do not reply to this email.
`, when)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <h2>Your account is scheduled for deletion</h2>
    <p>An administrator has scheduled your account for deletion on <strong>%s</strong>.</p>
    <p>Until then your data is retained and the deletion can be cancelled.
    If you did not expect this, contact our support team before that date.</p>
    <p style="color: #666; font-size: 12px;">This is an automated message. Please do not reply to this email.</p>
</body>
</html>
`, when)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Your account is scheduled for deletion"),
			},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send deletion notice via SES",
			slog.String("email", logger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("deletion notice sent",
		slog.String("email", logger.SanitizedEmail(email)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

// NoopNotifier drops notices. Used when email delivery is disabled.
type NoopNotifier struct{}

func (NoopNotifier) SendDeletionNotice(context.Context, string, time.Time) error {
	return nil
}
