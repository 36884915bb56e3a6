package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/BradenHooton/turnstile/internal/models"
	pkglogger "github.com/BradenHooton/turnstile/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// LockoutNotifier tells the account owner that an identifier was locked out
type LockoutNotifier interface {
	NotifyLockout(ctx context.Context, identifier string, action models.ActionType, until time.Time) error
}

// SESAPI is the subset of the SES client used for sending
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier sends lockout notices using AWS SES
type SESNotifier struct {
	client      SESAPI
	fromAddress string
	logger      *slog.Logger
}

// NewSESNotifier loads the default AWS config for region and creates an SESNotifier
func NewSESNotifier(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

// NewSESNotifierWithClient creates an SESNotifier around an existing client
func NewSESNotifierWithClient(client SESAPI, fromAddress string, logger *slog.Logger) *SESNotifier {
	return &SESNotifier{
		client:      client,
		fromAddress: fromAddress,
		logger:      logger,
	}
}

// NotifyLockout emails the identifier when it is an email address. IP and
// other identifiers have no mailbox and are skipped.
func (n *SESNotifier) NotifyLockout(ctx context.Context, identifier string, action models.ActionType, until time.Time) error {
	if _, err := mail.ParseAddress(identifier); err != nil {
		return nil
	}

	// The body deliberately omits counts and exact windows
	textBody := fmt.Sprintf(`We noticed several unsuccessful %s attempts on your account.

For your security, further attempts are paused for a while. You can try again later.

If this was not you, we recommend resetting your password once access is restored.

This is an automated message. Please do not reply to this email.
`, actionLabel(action))

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{identifier},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Unusual activity on your account"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		n.logger.Error("failed to send lockout email via SES",
			slog.String("email", pkglogger.SanitizedEmail(identifier)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	messageID := ""
	if result != nil && result.MessageId != nil {
		messageID = *result.MessageId
	}
	n.logger.Info("lockout email sent",
		slog.String("email", pkglogger.SanitizedEmail(identifier)),
		slog.String("message_id", messageID),
		slog.Time("locked_until", until))

	return nil
}

// LogNotifier is the mock-mode notifier used when no email provider is configured
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyLockout(ctx context.Context, identifier string, action models.ActionType, until time.Time) error {
	n.logger.Info("lockout notification (mock mode)",
		slog.String("identifier", maskIdentifier(identifier)),
		slog.String("action_type", string(action)),
		slog.Time("locked_until", until))
	return nil
}

func actionLabel(action models.ActionType) string {
	switch action {
	case models.ActionLogin:
		return "sign-in"
	case models.ActionSignup:
		return "sign-up"
	case models.ActionPasswordReset:
		return "password reset"
	default:
		return string(action)
	}
}
