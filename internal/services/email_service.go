package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/ehgzao/Shipper-sub001/internal/models"
)

// AWSSESNotifier delivers security alerts over AWS SES. It implements
// both the admin and the user channel.
type AWSSESNotifier struct {
	sesClient    *ses.Client
	fromAddress  string
	adminAddress string
	logger       *slog.Logger
}

// NewAWSSESNotifier creates a new AWS SES alert notifier
func NewAWSSESNotifier(region, fromAddress, adminAddress string, logger *slog.Logger) (*AWSSESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESNotifier{
		sesClient:    ses.NewFromConfig(cfg),
		fromAddress:  fromAddress,
		adminAddress: adminAddress,
		logger:       logger,
	}, nil
}

// NotifyAdmin sends the operations-facing alert email
func (s *AWSSESNotifier) NotifyAdmin(ctx context.Context, alert *models.SecurityAlert) error {
	if s.adminAddress == "" {
		s.logger.Warn("no admin alert address configured, skipping admin notification",
			slog.String("alert_type", string(alert.Type)))
		return nil
	}

	subject := fmt.Sprintf("[Security Alert] %s - %s", alertTitle(alert.Type), alert.Email)

	var b strings.Builder
	fmt.Fprintf(&b, "Security event detected.\n\n")
	fmt.Fprintf(&b, "Alert type: %s\n", alert.Type)
	fmt.Fprintf(&b, "Account: %s\n", alert.Email)
	writeDetails(&b, alert.Details)
	b.WriteString("\nThis is an automated message from the account security service.\n")

	return s.send(ctx, s.adminAddress, subject, b.String())
}

// NotifyUser sends the user-facing alert email
func (s *AWSSESNotifier) NotifyUser(ctx context.Context, alert *models.SecurityAlert) error {
	subject := fmt.Sprintf("Security notice for your account: %s", alertTitle(alert.Type))

	name := alert.UserName
	if name == "" {
		name = "there"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", name)

	switch alert.Type {
	case models.AlertTypeAccountLocked:
		b.WriteString("Your account has been temporarily locked after several failed sign-in attempts.\n")
		b.WriteString("If this was you, you can try again once the lock expires. ")
		b.WriteString("If you don't recognize this activity, please reset your password.\n")
	case models.AlertTypeImpossibleTravel:
		b.WriteString("We noticed a sign-in to your account from an unusual location.\n")
		b.WriteString("If this was you, no action is needed. ")
		b.WriteString("If you don't recognize this activity, please reset your password immediately.\n")
	default:
		b.WriteString("We noticed unusual activity on your account.\n")
		b.WriteString("If you don't recognize this activity, please reset your password.\n")
	}

	writeDetails(&b, alert.Details)
	b.WriteString("\nThis is an automated message. Please do not reply to this email.\n")

	return s.send(ctx, alert.Email, subject, b.String())
}

func (s *AWSSESNotifier) send(ctx context.Context, to, subject, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	s.logger.Info("alert email sent",
		slog.String("to", to),
		slog.String("message_id", *result.MessageId))

	return nil
}

func alertTitle(t models.AlertType) string {
	switch t {
	case models.AlertTypeAccountLocked:
		return "Account Locked"
	case models.AlertTypeImpossibleTravel:
		return "Unusual Sign-in Location"
	case models.AlertTypeSuspiciousLogin:
		return "Suspicious Sign-in"
	default:
		return string(t)
	}
}

func writeDetails(b *strings.Builder, details map[string]any) {
	if len(details) == 0 {
		return
	}

	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString("\nDetails:\n")
	for _, k := range keys {
		fmt.Fprintf(b, "  %s: %v\n", k, details[k])
	}
}
