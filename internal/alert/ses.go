package alert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESClient is the subset of *ses.Client used by SESAlerter
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESAlerter e-mails alerts to an operations address using AWS SES
type SESAlerter struct {
	client      SESClient
	fromAddress string
	toAddresses []string
	logger      *slog.Logger
}

// NewAWSSESAlerter loads the default AWS config for region and creates an SESAlerter
func NewAWSSESAlerter(region, fromAddress string, toAddresses []string, logger *slog.Logger) (*SESAlerter, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESAlerter(ses.NewFromConfig(cfg), fromAddress, toAddresses, logger), nil
}

// NewSESAlerter creates an SESAlerter around an existing client
func NewSESAlerter(client SESClient, fromAddress string, toAddresses []string, logger *slog.Logger) *SESAlerter {
	return &SESAlerter{
		client:      client,
		fromAddress: fromAddress,
		toAddresses: toAddresses,
		logger:      logger,
	}
}

// Alert implements Alerter
func (a *SESAlerter) Alert(ctx context.Context, subject, body string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(a.fromAddress),
		Destination: &types.Destination{
			ToAddresses: a.toAddresses,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("[loginguard] " + subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(body),
				},
			},
		},
	}

	result, err := a.client.SendEmail(ctx, input)
	if err != nil {
		a.logger.Error("failed to send alert via SES",
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send alert: %w", err)
	}

	messageID := ""
	if result != nil && result.MessageId != nil {
		messageID = *result.MessageId
	}
	a.logger.Info("alert email sent",
		slog.String("subject", subject),
		slog.String("message_id", messageID))

	return nil
}
