// Package notify sends transactional email and SMS through AWS SES/SNS.
package notify

import (
	"context"
	"fmt"

	"platform-services/internal/common/aws"
	"platform-services/internal/common/config"
	"platform-services/internal/common/logger"
)

// Notifier delivers best-effort notifications. Send failures are logged, never
// propagated: a failed email must not fail the request that triggered it.
type Notifier struct {
	cfg    config.NotificationConfig
	ses    *aws.SESClient
	sns    *aws.SNSClient
	logger logger.Logger
}

func New(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*Notifier, error) {
	n := &Notifier{
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "notifier"}),
	}

	if cfg.Email.Enabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("create ses client: %w", err)
		}
		n.ses = sesClient
	}

	if cfg.SMS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("create sns client: %w", err)
		}
		n.sns = snsClient
	}

	return n, nil
}

// SendEmail sends a plain-text email. No-op when email delivery is disabled.
func (n *Notifier) SendEmail(ctx context.Context, to, subject, body string) {
	if n.ses == nil {
		return
	}

	err := n.ses.SendPlainEmail(ctx, n.cfg.Email.FromEmail, to, subject, body)
	if err != nil {
		n.logger.Warn("email send failed", map[string]interface{}{
			"to":      to,
			"subject": subject,
			"error":   err.Error(),
		})
		return
	}

	n.logger.Debug("email sent", map[string]interface{}{"to": to, "subject": subject})
}

// SendSMS sends a text message. No-op when SMS delivery is disabled.
func (n *Notifier) SendSMS(ctx context.Context, phoneNumber, message string) {
	if n.sns == nil {
		return
	}

	err := n.sns.PublishSMS(ctx, phoneNumber, n.cfg.SMS.SenderID, message)
	if err != nil {
		n.logger.Warn("sms send failed", map[string]interface{}{
			"phoneNumber": phoneNumber,
			"error":       err.Error(),
		})
	}
}
