// internal/common/aws/sns.go
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type SNSClient struct {
	client *sns.Client
}

func NewSNSClient(ctx context.Context, region string) (*SNSClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &SNSClient{client: sns.NewFromConfig(cfg)}, nil
}

// PublishSMS sends a text message to one phone number, tagged with the
// platform sender id when configured.
func (s *SNSClient) PublishSMS(ctx context.Context, phoneNumber, senderID, message string) error {
	input := &sns.PublishInput{
		PhoneNumber: &phoneNumber,
		Message:     &message,
	}
	if senderID != "" {
		dataType := "String"
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    &dataType,
				StringValue: &senderID,
			},
		}
	}
	_, err := s.client.Publish(ctx, input)
	return err
}
