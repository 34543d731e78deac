package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/lumenmail/campaignd/internal/pkg/logger"
)

// SESSender delivers through AWS SES with the SDK v2.
type SESSender struct {
	client *sesv2.Client
	log    *logger.Logger
}

// NewSESSender creates an SES sender. With empty credentials the default
// AWS credential chain applies (IAM role on ECS).
func NewSESSender(accessKey, secretKey, region string) (*SESSender, error) {
	if region == "" {
		region = "us-west-2"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SESSender{
		client: sesv2.NewFromConfig(cfg),
		log:    logger.Component("ses"),
	}, nil
}

// Send delivers a single email through SES.
func (s *SESSender) Send(ctx context.Context, msg *EmailMessage) (*SendResult, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLContent), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(msg.CampaignID)},
			{Name: aws.String("recipient_id"), Value: aws.String(msg.RecipientID)},
		},
	}
	if msg.TextContent != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.TextContent), Charset: aws.String("UTF-8")}
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.log.Warn("send failed", "email", msg.Email, "error", err.Error())
		return &SendResult{Success: false, Error: err}, nil
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	s.log.Debug("sent", "email", msg.Email, "message_id", messageID)

	return &SendResult{Success: true, MessageID: messageID, SentAt: time.Now()}, nil
}
