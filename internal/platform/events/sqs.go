package events

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type sqsSender interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends each event as one SQS message.
type SQSPublisher struct {
	client   sqsSender
	queueURL string
}

// NewSQSPublisher loads AWS configuration from the environment.
func NewSQSPublisher(ctx context.Context, queueURL string) (*SQSPublisher, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SQSPublisher{client: sqs.NewFromConfig(cfg), queueURL: queueURL}, nil
}

func (p *SQSPublisher) Publish(ctx context.Context, e Event) error {
	body, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    strPtr(p.queueURL),
		MessageBody: strPtr(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: strPtr("String"), StringValue: strPtr(e.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("sqs publish %s: %w", e.Type, err)
	}
	return nil
}

func (p *SQSPublisher) Close() error { return nil }

func strPtr(s string) *string { return &s }
