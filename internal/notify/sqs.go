package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher is a Handler that forwards notifications to an SQS queue
// consumed by the push/email delivery services.
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
}

func NewSQSPublisher(client sqsAPI, queueURL string) *SQSPublisher {
	if client == nil {
		panic("notify: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("notify: SQS queueURL cannot be empty")
	}
	return &SQSPublisher{client: client, queueURL: queueURL}
}

func (p *SQSPublisher) Handle(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: marshal message: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"notification_type": {DataType: aws.String("String"), StringValue: aws.String(msg.Type)},
			"priority":          {DataType: aws.String("String"), StringValue: aws.String(string(msg.Priority))},
		},
	})
	if err != nil {
		return fmt.Errorf("notify: send SQS message: %w", err)
	}
	return nil
}

// AWSOptions carries the connection settings for the queue client.
type AWSOptions struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	EndpointOverride string // LocalStack and similar
}

// NewSQSClient builds an SQS client. Static credentials are used when both
// keys are set, otherwise the default provider chain applies.
func NewSQSClient(ctx context.Context, opts AWSOptions) (*sqs.Client, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if strings.TrimSpace(opts.AccessKeyID) != "" && strings.TrimSpace(opts.SecretAccessKey) != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("notify: load aws config: %w", err)
	}

	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if opts.EndpointOverride != "" {
			o.BaseEndpoint = aws.String(opts.EndpointOverride)
		}
	}), nil
}
