// Package sns mirrors change broadcasts to an SNS topic so observers
// outside the process (dashboards, pipelines) can follow collector state
// without a redis subscription.
package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"
)

// Config holds SNS mirror settings.
type Config struct {
	Region   string
	TopicARN string
}

// Mirror publishes change payloads to an SNS topic.
type Mirror struct {
	client   *sns.Client
	topicARN string
	logger   *zap.Logger
}

// New creates an SNS mirror for the given topic.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Mirror, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("sns change mirror initialized",
		zap.String("topic_arn", cfg.TopicARN),
	)

	return &Mirror{
		client:   sns.NewFromConfig(awsCfg),
		topicARN: cfg.TopicARN,
		logger:   logger,
	}, nil
}

// Publish sends the change payload to the topic and returns the message id.
func (m *Mirror) Publish(ctx context.Context, payload []byte) (string, error) {
	input := &sns.PublishInput{
		TopicArn: aws.String(m.topicARN),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String("state_changed"),
			},
		},
	}

	result, err := m.client.Publish(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to publish to SNS: %w", err)
	}

	return *result.MessageId, nil
}
