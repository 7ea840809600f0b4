// Package sqs consumes raw push deliveries from an SQS queue. The queue is
// an alternative ingestion transport next to the HTTP endpoint: a bridge in
// front of the push service drops each delivery's payload onto the queue as
// the message body, verbatim.
package sqs

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

// Config holds SQS configuration.
type Config struct {
	Region   string
	QueueURL string
}

// PushHandler receives raw push payloads pulled off the queue.
type PushHandler interface {
	HandlePush(ctx context.Context, raw []byte)
}

// queueAPI is the slice of the SQS client the consumer uses.
type queueAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Consumer long-polls the queue and forwards message bodies to the handler.
type Consumer struct {
	client   queueAPI
	queueURL string
	handler  PushHandler
	logger   *zap.Logger
}

// NewConsumer creates a new SQS consumer.
func NewConsumer(ctx context.Context, cfg Config, handler PushHandler, logger *zap.Logger) (*Consumer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg)

	logger.Info("sqs consumer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &Consumer{
		client:   client,
		queueURL: cfg.QueueURL,
		handler:  handler,
		logger:   logger,
	}, nil
}

// Run polls the queue until the context is cancelled. Each message body is
// ingested as one push delivery and then deleted; a failed delete leaves
// the message to redeliver, which the ingest dedup layer absorbs.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("sqs consumer stopping")
			return
		default:
		}

		result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   60,
		})
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("sqs consumer stopping")
				return
			}
			c.logger.Error("sqs receive failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, m := range result.Messages {
			var raw []byte
			if m.Body != nil {
				raw = []byte(*m.Body)
			}
			c.handler.HandlePush(ctx, raw)

			if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(c.queueURL),
				ReceiptHandle: m.ReceiptHandle,
			}); err != nil {
				c.logger.Warn("sqs delete failed, message will redeliver", zap.Error(err))
			}
		}
	}
}
