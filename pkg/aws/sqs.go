package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSSender sends messages to a single queue.
type SQSSender interface {
	SendMessage(ctx context.Context, body string, dedupID string) error
}

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSQueue sends messages to one SQS queue.
type SQSQueue struct {
	client   sqsAPI
	queueURL string
	fifo     bool
}

// NewSQSQueue creates a sender for the given queue URL. FIFO queues (".fifo"
// suffix) get message group and deduplication IDs.
func NewSQSQueue(cfg sdkaws.Config, queueURL string) *SQSQueue {
	return &SQSQueue{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
		fifo:     len(queueURL) > 5 && queueURL[len(queueURL)-5:] == ".fifo",
	}
}

// SendMessage sends a single message to the queue
func (q *SQSQueue) SendMessage(ctx context.Context, body string, dedupID string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    sdkaws.String(q.queueURL),
		MessageBody: sdkaws.String(body),
	}
	if q.fifo && dedupID != "" {
		input.MessageGroupId = sdkaws.String("reconciliation")
		input.MessageDeduplicationId = sdkaws.String(dedupID)
	}
	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
