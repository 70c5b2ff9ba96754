package queueio

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQS is the FIFO-queue-backed QueueIO, used in production. The queue must
// be a ".fifo" queue — group/dedup ids are always sent, and non-FIFO queues
// simply ignore them.
type SQS struct {
	client   *sqs.Client
	queueURL string
}

// NewSQS resolves queueName to its URL (via GetQueueUrl) and builds a client
// using the SDK's default credential chain.
func NewSQS(ctx context.Context, queueName string) (*SQS, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("queueio: failed to load AWS config: %w", err)
	}
	client := sqs.NewFromConfig(cfg)

	out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: &queueName})
	if err != nil {
		return nil, fmt.Errorf("queueio: resolve queue %q: %w", queueName, err)
	}
	return &SQS{client: client, queueURL: *out.QueueUrl}, nil
}

func (q *SQS) Receive(ctx context.Context, maxMessages int32, waitSeconds int32) ([]Handle, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &q.queueURL,
		MaxNumberOfMessages: maxMessages,
		WaitTimeSeconds:     waitSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("queueio: receive: %w", err)
	}

	handles := make([]Handle, 0, len(out.Messages))
	for _, m := range out.Messages {
		handles = append(handles, &sqsHandle{
			client:        q.client,
			queueURL:      q.queueURL,
			body:          []byte(orEmpty(m.Body)),
			receiptHandle: orEmpty(m.ReceiptHandle),
		})
	}
	return handles, nil
}

func (q *SQS) Send(ctx context.Context, body []byte, groupID, dedupID string) error {
	bodyStr := string(body)
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               &q.queueURL,
		MessageBody:            &bodyStr,
		MessageGroupId:         &groupID,
		MessageDeduplicationId: &dedupID,
	})
	if err != nil {
		return fmt.Errorf("queueio: send: %w", err)
	}
	return nil
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type sqsHandle struct {
	client        *sqs.Client
	queueURL      string
	body          []byte
	receiptHandle string
}

func (h *sqsHandle) Body() []byte { return h.body }

func (h *sqsHandle) Delete(ctx context.Context) error {
	_, err := h.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &h.queueURL,
		ReceiptHandle: &h.receiptHandle,
	})
	if err != nil {
		return fmt.Errorf("queueio: delete: %w", err)
	}
	return nil
}

func (h *sqsHandle) ChangeVisibility(ctx context.Context, timeoutSeconds int32) error {
	_, err := h.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          &h.queueURL,
		ReceiptHandle:     &h.receiptHandle,
		VisibilityTimeout: timeoutSeconds,
	})
	if err != nil {
		return fmt.Errorf("queueio: change visibility: %w", err)
	}
	return nil
}

var _ QueueIO = (*SQS)(nil)
var _ Handle = (*sqsHandle)(nil)
