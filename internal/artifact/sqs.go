package artifact

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/cockroachdb/errors"
)

// SQSPublisher is the production EventPublisher: it hands the build event,
// JSON-encoded, to a single queue.
type SQSPublisher struct {
	client *sqs.Client
}

// NewSQSPublisher wraps an existing SQS client.
func NewSQSPublisher(client *sqs.Client) *SQSPublisher {
	return &SQSPublisher{client: client}
}

func (p *SQSPublisher) Publish(ctx context.Context, queueURL string, event BuildEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "artifact: failed to encode build event")
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return errors.Wrap(err, "artifact: failed to send build event to queue")
	}
	return nil
}
