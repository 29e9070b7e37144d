// Package sqs forwards alerts to an SQS queue in batches.
package sqs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	awssqs "github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/runreveal/hark"
	"github.com/runreveal/hark/internal/types"
	batch "github.com/runreveal/hark/x/batcher"
	"github.com/segmentio/ksuid"
)

// SendMessageBatch accepts at most ten entries.
const maxBatch = 10

type Option func(*SQS)

func WithQueueURL(queueURL string) Option {
	return func(s *SQS) {
		s.queueURL = queueURL
	}
}

func WithRegion(region string) Option {
	return func(s *SQS) {
		s.region = region
	}
}

func WithAccessKeyID(accessKeyID string) Option {
	return func(s *SQS) {
		s.accessKeyID = accessKeyID
	}
}

func WithAccessSecretKey(accessSecretKey string) Option {
	return func(s *SQS) {
		s.accessSecretKey = accessSecretKey
	}
}

func WithCustomEndpoint(endpoint string) Option {
	return func(s *SQS) {
		s.customEndpoint = endpoint
	}
}

func WithBatchSize(batchSize int) Option {
	return func(s *SQS) {
		s.batchSize = batchSize
	}
}

func withClient(c sqsiface.SQSAPI) Option {
	return func(s *SQS) {
		s.client = c
	}
}

type SQS struct {
	batcher *batch.Destination[types.Alert]
	client  sqsiface.SQSAPI

	queueURL       string
	region         string
	customEndpoint string

	accessKeyID     string
	accessSecretKey string

	batchSize int
}

func New(opts ...Option) *SQS {
	ret := &SQS{}
	for _, o := range opts {
		o(ret)
	}
	if ret.batchSize <= 0 || ret.batchSize > maxBatch {
		ret.batchSize = maxBatch
	}
	ret.batcher = batch.NewDestination[types.Alert](ret,
		batch.FlushLength(ret.batchSize),
		batch.FlushFrequency(time.Second),
		// One flush in flight keeps batches in arrival order.
		batch.FlushParallelism(1),
	)
	return ret
}

func (s *SQS) Run(ctx context.Context) error {
	if s.queueURL == "" {
		return errors.New("sqs: missing queue url")
	}
	if s.client == nil {
		config := &aws.Config{}
		if s.accessKeyID != "" && s.accessSecretKey != "" {
			config.Credentials = credentials.NewStaticCredentials(s.accessKeyID, s.accessSecretKey, "")
		}
		if s.region != "" {
			config.Region = aws.String(s.region)
		}
		if s.customEndpoint != "" {
			config.Endpoint = aws.String(s.customEndpoint)
		}
		sess, err := session.NewSession(config)
		if err != nil {
			return fmt.Errorf("sqs session: %w", err)
		}
		s.client = awssqs.New(sess)
	}

	return s.batcher.Run(ctx)
}

func (s *SQS) Send(ctx context.Context, ack func(), msgs ...hark.Message[types.Alert]) error {
	return s.batcher.Send(ctx, ack, msgs...)
}

// Flush sends the alerts as JSON message bodies in one SendMessageBatch call.
func (s *SQS) Flush(ctx context.Context, msgs []hark.Message[types.Alert]) error {
	fifo := strings.HasSuffix(s.queueURL, ".fifo")
	entries := make([]*awssqs.SendMessageBatchRequestEntry, 0, len(msgs))
	for _, msg := range msgs {
		body, err := json.Marshal(msg.Value)
		if err != nil {
			return err
		}
		entry := &awssqs.SendMessageBatchRequestEntry{
			Id:          aws.String(ksuid.New().String()),
			MessageBody: aws.String(string(body)),
		}
		if fifo {
			// One group keeps alerts in arrival order.
			entry.MessageGroupId = aws.String("hark")
			entry.MessageDeduplicationId = aws.String(msg.Value.EventID)
		}
		entries = append(entries, entry)
	}

	out, err := s.client.SendMessageBatchWithContext(ctx, &awssqs.SendMessageBatchInput{
		QueueUrl: aws.String(s.queueURL),
		Entries:  entries,
	})
	if err != nil {
		return err
	}
	if len(out.Failed) > 0 {
		f := out.Failed[0]
		return fmt.Errorf("sqs: %d of %d alerts failed, first: %s %s",
			len(out.Failed), len(entries), aws.StringValue(f.Code), aws.StringValue(f.Message))
	}
	return nil
}
