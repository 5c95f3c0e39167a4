// Package reconcile queues webhook deliveries whose side effects failed and
// replays them through the entitlement state machine.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/popules/ticko-sub001/app/entitlement"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

// Message is the queued record of one failed delivery.
type Message struct {
	Delivery   entitlement.Delivery `json:"delivery"`
	FailedStep string               `json:"failed_step"`
	Error      string               `json:"error"`
	FailedAt   time.Time            `json:"failed_at"`
}

// NewMessage describes err for d, pulling the failed step out of a StepError.
func NewMessage(d entitlement.Delivery, err error, at time.Time) Message {
	msg := Message{Delivery: d, FailedAt: at.UTC()}
	if err != nil {
		msg.Error = err.Error()
	}
	var stepErr *entitlement.StepError
	if errors.As(err, &stepErr) {
		msg.FailedStep = stepErr.Step
	}
	return msg
}

// SQSAPI is the subset of *sqs.Client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// NewSQSClient builds an SQS client from the default AWS credential chain.
func NewSQSClient(ctx context.Context) (*sqs.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg), nil
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// NewPublisher returns an SQS publisher for queueURL, or a logging no-op when
// no queue is configured.
func NewPublisher(ctx context.Context, queueURL string, log *zap.Logger) (Publisher, error) {
	if queueURL == "" {
		log.Info("reconcile queue disabled: RECONCILE_QUEUE_URL not set")
		return NopPublisher{log: log}, nil
	}
	client, err := NewSQSClient(ctx)
	if err != nil {
		return nil, err
	}
	return NewSQSPublisher(client, queueURL, log), nil
}

type SQSPublisher struct {
	client   SQSAPI
	queueURL string
	log      *zap.Logger
}

func NewSQSPublisher(client SQSAPI, queueURL string, log *zap.Logger) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL, log: log}
}

func (p *SQSPublisher) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode reconcile message: %w", err)
	}
	out, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send reconcile message: %w", err)
	}
	p.log.Info("queued delivery for reconcile",
		zap.String("webhook_id", msg.Delivery.WebhookID),
		zap.String("failed_step", msg.FailedStep),
		zap.String("message_id", aws.ToString(out.MessageId)),
	)
	return nil
}

// NopPublisher only logs; used when no reconcile queue is configured.
type NopPublisher struct {
	log *zap.Logger
}

func NewNopPublisher(log *zap.Logger) NopPublisher {
	return NopPublisher{log: log}
}

func (p NopPublisher) Publish(_ context.Context, msg Message) error {
	p.log.Warn("reconcile queue not configured, dropping failed delivery",
		zap.String("webhook_id", msg.Delivery.WebhookID),
		zap.String("event_type", msg.Delivery.Event.Type),
		zap.String("failed_step", msg.FailedStep),
		zap.String("error", msg.Error),
	)
	return nil
}
