package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/popules/ticko-sub001/app/entitlement"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

// Applier replays a delivery. *entitlement.Machine satisfies it.
type Applier interface {
	Apply(ctx context.Context, d entitlement.Delivery) (entitlement.Result, error)
}

type Worker struct {
	client     SQSAPI
	queueURL   string
	applier    Applier
	log        *zap.Logger
	jobTimeout time.Duration
	idleWait   time.Duration
	errorWait  time.Duration
}

func NewWorker(client SQSAPI, queueURL string, applier Applier, log *zap.Logger) *Worker {
	return &Worker{
		client:     client,
		queueURL:   queueURL,
		applier:    applier,
		log:        log,
		jobTimeout: 30 * time.Second,
		idleWait:   2 * time.Second,
		errorWait:  5 * time.Second,
	}
}

// Run long-polls the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("reconcile worker started", zap.String("queue_url", w.queueURL))
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		recvCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		resp, err := w.client.ReceiveMessage(recvCtx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(w.queueURL),
			MaxNumberOfMessages: 5,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   120,
		})
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Error("receive message failed", zap.Error(err))
			w.sleep(ctx, w.errorWait)
			continue
		}
		if len(resp.Messages) == 0 {
			w.sleep(ctx, w.idleWait)
			continue
		}

		for _, m := range resp.Messages {
			if w.HandleMessage(ctx, m) {
				w.deleteMessage(ctx, m)
			}
		}
	}
}

// HandleMessage replays one queued delivery and reports whether the message
// should be deleted. Transient failures keep it for SQS redelivery.
func (w *Worker) HandleMessage(ctx context.Context, m sqstypes.Message) bool {
	if m.Body == nil {
		w.log.Warn("received message with empty body", zap.String("message_id", aws.ToString(m.MessageId)))
		return true
	}

	var msg Message
	if err := json.Unmarshal([]byte(*m.Body), &msg); err != nil {
		w.log.Error("undecodable reconcile message", zap.Error(err), zap.String("body", *m.Body))
		return true
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()
	res, err := w.applier.Apply(jobCtx, msg.Delivery)
	switch {
	case errors.Is(err, entitlement.ErrMissingUserID):
		w.log.Error("dropping reconcile message without user id", zap.String("webhook_id", msg.Delivery.WebhookID))
		return true
	case err != nil:
		w.log.Error("reconcile replay failed",
			zap.String("webhook_id", msg.Delivery.WebhookID),
			zap.String("first_failed_step", msg.FailedStep),
			zap.Error(err),
		)
		return false
	}

	w.log.Info("reconciled delivery",
		zap.String("webhook_id", msg.Delivery.WebhookID),
		zap.String("user_id", res.UserID),
		zap.String("outcome", string(res.Outcome)),
	)
	return true
}

func (w *Worker) deleteMessage(ctx context.Context, m sqstypes.Message) {
	if m.ReceiptHandle == nil {
		return
	}
	_, err := w.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(w.queueURL),
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		w.log.Error("delete message failed", zap.Error(err))
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
