package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"habitpulse/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSink publishes claimed tasks to the delivery queue with a per-message
// delay so each becomes visible at its fire time.
type SQSSink struct {
	client   SQSSender
	queueURL string
	clock    types.Clock
	logger   *slog.Logger
}

func NewSQSSink(client SQSSender, queueURL string, clock types.Clock, logger *slog.Logger) *SQSSink {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSSink{client: client, queueURL: queueURL, clock: clock, logger: logger}
}

func (s *SQSSink) Dispatch(ctx context.Context, task types.ScheduledTask) error {
	body, err := json.Marshal(TaskMessage{TaskID: task.ID, FireAt: task.FireAt})
	if err != nil {
		return fmt.Errorf("queue: failed to marshal TaskMessage: %w", err)
	}

	delay := delaySeconds(task.FireAt.Sub(s.clock.Now()))
	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(s.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delay,
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"task_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(task.ID),
			},
		},
	}

	if _, err := s.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue, fmt.Sprintf("failed to send task %s to delivery queue", task.ID), err)
	}

	s.logger.InfoContext(ctx, "task relayed to delivery queue",
		"task_id", task.ID,
		"fire_at", task.FireAt,
		"delay_seconds", delay,
	)
	return nil
}

// delaySeconds clamps d to the [0, 900] second range SQS accepts, rounding
// up so a message never becomes visible before its fire time.
func delaySeconds(d time.Duration) int32 {
	if d <= 0 {
		return 0
	}
	if d >= maxSQSDelay {
		return int32(maxSQSDelay / time.Second)
	}
	secs := d / time.Second
	if d%time.Second != 0 {
		secs++
	}
	return int32(secs)
}
