// Package main is the entrypoint for the Delivery Worker Lambda function.
//
// The relay publishes one SQS message per due task, delayed until the
// task's fire time. For each message the worker loads the task, posts its
// payload to the delivery callback with the task's bearer token and deletes
// the task once the callback answers 2xx.
//
// Failed messages are reported in batchItemFailures so SQS retries only
// those. Unparseable messages and tasks that no longer exist are acked.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"habitpulse/internal/app"
	"habitpulse/internal/db"
	"habitpulse/internal/external"
	"habitpulse/internal/queue"
	"habitpulse/internal/types"
)

// TaskProcessor runs one task. Satisfied by *queue.Worker.
type TaskProcessor interface {
	Process(ctx context.Context, taskID string) (types.DeliveryResult, bool, error)
}

type Handler struct {
	worker TaskProcessor
	logger types.Logger
}

// Handle processes an SQS batch. Each message is independent.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			if errors.Is(err, queue.ErrTaskNotDue) {
				h.logger.Warn("task message arrived early, retrying",
					"message_id", record.MessageId,
					"error", err.Error(),
				)
			} else {
				h.logger.Error("failed to process task message",
					"message_id", record.MessageId,
					"error", err.Error(),
				)
			}
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var msg queue.TaskMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		// Permanent: a retry cannot fix the body.
		h.logger.Error("failed to unmarshal task message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		return nil
	}
	if msg.TaskID == "" {
		h.logger.Error("task message without task_id", "message_id", record.MessageId)
		return nil
	}

	logger := h.logger.With("task_id", msg.TaskID, "message_id", record.MessageId)

	result, executed, err := h.worker.Process(ctx, msg.TaskID)
	if err != nil {
		return fmt.Errorf("task %s: %w", msg.TaskID, err)
	}
	if !executed {
		logger.Info("task cancelled before delivery, acking")
		return nil
	}

	logger.Info("task delivered",
		"status", string(result.Status),
		"sent", result.Sent,
		"failed", result.Failed,
	)
	return nil
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("Delivery Worker Lambda initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	pool, err := app.OpenPool(context.Background(), cfg.Database)
	if err != nil {
		logger.Error("failed to open database pool", "error", err)
		os.Exit(1)
	}

	worker := queue.NewWorker(
		db.NewTaskRepository(pool),
		external.NewCallbackClient(cfg.Server.RequestTimeout),
		types.RealClock{},
		logger,
	)

	handler := &Handler{
		worker: worker,
		logger: types.NewSlogAdapter(logger),
	}

	logger.Info("Delivery Worker Lambda initialized")
	lambda.Start(handler.Handle)
}
