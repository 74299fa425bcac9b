package queue

import (
	"context"

	"habitpulse/internal/types"
)

// DirectSink executes tasks in-process through a Worker. Used by local and
// single-binary deployments that have no SQS queue; pair it with a zero
// relay lookahead so tasks run only once due.
type DirectSink struct {
	worker *Worker
}

func NewDirectSink(worker *Worker) *DirectSink {
	return &DirectSink{worker: worker}
}

func (s *DirectSink) Dispatch(ctx context.Context, task types.ScheduledTask) error {
	_, _, err := s.worker.Process(ctx, task.ID)
	return err
}
