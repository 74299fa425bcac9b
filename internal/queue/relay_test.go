package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitpulse/internal/types"
)

type mockSQSSender struct {
	calls []*sqs.SendMessageInput
	err   error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/delivery"

func TestDelaySeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int32
	}{
		{-time.Minute, 0},
		{0, 0},
		{1500 * time.Millisecond, 2},
		{10 * time.Second, 10},
		{15 * time.Minute, 900},
		{time.Hour, 900},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, delaySeconds(tt.in))
		})
	}
}

func TestSQSSink_Dispatch(t *testing.T) {
	mock := &mockSQSSender{}
	sink := NewSQSSink(mock, testQueueURL, fixedClock{workerNow}, nil)
	task := types.ScheduledTask{ID: "t-1", FireAt: workerNow.Add(90 * time.Second)}

	require.NoError(t, sink.Dispatch(context.Background(), task))
	require.Len(t, mock.calls, 1)

	call := mock.calls[0]
	assert.Equal(t, testQueueURL, *call.QueueUrl)
	assert.Equal(t, int32(90), call.DelaySeconds)
	assert.Equal(t, "t-1", *call.MessageAttributes["task_id"].StringValue)

	var msg TaskMessage
	require.NoError(t, json.Unmarshal([]byte(*call.MessageBody), &msg))
	assert.Equal(t, "t-1", msg.TaskID)
	assert.True(t, msg.FireAt.Equal(task.FireAt))
}

func TestSQSSink_DispatchError(t *testing.T) {
	sink := NewSQSSink(&mockSQSSender{err: errBoom}, testQueueURL, fixedClock{workerNow}, nil)
	err := sink.Dispatch(context.Background(), types.ScheduledTask{ID: "t-1"})
	require.Error(t, err)
	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeUpstreamQueue, appErr.Code)
}

func TestRelay_DispatchesOnlyWithinHorizon(t *testing.T) {
	store := newMemStore()
	soon := seedTask(t, store, workerNow.Add(5*time.Minute))
	later := seedTask(t, store, workerNow.Add(2*time.Hour))
	mock := &mockSQSSender{}

	relay := NewRelay(store, NewSQSSink(mock, testQueueURL, fixedClock{workerNow}, nil),
		fixedClock{workerNow}, RelayConfig{Lookahead: 15 * time.Minute}, nil)

	n, err := relay.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, mock.calls, 1)
	assert.Equal(t, int32(300), mock.calls[0].DelaySeconds)
	assert.Equal(t, types.TaskStatusDispatched, store.status(soon))
	assert.Equal(t, types.TaskStatusPending, store.status(later))
}

func TestRelay_DrainsInBatches(t *testing.T) {
	store := newMemStore()
	for i := 0; i < 5; i++ {
		seedTask(t, store, workerNow.Add(time.Duration(-i)*time.Minute))
	}
	mock := &mockSQSSender{}
	relay := NewRelay(store, NewSQSSink(mock, testQueueURL, fixedClock{workerNow}, nil),
		fixedClock{workerNow}, RelayConfig{BatchSize: 2}, nil)

	n, err := relay.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, mock.calls, 5)
}

func TestRelay_FailedDispatchIsRequeued(t *testing.T) {
	store := newMemStore()
	id := seedTask(t, store, workerNow)
	relay := NewRelay(store, NewSQSSink(&mockSQSSender{err: errBoom}, testQueueURL, fixedClock{workerNow}, nil),
		fixedClock{workerNow}, RelayConfig{}, nil)

	n, err := relay.Run(context.Background())
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{id}, store.requeued)
	assert.Equal(t, types.TaskStatusPending, store.status(id))
}

func TestRelay_ClaimError(t *testing.T) {
	store := newMemStore()
	store.claimErr = fmt.Errorf("connection refused")
	relay := NewRelay(store, NewSQSSink(&mockSQSSender{}, testQueueURL, fixedClock{workerNow}, nil),
		fixedClock{workerNow}, RelayConfig{}, nil)

	_, err := relay.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRelay_DirectSinkExecutesDueTasks(t *testing.T) {
	store := newMemStore()
	due := seedTask(t, store, workerNow.Add(-time.Second))
	notYet := seedTask(t, store, workerNow.Add(time.Minute))
	invoker := &fakeInvoker{result: types.DeliveryResult{Status: types.DeliveryStatusSent, Sent: 1}}
	worker := NewWorker(store, invoker, fixedClock{workerNow}, nil)

	relay := NewRelay(store, NewDirectSink(worker), fixedClock{workerNow}, RelayConfig{}, nil)
	n, err := relay.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, invoker.calls, 1)

	_, err = store.Get(context.Background(), due)
	assert.True(t, types.IsNotFound(err))
	assert.Equal(t, types.TaskStatusPending, store.status(notYet))
}
