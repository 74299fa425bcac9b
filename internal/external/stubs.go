package external

import (
	"context"
	"log/slog"

	"habitpulse/internal/types"
)

// LogPushSender implements types.PushSender by logging each message and
// reporting it as delivered. Used when PUSH_PROVIDER=log so the service runs
// locally without FCM credentials.
type LogPushSender struct {
	logger *slog.Logger
}

func NewLogPushSender(logger *slog.Logger) *LogPushSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPushSender{logger: logger}
}

func (s *LogPushSender) SendBatch(ctx context.Context, msgs []types.PushMessage) (types.BatchResult, error) {
	for _, m := range msgs {
		s.logger.InfoContext(ctx, "stub: push message",
			"token_suffix", tokenSuffix(m.Token),
			"title", m.Title,
			"data", m.Data,
		)
	}
	return types.BatchResult{SuccessCount: len(msgs)}, nil
}

func tokenSuffix(token string) string {
	if len(token) <= 6 {
		return token
	}
	return "..." + token[len(token)-6:]
}
