package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/speedwagon-io/skbridge/internal/model"
)

// LogSender logs envelopes instead of streaming them to the hub (dry-run).
type LogSender struct {
	log   *slog.Logger
	label string
}

func NewLogSender(log *slog.Logger, label string) *LogSender {
	return &LogSender{
		log:   log.With(slog.String("component", "sender")),
		label: label,
	}
}

func (s *LogSender) Send(ctx context.Context, path string, value any) error {
	data, err := model.NewEnvelope(s.label, model.NewSample(path, value)).ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	s.log.Info("SEND",
		slog.String("path", path),
		slog.Any("value", value),
		slog.String("payload", string(data)),
	)

	return nil
}

func (s *LogSender) Health(ctx context.Context) error {
	return nil
}
