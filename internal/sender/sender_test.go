package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedwagon-io/skbridge/internal/model"
)

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	s := NewLogSender(log, "marine_system")

	require.NoError(t, s.Send(context.Background(), "environment.rpi.cpu.usage", 42.5))
	assert.NoError(t, s.Health(context.Background()))

	var entry struct {
		Msg     string  `json:"msg"`
		Path    string  `json:"path"`
		Value   float64 `json:"value"`
		Payload string  `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "SEND", entry.Msg)
	assert.Equal(t, "environment.rpi.cpu.usage", entry.Path)
	assert.Equal(t, 42.5, entry.Value)

	env, err := model.EnvelopeFromJSON([]byte(entry.Payload))
	require.NoError(t, err)
	assert.Equal(t, "marine_system", env.Updates[0].Source.Label)
}
