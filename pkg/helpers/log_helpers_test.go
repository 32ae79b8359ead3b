package helpers

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestWatermillAdapterWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.TraceLevel)
	adapter := NewWatermill(logger).With(watermill.LogFields{"component": "router"})

	adapter.Info("started", watermill.LogFields{"topic": "chat"})
	adapter.Error("failed", errors.New("boom"), nil)

	out := buf.String()
	assert.Contains(t, out, `"level":"debug"`)
	assert.Contains(t, out, `"component":"router"`)
	assert.Contains(t, out, `"topic":"chat"`)
	assert.Contains(t, out, `"error":"boom"`)
}
