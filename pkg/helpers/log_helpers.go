package helpers

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// WatermillZerologAdapter routes watermill's logging to a zerolog logger.
type WatermillZerologAdapter struct {
	logger zerolog.Logger
}

func (w *WatermillZerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	w.logger.Error().Fields(map[string]interface{}(fields)).Err(err).Msg(msg)
}

func (w *WatermillZerologAdapter) Info(msg string, fields watermill.LogFields) {
	// map INFO to DEBUG because watermill is chatty
	w.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (w *WatermillZerologAdapter) Debug(msg string, fields watermill.LogFields) {
	w.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (w *WatermillZerologAdapter) Trace(msg string, fields watermill.LogFields) {
	w.logger.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (w *WatermillZerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	l := w.logger.With().Fields(map[string]interface{}(fields)).Logger()
	return &WatermillZerologAdapter{logger: l}
}

func NewWatermill(logger zerolog.Logger) *WatermillZerologAdapter {
	return &WatermillZerologAdapter{logger: logger}
}

var _ watermill.LoggerAdapter = &WatermillZerologAdapter{}
