package redisstream

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

type zerologAdapter struct {
	logger zerolog.Logger
	fields watermill.LogFields
}

// NewWatermillLogger adapts a zerolog logger to watermill's LoggerAdapter.
// Watermill info messages are logged at debug level.
func NewWatermillLogger(logger zerolog.Logger) watermill.LoggerAdapter {
	return &zerologAdapter{logger: logger.With().Str("component", "watermill").Logger()}
}

func (a *zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.withFields(a.logger.Error().Err(err), fields).Msg(msg)
}

func (a *zerologAdapter) Info(msg string, fields watermill.LogFields) {
	a.withFields(a.logger.Debug(), fields).Msg(msg)
}

func (a *zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	a.withFields(a.logger.Debug(), fields).Msg(msg)
}

func (a *zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	a.withFields(a.logger.Trace(), fields).Msg(msg)
}

func (a *zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &zerologAdapter{logger: a.logger, fields: a.fields.Add(fields)}
}

func (a *zerologAdapter) withFields(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	merged := a.fields.Add(fields)
	if len(merged) == 0 {
		return e
	}
	return e.Fields(map[string]interface{}(merged))
}
