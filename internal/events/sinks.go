package events

import (
	"gostudio/domain/event"
	"gostudio/internal"
	"gostudio/ports"
)

// Nop discards every event
type Nop struct{}

func (Nop) Publish(event.Event) {}

// LogSink writes events to the leveled logger
type LogSink struct {
	logger *internal.Logger
}

// NewLogSink creates a sink on logger, or on the default logger when nil
func NewLogSink(logger *internal.Logger) *LogSink {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &LogSink{logger: logger}
}

// Publish logs failures as warnings and everything else at info
func (s *LogSink) Publish(e event.Event) {
	switch {
	case e.Type == event.StepFailed:
		s.logger.Warn("[Events] %s %s step %s (%s): %s", e.SessionID, e.Type, e.StepID, e.Operation, e.Error)
	case e.StepID != "":
		s.logger.Info("[Events] %s %s step %s (%s) %s", e.SessionID, e.Type, e.StepID, e.Operation, e.Summary)
	case e.Phase != "":
		s.logger.Info("[Events] %s %s -> %s", e.SessionID, e.Type, e.Phase)
	default:
		s.logger.Info("[Events] %s %s %s", e.SessionID, e.Type, e.Summary)
	}
}

// FanOut publishes every event to each sink in order
type FanOut []ports.EventSink

// NewFanOut drops nil sinks
func NewFanOut(sinks ...ports.EventSink) FanOut {
	out := make(FanOut, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f FanOut) Publish(e event.Event) {
	for _, s := range f {
		s.Publish(e)
	}
}
