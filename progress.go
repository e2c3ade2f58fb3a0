package main

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// ChannelSink delivers events on a buffered channel and drops them when the
// reader falls behind. A terminal event evicts the oldest pending event
// instead of being dropped.
type ChannelSink struct {
	events  chan ProgressEvent
	dropped atomic.Int64
}

// NewChannelSink creates a sink with room for size pending events
func NewChannelSink(size int) *ChannelSink {
	if size < 1 {
		size = 1
	}
	return &ChannelSink{events: make(chan ProgressEvent, size)}
}

func (s *ChannelSink) Emit(e ProgressEvent) {
	select {
	case s.events <- e:
		return
	default:
	}
	if e.Stage != StageCompleted && e.Stage != StageFailed {
		s.dropped.Add(1)
		return
	}
	// make room for the terminal event by discarding the oldest pending one
	select {
	case <-s.events:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.events <- e:
	default:
		s.dropped.Add(1)
	}
}

// Events returns the receive side of the sink
func (s *ChannelSink) Events() <-chan ProgressEvent { return s.events }

// Dropped reports how many events were discarded
func (s *ChannelSink) Dropped() int64 { return s.dropped.Load() }

// LogSink writes progress events to a logger
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that logs every event at info level
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(e ProgressEvent) {
	fields := []zap.Field{
		zap.String("run_id", e.RunID),
		zap.String("operation", e.Operation),
		zap.String("stage", string(e.Stage)),
		zap.Int("processed", e.Processed),
		zap.Int("total", e.Total),
		zap.Int("uploaded", e.Uploaded),
		zap.Int("duplicate", e.Duplicate),
		zap.Int("failed", e.Failed),
		zap.Duration("elapsed", e.Elapsed),
	}
	if e.Current != "" {
		fields = append(fields, zap.String("current", e.Current))
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}
	s.logger.Info("progress", fields...)
}
