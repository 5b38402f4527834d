// Package notify provides session.Notifier implementations.
package notify

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tyemirov/tripauth/internal/session"
)

// LogNotifier writes notices to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier; nil logs nowhere.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs notice. Failures log at warn, everything else at info.
func (notifier *LogNotifier) Notify(notice session.Notice) {
	fields := []zap.Field{zap.String("code", "notice."+string(notice.Kind))}
	if notice.Remaining > 0 {
		fields = append(fields, zap.Duration("remaining", notice.Remaining))
	}
	if notice.Err != nil {
		fields = append(fields, zap.Error(notice.Err))
		notifier.logger.Warn(notice.Message, fields...)
		return
	}
	notifier.logger.Info(notice.Message, fields...)
}

// ChannelNotifier buffers notices for a UI loop. When the buffer is full the
// notice is dropped and counted.
type ChannelNotifier struct {
	notices chan session.Notice

	mutex   sync.Mutex
	dropped int
}

// NewChannelNotifier constructs a ChannelNotifier with the given buffer.
func NewChannelNotifier(buffer int) *ChannelNotifier {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelNotifier{notices: make(chan session.Notice, buffer)}
}

// Notify enqueues notice without blocking.
func (notifier *ChannelNotifier) Notify(notice session.Notice) {
	select {
	case notifier.notices <- notice:
	default:
		notifier.mutex.Lock()
		notifier.dropped++
		notifier.mutex.Unlock()
	}
}

// Notices is the receive side.
func (notifier *ChannelNotifier) Notices() <-chan session.Notice {
	return notifier.notices
}

// Dropped returns how many notices were discarded.
func (notifier *ChannelNotifier) Dropped() int {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	return notifier.dropped
}

// Fanout forwards every notice to each notifier in order.
type Fanout []session.Notifier

// Notify forwards notice.
func (fanout Fanout) Notify(notice session.Notice) {
	for _, notifier := range fanout {
		if notifier != nil {
			notifier.Notify(notice)
		}
	}
}
