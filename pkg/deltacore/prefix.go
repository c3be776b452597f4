package deltacore

import (
	golog "klipper-go-migration/pkg/log"
)

// prefixStack is a scoped wrapper around log.Logger.WithPrefix that
// reproduces the original engine's LIFO "method prefix stack" (a
// presentation affordance to keep user-visible log lines short) without
// the original's manual push/pop bookkeeping: each subsystem pushes a
// two-character tag on entry and the returned pop function restores the
// caller's logger on every exit path, including panics, when deferred.
type prefixStack struct {
	current *golog.Logger
	saved   []*golog.Logger
}

// newPrefixStack wraps a base logger for a component's lifetime.
func newPrefixStack(base *golog.Logger) *prefixStack {
	return &prefixStack{current: base}
}

// push applies tag as the new active prefix and returns a pop function
// that must be deferred by the caller to restore the prior logger.
func (s *prefixStack) push(tag string) (logger *golog.Logger, pop func()) {
	s.saved = append(s.saved, s.current)
	s.current = s.current.WithPrefix(tag)
	return s.current, func() {
		n := len(s.saved)
		s.current = s.saved[n-1]
		s.saved = s.saved[:n-1]
	}
}

// logger returns the currently active logger.
func (s *prefixStack) logger() *golog.Logger { return s.current }
