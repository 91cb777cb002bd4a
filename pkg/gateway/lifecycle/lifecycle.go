// Package lifecycle holds the process draining flag shared between the
// readiness probe and the live WebSocket handler.
package lifecycle

import "sync/atomic"

// Lifecycle flips to draining during graceful shutdown: readiness goes
// 503 and new live sessions are refused while established bridges keep
// running until they end or are canceled.
type Lifecycle struct {
	draining atomic.Bool
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
