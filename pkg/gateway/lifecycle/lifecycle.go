// Package lifecycle holds the process-wide drain flag. Handlers consult
// it so readiness flips and new sockets are refused while in-flight
// engagements finish.
package lifecycle

import "sync/atomic"

type Lifecycle struct {
	draining atomic.Bool
}

// SetDraining flips the drain flag. Safe on a nil receiver.
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
