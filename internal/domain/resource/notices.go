package resource

import (
	"sync"
	"time"
)

type Notices struct {
	Error   string `json:"error,omitempty"`
	Success string `json:"success,omitempty"`
}

// notifier holds at most one error and one success message. A success
// message clears itself after ttl; a newer one replaces it and restarts the
// countdown.
type notifier struct {
	mu      sync.Mutex
	ttl     time.Duration
	current Notices
	timer   *time.Timer
	gen     uint64
}

func (n *notifier) snapshot() Notices {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *notifier) clearError() {
	n.mu.Lock()
	n.current.Error = ""
	n.mu.Unlock()
}

func (n *notifier) fail(msg string) {
	n.mu.Lock()
	n.current.Error = msg
	n.mu.Unlock()
}

func (n *notifier) succeed(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current.Success = msg
	n.gen++
	gen := n.gen
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.ttl, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.gen == gen {
			n.current.Success = ""
			n.timer = nil
		}
	})
}

func (n *notifier) stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gen++
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}
