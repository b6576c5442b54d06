package resource

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"hradmin/internal/domain/store"
)

// Workspaces keeps the managers of each signed-in session between requests.
// A session's managers are dropped when it signs out or stays idle longer
// than the idle TTL.
type Workspaces struct {
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*workspace
}

type workspace struct {
	managers map[string]io.Closer
	lastSeen time.Time
}

func NewWorkspaces(idleTTL time.Duration) *Workspaces {
	return &Workspaces{idleTTL: idleTTL, now: time.Now, entries: map[string]*workspace{}}
}

// Open returns the manager of kind for sessionID, building it on first use.
func Open[K Entity](ws *Workspaces, sessionID string, kind Kind[K], build func() *Manager[K]) (*Manager[K], error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	entry, ok := ws.entries[sessionID]
	if !ok {
		entry = &workspace{managers: map[string]io.Closer{}}
		ws.entries[sessionID] = entry
	}
	entry.lastSeen = ws.now()

	if existing, ok := entry.managers[kind.Name]; ok {
		m, ok := existing.(*Manager[K])
		if !ok {
			return nil, fmt.Errorf("workspace holds %T for kind %s", existing, kind.Name)
		}
		return m, nil
	}
	m := build()
	entry.managers[kind.Name] = m
	return m, nil
}

// Evict drops the workspace of sessionID and reports whether one existed.
func (ws *Workspaces) Evict(sessionID string) bool {
	ws.mu.Lock()
	entry, ok := ws.entries[sessionID]
	delete(ws.entries, sessionID)
	ws.mu.Unlock()
	if ok {
		closeAll(entry)
	}
	return ok
}

// Sweep drops every workspace idle for longer than the idle TTL and returns
// how many were dropped.
func (ws *Workspaces) Sweep() int {
	if ws.idleTTL <= 0 {
		return 0
	}
	cutoff := ws.now().Add(-ws.idleTTL)
	var stale []*workspace
	ws.mu.Lock()
	for id, entry := range ws.entries {
		if entry.lastSeen.Before(cutoff) {
			stale = append(stale, entry)
			delete(ws.entries, id)
		}
	}
	ws.mu.Unlock()
	for _, entry := range stale {
		closeAll(entry)
	}
	return len(stale)
}

func (ws *Workspaces) Len() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return len(ws.entries)
}

// EvictOnSignOut subscribes to sessions and drops a workspace as soon as its
// session signs out.
func (ws *Workspaces) EvictOnSignOut(subscribe func(func(store.SessionEvent)) store.Subscription) store.Subscription {
	return subscribe(func(evt store.SessionEvent) {
		if evt.Type != store.EventSignedOut {
			return
		}
		if ws.Evict(evt.SessionID) {
			slog.Debug("workspace evicted on sign-out", "sessionId", evt.SessionID)
		}
	})
}

// Close drops every workspace.
func (ws *Workspaces) Close() {
	ws.mu.Lock()
	entries := ws.entries
	ws.entries = map[string]*workspace{}
	ws.mu.Unlock()
	for _, entry := range entries {
		closeAll(entry)
	}
}

func closeAll(entry *workspace) {
	for _, m := range entry.managers {
		_ = m.Close()
	}
}
