package resource

import (
	"testing"
	"time"

	"hradmin/internal/domain/store"
	"hradmin/internal/domain/store/memory"
)

func TestWorkspacesReuseManagers(t *testing.T) {
	b := memory.New("workspace-secret", time.Hour)
	ws := NewWorkspaces(time.Minute)
	builds := 0
	build := func() *Manager[dept] {
		builds++
		return NewManager(b.Client(""), deptKind)
	}

	first, err := Open(ws, "s1", deptKind, build)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	second, _ := Open(ws, "s1", deptKind, build)
	other, _ := Open(ws, "s2", deptKind, build)
	if first != second {
		t.Fatal("expected the same manager for the same session")
	}
	if first == other || builds != 2 {
		t.Fatalf("expected one manager per session, got %d builds", builds)
	}

	if !ws.Evict("s1") || ws.Evict("s1") {
		t.Fatal("evict should report only the first removal")
	}
	if ws.Len() != 1 {
		t.Fatalf("expected one workspace left, got %d", ws.Len())
	}
}

func TestWorkspacesSweepIdle(t *testing.T) {
	b := memory.New("workspace-secret", time.Hour)
	ws := NewWorkspaces(10 * time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ws.now = func() time.Time { return now }
	build := func() *Manager[dept] { return NewManager(b.Client(""), deptKind) }

	_, _ = Open(ws, "idle", deptKind, build)
	now = now.Add(8 * time.Minute)
	_, _ = Open(ws, "active", deptKind, build)
	now = now.Add(5 * time.Minute)

	if removed := ws.Sweep(); removed != 1 {
		t.Fatalf("expected one idle workspace swept, got %d", removed)
	}
	if ws.Len() != 1 {
		t.Fatalf("expected active workspace kept, got %d", ws.Len())
	}
}

func TestWorkspacesEvictOnSignOut(t *testing.T) {
	b := memory.New("workspace-secret", time.Hour)
	ws := NewWorkspaces(time.Minute)
	sub := ws.EvictOnSignOut(b.Subscribe)
	defer sub.Unsubscribe()

	_, _ = Open(ws, "s1", deptKind, func() *Manager[dept] { return NewManager(b.Client(""), deptKind) })
	b.Hub().Publish(store.SessionEvent{Type: store.EventSignedIn, SessionID: "s1"})
	if ws.Len() != 1 {
		t.Fatal("sign-in must not evict")
	}
	b.Hub().Publish(store.SessionEvent{Type: store.EventSignedOut, SessionID: "s1"})
	if ws.Len() != 0 {
		t.Fatal("expected workspace evicted on sign-out")
	}
}
