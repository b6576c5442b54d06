package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/store"
	"hradmin/internal/domain/store/memory"
)

const testSecret = "session-test-secret"

type stubClient struct {
	store.Client
	gate       chan struct{}
	sessionErr error
	signOuts   atomic.Int32
	queries    atomic.Int32
	// held receives once a profile lookup has read its row; the lookup then
	// waits for hold to be closed before returning.
	held chan struct{}
	hold chan struct{}
}

func (c *stubClient) GetSession(ctx context.Context) (*store.Session, error) {
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.sessionErr != nil {
		return nil, c.sessionErr
	}
	return c.Client.GetSession(ctx)
}

func (c *stubClient) SignOut(ctx context.Context) error {
	c.signOuts.Add(1)
	return c.Client.SignOut(ctx)
}

func (c *stubClient) QueryOne(ctx context.Context, table string, filters ...store.Filter) (store.Row, error) {
	c.queries.Add(1)
	row, err := c.Client.QueryOne(ctx, table, filters...)
	if c.hold != nil {
		c.held <- struct{}{}
		<-c.hold
	}
	return row, err
}

func signIn(t *testing.T, b *memory.Backend, email string, role auth.Role) (*store.Session, string) {
	t.Helper()
	ctx := context.Background()
	if _, err := b.CreateUser(ctx, email, "Password123", store.Row{"name": email, "role": string(role)}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	sess, token, err := b.SignIn(ctx, email, "Password123")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	return sess, token
}

func waitState(t *testing.T, ac *AuthContext) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := ac.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	return state
}

func TestAnonymousCallerResolvesWithoutRole(t *testing.T) {
	b := memory.New(testSecret, time.Hour)
	ac := New(b.Client(""))
	defer ac.Close()

	if !ac.Snapshot().Loading {
		t.Fatal("expected loading before start")
	}
	if err := ac.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	state := waitState(t, ac)
	if state.Loading || state.SignedIn() || state.Role != auth.RoleNone {
		t.Fatalf("unexpected state: %+v", state)
	}
	if state.Home() != auth.LoginPath {
		t.Fatalf("expected login home, got %s", state.Home())
	}
}

func TestSignedInAdminResolvesRole(t *testing.T) {
	b := memory.New(testSecret, time.Hour)
	sess, token := signIn(t, b, "admin@example.com", auth.RoleAdmin)

	ac := New(b.Client(token))
	defer ac.Close()
	if err := ac.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	state := waitState(t, ac)
	if state.UserID() != sess.UserID {
		t.Fatalf("expected user %s, got %+v", sess.UserID, state)
	}
	if state.Role != auth.RoleAdmin || state.Home() != auth.HomeAdmin {
		t.Fatalf("expected admin, got %s", state.Role)
	}
	if ac.Err() != nil {
		t.Fatalf("unexpected session error: %v", ac.Err())
	}
}

func TestMissingProfileMeansNoRole(t *testing.T) {
	b := memory.New(testSecret, time.Hour)
	sess, token := signIn(t, b, "ghost@example.com", auth.RoleAdmin)
	if err := b.Client(token).Delete(context.Background(), store.TableProfiles, sess.UserID); err != nil {
		t.Fatalf("delete profile: %v", err)
	}

	ac := New(b.Client(token))
	defer ac.Close()
	_ = ac.Start(context.Background())
	state := waitState(t, ac)
	if !state.SignedIn() || state.Role != auth.RoleNone {
		t.Fatalf("expected signed in without role, got %+v", state)
	}
	if state.Home() != auth.HomeEmployee {
		t.Fatalf("expected employee home for missing role, got %s", state.Home())
	}
}

func TestRoleLookupFailureIsNotFatal(t *testing.T) {
	b := memory.New(testSecret, time.Hour)
	_, token := signIn(t, b, "emp@example.com", auth.RoleAdmin)
	b.Fail("query_one", store.TableProfiles, errors.New("connection reset"))

	ac := New(b.Client(token))
	defer ac.Close()
	_ = ac.Start(context.Background())
	state := waitState(t, ac)
	if !state.SignedIn() || state.Role != auth.RoleNone {
		t.Fatalf("expected role none after lookup failure, got %+v", state)
	}
	if ac.Err() != nil {
		t.Fatalf("role failure must not be a session error: %v", ac.Err())
	}
}

func TestSessionErrorForcesSignOut(t *testing.T) {
	b := memory.New(testSecret, time.Hour)
	_, token := signIn(t, b, "admin@example.com", auth.RoleAdmin)
	client := &stubClient{Client: b.Client(token), sessionErr: store.Wrap("get_session", "", store.ErrInvalidSession)}

	ac := New(client)
	defer ac.Close()
	_ = ac.Start(context.Background())
	state := waitState(t, ac)
	if state.SignedIn() || state.Role != auth.RoleNone {
		t.Fatalf("expected cleared state, got %+v", state)
	}
	if client.signOuts.Load() != 1 {
		t.Fatalf("expected one forced sign-out, got %d", client.signOuts.Load())
	}
	var serr *SessionError
	if !errors.As(ac.Err(), &serr) || !errors.Is(serr, store.ErrInvalidSession) {
		t.Fatalf("expected session error, got %v", ac.Err())
	}
}

func TestLastStartedResolutionWins(t *testing.T) {
	b := memory.New(testSecret, time.Hour)
	sess, token := signIn(t, b, "admin@example.com", auth.RoleAdmin)
	client := &stubClient{Client: b.Client(token), gate: make(chan struct{})}

	outcomes := make(chan string, 4)
	ac := New(client, WithObserver(func(outcome string) { outcomes <- outcome }))
	defer ac.Close()
	if err := ac.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The initial lookup is parked on the gate; a sign-out notification
	// starts later and finishes first.
	b.Hub().Publish(store.SessionEvent{Type: store.EventSignedOut, SessionID: sess.ID, UserID: sess.UserID})
	state := waitState(t, ac)
	if state.SignedIn() {
		t.Fatalf("expected notification result, got %+v", state)
	}
	if got := <-outcomes; got != OutcomeAnonymous {
		t.Fatalf("expected anonymous outcome, got %s", got)
	}

	close(client.gate)
	select {
	case got := <-outcomes:
		if got != OutcomeStale {
			t.Fatalf("expected stale initial lookup, got %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("initial lookup never completed")
	}
	if ac.Snapshot().SignedIn() {
		t.Fatal("stale initial lookup overwrote newer state")
	}
}

func TestNotificationReresolvesRole(t *testing.T) {
	b := memory.New(testSecret, time.Hour)
	sess, token := signIn(t, b, "lead@example.com", auth.RoleEmployee)
	client := &stubClient{Client: b.Client(token)}

	ac := New(client)
	defer ac.Close()
	_ = ac.Start(context.Background())
	if state := waitState(t, ac); state.Role != auth.RoleEmployee {
		t.Fatalf("expected employee, got %s", state.Role)
	}
	<-ac.Changes()

	if _, err := client.Update(context.Background(), store.TableProfiles, sess.UserID, store.Row{"role": "admin"}); err != nil {
		t.Fatalf("promote: %v", err)
	}
	refreshed := *sess
	b.Hub().Publish(store.SessionEvent{Type: store.EventRefreshed, SessionID: sess.ID, UserID: sess.UserID, Session: &refreshed})

	select {
	case state := <-ac.Changes():
		if state.Role != auth.RoleAdmin {
			t.Fatalf("expected role re-resolved to admin, got %s", state.Role)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no state change after notification")
	}
}

func TestCloseReleasesSubscription(t *testing.T) {
	b := memory.New(testSecret, time.Hour)
	sess, token := signIn(t, b, "admin@example.com", auth.RoleAdmin)
	hub := b.Hub()
	before := hub.Len()

	ac := New(b.Client(token))
	_ = ac.Start(context.Background())
	waitState(t, ac)
	if hub.Len() != before+1 {
		t.Fatalf("expected one subscription, got %d", hub.Len()-before)
	}

	ac.Close()
	ac.Close()
	if hub.Len() != before {
		t.Fatalf("subscription leaked after close: %d", hub.Len()-before)
	}
	hub.Publish(store.SessionEvent{Type: store.EventSignedOut, SessionID: sess.ID})
	if !ac.Snapshot().SignedIn() {
		t.Fatal("notification after close changed state")
	}
	for range ac.Changes() {
	}
	if err := ac.Start(context.Background()); !errors.Is(err, ErrStarted) {
		t.Fatalf("expected restart to fail, got %v", err)
	}
}

func TestCloseBeforeResolutionUnblocksWaiters(t *testing.T) {
	b := memory.New(testSecret, time.Hour)
	client := &stubClient{Client: b.Client(""), gate: make(chan struct{})}
	ac := New(client)
	_ = ac.Start(context.Background())

	ac.Close()
	select {
	case <-ac.Ready():
	default:
		t.Fatal("ready should be closed after close")
	}
	if !ac.Snapshot().Loading {
		t.Fatal("cancelled lookup must not be applied")
	}
}

func TestRoleResolverCachesOneUser(t *testing.T) {
	b := memory.New(testSecret, time.Hour)
	sess, token := signIn(t, b, "admin@example.com", auth.RoleAdmin)
	client := &stubClient{Client: b.Client(token)}
	roles := NewRoleResolver(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		role, err := roles.Resolve(ctx, sess.UserID)
		if err != nil || role != auth.RoleAdmin {
			t.Fatalf("resolve: %s %v", role, err)
		}
	}
	if client.queries.Load() != 1 {
		t.Fatalf("expected a single lookup, got %d", client.queries.Load())
	}

	roles.Invalidate()
	if _, err := roles.Resolve(ctx, sess.UserID); err != nil {
		t.Fatalf("resolve after invalidate: %v", err)
	}
	if client.queries.Load() != 2 {
		t.Fatalf("expected lookup after invalidate, got %d", client.queries.Load())
	}

	role, err := roles.Resolve(ctx, "00000000-0000-0000-0000-000000000000")
	var lookupErr *RoleLookupError
	if role != auth.RoleNone || !errors.As(err, &lookupErr) {
		t.Fatalf("expected role lookup error, got %s %v", role, err)
	}
}

func TestInvalidateDuringLookupDropsStaleAnswer(t *testing.T) {
	b := memory.New(testSecret, time.Hour)
	sess, token := signIn(t, b, "emp@example.com", auth.RoleEmployee)
	client := &stubClient{Client: b.Client(token), held: make(chan struct{}, 4), hold: make(chan struct{})}
	roles := NewRoleResolver(client)
	ctx := context.Background()

	done := make(chan auth.Role, 1)
	go func() {
		role, _ := roles.Resolve(ctx, sess.UserID)
		done <- role
	}()
	<-client.held

	if _, err := b.Client(token).Update(ctx, store.TableProfiles, sess.UserID, store.Row{"role": "admin"}); err != nil {
		t.Fatalf("promote: %v", err)
	}
	roles.Invalidate()
	close(client.hold)

	if role := <-done; role != auth.RoleEmployee {
		t.Fatalf("in-flight lookup should return what it read, got %s", role)
	}
	role, err := roles.Resolve(ctx, sess.UserID)
	if err != nil || role != auth.RoleAdmin {
		t.Fatalf("expected fresh admin role after invalidate, got %s %v", role, err)
	}
	if client.queries.Load() != 2 {
		t.Fatalf("stale answer was cached: %d lookups", client.queries.Load())
	}
}
