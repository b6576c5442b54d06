// Package session resolves who the caller is and what role they hold, and
// keeps that answer current while the store reports session changes.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/store"
)

// Outcomes reported to an Observer after each resolution.
const (
	OutcomeSignedIn  = "signed_in"
	OutcomeAnonymous = "anonymous"
	OutcomeInvalid   = "invalid"
	OutcomeStale     = "stale"
)

// State is the resolved identity of one caller.
type State struct {
	Session *store.Session `json:"session"`
	Role    auth.Role      `json:"role"`
	Loading bool           `json:"loading"`
}

func (s State) SignedIn() bool {
	return s.Session != nil
}

func (s State) UserID() string {
	if s.Session == nil {
		return ""
	}
	return s.Session.UserID
}

// Home is where a caller in this state lands by default.
func (s State) Home() string {
	if !s.SignedIn() {
		return auth.LoginPath
	}
	return s.Role.Home()
}

type Option func(*AuthContext)

func WithLogger(logger *slog.Logger) Option {
	return func(a *AuthContext) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithRoleResolver(roles *RoleResolver) Option {
	return func(a *AuthContext) {
		if roles != nil {
			a.roles = roles
		}
	}
}

// WithObserver registers fn to be called with the outcome of every
// resolution, including ones discarded as stale.
func WithObserver(fn func(outcome string)) Option {
	return func(a *AuthContext) {
		a.observe = fn
	}
}

// AuthContext owns the session and role of one caller. Start it once, read
// it with Snapshot or Wait, and release it with Close.
//
// Every resolution takes a ticket when it starts. A result is applied only if
// no later-started resolution has been applied already, so the most recently
// started lookup wins regardless of completion order.
type AuthContext struct {
	client  store.Client
	roles   *RoleResolver
	logger  *slog.Logger
	observe func(string)

	mu      sync.Mutex
	state   State
	issued  uint64
	applied uint64
	started bool
	closed  bool
	ready   chan struct{}
	changes chan State
	sub     store.Subscription
	err     error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(client store.Client, opts ...Option) *AuthContext {
	a := &AuthContext{
		client:  client,
		logger:  slog.Default(),
		state:   State{Loading: true},
		ready:   make(chan struct{}),
		changes: make(chan State, 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.roles == nil {
		a.roles = NewRoleResolver(client)
	}
	return a
}

// Start subscribes to session changes and begins the initial lookup. It
// returns immediately; use Ready or Wait to learn when the state is known.
// Work started here is bound to ctx and to the lifetime of the AuthContext.
func (a *AuthContext) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started || a.closed {
		a.mu.Unlock()
		return ErrStarted
	}
	a.started = true
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	sub := a.client.OnSessionChange(a.onChange)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	a.sub = sub
	ticket := a.nextTicket()
	resolveCtx := a.ctx
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		a.resolveInitial(resolveCtx, ticket)
	}()
	return nil
}

func (a *AuthContext) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err returns the *SessionError recorded when the initial lookup was refused
// by the store, or nil.
func (a *AuthContext) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Ready is closed once the first resolution has completed.
func (a *AuthContext) Ready() <-chan struct{} {
	return a.ready
}

// Wait blocks until the state is no longer loading or ctx is done.
func (a *AuthContext) Wait(ctx context.Context) (State, error) {
	select {
	case <-a.ready:
		return a.Snapshot(), nil
	case <-ctx.Done():
		return a.Snapshot(), ctx.Err()
	}
}

// Changes delivers the latest state after every applied resolution. Only the
// newest undelivered state is kept. The channel is closed by Close.
func (a *AuthContext) Changes() <-chan State {
	return a.changes
}

// Close releases the session subscription and waits for in-flight lookups to
// finish. Notifications arriving afterwards are ignored and Ready is closed
// even if no lookup completed. Close is safe to call more than once and
// before Start.
func (a *AuthContext) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	sub := a.sub
	a.sub = nil
	cancel := a.cancel
	a.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	a.wg.Wait()

	a.mu.Lock()
	a.markReady()
	close(a.changes)
	a.mu.Unlock()
}

func (a *AuthContext) resolveInitial(ctx context.Context, ticket uint64) {
	sess, err := a.client.GetSession(ctx)
	if err != nil && ctx.Err() != nil {
		a.report(OutcomeStale)
		return
	}
	if err != nil {
		a.mu.Lock()
		a.err = &SessionError{Err: err}
		a.mu.Unlock()
		a.logger.Warn("session lookup failed, signing out", "err", err)
		if signOutErr := a.client.SignOut(ctx); signOutErr != nil {
			a.logger.Warn("forced sign-out failed", "err", signOutErr)
		}
		a.roles.Invalidate()
		a.apply(ticket, State{}, OutcomeInvalid)
		return
	}
	a.resolveRole(ctx, ticket, sess)
}

func (a *AuthContext) onChange(evt store.SessionEvent) {
	a.mu.Lock()
	if a.closed || !a.started {
		a.mu.Unlock()
		return
	}
	ticket := a.nextTicket()
	ctx := a.ctx
	a.wg.Add(1)
	a.mu.Unlock()

	a.roles.Invalidate()
	go func() {
		defer a.wg.Done()
		var sess *store.Session
		if evt.Type != store.EventSignedOut && evt.Session != nil {
			next := *evt.Session
			sess = &next
		}
		a.resolveRole(ctx, ticket, sess)
	}()
}

func (a *AuthContext) resolveRole(ctx context.Context, ticket uint64, sess *store.Session) {
	if sess == nil {
		a.apply(ticket, State{}, OutcomeAnonymous)
		return
	}
	role, err := a.roles.Resolve(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.logger.Info("no profile for session user", "userId", sess.UserID)
		} else {
			a.logger.Warn("role lookup failed", "userId", sess.UserID, "err", err)
		}
	}
	a.apply(ticket, State{Session: sess, Role: role}, OutcomeSignedIn)
}

func (a *AuthContext) nextTicket() uint64 {
	a.issued++
	return a.issued
}

// apply writes next if ticket is newer than anything applied so far. The
// first applied result clears Loading. Results arriving after Close are
// dropped.
func (a *AuthContext) apply(ticket uint64, next State, outcome string) {
	a.mu.Lock()
	if a.closed || ticket <= a.applied {
		a.mu.Unlock()
		a.report(OutcomeStale)
		return
	}
	a.applied = ticket
	next.Loading = false
	a.state = next
	a.markReady()
	select {
	case <-a.changes:
	default:
	}
	a.changes <- a.state
	a.mu.Unlock()

	a.report(outcome)
}

// markReady must be called with mu held.
func (a *AuthContext) markReady() {
	select {
	case <-a.ready:
	default:
		close(a.ready)
	}
}

func (a *AuthContext) report(outcome string) {
	if a.observe != nil {
		a.observe(outcome)
	}
}
