// Package memory implements the store contract in process. It backs the
// "memory" store driver and the tests of every layer above the store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/store"
)

type user struct {
	id   string
	hash string
}

type Backend struct {
	Secret     string
	SessionTTL time.Duration
	Now        func() time.Time

	hub   *store.Hub
	relay store.Relay

	mu       sync.RWMutex
	tables   map[string]map[string]store.Row
	users    map[string]user
	sessions map[string]store.Session
	faults   map[string]error
}

type Option func(*Backend)

func WithRelay(relay store.Relay) Option {
	return func(b *Backend) {
		b.relay = relay
	}
}

func WithHub(hub *store.Hub) Option {
	return func(b *Backend) {
		if hub != nil {
			b.hub = hub
		}
	}
}

func New(secret string, sessionTTL time.Duration, opts ...Option) *Backend {
	b := &Backend{
		Secret:     secret,
		SessionTTL: sessionTTL,
		Now:        time.Now,
		hub:        store.NewHub(),
		tables:     map[string]map[string]store.Row{},
		users:      map[string]user{},
		sessions:   map[string]store.Session{},
		faults:     map[string]error{},
	}
	for table := range store.Schema {
		b.tables[table] = map[string]store.Row{}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Fail makes every subsequent op on table return err until cleared with a
// nil err. Use "*" as table to match any table, and "get_session" or
// "sign_out" as op for the session calls.
func (b *Backend) Fail(op, table string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := op + ":" + table
	if err == nil {
		delete(b.faults, key)
		return
	}
	b.faults[key] = err
}

func (b *Backend) fault(op, table string) error {
	if err, ok := b.faults[op+":"+table]; ok {
		return err
	}
	if err, ok := b.faults[op+":*"]; ok {
		return err
	}
	return nil
}

func (b *Backend) Hub() *store.Hub {
	return b.hub
}

func (b *Backend) Client(token string) store.Client {
	return &client{backend: b, token: token}
}

func (b *Backend) Subscribe(fn func(store.SessionEvent)) store.Subscription {
	return b.hub.Subscribe(fn)
}

func (b *Backend) Ping(context.Context) error {
	return nil
}

func (b *Backend) Close() {}

func (b *Backend) CreateUser(ctx context.Context, email, password string, profile store.Row) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", fmt.Errorf("email and password are required")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.users[email]; ok {
		return "", store.Wrap("create_user", store.TableProfiles, store.ErrConflict)
	}
	id := uuid.NewString()
	row := profile.Clone()
	row["id"] = id
	row["email"] = email
	now := b.Now().UTC()
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = now
	}
	if _, ok := row["updated_at"]; !ok {
		row["updated_at"] = now
	}
	if _, ok := row["is_active"]; !ok {
		row["is_active"] = true
	}
	b.users[email] = user{id: id, hash: hash}
	b.tables[store.TableProfiles][id] = row
	return id, nil
}

func (b *Backend) SignIn(ctx context.Context, email, password string) (*store.Session, string, error) {
	b.mu.Lock()
	u, ok := b.users[strings.ToLower(strings.TrimSpace(email))]
	b.mu.Unlock()
	if !ok {
		return nil, "", store.Wrap("sign_in", "", store.ErrInvalidLogin)
	}
	if err := auth.CheckPassword(u.hash, password); err != nil {
		return nil, "", store.Wrap("sign_in", "", store.ErrInvalidLogin)
	}

	sess := store.Session{
		ID:        uuid.NewString(),
		UserID:    u.id,
		ExpiresAt: b.Now().Add(b.SessionTTL).UTC(),
	}
	token, err := auth.GenerateToken(b.Secret, auth.Claims{UserID: sess.UserID, SessionID: sess.ID}, sess.ExpiresAt)
	if err != nil {
		return nil, "", store.Wrap("sign_in", "", err)
	}

	b.mu.Lock()
	b.sessions[sess.ID] = sess
	b.mu.Unlock()

	out := sess
	b.hub.Announce(ctx, b.relay, store.SessionEvent{Type: store.EventSignedIn, SessionID: sess.ID, UserID: sess.UserID, Session: &out})
	return &sess, token, nil
}

// Expire drops the session with the given id as if it had timed out, and
// announces the sign-out.
func (b *Backend) Expire(ctx context.Context, sessionID string) {
	b.mu.Lock()
	sess, ok := b.sessions[sessionID]
	delete(b.sessions, sessionID)
	b.mu.Unlock()
	if ok {
		b.hub.Announce(ctx, b.relay, store.SessionEvent{Type: store.EventSignedOut, SessionID: sess.ID, UserID: sess.UserID})
	}
}

// RevokeUser drops the credentials and every session of userID and announces
// the sign-outs. Unknown users are not an error.
func (b *Backend) RevokeUser(ctx context.Context, userID string) error {
	var revoked []store.Session
	b.mu.Lock()
	for email, u := range b.users {
		if u.id == userID {
			delete(b.users, email)
		}
	}
	for id, sess := range b.sessions {
		if sess.UserID == userID {
			revoked = append(revoked, sess)
			delete(b.sessions, id)
		}
	}
	b.mu.Unlock()
	for _, sess := range revoked {
		b.hub.Announce(ctx, b.relay, store.SessionEvent{Type: store.EventSignedOut, SessionID: sess.ID, UserID: sess.UserID})
	}
	return nil
}

// PurgeExpired removes sessions past their expiry and returns how many.
func (b *Backend) PurgeExpired(ctx context.Context) (int, error) {
	now := b.Now()
	var expired []store.Session
	b.mu.Lock()
	for id, sess := range b.sessions {
		if !sess.Valid(now) {
			expired = append(expired, sess)
			delete(b.sessions, id)
		}
	}
	b.mu.Unlock()
	for _, sess := range expired {
		b.hub.Announce(ctx, b.relay, store.SessionEvent{Type: store.EventSignedOut, SessionID: sess.ID, UserID: sess.UserID})
	}
	return len(expired), nil
}

type client struct {
	backend *Backend
	token   string
}

func (c *client) claims() (*auth.Claims, error) {
	if c.token == "" {
		return nil, store.ErrNoSession
	}
	claims, err := auth.ParseToken(c.backend.Secret, c.token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidSession, err)
	}
	return claims, nil
}

func (c *client) GetSession(ctx context.Context) (*store.Session, error) {
	b := c.backend
	b.mu.RLock()
	fault := b.fault("get_session", "")
	b.mu.RUnlock()
	if fault != nil {
		return nil, store.Wrap("get_session", "", fault)
	}

	claims, err := c.claims()
	if err == store.ErrNoSession {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("get_session", "", err)
	}

	b.mu.RLock()
	sess, ok := b.sessions[claims.SessionID]
	b.mu.RUnlock()
	if !ok || !sess.Valid(b.Now()) {
		return nil, store.Wrap("get_session", "", store.ErrInvalidSession)
	}
	return &sess, nil
}

func (c *client) OnSessionChange(fn func(store.SessionEvent)) store.Subscription {
	sessionID := ""
	if claims, err := c.claims(); err == nil {
		sessionID = claims.SessionID
	}
	return c.backend.hub.Subscribe(store.ForSession(sessionID, fn))
}

func (c *client) SignOut(ctx context.Context) error {
	b := c.backend
	b.mu.RLock()
	fault := b.fault("sign_out", "")
	b.mu.RUnlock()
	if fault != nil {
		return store.Wrap("sign_out", "", fault)
	}

	claims, err := c.claims()
	if err != nil {
		return nil
	}
	b.Expire(ctx, claims.SessionID)
	return nil
}

func (c *client) QueryOne(ctx context.Context, table string, filters ...store.Filter) (store.Row, error) {
	rows, err := c.query("query_one", table, store.Query{Filters: filters, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.Wrap("query_one", table, store.ErrNotFound)
	}
	return rows[0], nil
}

func (c *client) QueryMany(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	return c.query("query_many", table, q)
}

func (c *client) query(op, table string, q store.Query) ([]store.Row, error) {
	spec, err := store.Lookup(table)
	if err != nil {
		return nil, store.Wrap(op, table, err)
	}
	if err := spec.CheckQuery(q.Filters, q.OrderBy); err != nil {
		return nil, store.Wrap(op, table, err)
	}

	b := c.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if fault := b.fault(op, table); fault != nil {
		return nil, store.Wrap(op, table, fault)
	}

	out := make([]store.Row, 0)
	for _, row := range b.tables[table] {
		if matches(row, q.Filters) {
			out = append(out, row.Clone())
		}
	}

	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = "id"
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, z := out[i].String(orderBy), out[j].String(orderBy)
		la, lz := strings.ToLower(a), strings.ToLower(z)
		less := la < lz || (la == lz && a < z)
		if q.Desc {
			return !less && a != z
		}
		return less
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (c *client) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	spec, err := store.Lookup(table)
	if err != nil {
		return nil, store.Wrap("insert", table, err)
	}
	if err := spec.CheckColumns(keys(row)...); err != nil {
		return nil, store.Wrap("insert", table, err)
	}

	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if fault := b.fault("insert", table); fault != nil {
		return nil, store.Wrap("insert", table, fault)
	}

	stored := row.Clone()
	id := stored.String("id")
	if id == "" {
		id = uuid.NewString()
		stored["id"] = id
	}
	if _, exists := b.tables[table][id]; exists {
		return nil, store.Wrap("insert", table, store.ErrConflict)
	}
	if spec.UniqueName && b.nameTaken(table, stored.String("name"), id) {
		return nil, store.Wrap("insert", table, store.ErrConflict)
	}
	b.tables[table][id] = stored
	return stored.Clone(), nil
}

func (c *client) Update(ctx context.Context, table, id string, patch store.Row) (store.Row, error) {
	spec, err := store.Lookup(table)
	if err != nil {
		return nil, store.Wrap("update", table, err)
	}
	if err := spec.CheckColumns(keys(patch)...); err != nil {
		return nil, store.Wrap("update", table, err)
	}

	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if fault := b.fault("update", table); fault != nil {
		return nil, store.Wrap("update", table, fault)
	}

	current, ok := b.tables[table][id]
	if !ok {
		return nil, store.Wrap("update", table, store.ErrNotFound)
	}
	if name, ok := patch["name"]; ok && spec.UniqueName && b.nameTaken(table, fmt.Sprint(name), id) {
		return nil, store.Wrap("update", table, store.ErrConflict)
	}
	next := current.Clone()
	for k, v := range patch {
		if k == "id" {
			continue
		}
		next[k] = v
	}
	b.tables[table][id] = next
	return next.Clone(), nil
}

func (c *client) Delete(ctx context.Context, table, id string) error {
	if _, err := store.Lookup(table); err != nil {
		return store.Wrap("delete", table, err)
	}

	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if fault := b.fault("delete", table); fault != nil {
		return store.Wrap("delete", table, fault)
	}
	if _, ok := b.tables[table][id]; !ok {
		return store.Wrap("delete", table, store.ErrNotFound)
	}
	delete(b.tables[table], id)
	return nil
}

func (b *Backend) nameTaken(table, name, exceptID string) bool {
	for id, row := range b.tables[table] {
		if id != exceptID && strings.EqualFold(row.String("name"), name) {
			return true
		}
	}
	return false
}

func matches(row store.Row, filters []store.Filter) bool {
	for _, f := range filters {
		if row.String(f.Column) != fmt.Sprint(f.Value) {
			return false
		}
	}
	return true
}

func keys(row store.Row) []string {
	out := make([]string, 0, len(row))
	for k := range row {
		out = append(out, k)
	}
	return out
}
