// Package postgres implements the store contract on top of a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/store"
)

type Backend struct {
	DB         *pgxpool.Pool
	Secret     string
	SessionTTL time.Duration

	hub   *store.Hub
	relay store.Relay
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

func New(db *pgxpool.Pool, secret string, sessionTTL time.Duration, opts ...Option) *Backend {
	b := &Backend{DB: db, Secret: secret, SessionTTL: sessionTTL, hub: store.NewHub()}
	for _, opt := range opts {
		opt(b)
	}
	return b
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

func (b *Backend) Ping(ctx context.Context) error {
	return b.DB.Ping(ctx)
}

func (b *Backend) Close() {
	b.DB.Close()
}

func (b *Backend) SignIn(ctx context.Context, email, password string) (*store.Session, string, error) {
	var userID, hash string
	err := b.DB.QueryRow(ctx, `
    SELECT id::text, password_hash
    FROM users
    WHERE email = $1
  `, strings.ToLower(strings.TrimSpace(email))).Scan(&userID, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", store.Wrap("sign_in", "", store.ErrInvalidLogin)
	}
	if err != nil {
		return nil, "", store.Wrap("sign_in", "", err)
	}
	if err := auth.CheckPassword(hash, password); err != nil {
		return nil, "", store.Wrap("sign_in", "", store.ErrInvalidLogin)
	}

	sess := store.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: time.Now().Add(b.SessionTTL).UTC(),
	}
	if _, err := b.DB.Exec(ctx, `
    INSERT INTO sessions (id, user_id, expires_at)
    VALUES ($1, $2, $3)
  `, sess.ID, sess.UserID, sess.ExpiresAt); err != nil {
		return nil, "", store.Wrap("sign_in", "", err)
	}
	if _, err := b.DB.Exec(ctx, "UPDATE users SET last_login = now() WHERE id = $1", userID); err != nil {
		return nil, "", store.Wrap("sign_in", "", err)
	}

	token, err := auth.GenerateToken(b.Secret, auth.Claims{UserID: sess.UserID, SessionID: sess.ID}, sess.ExpiresAt)
	if err != nil {
		return nil, "", store.Wrap("sign_in", "", err)
	}

	out := sess
	b.hub.Announce(ctx, b.relay, store.SessionEvent{Type: store.EventSignedIn, SessionID: sess.ID, UserID: sess.UserID, Session: &out})
	return &sess, token, nil
}

func (b *Backend) CreateUser(ctx context.Context, email, password string, profile store.Row) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", fmt.Errorf("email and password are required")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", err
	}

	tx, err := b.DB.Begin(ctx)
	if err != nil {
		return "", store.Wrap("create_user", store.TableProfiles, err)
	}
	defer tx.Rollback(ctx)

	var id string
	if err := tx.QueryRow(ctx, `
    INSERT INTO users (email, password_hash)
    VALUES ($1, $2)
    RETURNING id::text
  `, email, hash).Scan(&id); err != nil {
		return "", store.Wrap("create_user", store.TableProfiles, translate(err))
	}

	row := profile.Clone()
	row["id"] = id
	row["email"] = email
	if _, err := insertRow(ctx, tx, store.TableProfiles, row); err != nil {
		return "", store.Wrap("create_user", store.TableProfiles, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", store.Wrap("create_user", store.TableProfiles, err)
	}
	return id, nil
}

// RevokeUser revokes every live session of userID, announces the sign-outs
// and deletes the credentials. Unknown users are not an error.
func (b *Backend) RevokeUser(ctx context.Context, userID string) error {
	tx, err := b.DB.Begin(ctx)
	if err != nil {
		return store.Wrap("revoke_user", "", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
    UPDATE sessions SET revoked_at = now()
    WHERE user_id::text = $1 AND revoked_at IS NULL
    RETURNING id::text
  `, userID)
	if err != nil {
		return store.Wrap("revoke_user", "", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return store.Wrap("revoke_user", "", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM users WHERE id::text = $1", userID); err != nil {
		return store.Wrap("revoke_user", "", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return store.Wrap("revoke_user", "", err)
	}

	for _, id := range ids {
		b.hub.Announce(ctx, b.relay, store.SessionEvent{Type: store.EventSignedOut, SessionID: id, UserID: userID})
	}
	return nil
}

// PurgeExpired deletes expired sessions and announces a sign-out for the ones
// that had not already been revoked.
func (b *Backend) PurgeExpired(ctx context.Context) (int, error) {
	rows, err := b.DB.Query(ctx, `
    DELETE FROM sessions
    WHERE expires_at <= now()
    RETURNING id::text, user_id::text, revoked_at IS NULL
  `)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var events []store.SessionEvent
	count := 0
	for rows.Next() {
		var id, userID string
		var live bool
		if err := rows.Scan(&id, &userID, &live); err != nil {
			return count, err
		}
		count++
		if live {
			events = append(events, store.SessionEvent{Type: store.EventSignedOut, SessionID: id, UserID: userID})
		}
	}
	if err := rows.Err(); err != nil {
		return count, err
	}
	for _, evt := range events {
		b.hub.Announce(ctx, b.relay, evt)
	}
	return count, nil
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
	claims, err := c.claims()
	if errors.Is(err, store.ErrNoSession) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("get_session", "", err)
	}

	sess := store.Session{ID: claims.SessionID}
	err = c.backend.DB.QueryRow(ctx, `
    SELECT user_id::text, expires_at
    FROM sessions
    WHERE id = $1 AND revoked_at IS NULL AND expires_at > now()
  `, claims.SessionID).Scan(&sess.UserID, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.Wrap("get_session", "", store.ErrInvalidSession)
	}
	if err != nil {
		return nil, store.Wrap("get_session", "", err)
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
	claims, err := c.claims()
	if err != nil {
		return nil
	}
	tag, err := c.backend.DB.Exec(ctx, `
    UPDATE sessions SET revoked_at = now()
    WHERE id = $1 AND revoked_at IS NULL
  `, claims.SessionID)
	if err != nil {
		return store.Wrap("sign_out", "", err)
	}
	if tag.RowsAffected() > 0 {
		c.backend.hub.Announce(ctx, c.backend.relay, store.SessionEvent{Type: store.EventSignedOut, SessionID: claims.SessionID, UserID: claims.UserID})
	}
	return nil
}

func (c *client) QueryOne(ctx context.Context, table string, filters ...store.Filter) (store.Row, error) {
	rows, err := selectRows(ctx, c.backend.DB, table, store.Query{Filters: filters, Limit: 1})
	if err != nil {
		return nil, store.Wrap("query_one", table, err)
	}
	if len(rows) == 0 {
		return nil, store.Wrap("query_one", table, store.ErrNotFound)
	}
	return rows[0], nil
}

func (c *client) QueryMany(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	rows, err := selectRows(ctx, c.backend.DB, table, q)
	if err != nil {
		return nil, store.Wrap("query_many", table, err)
	}
	return rows, nil
}

func (c *client) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	out, err := insertRow(ctx, c.backend.DB, table, row)
	if err != nil {
		return nil, store.Wrap("insert", table, err)
	}
	return out, nil
}

func (c *client) Update(ctx context.Context, table, id string, patch store.Row) (store.Row, error) {
	out, err := updateRow(ctx, c.backend.DB, table, id, patch)
	if err != nil {
		return nil, store.Wrap("update", table, err)
	}
	return out, nil
}

func (c *client) Delete(ctx context.Context, table, id string) error {
	if err := deleteRow(ctx, c.backend.DB, table, id); err != nil {
		return store.Wrap("delete", table, err)
	}
	return nil
}
