// Package audit keeps a trail of every change made through the admin
// screens.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"hradmin/internal/domain/resource"
	"hradmin/internal/platform/requestctx"
)

type Event struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	RequestID  string          `json:"requestId"`
	CreatedAt  time.Time       `json:"createdAt"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
}

type Filter struct {
	Action     string
	EntityType string
	ActorUser  string
	Since      time.Time
}

// Log records changes and lists them back newest first.
type Log interface {
	resource.Recorder
	List(ctx context.Context, filter Filter, limit, offset int) ([]Event, error)
}

func newEvent(ctx context.Context, change resource.Change) (Event, error) {
	evt := Event{
		ActorID:    change.ActorID,
		Action:     change.Action,
		EntityType: change.Kind,
		EntityID:   change.EntityID,
		RequestID:  requestctx.GetRequestID(ctx),
	}
	if change.Before != nil {
		payload, err := json.Marshal(change.Before)
		if err != nil {
			return Event{}, err
		}
		evt.Before = payload
	}
	if change.After != nil {
		payload, err := json.Marshal(change.After)
		if err != nil {
			return Event{}, err
		}
		evt.After = payload
	}
	return evt, nil
}

type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

func (s *Service) Record(ctx context.Context, change resource.Change) error {
	evt, err := newEvent(ctx, change)
	if err != nil {
		return err
	}
	var actor any
	if evt.ActorID != "" {
		actor = evt.ActorID
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO audit_events (actor_user_id, action, entity_type, entity_id, before_json, after_json, request_id)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
  `, actor, evt.Action, evt.EntityType, evt.EntityID, []byte(evt.Before), []byte(evt.After), evt.RequestID)
	return err
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]Event, error) {
	query, args := buildQuery(filter)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		var before, after []byte
		if err := rows.Scan(&evt.ID, &evt.ActorID, &evt.Action, &evt.EntityType, &evt.EntityID, &evt.RequestID, &evt.CreatedAt, &before, &after); err != nil {
			return nil, err
		}
		evt.Before = before
		evt.After = after
		out = append(out, evt)
	}
	return out, rows.Err()
}

func buildQuery(filter Filter) (string, []any) {
	query := `SELECT id::text, coalesce(actor_user_id::text, ''), action, entity_type, entity_id, request_id, created_at, before_json, after_json
    FROM audit_events WHERE true`
	var args []any
	if filter.Action != "" {
		args = append(args, filter.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		query += fmt.Sprintf(" AND entity_type = $%d", len(args))
	}
	if filter.ActorUser != "" {
		args = append(args, filter.ActorUser)
		query += fmt.Sprintf(" AND actor_user_id::text = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	return query, args
}

// Memory keeps the most recent events in process. It backs the memory store
// driver.
type Memory struct {
	Capacity int
	Now      func() time.Time

	mu     sync.Mutex
	events []Event
}

func NewMemory(capacity int) *Memory {
	return &Memory{Capacity: capacity, Now: time.Now}
}

func (m *Memory) Record(ctx context.Context, change resource.Change) error {
	evt, err := newEvent(ctx, change)
	if err != nil {
		return err
	}
	evt.ID = uuid.NewString()
	evt.CreatedAt = m.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	if m.Capacity > 0 && len(m.events) > m.Capacity {
		m.events = slices.Clone(m.events[len(m.events)-m.Capacity:])
	}
	return nil
}

func (m *Memory) List(_ context.Context, filter Filter, limit, offset int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Event
	for i := len(m.events) - 1; i >= 0; i-- {
		evt := m.events[i]
		if filter.Action != "" && evt.Action != filter.Action {
			continue
		}
		if filter.EntityType != "" && evt.EntityType != filter.EntityType {
			continue
		}
		if filter.ActorUser != "" && evt.ActorID != filter.ActorUser {
			continue
		}
		if !filter.Since.IsZero() && evt.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, evt)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
