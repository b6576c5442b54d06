// Package resource manages one collection of administered entities: the
// fetched list, search, the edit form, notices, and the create, update and
// delete protocol with its delete guard.
package resource

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"hradmin/internal/domain/store"
)

const DefaultNoticeTTL = 3 * time.Second

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Outcomes reported to an observer.
const (
	OutcomeOK          = "ok"
	OutcomeValidation  = "validation"
	OutcomeReferenced  = "referenced"
	OutcomeBusy        = "busy"
	OutcomeStoreFailed = "store_error"
)

// Change describes one successful mutation.
type Change struct {
	Action   string
	Kind     string
	EntityID string
	ActorID  string
	Before   store.Row
	After    store.Row
}

type Recorder interface {
	Record(ctx context.Context, change Change) error
}

// View is what a client renders: the searched list plus the surrounding
// state.
type View[K Entity] struct {
	Kind    string  `json:"kind"`
	Items   []K     `json:"items"`
	Total   int     `json:"total"`
	Search  string  `json:"search"`
	Form    Form[K] `json:"form"`
	Notices Notices `json:"notices"`
	Busy    bool    `json:"busy"`
	Loading bool    `json:"loading"`
	Loaded  bool    `json:"loaded"`
}

type Option func(*options)

type options struct {
	noticeTTL time.Duration
	now       func() time.Time
	logger    *slog.Logger
	recorder  Recorder
	actorID   string
	locker    Locker
	lockKey   string
	observe   func(op, outcome string)
	removed   func(ctx context.Context, id string) error
}

func WithNoticeTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.noticeTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecorder reports every successful mutation made on behalf of actorID.
func WithRecorder(recorder Recorder, actorID string) Option {
	return func(o *options) {
		o.recorder = recorder
		o.actorID = actorID
	}
}

// WithLocker additionally claims key in locker for every mutation, so
// managers in different processes serving the same key exclude each other.
func WithLocker(locker Locker, key string) Option {
	return func(o *options) {
		o.locker = locker
		o.lockKey = key
	}
}

func WithObserver(fn func(op, outcome string)) Option {
	return func(o *options) {
		o.observe = fn
	}
}

// WithAfterRemove runs fn once a row has been deleted. A failure of fn is
// reported as a store failure of the remove.
func WithAfterRemove(fn func(ctx context.Context, id string) error) Option {
	return func(o *options) {
		o.removed = fn
	}
}

// Manager owns the list of one entity kind for one user. Every successful
// mutation re-fetches the list instead of patching it.
type Manager[K Entity] struct {
	kind   Kind[K]
	client store.Client
	opts   options

	notices *notifier
	guard   *inflight

	mu      sync.Mutex
	items   []K
	loaded  bool
	loading int
	search  string
	form    Form[K]
}

func NewManager[K Entity](client store.Client, kind Kind[K], opts ...Option) *Manager[K] {
	o := options{noticeTTL: DefaultNoticeTTL, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	guard := newInflight()
	guard.locker = o.locker
	guard.key = o.lockKey
	guard.logger = o.logger
	return &Manager[K]{
		kind:    kind,
		client:  client,
		opts:    o,
		notices: &notifier{ttl: o.noticeTTL},
		guard:   guard,
		form:    closedForm[K](),
	}
}

func (m *Manager[K]) Kind() Kind[K] {
	return m.kind
}

// List fetches the collection ordered by name. On failure the previous list
// is kept and the error becomes the error notice.
func (m *Manager[K]) List(ctx context.Context) ([]K, error) {
	m.notices.clearError()
	items, err := m.fetch(ctx)
	if err != nil {
		m.observe("list", OutcomeStoreFailed)
		return nil, err
	}
	m.observe("list", OutcomeOK)
	return items, nil
}

func (m *Manager[K]) fetch(ctx context.Context) ([]K, error) {
	m.mu.Lock()
	m.loading++
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.loading--
		m.mu.Unlock()
	}()

	rows, err := m.client.QueryMany(ctx, m.kind.Table, store.Query{OrderBy: "name"})
	if err != nil {
		serr := &StoreError{Op: "load", Kind: m.kind.Plural, Err: err}
		m.notices.fail(serr.Error())
		m.opts.logger.Warn("resource list failed", "kind", m.kind.Name, "err", err)
		return nil, serr
	}
	items := make([]K, 0, len(rows))
	for _, row := range rows {
		items = append(items, m.kind.Decode(row))
	}
	slices.SortStableFunc(items, func(a, b K) int {
		return strings.Compare(strings.ToLower(a.DisplayName()), strings.ToLower(b.DisplayName()))
	})

	m.mu.Lock()
	m.items = items
	m.loaded = true
	m.mu.Unlock()
	return slices.Clone(items), nil
}

// Search filters the last fetched list without touching the store.
func (m *Manager[K]) Search(term string) []K {
	m.mu.Lock()
	defer m.mu.Unlock()
	return filter(m.items, term)
}

// SetSearch remembers term for View.
func (m *Manager[K]) SetSearch(term string) {
	m.mu.Lock()
	m.search = term
	m.mu.Unlock()
}

func filter[K Entity](items []K, term string) []K {
	out := make([]K, 0, len(items))
	for _, item := range items {
		if Matches(item, term) {
			out = append(out, item)
		}
	}
	return out
}

func (m *Manager[K]) Create(ctx context.Context, fields K) (K, error) {
	var zero K
	release, err := m.begin(ctx, "create")
	if err != nil {
		return zero, err
	}
	defer release()

	if err := Validate(fields); err != nil {
		return zero, m.reject("create", err)
	}

	row := m.encode(fields)
	now := m.opts.now().UTC()
	row["created_at"] = now
	row["updated_at"] = now
	created, err := m.client.Insert(ctx, m.kind.Table, row)
	if err != nil {
		return zero, m.storeFailed("create", err)
	}

	out := m.kind.Decode(created)
	m.record(ctx, Change{Action: ActionCreate, EntityID: out.EntityID(), After: created})
	m.finish(ctx, "create", m.kind.Name+" created")
	return out, nil
}

func (m *Manager[K]) Update(ctx context.Context, id string, fields K) (K, error) {
	var zero K
	release, err := m.begin(ctx, "update")
	if err != nil {
		return zero, err
	}
	defer release()

	if err := Validate(fields); err != nil {
		return zero, m.reject("update", err)
	}

	var before store.Row
	if current, ok := m.find(id); ok {
		before = m.kind.Encode(current)
	}
	row := m.encode(fields)
	row["updated_at"] = m.opts.now().UTC()
	updated, err := m.client.Update(ctx, m.kind.Table, id, row)
	if err != nil {
		return zero, m.storeFailed("update", err)
	}

	out := m.kind.Decode(updated)
	m.record(ctx, Change{Action: ActionUpdate, EntityID: id, Before: before, After: updated})
	m.finish(ctx, "update", m.kind.Name+" updated")
	return out, nil
}

// Remove deletes the entity with id unless a dependent row still refers to
// its name. The check and the delete are separate store calls, so a
// reference created in between is not caught.
func (m *Manager[K]) Remove(ctx context.Context, id string) error {
	release, err := m.begin(ctx, "remove")
	if err != nil {
		return err
	}
	defer release()

	row, err := m.client.QueryOne(ctx, m.kind.Table, store.Eq("id", id))
	if err != nil {
		return m.storeFailed("remove", err)
	}
	target := m.kind.Decode(row)
	name := strings.TrimSpace(target.DisplayName())

	if name != "" {
		for _, dep := range m.kind.Dependents {
			refs, err := m.client.QueryMany(ctx, dep.Table, store.Query{
				Filters: []store.Filter{store.Eq(dep.Column, name)},
				Limit:   1,
			})
			if err != nil {
				return m.storeFailed("remove", err)
			}
			if len(refs) > 0 {
				return m.reject("remove", &ReferentialIntegrityError{Kind: m.kind.Name, Name: name, Dependent: dep.Kind})
			}
		}
	}

	if err := m.client.Delete(ctx, m.kind.Table, id); err != nil {
		return m.storeFailed("remove", err)
	}
	m.record(ctx, Change{Action: ActionDelete, EntityID: id, Before: row})
	if m.opts.removed != nil {
		if err := m.opts.removed(ctx, id); err != nil {
			if _, ferr := m.fetch(ctx); ferr != nil {
				m.opts.logger.Warn("re-list after remove failed", "kind", m.kind.Name, "err", ferr)
			}
			return m.storeFailed("remove", err)
		}
	}
	m.finish(ctx, "remove", m.kind.Name+" deleted")
	return nil
}

// Current loads the stored entity with id. Edits start from it so fields the
// caller does not send keep their stored values.
func (m *Manager[K]) Current(ctx context.Context, id string) (K, error) {
	row, err := m.client.QueryOne(ctx, m.kind.Table, store.Eq("id", id))
	if err != nil {
		var zero K
		if errors.Is(err, store.ErrNotFound) {
			return zero, err
		}
		return zero, &StoreError{Op: "load", Kind: m.kind.Name, Err: err}
	}
	return m.kind.Decode(row), nil
}

// OpenNew opens an empty form.
func (m *Manager[K]) OpenNew() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.form.Open() {
		return ErrFormOpen
	}
	values := m.kind.blank()
	m.form = Form[K]{Mode: FormNew, Values: &values}
	return nil
}

// OpenEdit opens the form pre-filled from the listed row with id.
func (m *Manager[K]) OpenEdit(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.form.Open() {
		return ErrFormOpen
	}
	for _, item := range m.items {
		if item.EntityID() == id {
			values := item
			m.form = Form[K]{Mode: FormEdit, Editing: id, Values: &values}
			return nil
		}
	}
	return ErrNoSuchRow
}

// CancelForm closes the form and drops the error notice.
func (m *Manager[K]) CancelForm() {
	m.mu.Lock()
	m.form = closedForm[K]()
	m.mu.Unlock()
	m.notices.clearError()
}

func (m *Manager[K]) Form() Form[K] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.form
}

func (m *Manager[K]) Notices() Notices {
	return m.notices.snapshot()
}

func (m *Manager[K]) Busy() bool {
	return m.guard.busy()
}

// Items returns the whole last fetched list.
func (m *Manager[K]) Items() []K {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.items)
}

func (m *Manager[K]) View() View[K] {
	m.mu.Lock()
	v := View[K]{
		Kind:    m.kind.Plural,
		Items:   filter(m.items, m.search),
		Total:   len(m.items),
		Search:  m.search,
		Form:    m.form,
		Loading: m.loading > 0,
		Loaded:  m.loaded,
	}
	m.mu.Unlock()
	v.Notices = m.notices.snapshot()
	v.Busy = m.guard.busy()
	return v
}

// Close stops the pending notice timer.
func (m *Manager[K]) Close() error {
	m.notices.stop()
	return nil
}

func (m *Manager[K]) begin(ctx context.Context, op string) (func(), error) {
	release, err := m.guard.acquire(ctx)
	if err != nil {
		m.observe(op, OutcomeBusy)
		return nil, err
	}
	m.notices.clearError()
	return release, nil
}

func (m *Manager[K]) reject(op string, err error) error {
	m.notices.fail(err.Error())
	var refErr *ReferentialIntegrityError
	if errors.As(err, &refErr) {
		m.observe(op, OutcomeReferenced)
	} else {
		m.observe(op, OutcomeValidation)
	}
	return err
}

func (m *Manager[K]) storeFailed(op string, err error) error {
	serr := &StoreError{Op: op, Kind: m.kind.Name, Err: err}
	m.notices.fail(serr.Error())
	m.opts.logger.Warn("resource change failed", "kind", m.kind.Name, "op", op, "err", err)
	m.observe(op, OutcomeStoreFailed)
	return serr
}

// finish runs after a successful mutation: notice, close the form, re-list.
func (m *Manager[K]) finish(ctx context.Context, op, msg string) {
	m.notices.succeed(msg)
	m.mu.Lock()
	m.form = closedForm[K]()
	m.mu.Unlock()
	m.observe(op, OutcomeOK)
	if _, err := m.fetch(ctx); err != nil {
		m.opts.logger.Warn("re-list after change failed", "kind", m.kind.Name, "op", op, "err", err)
	}
}

func (m *Manager[K]) encode(fields K) store.Row {
	row := m.kind.Encode(fields)
	delete(row, "id")
	delete(row, "created_at")
	delete(row, "updated_at")
	return row
}

func (m *Manager[K]) find(id string) (K, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.EntityID() == id {
			return item, true
		}
	}
	var zero K
	return zero, false
}

func (m *Manager[K]) record(ctx context.Context, change Change) {
	if m.opts.recorder == nil {
		return
	}
	change.Kind = m.kind.Name
	change.ActorID = m.opts.actorID
	if err := m.opts.recorder.Record(ctx, change); err != nil {
		m.opts.logger.Warn("audit record failed", "kind", m.kind.Name, "action", change.Action, "err", err)
	}
}

func (m *Manager[K]) observe(op, outcome string) {
	if m.opts.observe != nil {
		m.opts.observe(op, outcome)
	}
}
