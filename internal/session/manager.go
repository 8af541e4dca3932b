package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ellykits/lite-quest/internal/engine"
	"github.com/ellykits/lite-quest/internal/questionnaire"
	"github.com/ellykits/lite-quest/pkg/jsontree"
)

// subscriberBuffer bounds each subscriber channel; a consumer that falls this
// far behind starts losing intermediate snapshots (the latest one always
// wins eventually).
const subscriberBuffer = 16

// Manager is the single owner of one questionnaire session. All mutations go
// through it and are serialized; published State snapshots are immutable and
// may be read concurrently by any number of subscribers.
type Manager struct {
	mu            sync.RWMutex
	questionnaire *questionnaire.Questionnaire
	engine        *engine.Engine
	state         State
	subscribers   map[chan State]struct{}
	closed        bool
	log           zerolog.Logger
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	subject *questionnaire.Subject
	log     zerolog.Logger
	now     func() time.Time
}

// WithSubject attaches a subject to the session's response.
func WithSubject(s *questionnaire.Subject) Option {
	return func(o *options) { o.subject = s }
}

// WithLogger sets the manager's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithClock overrides the authored-timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewManager creates a session for the questionnaire with a fresh response:
// one empty response item per item in the tree, nested for non-repeating
// groups only (repeating groups hold their instance set as a single array
// answer instead).
func NewManager(q *questionnaire.Questionnaire, opts ...Option) *Manager {
	o := options{
		log: zerolog.Nop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	resp := &questionnaire.Response{
		ID:              uuid.NewString(),
		QuestionnaireID: q.ID,
		Authored:        o.now().UTC().Format(time.RFC3339),
		Subject:         o.subject,
		Items:           initResponseItems(q.Items),
	}

	return &Manager{
		questionnaire: q,
		engine:        engine.New(q),
		state:         initialState(q, resp),
		subscribers:   make(map[chan State]struct{}),
		log:           o.log.With().Str("questionnaire_id", q.ID).Logger(),
	}
}

func initResponseItems(items []questionnaire.Item) []questionnaire.ResponseItem {
	out := make([]questionnaire.ResponseItem, len(items))
	for i := range items {
		item := &items[i]
		ri := questionnaire.ResponseItem{LinkID: item.LinkID}
		if len(item.Items) > 0 && !item.Repeats {
			ri.Items = initResponseItems(item.Items)
		}
		out[i] = ri
	}
	return out
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// UpdateAnswer sets the answer for linkID anywhere in the response tree,
// creating a top-level response item if none exists. A null (or nil) value
// clears the answer list; any nested response items under the target are
// wiped either way, since a direct answer always replaces sibling structure
// (this is how a repeating group's array answer collapses its subtree).
// Returns the recomputed snapshot.
func (m *Manager) UpdateAnswer(linkID string, value *jsontree.Node) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return m.state
	}

	resp := m.state.Response.Clone()
	items, found := updateResponseItems(resp.Items, linkID, value)
	if !found {
		items = append(items, newResponseItem(linkID, value))
	}
	resp.Items = items

	m.log.Debug().Str("link_id", linkID).Msg("answer updated")
	m.recomputeLocked(resp)
	return m.state
}

func newResponseItem(linkID string, value *jsontree.Node) questionnaire.ResponseItem {
	ri := questionnaire.ResponseItem{LinkID: linkID}
	if !value.IsNull() {
		ri.Answers = []questionnaire.Answer{{Value: value}}
	}
	return ri
}

func updateResponseItems(items []questionnaire.ResponseItem, linkID string, value *jsontree.Node) ([]questionnaire.ResponseItem, bool) {
	found := false
	for i := range items {
		if items[i].LinkID == linkID {
			if value.IsNull() {
				items[i].Answers = nil
			} else {
				items[i].Answers = []questionnaire.Answer{{Value: value}}
			}
			items[i].Items = nil
			found = true
			continue
		}
		if len(items[i].Items) > 0 && !found {
			nested, ok := updateResponseItems(items[i].Items, linkID, value)
			if ok {
				items[i].Items = nested
				found = true
			}
		}
	}
	return items, found
}

// SetResponse replaces the response wholesale and recomputes everything.
func (m *Manager) SetResponse(resp *questionnaire.Response) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return m.state
	}
	m.recomputeLocked(resp.Clone())
	return m.state
}

// GetResponse returns a deep copy of the current response document.
func (m *Manager) GetResponse() *questionnaire.Response {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Response.Clone()
}

// Validate runs an on-demand full-tree validation against the current
// response.
func (m *Manager) Validate() []questionnaire.ValidationError {
	m.mu.RLock()
	resp := m.state.Response
	m.mu.RUnlock()
	return m.engine.ValidateResponse(&resp, nil)
}

// IsValid reports whether a full validation pass finds no errors.
func (m *Manager) IsValid() bool {
	return len(m.Validate()) == 0
}

// ExtractData projects the current response through the questionnaire's
// extraction template; nil when none is defined.
func (m *Manager) ExtractData() *jsontree.Node {
	m.mu.RLock()
	resp := m.state.Response
	m.mu.RUnlock()
	return m.engine.ExtractData(&resp)
}

// Subscribe registers a snapshot consumer. The current state is delivered
// immediately, then every subsequent snapshot. The returned cancel func
// unregisters and closes the channel.
func (m *Manager) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan State, subscriberBuffer)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	m.subscribers[ch] = struct{}{}
	ch <- m.state

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// Close shuts the session down and closes all subscriber channels.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = make(map[chan State]struct{})
}

// recomputeLocked rebuilds derived state from the response: data context,
// then calculated values, then the pruned visible tree, then a full-tree
// validation pass. The whole visible tree is always revalidated so that
// cross-field rules react to any answer change.
func (m *Manager) recomputeLocked(resp *questionnaire.Response) {
	calculated := m.engine.CalculatedValues(resp)
	visible := m.engine.VisibleItems(resp)
	errors := m.engine.ValidateResponse(resp, nil)

	m.state = State{
		Questionnaire:    m.questionnaire,
		Response:         *resp,
		VisibleItems:     visible,
		ValidationErrors: errors,
		CalculatedValues: calculated,
		IsValid:          len(errors) == 0,
	}

	for ch := range m.subscribers {
		select {
		case ch <- m.state:
		default:
			m.log.Warn().Msg("subscriber lagging, snapshot dropped")
		}
	}
}
