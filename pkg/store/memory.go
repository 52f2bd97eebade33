package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. Data lives for the lifetime of the value.
type Memory struct {
	mu            sync.RWMutex
	now           func() time.Time
	conversations map[string]map[string]*Conversation
	messages      map[string]map[string][]Message
	tasks         map[string][]Task
	reminders     map[string][]Reminder
	documents     map[string][]Document
	insights      map[string][]Insight
	profiles      map[string]*Profile
	keys          map[string][]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		now:           time.Now,
		conversations: make(map[string]map[string]*Conversation),
		messages:      make(map[string]map[string][]Message),
		tasks:         make(map[string][]Task),
		reminders:     make(map[string][]Reminder),
		documents:     make(map[string][]Document),
		insights:      make(map[string][]Insight),
		profiles:      make(map[string]*Profile),
		keys:          make(map[string][]string),
	}
}

// SetNow overrides the time source used for timestamps.
func (m *Memory) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) convo(uid, id string) *Conversation {
	byID, ok := m.conversations[uid]
	if !ok {
		byID = make(map[string]*Conversation)
		m.conversations[uid] = byID
	}
	c, ok := byID[id]
	if !ok {
		c = &Conversation{ID: id, IsPrimary: id == PrimaryConversation, UseMemory: true, CreatedAt: m.now()}
		byID[id] = c
	}
	return c
}

// SaveMessage appends msg to its conversation and bumps the conversation.
func (m *Memory) SaveMessage(ctx context.Context, uid string, msg *Message) error {
	if msg.ConversationID == "" {
		return fmt.Errorf("store: message without conversation")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = m.now()
	}
	byConvo, ok := m.messages[uid]
	if !ok {
		byConvo = make(map[string][]Message)
		m.messages[uid] = byConvo
	}
	byConvo[msg.ConversationID] = append(byConvo[msg.ConversationID], *msg)

	c := m.convo(uid, msg.ConversationID)
	c.UpdatedAt = m.now()
	c.IsDeleted = false
	return nil
}

// History returns up to limit messages of a conversation in stored order.
func (m *Memory) History(ctx context.Context, uid, conversationID string, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[uid][conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// CreateConversation creates a non-primary conversation.
func (m *Memory) CreateConversation(ctx context.Context, uid, title string, useMemory bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	c := m.convo(uid, id)
	c.Title = title
	c.UseMemory = useMemory
	c.UpdatedAt = c.CreatedAt
	return id, nil
}

// Conversation returns a conversation's metadata.
func (m *Memory) Conversation(ctx context.Context, uid, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[uid][id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// RenameConversation sets a conversation's title.
func (m *Memory) RenameConversation(ctx context.Context, uid, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[uid][id]
	if !ok {
		return ErrNotFound
	}
	c.Title = title
	return nil
}

// AddTask stores a new pending task.
func (m *Memory) AddTask(ctx context.Context, uid string, t Task) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t.ID = uuid.NewString()
	t.Completed = false
	t.CreatedAt = m.now()
	m.tasks[uid] = append(m.tasks[uid], t)
	return t, nil
}

// DeleteTask removes a task.
func (m *Memory) DeleteTask(ctx context.Context, uid, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, t := range m.tasks[uid] {
		if t.ID == id {
			m.tasks[uid] = append(m.tasks[uid][:i:i], m.tasks[uid][i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// ListTasks returns tasks, newest first.
func (m *Memory) ListTasks(ctx context.Context, uid string) ([]Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Task, len(m.tasks[uid]))
	copy(out, m.tasks[uid])
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// AddReminder stores a new active reminder.
func (m *Memory) AddReminder(ctx context.Context, uid string, r Reminder) (Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r.ID = uuid.NewString()
	r.Completed = false
	r.CreatedAt = m.now()
	m.reminders[uid] = append(m.reminders[uid], r)
	return r, nil
}

// DeleteReminder removes a reminder.
func (m *Memory) DeleteReminder(ctx context.Context, uid, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.reminders[uid] {
		if r.ID == id {
			m.reminders[uid] = append(m.reminders[uid][:i:i], m.reminders[uid][i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// ListReminders returns reminders ordered by datetime.
func (m *Memory) ListReminders(ctx context.Context, uid string) ([]Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Reminder, len(m.reminders[uid]))
	copy(out, m.reminders[uid])
	sort.SliceStable(out, func(i, j int) bool { return out[i].Datetime < out[j].Datetime })
	return out, nil
}

// SaveDocument stores a document and returns its id.
func (m *Memory) SaveDocument(ctx context.Context, uid string, d Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d.ID = uuid.NewString()
	if d.UploadedAt.IsZero() {
		d.UploadedAt = m.now()
	}
	m.documents[uid] = append(m.documents[uid], d)
	return d.ID, nil
}

// ListDocuments returns up to limit documents, newest first.
func (m *Memory) ListDocuments(ctx context.Context, uid string, limit int) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Document, len(m.documents[uid]))
	copy(out, m.documents[uid])
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveInsight appends an insight.
func (m *Memory) SaveInsight(ctx context.Context, uid, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.insights[uid] = append(m.insights[uid], Insight{
		ID:        uuid.NewString(),
		Content:   content,
		Timestamp: m.now(),
	})
	return nil
}

// ListInsights returns up to limit insights, newest first.
func (m *Memory) ListInsights(ctx context.Context, uid string, limit int) ([]Insight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.insights[uid]
	out := make([]Insight, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Profile returns a user's profile.
func (m *Memory) Profile(ctx context.Context, uid string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[uid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// SaveProfile stores a profile and makes sure the primary conversation
// exists.
func (m *Memory) SaveProfile(ctx context.Context, p *Profile) error {
	if p == nil || p.UID == "" {
		return fmt.Errorf("store: profile without uid")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = m.now()
	}
	m.profiles[p.UID] = &cp
	if c := m.convo(p.UID, PrimaryConversation); c.Title == "" {
		c.Title = "Primary Protocol"
		c.IsPinned = true
	}
	return nil
}

// APIKeys returns a user's stored keys.
func (m *Memory) APIKeys(ctx context.Context, uid string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.keys[uid]...), nil
}

// SaveAPIKeys replaces a user's stored keys.
func (m *Memory) SaveAPIKeys(ctx context.Context, uid string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[uid] = append([]string(nil), keys...)
	return nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
