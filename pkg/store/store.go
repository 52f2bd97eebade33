// Package store defines the persistence collaborators of the assistant:
// conversations, tasks, reminders, documents, insights, profiles and
// per-user API keys. Every operation is scoped to a user id.
//
// Two implementations are provided: Firestore, laid out under
// users/{uid}/..., and Memory for tests and local runs.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("store: not found")

// PrimaryConversation is the id of the long-lived conversation that backs
// the assistant's memory.
const PrimaryConversation = "primary"

// Role identifies who authored a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// Source is a web reference cited by a search-grounded reply.
type Source struct {
	URI   string `json:"uri" firestore:"uri"`
	Title string `json:"title" firestore:"title"`
}

// Message is one stored conversational turn.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`

	Attachment        string        `json:"attachment,omitempty"`
	GeneratedImage    string        `json:"generated_image,omitempty"`
	IsLiveInteraction bool          `json:"is_live_interaction,omitempty"`
	ThinkingTime      time.Duration `json:"thinking_time,omitempty"`
	Sources           []Source      `json:"sources,omitempty"`
	ReplyToID         string        `json:"reply_to_id,omitempty"`
	ReplyToContent    string        `json:"reply_to_content,omitempty"`
	DiscussionTopic   string        `json:"discussion_topic,omitempty"`
}

// Conversation is a chat thread's metadata.
type Conversation struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	IsPrimary   bool      `json:"is_primary"`
	UseMemory   bool      `json:"use_memory"`
	IsPinned    bool      `json:"is_pinned"`
	IsTemporary bool      `json:"is_temporary"`
	IsDeleted   bool      `json:"is_deleted"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Priority is a task priority.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Task is a to-do item.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    Priority  `json:"priority"`
	DueDate     string    `json:"due_date,omitempty"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
}

// Reminder is a timed alarm. Datetime is an ISO-8601 string as produced by
// the model.
type Reminder struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Datetime  string    `json:"datetime"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

// Document is a user-uploaded text kept for the archivist.
type Document struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	Tags       []string  `json:"tags,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Insight is a long-term memory line written by the monitoring agent.
type Insight struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Profile describes the user the assistant is talking to.
type Profile struct {
	UID       string    `json:"uid"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Country   string    `json:"country,omitempty"`
	City      string    `json:"city,omitempty"`
	Gender    string    `json:"gender,omitempty"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Indonesian reports whether the user prefers Bahasa Indonesia.
func (p *Profile) Indonesian() bool { return p != nil && p.Language == "id" }

// Honorific returns the form of address for the user.
func (p *Profile) Honorific() string {
	if p != nil && p.Gender == "female" {
		return "Ma'am"
	}
	return "Sir"
}

// Messages stores conversations and their turns.
type Messages interface {
	SaveMessage(ctx context.Context, uid string, msg *Message) error
	History(ctx context.Context, uid, conversationID string, limit int) ([]Message, error)
	CreateConversation(ctx context.Context, uid, title string, useMemory bool) (string, error)
	Conversation(ctx context.Context, uid, id string) (*Conversation, error)
	RenameConversation(ctx context.Context, uid, id, title string) error
}

// Tasks stores to-do items.
type Tasks interface {
	AddTask(ctx context.Context, uid string, t Task) (Task, error)
	DeleteTask(ctx context.Context, uid, id string) error
	ListTasks(ctx context.Context, uid string) ([]Task, error)
}

// Reminders stores alarms.
type Reminders interface {
	AddReminder(ctx context.Context, uid string, r Reminder) (Reminder, error)
	DeleteReminder(ctx context.Context, uid, id string) error
	ListReminders(ctx context.Context, uid string) ([]Reminder, error)
}

// Documents stores archived texts.
type Documents interface {
	SaveDocument(ctx context.Context, uid string, d Document) (string, error)
	ListDocuments(ctx context.Context, uid string, limit int) ([]Document, error)
}

// Insights stores long-term memory lines, newest first.
type Insights interface {
	SaveInsight(ctx context.Context, uid, content string) error
	ListInsights(ctx context.Context, uid string, limit int) ([]Insight, error)
}

// Profiles stores user profiles.
type Profiles interface {
	Profile(ctx context.Context, uid string) (*Profile, error)
	SaveProfile(ctx context.Context, p *Profile) error
}

// Settings stores per-user API keys.
type Settings interface {
	APIKeys(ctx context.Context, uid string) ([]string, error)
	SaveAPIKeys(ctx context.Context, uid string, keys []string) error
}

// Store is the full persistence surface.
type Store interface {
	Messages
	Tasks
	Reminders
	Documents
	Insights
	Profiles
	Settings
	Close() error
}
