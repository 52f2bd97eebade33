package store

import (
	"context"
	"fmt"
	"strings"
)

// Context limits.
const (
	DocumentLimit      = 10
	DocumentCharLimit  = 1500
	InsightLimit       = 10
	RecentMessageLimit = 20
	HistoryLimit       = 100
)

// TasksForAI renders tasks and reminders for a model prompt.
func TasksForAI(tasks []Task, reminders []Reminder) string {
	var b strings.Builder
	if len(tasks) > 0 {
		b.WriteString("TASKS:\n")
		for i, t := range tasks {
			state := "PENDING"
			if t.Completed {
				state = "DONE"
			}
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "- [%s] %s (Priority: %s) (ID: %s)", state, t.Title, t.Priority, t.ID)
		}
		b.WriteByte('\n')
	}
	if len(reminders) > 0 {
		b.WriteString("REMINDERS:\n")
		for i, r := range reminders {
			state := "ACTIVE"
			if r.Completed {
				state = "DONE"
			}
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "- [%s] %s at %s (ID: %s)", state, r.Title, r.Datetime, r.ID)
		}
	}
	if b.Len() == 0 {
		return "No pending tasks or reminders."
	}
	return b.String()
}

// DocumentsContext renders up to DocumentLimit documents, newest first, for
// the archivist. Content is cut at DocumentCharLimit characters.
func DocumentsContext(docs []Document) string {
	if len(docs) == 0 {
		return "No stored documents found."
	}
	if len(docs) > DocumentLimit {
		docs = docs[:DocumentLimit]
	}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		content := d.Content
		if r := []rune(content); len(r) > DocumentCharLimit {
			content = string(r[:DocumentCharLimit])
		}
		parts = append(parts, fmt.Sprintf("[DOC_ID: %s] TITLE: %s\nCONTENT: %s...", d.ID, d.Title, content))
	}
	return strings.Join(parts, "\n\n")
}

// MemoryContext renders long-term insights and the tail of the primary
// conversation.
func MemoryContext(insights []Insight, history []Message) string {
	var b strings.Builder
	if len(insights) > 0 {
		lines := make([]string, len(insights))
		for i, in := range insights {
			lines[i] = in.Content
		}
		b.WriteString("LONG TERM INSIGHTS & DAILY BRIEFINGS:\n")
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n\n")
	}
	if len(history) > 0 {
		if len(history) > RecentMessageLimit {
			history = history[len(history)-RecentMessageLimit:]
		}
		lines := make([]string, len(history))
		for i, m := range history {
			who := "JARVIS"
			if m.Role == RoleUser {
				who = "USER"
			}
			lines[i] = who + ": " + m.Content
		}
		b.WriteString("RECENT CONVERSATION:\n")
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String()
}

// LoadTasks fetches and renders a user's tasks and reminders.
func LoadTasks(ctx context.Context, s interface {
	Tasks
	Reminders
}, uid string) (string, error) {
	tasks, err := s.ListTasks(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("store: list tasks: %w", err)
	}
	reminders, err := s.ListReminders(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("store: list reminders: %w", err)
	}
	return TasksForAI(tasks, reminders), nil
}

// LoadDocuments fetches and renders a user's newest documents.
func LoadDocuments(ctx context.Context, s Documents, uid string) (string, error) {
	docs, err := s.ListDocuments(ctx, uid, DocumentLimit)
	if err != nil {
		return "", fmt.Errorf("store: list documents: %w", err)
	}
	return DocumentsContext(docs), nil
}

// LoadMemory fetches and renders the user's memory context.
func LoadMemory(ctx context.Context, s interface {
	Messages
	Insights
}, uid string) (string, error) {
	insights, err := s.ListInsights(ctx, uid, InsightLimit)
	if err != nil {
		return "", fmt.Errorf("store: list insights: %w", err)
	}
	history, err := s.History(ctx, uid, PrimaryConversation, HistoryLimit)
	if err != nil {
		return "", fmt.Errorf("store: load history: %w", err)
	}
	return MemoryContext(insights, history), nil
}
