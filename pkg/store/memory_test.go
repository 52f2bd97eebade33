package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMemoryMessages(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for _, msg := range []*Message{
		{ConversationID: PrimaryConversation, Role: RoleUser, Content: "hello"},
		{ConversationID: PrimaryConversation, Role: RoleModel, Content: "hi there"},
	} {
		if err := m.SaveMessage(ctx, "u1", msg); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
		if msg.ID == "" {
			t.Error("expected id to be assigned")
		}
	}

	history, err := m.History(ctx, "u1", PrimaryConversation, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 || history[0].Role != RoleUser || history[1].Role != RoleModel {
		t.Fatalf("unexpected history: %+v", history)
	}

	if other, _ := m.History(ctx, "u2", PrimaryConversation, 0); len(other) != 0 {
		t.Error("history leaked across users")
	}

	if err := m.SaveMessage(ctx, "u1", &Message{Content: "orphan"}); err == nil {
		t.Error("expected error for message without conversation")
	}
}

func TestMemoryConversations(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.CreateConversation(ctx, "u1", "New Session", false)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if err := m.RenameConversation(ctx, "u1", id, "Go Concurrency Tips"); err != nil {
		t.Fatalf("RenameConversation: %v", err)
	}
	c, err := m.Conversation(ctx, "u1", id)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if c.Title != "Go Concurrency Tips" || c.UseMemory || c.IsPrimary {
		t.Errorf("unexpected conversation: %+v", c)
	}

	if _, err := m.Conversation(ctx, "u1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryTasksAndReminders(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tick := base
	m.SetNow(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	})

	first, _ := m.AddTask(ctx, "u1", Task{Title: "first", Priority: PriorityLow, Completed: true})
	second, _ := m.AddTask(ctx, "u1", Task{Title: "second", Priority: PriorityHigh})
	if first.Completed {
		t.Error("new tasks start pending")
	}

	tasks, _ := m.ListTasks(ctx, "u1")
	if len(tasks) != 2 || tasks[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", tasks)
	}

	if err := m.DeleteTask(ctx, "u1", first.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if err := m.DeleteTask(ctx, "u1", first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	m.AddReminder(ctx, "u1", Reminder{Title: "late", Datetime: "2025-01-03T10:00"})
	early, _ := m.AddReminder(ctx, "u1", Reminder{Title: "early", Datetime: "2025-01-02T10:00"})
	reminders, _ := m.ListReminders(ctx, "u1")
	if len(reminders) != 2 || reminders[0].ID != early.ID {
		t.Fatalf("expected datetime order, got %+v", reminders)
	}

	text, err := LoadTasks(ctx, m, "u1")
	if err != nil {
		t.Fatalf("LoadTasks: %v", err)
	}
	if !strings.Contains(text, "second") || !strings.Contains(text, "REMINDERS:") {
		t.Errorf("unexpected tasks text: %q", text)
	}
}

func TestMemoryInsightsAndMemoryContext(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.SaveInsight(ctx, "u1", "old")
	m.SaveInsight(ctx, "u1", "new")
	insights, _ := m.ListInsights(ctx, "u1", 1)
	if len(insights) != 1 || insights[0].Content != "new" {
		t.Fatalf("expected newest insight, got %+v", insights)
	}

	m.SaveMessage(ctx, "u1", &Message{ConversationID: PrimaryConversation, Role: RoleUser, Content: "remember Go"})
	text, err := LoadMemory(ctx, m, "u1")
	if err != nil {
		t.Fatalf("LoadMemory: %v", err)
	}
	if !strings.Contains(text, "new\nold") || !strings.Contains(text, "USER: remember Go") {
		t.Errorf("unexpected memory: %q", text)
	}
}

func TestMemoryDocuments(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if text, _ := LoadDocuments(ctx, m, "u1"); text != "No stored documents found." {
		t.Errorf("empty documents = %q", text)
	}

	id, err := m.SaveDocument(ctx, "u1", Document{Title: "Lease", Type: "personal", Content: "rent is due on the 5th"})
	if err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	text, _ := LoadDocuments(ctx, m, "u1")
	if !strings.Contains(text, "[DOC_ID: "+id+"] TITLE: Lease") {
		t.Errorf("unexpected documents: %q", text)
	}
}

func TestMemoryProfileAndKeys(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Profile(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := m.SaveProfile(ctx, &Profile{UID: "u1", Name: "Tony", Language: "id"}); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	p, _ := m.Profile(ctx, "u1")
	if p.Name != "Tony" || !p.Indonesian() {
		t.Errorf("unexpected profile: %+v", p)
	}
	c, err := m.Conversation(ctx, "u1", PrimaryConversation)
	if err != nil || !c.IsPrimary || c.Title != "Primary Protocol" {
		t.Errorf("primary conversation not created: %+v, %v", c, err)
	}

	keys := []string{"k1", "k2"}
	m.SaveAPIKeys(ctx, "u1", keys)
	keys[0] = "mutated"
	got, _ := m.APIKeys(ctx, "u1")
	if len(got) != 2 || got[0] != "k1" {
		t.Errorf("APIKeys = %v", got)
	}
}
