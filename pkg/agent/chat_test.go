package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-jarvis/pkg/inference"
	"github.com/teslashibe/go-jarvis/pkg/store"
)

func TestChatSendPersistsTurns(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.SaveProfile(ctx, &store.Profile{UID: "u1", Name: "Tony"})

	s := &scripted{
		route: `{"agent":"doctor"}`,
		replies: map[string]string{
			"You are the DOCTOR AGENT": "rest well",
			"Generate a 3-word title":  "Headache Care Tips",
		},
	}
	chat := NewChat(newTestRouter(t, s.model(), st), st)

	reply, err := chat.Send(ctx, ChatRequest{UserID: "u1", Text: "I have a headache"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.ConversationID == "" || reply.Reply.Content != "rest well" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	history, _ := st.History(ctx, "u1", reply.ConversationID, 0)
	if len(history) != 2 {
		t.Fatalf("history = %+v", history)
	}
	if history[0].Role != store.RoleUser || history[1].Role != store.RoleModel {
		t.Errorf("wrong order: %v then %v", history[0].Role, history[1].Role)
	}

	// The title is generated in the background.
	deadline := time.Now().Add(2 * time.Second)
	for {
		c, _ := st.Conversation(ctx, "u1", reply.ConversationID)
		if c != nil && c.Title == "Headache Care Tips" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("conversation not renamed: %+v", c)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestChatTimeout(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	release := make(chan struct{})
	defer close(release)
	slow := &inference.Mock{GenerateFunc: func(ctx context.Context, req *inference.GenerateRequest) (*inference.GenerateResponse, error) {
		<-release
		return &inference.GenerateResponse{Text: "late"}, nil
	}}

	chat := NewChat(newTestRouter(t, slow, st), st, WithChatTimeout(20*time.Millisecond))
	reply, err := chat.Send(ctx, ChatRequest{UserID: "u1", ConversationID: store.PrimaryConversation, Text: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !reply.TimedOut || reply.Reply.Content != msgTimeout.en {
		t.Errorf("unexpected reply: %+v", reply)
	}

	history, _ := st.History(ctx, "u1", store.PrimaryConversation, 0)
	if len(history) != 1 {
		t.Errorf("timeout reply must not be persisted, history = %+v", history)
	}
}

func TestChatAbort(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	slow := &inference.Mock{GenerateFunc: func(ctx context.Context, req *inference.GenerateRequest) (*inference.GenerateResponse, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return &inference.GenerateResponse{Text: `{"agent":"analyst"}`}, nil
	}}

	chat := NewChat(newTestRouter(t, slow, st), st)

	errc := make(chan error, 1)
	go func() {
		_, err := chat.Send(ctx, ChatRequest{UserID: "u1", ConversationID: store.PrimaryConversation, Text: "hi"})
		errc <- err
	}()

	<-started
	chat.Abort()
	if err := <-errc; !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	close(release)

	history, _ := st.History(ctx, "u1", store.PrimaryConversation, 0)
	if len(history) != 1 {
		t.Errorf("aborted reply must not be persisted, history = %+v", history)
	}
}

func TestChatAbortOverlapping(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	slow := &inference.Mock{GenerateFunc: func(ctx context.Context, req *inference.GenerateRequest) (*inference.GenerateResponse, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return &inference.GenerateResponse{Text: `{"agent":"analyst"}`}, nil
	}}

	chat := NewChat(newTestRouter(t, slow, st), st)

	convs := []string{"first", "second"}
	errc := make(chan error, len(convs))
	for _, id := range convs {
		go func() {
			_, err := chat.Send(ctx, ChatRequest{UserID: "u1", ConversationID: id, Text: "hi"})
			errc <- err
		}()
	}

	for range convs {
		<-started
	}
	chat.Abort()
	for range convs {
		if err := <-errc; !errors.Is(err, ErrAborted) {
			t.Fatalf("expected ErrAborted, got %v", err)
		}
	}
	close(release)

	for _, id := range convs {
		history, _ := st.History(ctx, "u1", id, 0)
		for _, m := range history {
			if m.Role == store.RoleModel {
				t.Errorf("aborted reply persisted in %s: %+v", id, history)
			}
		}
	}
}

func TestChatRequiresUser(t *testing.T) {
	st := store.NewMemory()
	chat := NewChat(newTestRouter(t, inference.NewMock("x"), st), st)
	if _, err := chat.Send(context.Background(), ChatRequest{Text: "hi"}); err == nil {
		t.Error("expected error without user id")
	}
}
