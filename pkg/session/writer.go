package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-jarvis/pkg/store"
)

// turn is one completed exchange waiting to be persisted.
type turn struct {
	user  string
	model string
	at    time.Time
}

// turnWriter persists completed turns on its own goroutine so store
// latency never stalls inbound message handling. Turns are written in
// enqueue order, user before model.
type turnWriter struct {
	messages store.Messages
	uid      string
	convID   string
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	ch     chan turn
	done   chan struct{}
}

func newTurnWriter(messages store.Messages, uid, convID string, logger *slog.Logger) *turnWriter {
	w := &turnWriter{
		messages: messages,
		uid:      uid,
		convID:   convID,
		logger:   logger,
		ch:       make(chan turn, 64),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

// Enqueue schedules a turn. Empty sides are skipped. It reports false
// after Close.
func (w *turnWriter) Enqueue(t turn) bool {
	if strings.TrimSpace(t.user) == "" && strings.TrimSpace(t.model) == "" {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.ch <- t
	return true
}

// Close flushes pending turns and waits for the writer to finish.
func (w *turnWriter) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *turnWriter) run() {
	defer close(w.done)
	// Writes outlive the session context so the final turn lands after a
	// close phrase.
	ctx := context.Background()
	for t := range w.ch {
		w.save(ctx, store.RoleUser, t.user, t.at)
		w.save(ctx, store.RoleModel, t.model, t.at)
	}
}

func (w *turnWriter) save(ctx context.Context, role store.Role, text string, at time.Time) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	msg := &store.Message{
		ConversationID:    w.convID,
		Role:              role,
		Content:           text,
		Timestamp:         at,
		IsLiveInteraction: true,
	}
	if err := w.messages.SaveMessage(ctx, w.uid, msg); err != nil {
		w.logger.Warn("failed to save transcript", "role", role, "error", err)
	}
}
