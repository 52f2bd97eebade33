package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-jarvis/pkg/inference"
	"github.com/teslashibe/go-jarvis/pkg/store"
)

// DefaultChatTimeout bounds one chat request end to end.
const DefaultChatTimeout = 60 * time.Second

// ErrAborted is returned when a request was aborted before its result
// arrived.
var ErrAborted = errors.New("agent: request aborted")

// ChatStore is the persistence used by the chat path.
type ChatStore interface {
	store.Messages
	store.Profiles
}

// ChatRequest is one message typed by the user.
type ChatRequest struct {
	UserID string

	// ConversationID selects the thread. Empty starts a new conversation.
	ConversationID string

	Text         string
	Image        *inference.Image
	UseMemory    bool
	UseWebSearch bool
	IsAgentic    bool
	ReplyTo      *Reply
}

// ChatReply is the outcome of a chat request.
type ChatReply struct {
	ConversationID string
	Reply          store.Message
	Result         Result

	// TimedOut reports that the safety timeout fired. The reply carries an
	// apology and is not persisted.
	TimedOut bool
}

// Chat is the text chat service. It persists the user turn, runs the
// router under a safety timeout and persists the reply.
type Chat struct {
	router  *Router
	store   ChatStore
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	aborts map[chan struct{}]struct{}
}

// ChatOption configures a Chat.
type ChatOption func(*Chat)

// WithChatTimeout overrides the safety timeout.
func WithChatTimeout(d time.Duration) ChatOption {
	return func(c *Chat) { c.timeout = d }
}

// WithChatLogger sets the structured logger.
func WithChatLogger(logger *slog.Logger) ChatOption {
	return func(c *Chat) { c.logger = logger }
}

// NewChat creates a chat service.
func NewChat(router *Router, st ChatStore, opts ...ChatOption) *Chat {
	c := &Chat{
		router:  router,
		store:   st,
		timeout: DefaultChatTimeout,
		logger:  slog.Default(),
		aborts:  make(map[chan struct{}]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "agent.chat")
	return c
}

// Abort discards the results of every request in flight. The underlying
// model calls are not cancelled; their results are dropped on arrival.
// Requests started after Abort returns are unaffected.
func (c *Chat) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.aborts {
		close(ch)
		delete(c.aborts, ch)
	}
}

func (c *Chat) begin() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan struct{})
	c.aborts[ch] = struct{}{}
	return ch
}

func (c *Chat) end(ch chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.aborts, ch)
}

// Send processes one chat message.
func (c *Chat) Send(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("agent: chat request without user")
	}
	abort := c.begin()
	defer c.end(abort)

	profile, err := c.store.Profile(ctx, req.UserID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("profile unavailable", "error", err)
		}
		profile = &store.Profile{UID: req.UserID}
	}
	indo := profile.Indonesian()

	convID := req.ConversationID
	first := convID == ""
	if first {
		convID, err = c.store.CreateConversation(ctx, req.UserID, "New Session", req.UseMemory)
		if err != nil {
			return nil, fmt.Errorf("agent: create conversation: %w", err)
		}
	}

	userMsg := &store.Message{
		ConversationID: convID,
		Role:           store.RoleUser,
		Content:        req.Text,
	}
	if req.Image != nil {
		userMsg.Attachment = base64.StdEncoding.EncodeToString(req.Image.Data)
	}
	if req.ReplyTo != nil {
		userMsg.ReplyToID = req.ReplyTo.ID
		userMsg.ReplyToContent = req.ReplyTo.Content
	}
	if err := c.store.SaveMessage(ctx, req.UserID, userMsg); err != nil {
		return nil, fmt.Errorf("agent: save user message: %w", err)
	}

	if first && req.Text != "" {
		go c.title(req.UserID, convID, req.Text)
	}

	started := time.Now()
	done := make(chan Result, 1)
	go func() {
		done <- c.router.Process(context.WithoutCancel(ctx), Request{
			Text:         req.Text,
			Profile:      profile,
			Image:        req.Image,
			UseMemory:    req.UseMemory,
			IsAgentic:    req.IsAgentic || convID == store.PrimaryConversation,
			UseWebSearch: req.UseWebSearch,
			ReplyTo:      req.ReplyTo,
		})
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	var res Result
	select {
	case res = <-done:
	case <-abort:
		c.logger.Info("chat request aborted", "conversation_id", convID)
		return nil, ErrAborted
	case <-timer.C:
		c.logger.Warn("chat request timed out", "conversation_id", convID, "timeout", c.timeout)
		return &ChatReply{
			ConversationID: convID,
			Reply: store.Message{
				ConversationID: convID,
				Role:           store.RoleModel,
				Content:        msgTimeout.in(indo),
				Timestamp:      time.Now(),
			},
			TimedOut: true,
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Abort may race with the result; a closed channel wins.
	select {
	case <-abort:
		return nil, ErrAborted
	default:
	}

	reply := store.Message{
		ConversationID: convID,
		Role:           store.RoleModel,
		Content:        res.Text,
		ThinkingTime:   time.Since(started),
	}
	if len(res.Image) > 0 {
		reply.GeneratedImage = base64.StdEncoding.EncodeToString(res.Image)
	}
	for _, s := range res.Sources {
		reply.Sources = append(reply.Sources, store.Source{URI: s.URI, Title: s.Title})
	}
	if err := c.store.SaveMessage(ctx, req.UserID, &reply); err != nil {
		c.logger.Error("save reply failed", "conversation_id", convID, "error", err)
	}

	return &ChatReply{ConversationID: convID, Reply: reply, Result: res}, nil
}

func (c *Chat) title(uid, convID, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	title := c.router.ChatTitle(ctx, text)
	if err := c.store.RenameConversation(ctx, uid, convID, title); err != nil {
		c.logger.Warn("rename conversation failed", "conversation_id", convID, "error", err)
	}
}
