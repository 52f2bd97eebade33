// Package web is the local HTTP surface of the assistant: it starts and
// stops live voice sessions, serves text chat, accepts documents and
// streams session state to the dashboard over websockets.
package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-jarvis/pkg/agent"
	"github.com/teslashibe/go-jarvis/pkg/hub"
	"github.com/teslashibe/go-jarvis/pkg/inference"
	"github.com/teslashibe/go-jarvis/pkg/insight"
	"github.com/teslashibe/go-jarvis/pkg/session"
	"github.com/teslashibe/go-jarvis/pkg/store"
)

// SessionFactory builds a fresh, unstarted voice session.
type SessionFactory func(ctx context.Context) (*session.Session, error)

// ChatService answers text chat requests.
type ChatService interface {
	Send(ctx context.Context, req agent.ChatRequest) (*agent.ChatReply, error)
	Abort()
}

// TextExtractor reads the text out of an uploaded image.
type TextExtractor interface {
	ExtractText(ctx context.Context, img inference.Image) string
}

// Store is the persistence the server writes to directly.
type Store interface {
	store.Documents
	store.Settings
}

// Config wires the server to the rest of the process.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// UserID is the local user every request acts for.
	UserID string

	// Language selects the language of error messages: "en" or "id".
	Language string

	Logger *slog.Logger

	Store      Store
	Chat       ChatService
	OCR        TextExtractor
	NewSession SessionFactory

	// ValidateKey reports whether an API key works.
	ValidateKey func(ctx context.Context, key string) bool

	// Notifications lists the monitoring agent's findings for a user.
	Notifications func(uid string) []insight.Notification

	// StaticDir, when set, is served at "/".
	StaticDir string
}

// Server is the HTTP and websocket server.
type Server struct {
	cfg    Config
	app    *fiber.App
	logger *slog.Logger

	statusHub     *hub.Hub
	transcriptHub *hub.Hub

	// base outlives individual requests; sessions are bound to it.
	baseMu sync.Mutex
	base   context.Context

	mu          sync.Mutex
	active      *session.Session
	starting    bool
	unsubscribe func()
	last        session.Snapshot
}

// NewServer creates a Server. Routes are registered immediately so the app
// can be exercised with App().Test before Run.
func NewServer(cfg Config) (*Server, error) {
	if cfg.UserID == "" {
		return nil, errors.New("web: user id is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "web.server")

	s := &Server{
		cfg:           cfg,
		logger:        logger,
		statusHub:     hub.New("status", logger),
		transcriptHub: hub.New("transcript", logger),
		base:          context.Background(),
		last:          session.Snapshot{Status: session.StatusIdle},
	}

	app := fiber.New(fiber.Config{
		AppName:               "JARVIS",
		DisableStartupMessage: true,
		BodyLimit:             16 * 1024 * 1024,
	})
	app.Use(cors.New())
	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/session/start", s.handleSessionStart)
	api.Post("/session/stop", s.handleSessionStop)
	api.Post("/session/mic", s.handleSessionMic)
	api.Post("/chat", s.handleChat)
	api.Post("/chat/abort", s.handleChatAbort)
	api.Post("/keys/validate", s.handleValidateKey)
	api.Post("/keys", s.handleSaveKeys)
	api.Post("/documents", s.handleDocument)
	api.Get("/notifications", s.handleNotifications)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/transcript", websocket.New(s.handleTranscriptWS))

	s.app = app
	return s, nil
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is done, then closes any active session and shuts
// the server down.
func (s *Server) Run(ctx context.Context) error {
	s.baseMu.Lock()
	s.base = ctx
	s.baseMu.Unlock()

	go s.statusHub.Run(ctx)
	go s.transcriptHub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.stopSession()
	if err := s.app.Shutdown(); err != nil {
		return err
	}
	return nil
}

// Notify pushes a monitoring notification to dashboard subscribers.
func (s *Server) Notify(uid string, n insight.Notification) {
	if uid != s.cfg.UserID {
		return
	}
	if err := s.statusHub.BroadcastEvent("notification", n); err != nil {
		s.logger.Warn("failed to encode notification", "error", err)
	}
}

func (s *Server) baseContext() context.Context {
	s.baseMu.Lock()
	defer s.baseMu.Unlock()
	return s.base
}

// snapshot returns the active session's state, or the last state seen.
func (s *Server) snapshot() session.Snapshot {
	s.mu.Lock()
	active := s.active
	last := s.last
	s.mu.Unlock()
	if active != nil {
		return active.Snapshot()
	}
	return last
}

func (s *Server) current() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// startSession builds and starts a session. It returns errSessionActive
// when one is already running.
func (s *Server) startSession(ctx context.Context, p session.StartParams) (*session.Session, error) {
	if s.cfg.NewSession == nil {
		return nil, errNoVoice
	}

	s.mu.Lock()
	if s.active != nil || s.starting {
		s.mu.Unlock()
		return nil, errSessionActive
	}
	s.starting = true
	s.mu.Unlock()

	sess, err := s.cfg.NewSession(ctx)

	s.mu.Lock()
	s.starting = false
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.active = sess
	s.unsubscribe = sess.Subscribe(s.forward)
	s.mu.Unlock()

	if err := sess.Start(s.baseContext(), p); err != nil {
		s.release(sess)
		return nil, err
	}
	go func() {
		<-sess.Done()
		s.release(sess)
	}()
	return sess, nil
}

// release forgets sess once it has ended.
func (s *Server) release(sess *session.Session) {
	snap := sess.Snapshot()

	s.mu.Lock()
	if s.active != sess {
		s.mu.Unlock()
		return
	}
	unsubscribe := s.unsubscribe
	s.active = nil
	s.unsubscribe = nil
	s.last = snap
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	_ = s.statusHub.BroadcastEvent("status", snap)
	s.logger.Info("session ended", "status", snap.Status, "reason", snap.Reason)
}

func (s *Server) stopSession() bool {
	sess := s.current()
	if sess == nil {
		return false
	}
	_ = sess.Close()
	return true
}

// forward relays session events to the hubs. Listeners must not block and
// Broadcast never does.
func (s *Server) forward(ev session.Event) {
	switch ev.Kind {
	case session.EventTranscript:
		_ = s.transcriptHub.BroadcastEvent("transcript", transcriptEvent{Role: string(ev.Role), Text: ev.Text})
	default:
		_ = s.statusHub.BroadcastEvent(string(ev.Kind), ev.Snapshot)
	}
}
