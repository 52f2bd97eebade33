package web

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-jarvis/pkg/agent"
	"github.com/teslashibe/go-jarvis/pkg/hub"
	"github.com/teslashibe/go-jarvis/pkg/inference"
	"github.com/teslashibe/go-jarvis/pkg/session"
	"github.com/teslashibe/go-jarvis/pkg/store"
)

var (
	errSessionActive = errors.New("web: a session is already active")
	errNoVoice       = errors.New("web: voice sessions are not configured")
)

type transcriptEvent struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// StartRequest is the body of POST /api/session/start.
type StartRequest struct {
	Topic  string `json:"topic"`
	Prompt string `json:"prompt"`
}

// MicRequest is the body of POST /api/session/mic.
type MicRequest struct {
	Enabled bool `json:"enabled"`
}

// ChatRequest is the body of POST /api/chat. Image is base64 without a
// data-URL prefix.
type ChatRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
	Image          string `json:"image,omitempty"`
	ImageMIME      string `json:"image_mime,omitempty"`
	UseMemory      bool   `json:"use_memory"`
	UseWebSearch   bool   `json:"use_web_search"`
	IsAgentic      bool   `json:"is_agentic"`
	ReplyToID      string `json:"reply_to_id,omitempty"`
	ReplyToContent string `json:"reply_to_content,omitempty"`
}

// ChatResponse is returned by POST /api/chat.
type ChatResponse struct {
	ConversationID string             `json:"conversation_id"`
	Reply          store.Message      `json:"reply"`
	Kind           agent.Kind         `json:"kind"`
	Persona        string             `json:"persona"`
	Sources        []inference.Source `json:"sources,omitempty"`
	TimedOut       bool               `json:"timed_out,omitempty"`
}

// KeyRequest is the body of POST /api/keys/validate.
type KeyRequest struct {
	Key string `json:"key"`
}

// KeysRequest is the body of POST /api/keys.
type KeysRequest struct {
	Keys []string `json:"keys"`
}

// DocumentRequest is the body of POST /api/documents. Either Content or
// Image must be set; an image is run through text extraction first.
type DocumentRequest struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Image     string   `json:"image,omitempty"`
	ImageMIME string   `json:"image_mime,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// failure answers with the localized message for err. The caller logs
// the raw error.
func (s *Server) failure(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{"error": agent.ErrorMessage(err, s.cfg.Language == "id")})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func decodeImage(data, mime string) (*inference.Image, error) {
	if data == "" {
		return nil, nil
	}
	if i := strings.Index(data, ";base64,"); i >= 0 && strings.HasPrefix(data, "data:") {
		if mime == "" {
			mime = strings.TrimPrefix(data[:i], "data:")
		}
		data = data[i+len(";base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}
	if mime == "" {
		mime = "image/jpeg"
	}
	return &inference.Image{Data: raw, MIMEType: mime}, nil
}

// handleStatus returns the current session snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"user_id": s.cfg.UserID,
		"session": s.snapshot(),
	})
}

func (s *Server) handleSessionStart(c *fiber.Ctx) error {
	var req StartRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	sess, err := s.startSession(c.UserContext(), session.StartParams{Topic: req.Topic, Prompt: req.Prompt})
	switch {
	case errors.Is(err, errSessionActive):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, errNoVoice):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case session.IsDeviceError(err):
		s.logger.Error("audio devices unavailable", "error", err)
		return s.failure(c, fiber.StatusServiceUnavailable, err)
	case err != nil:
		s.logger.Error("failed to start session", "error", err)
		return s.failure(c, fiber.StatusInternalServerError, err)
	}
	return c.JSON(fiber.Map{"session": sess.Snapshot()})
}

func (s *Server) handleSessionStop(c *fiber.Ctx) error {
	if !s.stopSession() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no active session"})
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleSessionMic(c *fiber.Ctx) error {
	var req MicRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	sess := s.current()
	if sess == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no active session"})
	}
	sess.SetMic(req.Enabled)
	return c.JSON(fiber.Map{"session": sess.Snapshot()})
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	if s.cfg.Chat == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "chat is not configured"})
	}
	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	img, err := decodeImage(req.Image, req.ImageMIME)
	if err != nil {
		return badRequest(c, "invalid image encoding")
	}
	if strings.TrimSpace(req.Text) == "" && img == nil {
		return badRequest(c, "text or image is required")
	}

	chatReq := agent.ChatRequest{
		UserID:         s.cfg.UserID,
		ConversationID: req.ConversationID,
		Text:           req.Text,
		Image:          img,
		UseMemory:      req.UseMemory,
		UseWebSearch:   req.UseWebSearch,
		IsAgentic:      req.IsAgentic,
	}
	if req.ReplyToID != "" {
		chatReq.ReplyTo = &agent.Reply{ID: req.ReplyToID, Content: req.ReplyToContent}
	}

	reply, err := s.cfg.Chat.Send(c.UserContext(), chatReq)
	switch {
	case errors.Is(err, agent.ErrAborted):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "aborted"})
	case err != nil:
		s.logger.Error("chat failed", "error", err)
		return s.failure(c, fiber.StatusInternalServerError, err)
	}

	return c.JSON(ChatResponse{
		ConversationID: reply.ConversationID,
		Reply:          reply.Reply,
		Kind:           reply.Result.Kind,
		Persona:        reply.Result.Persona.String(),
		Sources:        reply.Result.Sources,
		TimedOut:       reply.TimedOut,
	})
}

func (s *Server) handleChatAbort(c *fiber.Ctx) error {
	if s.cfg.Chat != nil {
		s.cfg.Chat.Abort()
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleValidateKey(c *fiber.Ctx) error {
	var req KeyRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Key) == "" {
		return badRequest(c, "key is required")
	}
	valid := s.cfg.ValidateKey != nil && s.cfg.ValidateKey(c.UserContext(), strings.TrimSpace(req.Key))
	return c.JSON(fiber.Map{
		"valid":      valid,
		"key_suffix": inference.KeySuffix(req.Key),
	})
}

func (s *Server) handleSaveKeys(c *fiber.Ctx) error {
	var req KeysRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if s.cfg.Store == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "store is not configured"})
	}
	keys := inference.LookupKeys(req.Keys, "", "")
	if err := s.cfg.Store.SaveAPIKeys(c.UserContext(), s.cfg.UserID, keys); err != nil {
		s.logger.Error("failed to save api keys", "error", err)
		return s.failure(c, fiber.StatusInternalServerError, err)
	}
	return c.JSON(fiber.Map{"count": len(keys)})
}

func (s *Server) handleDocument(c *fiber.Ctx) error {
	if s.cfg.Store == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "store is not configured"})
	}
	var req DocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	doc := store.Document{Title: strings.TrimSpace(req.Title), Type: "text", Content: req.Content, Tags: req.Tags}
	if req.Image != "" {
		img, err := decodeImage(req.Image, req.ImageMIME)
		if err != nil {
			return badRequest(c, "invalid image encoding")
		}
		if s.cfg.OCR == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "text extraction is not configured"})
		}
		doc.Type = "image"
		doc.Content = s.cfg.OCR.ExtractText(c.UserContext(), *img)
	}
	if strings.TrimSpace(doc.Content) == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "document has no readable text"})
	}
	if doc.Title == "" {
		doc.Title = "Untitled"
	}

	id, err := s.cfg.Store.SaveDocument(c.UserContext(), s.cfg.UserID, doc)
	if err != nil {
		s.logger.Error("failed to save document", "error", err)
		return s.failure(c, fiber.StatusInternalServerError, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id, "type": doc.Type, "content": doc.Content})
}

func (s *Server) handleNotifications(c *fiber.Ctx) error {
	if s.cfg.Notifications == nil {
		return c.JSON([]any{})
	}
	return c.JSON(s.cfg.Notifications(s.cfg.UserID))
}

// handleStatusWS streams session state, starting from the current one.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	initial, err := hub.EncodeEnvelope(string(session.EventStatus), s.snapshot())
	if err != nil {
		_ = c.Close()
		return
	}
	hub.NewClient(s.statusHub, c, initial).Run()
}

// handleTranscriptWS streams transcript fragments.
func (s *Server) handleTranscriptWS(c *websocket.Conn) {
	hub.NewClient(s.transcriptHub, c).Run()
}
