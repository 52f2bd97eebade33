// Package live is a client for the Gemini Live bidirectional streaming API.
//
// A Client owns exactly one connection attempt and moves through
// idle → opening → open → closed. Inbound frames are dispatched to a
// Handler strictly in arrival order on the client's read goroutine, and
// OnClose is delivered exactly once per client. Reconnection is the
// caller's job: it creates a fresh Client for each attempt.
//
// Example usage:
//
//	c, err := live.NewClient(handler, live.WithAPIKey(key))
//	if err != nil {
//	    return err
//	}
//	setup := c.NewSetup(live.BuildInstruction(params), live.ConsultCoreSystem)
//	_ = c.Open(ctx, setup) // failures arrive via handler.OnClose
//	defer c.Close()
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-jarvis/pkg/audioio"
)

// State is the lifecycle state of a Client.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseInfo describes how a connection ended.
type CloseInfo struct {
	// Abnormal is true unless Close was called locally.
	Abnormal bool

	// Err is the transport error behind an abnormal close, if any.
	Err error
}

// Handler receives connection events. Calls are serialized.
type Handler interface {
	// OnOpen fires when the server acknowledges setup.
	OnOpen()

	// OnMessage fires for each server frame with a payload.
	OnMessage(msg *ServerMessage)

	// OnClose fires exactly once when the attempt ends, including when the
	// dial itself fails.
	OnClose(info CloseInfo)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are ignored.
type HandlerFuncs struct {
	Open    func()
	Message func(msg *ServerMessage)
	Close   func(info CloseInfo)
}

func (h HandlerFuncs) OnOpen() {
	if h.Open != nil {
		h.Open()
	}
}

func (h HandlerFuncs) OnMessage(msg *ServerMessage) {
	if h.Message != nil {
		h.Message(msg)
	}
}

func (h HandlerFuncs) OnClose(info CloseInfo) {
	if h.Close != nil {
		h.Close(info)
	}
}

// Client is one Gemini Live connection attempt.
type Client struct {
	config  *Config
	logger  *slog.Logger
	handler Handler
	queue   *OutboundQueue

	mu      sync.Mutex
	state   State
	conn    Conn
	closing bool

	// writeMu serializes socket writes and the pre-open queue flush.
	writeMu   sync.Mutex
	closeOnce sync.Once

	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
}

// NewClient creates an idle client.
func NewClient(h Handler, opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{HandshakeTimeout: cfg.HandshakeTimeout}
	}
	if h == nil {
		h = HandlerFuncs{}
	}
	return &Client{
		config:  cfg,
		logger:  cfg.Logger.With("component", "live.client"),
		handler: h,
		queue:   NewOutboundQueue(cfg.QueueSize),
		state:   StateIdle,
	}, nil
}

// NewSetup builds the setup frame for this client's model and voice with
// audio output and both transcriptions enabled.
func (c *Client) NewSetup(instruction string, tools ...FunctionDeclaration) Setup {
	s := Setup{
		Model: c.config.ModelName(),
		GenerationConfig: &GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &SpeechConfig{
				VoiceConfig: VoiceConfig{PrebuiltVoiceConfig: PrebuiltVoiceConfig{VoiceName: c.config.Voice}},
			},
		},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}
	if instruction != "" {
		s.SystemInstruction = &Content{Parts: []Part{{Text: instruction}}}
	}
	if len(tools) > 0 {
		s.Tools = []Tool{{FunctionDeclarations: tools}}
	}
	return s
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open dials the server and sends setup. It returns once the setup frame
// is written; the handler's OnOpen fires later when the server
// acknowledges. Any failure is also reported through OnClose.
func (c *Client) Open(ctx context.Context, setup Setup) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyOpened
	}
	c.state = StateOpening
	c.mu.Unlock()

	if setup.Model == "" {
		setup.Model = c.config.ModelName()
	}

	c.logger.Info("connecting to Gemini Live", "model", setup.Model)

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	conn, err := c.config.Dialer.Dial(ctx, c.config.endpoint(), header)
	if err != nil {
		c.logger.Warn("dial failed", "error", err)
		c.finish(CloseInfo{Abnormal: true, Err: err})
		return err
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		_ = conn.Close()
		c.finish(CloseInfo{})
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	data, err := json.Marshal(ClientMessage{Setup: &setup})
	if err != nil {
		_ = conn.Close()
		c.finish(CloseInfo{Abnormal: true, Err: err})
		return fmt.Errorf("live: encode setup: %w", err)
	}
	if err := c.write(conn, data); err != nil {
		_ = conn.Close()
		cerr := NewConnectionError("send setup failed", err, true)
		c.finish(CloseInfo{Abnormal: true, Err: cerr})
		return cerr
	}

	go c.readLoop(conn)
	return nil
}

// Close tears the connection down. The handler sees a normal close. Close
// is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed || c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	state, conn := c.state, c.conn
	c.mu.Unlock()

	if conn != nil {
		// The read loop observes the closed socket and finishes.
		return conn.Close()
	}
	if state == StateIdle {
		c.finish(CloseInfo{})
	}
	// Opening without a conn: Open sees closing after the dial returns.
	return nil
}

// SendAudio streams PCM16 samples at the configured input rate.
func (c *Client) SendAudio(pcm []int16) error {
	return c.send(ClientMessage{RealtimeInput: &RealtimeInput{
		MediaChunks: []Blob{{
			MimeType: audioio.PCMMime(c.config.InputSampleRate),
			Data:     audioio.EncodeBase64(pcm),
		}},
	}})
}

// SendText appends a complete user turn.
func (c *Client) SendText(text string) error {
	return c.send(ClientMessage{ClientContent: &ClientContent{
		Turns:        []Content{{Role: "user", Parts: []Part{{Text: text}}}},
		TurnComplete: true,
	}})
}

// SendToolResponse answers a function call with a text result.
func (c *Client) SendToolResponse(id, name, result string) error {
	return c.send(ClientMessage{ToolResponse: &ToolResponse{
		FunctionResponses: []FunctionResponse{{
			ID:       id,
			Name:     name,
			Response: map[string]any{"result": result},
		}},
	}})
}

// Stats returns frame counters.
func (c *Client) Stats() (sent, received int64) {
	return c.messagesSent.Load(), c.messagesReceived.Load()
}

func (c *Client) send(msg ClientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("live: encode message: %w", err)
	}

	c.mu.Lock()
	switch {
	case c.closing || c.state == StateClosed:
		c.mu.Unlock()
		return ErrNotConnected
	case c.state == StateIdle:
		c.mu.Unlock()
		return ErrNotConnected
	case c.state == StateOpening:
		err := c.queue.Push(data)
		c.mu.Unlock()
		return err
	}
	conn := c.conn
	c.mu.Unlock()

	return c.write(conn, data)
}

func (c *Client) write(conn Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(data); err != nil {
		return fmt.Errorf("live: send: %w", err)
	}
	c.messagesSent.Add(1)
	return nil
}

// markOpen moves opening → open and flushes queued frames ahead of any
// concurrent sender.
func (c *Client) markOpen(conn Conn) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if c.state != StateOpening || c.closing {
		c.mu.Unlock()
		return false
	}
	c.state = StateOpen
	pending := c.queue.Drain()
	c.mu.Unlock()

	for _, data := range pending {
		if err := conn.WriteMessage(data); err != nil {
			c.logger.Warn("flush queued frame failed", "error", err)
			break
		}
		c.messagesSent.Add(1)
	}
	if len(pending) > 0 {
		c.logger.Debug("flushed queued frames", "count", len(pending))
	}
	return true
}

func (c *Client) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			local := c.closing
			c.mu.Unlock()
			_ = conn.Close()

			info := CloseInfo{Abnormal: !local}
			if !local {
				info.Err = NewConnectionError("connection lost", err, true)
				c.logger.Warn("connection closed by server", "error", err)
			}
			c.finish(info)
			return
		}
		c.messagesReceived.Add(1)

		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("failed to parse server message", "error", err)
			continue
		}

		if msg.SetupComplete != nil && c.markOpen(conn) {
			c.logger.Info("Gemini Live session ready")
			c.handler.OnOpen()
		}
		if msg.GoAway != nil {
			c.logger.Info("server going away", "time_left", msg.GoAway.TimeLeft)
		}
		if msg.HasPayload() {
			c.handler.OnMessage(&msg)
		}
	}
}

func (c *Client) finish(info CloseInfo) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.conn = nil
		c.mu.Unlock()
		c.queue.Drain()
		c.handler.OnClose(info)
	})
}
