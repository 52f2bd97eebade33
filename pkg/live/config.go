package live

import (
	"log/slog"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultURL is the Gemini Live WebSocket endpoint.
	DefaultURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// DefaultModel is the native-audio live model.
	DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

	// DefaultVoice is the prebuilt output voice.
	DefaultVoice = "Fenrir"
)

// Config holds configuration for a live client.
type Config struct {
	// APIKey authenticates the connection.
	APIKey string

	// Model is the live model name, with or without the "models/" prefix.
	Model string

	// Voice is the prebuilt voice name.
	Voice string

	// URL overrides the endpoint.
	URL string

	// HandshakeTimeout bounds the WebSocket handshake.
	HandshakeTimeout time.Duration

	// QueueSize bounds frames buffered before the connection opens.
	QueueSize int

	// InputSampleRate is the rate of audio passed to SendAudio.
	InputSampleRate int

	// Dialer opens connections. Defaults to WebsocketDialer.
	Dialer Dialer

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Model:            DefaultModel,
		Voice:            DefaultVoice,
		URL:              DefaultURL,
		HandshakeTimeout: 10 * time.Second,
		QueueSize:        DefaultQueueSize,
		InputSampleRate:  16000,
		Logger:           slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// ModelName returns the model with the "models/" prefix the setup frame
// expects.
func (c *Config) ModelName() string {
	if strings.HasPrefix(c.Model, "models/") {
		return c.Model
	}
	return "models/" + c.Model
}

func (c *Config) endpoint() string {
	return c.URL + "?key=" + url.QueryEscape(c.APIKey)
}

// Option is a functional option for configuring clients.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithModel sets the live model.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithVoice sets the output voice.
func WithVoice(voice string) Option {
	return func(c *Config) {
		c.Voice = voice
	}
}

// WithURL overrides the endpoint.
func WithURL(u string) Option {
	return func(c *Config) {
		c.URL = u
	}
}

// WithDialer sets the transport dialer.
func WithDialer(d Dialer) Option {
	return func(c *Config) {
		c.Dialer = d
	}
}

// WithQueueSize sets the pre-open outbound queue bound.
func WithQueueSize(n int) Option {
	return func(c *Config) {
		c.QueueSize = n
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
