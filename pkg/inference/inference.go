// Package inference is the text and image generation layer behind the agent
// router.
//
// A Model is bound to a single API key. A Pool rotates through every
// configured key, giving each at most one bounded attempt, so a single
// exhausted or revoked key never takes the assistant down.
package inference

import (
	"context"
	"errors"
)

// Model names.
const (
	TextModel      = "gemini-2.5-flash"
	ImageEditModel = "gemini-2.5-flash-image"
	ImageGenModel  = "imagen-4.0-generate-001"
)

// Image is binary image data with its mime type.
type Image struct {
	Data     []byte
	MIMEType string
}

// GenerateRequest is a single-turn generation call.
type GenerateRequest struct {
	// Model defaults to TextModel.
	Model string

	// System is an optional system instruction.
	System string

	// Prompt is the user text.
	Prompt string

	// Image is an optional attachment sent before the prompt.
	Image *Image

	// JSON requests an application/json response.
	JSON bool

	// WebSearch enables Google Search grounding.
	WebSearch bool
}

// Source is a grounding reference.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// GenerateResponse is the model output.
type GenerateResponse struct {
	Text    string
	Sources []Source

	// Image holds the first inline image returned, if any.
	Image *Image
}

// Model generates content with a single credential.
type Model interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	GenerateImage(ctx context.Context, model, prompt string) ([]byte, error)
}

// Factory builds a Model for an API key.
type Factory func(ctx context.Context, apiKey string) (Model, error)

// ValidateKey reports whether key can complete a trivial generation.
func ValidateKey(ctx context.Context, factory Factory, key string) bool {
	if key == "" {
		return false
	}
	m, err := factory(ctx, key)
	if err != nil {
		return false
	}
	_, err = m.Generate(ctx, &GenerateRequest{Prompt: "test"})
	return err == nil
}

// ErrEmptyResponse is returned when a model produces no usable output.
var ErrEmptyResponse = errors.New("inference: empty response")
