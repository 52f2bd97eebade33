package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/genai"

	"github.com/teslashibe/go-jarvis/internal/httpc"
)

// Gemini implements Model over the Gemini API with one key.
type Gemini struct {
	client *genai.Client
	logger *slog.Logger
}

// NewGemini creates a Gemini model bound to apiKey. A nil httpClient uses
// the shared client.
func NewGemini(ctx context.Context, apiKey string, httpClient *http.Client, logger *slog.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if httpClient == nil {
		httpClient = httpc.Client
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("inference: create gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		logger: logger.With("component", "inference.gemini", "key_suffix", KeySuffix(apiKey)),
	}, nil
}

// GeminiFactory returns a Factory building Gemini models that share
// httpClient.
func GeminiFactory(httpClient *http.Client, logger *slog.Logger) Factory {
	return func(ctx context.Context, apiKey string) (Model, error) {
		return NewGemini(ctx, apiKey, httpClient, logger)
	}
}

// Generate implements Model.
func (g *Gemini) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = TextModel
	}

	var parts []*genai.Part
	if req.Image != nil && len(req.Image.Data) > 0 {
		mime := req.Image.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, genai.NewPartFromBytes(req.Image.Data, mime))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if req.WebSearch {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	res, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, convertError(err)
	}

	out := &GenerateResponse{Text: res.Text()}
	if len(res.Candidates) > 0 {
		c := res.Candidates[0]
		if gm := c.GroundingMetadata; gm != nil {
			for _, chunk := range gm.GroundingChunks {
				if chunk != nil && chunk.Web != nil {
					out.Sources = append(out.Sources, Source{URI: chunk.Web.URI, Title: chunk.Web.Title})
				}
			}
		}
		if c.Content != nil {
			for _, p := range c.Content.Parts {
				if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
					out.Image = &Image{Data: p.InlineData.Data, MIMEType: p.InlineData.MIMEType}
					break
				}
			}
		}
	}

	g.logger.Debug("generated content", "model", model, "chars", len(out.Text), "sources", len(out.Sources))
	return out, nil
}

// GenerateImage implements Model with a text-to-image model.
func (g *Gemini) GenerateImage(ctx context.Context, model, prompt string) ([]byte, error) {
	if model == "" {
		model = ImageGenModel
	}
	res, err := g.client.Models.GenerateImages(ctx, model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: "image/jpeg",
	})
	if err != nil {
		return nil, convertError(err)
	}
	if len(res.GeneratedImages) == 0 || res.GeneratedImages[0].Image == nil {
		return nil, ErrEmptyResponse
	}
	return res.GeneratedImages[0].Image.ImageBytes, nil
}

func convertError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.Code, Message: apiErr.Message, Status: apiErr.Status}
	}
	return fmt.Errorf("inference: %w", err)
}
