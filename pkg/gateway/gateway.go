// Package gateway wraps the remote generative-AI service behind a
// small boundary: text generation, image generation, and a
// bidirectional live audio stream.
//
// All failures crossing this boundary are classified into the closed
// core.ErrorKind set so callers never inspect error text.
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/MohammadTaha536/mmd536/pkg/core/types"
)

// Remote model names.
const (
	ModelTextFlash = "gemini-3-flash-preview"
	ModelTextPro   = "gemini-3-pro-preview"
	ModelImage     = "gemini-2.5-flash-image"
	ModelLiveAudio = "gemini-2.5-flash-native-audio-preview-09-2025"

	DefaultLiveVoice = "Zephyr"
)

// Turn is one prior conversation turn included in a text request.
type Turn struct {
	Role types.Role
	Text string
}

// TextRequest configures a single text-generation call.
type TextRequest struct {
	Prompt            string
	History           []Turn // oldest first; the request window, not full history
	SystemInstruction string
	Temperature       float64
	UseSearch         bool
	ThinkingBudget    int32 // 0 disables thinking
	Model             string
	SafetyOverride    bool // best-effort relaxation of remote safety thresholds
}

// TextResult is the outcome of a successful text-generation call.
type TextResult struct {
	Text          string
	GroundingURLs []types.GroundingURL
}

// ImageRequest configures a single image-generation call.
type ImageRequest struct {
	Prompt         string
	SafetyOverride bool
}

// ImageResult carries exactly one of the two fields: image bytes on
// success, or the remote service's refusal text.
type ImageResult struct {
	PNG         []byte
	RefusalText string
}

// LiveRequest configures a bidirectional live audio session.
type LiveRequest struct {
	SystemInstruction string
	Voice             string
	Model             string
}

// TextGenerator is the text-generation boundary.
type TextGenerator interface {
	GenerateText(ctx context.Context, req *TextRequest) (*TextResult, error)
}

// ImageGenerator is the image-generation boundary.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error)
}

// LiveDialer opens bidirectional live audio streams.
type LiveDialer interface {
	DialLive(ctx context.Context, req *LiveRequest) (LiveStream, error)
}

// Client talks to the Gemini API. It implements TextGenerator,
// ImageGenerator and LiveDialer.
type Client struct {
	apiKey  string
	genai   *genai.Client
	logger  *slog.Logger
	liveURL string // override for tests
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithLiveURL overrides the live websocket endpoint (tests only).
func WithLiveURL(url string) Option {
	return func(c *Client) { c.liveURL = url }
}

// NewClient creates a gateway client authenticated with apiKey.
func NewClient(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	c := &Client{
		apiKey: apiKey,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c.genai = gc
	return c, nil
}

var (
	_ TextGenerator  = (*Client)(nil)
	_ ImageGenerator = (*Client)(nil)
	_ LiveDialer     = (*Client)(nil)
)

// safetySettings relaxes every category to BLOCK_NONE. Sent only when a
// request carries SafetyOverride; the remote service may still refuse.
func safetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
		genai.HarmCategoryCivicIntegrity,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, cat := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  cat,
			Threshold: genai.HarmBlockThresholdBlockNone,
		})
	}
	return settings
}
