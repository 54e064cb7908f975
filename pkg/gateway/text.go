package gateway

import (
	"context"

	"google.golang.org/genai"

	"github.com/MohammadTaha536/mmd536/pkg/core/types"
)

// GenerateText sends one text-generation request. The caller supplies
// the request window; this method does no history management.
func (c *Client) GenerateText(ctx context.Context, req *TextRequest) (*TextResult, error) {
	model := req.Model
	if model == "" {
		model = ModelTextFlash
	}

	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		contents = append(contents, &genai.Content{
			Role:  string(turn.Role),
			Parts: []*genai.Part{{Text: turn.Text}},
		})
	}
	contents = append(contents, &genai.Content{
		Role:  string(types.RoleUser),
		Parts: []*genai.Part{{Text: req.Prompt}},
	})

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.SystemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemInstruction}},
		}
	}
	if req.UseSearch {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	if req.ThinkingBudget > 0 {
		config.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(req.ThinkingBudget),
		}
	}
	if req.SafetyOverride {
		config.SafetySettings = safetySettings()
	}

	resp, err := c.genai.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, classify("generate text", err)
	}

	return &TextResult{
		Text:          resp.Text(),
		GroundingURLs: extractGrounding(resp),
	}, nil
}

// extractGrounding pulls web citations out of the response metadata,
// dropping any chunk without a URI.
func extractGrounding(resp *genai.GenerateContentResponse) []types.GroundingURL {
	if len(resp.Candidates) == 0 {
		return nil
	}
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return nil
	}
	var urls []types.GroundingURL
	for _, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		urls = append(urls, types.GroundingURL{
			URI:   chunk.Web.URI,
			Title: chunk.Web.Title,
		})
	}
	return urls
}
