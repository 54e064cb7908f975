// Package studio generates images from prompts and keeps the gallery
// of past renders.
package studio

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MohammadTaha536/mmd536/pkg/core/types"
	"github.com/MohammadTaha536/mmd536/pkg/energy"
	"github.com/MohammadTaha536/mmd536/pkg/gateway"
	"github.com/MohammadTaha536/mmd536/pkg/store"
)

// Precondition failures returned by Generate.
var (
	ErrEmptyPrompt = errors.New("studio: prompt is empty")
	ErrBusy        = errors.New("studio: a render is already in flight")
	ErrLowEnergy   = errors.New("studio: not enough neural energy")
)

// Outcome is the result of a generate call: either a gallery entry or
// the remote service's refusal text, never both.
type Outcome struct {
	Image   *types.GeneratedImage
	Refusal string
}

// Studio coordinates image generation against the gateway and persists
// the gallery, newest first.
type Studio struct {
	gw       gateway.ImageGenerator
	governor *energy.Governor
	blobs    *store.Store
	logger   *slog.Logger

	mu       sync.Mutex
	gallery  []types.GeneratedImage
	inFlight bool
}

// New creates a studio and loads the persisted gallery. A missing or
// corrupt gallery blob starts empty.
func New(gw gateway.ImageGenerator, governor *energy.Governor, blobs *store.Store, logger *slog.Logger) *Studio {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Studio{
		gw:       gw,
		governor: governor,
		blobs:    blobs,
		logger:   logger,
	}
	var saved []types.GeneratedImage
	if err := blobs.Get(store.KeyImageGallery, &saved); err == nil {
		s.gallery = saved
	} else if !errors.Is(err, store.ErrNotFound) {
		logger.Warn("gallery load failed", "error", err)
	}
	return s
}

// Gallery returns a snapshot of the gallery, newest first.
func (s *Studio) Gallery() []types.GeneratedImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.GeneratedImage, len(s.gallery))
	copy(out, s.gallery)
	return out
}

// Generate runs one render. A refusal from the remote service is a
// normal outcome: it is surfaced verbatim and leaves the gallery
// untouched. Only transport-level problems return an error.
func (s *Studio) Generate(ctx context.Context, prompt string, settings types.Settings) (*Outcome, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if !s.governor.TryDebit(energy.CostImageRender) {
		s.mu.Unlock()
		return nil, ErrLowEnergy
	}
	s.inFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	result, err := s.gw.GenerateImage(ctx, &gateway.ImageRequest{
		Prompt:         prompt,
		SafetyOverride: settings.NoRules,
	})
	if err != nil {
		return nil, err
	}
	if result.RefusalText != "" {
		s.logger.Info("render refused", "prompt_len", len(prompt))
		return &Outcome{Refusal: result.RefusalText}, nil
	}

	pngBytes := result.PNG
	if marked, err := Watermark(pngBytes); err == nil {
		pngBytes = marked
	} else {
		s.logger.Warn("watermark failed, keeping original", "error", err)
	}

	img := types.GeneratedImage{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		PNG:       pngBytes,
		Timestamp: time.Now().UnixMilli(),
	}

	s.mu.Lock()
	s.gallery = append([]types.GeneratedImage{img}, s.gallery...)
	if err := s.blobs.Set(store.KeyImageGallery, s.gallery); err != nil {
		s.logger.Warn("gallery persist failed", "error", err)
	}
	s.mu.Unlock()

	return &Outcome{Image: &img}, nil
}
