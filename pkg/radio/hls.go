package radio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HLSSource plays a stream URL by fetching it over HTTP and writing the
// raw media bytes into sink (typically a decoder's stdin). URLs ending
// in an HLS playlist are followed segment by segment with live playlist
// reloads; anything else is treated as a direct continuous stream.
type HLSSource struct {
	client *http.Client
	sink   io.Writer
	logger *slog.Logger
}

// NewHLSSource creates a source writing into sink.
func NewHLSSource(sink io.Writer, logger *slog.Logger) *HLSSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &HLSSource{
		client: &http.Client{Timeout: 30 * time.Second},
		sink:   sink,
		logger: logger,
	}
}

// SetVolume forwards volume changes to the sink when it supports them.
func (h *HLSSource) SetVolume(v float64) {
	if vs, ok := h.sink.(VolumeSink); ok {
		vs.SetVolume(v)
	}
}

// Play implements Source.
func (h *HLSSource) Play(ctx context.Context, streamURL string, ready func()) error {
	if strings.Contains(streamURL, ".m3u8") {
		return h.playPlaylist(ctx, streamURL, ready)
	}
	return h.playDirect(ctx, streamURL, ready)
}

// playDirect copies one long-lived HTTP response into the sink.
func (h *HLSSource) playDirect(ctx context.Context, streamURL string, ready func()) error {
	body, err := h.get(ctx, streamURL)
	if err != nil {
		return err
	}
	defer body.Close()

	if ready != nil {
		ready()
	}
	buf := make([]byte, 32*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := h.sink.Write(buf[:n]); werr != nil {
				return &Failure{Kind: FailureOther, Fatal: true, Err: werr}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &Failure{Kind: FailureNetwork, Fatal: true, Err: err}
		}
	}
}

// playPlaylist follows a live HLS media playlist: fetch, stream the
// segments not yet played, re-fetch, repeat. A master playlist is
// resolved to its first variant first.
func (h *HLSSource) playPlaylist(ctx context.Context, playlistURL string, ready func()) error {
	nextSeq := -1
	started := false

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pl, err := h.fetchPlaylist(ctx, playlistURL)
		if err != nil {
			return err
		}
		if pl.master {
			if len(pl.variants) == 0 {
				return &Failure{Kind: FailureMedia, Fatal: true, Err: fmt.Errorf("master playlist has no variants")}
			}
			playlistURL = pl.variants[0]
			continue
		}
		if len(pl.segments) == 0 {
			return &Failure{Kind: FailureMedia, Fatal: true, Err: fmt.Errorf("playlist has no segments")}
		}

		wrote := false
		for i, segment := range pl.segments {
			seq := pl.mediaSeq + i
			if seq < nextSeq {
				continue
			}
			if err := h.copySegment(ctx, segment); err != nil {
				return err
			}
			nextSeq = seq + 1
			wrote = true
			if !started && ready != nil {
				ready()
				started = true
			}
		}
		if pl.ended {
			return nil
		}

		// reload cadence: half the target duration when we are caught
		// up, immediately when the playlist advanced under us
		if !wrote {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pl.targetDuration / 2):
			}
		}
	}
}

func (h *HLSSource) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Failure{Kind: FailureOther, Fatal: true, Err: err}
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &Failure{Kind: FailureNetwork, Fatal: true, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &Failure{Kind: FailureNetwork, Fatal: true, Err: fmt.Errorf("%s: status %d", rawURL, resp.StatusCode)}
	}
	return resp.Body, nil
}

func (h *HLSSource) fetchPlaylist(ctx context.Context, rawURL string) (*playlist, error) {
	body, err := h.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, &Failure{Kind: FailureOther, Fatal: true, Err: err}
	}
	pl, err := parsePlaylist(base, body)
	if err != nil {
		return nil, &Failure{Kind: FailureMedia, Fatal: true, Err: err}
	}
	return pl, nil
}

func (h *HLSSource) copySegment(ctx context.Context, segmentURL string) error {
	body, err := h.get(ctx, segmentURL)
	if err != nil {
		return err
	}
	defer body.Close()

	if _, err := io.Copy(h.sink, body); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Failure{Kind: FailureNetwork, Fatal: true, Err: err}
	}
	return nil
}

// playlist is the subset of an M3U8 document this player needs.
type playlist struct {
	master         bool
	variants       []string // absolute, master playlists only
	segments       []string // absolute, media playlists only
	mediaSeq       int
	targetDuration time.Duration
	ended          bool
}

func parsePlaylist(base *url.URL, r io.Reader) (*playlist, error) {
	pl := &playlist{targetDuration: 6 * time.Second}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	first := true
	pendingVariant := false
	pendingSegment := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first {
			if line != "#EXTM3U" {
				return nil, fmt.Errorf("not an M3U8 playlist")
			}
			first = false
			continue
		}
		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF"):
			pl.master = true
			pendingVariant = true
		case strings.HasPrefix(line, "#EXTINF"):
			pendingSegment = true
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			if n, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:")); err == nil && n > 0 {
				pl.targetDuration = time.Duration(n) * time.Second
			}
		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			if n, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:")); err == nil {
				pl.mediaSeq = n
			}
		case line == "#EXT-X-ENDLIST":
			pl.ended = true
		case strings.HasPrefix(line, "#"):
			// unhandled tag
		default:
			ref, err := base.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("bad URI %q: %w", line, err)
			}
			if pendingVariant {
				pl.variants = append(pl.variants, ref.String())
				pendingVariant = false
			} else if pendingSegment {
				pl.segments = append(pl.segments, ref.String())
				pendingSegment = false
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if first {
		return nil, fmt.Errorf("empty playlist")
	}
	return pl, nil
}
