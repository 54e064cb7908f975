// Package radio plays live web-radio stations. Each station carries an
// ordered list of mirror URLs; playback cycles through them on fatal
// failures so one dead CDN edge does not silence the station.
package radio

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/MohammadTaha536/mmd536/pkg/core/types"
)

// Station is one named stream with its mirror list, best source first.
type Station struct {
	ID   types.StationID
	Name string
	URLs []string
}

// Stations are the built-in channels.
var Stations = map[types.StationID]Station{
	types.StationAva: {
		ID:   types.StationAva,
		Name: "رادیو آوا",
		URLs: []string{
			"https://s1.cdn3.iranseda.ir/liveedge/radio-nama-ava/playlist.m3u8",
			"https://p1.iranseda.ir/live-channels/live/radioava/index.m3u8",
			"https://s6.cdn3.iranseda.ir/liveedge/radio-ava/playlist.m3u8",
			"https://shabakeh.iranseda.ir/live-channels/live/radioava/index.m3u8",
		},
	},
	types.StationJavan: {
		ID:   types.StationJavan,
		Name: "رادیو جوان",
		URLs: []string{
			"https://s6.cdn3.iranseda.ir/liveedge/radio-javan/playlist.m3u8",
			"https://p1.iranseda.ir/live-channels/live/radiojavan/index.m3u8",
			"https://shabakeh.iranseda.ir/live-channels/live/radiojavan/index.m3u8",
			"https://stream.radiojavan.com/radiojavan",
		},
	},
}

// FailureKind partitions stream failures by the recovery they get.
type FailureKind int

const (
	// FailureNetwork: the source could not be reached or dropped the
	// connection. Recovery is the next mirror, after a short delay so a
	// fully dead station does not spin.
	FailureNetwork FailureKind = iota
	// FailureMedia: the source answered but its payload is broken.
	// Recovery is one in-place retry of the same URL, then the next
	// mirror.
	FailureMedia
	// FailureOther: anything else. Recovery is the next mirror,
	// immediately.
	FailureOther
)

// Failure is a classified stream error. Non-fatal failures are logged
// and playback of the same URL resumes.
type Failure struct {
	Kind  FailureKind
	Fatal bool
	Err   error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return "stream failure"
	}
	return f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// Classify maps an arbitrary error from a Source onto a Failure.
// Sources that know better return *Failure directly.
func Classify(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Failure{Kind: FailureNetwork, Fatal: true, Err: err}
	}
	return &Failure{Kind: FailureOther, Fatal: true, Err: err}
}

// Status is the player's externally visible state.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusPlaying
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusPlaying:
		return "playing"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// Source turns one stream URL into audible audio. Play blocks until
// the stream ends, fails, or ctx is cancelled; ready is called once
// when audio actually starts flowing.
type Source interface {
	Play(ctx context.Context, url string, ready func()) error
}

// VolumeSink is implemented by sources whose sink can adjust playback
// volume while a stream is running.
type VolumeSink interface {
	SetVolume(v float64)
}

// DefaultReconnectDelay paces mirror cycling on network failures.
const DefaultReconnectDelay = time.Second

// Player drives a Source through a station's mirror list.
type Player struct {
	source Source
	logger *slog.Logger
	delay  time.Duration

	mu         sync.Mutex
	station    Station
	urlIndex   int
	playing    bool
	status     Status
	lastErr    error
	volume     float64
	cancel     context.CancelFunc
	generation int
	retried    bool // media recovery already used for the current URL
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithReconnectDelay overrides the failover delay (tests).
func WithReconnectDelay(d time.Duration) PlayerOption {
	return func(p *Player) { p.delay = d }
}

// NewPlayer creates a stopped player tuned to the given station.
func NewPlayer(source Source, station types.StationID, logger *slog.Logger, opts ...PlayerOption) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Player{
		source:  source,
		logger:  logger,
		delay:   DefaultReconnectDelay,
		station: stationOrDefault(station),
		volume:  1.0,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func stationOrDefault(id types.StationID) Station {
	if st, ok := Stations[id]; ok {
		return st
	}
	return Stations[types.StationAva]
}

// Station reports the currently selected station.
func (p *Player) Station() Station {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.station
}

// Status reports the player state.
func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// LastError reports the most recent fatal stream error, if any.
func (p *Player) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Volume reports the configured playback volume in [0, 1].
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetVolume sets the playback volume, clamped to [0, 1], and pushes it
// to the source's sink when it supports live adjustment.
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	p.volume = v
	source := p.source
	p.mu.Unlock()
	if vs, ok := source.(VolumeSink); ok {
		vs.SetVolume(v)
	}
}

// SetStation switches stations. The mirror cursor resets to the
// preferred URL; if playing, the current stream restarts.
func (p *Player) SetStation(id types.StationID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := stationOrDefault(id)
	if st.ID == p.station.ID {
		return
	}
	p.station = st
	p.urlIndex = 0
	p.retried = false
	if p.playing {
		p.stopLocked()
		p.startLocked()
	}
}

// SetPlaying starts or stops playback. Starting from an error state
// skips past the URL that failed.
func (p *Player) SetPlaying(play bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if play == p.playing {
		return
	}
	if play {
		if p.status == StatusError {
			p.urlIndex++
			p.retried = false
		}
		p.playing = true
		p.startLocked()
		return
	}
	p.playing = false
	p.stopLocked()
	p.status = StatusIdle
}

// Close stops playback.
func (p *Player) Close() {
	p.SetPlaying(false)
}

func (p *Player) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.status = StatusLoading
	p.generation++
	go p.run(ctx, p.generation)
}

func (p *Player) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// run is the failover loop: play the current mirror, classify the
// failure, pick the next mirror accordingly, repeat until stopped.
func (p *Player) run(ctx context.Context, gen int) {
	for {
		p.mu.Lock()
		if ctx.Err() != nil || gen != p.generation || !p.playing {
			p.mu.Unlock()
			return
		}
		station := p.station
		url := station.URLs[p.urlIndex%len(station.URLs)]
		p.status = StatusLoading
		p.mu.Unlock()

		p.logger.Info("radio tuning", "station", station.ID, "url", url)
		err := p.source.Play(ctx, url, func() { p.markPlaying(gen) })
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// live streams do not end cleanly; treat it like a drop
			err = errors.New("stream ended")
		}

		failure := Classify(err)
		if !failure.Fatal {
			p.logger.Warn("radio stream hiccup", "url", url, "error", failure.Err)
			continue
		}

		p.mu.Lock()
		p.lastErr = failure
		p.status = StatusError
		switch {
		case failure.Kind == FailureMedia && !p.retried:
			p.retried = true
			p.logger.Warn("radio media error, retrying in place", "url", url)
		case failure.Kind == FailureNetwork:
			p.urlIndex++
			p.retried = false
			p.logger.Warn("radio network error, switching source", "url", url)
		default:
			p.urlIndex++
			p.retried = false
			p.logger.Error("radio stream failed, switching source", "url", url, "error", failure.Err)
		}
		wait := failure.Kind == FailureNetwork
		p.mu.Unlock()

		if wait {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.delay):
			}
		}
	}
}

func (p *Player) markPlaying(gen int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation || !p.playing {
		return
	}
	p.status = StatusPlaying
	p.lastErr = nil
	p.retried = false
}
