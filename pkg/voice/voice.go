// Package voice runs the live bidirectional audio session: continuous
// microphone capture streamed up, remote audio chunks scheduled for
// gapless playback, and barge-in interruption.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MohammadTaha536/mmd536/pkg/audio"
	"github.com/MohammadTaha536/mmd536/pkg/chat"
	"github.com/MohammadTaha536/mmd536/pkg/core/types"
	"github.com/MohammadTaha536/mmd536/pkg/energy"
	"github.com/MohammadTaha536/mmd536/pkg/gateway"
)

// State is the session lifecycle phase. There is no paused state; stop
// is always a full teardown back to Idle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	default:
		return "idle"
	}
}

var (
	ErrAlreadyActive = errors.New("voice: session already running")
	ErrLowEnergy     = errors.New("voice: not enough neural energy")
)

// Input delivers captured microphone frames: s16le mono PCM at the
// 16 kHz capture rate. The channel closes when the device is closed.
type Input interface {
	Frames() <-chan []byte
	Close() error
}

// Handle is one scheduled playback that can be force-stopped early.
type Handle interface {
	Stop()
}

// Output schedules PCM playback on the speaker. onDone fires once when
// the chunk finishes naturally; it must not fire after Stop.
type Output interface {
	Schedule(pcm []byte, at time.Time, onDone func()) (Handle, error)
	Close() error
}

// Transcript is one committed turn of the spoken conversation.
type Transcript struct {
	Role types.Role
	Text string
}

// Session owns the live voice lifecycle. All methods are safe for
// concurrent use; Stop may race an async error arriving from the
// stream and both paths converge on the same idempotent teardown.
type Session struct {
	dialer   gateway.LiveDialer
	governor *energy.Governor
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	state  State
	stream gateway.LiveStream
	input  Input
	output Output

	// playback cursor and the set of not-yet-finished handles
	next time.Time
	live map[int]Handle
	seq  int

	transcripts []Transcript
	userBuf     strings.Builder
	modelBuf    strings.Builder

	// model audio as played, 24 kHz mono s16le
	recorded []byte
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the output clock (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New creates an idle session.
func New(dialer gateway.LiveDialer, governor *energy.Governor, logger *slog.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		dialer:   dialer,
		governor: governor,
		logger:   logger,
		now:      time.Now,
		live:     map[int]Handle{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcripts returns the committed conversation log so far.
func (s *Session) Transcripts() []Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transcript, len(s.transcripts))
	copy(out, s.transcripts)
	return out
}

// Recording returns the model audio received during the most recent
// session, as raw 24 kHz mono s16le PCM.
func (s *Session) Recording() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.recorded))
	copy(out, s.recorded)
	return out
}

// Start opens the live stream and begins capture and playback. The
// session takes ownership of input and output; both are released on
// every exit path, including setup failures.
func (s *Session) Start(ctx context.Context, settings types.Settings, input Input, output Output) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	if !s.governor.TryDebit(energy.CostVoiceStart) {
		s.mu.Unlock()
		return ErrLowEnergy
	}
	s.state = StateConnecting
	s.input = input
	s.output = output
	s.recorded = nil
	s.mu.Unlock()

	stream, err := s.dialer.DialLive(ctx, &gateway.LiveRequest{
		SystemInstruction: chat.VoiceInstruction(settings),
	})
	if err != nil {
		s.teardown()
		return fmt.Errorf("open live stream: %w", err)
	}

	s.mu.Lock()
	if s.state != StateConnecting { // stopped while dialing
		s.mu.Unlock()
		_ = stream.Close()
		return errors.New("voice: session stopped during connect")
	}
	s.stream = stream
	s.state = StateActive
	s.next = s.now()
	s.mu.Unlock()

	go s.capturePump(stream, input)
	go s.eventLoop(stream)
	return nil
}

// Stop tears the session down. Safe to call from any state, any number
// of times, concurrently with stream errors.
func (s *Session) Stop() {
	s.teardown()
}

// capturePump streams microphone frames up. Each frame is
// fire-and-forget: a failed send is logged and the next frame goes out
// regardless. The pump dies when the input channel closes or the
// session leaves Active.
func (s *Session) capturePump(stream gateway.LiveStream, input Input) {
	for frame := range input.Frames() {
		s.mu.Lock()
		active := s.state == StateActive && s.stream == stream
		s.mu.Unlock()
		if !active {
			return
		}
		if err := stream.SendAudioFrame(frame); err != nil {
			s.logger.Debug("audio frame dropped", "error", err)
		}
	}
}

func (s *Session) eventLoop(stream gateway.LiveStream) {
	for event := range stream.Events() {
		switch e := event.(type) {
		case gateway.LiveAudioChunkEvent:
			s.schedule(e.PCM)
		case gateway.LiveInterruptedEvent:
			s.interrupt()
		case gateway.LiveTranscriptEvent:
			s.appendTranscript(e.Role, e.Text)
		case gateway.LiveTurnCompleteEvent:
			s.commitTranscripts()
		case gateway.LiveErrorEvent:
			s.logger.Error("live stream failed", "error", e.Err)
			s.teardown()
			return
		case gateway.LiveClosedEvent:
			s.teardown()
			return
		}
	}
	s.teardown()
}

// schedule queues one remote chunk for gapless playback: it starts at
// max(now, cursor) and the cursor advances by the chunk's duration, so
// back-to-back chunks neither overlap nor leave gaps.
func (s *Session) schedule(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive || s.output == nil {
		return
	}

	at := s.now()
	if s.next.After(at) {
		at = s.next
	}
	duration := audio.PCMDuration(len(pcm), audio.PlaybackSampleRate, audio.MonoChannels)

	id := s.seq
	s.seq++
	handle, err := s.output.Schedule(pcm, at, func() {
		s.mu.Lock()
		delete(s.live, id)
		s.mu.Unlock()
	})
	if err != nil {
		s.logger.Warn("playback schedule failed", "error", err)
		return
	}
	s.live[id] = handle
	s.next = at.Add(duration)
	s.recorded = append(s.recorded, pcm...)
}

// interrupt is barge-in: every pending handle is force-stopped, the
// live set cleared, and the cursor reset so the next chunk starts
// immediately.
func (s *Session) interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, handle := range s.live {
		handle.Stop()
		delete(s.live, id)
	}
	s.next = s.now()
}

func (s *Session) appendTranscript(role types.Role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role == types.RoleUser {
		s.userBuf.WriteString(text)
	} else {
		s.modelBuf.WriteString(text)
	}
}

// commitTranscripts flushes the per-turn buffers into the log, user
// side first, skipping empty sides.
func (s *Session) commitTranscripts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitTranscriptsLocked()
}

func (s *Session) commitTranscriptsLocked() {
	if t := s.userBuf.String(); t != "" {
		s.transcripts = append(s.transcripts, Transcript{Role: types.RoleUser, Text: t})
	}
	if t := s.modelBuf.String(); t != "" {
		s.transcripts = append(s.transcripts, Transcript{Role: types.RoleModel, Text: t})
	}
	s.userBuf.Reset()
	s.modelBuf.Reset()
}

// teardown releases everything the session holds. Every path out of a
// running session funnels through here, and calling it on an idle
// session is a no-op.
func (s *Session) teardown() {
	s.mu.Lock()
	stream, input, output := s.stream, s.input, s.output
	s.stream, s.input, s.output = nil, nil, nil
	// a turn cut short by hangup still lands in the log
	s.commitTranscriptsLocked()
	for id, handle := range s.live {
		handle.Stop()
		delete(s.live, id)
	}
	wasIdle := s.state == StateIdle
	s.state = StateIdle
	s.mu.Unlock()

	if wasIdle && stream == nil && input == nil && output == nil {
		return
	}
	if stream != nil {
		_ = stream.Close()
	}
	if input != nil {
		_ = input.Close()
	}
	if output != nil {
		_ = output.Close()
	}
}
