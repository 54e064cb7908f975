package main

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"

	"github.com/MohammadTaha536/mmd536/pkg/audio"
	"github.com/MohammadTaha536/mmd536/pkg/voice"
)

// captureFrameBytes is one outbound mic frame: 4096 samples of s16le.
const captureFrameBytes = 4096 * audio.BytesPerSample

// micInput adapts a malgo capture device to voice.Input. Mic bytes are
// chopped into fixed-size frames; a slow consumer drops frames rather
// than stalling the device callback.
type micInput struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	frames chan []byte

	mu      sync.Mutex
	pending []byte
	closed  bool
}

func newMicInput() (*micInput, error) {
	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime
	ctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	m := &micInput{
		ctx:    ctx,
		frames: make(chan []byte, 8),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = audio.MonoChannels
	deviceConfig.SampleRate = audio.CaptureSampleRate
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			m.push(in)
		},
	}
	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		return nil, fmt.Errorf("init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		return nil, fmt.Errorf("start microphone: %w", err)
	}
	m.device = device
	return m, nil
}

func (m *micInput) push(in []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.pending = append(m.pending, in...)
	for len(m.pending) >= captureFrameBytes {
		frame := make([]byte, captureFrameBytes)
		copy(frame, m.pending[:captureFrameBytes])
		m.pending = m.pending[captureFrameBytes:]
		select {
		case m.frames <- frame:
		default: // consumer is behind; drop
		}
	}
}

func (m *micInput) Frames() <-chan []byte { return m.frames }

func (m *micInput) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.device != nil {
		_ = m.device.Stop()
		m.device.Uninit()
	}
	if m.ctx != nil {
		_ = m.ctx.Uninit()
	}
	close(m.frames)
	return nil
}

// speakerStream feeds one oto player from an internal buffer. oto
// pulls via Read; writers push via Write; Flush drops whatever has not
// reached the device yet.
type speakerStream struct {
	otoCtx *oto.Context
	player *oto.Player

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	playing bool
	closed  bool
}

func newSpeakerStream() (*speakerStream, error) {
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   audio.PlaybackSampleRate,
		ChannelCount: audio.MonoChannels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   4800, // ~100ms at 24kHz mono s16le
	})
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	s := &speakerStream{otoCtx: otoCtx}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

func (s *speakerStream) Write(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buf = append(s.buf, data...)
	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
	s.cond.Signal()
}

func (s *speakerStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed && len(s.buf) == 0 {
		// silence lets oto drain instead of erroring
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *speakerStream) Flush() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	s.mu.Unlock()
}

func (s *speakerStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	if s.player != nil {
		_ = s.player.Close()
	}
}

// speakerOutput adapts the speaker stream to the voice.Output
// scheduling contract: each chunk waits for its start time, then
// streams into the shared player.
type speakerOutput struct {
	stream *speakerStream
}

func newSpeakerOutput() (*speakerOutput, error) {
	stream, err := newSpeakerStream()
	if err != nil {
		return nil, err
	}
	return &speakerOutput{stream: stream}, nil
}

type speakerHandle struct {
	cancel   chan struct{}
	stopOnce sync.Once
	stream   *speakerStream
}

func (h *speakerHandle) Stop() {
	h.stopOnce.Do(func() {
		close(h.cancel)
		h.stream.Flush()
	})
}

func (o *speakerOutput) Schedule(pcm []byte, at time.Time, onDone func()) (voice.Handle, error) {
	handle := &speakerHandle{cancel: make(chan struct{}), stream: o.stream}
	duration := audio.PCMDuration(len(pcm), audio.PlaybackSampleRate, audio.MonoChannels)

	go func() {
		if wait := time.Until(at); wait > 0 {
			select {
			case <-handle.cancel:
				return
			case <-time.After(wait):
			}
		}
		select {
		case <-handle.cancel:
			return
		default:
		}
		o.stream.Write(pcm)
		select {
		case <-handle.cancel:
		case <-time.After(duration):
			if onDone != nil {
				onDone()
			}
		}
	}()
	return handle, nil
}

func (o *speakerOutput) Close() error {
	o.stream.Close()
	return nil
}

// ffplaySink pipes compressed radio stream bytes into an ffplay
// process. It implements io.Writer for the radio HLS source.
type ffplaySink struct {
	bin string

	mu     sync.Mutex
	volume float64
	cmd    *exec.Cmd
	stdin  io.WriteCloser
}

func newFFplaySink(bin string, volume float64) (*ffplaySink, error) {
	if _, err := exec.LookPath(bin); err != nil {
		return nil, errors.New("ffplay is required for radio playback (install ffmpeg and ensure it is in PATH)")
	}
	sink := &ffplaySink{bin: bin, volume: volume}
	if err := sink.startLocked(); err != nil {
		return nil, err
	}
	return sink, nil
}

// SetVolume restarts ffplay at the new volume. ffplay has no runtime
// volume control over stdin, so the process is replaced; the stream is
// self-synchronizing and resumes on the next segment write.
func (f *ffplaySink) SetVolume(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = v
	if f.stdin == nil {
		return
	}
	f.stopLocked()
	_ = f.startLocked()
}

func (f *ffplaySink) startLocked() error {
	f.cmd = exec.Command(f.bin,
		"-nodisp",
		"-loglevel", "error",
		"-volume", fmt.Sprintf("%d", int(f.volume*100)),
		"-i", "pipe:0",
	)
	stdin, err := f.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open ffplay stdin: %w", err)
	}
	f.cmd.Stdout = io.Discard
	f.cmd.Stderr = io.Discard
	if err := f.cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}
	f.stdin = stdin
	return nil
}

func (f *ffplaySink) Write(data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stdin == nil {
		return 0, errors.New("ffplay is not running")
	}
	return f.stdin.Write(data)
}

func (f *ffplaySink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
	return nil
}

func (f *ffplaySink) stopLocked() {
	if f.cmd != nil && f.cmd.Process != nil {
		_ = f.cmd.Process.Kill()
		_ = f.cmd.Wait()
	}
	f.stdin = nil
}
