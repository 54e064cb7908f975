package gateway

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MohammadTaha536/mmd536/pkg/audio"
	"github.com/MohammadTaha536/mmd536/pkg/core"
	"github.com/MohammadTaha536/mmd536/pkg/core/types"
)

const (
	defaultLiveEndpoint = "wss://generativelanguage.googleapis.com/ws/" +
		"google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	defaultLiveConnectTimeout = 15 * time.Second
	liveEventBuffer           = 64
)

// LiveEvent is an event emitted by a LiveStream.
type LiveEvent interface {
	liveEventType() string
}

// LiveOpenedEvent fires once the remote session is ready for audio.
type LiveOpenedEvent struct{}

func (LiveOpenedEvent) liveEventType() string { return "opened" }

// LiveAudioChunkEvent carries one inbound chunk of s16le PCM at the
// playback sample rate.
type LiveAudioChunkEvent struct {
	PCM []byte
}

func (LiveAudioChunkEvent) liveEventType() string { return "audio_chunk" }

// LiveInterruptedEvent signals barge-in: the user started speaking over
// an in-progress reply and all scheduled playback must stop now.
type LiveInterruptedEvent struct{}

func (LiveInterruptedEvent) liveEventType() string { return "interrupted" }

// LiveTranscriptEvent carries a streaming transcription fragment for
// one side of the conversation.
type LiveTranscriptEvent struct {
	Role types.Role
	Text string
}

func (LiveTranscriptEvent) liveEventType() string { return "transcript" }

// LiveTurnCompleteEvent marks the end of a full model turn.
type LiveTurnCompleteEvent struct{}

func (LiveTurnCompleteEvent) liveEventType() string { return "turn_complete" }

// LiveErrorEvent carries a terminal session error.
type LiveErrorEvent struct {
	Err error
}

func (LiveErrorEvent) liveEventType() string { return "error" }

// LiveClosedEvent fires when the remote side closes the session.
type LiveClosedEvent struct{}

func (LiveClosedEvent) liveEventType() string { return "closed" }

// LiveStream is an open bidirectional audio session.
type LiveStream interface {
	// Events yields session events until the stream ends; the channel is
	// closed after LiveClosedEvent or LiveErrorEvent.
	Events() <-chan LiveEvent
	// SendAudioFrame pushes one capture frame of s16le PCM at the
	// capture sample rate. Fire-and-forget: a failed frame does not
	// block subsequent frames.
	SendAudioFrame(pcm []byte) error
	// Close tears the session down. Idempotent.
	Close() error
}

// --- wire frames (BidiGenerateContent) ---

type wirePart struct {
	Text       string    `json:"text,omitempty"`
	InlineData *wireBlob `json:"inlineData,omitempty"`
}

type wireBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type liveSetupFrame struct {
	Setup liveSetup `json:"setup"`
}

type liveSetup struct {
	Model                    string              `json:"model"`
	GenerationConfig         liveGenerationCfg   `json:"generationConfig"`
	SystemInstruction        *wireContent        `json:"systemInstruction,omitempty"`
	InputAudioTranscription  map[string]struct{} `json:"inputAudioTranscription"`
	OutputAudioTranscription map[string]struct{} `json:"outputAudioTranscription"`
}

type liveGenerationCfg struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       liveSpeechCfg `json:"speechConfig"`
}

type liveSpeechCfg struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type liveRealtimeFrame struct {
	RealtimeInput struct {
		MediaChunks []wireBlob `json:"mediaChunks"`
	} `json:"realtimeInput"`
}

type liveServerFrame struct {
	SetupComplete *struct{}          `json:"setupComplete,omitempty"`
	ServerContent *liveServerContent `json:"serverContent,omitempty"`
	GoAway        *struct{}          `json:"goAway,omitempty"`
}

type liveServerContent struct {
	ModelTurn           *wireContent       `json:"modelTurn,omitempty"`
	Interrupted         bool               `json:"interrupted,omitempty"`
	TurnComplete        bool               `json:"turnComplete,omitempty"`
	InputTranscription  *liveTranscription `json:"inputTranscription,omitempty"`
	OutputTranscription *liveTranscription `json:"outputTranscription,omitempty"`
}

type liveTranscription struct {
	Text string `json:"text"`
}

// liveSession is the websocket-backed LiveStream.
type liveSession struct {
	conn *websocket.Conn

	events chan LiveEvent
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

var _ LiveStream = (*liveSession)(nil)

// DialLive opens a bidirectional live audio session. The returned
// stream emits LiveOpenedEvent once the remote setup handshake has
// completed.
func (c *Client) DialLive(ctx context.Context, req *LiveRequest) (LiveStream, error) {
	endpoint := c.liveURL
	if endpoint == "" {
		endpoint = defaultLiveEndpoint
	}
	dialURL := fmt.Sprintf("%s?key=%s", endpoint, url.QueryEscape(c.apiKey))

	dialCtx, cancel := context.WithTimeout(ctx, defaultLiveConnectTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, dialURL, nil)
	if err != nil {
		return nil, &core.TransportError{Op: "dial live", Err: err}
	}

	model := req.Model
	if model == "" {
		model = ModelLiveAudio
	}
	voice := req.Voice
	if voice == "" {
		voice = DefaultLiveVoice
	}

	setup := liveSetupFrame{}
	setup.Setup.Model = "models/" + model
	setup.Setup.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	setup.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = voice
	setup.Setup.InputAudioTranscription = map[string]struct{}{}
	setup.Setup.OutputAudioTranscription = map[string]struct{}{}
	if req.SystemInstruction != "" {
		setup.Setup.SystemInstruction = &wireContent{
			Parts: []wirePart{{Text: req.SystemInstruction}},
		}
	}
	if err := conn.WriteJSON(setup); err != nil {
		conn.Close()
		return nil, &core.TransportError{Op: "live setup", Err: err}
	}

	// The first server frame must acknowledge setup before any audio
	// flows in either direction.
	conn.SetReadDeadline(time.Now().Add(defaultLiveConnectTimeout))
	var ack liveServerFrame
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, &core.TransportError{Op: "live setup ack", Err: err}
	}
	if ack.SetupComplete == nil {
		conn.Close()
		return nil, core.NewUnknownError("live session refused during setup")
	}
	conn.SetReadDeadline(time.Time{})

	s := &liveSession{
		conn:   conn,
		events: make(chan LiveEvent, liveEventBuffer),
		done:   make(chan struct{}),
	}
	s.emit(LiveOpenedEvent{})
	go s.readLoop()
	return s, nil
}

func (s *liveSession) Events() <-chan LiveEvent {
	if s == nil {
		return nil
	}
	return s.events
}

func (s *liveSession) SendAudioFrame(pcm []byte) error {
	if s == nil {
		return fmt.Errorf("session must not be nil")
	}
	if s.closed.Load() {
		return fmt.Errorf("live session is closed")
	}
	frame := liveRealtimeFrame{}
	frame.RealtimeInput.MediaChunks = []wireBlob{{
		MIMEType: "audio/pcm;rate=16000",
		Data:     audio.EncodeBase64(pcm),
	}}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(frame)
}

func (s *liveSession) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

func (s *liveSession) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		var frame liveServerFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if s.closed.Load() ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.emit(LiveClosedEvent{})
				return
			}
			s.emit(LiveErrorEvent{Err: &core.TransportError{Op: "live read", Err: err}})
			return
		}

		switch {
		case frame.GoAway != nil:
			s.emit(LiveClosedEvent{})
			return
		case frame.ServerContent != nil:
			s.handleServerContent(frame.ServerContent)
		}
	}
}

func (s *liveSession) handleServerContent(content *liveServerContent) {
	// Interruption comes first so stale chunks in the same frame are
	// flushed before any new audio is scheduled.
	if content.Interrupted {
		s.emit(LiveInterruptedEvent{})
	}
	if content.InputTranscription != nil && content.InputTranscription.Text != "" {
		s.emit(LiveTranscriptEvent{Role: types.RoleUser, Text: content.InputTranscription.Text})
	}
	if content.OutputTranscription != nil && content.OutputTranscription.Text != "" {
		s.emit(LiveTranscriptEvent{Role: types.RoleModel, Text: content.OutputTranscription.Text})
	}
	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			pcm, err := audio.DecodeBase64(part.InlineData.Data)
			if err != nil {
				s.emit(LiveErrorEvent{Err: core.NewUnknownError("undecodable audio chunk")})
				continue
			}
			s.emit(LiveAudioChunkEvent{PCM: pcm})
		}
	}
	if content.TurnComplete {
		s.emit(LiveTurnCompleteEvent{})
	}
}

func (s *liveSession) emit(event LiveEvent) {
	select {
	case s.events <- event:
	default:
		// Avoid deadlocking the read loop if the consumer stops draining.
	}
}
