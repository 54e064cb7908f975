package radio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MohammadTaha536/mmd536/pkg/core/types"
)

// scriptedSource fails according to its script, then plays forever.
type scriptedSource struct {
	mu     sync.Mutex
	script []error // consumed per Play call; nil means success
	calls  []string
}

func (s *scriptedSource) Play(ctx context.Context, url string, ready func()) error {
	s.mu.Lock()
	s.calls = append(s.calls, url)
	var err error
	if len(s.script) > 0 {
		err = s.script[0]
		s.script = s.script[1:]
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if ready != nil {
		ready()
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *scriptedSource) urls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

func netFailure() error {
	return &Failure{Kind: FailureNetwork, Fatal: true, Err: errors.New("connect refused")}
}

func mediaFailure() error {
	return &Failure{Kind: FailureMedia, Fatal: true, Err: errors.New("bad segment")}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestPlayer(t *testing.T, source Source) *Player {
	t.Helper()
	p := NewPlayer(source, types.StationAva, nil, WithReconnectDelay(time.Millisecond))
	t.Cleanup(p.Close)
	return p
}

func TestPlayerStartsOnPreferredURL(t *testing.T) {
	source := &scriptedSource{}
	player := newTestPlayer(t, source)

	player.SetPlaying(true)
	waitFor(t, "playback", func() bool { return player.Status() == StatusPlaying })

	mirrors := Stations[types.StationAva].URLs
	if got := source.urls(); got[0] != mirrors[0] {
		t.Fatalf("first url = %q, want %q", got[0], mirrors[0])
	}
}

func TestNetworkFailureAdvancesMirrors(t *testing.T) {
	source := &scriptedSource{script: []error{netFailure(), netFailure(), nil}}
	player := newTestPlayer(t, source)

	player.SetPlaying(true)
	waitFor(t, "playback after failover", func() bool { return player.Status() == StatusPlaying })

	mirrors := Stations[types.StationAva].URLs
	want := []string{mirrors[0], mirrors[1], mirrors[2]}
	got := source.urls()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFailoverWrapsAroundMirrorList(t *testing.T) {
	// one more failure than there are mirrors: the cursor must wrap
	// back to the preferred URL
	source := &scriptedSource{script: []error{
		netFailure(), netFailure(), netFailure(), netFailure(), nil,
	}}
	player := newTestPlayer(t, source)

	player.SetPlaying(true)
	waitFor(t, "playback after wraparound", func() bool { return player.Status() == StatusPlaying })

	mirrors := Stations[types.StationAva].URLs
	got := source.urls()
	if len(got) != 5 {
		t.Fatalf("calls = %d, want 5", len(got))
	}
	if got[4] != mirrors[0] {
		t.Fatalf("wrapped url = %q, want %q", got[4], mirrors[0])
	}
}

func TestMediaFailureRetriesInPlaceOnce(t *testing.T) {
	source := &scriptedSource{script: []error{mediaFailure(), mediaFailure(), nil}}
	player := newTestPlayer(t, source)

	player.SetPlaying(true)
	waitFor(t, "playback", func() bool { return player.Status() == StatusPlaying })

	mirrors := Stations[types.StationAva].URLs
	got := source.urls()
	// first failure retries the same URL; the second moves on
	want := []string{mirrors[0], mirrors[0], mirrors[1]}
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNonFatalFailureKeepsURL(t *testing.T) {
	source := &scriptedSource{script: []error{
		&Failure{Kind: FailureNetwork, Fatal: false, Err: errors.New("blip")},
		nil,
	}}
	player := newTestPlayer(t, source)

	player.SetPlaying(true)
	waitFor(t, "playback", func() bool { return player.Status() == StatusPlaying })

	mirrors := Stations[types.StationAva].URLs
	got := source.urls()
	if len(got) != 2 || got[0] != mirrors[0] || got[1] != mirrors[0] {
		t.Fatalf("calls = %v, want same url twice", got)
	}
}

func TestSetStationResetsCursor(t *testing.T) {
	source := &scriptedSource{script: []error{netFailure(), nil, nil}}
	player := newTestPlayer(t, source)

	player.SetPlaying(true)
	waitFor(t, "playback on second mirror", func() bool {
		return player.Status() == StatusPlaying && len(source.urls()) == 2
	})

	player.SetStation(types.StationJavan)
	waitFor(t, "playback on new station", func() bool {
		urls := source.urls()
		return len(urls) == 3 && urls[2] == Stations[types.StationJavan].URLs[0]
	})
	if player.Station().ID != types.StationJavan {
		t.Fatalf("station = %q", player.Station().ID)
	}
}

func TestStopCancelsStream(t *testing.T) {
	source := &scriptedSource{}
	player := newTestPlayer(t, source)

	player.SetPlaying(true)
	waitFor(t, "playback", func() bool { return player.Status() == StatusPlaying })

	player.SetPlaying(false)
	if player.Status() != StatusIdle {
		t.Fatalf("status = %v, want idle", player.Status())
	}
	time.Sleep(20 * time.Millisecond)
	if got := len(source.urls()); got != 1 {
		t.Fatalf("calls after stop = %d, want 1", got)
	}
}

func TestVolumeClamped(t *testing.T) {
	player := newTestPlayer(t, &scriptedSource{})
	player.SetVolume(1.7)
	if got := player.Volume(); got != 1.0 {
		t.Fatalf("volume = %v, want 1.0", got)
	}
	player.SetVolume(-0.2)
	if got := player.Volume(); got != 0 {
		t.Fatalf("volume = %v, want 0", got)
	}
}

type volumeSource struct {
	scriptedSource
	mu      sync.Mutex
	volumes []float64
}

func (s *volumeSource) SetVolume(v float64) {
	s.mu.Lock()
	s.volumes = append(s.volumes, v)
	s.mu.Unlock()
}

func (s *volumeSource) got() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.volumes...)
}

func TestVolumeReachesSink(t *testing.T) {
	source := &volumeSource{}
	player := newTestPlayer(t, source)

	player.SetVolume(0.5)
	player.SetVolume(1.7) // clamped before the sink sees it
	if got := source.got(); len(got) != 2 || got[0] != 0.5 || got[1] != 1.0 {
		t.Fatalf("sink volumes = %v, want [0.5 1]", got)
	}
}

func TestClassifyPlainError(t *testing.T) {
	f := Classify(errors.New("boom"))
	if f.Kind != FailureOther || !f.Fatal {
		t.Fatalf("Classify = %+v, want fatal other", f)
	}

	wrapped := &Failure{Kind: FailureMedia, Fatal: false, Err: errors.New("x")}
	if got := Classify(wrapped); got != wrapped {
		t.Fatalf("Classify must pass through typed failures")
	}
}
