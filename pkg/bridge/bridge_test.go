package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/probecall/probecall/pkg/errorsx"
	"github.com/probecall/probecall/pkg/metrics"
	"github.com/probecall/probecall/pkg/realtime"
	"github.com/probecall/probecall/pkg/scenario"
)

type fakeSpeech struct {
	mu       sync.Mutex
	sent     []string
	events   chan realtime.Event
	closed   int
	evClosed bool
}

func newFakeSpeech() *fakeSpeech {
	return &fakeSpeech{events: make(chan realtime.Event, 64)}
}

func (f *fakeSpeech) SendAudio(payload string) error {
	f.mu.Lock()
	f.sent = append(f.sent, payload)
	f.mu.Unlock()
	return nil
}

func (f *fakeSpeech) Events() <-chan realtime.Event { return f.events }

func (f *fakeSpeech) closeEvents() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.evClosed {
		f.evClosed = true
		close(f.events)
	}
}

func (f *fakeSpeech) Close() error {
	f.closeEvents()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSpeech) sentAudio() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeSpeech) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeMedia struct {
	mu       sync.Mutex
	payloads []string
}

func (f *fakeMedia) SendMedia(payload string) error {
	f.mu.Lock()
	f.payloads = append(f.payloads, payload)
	f.mu.Unlock()
	return nil
}

func (f *fakeMedia) sentMedia() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.payloads))
	copy(out, f.payloads)
	return out
}

func testScenario() scenario.Scenario {
	return scenario.Scenario{ID: "test", Name: "Test", SystemPrompt: "persona", OpeningLine: "hi"}
}

func connectedBridge(t *testing.T) (*Bridge, *fakeSpeech, *fakeMedia) {
	t.Helper()
	speech := newFakeSpeech()
	media := &fakeMedia{}
	dial := func(ctx context.Context, instructions string) (SpeechSession, error) {
		return speech, nil
	}
	b := New("ccid-1", "trace-1", testScenario(), dial, media, metrics.NewMemoryObserver())
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return b, speech, media
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before timeout")
}

func TestForwardAudioPreservesOrder(t *testing.T) {
	b, speech, _ := connectedBridge(t)
	defer b.Close()

	for _, p := range []string{"a1", "a2", "a3"} {
		if err := b.ForwardAudio(p); err != nil {
			t.Fatalf("forward: %v", err)
		}
	}
	got := speech.sentAudio()
	if len(got) != 3 || got[0] != "a1" || got[1] != "a2" || got[2] != "a3" {
		t.Fatalf("unexpected forwarded audio: %v", got)
	}
	if b.FramesIn() != 3 {
		t.Fatalf("expected 3 frames in, got %d", b.FramesIn())
	}
}

func TestForwardAudioDroppedBeforeActive(t *testing.T) {
	speech := newFakeSpeech()
	dial := func(ctx context.Context, instructions string) (SpeechSession, error) {
		return speech, nil
	}
	b := New("ccid-1", "trace-1", testScenario(), dial, &fakeMedia{}, nil)

	if err := b.ForwardAudio("early"); err != nil {
		t.Fatalf("forward before connect: %v", err)
	}
	if got := speech.sentAudio(); len(got) != 0 {
		t.Fatalf("expected frame dropped, got %v", got)
	}
	if b.FramesIn() != 0 {
		t.Fatalf("dropped frames must not be counted")
	}
}

func TestAudioDeltasRelayedInOrder(t *testing.T) {
	b, speech, media := connectedBridge(t)
	defer b.Close()

	speech.events <- realtime.Event{Type: realtime.EventAudioDelta, Delta: "d1"}
	speech.events <- realtime.Event{Type: realtime.EventAudioDelta, Delta: "d2"}

	waitFor(t, func() bool { return len(media.sentMedia()) == 2 })
	got := media.sentMedia()
	if got[0] != "d1" || got[1] != "d2" {
		t.Fatalf("unexpected relay order: %v", got)
	}
	if b.FramesOut() != 2 {
		t.Fatalf("expected 2 frames out, got %d", b.FramesOut())
	}
}

func TestTranscriptCompletionOrder(t *testing.T) {
	b, speech, _ := connectedBridge(t)
	defer b.Close()

	speech.events <- realtime.Event{Type: realtime.EventInputTranscript, Transcript: "how can I help?"}
	speech.events <- realtime.Event{Type: realtime.EventResponseTranscript, Transcript: "I need an appointment."}

	waitFor(t, func() bool { return len(b.Transcript()) == 2 })
	got := b.Transcript()
	if got[0].Speaker != SpeakerAgent || got[0].Text != "how can I help?" {
		t.Fatalf("unexpected first entry: %+v", got[0])
	}
	if got[1].Speaker != SpeakerPatient || got[1].Text != "I need an appointment." {
		t.Fatalf("unexpected second entry: %+v", got[1])
	}
}

func TestTranscriptReverseCompletionOrder(t *testing.T) {
	b, speech, _ := connectedBridge(t)
	defer b.Close()

	speech.events <- realtime.Event{Type: realtime.EventResponseTranscript, Transcript: "hello, this is Sarah"}
	speech.events <- realtime.Event{Type: realtime.EventInputTranscript, Transcript: "good morning"}

	waitFor(t, func() bool { return len(b.Transcript()) == 2 })
	got := b.Transcript()
	if got[0].Speaker != SpeakerPatient || got[1].Speaker != SpeakerAgent {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestErrorEventDoesNotTerminateSession(t *testing.T) {
	b, speech, media := connectedBridge(t)
	defer b.Close()

	speech.events <- realtime.Event{Type: realtime.EventError, Err: &realtime.ErrorDetail{Message: "transient"}}
	speech.events <- realtime.Event{Type: realtime.EventAudioDelta, Delta: "after-error"}

	waitFor(t, func() bool { return len(media.sentMedia()) == 1 })
	if b.State() != StateActive {
		t.Fatalf("expected bridge still active, got %s", b.State())
	}
}

func TestConnectionLossStopsForwarding(t *testing.T) {
	b, speech, _ := connectedBridge(t)
	defer b.Close()

	speech.closeEvents()
	waitFor(t, func() bool { return b.State() == StateClosing })

	if err := b.ForwardAudio("late"); err != nil {
		t.Fatalf("forward after loss: %v", err)
	}
	if got := speech.sentAudio(); len(got) != 0 {
		t.Fatalf("expected frame dropped after connection loss, got %v", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	b, speech, _ := connectedBridge(t)

	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if speech.closeCount() != 1 {
		t.Fatalf("expected speech closed once, got %d", speech.closeCount())
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}
}

func TestCloseBeforeConnectDoesNotPanic(t *testing.T) {
	dial := func(ctx context.Context, instructions string) (SpeechSession, error) {
		t.Fatalf("dial must not be called")
		return nil, nil
	}
	b := New("ccid-1", "trace-1", testScenario(), dial, &fakeMedia{}, nil)
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}
}

func TestConnectFailureClosesBridge(t *testing.T) {
	dialErr := errorsx.New("dial refused", errorsx.ReasonRealtimeConnect)
	dial := func(ctx context.Context, instructions string) (SpeechSession, error) {
		return nil, dialErr
	}
	b := New("ccid-1", "trace-1", testScenario(), dial, &fakeMedia{}, nil)

	err := b.Connect(context.Background())
	if !errors.Is(err, dialErr) {
		t.Fatalf("expected dial error, got %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after failed connect, got %s", b.State())
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close after failed connect: %v", err)
	}
}

func TestDialReceivesPersonaInstructions(t *testing.T) {
	var gotInstructions string
	speech := newFakeSpeech()
	dial := func(ctx context.Context, instructions string) (SpeechSession, error) {
		gotInstructions = instructions
		return speech, nil
	}
	b := New("ccid-1", "trace-1", testScenario(), dial, &fakeMedia{}, nil)
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer b.Close()

	if gotInstructions != testScenario().Instructions() {
		t.Fatalf("expected rendered persona instructions, got %q", gotInstructions)
	}
}
