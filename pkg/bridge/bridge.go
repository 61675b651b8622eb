// Package bridge relays one phone call between the telephony media
// stream and a realtime speech session, capturing the transcript as it
// goes. Each bridge owns exactly one speech session and one outbound
// media sink; both sides run at their own pace and neither may block
// the other.
package bridge

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/probecall/probecall/pkg/logging"
	"github.com/probecall/probecall/pkg/metrics"
	"github.com/probecall/probecall/pkg/realtime"
	"github.com/probecall/probecall/pkg/scenario"
)

type Speaker string

const (
	// SpeakerAgent is the receptionist under test (inbound audio).
	SpeakerAgent Speaker = "agent"
	// SpeakerPatient is the simulated caller (model output).
	SpeakerPatient Speaker = "patient"
)

// Entry is one finalized conversational turn. Entries are append-only
// and ordered by turn completion, not by wall-clock audio interleaving.
type Entry struct {
	Speaker Speaker
	Text    string
}

// MediaSender delivers one base64 audio payload to the telephony stream.
type MediaSender interface {
	SendMedia(payload string) error
}

// SpeechSession is the slice of the realtime client the bridge needs.
type SpeechSession interface {
	SendAudio(payload string) error
	Events() <-chan realtime.Event
	Close() error
}

// SpeechDialer opens and configures a speech session for the given
// persona instructions.
type SpeechDialer func(ctx context.Context, instructions string) (SpeechSession, error)

// frame counts worth a log line; matches the cadence operators are used
// to watching during a call.
var milestones = map[int64]struct{}{1: {}, 10: {}, 50: {}, 100: {}, 500: {}}

const relayJoinTimeout = 2 * time.Second

// Bridge is the live relay state for one call.
type Bridge struct {
	callControlID string
	traceID       string
	scn           scenario.Scenario
	dial          SpeechDialer
	media         MediaSender
	obs           metrics.Observer
	logger        *slog.Logger
	startedAt     time.Time

	mu         sync.Mutex
	state      State
	speech     SpeechSession
	transcript []Entry
	relayDone  chan struct{}

	framesIn  atomic.Int64
	framesOut atomic.Int64
	closeOnce sync.Once
}

func New(callControlID, traceID string, scn scenario.Scenario, dial SpeechDialer, media MediaSender, obs metrics.Observer) *Bridge {
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	return &Bridge{
		callControlID: callControlID,
		traceID:       traceID,
		scn:           scn,
		dial:          dial,
		media:         media,
		obs:           obs,
		logger: logging.NewComponentLogger(slog.Default(), "bridge").With(
			slog.String("call_control_id", callControlID),
			slog.String("trace_id", traceID),
		),
		startedAt: time.Now().UTC(),
		state:     StateConnecting,
	}
}

// Connect dials and configures the speech session, then starts the
// background relay. Any failure moves the bridge straight to Closed;
// there is no partially-active state.
func (b *Bridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateConnecting {
		st := b.state
		b.mu.Unlock()
		return &InvalidTransitionError{From: st, To: StateActive}
	}
	b.mu.Unlock()

	speech, err := b.dial(ctx, b.scn.Instructions())
	if err != nil {
		b.setState(StateClosed)
		return err
	}

	b.mu.Lock()
	b.speech = speech
	b.relayDone = make(chan struct{})
	b.state = StateActive
	b.mu.Unlock()

	go b.relay(speech.Events())
	b.logger.Info("bridge active", slog.String("scenario", b.scn.Name))
	b.obs.RecordEvent(metrics.CallEvent("bridge_connected", b.callControlID, b.traceID, 0))
	return nil
}

// ForwardAudio passes one inbound telephony frame to the speech
// session. Frames that arrive before the session is active are dropped,
// not queued: the telephony side keeps streaming regardless and stale
// audio is worse than none.
func (b *Bridge) ForwardAudio(payload string) error {
	if b.State() != StateActive {
		return nil
	}
	n := b.framesIn.Add(1)
	if _, ok := milestones[n]; ok {
		b.logger.Debug("audio frames received", slog.Int64("count", n))
		b.obs.RecordEvent(metrics.CallEvent("audio_in_milestone", b.callControlID, b.traceID, float64(n)))
	}
	return b.speechSession().SendAudio(payload)
}

// relay consumes the speech event stream until the connection closes.
// All demux happens here, in arrival order: audio out, transcript
// capture, diagnostics. A far-end error event is logged but does not
// end the session; only connection loss does.
func (b *Bridge) relay(events <-chan realtime.Event) {
	defer close(b.relayDone)
	for ev := range events {
		switch ev.Type {
		case realtime.EventAudioDelta:
			if ev.Delta == "" {
				continue
			}
			if err := b.media.SendMedia(ev.Delta); err != nil {
				b.logger.Warn("media send failed", slog.String("error", err.Error()))
				continue
			}
			n := b.framesOut.Add(1)
			if _, ok := milestones[n]; ok {
				b.logger.Debug("audio frames sent", slog.Int64("count", n))
				b.obs.RecordEvent(metrics.CallEvent("audio_out_milestone", b.callControlID, b.traceID, float64(n)))
			}
		case realtime.EventResponseTranscript:
			b.appendTranscript(SpeakerPatient, ev.Transcript)
		case realtime.EventInputTranscript:
			b.appendTranscript(SpeakerAgent, ev.Transcript)
		case realtime.EventSessionCreated, realtime.EventSessionUpdated, realtime.EventLifecycle:
			b.logger.Debug("session event", slog.String("type", ev.RawType))
		case realtime.EventError:
			b.logger.Warn("speech session error event", slog.String("message", errText(ev)))
		default:
			b.logger.Debug("unhandled event", slog.String("type", ev.RawType))
		}
	}

	// Event stream ended: the speech connection is gone. Stop accepting
	// inbound audio and wait for the hangup path to finish teardown.
	b.mu.Lock()
	if b.state == StateActive {
		b.state = StateClosing
		b.logger.Info("speech connection lost")
	}
	b.mu.Unlock()
}

func (b *Bridge) appendTranscript(speaker Speaker, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	b.mu.Lock()
	b.transcript = append(b.transcript, Entry{Speaker: speaker, Text: text})
	b.mu.Unlock()
	b.logger.Info("transcript", slog.String("speaker", string(speaker)), slog.String("text", text))
}

// Close tears the bridge down exactly once: cancel the relay by closing
// the speech connection, join the relay goroutine, mark Closed. Safe to
// call concurrently, repeatedly, and on a bridge whose Connect never
// succeeded.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		if b.state == StateActive {
			b.state = StateClosing
		}
		speech := b.speech
		done := b.relayDone
		b.mu.Unlock()

		if speech != nil {
			_ = speech.Close()
		}
		if done != nil {
			select {
			case <-done:
			case <-time.After(relayJoinTimeout):
				b.logger.Warn("relay did not exit before timeout")
			}
		}
		b.setState(StateClosed)
		b.logger.Info("bridge closed", slog.Int("turns", len(b.Transcript())))
		b.obs.RecordEvent(metrics.CallEvent("bridge_closed", b.callControlID, b.traceID, float64(len(b.Transcript()))))
	})
	return nil
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) setState(to State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == to {
		return
	}
	if !transitionValid(b.state, to) {
		b.logger.Warn("forcing state transition",
			slog.String("from", b.state.String()), slog.String("to", to.String()))
	}
	b.state = to
}

func (b *Bridge) speechSession() SpeechSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.speech
}

// Transcript returns a copy of the turns captured so far, in completion
// order.
func (b *Bridge) Transcript() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.transcript))
	copy(out, b.transcript)
	return out
}

func (b *Bridge) CallControlID() string { return b.callControlID }

func (b *Bridge) Scenario() scenario.Scenario { return b.scn }

func (b *Bridge) StartedAt() time.Time { return b.startedAt }

func (b *Bridge) FramesIn() int64 { return b.framesIn.Load() }

func (b *Bridge) FramesOut() int64 { return b.framesOut.Load() }

func errText(ev realtime.Event) string {
	if ev.Err == nil {
		return "unknown"
	}
	if ev.Err.Message != "" {
		return ev.Err.Message
	}
	return ev.Err.Code
}
