package calls

import (
	"context"
	"log/slog"
	"time"

	"github.com/probecall/probecall/pkg/bridge"
	"github.com/probecall/probecall/pkg/logging"
	"github.com/probecall/probecall/pkg/metrics"
	"github.com/probecall/probecall/pkg/scenario"
)

// Webhook event types delivered by the telephony provider.
const (
	EventInitiated        = "call.initiated"
	EventAnswered         = "call.answered"
	EventHangup           = "call.hangup"
	EventStreamingStarted = "streaming.started"
	EventStreamingStopped = "streaming.stopped"
)

// Event is one provider notification, already lifted out of the webhook
// envelope at the HTTP boundary.
type Event struct {
	Type          string
	CallControlID string
	To            string
	From          string
	HangupCause   string
}

// TelephonyAPI is the slice of the call-control client the controller
// drives.
type TelephonyAPI interface {
	StreamStart(ctx context.Context, callControlID, streamURL string) error
	Hangup(ctx context.Context, callControlID string) error
}

// TranscriptSink persists the conversation of a completed call.
type TranscriptSink interface {
	Write(scn scenario.Scenario, startedAt time.Time, entries []bridge.Entry) (string, error)
}

type ControllerConfig struct {
	// StreamURL is this process's media-stream endpoint handed to the
	// provider when streaming starts.
	StreamURL string
	// MaxCallDuration force-hangs-up calls that run too long so a stuck
	// conversation cannot burn money indefinitely.
	MaxCallDuration time.Duration
}

// Controller reacts to provider webhook events: it starts media
// streaming when a call is answered, arms the per-call timeout, and
// tears everything down on hangup. Events for unknown calls are logged
// and dropped, never errors — webhook delivery races teardown.
type Controller struct {
	cfg      ControllerConfig
	registry *Registry
	api      TelephonyAPI
	sink     TranscriptSink
	obs      metrics.Observer
	logger   *slog.Logger
}

func NewController(cfg ControllerConfig, registry *Registry, api TelephonyAPI, sink TranscriptSink, obs metrics.Observer) *Controller {
	if cfg.MaxCallDuration <= 0 {
		cfg.MaxCallDuration = 4 * time.Minute
	}
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	return &Controller{
		cfg:      cfg,
		registry: registry,
		api:      api,
		sink:     sink,
		obs:      obs,
		logger:   logging.NewComponentLogger(slog.Default(), "lifecycle"),
	}
}

// HandleEvent dispatches one webhook event. It never returns an error:
// the webhook endpoint acknowledges regardless of internal outcome, so
// failures are logged here and contained.
func (c *Controller) HandleEvent(ctx context.Context, ev Event) {
	c.logger.Info("provider event",
		slog.String("event_type", ev.Type),
		slog.String("call_control_id", ev.CallControlID))

	switch ev.Type {
	case EventInitiated:
		c.logger.Info("call initiated", slog.String("to", ev.To))
	case EventAnswered:
		c.onAnswered(ctx, ev)
	case EventHangup:
		c.onHangup(ctx, ev)
	case EventStreamingStarted:
		c.logger.Info("media streaming started", slog.String("call_control_id", ev.CallControlID))
	case EventStreamingStopped:
		c.logger.Info("media streaming stopped", slog.String("call_control_id", ev.CallControlID))
	default:
		c.logger.Debug("unhandled provider event", slog.String("event_type", ev.Type))
	}
}

func (c *Controller) onAnswered(ctx context.Context, ev Event) {
	call, ok := c.registry.Resolve(ev.CallControlID)
	if !ok {
		c.logger.Warn("answered event for unknown call", slog.String("call_control_id", ev.CallControlID))
		return
	}

	if err := c.api.StreamStart(ctx, call.ControlID, c.cfg.StreamURL); err != nil {
		c.logger.Error("stream start failed",
			slog.String("call_control_id", call.ControlID),
			slog.String("error", err.Error()))
		return
	}
	c.obs.RecordEvent(metrics.CallEvent("call_answered", call.ControlID, call.TraceID, 0))
	c.armTimeout(call.ControlID, call.TraceID)
}

// armTimeout starts the max-duration watchdog. The task either fires
// exactly once or is cancelled by the hangup path; the timeout itself
// does not remove the record — the provider's hangup notification does.
func (c *Controller) armTimeout(callControlID, traceID string) {
	tctx, cancel := context.WithCancel(context.Background())
	c.registry.setCancelTimeout(callControlID, cancel)
	go func() {
		timer := time.NewTimer(c.cfg.MaxCallDuration)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-tctx.Done():
			return
		}
		c.logger.Info("max call duration reached, hanging up",
			slog.String("call_control_id", callControlID),
			slog.Duration("max_duration", c.cfg.MaxCallDuration))
		c.obs.RecordEvent(metrics.CallEvent("call_timeout", callControlID, traceID, c.cfg.MaxCallDuration.Seconds()))
		hctx, hcancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer hcancel()
		if err := c.api.Hangup(hctx, callControlID); err != nil {
			// Not retried: the provider terminates abandoned calls on
			// its own eventually.
			c.logger.Error("timeout hangup failed",
				slog.String("call_control_id", callControlID),
				slog.String("error", err.Error()))
		}
	}()
}

func (c *Controller) onHangup(ctx context.Context, ev Event) {
	call, ok := c.registry.Remove(ev.CallControlID)
	if !ok {
		c.logger.Warn("hangup for unknown call", slog.String("call_control_id", ev.CallControlID))
		return
	}
	if call.cancelTimeout != nil {
		call.cancelTimeout()
	}

	if call.Bridge != nil {
		c.persistTranscript(call)
		_ = call.Bridge.Close()
	}
	c.obs.RecordEvent(metrics.CallEvent("call_ended", call.ControlID, call.TraceID, 0))
	c.logger.Info("call ended and cleaned up",
		slog.String("call_control_id", call.ControlID),
		slog.String("hangup_cause", ev.HangupCause))
}

func (c *Controller) persistTranscript(call *Call) {
	if c.sink == nil {
		return
	}
	path, err := c.sink.Write(call.Scenario, call.Bridge.StartedAt(), call.Bridge.Transcript())
	if err != nil {
		c.logger.Error("transcript write failed",
			slog.String("call_control_id", call.ControlID),
			slog.String("error", err.Error()))
		return
	}
	c.logger.Info("transcript saved", slog.String("path", path))
}
