// Package realtime implements the client side of one speech-to-speech
// session: websocket dial, session configuration handshake, async audio
// upload and a typed event stream for the bridge to consume.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/probecall/probecall/pkg/configutil"
	"github.com/probecall/probecall/pkg/errorsx"
	"github.com/probecall/probecall/pkg/logging"
)

type Config struct {
	APIKey             string `mapstructure:"api_key"`
	Model              string `mapstructure:"model"`
	BaseURL            string `mapstructure:"base_url"`
	Voice              string `mapstructure:"voice"`
	AudioFormat        string `mapstructure:"audio_format"`
	TranscriptionModel string `mapstructure:"transcription_model"`

	VADThreshold         float64 `mapstructure:"vad_threshold"`
	VADPrefixPaddingMS   int     `mapstructure:"vad_prefix_padding_ms"`
	VADSilenceDurationMS int     `mapstructure:"vad_silence_duration_ms"`

	Temperature float64 `mapstructure:"temperature"`
	// SeedOpening injects a synthetic "the receptionist just greeted
	// you" turn after configuration so the persona speaks first.
	SeedOpening        *bool `mapstructure:"seed_opening"`
	HandshakeTimeoutMS int   `mapstructure:"handshake_timeout_ms"`
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "gpt-4o-realtime-preview"
	}
	if c.BaseURL == "" {
		c.BaseURL = "wss://api.openai.com/v1/realtime"
	}
	if c.Voice == "" {
		c.Voice = "alloy"
	}
	// g711_ulaw matches the telephony line's native encoding so no
	// transcoding happens anywhere in the path.
	if c.AudioFormat == "" {
		c.AudioFormat = "g711_ulaw"
	}
	if c.TranscriptionModel == "" {
		c.TranscriptionModel = "whisper-1"
	}
	if c.VADThreshold == 0 {
		c.VADThreshold = 0.5
	}
	if c.VADPrefixPaddingMS == 0 {
		c.VADPrefixPaddingMS = 300
	}
	if c.VADSilenceDurationMS == 0 {
		c.VADSilenceDurationMS = 700
	}
	if c.Temperature == 0 {
		c.Temperature = 0.8
	}
	if c.HandshakeTimeoutMS <= 0 {
		c.HandshakeTimeoutMS = 10000
	}
	return c
}

// seedText is the synthetic user turn that primes the model to speak
// first, mirroring a real phone call where the callee talks after being
// greeted.
const seedText = "The receptionist just answered the phone and greeted you. " +
	"Introduce yourself and state your reason for calling."

// Client manages one connection to the realtime speech API. A Client is
// single-use: Close discards it and a new conversation needs a new
// Connect on a fresh Client.
type Client struct {
	cfg    Config
	logger *slog.Logger

	conn    *websocket.Conn
	events  chan Event
	sendMu  sync.Mutex
	sendCh  chan []byte
	dropped atomic.Int64
	closed  atomic.Bool
	once    sync.Once
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:    cfg.withDefaults(),
		logger: logging.NewComponentLogger(slog.Default(), "realtime"),
		events: make(chan Event, 256),
		sendCh: make(chan []byte, 512),
	}
}

// Connect dials the API, waits for session.created, applies the session
// configuration and blocks until the far end confirms it. Only after a
// confirmed configuration does the event stream start; a far-end error
// event during the handshake fails with a protocol reason, transport
// failures with a connect reason.
func (c *Client) Connect(ctx context.Context, instructions string) error {
	handshake := time.Duration(c.cfg.HandshakeTimeoutMS) * time.Millisecond
	dialer := websocket.Dialer{HandshakeTimeout: handshake}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	endpoint := c.cfg.BaseURL + "?model=" + url.QueryEscape(c.cfg.Model)
	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonRealtimeConnect)
	}
	c.conn = conn
	_ = conn.SetReadDeadline(time.Now().Add(handshake))

	first, err := c.readEvent()
	if err != nil {
		_ = conn.Close()
		return errorsx.Wrap(err, errorsx.ReasonRealtimeConnect)
	}
	if first.Type == EventError {
		_ = conn.Close()
		return errorsx.New("error event before session created: "+errMessage(first.Err), errorsx.ReasonRealtimeProtocol)
	}
	if first.Type != EventSessionCreated {
		c.logger.Warn("unexpected first event", slog.String("type", first.RawType))
	}

	if err := conn.WriteJSON(c.sessionUpdate(instructions)); err != nil {
		_ = conn.Close()
		return errorsx.Wrap(err, errorsx.ReasonRealtimeConnect)
	}
	for {
		ev, err := c.readEvent()
		if err != nil {
			_ = conn.Close()
			return errorsx.Wrap(err, errorsx.ReasonRealtimeConnect)
		}
		if ev.Type == EventError {
			_ = conn.Close()
			return errorsx.New("error event before session configured: "+errMessage(ev.Err), errorsx.ReasonRealtimeProtocol)
		}
		if ev.Type == EventSessionUpdated {
			break
		}
	}
	_ = conn.SetReadDeadline(time.Time{})

	if configutil.BoolValue(c.cfg.SeedOpening, true) {
		if err := conn.WriteJSON(seedItem()); err != nil {
			_ = conn.Close()
			return errorsx.Wrap(err, errorsx.ReasonRealtimeConnect)
		}
		if err := conn.WriteJSON(map[string]any{"type": "response.create"}); err != nil {
			_ = conn.Close()
			return errorsx.Wrap(err, errorsx.ReasonRealtimeConnect)
		}
	}

	go c.writeLoop()
	go c.readLoop()
	return nil
}

// SendAudio queues one base64 frame of caller audio for upload. The
// queue is flushed by a background writer so the media-stream handler
// never blocks on the speech connection; when the queue is full the
// frame is dropped and counted.
func (c *Client) SendAudio(payload string) error {
	msg, err := json.Marshal(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": payload,
	})
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonRealtimeSend)
	}
	// sendMu pairs the closed check with the enqueue so a concurrent
	// Close can never close the channel between the two.
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed.Load() {
		return errorsx.New("session closed", errorsx.ReasonRealtimeSend)
	}
	select {
	case c.sendCh <- msg:
	default:
		c.dropped.Add(1)
	}
	return nil
}

// Events returns the inbound event stream. The channel is closed when
// the connection is lost or Close is called; there is no reconnect.
func (c *Client) Events() <-chan Event { return c.events }

// DroppedFrames reports how many audio frames were shed because the
// upload queue was full.
func (c *Client) DroppedFrames() int64 { return c.dropped.Load() }

// Close tears the connection down. Safe to call multiple times, before
// Connect succeeded, and concurrently with SendAudio; close-time
// transport errors are swallowed.
func (c *Client) Close() error {
	c.once.Do(func() {
		c.sendMu.Lock()
		c.closed.Store(true)
		close(c.sendCh)
		c.sendMu.Unlock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
	return nil
}

func (c *Client) readEvent() (Event, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return Event{}, err
	}
	return decodeEvent(data), nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Debug("connection closed", slog.String("error", err.Error()))
			}
			return
		}
		c.events <- decodeEvent(data)
	}
}

func (c *Client) writeLoop() {
	for msg := range c.sendCh {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			if !c.closed.Load() {
				c.logger.Debug("send failed", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (c *Client) sessionUpdate(instructions string) map[string]any {
	return map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"modalities":          []string{"text", "audio"},
			"instructions":        instructions,
			"voice":               c.cfg.Voice,
			"input_audio_format":  c.cfg.AudioFormat,
			"output_audio_format": c.cfg.AudioFormat,
			"input_audio_transcription": map[string]any{
				"model": c.cfg.TranscriptionModel,
			},
			"turn_detection": map[string]any{
				"type":                "server_vad",
				"threshold":           c.cfg.VADThreshold,
				"prefix_padding_ms":   c.cfg.VADPrefixPaddingMS,
				"silence_duration_ms": c.cfg.VADSilenceDurationMS,
			},
			"temperature": c.cfg.Temperature,
		},
	}
}

func seedItem() map[string]any {
	return map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": seedText},
			},
		},
	}
}

func errMessage(e *ErrorDetail) string {
	if e == nil {
		return "unknown"
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}
