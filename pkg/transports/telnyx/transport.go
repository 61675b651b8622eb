package telnyx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/probecall/probecall/pkg/bridge"
	"github.com/probecall/probecall/pkg/calls"
	"github.com/probecall/probecall/pkg/errorsx"
	"github.com/probecall/probecall/pkg/logging"
	"github.com/probecall/probecall/pkg/metrics"
	"github.com/probecall/probecall/pkg/scenario"
)

type Config struct {
	ServerAddr   string `mapstructure:"server_addr"`
	WebhookPath  string `mapstructure:"webhook_path"`
	StreamPath   string `mapstructure:"stream_path"`
	WebhookURL   string `mapstructure:"webhook_url"`
	TargetNumber string `mapstructure:"target_number"`
	FromNumber   string `mapstructure:"from_number"`
	ConnectionID string `mapstructure:"connection_id"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.WebhookPath == "" {
		c.WebhookPath = "/webhook"
	}
	if c.StreamPath == "" {
		c.StreamPath = "/media-stream"
	}
	return c
}

// Deps are the collaborators the HTTP surface fans out to.
type Deps struct {
	Client     *Client
	Registry   *calls.Registry
	Controller *calls.Controller
	Catalog    *scenario.Catalog
	DialSpeech bridge.SpeechDialer
	Observer   metrics.Observer
}

// Transport is the probe's HTTP server: the provider webhook, the
// media-stream websocket and the admin endpoints that trigger calls.
type Transport struct {
	cfg      Config
	deps     Deps
	server   *http.Server
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session

	draining atomic.Bool
}

func New(cfg Config, deps Deps) *Transport {
	if deps.Observer == nil {
		deps.Observer = metrics.NoopObserver{}
	}
	return &Transport{
		cfg:  cfg.withDefaults(),
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:   logging.NewComponentLogger(slog.Default(), "transport"),
		sessions: make(map[string]*session),
	}
}

func (t *Transport) Name() string { return "telnyx" }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{
		"webhook_url": t.cfg.WebhookURL,
		"stream_path": t.cfg.StreamPath,
		"scenarios":   t.deps.Catalog.Len(),
	}
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc(t.cfg.WebhookPath, t.handleWebhook)
	mux.Handle(t.cfg.StreamPath, t)
	mux.HandleFunc("/calls/", t.handleTrigger)
	mux.HandleFunc("/scenarios", t.handleScenarios)
	mux.HandleFunc("/", t.handleHealth)
	t.server = &http.Server{
		Addr:              t.cfg.ServerAddr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	go func() {
		<-ctx.Done()
		_ = t.server.Close()
	}()
	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.draining.Store(true)
	if t.server != nil {
		_ = t.server.Close()
	}
	t.mu.Lock()
	for _, sess := range t.sessions {
		_ = sess.close()
	}
	t.sessions = make(map[string]*session)
	t.mu.Unlock()
	return nil
}

// handleWebhook acknowledges every Call Control notification with 200.
// The provider retries non-2xx responses; an internal failure here must
// not cause a replay storm, so problems are logged and swallowed.
func (t *Transport) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var env WebhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		t.logger.Warn("webhook decode failed",
			slog.String("error", err.Error()),
			slog.String("reason_code", string(errorsx.ReasonWebhookDecode)))
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	t.deps.Controller.HandleEvent(r.Context(), calls.Event{
		Type:          env.Data.EventType,
		CallControlID: env.Data.Payload.CallControlID,
		To:            env.Data.Payload.To,
		From:          env.Data.Payload.From,
		HangupCause:   env.Data.Payload.HangupCause,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleTrigger places an outbound call for the scenario at the index
// in the path, POST /calls/{index}.
func (t *Transport) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	idx, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/calls/"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "scenario index must be an integer"})
		return
	}
	scn, err := t.deps.Catalog.ByIndex(idx)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	t.logger.Info("placing call", slog.String("scenario", scn.Name))
	callControlID, err := t.deps.Client.CreateCall(r.Context(),
		t.cfg.TargetNumber, t.cfg.FromNumber, t.cfg.ConnectionID, t.cfg.WebhookURL)
	if err != nil {
		t.logger.Error("call placement failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "call placement failed: " + err.Error()})
		return
	}
	call := t.deps.Registry.Register(callControlID, scn)
	t.deps.Observer.RecordEvent(metrics.CallEvent("call_placed", callControlID, call.TraceID, 0))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "calling",
		"call_control_id": callControlID,
		"scenario":        scn.Name,
	})
}

func (t *Transport) handleScenarios(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	list := t.deps.Catalog.List()
	out := make([]map[string]any, 0, len(list))
	for i, scn := range list {
		out = append(out, map[string]any{"index": i, "id": scn.ID, "name": scn.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (t *Transport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"scenarios":    t.deps.Catalog.Len(),
		"active_calls": t.deps.Registry.Len(),
	})
}

// ServeHTTP is the media-stream websocket handler. One connection
// carries one call: start binds it to a registered call and dials the
// speech session, media frames flow through the bridge, stop or
// disconnect tears it down.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	t.logger.Info("media stream connected")

	var (
		b        *bridge.Bridge
		sess     *session
		streamID string
	)
	defer func() {
		if b != nil {
			_ = b.Close()
		}
		if sess != nil {
			t.detach(streamID)
		}
		t.logger.Info("media stream handler exited")
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var evt StreamEvent
		if err := json.Unmarshal(msg, &evt); err != nil {
			continue
		}
		switch evt.Event {
		case "connected":
			t.logger.Debug("stream connected event")
		case "start":
			if evt.Start == nil || b != nil {
				continue
			}
			b, sess, streamID = t.startBridge(conn, evt.Start)
		case "media":
			if b == nil || evt.Media == nil || evt.Media.Payload == "" {
				continue
			}
			if err := b.ForwardAudio(evt.Media.Payload); err != nil {
				t.logger.Warn("audio forward failed", slog.String("error", err.Error()))
			}
		case "stop":
			t.logger.Info("stream stop event")
			return
		}
	}
}

// startBridge resolves the call the stream belongs to, opens the speech
// session and wires the outbound audio path. A stream for an unknown
// call is left connected but bridgeless; the provider closes it when
// the call dies.
func (t *Transport) startBridge(conn *websocket.Conn, start *StreamStartInfo) (*bridge.Bridge, *session, string) {
	call, ok := t.deps.Registry.Resolve(start.CallControlID)
	if !ok {
		t.logger.Warn("stream start for unknown call",
			slog.String("call_control_id", start.CallControlID),
			slog.String("reason_code", string(errorsx.ReasonCallLookup)))
		return nil, nil, ""
	}
	t.logger.Info("stream started",
		slog.String("call_control_id", call.ControlID),
		slog.String("stream_id", start.StreamID))

	sess := t.attach(start.StreamID, conn)
	b := bridge.New(call.ControlID, call.TraceID, call.Scenario, t.deps.DialSpeech, sess, t.deps.Observer)
	if err := b.Connect(context.Background()); err != nil {
		t.logger.Error("bridge connect failed",
			slog.String("call_control_id", call.ControlID),
			slog.String("error", err.Error()))
		t.detach(start.StreamID)
		return nil, nil, ""
	}
	if _, ok := t.deps.Registry.AttachBridge(call.ControlID, b); !ok {
		t.logger.Warn("bridge attach rejected", slog.String("call_control_id", call.ControlID))
	}
	return b, sess, start.StreamID
}

func (t *Transport) attach(streamID string, conn *websocket.Conn) *session {
	sess := &session{
		conn:   conn,
		sendCh: make(chan []byte, 256),
	}
	t.mu.Lock()
	if old := t.sessions[streamID]; old != nil {
		_ = old.close()
	}
	t.sessions[streamID] = sess
	t.mu.Unlock()
	go sess.loop()
	return sess
}

func (t *Transport) detach(streamID string) {
	t.mu.Lock()
	sess := t.sessions[streamID]
	delete(t.sessions, streamID)
	t.mu.Unlock()
	if sess != nil {
		_ = sess.close()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// session serializes writes onto one media-stream websocket. Writes go
// through a buffered queue and a single writer goroutine; a full queue
// drops the frame rather than stall the speech relay.
type session struct {
	conn   *websocket.Conn
	sendMu sync.Mutex
	sendCh chan []byte
	closed bool
}

// SendMedia queues one outbound audio frame for the call. Safe against
// a concurrent close; frames arriving after close are dropped.
func (s *session) SendMedia(payload string) error {
	msg, err := json.Marshal(StreamEvent{
		Event: "media",
		Media: &StreamMedia{Payload: payload},
	})
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed {
		return nil
	}
	select {
	case s.sendCh <- msg:
	default:
	}
	return nil
}

func (s *session) loop() {
	for msg := range s.sendCh {
		_ = s.conn.WriteMessage(websocket.TextMessage, msg)
	}
}

func (s *session) close() error {
	s.sendMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.sendCh)
	}
	s.sendMu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
