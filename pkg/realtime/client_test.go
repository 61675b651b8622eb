package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/probecall/probecall/pkg/errorsx"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeSpeechServer runs the given script against every websocket
// connection and records every client message it reads.
type fakeSpeechServer struct {
	srv    *httptest.Server
	inbox  chan map[string]any
	script func(conn *websocket.Conn, inbox chan map[string]any)
}

func newFakeSpeechServer(t *testing.T, script func(conn *websocket.Conn, inbox chan map[string]any)) *fakeSpeechServer {
	t.Helper()
	f := &fakeSpeechServer{
		inbox:  make(chan map[string]any, 64),
		script: script,
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		f.script(conn, f.inbox)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSpeechServer) wsURL() string {
	return strings.Replace(f.srv.URL, "http://", "ws://", 1)
}

func (f *fakeSpeechServer) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case msg := <-f.inbox:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for client message")
		return nil
	}
}

// readInto decodes one client message into the inbox.
func readInto(conn *websocket.Conn, inbox chan map[string]any) bool {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return false
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return false
	}
	inbox <- msg
	return true
}

func sendJSON(conn *websocket.Conn, msg map[string]any) {
	_ = conn.WriteJSON(msg)
}

// handshakeScript plays the server side of a successful configuration
// handshake, then keeps reading until the connection drops.
func handshakeScript(conn *websocket.Conn, inbox chan map[string]any) {
	sendJSON(conn, map[string]any{"type": "session.created"})
	if !readInto(conn, inbox) { // session.update
		return
	}
	sendJSON(conn, map[string]any{"type": "session.updated"})
	for readInto(conn, inbox) {
	}
}

func newTestClient(f *fakeSpeechServer, seed bool) *Client {
	return NewClient(Config{
		APIKey:      "sk-test",
		BaseURL:     f.wsURL(),
		SeedOpening: &seed,
	})
}

func TestConnectSendsSessionConfiguration(t *testing.T) {
	f := newFakeSpeechServer(t, handshakeScript)
	c := newTestClient(f, false)
	defer c.Close()

	if err := c.Connect(context.Background(), "persona instructions"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	update := f.next(t)
	if update["type"] != "session.update" {
		t.Fatalf("expected session.update, got %v", update["type"])
	}
	session, _ := update["session"].(map[string]any)
	if session == nil {
		t.Fatalf("missing session payload")
	}
	if session["instructions"] != "persona instructions" {
		t.Fatalf("instructions not forwarded: %v", session["instructions"])
	}
	if session["input_audio_format"] != "g711_ulaw" || session["output_audio_format"] != "g711_ulaw" {
		t.Fatalf("expected g711_ulaw both directions, got %v/%v",
			session["input_audio_format"], session["output_audio_format"])
	}
	td, _ := session["turn_detection"].(map[string]any)
	if td == nil || td["type"] != "server_vad" {
		t.Fatalf("expected server_vad turn detection, got %v", session["turn_detection"])
	}
}

func TestConnectSeedsOpeningTurn(t *testing.T) {
	f := newFakeSpeechServer(t, handshakeScript)
	c := newTestClient(f, true)
	defer c.Close()

	if err := c.Connect(context.Background(), "persona"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if msg := f.next(t); msg["type"] != "session.update" {
		t.Fatalf("expected session.update first, got %v", msg["type"])
	}
	if msg := f.next(t); msg["type"] != "conversation.item.create" {
		t.Fatalf("expected seeded conversation item, got %v", msg["type"])
	}
	if msg := f.next(t); msg["type"] != "response.create" {
		t.Fatalf("expected response.create, got %v", msg["type"])
	}
}

func TestConnectFailsOnErrorEvent(t *testing.T) {
	f := newFakeSpeechServer(t, func(conn *websocket.Conn, inbox chan map[string]any) {
		sendJSON(conn, map[string]any{
			"type":  "error",
			"error": map[string]any{"message": "invalid api key"},
		})
	})
	c := newTestClient(f, false)
	defer c.Close()

	err := c.Connect(context.Background(), "persona")
	if err == nil {
		t.Fatalf("expected connect error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonRealtimeProtocol) {
		t.Fatalf("expected protocol reason, got %s", errorsx.Reason(err))
	}
}

func TestConnectFailsOnDialError(t *testing.T) {
	c := NewClient(Config{APIKey: "sk-test", BaseURL: "ws://127.0.0.1:1", HandshakeTimeoutMS: 200})
	defer c.Close()
	err := c.Connect(context.Background(), "persona")
	if err == nil {
		t.Fatalf("expected dial error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonRealtimeConnect) {
		t.Fatalf("expected connect reason, got %s", errorsx.Reason(err))
	}
}

func TestSendAudioPreservesOrder(t *testing.T) {
	f := newFakeSpeechServer(t, handshakeScript)
	c := newTestClient(f, false)
	defer c.Close()

	if err := c.Connect(context.Background(), "persona"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	f.next(t) // session.update

	for _, chunk := range []string{"a1", "a2", "a3"} {
		if err := c.SendAudio(chunk); err != nil {
			t.Fatalf("send audio: %v", err)
		}
	}
	for _, want := range []string{"a1", "a2", "a3"} {
		msg := f.next(t)
		if msg["type"] != "input_audio_buffer.append" {
			t.Fatalf("expected append, got %v", msg["type"])
		}
		if msg["audio"] != want {
			t.Fatalf("expected audio %q, got %v", want, msg["audio"])
		}
	}
}

func TestEventsDemux(t *testing.T) {
	f := newFakeSpeechServer(t, func(conn *websocket.Conn, inbox chan map[string]any) {
		sendJSON(conn, map[string]any{"type": "session.created"})
		if !readInto(conn, inbox) {
			return
		}
		sendJSON(conn, map[string]any{"type": "session.updated"})
		sendJSON(conn, map[string]any{"type": "response.audio.delta", "delta": "b64-audio"})
		sendJSON(conn, map[string]any{"type": "response.audio_transcript.done", "transcript": "hello there"})
		sendJSON(conn, map[string]any{"type": "conversation.item.input_audio_transcription.completed", "transcript": "hi, clinic"})
		sendJSON(conn, map[string]any{"type": "response.done"})
		sendJSON(conn, map[string]any{"type": "some.future.event"})
		for readInto(conn, inbox) {
		}
	})
	c := newTestClient(f, false)
	defer c.Close()

	if err := c.Connect(context.Background(), "persona"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	want := []struct {
		typ EventType
		val string
	}{
		{EventAudioDelta, "b64-audio"},
		{EventResponseTranscript, "hello there"},
		{EventInputTranscript, "hi, clinic"},
		{EventLifecycle, ""},
		{EventUnknown, ""},
	}
	for _, w := range want {
		select {
		case ev := <-c.Events():
			if ev.Type != w.typ {
				t.Fatalf("expected %s, got %s (%s)", w.typ, ev.Type, ev.RawType)
			}
			if w.typ == EventAudioDelta && ev.Delta != w.val {
				t.Fatalf("expected delta %q, got %q", w.val, ev.Delta)
			}
			if (w.typ == EventResponseTranscript || w.typ == EventInputTranscript) && ev.Transcript != w.val {
				t.Fatalf("expected transcript %q, got %q", w.val, ev.Transcript)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", w.typ)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newFakeSpeechServer(t, handshakeScript)
	c := newTestClient(f, false)
	if err := c.Connect(context.Background(), "persona"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := c.SendAudio("x"); err == nil {
		t.Fatalf("expected send after close to fail")
	}
}

func TestCloseBeforeConnect(t *testing.T) {
	c := NewClient(Config{APIKey: "sk-test"})
	if err := c.Close(); err != nil {
		t.Fatalf("close before connect: %v", err)
	}
}

func TestSendAudioDuringClose(t *testing.T) {
	c := NewClient(Config{APIKey: "sk-test"})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			_ = c.SendAudio("AAAA")
		}
	}()
	_ = c.Close()
	<-done
	if err := c.SendAudio("AAAA"); err == nil {
		t.Fatalf("expected send after close to fail")
	}
}
