package realtime

import "encoding/json"

// EventType classifies the server events the bridge cares about. The
// upstream protocol has many more event kinds; anything not listed here
// is surfaced as EventUnknown with its raw type preserved so new
// upstream events never disappear silently.
type EventType string

const (
	// EventAudioDelta carries one base64 chunk of synthesized speech.
	EventAudioDelta EventType = "audio_delta"
	// EventResponseTranscript is the finalized transcript of the
	// model's own spoken response.
	EventResponseTranscript EventType = "response_transcript"
	// EventInputTranscript is the finalized transcription of inbound
	// caller audio.
	EventInputTranscript EventType = "input_transcript"

	EventSessionCreated EventType = "session_created"
	EventSessionUpdated EventType = "session_updated"
	// EventLifecycle covers benign response/buffer lifecycle
	// notifications observed only for diagnostics.
	EventLifecycle EventType = "lifecycle"
	EventError     EventType = "error"
	EventUnknown   EventType = "unknown"
)

// ErrorDetail is the payload of a far-end error event.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event is one decoded server event.
type Event struct {
	Type       EventType
	Delta      string
	Transcript string
	Err        *ErrorDetail
	RawType    string
}

type wireEvent struct {
	Type       string       `json:"type"`
	Delta      string       `json:"delta"`
	Transcript string       `json:"transcript"`
	Error      *ErrorDetail `json:"error"`
}

// lifecycleTypes are known upstream events that need no handling beyond
// debug visibility.
var lifecycleTypes = map[string]struct{}{
	"response.created":                  {},
	"response.done":                     {},
	"response.output_item.added":        {},
	"response.output_item.done":         {},
	"response.content_part.added":       {},
	"response.content_part.done":        {},
	"response.audio.done":               {},
	"response.audio_transcript.delta":   {},
	"conversation.item.created":         {},
	"input_audio_buffer.speech_started": {},
	"input_audio_buffer.speech_stopped": {},
	"input_audio_buffer.committed":      {},
	"rate_limits.updated":               {},
}

func decodeEvent(data []byte) Event {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{Type: EventUnknown, RawType: "undecodable"}
	}
	ev := Event{RawType: w.Type}
	switch w.Type {
	case "response.audio.delta":
		ev.Type = EventAudioDelta
		ev.Delta = w.Delta
	case "response.audio_transcript.done":
		ev.Type = EventResponseTranscript
		ev.Transcript = w.Transcript
	case "conversation.item.input_audio_transcription.completed":
		ev.Type = EventInputTranscript
		ev.Transcript = w.Transcript
	case "session.created":
		ev.Type = EventSessionCreated
	case "session.updated":
		ev.Type = EventSessionUpdated
	case "error":
		ev.Type = EventError
		ev.Err = w.Error
	default:
		if _, ok := lifecycleTypes[w.Type]; ok {
			ev.Type = EventLifecycle
		} else {
			ev.Type = EventUnknown
		}
	}
	return ev
}
