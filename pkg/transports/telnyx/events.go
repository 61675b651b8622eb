package telnyx

// WebhookPayload is the useful subset of a Call Control event payload.
type WebhookPayload struct {
	CallControlID string `json:"call_control_id"`
	To            string `json:"to"`
	From          string `json:"from"`
	HangupCause   string `json:"hangup_cause"`
}

type WebhookData struct {
	EventType string         `json:"event_type"`
	Payload   WebhookPayload `json:"payload"`
}

// WebhookEnvelope is the outer wrapper of every Call Control webhook.
type WebhookEnvelope struct {
	Data WebhookData `json:"data"`
}

type StreamStartInfo struct {
	CallControlID string `json:"call_control_id"`
	StreamID      string `json:"stream_id"`
}

type StreamMedia struct {
	Payload string `json:"payload"`
}

type StreamStop struct {
	Reason string `json:"reason"`
}

// StreamEvent is one frame on the media-stream websocket, both
// directions. Inbound: connected, start, media, stop. Outbound frames
// carry event "media" with the payload set.
type StreamEvent struct {
	Event string           `json:"event"`
	Start *StreamStartInfo `json:"start,omitempty"`
	Media *StreamMedia     `json:"media,omitempty"`
	Stop  *StreamStop      `json:"stop,omitempty"`
}
