package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonRealtimeConnect  ReasonCode = "realtime_connect"
	ReasonRealtimeProtocol ReasonCode = "realtime_protocol"
	ReasonRealtimeSend     ReasonCode = "realtime_send"

	ReasonTelnyxAPI    ReasonCode = "telnyx_api"
	ReasonTelnyxDial   ReasonCode = "telnyx_dial"
	ReasonTelnyxStream ReasonCode = "telnyx_stream"
	ReasonTelnyxHangup ReasonCode = "telnyx_hangup"

	ReasonCallLookup  ReasonCode = "call_lookup"
	ReasonCallTimeout ReasonCode = "call_timeout"

	ReasonWebhookDecode   ReasonCode = "webhook_decode"
	ReasonTranscriptWrite ReasonCode = "transcript_write"
)
