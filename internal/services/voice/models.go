// internal/services/voice/models.go
package voice

// Control frame types exchanged as text messages on the voice socket. Binary
// frames carry raw audio in both directions.
const (
	MsgEndOfUtterance = "end_of_utterance"
	MsgTextFallback   = "text_fallback"
	MsgTranscript     = "transcript"
	MsgResponseText   = "response_text"
	MsgError          = "error"
)

// ControlMessage is the JSON payload of a text frame.
type ControlMessage struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Intent string `json:"intent,omitempty"`
	Code   string `json:"code,omitempty"`
}
