// Package events provides the typed pub/sub surface a session exposes to its
// embedding application.
package events

import "time"

// Kind identifies one of the fixed session event kinds. The set is closed;
// consumers can exhaustively switch on it.
type Kind string

const (
	// KindAudio carries one PCM chunk of model speech.
	KindAudio Kind = "audio"

	// KindText carries one text part of a model turn.
	KindText Kind = "text"

	// KindInterrupted signals the model abandoned its in-flight turn.
	KindInterrupted Kind = "interrupted"

	// KindTurnComplete signals the model finished its turn.
	KindTurnComplete Kind = "turn_complete"

	// KindToolCall signals the model requested tool invocations.
	KindToolCall Kind = "tool_call"

	// KindTextSent confirms a user text turn was written to the wire.
	KindTextSent Kind = "text_sent"

	// KindScreenshareStopped signals screen capture ended, whether by
	// request or because the underlying source went away.
	KindScreenshareStopped Kind = "screenshare_stopped"

	// KindTranscription carries a transcription fragment of model speech.
	KindTranscription Kind = "transcription"

	// KindUserTranscription carries a transcription fragment of user speech.
	KindUserTranscription Kind = "user_transcription"
)

// Event is one session event delivered to listeners. Only the fields relevant
// to the Kind are populated.
type Event struct {
	Kind      Kind
	Timestamp time.Time

	// Audio holds PCM bytes for KindAudio.
	Audio []byte

	// Text holds text content for KindText, KindTextSent, KindTranscription,
	// and KindUserTranscription.
	Text string

	// ToolCalls holds the requested invocations for KindToolCall.
	ToolCalls []ToolInvocation
}

// ToolInvocation is one function call requested by the model.
type ToolInvocation struct {
	ID   string
	Name string
	Args []byte
}
