// Package wire implements the JSON envelope protocol exchanged with the
// Gemini Live API over the persistent WebSocket connection.
//
// Exactly one envelope variant is populated per message. Outbound envelopes
// are built with the Encode* helpers; inbound payloads are decoded with
// Decode, which never panics across the receive boundary; malformed frames
// are reported as ErrMalformedEnvelope values.
package wire

import "encoding/json"

// Client envelope variants (outbound).

// SetupEnvelope is the first outbound envelope of every session.
type SetupEnvelope struct {
	Setup Setup `json:"setup"`
}

// Setup carries the negotiated session configuration.
type Setup struct {
	Model             string             `json:"model"`
	GenerationConfig  *GenerationConfig  `json:"generationConfig,omitempty"`
	SystemInstruction *Content           `json:"systemInstruction,omitempty"`
	SafetySettings    []SafetySetting    `json:"safetySettings,omitempty"`
	Tools             []ToolDeclarations `json:"tools,omitempty"`

	// Empty objects opt in to speech transcription on either leg.
	InputAudioTranscription  *TranscriptionConfig `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *TranscriptionConfig `json:"outputAudioTranscription,omitempty"`
}

// GenerationConfig carries sampling parameters and the output voice.
type GenerationConfig struct {
	Temperature        *float64      `json:"temperature,omitempty"`
	TopP               *float64      `json:"topP,omitempty"`
	TopK               *int          `json:"topK,omitempty"`
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// SpeechConfig selects the output voice.
type SpeechConfig struct {
	VoiceConfig *VoiceConfig `json:"voiceConfig,omitempty"`
}

// VoiceConfig wraps the prebuilt voice selection.
type VoiceConfig struct {
	PrebuiltVoiceConfig *PrebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

// PrebuiltVoiceConfig names a prebuilt output voice.
type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// SafetySetting is a per-category content-safety threshold.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// ToolDeclarations groups function declarations advertised to the model.
type ToolDeclarations struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

// FunctionDeclaration describes one callable tool.
type FunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ClientContentEnvelope carries user text turns.
type ClientContentEnvelope struct {
	ClientContent ClientContent `json:"clientContent"`
}

// ClientContent is a list of conversational turns plus a completion flag.
type ClientContent struct {
	Turns        []Content `json:"turns,omitempty"`
	TurnComplete bool      `json:"turnComplete"`
}

// Content is one conversational turn.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is one content part: text or inline media.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData is base64-encoded media with its MIME type.
type InlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// RealtimeInputEnvelope carries one audio chunk or one image frame.
type RealtimeInputEnvelope struct {
	RealtimeInput RealtimeInput `json:"realtimeInput"`
}

// RealtimeInput is a list of media chunks multiplexed onto the connection.
type RealtimeInput struct {
	MediaChunks []MediaChunk `json:"mediaChunks"`
}

// MediaChunk is the atomic unit of realtime media transport.
type MediaChunk struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ToolResponseEnvelope carries results of tool invocations requested by the model.
type ToolResponseEnvelope struct {
	ToolResponse ToolResponse `json:"toolResponse"`
}

// ToolResponse is a batch of function responses keyed by call ID.
type ToolResponse struct {
	FunctionResponses []FunctionResponse `json:"functionResponses"`
}

// FunctionResponse is the result of one tool invocation.
type FunctionResponse struct {
	ID       string `json:"id"`
	Response any    `json:"response"`
}

// Server envelope variants (inbound). Exactly one field is non-nil per message.

// ServerMessage is the inbound envelope union.
type ServerMessage struct {
	SetupComplete *SetupComplete `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	ToolCall      *ToolCallMsg   `json:"toolCall,omitempty"`
}

// SetupComplete acknowledges the setup envelope (empty object on the wire).
type SetupComplete struct{}

// ServerContent carries model output, an interruption signal, or a
// turn-complete signal, plus optional transcriptions.
type ServerContent struct {
	ModelTurn           *Content       `json:"modelTurn,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
}

// TranscriptionConfig enables transcription for one audio leg. The service
// takes its presence as the opt-in; it carries no fields.
type TranscriptionConfig struct{}

// Transcription is a text rendering of an audio stream.
type Transcription struct {
	Text string `json:"text,omitempty"`
}

// ToolCallMsg requests one or more function invocations.
type ToolCallMsg struct {
	FunctionCalls []FunctionCall `json:"functionCalls"`
}

// FunctionCall is one requested tool invocation.
type FunctionCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}
