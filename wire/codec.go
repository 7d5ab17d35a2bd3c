package wire

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEnvelope indicates an inbound frame that is not valid JSON or
// matches no known envelope variant. Callers log and drop the frame; one bad
// frame must not tear down the session.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// ErrEmptyAudioData indicates no audio bytes were provided.
var ErrEmptyAudioData = errors.New("empty audio data")

const bytesPerSample = 2 // 16-bit linear PCM

// MIME types for realtime media chunks.
const (
	MimeTypePCM16k = "audio/pcm;rate=16000"
	MimeTypeJPEG   = "image/jpeg"
)

// Event is an application-level event decoded from one inbound envelope.
// Implementations form a closed tagged union dispatched with a type switch.
type Event interface {
	eventType() string
}

// SetupCompleteEvent acknowledges the setup envelope.
type SetupCompleteEvent struct{}

func (SetupCompleteEvent) eventType() string { return "setup_complete" }

// AudioEvent carries one decoded PCM chunk of model speech.
type AudioEvent struct {
	Data     []byte
	MimeType string
}

func (AudioEvent) eventType() string { return "audio" }

// TextEvent carries incremental model text output.
type TextEvent struct {
	Text string
}

func (TextEvent) eventType() string { return "text" }

// InterruptedEvent signals that in-flight playback must stop immediately.
type InterruptedEvent struct{}

func (InterruptedEvent) eventType() string { return "interrupted" }

// TurnCompleteEvent marks the end of the current model turn.
type TurnCompleteEvent struct{}

func (TurnCompleteEvent) eventType() string { return "turn_complete" }

// TranscriptionEvent carries a transcription of model speech.
type TranscriptionEvent struct {
	Text string
}

func (TranscriptionEvent) eventType() string { return "transcription" }

// UserTranscriptionEvent carries a transcription of user speech.
type UserTranscriptionEvent struct {
	Text string
}

func (UserTranscriptionEvent) eventType() string { return "user_transcription" }

// ToolCallEvent carries the full list of requested function invocations.
type ToolCallEvent struct {
	Calls []FunctionCall
}

func (ToolCallEvent) eventType() string { return "tool_call" }

// EncodePCM encodes raw PCM bytes to base64 for JSON transport.
// The byte count must be aligned to the 16-bit sample size.
func EncodePCM(pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", ErrEmptyAudioData
	}
	if len(pcm)%bytesPerSample != 0 {
		return "", fmt.Errorf("pcm data size %d not aligned to sample size %d", len(pcm), bytesPerSample)
	}
	return base64.StdEncoding.EncodeToString(pcm), nil
}

// DecodePCM decodes base64-encoded audio back to raw PCM bytes.
func DecodePCM(data string) ([]byte, error) {
	if data == "" {
		return nil, ErrEmptyAudioData
	}
	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode base64 audio: %w", err)
	}
	if len(pcm)%bytesPerSample != 0 {
		return nil, fmt.Errorf("decoded pcm size %d not aligned to sample size %d", len(pcm), bytesPerSample)
	}
	return pcm, nil
}

// EncodeAudioChunk builds a realtimeInput envelope for one captured PCM chunk.
func EncodeAudioChunk(pcm []byte) (*RealtimeInputEnvelope, error) {
	data, err := EncodePCM(pcm)
	if err != nil {
		return nil, err
	}
	return &RealtimeInputEnvelope{
		RealtimeInput: RealtimeInput{
			MediaChunks: []MediaChunk{{MimeType: MimeTypePCM16k, Data: data}},
		},
	}, nil
}

// EncodeImageFrame builds a realtimeInput envelope for one captured still frame.
// The frame bytes are passed through as base64; no re-encoding happens here.
func EncodeImageFrame(mimeType string, frame []byte) (*RealtimeInputEnvelope, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("empty image frame")
	}
	return &RealtimeInputEnvelope{
		RealtimeInput: RealtimeInput{
			MediaChunks: []MediaChunk{{
				MimeType: mimeType,
				Data:     base64.StdEncoding.EncodeToString(frame),
			}},
		},
	}, nil
}

// EncodeText builds a clientContent envelope for one user text turn.
func EncodeText(text string, turnComplete bool) *ClientContentEnvelope {
	return &ClientContentEnvelope{
		ClientContent: ClientContent{
			Turns: []Content{{
				Role:  "user",
				Parts: []Part{{Text: text}},
			}},
			TurnComplete: turnComplete,
		},
	}
}

// EncodeToolResponse builds a toolResponse envelope for a batch of results.
func EncodeToolResponse(responses []FunctionResponse) *ToolResponseEnvelope {
	return &ToolResponseEnvelope{
		ToolResponse: ToolResponse{FunctionResponses: responses},
	}
}

// Decode parses one inbound frame into zero or more application events in
// wire order. A frame that is not valid JSON, matches no known envelope
// variant, or carries undecodable media returns an error wrapping
// ErrMalformedEnvelope.
func Decode(data []byte) ([]Event, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	switch {
	case msg.SetupComplete != nil:
		return []Event{SetupCompleteEvent{}}, nil
	case msg.ToolCall != nil:
		if len(msg.ToolCall.FunctionCalls) == 0 {
			return nil, fmt.Errorf("%w: toolCall with no function calls", ErrMalformedEnvelope)
		}
		return []Event{ToolCallEvent{Calls: msg.ToolCall.FunctionCalls}}, nil
	case msg.ServerContent != nil:
		return decodeServerContent(msg.ServerContent)
	default:
		return nil, fmt.Errorf("%w: no known envelope variant", ErrMalformedEnvelope)
	}
}

// decodeServerContent expands a serverContent envelope into events,
// preserving part order. An interruption always precedes any media parts
// decoded from the same frame.
func decodeServerContent(content *ServerContent) ([]Event, error) {
	var events []Event

	if content.Interrupted {
		events = append(events, InterruptedEvent{})
	}
	if content.InputTranscription != nil && content.InputTranscription.Text != "" {
		events = append(events, UserTranscriptionEvent{Text: content.InputTranscription.Text})
	}
	if content.OutputTranscription != nil && content.OutputTranscription.Text != "" {
		events = append(events, TranscriptionEvent{Text: content.OutputTranscription.Text})
	}

	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part.Text != "" {
				events = append(events, TextEvent{Text: part.Text})
			}
			if part.InlineData != nil && part.InlineData.Data != "" {
				pcm, err := DecodePCM(part.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("%w: inline data: %v", ErrMalformedEnvelope, err)
				}
				events = append(events, AudioEvent{Data: pcm, MimeType: part.InlineData.MimeType})
			}
		}
	}

	if content.TurnComplete {
		events = append(events, TurnCompleteEvent{})
	}

	return events, nil
}
