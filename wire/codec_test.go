package wire

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAudioChunk(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0x02, 0x00}

	env, err := EncodeAudioChunk(pcm)
	require.NoError(t, err)
	require.Len(t, env.RealtimeInput.MediaChunks, 1)

	chunk := env.RealtimeInput.MediaChunks[0]
	assert.Equal(t, MimeTypePCM16k, chunk.MimeType)

	decoded, err := base64.StdEncoding.DecodeString(chunk.Data)
	require.NoError(t, err)
	assert.Equal(t, pcm, decoded)
}

func TestEncodeAudioChunk_Misaligned(t *testing.T) {
	_, err := EncodeAudioChunk([]byte{0x01})
	assert.Error(t, err)
}

func TestEncodeAudioChunk_Empty(t *testing.T) {
	_, err := EncodeAudioChunk(nil)
	assert.ErrorIs(t, err, ErrEmptyAudioData)
}

func TestEncodeText_WireShape(t *testing.T) {
	env := EncodeText("hello", true)

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))

	content, ok := parsed["clientContent"].(map[string]any)
	require.True(t, ok, "envelope must be keyed by clientContent")
	assert.Equal(t, true, content["turnComplete"])

	turns := content["turns"].([]any)
	require.Len(t, turns, 1)
	turn := turns[0].(map[string]any)
	assert.Equal(t, "user", turn["role"])
}

func TestEncodeToolResponse_WireShape(t *testing.T) {
	env := EncodeToolResponse([]FunctionResponse{
		{ID: "abc", Response: map[string]any{"output": 42}},
	})

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var parsed struct {
		ToolResponse struct {
			FunctionResponses []struct {
				ID string `json:"id"`
			} `json:"functionResponses"`
		} `json:"toolResponse"`
	}
	require.NoError(t, json.Unmarshal(data, &parsed))
	require.Len(t, parsed.ToolResponse.FunctionResponses, 1)
	assert.Equal(t, "abc", parsed.ToolResponse.FunctionResponses[0].ID)
}

func TestDecode_SetupComplete(t *testing.T) {
	events, err := Decode([]byte(`{"setupComplete": {}}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.IsType(t, SetupCompleteEvent{}, events[0])
}

func TestDecode_AudioChunk(t *testing.T) {
	pcm := []byte{0x10, 0x20, 0x30, 0x40}
	frame := `{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm","data":"` +
		base64.StdEncoding.EncodeToString(pcm) + `"}}]}}}`

	events, err := Decode([]byte(frame))
	require.NoError(t, err)
	require.Len(t, events, 1)

	audio, ok := events[0].(AudioEvent)
	require.True(t, ok)
	assert.Equal(t, pcm, audio.Data)
	assert.Equal(t, "audio/pcm", audio.MimeType)
}

func TestDecode_Interrupted(t *testing.T) {
	events, err := Decode([]byte(`{"serverContent":{"interrupted":true}}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.IsType(t, InterruptedEvent{}, events[0])
}

func TestDecode_InterruptedPrecedesAudio(t *testing.T) {
	pcm := base64.StdEncoding.EncodeToString([]byte{0x01, 0x00})
	frame := `{"serverContent":{"interrupted":true,"modelTurn":{"parts":[{"inlineData":{"data":"` + pcm + `"}}]}}}`

	events, err := Decode([]byte(frame))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.IsType(t, InterruptedEvent{}, events[0])
	assert.IsType(t, AudioEvent{}, events[1])
}

func TestDecode_TurnComplete(t *testing.T) {
	events, err := Decode([]byte(`{"serverContent":{"turnComplete":true}}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.IsType(t, TurnCompleteEvent{}, events[0])
}

func TestDecode_ToolCall(t *testing.T) {
	frame := `{"toolCall":{"functionCalls":[{"id":"abc","name":"get_weather","args":{"city":"Oslo"}}]}}`

	events, err := Decode([]byte(frame))
	require.NoError(t, err)
	require.Len(t, events, 1)

	call, ok := events[0].(ToolCallEvent)
	require.True(t, ok)
	require.Len(t, call.Calls, 1)
	assert.Equal(t, "abc", call.Calls[0].ID)
	assert.Equal(t, "get_weather", call.Calls[0].Name)
}

func TestDecode_Transcriptions(t *testing.T) {
	frame := `{"serverContent":{"inputTranscription":{"text":"hi there"},"outputTranscription":{"text":"hello"}}}`

	events, err := Decode([]byte(frame))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, UserTranscriptionEvent{Text: "hi there"}, events[0])
	assert.Equal(t, TranscriptionEvent{Text: "hello"}, events[1])
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `{{{`},
		{"unknown variant", `{"somethingElse":{}}`},
		{"bad base64", `{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"data":"!!!"}}]}}}`},
		{"empty tool call", `{"toolCall":{"functionCalls":[]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			assert.ErrorIs(t, err, ErrMalformedEnvelope)
		})
	}
}

func TestDecodePCM_RoundTrip(t *testing.T) {
	pcm := []byte{0xFF, 0x7F, 0x00, 0x80}

	encoded, err := EncodePCM(pcm)
	require.NoError(t, err)

	decoded, err := DecodePCM(encoded)
	require.NoError(t, err)
	assert.Equal(t, pcm, decoded)
}
