package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSamples(t *testing.T) {
	samples, err := DecodeSamples([]byte{0x01, 0x00, 0xFF, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, []int16{1, -1}, samples)
}

func TestDecodeSamples_Misaligned(t *testing.T) {
	_, err := DecodeSamples([]byte{0x01})
	assert.Error(t, err)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768}
	out, err := DecodeSamples(EncodeSamples(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestApplyGain(t *testing.T) {
	samples := []int16{100, -100, 0}
	ApplyGain(samples, 0.5)
	assert.Equal(t, []int16{50, -50, 0}, samples)
}

func TestApplyGain_Clamps(t *testing.T) {
	samples := []int16{30000, -30000}
	ApplyGain(samples, 2.0)
	assert.Equal(t, []int16{32767, -32768}, samples)
}

func TestApplyGain_Unity(t *testing.T) {
	samples := []int16{123, -456}
	ApplyGain(samples, 1.0)
	assert.Equal(t, []int16{123, -456}, samples)
}

func TestResample_SameRate(t *testing.T) {
	in := EncodeSamples([]int16{1, 2, 3})
	out, err := Resample(in, 16000, 16000)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestResample_Downsample(t *testing.T) {
	in := EncodeSamples(make([]int16, 240)) // 10ms at 24kHz
	out, err := Resample(in, 24000, 16000)
	require.NoError(t, err)
	assert.Len(t, out, 320) // 10ms at 16kHz, 2 bytes per sample
}

func TestResample_Upsample(t *testing.T) {
	in := EncodeSamples(make([]int16, 160)) // 10ms at 16kHz
	out, err := Resample(in, 16000, 24000)
	require.NoError(t, err)
	assert.Len(t, out, 480)
}

func TestResample_Interpolates(t *testing.T) {
	// Doubling the rate should place interpolated midpoints between samples.
	in := EncodeSamples([]int16{0, 100})
	out, err := Resample(in, 8000, 16000)
	require.NoError(t, err)

	samples, err := DecodeSamples(out)
	require.NoError(t, err)
	require.Len(t, samples, 4)
	assert.Equal(t, int16(0), samples[0])
	assert.Equal(t, int16(50), samples[1])
	assert.Equal(t, int16(100), samples[2])
}

func TestResample_InvalidRates(t *testing.T) {
	_, err := Resample([]byte{0x00, 0x00}, 0, 16000)
	assert.Error(t, err)

	_, err = Resample([]byte{0x00, 0x00}, 16000, -1)
	assert.Error(t, err)
}

func TestResampleToCaptureRate_From48kHz(t *testing.T) {
	in := EncodeSamples(make([]int16, 4800)) // 100ms at 48kHz
	out, err := ResampleToCaptureRate(in, 48000)
	require.NoError(t, err)
	assert.Len(t, out, 3200) // 100ms at 16kHz, 2 bytes per sample
}

func TestResample_Empty(t *testing.T) {
	out, err := Resample(nil, 24000, 16000)
	require.NoError(t, err)
	assert.Empty(t, out)
}
