// Package audio implements PCM playback and capture for a live session:
// a scheduling playback sink for model speech and a microphone capture
// source for user speech.
package audio

import (
	"encoding/binary"
	"fmt"
)

// Sample rates used on the wire. Model speech arrives at 24kHz; microphone
// audio is sent at 16kHz.
const (
	PlaybackRate = 24000
	CaptureRate  = 16000
)

const bytesPerSample = 2 // 16-bit linear PCM

// DecodeSamples converts little-endian PCM16 bytes to int16 samples.
func DecodeSamples(data []byte) ([]int16, error) {
	if len(data)%bytesPerSample != 0 {
		return nil, fmt.Errorf("pcm length %d is not sample-aligned", len(data))
	}
	samples := make([]int16, len(data)/bytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*bytesPerSample:])) //nolint:gosec // PCM16 byte order conversion
	}
	return samples, nil
}

// EncodeSamples converts int16 samples to little-endian PCM16 bytes.
func EncodeSamples(samples []int16) []byte {
	data := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*bytesPerSample:], uint16(s)) //nolint:gosec // PCM16 byte order conversion
	}
	return data
}

// ApplyGain scales samples in place by the given factor, clamping to the
// int16 range.
func ApplyGain(samples []int16, gain float64) {
	if gain == 1.0 {
		return
	}
	for i, s := range samples {
		v := float64(s) * gain
		switch {
		case v > 32767:
			samples[i] = 32767
		case v < -32768:
			samples[i] = -32768
		default:
			samples[i] = int16(v)
		}
	}
}

// Resample resamples PCM16 audio from one sample rate to another using
// linear interpolation. Input and output are little-endian 16-bit signed
// PCM samples.
func Resample(input []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates: from=%d, to=%d", fromRate, toRate)
	}

	if fromRate == toRate {
		result := make([]byte, len(input))
		copy(result, input)
		return result, nil
	}

	inputSamples, err := DecodeSamples(input)
	if err != nil {
		return nil, err
	}
	if len(inputSamples) == 0 {
		return []byte{}, nil
	}

	numOutputSamples := int(float64(len(inputSamples)) * float64(toRate) / float64(fromRate))
	if numOutputSamples == 0 {
		return []byte{}, nil
	}

	outputSamples := make([]int16, numOutputSamples)
	ratio := float64(fromRate) / float64(toRate)

	for i := 0; i < numOutputSamples; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		if srcIdx >= len(inputSamples)-1 {
			outputSamples[i] = inputSamples[len(inputSamples)-1]
		} else {
			s0 := float64(inputSamples[srcIdx])
			s1 := float64(inputSamples[srcIdx+1])
			outputSamples[i] = int16(s0 + frac*(s1-s0))
		}
	}

	return EncodeSamples(outputSamples), nil
}

// ResampleToCaptureRate downsamples device audio to the 16kHz rate the wire
// expects, for input devices that cannot open at 16kHz natively.
func ResampleToCaptureRate(input []byte, deviceRate int) ([]byte, error) {
	return Resample(input, deviceRate, CaptureRate)
}
