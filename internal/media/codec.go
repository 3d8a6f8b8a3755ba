// Package media converts between the telephony provider's G.711 audio frames
// and the linear PCM frames spoken by the AI realtime service.
package media

import (
	"errors"
	"fmt"
	"time"

	"github.com/zaf/g711"
)

// Codec represents an immutable audio codec specification.
type Codec struct {
	Name       string        // Codec name (e.g., "PCMU", "PCM")
	SampleRate uint32        // Sample rate in Hz (8000, 24000)
	SampleDur  time.Duration // Duration per frame (20ms)
	SampleSize int           // Bytes per sample (1 for G.711, 2 for 16-bit PCM)
}

// Fixed codecs for the two legs of a call.
var (
	// CodecPCMU is G.711 u-law as streamed by the telephony provider.
	CodecPCMU = Codec{"PCMU", 8000, 20 * time.Millisecond, 1}

	// CodecPCM is 16-bit little-endian linear PCM at the rate the AI
	// realtime service expects.
	CodecPCM = Codec{"PCM", 24000, 20 * time.Millisecond, 2}
)

// SamplesPerFrame returns the number of samples in one frame.
// For 8kHz with 20ms frames, this returns 160.
func (c Codec) SamplesPerFrame() int {
	return int(c.SampleRate) * int(c.SampleDur) / int(time.Second)
}

// BytesPerFrame returns the payload bytes per frame.
func (c Codec) BytesPerFrame() int {
	return c.SamplesPerFrame() * c.SampleSize
}

// ErrMalformedFrame indicates an input frame that cannot be converted.
// Callers drop the frame and continue; it is never fatal to a session.
var ErrMalformedFrame = errors.New("malformed audio frame")

// CodecError reports a frame that failed conversion.
type CodecError struct {
	Op   string // "decode" or "encode"
	Want int    // expected frame length in bytes
	Got  int    // actual frame length in bytes
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("%s: expected %d-byte frame, got %d", e.Op, e.Want, e.Got)
}

func (e *CodecError) Unwrap() error {
	return ErrMalformedFrame
}

// rate ratio between the PCM and PCMU sides (24000 / 8000)
const rateRatio = 3

// Decode converts one 20ms provider frame (160 bytes of G.711 u-law at 8kHz)
// to 16-bit linear PCM at 24kHz (960 bytes). Pure and deterministic.
func Decode(providerFrame []byte) ([]byte, error) {
	if len(providerFrame) != CodecPCMU.BytesPerFrame() {
		return nil, &CodecError{Op: "decode", Want: CodecPCMU.BytesPerFrame(), Got: len(providerFrame)}
	}

	pcm8k := g711.DecodeUlaw(providerFrame)
	return upsample(pcm8k), nil
}

// Encode converts one 20ms PCM frame (960 bytes of 16-bit PCM at 24kHz)
// to a 160-byte G.711 u-law provider frame. Pure and deterministic.
func Encode(pcmFrame []byte) ([]byte, error) {
	if len(pcmFrame) != CodecPCM.BytesPerFrame() {
		return nil, &CodecError{Op: "encode", Want: CodecPCM.BytesPerFrame(), Got: len(pcmFrame)}
	}

	return g711.EncodeUlaw(downsample(pcmFrame)), nil
}

// upsample expands 16-bit PCM by the rate ratio using linear interpolation
// between consecutive samples. The last input sample is held.
func upsample(pcm []byte) []byte {
	in := len(pcm) / 2
	out := make([]byte, in*rateRatio*2)

	for i := 0; i < in; i++ {
		cur := readSample(pcm, i)
		next := cur
		if i+1 < in {
			next = readSample(pcm, i+1)
		}
		for k := 0; k < rateRatio; k++ {
			interp := cur + int32(k)*(next-cur)/rateRatio
			writeSample(out, i*rateRatio+k, interp)
		}
	}
	return out
}

// downsample reduces 16-bit PCM by the rate ratio, averaging each group of
// samples to avoid aliasing from plain decimation.
func downsample(pcm []byte) []byte {
	in := len(pcm) / 2
	out := make([]byte, in/rateRatio*2)

	for i := 0; i < in/rateRatio; i++ {
		var sum int32
		for k := 0; k < rateRatio; k++ {
			sum += readSample(pcm, i*rateRatio+k)
		}
		writeSample(out, i, sum/rateRatio)
	}
	return out
}

func readSample(pcm []byte, i int) int32 {
	return int32(int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8))
}

func writeSample(pcm []byte, i int, s int32) {
	pcm[i*2] = byte(s)
	pcm[i*2+1] = byte(s >> 8)
}
