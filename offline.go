package calfbox

import (
	"encoding/binary"
	"math"
)

// RenderNote plays one note on a freshly constructed Host for seconds,
// releasing it at releaseAt seconds (or never, if releaseAt <= 0 or
// >= seconds), and returns the rendered interleaved stereo samples. This is
// the offline-render path cmd/calfboxrender drives (spec.md §6's "offline
// render" collaborator), the sampler analogue of player.go's
// RenderSamples/RenderSamplesChiptune/etc family of single-call renderers.
func RenderNote(h *Host, channel, note, vel int, seconds, releaseAt float64) []float32 {
	frames := int(float64(h.sampleRate) * seconds)
	out := make([]float32, frames*2)
	if releaseAt <= 0 || releaseAt >= seconds {
		h.engine.HandleMIDI(channel, 0x90, []byte{byte(note), byte(vel)})
		h.engine.Process(out)
		return out
	}

	releaseFrame := int(float64(h.sampleRate) * releaseAt)
	h.engine.HandleMIDI(channel, 0x90, []byte{byte(note), byte(vel)})
	h.engine.Process(out[:releaseFrame*2])
	h.engine.HandleMIDI(channel, 0x80, []byte{byte(note), 0})
	h.engine.Process(out[releaseFrame*2:])
	return out
}

// EncodeWAVFloat32LE packages interleaved float32 stereo samples as a
// 32-bit-float PCM WAV file (IEEE float format tag 3), kept from the
// teacher's hand-rolled writer since no example repo imports a WAV
// *encoder* library (only a decoder, used by internal/wavebank for
// reading sample files); a from-scratch 44-byte RIFF/WAVE header is
// simple enough that reaching for a dependency here would not pay for
// itself.
func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}
