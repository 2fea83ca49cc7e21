package calfbox

import (
	"bytes"
	"testing"
)

func TestEncodeWAVFloat32LEHeaderFields(t *testing.T) {
	samples := []float32{0.5, -0.5, 1.0, -1.0}
	wav := EncodeWAVFloat32LE(samples, 44100, 2)

	if !bytes.Equal(wav[0:4], []byte("RIFF")) {
		t.Fatalf("missing RIFF tag")
	}
	if !bytes.Equal(wav[8:12], []byte("WAVE")) {
		t.Fatalf("missing WAVE tag")
	}
	if !bytes.Equal(wav[12:16], []byte("fmt ")) {
		t.Fatalf("missing fmt tag")
	}
	if !bytes.Equal(wav[36:40], []byte("data")) {
		t.Fatalf("missing data tag")
	}
	wantLen := 44 + len(samples)*4
	if len(wav) != wantLen {
		t.Fatalf("wav length = %d, want %d", len(wav), wantLen)
	}
}

func TestRenderNoteReleaseStopsVoiceEarly(t *testing.T) {
	dir := t.TempDir()
	writeSineWAV(t, dir, "tone.wav", 44100, 44100)

	h, err := NewHost(44100)
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	defer h.Close()

	sfzText := "<region>\nsample=tone.wav\nloop_mode=loop_sustain\n"
	if err := h.LoadPatchFromString(1, dir, sfzText, "test"); err != nil {
		t.Fatalf("load patch: %v", err)
	}
	if err := h.SetPatch(0, 1); err != nil {
		t.Fatalf("set patch: %v", err)
	}

	full := RenderNote(h, 0, 60, 100, 0.5, 0.1)
	var tailEnergy float64
	tailStart := len(full) - len(full)/10
	for i := tailStart; i < len(full); i++ {
		tailEnergy += float64(full[i]) * float64(full[i])
	}
	var headEnergy float64
	for i := 0; i < len(full)/10; i++ {
		headEnergy += float64(full[i]) * float64(full[i])
	}
	if tailEnergy >= headEnergy {
		t.Fatalf("expected released tail to be quieter than the sustained head: head=%f tail=%f", headEnergy, tailEnergy)
	}
}
