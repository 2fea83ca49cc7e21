package calfbox

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	intcontrol "github.com/cbegin/calfbox/internal/control"
)

// writeSineWAV writes a minimal mono 16-bit PCM WAV file to dir/name, for
// Host tests that need a real sample file on disk (Host loads SFZ programs
// through internal/wavebank's DirSource, which reads actual files).
func writeSineWAV(t *testing.T, dir, name string, sampleRate, frames int) string {
	t.Helper()
	var data bytes.Buffer
	for i := 0; i < frames; i++ {
		v := math.Sin(2 * math.Pi * 220 * float64(i) / float64(sampleRate))
		binary.Write(&data, binary.LittleEndian, int16(v*20000))
	}
	dataBytes := data.Bytes()

	var fmtChunk bytes.Buffer
	binary.Write(&fmtChunk, binary.LittleEndian, uint16(1))                 // PCM
	binary.Write(&fmtChunk, binary.LittleEndian, uint16(1))                 // mono
	binary.Write(&fmtChunk, binary.LittleEndian, uint32(sampleRate))        // sample rate
	binary.Write(&fmtChunk, binary.LittleEndian, uint32(sampleRate*1*2))    // byte rate
	binary.Write(&fmtChunk, binary.LittleEndian, uint16(2))                 // block align
	binary.Write(&fmtChunk, binary.LittleEndian, uint16(16))                // bits per sample

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(4+(8+fmtChunk.Len())+(8+len(dataBytes))))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(fmtChunk.Len()))
	buf.Write(fmtChunk.Bytes())
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(dataBytes)))
	buf.Write(dataBytes)

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write test wav: %v", err)
	}
	return path
}

func testSFZ() string {
	return "<region>\nsample=tone.wav\nlokey=0 hikey=127\n"
}

func TestHostLoadPatchPlaysAudibleNote(t *testing.T) {
	dir := t.TempDir()
	writeSineWAV(t, dir, "tone.wav", 44100, 4000)

	h, err := NewHost(44100)
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	defer h.Close()

	if err := h.LoadPatchFromString(1, dir, testSFZ(), "test"); err != nil {
		t.Fatalf("load patch: %v", err)
	}
	if err := h.SetPatch(0, 1); err != nil {
		t.Fatalf("set patch: %v", err)
	}

	out := RenderNote(h, 0, 60, 100, 0.2, 0)
	var peak float32
	for _, s := range out {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}
	if peak < 0.001 {
		t.Fatalf("expected audible output, peak=%f", peak)
	}
}

func TestHostMasterVolumeRuntimeAPI(t *testing.T) {
	h, err := NewHost(48000)
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	defer h.Close()

	if got := h.MasterVolume(); got != 1 {
		t.Fatalf("default master volume = %v, want 1", got)
	}
	h.SetMasterVolume(0.35)
	if got := h.MasterVolume(); got != 0.35 {
		t.Fatalf("master volume = %v, want 0.35", got)
	}
	h.SetMasterVolume(-2)
	if got := h.MasterVolume(); got != 0 {
		t.Fatalf("master volume should clamp to 0, got %v", got)
	}
}

func TestHostControlSurfaceDispatch(t *testing.T) {
	dir := t.TempDir()
	writeSineWAV(t, dir, "tone.wav", 44100, 4000)

	h, err := NewHost(44100)
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	defer h.Close()

	if _, err := h.Dispatch("/load_patch_from_string", []string{"1", dir, testSFZ(), "test"}); err != nil {
		t.Fatalf("load_patch_from_string: %v", err)
	}
	if _, err := h.Dispatch("/set_patch", []string{"0", "1"}); err != nil {
		t.Fatalf("set_patch: %v", err)
	}
	if _, err := h.Dispatch("/polyphony", []string{"16"}); err != nil {
		t.Fatalf("polyphony: %v", err)
	}

	result, err := h.Dispatch("/status", nil)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	status, ok := result.(intcontrol.StatusReport)
	if !ok {
		t.Fatalf("expected /status to return a StatusReport, got %T", result)
	}
	if status.Channels[0].ProgramNo != 1 {
		t.Fatalf("channel 0 program = %d, want 1", status.Channels[0].ProgramNo)
	}

	if _, err := h.Dispatch("/nonexistent", nil); err == nil {
		t.Fatalf("expected an error for an unknown command path")
	}
}
