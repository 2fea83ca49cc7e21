package wavebank

import (
	"archive/tar"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// writeTestWAV builds a minimal PCM16 mono WAV file with an optional smpl
// loop chunk, enough for ebiten's wav decoder and our own smpl scan to read.
func writeTestWAV(t *testing.T, frames []int16, sampleRate int, loopStart, loopEnd uint32, withLoop bool) []byte {
	t.Helper()
	var data bytes.Buffer
	for _, s := range frames {
		binary.Write(&data, binary.LittleEndian, s)
	}
	dataBytes := data.Bytes()

	var smpl bytes.Buffer
	if withLoop {
		// 9 header fields (4 bytes each), num_sample_loops=1 and
		// sampler_data=0 among them, then one 24-byte loop record.
		header := make([]byte, 36)
		binary.LittleEndian.PutUint32(header[28:32], 1) // num_sample_loops
		smpl.Write(header)
		loop := make([]byte, 24)
		binary.LittleEndian.PutUint32(loop[8:12], loopStart)
		binary.LittleEndian.PutUint32(loop[12:16], loopEnd)
		smpl.Write(loop)
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	writeU32 := func(v uint32) { binary.Write(&buf, binary.LittleEndian, v) }
	writeU16 := func(v uint16) { binary.Write(&buf, binary.LittleEndian, v) }

	fmtChunk := new(bytes.Buffer)
	writeU16ToBuf := func(b *bytes.Buffer, v uint16) { binary.Write(b, binary.LittleEndian, v) }
	writeU32ToBuf := func(b *bytes.Buffer, v uint32) { binary.Write(b, binary.LittleEndian, v) }
	writeU16ToBuf(fmtChunk, 1)                      // PCM
	writeU16ToBuf(fmtChunk, 1)                      // mono
	writeU32ToBuf(fmtChunk, uint32(sampleRate))      // sample rate
	writeU32ToBuf(fmtChunk, uint32(sampleRate*1*2))  // byte rate
	writeU16ToBuf(fmtChunk, 2)                       // block align
	writeU16ToBuf(fmtChunk, 16)                      // bits per sample

	riffSize := 4 + (8 + fmtChunk.Len()) + (8 + len(dataBytes))
	if withLoop {
		riffSize += 8 + smpl.Len()
	}
	writeU32(uint32(riffSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	writeU32(uint32(fmtChunk.Len()))
	buf.Write(fmtChunk.Bytes())

	if withLoop {
		buf.WriteString("smpl")
		writeU32(uint32(smpl.Len()))
		buf.Write(smpl.Bytes())
	}

	buf.WriteString("data")
	writeU32(uint32(len(dataBytes)))
	buf.Write(dataBytes)
	return buf.Bytes()
}

func TestScanSmplChunkLoopFindsLoopPoints(t *testing.T) {
	wav := writeTestWAV(t, []int16{0, 1000, -1000, 500}, 44100, 1, 3, true)
	start, end, hasLoop := scanSmplChunkLoop(wav)
	if !hasLoop {
		t.Fatal("expected a loop to be found")
	}
	if start != 1 || end != 3 {
		t.Fatalf("expected loop [1,3], got [%d,%d]", start, end)
	}
}

func TestScanSmplChunkLoopAbsentWithoutSmplChunk(t *testing.T) {
	wav := writeTestWAV(t, []int16{0, 1, 2, 3}, 44100, 0, 0, false)
	_, _, hasLoop := scanSmplChunkLoop(wav)
	if hasLoop {
		t.Fatal("expected no loop without an smpl chunk")
	}
}

type memSource struct{ files map[string][]byte }

func (m memSource) Open(relPath string) (io.ReadCloser, error) {
	b, ok := m.files[relPath]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func TestBankAcquireDecodesAndCachesByPath(t *testing.T) {
	wavBytes := writeTestWAV(t, []int16{0, 16384, -16384, 0}, 44100, 0, 0, false)
	src := memSource{files: map[string][]byte{"kick.wav": wavBytes}}
	bank := NewBank(src, 44100, "prog", "")

	wf1, err := bank.Acquire("kick.wav")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if wf1.Frames == 0 {
		t.Fatal("expected decoded frames > 0")
	}

	wf2, err := bank.Acquire("kick.wav")
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if wf1 != wf2 {
		t.Fatal("expected the second Acquire to return the cached Waveform")
	}
}

func TestBankReleaseEvictsAtZeroRefs(t *testing.T) {
	wavBytes := writeTestWAV(t, []int16{0, 1, 2, 3}, 44100, 0, 0, false)
	src := memSource{files: map[string][]byte{"a.wav": wavBytes}}
	bank := NewBank(src, 44100, "prog", "")

	first, _ := bank.Acquire("a.wav")
	bank.Release("a.wav")
	second, err := bank.Acquire("a.wav")
	if err != nil {
		t.Fatalf("re-acquire after release failed: %v", err)
	}
	if first == second {
		// Not a correctness requirement (a fresh decode happening to
		// reuse the address would be fine too), just documents intent.
		t.Log("re-acquired waveform reused the same pointer")
	}
}

func TestTarSourceExtractsNamedMembers(t *testing.T) {
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	content := []byte("hello")
	tw.WriteHeader(&tar.Header{Name: "samples/snare.wav", Size: int64(len(content)), Mode: 0644})
	tw.Write(content)
	tw.Close()

	src, err := NewTarSource(tarBuf.Bytes())
	if err != nil {
		t.Fatalf("NewTarSource failed: %v", err)
	}
	rc, err := src.Open("samples/snare.wav")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "hello" {
		t.Fatalf("expected extracted content %q, got %q", "hello", got)
	}
}

func TestPipeStackReusesFreedPipes(t *testing.T) {
	var stack PipeStack
	wf := &Waveform{Frames: 100, Data: make([]float32, 200)}

	p1 := stack.Pop(wf, 0, 50, 0)
	stack.Push(p1)
	p2 := stack.Pop(wf, 10, 60, 0)
	if p1 != p2 {
		t.Fatal("expected Pop to reuse the freed pipe object")
	}
	if p2.Remaining() != wf.Frames {
		t.Fatalf("expected a freshly popped pipe to start at 0 consumed, remaining=%d", p2.Remaining())
	}
}

func TestPrefetchPipeConsumedTracksRemaining(t *testing.T) {
	wf := &Waveform{Frames: 10, Data: make([]float32, 20)}
	var stack PipeStack
	p := stack.Pop(wf, 0, 0, 0)
	p.Consumed(4)
	if p.Remaining() != 6 {
		t.Fatalf("expected 6 frames remaining after consuming 4 of 10, got %d", p.Remaining())
	}
}

func TestDirSourceJoinsRelativePath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "x.wav"), []byte("data"), 0644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	src := DirSource{Dir: dir}
	rc, err := src.Open("x.wav")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "data" {
		t.Fatalf("expected file content %q, got %q", "data", got)
	}
}

var _ = math.Pi // placeholder to keep math imported if test helpers above are trimmed later
