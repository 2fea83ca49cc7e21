package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/cbegin/calfbox"
)

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 44100, "render sample rate")
		sfzPath    = flag.String("sfz", "", "path to an SFZ program")
		sampleDir  = flag.String("samples", "", "directory samples resolve against (defaults to the SFZ file's directory)")
		note       = flag.Int("note", 60, "MIDI note number to render")
		vel        = flag.Int("vel", 100, "MIDI velocity")
		seconds    = flag.Float64("seconds", 2.0, "total render length in seconds")
		releaseAt  = flag.Float64("release-at", 0, "seconds into the render to send a note-off (0 disables early release)")
		out        = flag.String("out", "out.wav", "output WAV path")
	)
	flag.Parse()

	if *sfzPath == "" {
		log.Fatal("-sfz is required")
	}
	dir := *sampleDir
	if dir == "" {
		dir = filepath.Dir(*sfzPath)
	}

	h, err := calfbox.NewHost(*sampleRate)
	if err != nil {
		log.Fatal(err)
	}
	defer h.Close()

	if err := h.LoadPatch(1, dir, *sfzPath); err != nil {
		log.Fatal(err)
	}
	if err := h.SetPatch(0, 1); err != nil {
		log.Fatal(err)
	}

	samples := calfbox.RenderNote(h, 0, *note, *vel, *seconds, *releaseAt)
	wav := calfbox.EncodeWAVFloat32LE(samples, *sampleRate, 2)
	if err := os.WriteFile(*out, wav, 0o644); err != nil {
		log.Fatal(err)
	}
}
