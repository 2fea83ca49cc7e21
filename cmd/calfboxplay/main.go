package main

import (
	"flag"
	"log"
	"path/filepath"
	"time"

	"github.com/cbegin/calfbox"
)

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		sfzPath    = flag.String("sfz", "", "path to an SFZ program")
		sampleDir  = flag.String("samples", "", "directory samples resolve against (defaults to the SFZ file's directory)")
		note       = flag.Int("note", 60, "MIDI note number to play")
		vel        = flag.Int("vel", 100, "MIDI velocity")
		channel    = flag.Int("channel", 0, "MIDI channel (0-based) to bind the program to")
		hold       = flag.Duration("hold", time.Second, "how long to hold the note before releasing it")
		tail       = flag.Duration("tail", 2*time.Second, "how long to keep rendering after release")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
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
	if err := h.SetPatch(*channel, 1); err != nil {
		log.Fatal(err)
	}
	h.SetMasterVolume(*volume)

	if err := h.Play(); err != nil {
		log.Fatal(err)
	}

	h.HandleMIDI(*channel, 0x90, []byte{byte(*note), byte(*vel)})
	time.Sleep(*hold)
	h.HandleMIDI(*channel, 0x80, []byte{byte(*note), 0})
	time.Sleep(*tail)

	if err := h.Stop(); err != nil {
		log.Fatal(err)
	}
}
