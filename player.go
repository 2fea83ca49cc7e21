// Package calfbox wires the sampler voice engine, its SFZ program loader,
// and the control surface into one host facade: load SFZ programs onto MIDI
// channels, drive them with MIDI or directly, and play the result through
// the system's audio output (spec.md §4.1, §6).
package calfbox

import (
	"errors"
	"os"
	"sync"

	intaudio "github.com/cbegin/calfbox/internal/audio"
	intcontrol "github.com/cbegin/calfbox/internal/control"
	intfx "github.com/cbegin/calfbox/internal/effects"
	intsampler "github.com/cbegin/calfbox/internal/sampler"
	intwavebank "github.com/cbegin/calfbox/internal/wavebank"
)

// HostOption configures a Host at construction, following player.go's
// functional-options pattern (PlayerOption/playerConfig) in the teacher.
type HostOption func(*hostConfig)

type hostConfig struct {
	auxBuses  int
	polyphony int
}

func defaultHostConfig() hostConfig {
	return hostConfig{auxBuses: 2, polyphony: intsampler.MaxVoices}
}

// WithAuxBuses sets how many post-fader aux sends (send1bus/send2bus
// destinations) the engine mixes, default 2.
func WithAuxBuses(n int) HostOption {
	return func(cfg *hostConfig) { cfg.auxBuses = n }
}

// WithPolyphony sets the initial voice-count cap, default MaxVoices.
func WithPolyphony(n int) HostOption {
	return func(cfg *hostConfig) { cfg.polyphony = n }
}

type patchSlot struct {
	programNo int
	sampleDir string
	program   *intsampler.Program
}

// Host owns the sampler engine, a registry of loaded SFZ programs keyed by
// program number, and the audio output path, mirroring player.go's Player
// (construction, mutex-guarded mutable state, Watch()-style observability,
// master volume) but for a live multi-channel sampler instead of a single
// MML score.
type Host struct {
	mu sync.Mutex

	sampleRate int
	engine     *intsampler.Engine
	dispatch   *intcontrol.Dispatcher
	audio      *intaudio.Player

	patches      map[int]*patchSlot
	channelPatch [16]int // program number bound to each channel, -1 if none

	masterVolume float64
}

// NewHost creates a Host rendering at sampleRate with no programs loaded
// and no channel bound to a patch.
func NewHost(sampleRate int, opts ...HostOption) (*Host, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultHostConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	engine := intsampler.NewEngine(sampleRate, cfg.auxBuses)
	engine.SetPolyphony(cfg.polyphony)
	h := &Host{
		sampleRate:   sampleRate,
		engine:       engine,
		dispatch:     intcontrol.NewDispatcher(),
		patches:      map[int]*patchSlot{},
		masterVolume: 1,
	}
	for i := range h.channelPatch {
		h.channelPatch[i] = -1
	}
	return h, nil
}

// Engine exposes the underlying voice engine for a host that wants direct
// MIDI wiring (e.g. a real-time MIDI input thread calling HandleMIDI).
func (h *Host) Engine() *intsampler.Engine { return h.engine }

// AuxChain returns the effect chain feeding aux bus n (1-based), so a host
// can Add() reverb/delay/EQ effects to it before starting playback.
func (h *Host) AuxChain(bus int) *intfx.Chain { return h.engine.AuxChain(bus) }

// LoadPatch loads an SFZ file from disk as programNo, replacing whatever was
// previously registered under that number. Samples resolve against
// sampleDir.
func (h *Host) LoadPatch(programNo int, sampleDir, sfzPath string) error {
	src, err := os.ReadFile(sfzPath)
	if err != nil {
		return err
	}
	return h.LoadPatchFromString(programNo, sampleDir, string(src), sfzPath)
}

// LoadPatchFromString loads an SFZ document already in memory as programNo.
func (h *Host) LoadPatchFromString(programNo int, sampleDir, sfzText, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	bank := intwavebank.NewBank(intwavebank.DirSource{Dir: sampleDir}, h.sampleRate, sampleDir, "")
	prog, err := intsampler.BuildProgram(name, name, sfzText, h.sampleRate, bank, nil)
	if err != nil {
		return err
	}
	if old, ok := h.patches[programNo]; ok {
		old.program.Close()
	}
	h.patches[programNo] = &patchSlot{programNo: programNo, sampleDir: sampleDir, program: prog}
	return nil
}

// SetPatch binds channel (0-based) to the program registered as programNo.
// Voices already playing on channel keep running against their program
// snapshot until they finish; only new notes use the new program (spec.md
// §9's program-change scenario).
func (h *Host) SetPatch(channel, programNo int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if channel < 0 || channel >= 16 {
		return errors.New("calfbox: channel out of range")
	}
	slot, ok := h.patches[programNo]
	if !ok {
		return errors.New("calfbox: no such program")
	}
	h.engine.SetProgram(channel, slot.program)
	h.channelPatch[channel] = programNo
	return nil
}

// SetPolyphony adjusts the voice-count cap (1..MaxVoices).
func (h *Host) SetPolyphony(n int) {
	h.engine.SetPolyphony(n)
}

// Patches enumerates every program currently registered.
func (h *Host) Patches() []intcontrol.PatchInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]intcontrol.PatchInfo, 0, len(h.patches))
	for no, slot := range h.patches {
		out = append(out, intcontrol.PatchInfo{ProgramNo: no, Name: slot.program.Name, SampleDir: slot.sampleDir})
	}
	return out
}

// Status reports per-channel patch/volume/pan (spec.md §6's /status).
// Polyphony is always the MaxVoices ceiling, not the cap set by
// SetPolyphony, and the ActiveVoices fields are left at zero.
func (h *Host) Status() intcontrol.StatusReport {
	h.mu.Lock()
	defer h.mu.Unlock()
	report := intcontrol.StatusReport{Polyphony: intsampler.MaxVoices}
	for i := 0; i < 16; i++ {
		ch := h.engine.Channel(i)
		cs := intcontrol.ChannelStatus{Channel: i, ProgramNo: h.channelPatch[i]}
		if ch != nil {
			cs.Volume = float64(ch.Addcc(7)) / float64(127<<7)
			cs.Pan = float64(ch.Addcc(10)) / float64(127<<7)
		}
		report.Channels[i] = cs
	}
	return report
}

// RegionAsString implements control.Host's per-region introspection.
func (h *Host) RegionAsString(channel, regionIndex int) (string, error) {
	prog := h.engine.Program(channel)
	if prog == nil {
		return "", errors.New("calfbox: channel has no program loaded")
	}
	if regionIndex < 0 || regionIndex >= len(prog.Regions) {
		return "", errors.New("calfbox: region index out of range")
	}
	return prog.RegionSummary(prog.Regions[regionIndex]), nil
}

// SetRegionParam implements control.Host's per-region live edit.
func (h *Host) SetRegionParam(channel, regionIndex int, key, value string) error {
	prog := h.engine.Program(channel)
	if prog == nil {
		return errors.New("calfbox: channel has no program loaded")
	}
	return prog.SetRegionParam(regionIndex, key, value, h.sampleRate)
}

// RegionChildren implements control.Host's /get_children.
func (h *Host) RegionChildren(channel int) ([]intcontrol.RegionInfo, error) {
	prog := h.engine.Program(channel)
	if prog == nil {
		return nil, errors.New("calfbox: channel has no program loaded")
	}
	out := make([]intcontrol.RegionInfo, len(prog.Regions))
	for i, d := range prog.Regions {
		out[i] = intcontrol.RegionInfo{Index: i, State: prog.RegionSummary(d)}
	}
	return out, nil
}

// Dispatch runs one control-surface command against this Host (spec.md §6).
func (h *Host) Dispatch(path string, args []string) (any, error) {
	return h.dispatch.Dispatch(h, path, args)
}

// HandleMIDI decodes one raw channel-voice message on channel (0-based).
func (h *Host) HandleMIDI(channel int, status byte, data []byte) {
	h.engine.HandleMIDI(channel, status, data)
}

// Play starts rendering the engine to the system audio output.
func (h *Host) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.audio != nil {
		return nil
	}
	backend, err := intaudio.NewPlayer(h.sampleRate, h.engine)
	if err != nil {
		return err
	}
	h.audio = backend
	h.audio.Play()
	return nil
}

// Stop halts audio output; the engine's voices remain addressable (a
// subsequent Play resumes rendering the same live state).
func (h *Host) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.audio == nil {
		return nil
	}
	err := h.audio.Stop()
	h.audio = nil
	return err
}

// SetMasterVolume sets a runtime volume scalar applied via CC7 on all 16
// channels, whether or not they are bound to a patch. 1.0 is unity.
func (h *Host) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	h.mu.Lock()
	h.masterVolume = volume
	h.mu.Unlock()
	level := int(volume * 127)
	for i := 0; i < 16; i++ {
		if ch := h.engine.Channel(i); ch != nil {
			h.engine.HandleMIDI(i, 0xB0, []byte{7, byte(level)})
		}
	}
}

// MasterVolume returns the last value passed to SetMasterVolume.
func (h *Host) MasterVolume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.masterVolume
}

// Close releases every loaded program's waveform references.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.audio != nil {
		_ = h.audio.Stop()
		h.audio = nil
	}
	for _, slot := range h.patches {
		slot.program.Close()
	}
	h.patches = map[int]*patchSlot{}
}
