// Package sampler implements the voice engine: region lookup drives voice
// allocation, and a fixed arena of voices is advanced one audio block at a
// time, mixing into the engine's output and aux buses (spec.md §4, §5).
//
// Grounded on original_source/sampler.c (sampler_start_note,
// sampler_start_voice, sampler_voice_process, sampler_process_block,
// sampler_steal_voice) and cbegin-mmlfm-go's internal/wavetable/engine.go
// for the Go-idiomatic shape: a flat, fixed-size []voice arena scanned
// linearly every block rather than the original's intrusive linked list of
// active/free voices, matching this codebase's existing wavetable engine
// rather than porting sampler.h's cbox_sampler_voice prev/next pointers.
package sampler

import (
	"fmt"

	"github.com/cbegin/calfbox/internal/layer"
	"github.com/cbegin/calfbox/internal/rll"
	"github.com/cbegin/calfbox/internal/sfz"
	"github.com/cbegin/calfbox/internal/wavebank"
)

// BlockSize is the number of frames every Engine.Process step and per-voice
// render advances by, matching CBOX_BLOCK_SIZE: envelopes and LFOs update
// once per call to processVoice, not once per frame.
const BlockSize = 16

// MaxVoices is the fixed voice-arena size, matching MAX_SAMPLER_VOICES.
const MaxVoices = 128

// triggerFromSFZ converts the loader's Trigger enum to rll's. Both are
// small, independently-defined enums (the loader must not import rll, and
// rll must not import sfz), so the conversion is an explicit mapping
// rather than a raw numeric cast that would silently break if either enum
// is ever reordered.
func triggerFromSFZ(t sfz.Trigger) rll.Trigger {
	switch t {
	case sfz.TriggerRelease:
		return rll.TriggerRelease
	case sfz.TriggerReleaseKey:
		return rll.TriggerReleaseKey
	case sfz.TriggerFirst:
		return rll.TriggerFirst
	case sfz.TriggerLegato:
		return rll.TriggerLegato
	default:
		return rll.TriggerAttack
	}
}

// Program is a loaded SFZ program bound to real waveform data, ready to
// play: every region finalized against the engine's sample rate and its
// sample's actual loop points, indexed by rll for fast note matching.
type Program struct {
	Name           string
	ControllerInit map[int]int
	SampleDir      string

	// Regions holds every finalized region in load order, for the control
	// surface's /get_children and /as_string (spec.md §6), addressed by
	// its index in this slice. regionTriggers is the matching trigger kind
	// for each region (rll.Entry needs it separately from layer.Data, which
	// carries no trigger field of its own).
	Regions        []*layer.Data
	regionTriggers []rll.Trigger

	lookup    *rll.Lookup
	waveforms map[*layer.Data]*wavebank.Waveform
	bank      *wavebank.Bank
	samples   []string // acquired sample paths, for Release on Close
}

// BuildProgram loads an SFZ document, resolves every region's sample from
// bank, and re-finalizes each region against the real waveform metadata and
// the engine's block-scaled sample rate, mirroring sampler_update_layer's
// post-load binding pass (original_source/sampler_layer.c). Regions whose
// sample= cannot be opened fail the whole load, matching the loader's
// existing "bad opcode data aborts the program" posture for import=.
func BuildProgram(name, filename, src string, sampleRate int, bank *wavebank.Bank, resolve sfz.FileResolver) (*Program, error) {
	loaded, err := sfz.LoadWithImports(filename, src, float64(sampleRate), resolve)
	if err != nil {
		return nil, err
	}

	p := &Program{
		Name:           name,
		ControllerInit: loaded.ControllerInit,
		SampleDir:      loaded.SampleDir,
		waveforms:      map[*layer.Data]*wavebank.Waveform{},
		bank:           bank,
	}

	// Envelope stage times are authored in seconds but advanced once per
	// BlockSize-frame call to Runtime.Next (see processVoice), matching
	// original_source/sampler_layer.c's
	// "cbox_envelope_init_dahdsr(..., m->module.srate / CBOX_BLOCK_SIZE, ...)"
	// call: the envelope's internal clock ticks once per block, not once
	// per sample, so its stage lengths must be computed against a
	// "blocks per second" rate rather than the raw sample rate.
	blockRate := float64(sampleRate) / float64(BlockSize)

	entries := make([]rll.Entry, 0, len(loaded.Regions))
	for _, r := range loaded.Regions {
		var wfInfo *layer.WaveformInfo
		if r.Data.Sample != "" {
			wf, err := bank.Acquire(r.Data.Sample)
			if err != nil {
				return nil, fmt.Errorf("sampler: region sample %q: %w", r.Data.Sample, err)
			}
			p.waveforms[r.Data] = wf
			p.samples = append(p.samples, r.Data.Sample)
			wfInfo = wf.Info()
		}
		r.Data.Finalize(nil, blockRate, wfInfo)
		trig := triggerFromSFZ(r.Trigger)
		entries = append(entries, rll.Entry{Data: r.Data, Trigger: trig})
		p.Regions = append(p.Regions, r.Data)
		p.regionTriggers = append(p.regionTriggers, trig)
	}
	p.lookup = rll.Build(entries)
	return p, nil
}

// RebuildLookup reconstructs the rll index from Regions, for the control
// surface's /set_param (spec.md §6): after a region's opcodes are edited
// and Finalize rerun, the key/velocity/CC zone tables must be rebuilt
// since a region may have moved between lookup zones.
func (p *Program) RebuildLookup() {
	entries := make([]rll.Entry, 0, len(p.Regions))
	for i, d := range p.Regions {
		entries = append(entries, rll.Entry{Data: d, Trigger: p.regionTriggers[i]})
	}
	p.lookup = rll.Build(entries)
}

// Close releases every waveform this program acquired from its bank. Call
// once no voice can still reference it; this engine does not track a live
// per-Program refcount the way sampler_program_use_count/sampler_program_
// unref does, since once Close runs and no voice holds a pointer into the
// program's layer.Data, Go's own garbage collector reclaims it exactly as
// safely as a manual refcount would, at far less code.
func (p *Program) Close() {
	for _, path := range p.samples {
		p.bank.Release(path)
	}
}

func (p *Program) waveformFor(d *layer.Data) *wavebank.Waveform {
	return p.waveforms[d]
}

// RegionSummary renders the subset of opcodes most useful for a control
// surface's /as_string (spec.md §6), rather than a full authored-opcode
// round trip: sample, key/velocity range, volume, and pan are the fields a
// host operator needs to confirm a region edit landed, and are a simpler,
// sufficient substitute for the original's complete per-field string
// serialization (sampler_layer_data_as_string's full SAMPLER_FIXED_FIELDS
// walk) for the scope this engine targets.
func (p *Program) RegionSummary(d *layer.Data) string {
	return fmt.Sprintf("sample=%s lokey=%d hikey=%d lovel=%d hivel=%d volume=%g pan=%g",
		d.Sample, d.LoKey, d.HiKey, d.MinVel, d.MaxVel, d.Volume, d.Pan)
}

// SetRegionParam applies one opcode to the region at index (as ApplyOpcode
// does), re-finalizes it, and rebuilds the lookup table so the edit is
// reflected in subsequent note matching, mirroring sampler_layer_data_change
// followed by sampler_update_layer.
func (p *Program) SetRegionParam(index int, key, value string, sampleRate int) error {
	if index < 0 || index >= len(p.Regions) {
		return fmt.Errorf("sampler: region index %d out of range (have %d)", index, len(p.Regions))
	}
	d := p.Regions[index]
	if err := sfz.ApplyOpcode(d, key, value, float64(sampleRate)); err != nil {
		return err
	}
	var wfInfo *layer.WaveformInfo
	if wf := p.waveformFor(d); wf != nil {
		wfInfo = wf.Info()
	}
	d.Finalize(nil, float64(sampleRate)/float64(BlockSize), wfInfo)
	p.RebuildLookup()
	return nil
}
