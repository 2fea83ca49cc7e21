// Package rll implements region lookup for a finalized SFZ program: given a
// MIDI note-on or note-off, return the finalized region(s) that should
// trigger (spec.md §4.4).
//
// Grounded on original_source/sampler_rll.c (sampler_rll_new_from_program)
// for the overall split into attack/release region lists, and
// sampler_prg.c's sampler_program_get_next_layer for the exact
// per-candidate predicate order: keyswitch bookkeeping, key/vel/channel
// range, keyswitch condition, then round-robin gating. Whether a region's
// waveform is loaded is not checked here.
// Simplified from the original's dynamic zone-count compaction to a fixed
// 128-slot per-key zone table (see SPEC_FULL.md §3).
package rll

import "github.com/cbegin/calfbox/internal/layer"

// Lookup is a program's region index, built once after every region in the
// program has been finalized.
type Lookup struct {
	byKey        [128][]*layer.Data // attack-triggered regions whose key range includes this key
	releaseByKey [128][]*layer.Data // release-triggered regions (trigger=release)
	byCC         map[int][]*layer.Data // on_loccN/on_hiccN regions, keyed by CC number
}

// Trigger selects which event kind a region responds to. SFZ's `trigger`
// opcode defaults to attack; this repo tracks it on the loader-produced
// Entry rather than layer.Data, since it is sfz-loader metadata, not a
// finalized opcode value.
type Trigger int

const (
	TriggerAttack Trigger = iota
	TriggerRelease
	TriggerReleaseKey
	TriggerFirst
	TriggerLegato
)

// Entry pairs a finalized region with its trigger kind, as produced by the
// sfz loader.
type Entry struct {
	Data    *layer.Data
	Trigger Trigger
}

// Build constructs a Lookup from every finalized region in a program.
func Build(entries []Entry) *Lookup {
	l := &Lookup{byCC: map[int][]*layer.Data{}}
	for _, e := range entries {
		d := e.Data
		if d.OnCCNum >= 0 {
			l.byCC[d.OnCCNum] = append(l.byCC[d.OnCCNum], d)
			continue
		}
		lo, hi := clampKey(d.LoKey), clampKey(d.HiKey)
		switch e.Trigger {
		case TriggerRelease, TriggerReleaseKey:
			for k := lo; k <= hi; k++ {
				l.releaseByKey[k] = append(l.releaseByKey[k], d)
			}
		default:
			for k := lo; k <= hi; k++ {
				l.byKey[k] = append(l.byKey[k], d)
			}
		}
	}
	return l
}

func clampKey(k int) int {
	if k < 0 {
		return 0
	}
	if k > 127 {
		return 127
	}
	return k
}

// SwitchState holds a channel's keyswitch bitmap and previous-note memory,
// mirroring struct sampler_channel's switchmask/previous_note fields that
// sampler_program_get_next_layer consults.
type SwitchState struct {
	Down         [4]uint32 // 128-bit bitmap, bit (n&31) of word (n>>5)
	PreviousNote int
}

func (s *SwitchState) isDown(n int) bool {
	if n < 0 {
		return false
	}
	return s.Down[n>>5]&(1<<uint(n&31)) != 0
}

// MatchNoteOn returns the single next region (if any) that should start
// playing for a note-on, applying key/vel/channel range, keyswitch state,
// and round-robin position, per sampler_program_get_next_layer.
// chan1based is a 1-based MIDI channel number.
func (l *Lookup) MatchNoteOn(note, vel, chan1based int, random float64, sw *SwitchState) *layer.Data {
	return matchList(l.byKey[clampKey(note)], note, vel, chan1based, random, sw)
}

// MatchNoteOnAll returns every candidate region in the key's zone whose
// range and keyswitch conditions are satisfied and whose round-robin
// counter currently gates "play" (used when multiple regions must sound
// together, e.g. layered velocity splits with identical seq_position).
// random is the single [0,1) draw made once per note-on event and shared
// by every candidate's lorand/hirand test, matching sampler_start_note's
// one rand() call per event (original_source/sampler.c:172).
func (l *Lookup) MatchNoteOnAll(note, vel, chan1based int, random float64, sw *SwitchState) []*layer.Data {
	var out []*layer.Data
	for _, d := range l.byKey[clampKey(note)] {
		if matchOne(d, note, vel, chan1based, random, sw) {
			out = append(out, d)
		}
	}
	return out
}

// MatchReleaseTrigger returns release-triggered regions for a key that was
// just released, keyed by the velocity captured at the original note-on
// (spec.md §4.9's release-trigger semantics).
func (l *Lookup) MatchReleaseTrigger(note, noteOnVel, chan1based int, random float64) []*layer.Data {
	var out []*layer.Data
	for _, d := range l.releaseByKey[clampKey(note)] {
		if matchOne(d, note, noteOnVel, chan1based, random, nil) {
			out = append(out, d)
		}
	}
	return out
}

// MatchOnCC returns the CC-triggered regions bound to cc whose
// [OnLoCC,OnHiCC] window the value just entered from outside, per spec.md
// §4.9's on-cc trigger scan. chan1based is a 1-based MIDI channel number.
func (l *Lookup) MatchOnCC(cc, oldVal, newVal, chan1based int) []*layer.Data {
	var out []*layer.Data
	for _, d := range l.byCC[cc] {
		if !d.InChannelRange(chan1based) {
			continue
		}
		wasIn := oldVal >= d.OnLoCC && oldVal <= d.OnHiCC
		isIn := newVal >= d.OnLoCC && newVal <= d.OnHiCC
		if isIn && !wasIn {
			out = append(out, d)
		}
	}
	return out
}

// matchList scans every candidate (not just until the first hit), since
// matchOne's round-robin/keyswitch bookkeeping must advance for every
// region in the zone each event, matching sampler_start_note's outer loop
// resuming sampler_program_get_next_layer from the following list node
// rather than restarting a round-robin region's position mid-cycle.
func matchList(candidates []*layer.Data, note, vel, chan1based int, random float64, sw *SwitchState) *layer.Data {
	var found *layer.Data
	for _, d := range candidates {
		if matchOne(d, note, vel, chan1based, random, sw) && found == nil {
			found = d
		}
	}
	return found
}

func matchOne(d *layer.Data, note, vel, chan1based int, random float64, sw *SwitchState) bool {
	if d.SwLast != -1 && note >= d.SwLoKey && note <= d.SwHiKey {
		d.LastKey = note
	}
	if !(note >= d.LoKey && note <= d.HiKey && vel >= d.MinVel && vel <= d.MaxVel && random >= d.LoRand && random < d.HiRand && d.InChannelRange(chan1based)) {
		return false
	}
	if d.EffUseKeyswitch {
		if d.SwLast != -1 && d.SwLast != d.LastKey {
			return false
		}
		if d.SwDown != -1 && (sw == nil || !sw.isDown(d.SwDown)) {
			return false
		}
		if d.SwUp != -1 && sw != nil && sw.isDown(d.SwUp) {
			return false
		}
		if d.SwPrevious != -1 && (sw == nil || d.SwPrevious != sw.PreviousNote) {
			return false
		}
	}
	// Wrap strictly past SeqLength, not at it: with sibling round-robin
	// regions seeded at distinct CurrentSeqPosition==SeqPos (1..SeqLength),
	// wrapping at ">=" collapses every sibling onto position 1 after one
	// full cycle (they'd all fire together from the second note on); ">"
	// keeps each sibling's phase offset stable across cycles.
	play := d.CurrentSeqPosition == 1
	d.CurrentSeqPosition++
	if d.CurrentSeqPosition > d.SeqLength {
		d.CurrentSeqPosition = 1
	}
	return play
}
