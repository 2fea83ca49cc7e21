package sampler

import (
	"github.com/cbegin/calfbox/internal/envelope"
	"github.com/cbegin/calfbox/internal/layer"
)

// channelHandler adapts one Channel's midi.NoteHandler callbacks onto
// Engine, closing over which of the 16 channels it speaks for.
type channelHandler struct {
	eng *Engine
	ch  int
}

func (h *channelHandler) ReleaseVoicesForNote(note int, fast bool) {
	h.eng.releaseVoicesForNote(h.ch, note, fast)
}
func (h *channelHandler) ReleaseSustainedVoices() { h.eng.releaseSustainedVoices(h.ch) }
func (h *channelHandler) ReleaseSostenutoVoices() { h.eng.releaseSostenutoVoices(h.ch) }
func (h *channelHandler) CaptureSostenuto()       { h.eng.captureSostenuto(h.ch) }
func (h *channelHandler) StopAllVoices()          { h.eng.stopAllVoices(h.ch) }
func (h *channelHandler) StartReleaseTriggeredVoices(note int) {
	h.eng.startReleaseTriggeredVoices(h.ch, note)
}
func (h *channelHandler) StartOnCCTriggeredVoices(cc, oldVal, newVal int) {
	h.eng.startOnCCTriggeredVoices(h.ch, cc, oldVal, newVal)
}

// releaseVoice puts v into its release stage, mirroring
// sampler_voice_release. A one-shot-chokeable region only reacts to the
// polyphonic-aftertouch choke path (fast=true); a plain one-shot region
// ignores note-off/sustain/sostenuto releases entirely and always plays
// to its natural end, matching sampler_voice_release's slm_one_shot
// branch (sets loop_start=-1, leaves released untouched) — gated out
// here before the chokeable/fast comparison below, since that comparison
// alone (chokeable != fast) is false for a plain one-shot on a normal
// note-off (false != false) and would otherwise set released anyway.
func (e *Engine) releaseVoice(v *Voice, fast bool) {
	if v.data.LoopMode == layer.LoopOneShot {
		return
	}
	chokeable := v.data.LoopMode == layer.LoopOneShotChokeable
	if chokeable != fast {
		return
	}
	v.released = true
	if fast {
		v.ampEnv.GoTo(envelope.FastReleaseStage)
	}
}

// releaseVoicesForNote runs on every Channel.NoteOff, regardless of pedal
// state: a key lift always ends the physical gesture, but the Engine
// itself (not Channel, which only tracks raw CC state) decides whether
// the release actually happens now or is deferred by a held pedal.
func (e *Engine) releaseVoicesForNote(chanIdx, note int, fast bool) {
	ch := e.channels[chanIdx]
	for i := range e.voices {
		v := &e.voices[i]
		if !v.active || v.chanIdx != chanIdx || v.note != note || v.isReleaseTrigger {
			continue
		}
		if fast {
			e.releaseVoice(v, true)
			continue
		}
		if v.sostenutoCaptured {
			v.sostenutoHeld = true
			continue
		}
		if ch != nil && ch.CC[64] >= 64 {
			v.sustainHeld = true
			continue
		}
		e.releaseVoice(v, false)
	}
}

func (e *Engine) releaseSustainedVoices(chanIdx int) {
	for i := range e.voices {
		v := &e.voices[i]
		if v.active && v.chanIdx == chanIdx && v.sustainHeld {
			v.sustainHeld = false
			e.releaseVoice(v, false)
		}
	}
}

func (e *Engine) captureSostenuto(chanIdx int) {
	for i := range e.voices {
		v := &e.voices[i]
		if v.active && v.chanIdx == chanIdx && v.data.EffLoopMode != layer.LoopOneShot {
			v.sostenutoCaptured = true
		}
	}
}

func (e *Engine) releaseSostenutoVoices(chanIdx int) {
	for i := range e.voices {
		v := &e.voices[i]
		if v.active && v.chanIdx == chanIdx && v.sostenutoCaptured {
			if v.sostenutoHeld {
				e.releaseVoice(v, false)
			}
			v.sostenutoCaptured = false
			v.sostenutoHeld = false
		}
	}
}

// stopAllVoices releases every voice on chanIdx (one-shot-chokeable voices
// take the fast release) and drops their pedal holds, used for the
// all-notes-off / all-sound-off controllers.
func (e *Engine) stopAllVoices(chanIdx int) {
	for i := range e.voices {
		v := &e.voices[i]
		if !v.active || v.chanIdx != chanIdx {
			continue
		}
		v.sustainHeld = false
		v.sostenutoCaptured = false
		v.sostenutoHeld = false
		if v.data.LoopMode == layer.LoopOneShotChokeable {
			v.released = true
			v.ampEnv.GoTo(envelope.FastReleaseStage)
		} else {
			v.released = true
		}
	}
}

// startReleaseTriggeredVoices fires release-trigger regions for note,
// using the channel's remembered note-on velocity (a release-trigger
// region's gain tracks how hard the key was originally struck, not how
// the key was released).
func (e *Engine) startReleaseTriggeredVoices(chanIdx, note int) {
	ch := e.channels[chanIdx]
	if ch == nil {
		return
	}
	vel := ch.NoteOnVelocity(note)
	if vel < 0 {
		return
	}
	e.startNote(chanIdx, note, vel, true)
}
