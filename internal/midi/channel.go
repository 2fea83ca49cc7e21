// Package midi implements per-channel MIDI controller state, note
// dispatch (sustain/sostenuto/all-notes-off/reset-controllers), and an
// N-input-to-one timestamp-ordered merger (spec.md §4.9, §4.12).
//
// Grounded on original_source/sampler.c's sampler_process_cc /
// sampler_stop_note / sampler_stop_sustained / sampler_stop_sostenuto /
// sampler_capture_sostenuto / sampler_stop_all for dispatch semantics, and
// mididest.h for the merger shape. The per-channel state struct follows the
// Go idiom of cbegin-mmlfm-go's internal/sequencer's runtimeState: one
// struct instance per channel holding CC-derived playback state, updated by
// plain method calls rather than GLib signal/callback wiring.
package midi

// NoteHandler is implemented by the voice engine (internal/sampler) so
// Channel can dispatch sustain/sostenuto/choke decisions without importing
// it directly (avoiding an import cycle; internal/sampler wires this up).
type NoteHandler interface {
	// ReleaseVoicesForNote transitions every active, non-release-triggered
	// voice on this channel playing `note` into its release phase; the
	// implementation itself decides whether a held sostenuto or sustain
	// pedal defers the release (fast indicates a chokeable one-shot /
	// poly-aftertouch choke).
	ReleaseVoicesForNote(note int, fast bool)
	// ReleaseSustainedVoices releases every voice this channel had deferred
	// via sustain (CC64).
	ReleaseSustainedVoices()
	// ReleaseSostenutoVoices releases every voice this channel had deferred
	// via sostenuto (CC66).
	ReleaseSostenutoVoices()
	// CaptureSostenuto marks every currently-sounding, non-one-shot voice on
	// this channel as captured by sostenuto.
	CaptureSostenuto()
	// StopAllVoices releases (or chokes, for one-shot-chokeable voices)
	// every voice on this channel, for all-notes-off / all-sound-off.
	StopAllVoices()
	// StartReleaseTriggeredVoices fires release-triggered regions bound to
	// note, using the velocity captured at that note's original note-on.
	StartReleaseTriggeredVoices(note int)
	// StartOnCCTriggeredVoices fires on_locc/on_hicc-bound regions whose
	// window cc's value just entered, given its value before and after
	// this update.
	StartOnCCTriggeredVoices(cc, oldVal, newVal int)
}

// Channel holds one MIDI channel's controller state: 128 CC values, pitch
// bend, aftertouch, and the sustain/sostenuto key bitmaps, per spec.md §4.9.
type Channel struct {
	CC          [128]int
	// PitchBend is the raw 14-bit wheel position, -8192..8191, centered at
	// 0. It is deliberately not pre-scaled by a channel-wide range: per-voice
	// bend_up/bend_down/bend_step (layer opcodes) do that scaling, mirroring
	// sampler_voice_process's use of c->pitchwheel rather than a
	// channel-wide RPN range (spec.md §4.6 point 4, §9's bend_step note).
	PitchBend   int
	ChannelAftertouch int
	PolyAftertouch [128]int

	sustainMask   [4]uint32 // bit (n&31) of word (n>>5): note n deferred by sustain
	sostenutoMask [4]uint32
	switchMask    [4]uint32 // keyswitch "down" bitmap consulted by internal/rll

	PreviousNote int
	lastNoteOnVel [128]int // velocity captured at each key's most recent note-on, for release triggers

	handler NoteHandler
}

// NewChannel returns a Channel with MIDI power-on defaults: CC7 (volume)
// at 100, CC10 (pan) centered at 64, CC11 (expression) at 127, pitch wheel
// centered.
func NewChannel(handler NoteHandler) *Channel {
	c := &Channel{handler: handler}
	c.CC[7] = 100
	c.CC[10] = 64
	c.CC[11] = 127
	for i := range c.lastNoteOnVel {
		c.lastNoteOnVel[i] = -1
	}
	return c
}

func bitSet(mask *[4]uint32, n int) bool {
	return mask[n>>5]&(1<<uint(n&31)) != 0
}
func bitOr(mask *[4]uint32, n int) {
	mask[n>>5] |= 1 << uint(n&31)
}
func bitClear(mask *[4]uint32, n int) {
	mask[n>>5] &^= 1 << uint(n&31)
}
func bitClearAll(mask *[4]uint32) {
	*mask = [4]uint32{}
}

// SwitchDown reports whether keyswitch note n is currently held, consulted
// by internal/rll's keyswitch matching.
func (c *Channel) SwitchDown(n int) bool {
	if n < 0 || n > 127 {
		return false
	}
	return bitSet(&c.switchMask, n)
}

// NoteOn records the note's velocity (for later release triggers), marks
// the keyswitch bitmap, and lets the caller proceed to region lookup and
// voice allocation (handled by internal/sampler, not this package).
func (c *Channel) NoteOn(note, vel int) {
	if note < 0 || note > 127 {
		return
	}
	bitOr(&c.switchMask, note)
	c.lastNoteOnVel[note] = vel
}

// NoteOff dispatches a note-off: immediate release unless sostenuto/sustain
// defers it, then fires release-triggered regions or marks the sustain
// bitmap, mirroring sampler_stop_note.
func (c *Channel) NoteOff(note int, isPolyAftertouchChoke bool) {
	if note < 0 || note > 127 {
		return
	}
	bitClear(&c.switchMask, note)
	if c.handler != nil {
		c.handler.ReleaseVoicesForNote(note, isPolyAftertouchChoke)
	}
	if c.CC[64] < 64 {
		if c.handler != nil {
			c.handler.StartReleaseTriggeredVoices(note)
		}
	} else {
		bitOr(&c.sustainMask, note)
	}
	c.PreviousNote = note
}

// NoteOnVelocity returns the velocity captured at note's most recent
// note-on, or -1 if none, for release-trigger region matching.
func (c *Channel) NoteOnVelocity(note int) int {
	if note < 0 || note > 127 {
		return -1
	}
	return c.lastNoteOnVel[note]
}

// ProcessCC applies a Control Change, dispatching sustain (64), sostenuto
// (66), all-notes/sound-off (120/123), and reset-all-controllers (121),
// mirroring sampler_process_cc.
func (c *Channel) ProcessCC(cc, val int) {
	wasEnabled := c.CC[cc] >= 64
	enabled := val >= 64
	oldVal := c.CC[cc]
	switch cc {
	case 64:
		if wasEnabled && !enabled {
			c.stopSustained()
		}
	case 66:
		if wasEnabled && !enabled {
			c.stopSostenuto()
		} else if !wasEnabled && enabled {
			c.captureSostenuto()
		}
	case 120, 123:
		c.stopAll()
	case 121:
		c.ProcessCC(64, 0)
		c.ProcessCC(66, 0)
		c.CC[11] = 127
		c.CC[1] = 0
		c.PitchBend = 0
		c.ChannelAftertouch = 0
		return
	}
	if cc < 120 {
		c.CC[cc] = val
		if c.handler != nil && oldVal != val {
			c.handler.StartOnCCTriggeredVoices(cc, oldVal, val)
		}
	}
}

func (c *Channel) stopSustained() {
	if c.handler != nil {
		c.handler.ReleaseSustainedVoices()
		for n := 0; n < 128; n++ {
			if bitSet(&c.sustainMask, n) {
				c.handler.StartReleaseTriggeredVoices(n)
			}
		}
	}
	bitClearAll(&c.sustainMask)
}

func (c *Channel) stopSostenuto() {
	if c.handler != nil {
		c.handler.ReleaseSostenutoVoices()
		for n := 0; n < 128; n++ {
			if bitSet(&c.sostenutoMask, n) {
				c.handler.StartReleaseTriggeredVoices(n)
			}
		}
	}
	bitClearAll(&c.sostenutoMask)
}

func (c *Channel) captureSostenuto() {
	if c.handler != nil {
		c.handler.CaptureSostenuto()
	}
}

func (c *Channel) stopAll() {
	if c.handler != nil {
		c.handler.StopAllVoices()
	}
	bitClearAll(&c.sustainMask)
	bitClearAll(&c.sostenutoMask)
}

// MarkSustained flags note as sustain-deferred; called by internal/sampler
// when a voice is released-with-sustain instead of immediately released.
func (c *Channel) MarkSustained(note int) { bitOr(&c.sustainMask, note) }

// MarkSostenuto flags note as sostenuto-deferred.
func (c *Channel) MarkSostenuto(note int) { bitOr(&c.sostenutoMask, note) }

// SetPitchBend composes a 14-bit pitch-bend value from MSB/LSB bytes,
// mirroring the `case 14` dispatch in sampler_channel_process_midi_message.
// The raw value is stored as-is; per-voice bend_up/bend_down/bend_step
// scaling happens in internal/sampler, mirroring sampler_voice.c's use of
// the unscaled c->pitchwheel.
func (c *Channel) SetPitchBend(lsb, msb int) {
	c.PitchBend = lsb + 128*msb - 8192
}

// Addcc composes a 14-bit CC value from a coarse/fine CC pair (e.g. CC1/33),
// mirroring sampler.c's addcc helper.
func (c *Channel) Addcc(ccNo int) int {
	v := c.CC[ccNo] << 7
	if ccNo < 32 {
		v |= c.CC[ccNo+32]
	}
	return v
}
