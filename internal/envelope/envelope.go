// Package envelope implements the DAHDSR envelope runtime shared by the
// amp/filter/pitch envelope slots of a sampler voice.
package envelope

// MaxStages mirrors the fixed stage table size of the original engine;
// stage 15 is reserved for the fast-release shortcut used on voice steal
// and off_mode=fast exclusive-group chokes.
const MaxStages = 16

// FastReleaseStage is the reserved stage id forced by GoTo for steals and
// off_mode=fast chokes.
const FastReleaseStage = 15

// Stage describes one DAHDSR transition.
type Stage struct {
	EndValue       float64
	Time           int // length in samples-per-block units (set by caller's sample rate)
	NextIfPressed  int // -1 terminates the envelope
	NextIfReleased int
	KeepLastValue  bool
	BreakOnRelease bool
}

// Shape is the static, per-layer envelope description: a start value and
// up to MaxStages transitions. Shared (read-only) across all voices that
// play the same layer.
type Shape struct {
	StartValue float64
	Stages     [MaxStages]Stage
}

// DAHDSR holds delay/attack/hold/decay/sustain/release times (seconds) and
// the sustain level, as authored by SFZ opcodes (ampeg_attack, etc).
type DAHDSR struct {
	Delay   float64
	Attack  float64
	Hold    float64
	Decay   float64
	Sustain float64 // 0..100, SFZ convention
	Release float64
}

// BuildShape expands a DAHDSR spec into the six-stage transition table
// stages {delay, attack, hold, decay, sustain, release, terminal} described
// in spec.md §4.7, scaled to sampleRate.
func BuildShape(d DAHDSR, sampleRate float64) Shape {
	var s Shape
	sustain := d.Sustain / 100.0
	if sustain < 0 {
		sustain = 0
	}
	if sustain > 1 {
		sustain = 1
	}
	s.StartValue = 0
	// 0: delay (hold at 0)
	s.Stages[0] = Stage{EndValue: 0, Time: secs(d.Delay, sampleRate), NextIfPressed: 1, NextIfReleased: 1, KeepLastValue: false}
	// 1: attack, ramp 0 -> 1
	s.Stages[1] = Stage{EndValue: 1, Time: secs(d.Attack, sampleRate), NextIfPressed: 2, NextIfReleased: 2, KeepLastValue: true}
	// 2: hold at 1
	s.Stages[2] = Stage{EndValue: 1, Time: secs(d.Hold, sampleRate), NextIfPressed: 3, NextIfReleased: 3, KeepLastValue: false}
	// 3: decay, ramp 1 -> sustain
	s.Stages[3] = Stage{EndValue: sustain, Time: secs(d.Decay, sampleRate), NextIfPressed: 4, NextIfReleased: 4, KeepLastValue: false}
	// 4: sustain (held indefinitely, breaks on release)
	s.Stages[4] = Stage{EndValue: sustain, Time: sampleRateSeconds(sampleRate), NextIfPressed: 4, NextIfReleased: 5, KeepLastValue: false, BreakOnRelease: true}
	// 5: release, ramp current -> 0
	s.Stages[5] = Stage{EndValue: 0, Time: secs(d.Release, sampleRate), NextIfPressed: -1, NextIfReleased: -1, KeepLastValue: false}
	// Fast-release stage 15: always a short linear ramp to 0, independent of authored release time.
	s.Stages[FastReleaseStage] = Stage{EndValue: 0, Time: int(sampleRate * 0.01), NextIfPressed: -1, NextIfReleased: -1, KeepLastValue: false}
	return s
}

func secs(v, sampleRate float64) int {
	if v < 0 {
		v = 0
	}
	n := int(v * sampleRate)
	if n < 1 {
		n = 1
	}
	return n
}

func sampleRateSeconds(sampleRate float64) int {
	n := int(sampleRate)
	if n < 1 {
		n = 1
	}
	return n
}

// Runtime is the per-voice, mutable envelope state. Shape is shared
// (read-only); Runtime is cloned per voice.
type Runtime struct {
	Shape           *Shape
	StageStartValue float64
	CurValue        float64
	CurStage        int
	CurTime         int
}

// Reset re-arms the runtime at stage 0 using the shared shape.
func (r *Runtime) Reset(shape *Shape) {
	r.Shape = shape
	r.CurValue = shape.StartValue
	r.StageStartValue = shape.StartValue
	r.CurStage = 0
	r.CurTime = 0
}

// Next advances the envelope by one sample and returns the new value.
// released indicates whether the owning voice has received a release.
func (r *Runtime) Next(released bool) float64 {
	if r.CurStage < 0 {
		return r.CurValue
	}
	st := &r.Shape.Stages[r.CurStage]
	r.CurTime++
	pos := 1.0
	if st.Time > 0 {
		pos = float64(r.CurTime) / float64(st.Time)
	}
	r.CurValue = r.StageStartValue + (st.EndValue-r.StageStartValue)*pos
	if pos >= 1 || (st.BreakOnRelease && released) {
		if released {
			r.CurStage = st.NextIfReleased
		} else {
			r.CurStage = st.NextIfPressed
		}
		if st.KeepLastValue {
			r.StageStartValue = r.CurValue
		} else {
			r.StageStartValue = st.EndValue
		}
		r.CurTime = 0
	}
	return r.CurValue
}

// GoTo forces an immediate stage transition, used for voice steal and
// off_mode=fast exclusive-group chokes (spec.md §4.7).
func (r *Runtime) GoTo(stage int) {
	r.CurStage = stage
	r.CurTime = 0
	r.StageStartValue = r.CurValue
}

// Finished reports whether the envelope has reached its terminal stage.
func (r *Runtime) Finished() bool {
	return r.CurStage < 0
}
