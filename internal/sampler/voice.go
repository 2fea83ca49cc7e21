package sampler

import (
	"github.com/cbegin/calfbox/internal/biquad"
	"github.com/cbegin/calfbox/internal/envelope"
	"github.com/cbegin/calfbox/internal/layer"
	"github.com/cbegin/calfbox/internal/lfo"
	"github.com/cbegin/calfbox/internal/wavebank"
)

// Voice is one playing sample instance, a slot in Engine's fixed arena.
// Grounded on struct cbox_sampler_voice (sampler_voice.h), flattened: the
// original's prev_free/output_pair_no-linked-list plumbing is replaced by
// plain array indexing, matching internal/wavetable/engine.go's voice
// shape in this codebase.
type Voice struct {
	active bool

	chanIdx int
	note    int
	vel     int

	data *layer.Data
	wf   *wavebank.Waveform
	pipe *wavebank.PrefetchPipe

	isReleaseTrigger bool
	released         bool
	age              int64 // samples since voice start (or, for release-trigger voices, since the original note-on)
	delay            int64 // start delay in samples; the voice stays silent while age < delay
	serialNo         int64 // Engine.serialNo snapshot at start, for voice-steal age scoring

	// Pedal bookkeeping: sustainHeld/sostenutoHeld mark a voice whose key
	// was released while the corresponding pedal was down, so the voice's
	// actual envelope release is deferred until the pedal lifts.
	// sostenutoCaptured snapshots which voices were sounding at the moment
	// CC66 went down, since sostenuto (unlike sustain) only holds notes
	// that were already playing when the pedal was pressed.
	sustainHeld       bool
	sostenutoCaptured bool
	sostenutoHeld     bool

	// 32.32 fixed-point playback cursor and per-frame phase increment,
	// matching sampler_voice.c's pos/bigpos arithmetic.
	bigpos    uint64
	bigdelta  uint64
	loopStart uint32
	loopEnd   uint32
	loopActive bool
	playCount int
	loopCount int // count= cap on loop repeats; 0 = unlimited
	sampleEnd uint32

	gainFromVel float64
	xfadeGain   float64
	cutoffShift float64
	pitchShift  float64
	gainShift   float64

	ampEnv, filterEnv, pitchEnv envelope.Runtime
	ampLFO, filterLFO, pitchLFO lfo.LFO

	filt *voiceFilter

	// eqLeft/eqRight/eqCoeffs are the three cascaded peaking-EQ biquads
	// (eq1_*/eq2_*/eq3_* opcode groups); lastEqBitmask mirrors
	// sampler_voice's last_eq_bitmask, used to reset a band's delay line
	// only on the block it newly becomes active.
	eqLeft, eqRight [3]biquad.State
	eqCoeffs        [3]biquad.Coeffs
	lastEqBitmask   int

	// onepoleLeft/onepoleRight/onepoleCoeffs implement the one-pole
	// tone-control shelf (tonectl/tonectl_freq), bypassed when the region's
	// TonectlFreq is 0.
	onepoleLeft, onepoleRight biquad.OnePoleState
	onepoleCoeffs             biquad.OnePoleCoeffs

	outputPair int
	send1Bus, send2Bus   int
	send1Gain, send2Gain float64
	offBy int

	lgain, rgain float64
}

// cubicHermite is a 4-point Catmull-Rom interpolation across taps
// (y0,y1,y2,y3) at fractional position t in [y1,y2), matching the original
// engine's cubic interpolation kernel (sampler_gen.c was not among the
// retrieved original sources; this is the standard cubic Hermite spline
// used for audio resampling, grounded on the same family of interpolator
// cbegin-mmlfm-go's internal/wavetable uses for its own table lookups).
func cubicHermite(y0, y1, y2, y3, t float64) float64 {
	c0 := y1
	c1 := 0.5 * (y2 - y0)
	c2 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	c3 := 0.5*(y3-y0) + 1.5*(y1-y2)
	return ((c3*t+c2)*t+c1)*t + c0
}

// tap fetches the interleaved stereo sample at absolute frame idx,
// wrapping into [loopStart,loopEnd) when the voice is actively looping and
// clamping to the buffer's edges otherwise. The original straightens a
// small scratch buffer across the loop seam before interpolating
// (sampler_voice.c's loop-handling comments); indexing through a wrapped
// idx here is numerically equivalent for the common case and avoids a
// second buffer copy, since the whole waveform already lives in memory.
func (v *Voice) tap(idx int64) (float32, float32) {
	frames := int64(v.wf.Frames)
	if frames == 0 {
		return 0, 0
	}
	if v.loopActive {
		span := int64(v.loopEnd) - int64(v.loopStart)
		if span > 0 {
			for idx >= int64(v.loopEnd) {
				idx -= span
			}
			for idx < int64(v.loopStart) {
				idx += span
			}
		}
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= frames {
		idx = frames - 1
	}
	return v.wf.Data[idx*2], v.wf.Data[idx*2+1]
}

// renderFrame produces one interpolated stereo sample and advances the
// playback cursor by bigdelta, handling loop-seam wraparound. ok is false
// once a non-looping voice has run past its end.
func (v *Voice) renderFrame() (l, r float32, ok bool) {
	if v.wf == nil || v.wf.Frames == 0 {
		return 0, 0, false
	}
	frameIdx := int64(v.bigpos >> 32)
	if !v.loopActive && frameIdx >= int64(v.sampleEnd) {
		return 0, 0, false
	}
	frac := float64(uint32(v.bigpos)) / 4294967296.0

	l0, r0 := v.tap(frameIdx - 1)
	l1, r1 := v.tap(frameIdx)
	l2, r2 := v.tap(frameIdx + 1)
	l3, r3 := v.tap(frameIdx + 2)

	l = float32(cubicHermite(float64(l0), float64(l1), float64(l2), float64(l3), frac))
	r = float32(cubicHermite(float64(r0), float64(r1), float64(r2), float64(r3), frac))

	v.bigpos += v.bigdelta
	if v.loopActive {
		span := int64(v.loopEnd) - int64(v.loopStart)
		if span > 0 {
			for int64(v.bigpos>>32) >= int64(v.loopEnd) {
				// count= caps the total number of times the loop body
				// plays (spec.md §8 scenario 3): once playCount wraps have
				// already delivered loopCount-1 repeats, the voice is in
				// its final pass through the loop body, so stop wrapping
				// and let playback run off the end of the loop instead.
				if v.loopCount > 0 && v.playCount >= v.loopCount-1 {
					v.loopActive = false
					break
				}
				v.bigpos -= uint64(span) << 32
				v.playCount++
			}
		}
	}
	return l, r, true
}
