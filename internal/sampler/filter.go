package sampler

import (
	"math"

	"github.com/cbegin/calfbox/internal/biquad"
	"github.com/cbegin/calfbox/internal/layer"
)

// voiceFilter wraps a region's filter opcode group. biquad.Filter already
// ports the 12/24dB RBJ cases (and their 4-pole sqrt-q scaling); this adds
// the one-pole 6dB cases the original dispatches separately
// (cbox_biquadf_set_1plp/set_1php), and maps FilterBP6 onto the same
// 2-pole RBJ bandpass formula FilterBP12 uses — sft_bp6 is not a true
// one-pole bandpass in the original engine despite its name
// (original_source/sampler_voice.c's cutoff-setup switch routes both
// sft_bp6 and sft_bp12 to cbox_biquadf_set_bp_rbj).
type voiceFilter struct {
	kind layer.FilterType

	two  biquad.Filter // used for lp12/hp12/bp6/bp12/lp24/hp24
	one1 biquad.OnePoleState
	one2 biquad.OnePoleState
	oneC biquad.OnePoleCoeffs
}

func newVoiceFilter(kind layer.FilterType) *voiceFilter {
	vf := &voiceFilter{kind: kind}
	switch kind {
	case layer.FilterLP12, layer.FilterLP24:
		vf.two.Type = biquad.TypeLowpass12
		if kind == layer.FilterLP24 {
			vf.two.Type = biquad.TypeLowpass24
		}
	case layer.FilterHP12, layer.FilterHP24:
		vf.two.Type = biquad.TypeHighpass12
		if kind == layer.FilterHP24 {
			vf.two.Type = biquad.TypeHighpass24
		}
	case layer.FilterBP6, layer.FilterBP12:
		vf.two.Type = biquad.TypeBandpass12
	}
	return vf
}

// setParams recomputes coefficients for the given cutoff (Hz) and linear
// resonance/Q, folding in per-block modulation the caller has already
// applied to both values. biquad.Filter.SetParams applies the 4-pole
// sqrt(q) correction internally, so resonance must be passed unscaled
// (layer.Data.ResonanceScaled, which bakes that correction in statically
// from the unmodulated authored value, is not used here).
func (vf *voiceFilter) setParams(cutoff, resonance, sampleRate float64) {
	switch vf.kind {
	case layer.FilterLP6, layer.FilterHP6:
		w := 2 * math.Pi * cutoff / sampleRate
		if vf.kind == layer.FilterLP6 {
			biquad.SetOnePoleLowpass(&vf.oneC, w)
		} else {
			biquad.SetOnePoleHighpass(&vf.oneC, w)
		}
	default:
		vf.two.SetParams(cutoff, resonance, sampleRate)
	}
}

func (vf *voiceFilter) reset() {
	vf.two.Reset()
	vf.one1.Reset()
	vf.one2.Reset()
}

func (vf *voiceFilter) process(l, r float64) (float64, float64) {
	switch vf.kind {
	case layer.FilterUnknown:
		return l, r
	case layer.FilterLP6, layer.FilterHP6:
		return vf.one1.Process(&vf.oneC, l), vf.one2.Process(&vf.oneC, r)
	default:
		return vf.two.Process(l, r)
	}
}
