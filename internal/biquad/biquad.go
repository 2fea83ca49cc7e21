// Package biquad implements the RBJ biquad and one-pole filter stages used
// by the sampler's cutoff/resonance filter slots (spec.md §4.8).
//
// Grounded on original_source/biquad-float.h and onepole-float.h: the
// coefficient formulas (Robert Bristow-Johnson's cookbook) and the
// Direct-Form-II-transposed per-sample recurrence are ported unchanged;
// the per-sample Process(l, r float64) shape follows the Go idiom used by
// cbegin-mmlfm-go's internal/effects (EQ5Band, Compressor): a small state
// struct plus a stereo Process method, rather than the original's
// block-at-a-time buffer mutation.
package biquad

import "math"

// Type selects which filter response a Filter's coefficients describe.
type Type int

const (
	TypeBypass Type = iota
	TypeLowpass12
	TypeHighpass12
	TypeBandpass12
	TypeLowpass24
	TypeHighpass24
)

// Coeffs holds one Direct-Form-II-transposed biquad section's coefficients.
type Coeffs struct {
	A0, A1, A2 float64
	B1, B2     float64
}

// State holds one biquad section's delay line.
type State struct {
	X1, X2, Y1, Y2 float64
}

// Reset clears the delay line.
func (s *State) Reset() {
	*s = State{}
}

// Process runs one sample through the section, matching
// cbox_biquadf_process's recurrence.
func (s *State) Process(c *Coeffs, in float64) float64 {
	out := c.A0*in + c.A1*s.X1 + c.A2*s.X2 - c.B1*s.Y1 - c.B2*s.Y2
	s.X2, s.X1 = s.X1, in
	s.Y2, s.Y1 = s.Y1, out
	return sane(out)
}

// IsAudible reports whether the section's state still carries energy above
// eps, mirroring cbox_biquadf_is_audible's tail-finished check. The sampler
// does not call it; a voice is freed by its amplitude envelope or sample end.
func (s *State) IsAudible(eps float64) bool {
	return math.Abs(s.X1) > eps || math.Abs(s.X2) > eps || math.Abs(s.Y1) > eps || math.Abs(s.Y2) > eps
}

func sane(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// SetLowpassRBJ computes a 2nd-order Butterworth-Q lowpass (cbox_biquadf_set_lp_rbj).
func SetLowpassRBJ(c *Coeffs, fc, q, sr float64) {
	omega := 2 * math.Pi * fc / sr
	sn, cs := math.Sincos(omega)
	alpha := sn / (2 * q)
	inv := 1.0 / (1.0 + alpha)

	c.A2 = inv * (1 - cs) * 0.5
	c.A0 = c.A2
	c.A1 = c.A0 + c.A0
	c.B1 = -2 * cs * inv
	c.B2 = (1 - alpha) * inv
}

// SetHighpassRBJ computes a 2nd-order highpass (cbox_biquadf_set_hp_rbj).
func SetHighpassRBJ(c *Coeffs, fc, q, sr float64) {
	omega := 2 * math.Pi * fc / sr
	sn, cs := math.Sincos(omega)
	alpha := sn / (2 * q)
	inv := 1.0 / (1.0 + alpha)

	c.A2 = inv * (1 + cs) * 0.5
	c.A0 = c.A2
	c.A1 = -2 * c.A0
	c.B1 = -2 * cs * inv
	c.B2 = (1 - alpha) * inv
}

// SetBandpassRBJ computes a constant-skirt-gain bandpass (cbox_biquadf_set_bp_rbj).
func SetBandpassRBJ(c *Coeffs, fc, q, sr float64) {
	omega := 2 * math.Pi * fc / sr
	sn, cs := math.Sincos(omega)
	alpha := sn / (2 * q)
	inv := 1.0 / (1.0 + alpha)

	c.A0 = inv * alpha
	c.A1 = 0
	c.A2 = -c.A0
	c.B1 = -2 * cs * inv
	c.B2 = (1 - alpha) * inv
}

// SetPeakEQRBJ computes a peaking EQ bell (cbox_biquadf_set_peakeq_rbj), used
// by internal/sampler's per-voice EQ bands.
func SetPeakEQRBJ(c *Coeffs, freq, q, peakGain, sr float64) {
	a := math.Sqrt(peakGain)
	w0 := freq * 2 * math.Pi / sr
	sn, cs := math.Sincos(w0)
	alpha := sn / (2 * q)
	ib0 := 1.0 / (1 + alpha/a)

	c.A1 = -2 * cs * ib0
	c.B1 = c.A1
	c.A0 = ib0 * (1 + alpha*a)
	c.A2 = ib0 * (1 - alpha*a)
	c.B2 = ib0 * (1 - alpha/a)
}

// OnePoleCoeffs holds a first-order filter's coefficients.
type OnePoleCoeffs struct {
	A0, A1, B1 float64
}

// OnePoleState holds a first-order filter's delay line.
type OnePoleState struct {
	X1, Y1 float64
}

func (s *OnePoleState) Reset() { *s = OnePoleState{} }

// Process runs one sample through a one-pole section (cbox_onepolef_process_sample).
func (s *OnePoleState) Process(c *OnePoleCoeffs, in float64) float64 {
	out := sane(c.A0*in + c.A1*s.X1 - c.B1*s.Y1)
	s.X1 = in
	s.Y1 = out
	return out
}

// SetOnePoleLowpass computes a one-pole lowpass at angular frequency w
// (radians/sample), per cbox_onepolef_set_lowpass.
func SetOnePoleLowpass(c *OnePoleCoeffs, w float64) {
	x := math.Tan(w * 0.5)
	q := 1 / (1 + x)
	a01 := x * q
	c.A0 = a01
	c.A1 = a01
	c.B1 = a01 - q
}

// SetOnePoleHighpass computes a one-pole highpass, per cbox_onepolef_set_highpass.
func SetOnePoleHighpass(c *OnePoleCoeffs, w float64) {
	x := math.Tan(w * 0.5)
	q := 1 / (1 + x)
	a01 := x * q
	c.A0 = q
	c.A1 = -q
	c.B1 = a01 - q
}

// SetOnePoleHighShelfTonectl computes the tone-control high shelf's pole
// (cbox_onepolef_set_highshelf_tonectl) at corner frequency w with initial
// shelf gain g0 (linear). The shelf's live gain is then retuned every block
// via SetOnePoleHighShelfGain without recomputing b1, matching the
// original's split between a one-time pole placement at voice start and a
// per-block gain-only coefficient update.
func SetOnePoleHighShelfTonectl(c *OnePoleCoeffs, w, g0 float64) {
	x := math.Tan(w * 0.5)
	q := 1 / (1 + x)
	c.B1 = x*q - q
	SetOnePoleHighShelfGain(c, g0)
}

// SetOnePoleHighShelfGain retunes a tone-control shelf's gain (linear) in
// place, reusing the pole set by SetOnePoleHighShelfTonectl
// (cbox_onepolef_set_highshelf_setgain).
func SetOnePoleHighShelfGain(c *OnePoleCoeffs, g0 float64) {
	c.A0 = 0.5 * (1 + c.B1 + g0 - c.B1*g0)
	c.A1 = 0.5 * (1 + c.B1 - g0 + c.B1*g0)
}

// Filter is a stereo 2-pole (or cascaded 4-pole) section driven from a
// Region's filter opcode group (spec.md §4.8): cutoff, resonance, and a
// Type selecting 12dB single-section or 24dB cascaded-section response.
type Filter struct {
	Type           Type
	coeffs1        Coeffs
	coeffs2        Coeffs // only used when Type is a *24 cascade
	left1, right1  State
	left2, right2  State
	fourPole       bool
}

// SetParams recomputes filter coefficients for the given cutoff (Hz),
// resonance (linear Q), and sample rate.
func (f *Filter) SetParams(cutoff, resonance, sampleRate float64) {
	if cutoff <= 0 {
		f.Type = TypeBypass
		return
	}
	q := resonance
	if q < 0.5 {
		q = 0.5
	}
	f.fourPole = f.Type == TypeLowpass24 || f.Type == TypeHighpass24
	switch f.Type {
	case TypeLowpass12, TypeLowpass24:
		if f.fourPole {
			// 4-pole cascade: each section uses sqrt(q) to keep the
			// cascaded resonance peak matching the authored q, per
			// sampler.c's is_4pole resonance scaling.
			SetLowpassRBJ(&f.coeffs1, cutoff, math.Sqrt(q), sampleRate)
			f.coeffs2 = f.coeffs1
		} else {
			SetLowpassRBJ(&f.coeffs1, cutoff, q, sampleRate)
		}
	case TypeHighpass12, TypeHighpass24:
		if f.fourPole {
			SetHighpassRBJ(&f.coeffs1, cutoff, math.Sqrt(q), sampleRate)
			f.coeffs2 = f.coeffs1
		} else {
			SetHighpassRBJ(&f.coeffs1, cutoff, q, sampleRate)
		}
	case TypeBandpass12:
		SetBandpassRBJ(&f.coeffs1, cutoff, q, sampleRate)
	}
}

// Process filters one stereo sample pair through the configured section(s).
func (f *Filter) Process(l, r float64) (float64, float64) {
	if f.Type == TypeBypass {
		return l, r
	}
	l = f.left1.Process(&f.coeffs1, l)
	r = f.right1.Process(&f.coeffs1, r)
	if f.fourPole {
		l = f.left2.Process(&f.coeffs2, l)
		r = f.right2.Process(&f.coeffs2, r)
	}
	return l, r
}

// Reset clears all delay lines, used on voice (re)start.
func (f *Filter) Reset() {
	f.left1.Reset()
	f.right1.Reset()
	f.left2.Reset()
	f.right2.Reset()
}

// IsAudible reports whether any section of the filter still carries a tail
// above eps, per is_tail_finished's per-section OR.
func (f *Filter) IsAudible(eps float64) bool {
	if f.Type == TypeBypass {
		return false
	}
	if f.left1.IsAudible(eps) || f.right1.IsAudible(eps) {
		return true
	}
	if f.fourPole && (f.left2.IsAudible(eps) || f.right2.IsAudible(eps)) {
		return true
	}
	return false
}
