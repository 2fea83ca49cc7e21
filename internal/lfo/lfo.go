// Package lfo implements the per-voice low-frequency oscillators used by
// the sampler's amp/filter/pitch modulation slots (spec.md §3, §4.6).
//
// Adapted from cbegin-mmlfm-go's internal/lfo/lfo.go: the block-rate-held
// sample loop and Set/Sample/Active/Reset shape are kept, extended with
// delay/fade counters (in samples) and the richer SFZ waveform set.
package lfo

import "math"

// Waveform selects the oscillator shape. S&H re-samples its held value at
// each half-period crossing, per spec.md §4.6.
type Waveform int

const (
	WaveTriangle Waveform = iota
	WaveSine
	WaveSquare
	WaveSquare50
	WaveSquare25
	WaveSquare12
	WaveSawUp
	WaveSawDown
	WaveSampleHold
)

// Params configures an LFO instance, mirroring the SFZ *_lfo_* opcode
// group: {freq Hz, delay s, fade s, waveform selector, initial phase}.
type Params struct {
	FreqHz       float64
	DelaySeconds float64
	FadeSeconds  float64
	Waveform     Waveform
	InitialPhase float64 // 0..1
}

// LFO is a block-rate oscillator: Sample is called once per audio block
// and the returned value is held constant across the frames in that
// block (spec.md §4.6 item 2).
type LFO struct {
	freqHz   float64
	waveform Waveform
	phase    float64 // [0,1)
	delay    int      // samples remaining before oscillation starts
	fade     int      // total fade length in samples
	fadeLeft int      // samples remaining in fade-in
	randVal  float64
	lastHalf bool // which half-cycle we were in, for S&H resampling
	active   bool
}

// Init configures the LFO for a fresh voice, converting delay/fade from
// seconds to samples at sampleRate.
func (l *LFO) Init(p Params, sampleRate float64) {
	l.freqHz = p.FreqHz
	l.waveform = p.Waveform
	l.phase = p.InitialPhase
	if sampleRate <= 0 {
		sampleRate = 1
	}
	l.delay = int(p.DelaySeconds * sampleRate)
	l.fade = int(p.FadeSeconds * sampleRate)
	l.fadeLeft = l.fade
	l.randVal = 0
	l.lastHalf = l.phase >= 0.5
	l.active = p.FreqHz != 0
}

// Active reports whether the LFO has a non-zero rate and should be run.
func (l *LFO) Active() bool {
	return l.active
}

// Reset zeros phase, the held random value and the delay counter, and
// re-arms the fade-in counter to its full length (used when the owning LFO
// source is entirely disabled for a layer).
func (l *LFO) Reset() {
	l.phase = 0
	l.randVal = 0
	l.delay = 0
	l.fadeLeft = l.fade
}

// Sample advances the LFO by one block (blockFrames samples) and returns
// its current value in [-1, 1], pre-fade-and-delay gated.
func (l *LFO) Sample(sampleRate float64, blockFrames int) float64 {
	if !l.active || sampleRate <= 0 {
		return 0
	}
	if l.delay > 0 {
		l.delay -= blockFrames
		if l.delay < 0 {
			l.delay = 0
		}
		return 0
	}

	val := l.waveformValue()

	delta := l.freqHz / sampleRate * float64(blockFrames)
	l.phase += delta
	for l.phase >= 1.0 {
		l.phase -= 1.0
	}
	// Detect half-cycle crossings for S&H, accounting for possible
	// multiple wraps within one block at very high LFO rates.
	halfNow := l.phase >= 0.5
	crossedHalf := delta >= 0.5 || halfNow != l.lastHalf
	l.lastHalf = halfNow

	if l.waveform == WaveSampleHold && crossedHalf {
		l.randVal = pseudoRandom(l.randVal, l.phase)
		val = l.randVal
	}

	fadeMul := 1.0
	if l.fade > 0 && l.fadeLeft > 0 {
		fadeMul = 1.0 - float64(l.fadeLeft)/float64(l.fade)
		l.fadeLeft -= blockFrames
		if l.fadeLeft < 0 {
			l.fadeLeft = 0
		}
	}
	return val * fadeMul
}

func (l *LFO) waveformValue() float64 {
	p := l.phase
	switch l.waveform {
	case WaveSine:
		return math.Sin(2 * math.Pi * p)
	case WaveSquare, WaveSquare50:
		if p < 0.5 {
			return 1
		}
		return -1
	case WaveSquare25:
		if p < 0.25 {
			return 1
		}
		return -1
	case WaveSquare12:
		if p < 0.125 {
			return 1
		}
		return -1
	case WaveSawUp:
		return 2*p - 1
	case WaveSawDown:
		return 1 - 2*p
	case WaveSampleHold:
		return l.randVal
	default: // WaveTriangle
		if p < 0.5 {
			return 4*p - 1
		}
		return 3 - 4*p
	}
}

// pseudoRandom produces a deterministic, reproducible sequence (no shared
// math/rand state, keeping the RT path allocation- and lock-free).
func pseudoRandom(prev, phase float64) float64 {
	v := math.Sin(phase*12345.6789 + prev*67890.1234)
	v -= math.Floor(v)
	return v*2 - 1
}
