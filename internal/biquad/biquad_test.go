package biquad

import (
	"math"
	"testing"
)

func TestLowpassAttenuatesHighFrequency(t *testing.T) {
	const sr = 44100.0
	var c Coeffs
	SetLowpassRBJ(&c, 1000, 0.707, sr)

	var s State
	// Feed a 10kHz tone through the filter; a 1kHz lowpass should
	// attenuate it well below unity once settled.
	var maxOut float64
	for i := 0; i < 2000; i++ {
		in := math.Sin(2 * math.Pi * 10000 * float64(i) / sr)
		out := s.Process(&c, in)
		if i > 1000 {
			if a := math.Abs(out); a > maxOut {
				maxOut = a
			}
		}
	}
	if maxOut > 0.5 {
		t.Errorf("10kHz tone through 1kHz lowpass should be well attenuated, got peak %f", maxOut)
	}
}

func TestHighpassPassesHighFrequency(t *testing.T) {
	const sr = 44100.0
	var c Coeffs
	SetHighpassRBJ(&c, 100, 0.707, sr)

	var s State
	var maxOut float64
	for i := 0; i < 2000; i++ {
		in := math.Sin(2 * math.Pi * 8000 * float64(i) / sr)
		out := s.Process(&c, in)
		if i > 1000 {
			if a := math.Abs(out); a > maxOut {
				maxOut = a
			}
		}
	}
	if maxOut < 0.5 {
		t.Errorf("8kHz tone through 100Hz highpass should pass near unity, got peak %f", maxOut)
	}
}

func TestFilterBypassIsIdentity(t *testing.T) {
	f := &Filter{Type: TypeBypass}
	l, r := f.Process(0.5, -0.25)
	if l != 0.5 || r != -0.25 {
		t.Errorf("bypass filter should pass samples unchanged, got %f %f", l, r)
	}
}

func TestFilterResetClearsState(t *testing.T) {
	f := &Filter{Type: TypeLowpass12}
	f.SetParams(1000, 0.707, 44100)
	for i := 0; i < 100; i++ {
		f.Process(1, 1)
	}
	if !f.IsAudible(1.0 / 65536.0) {
		t.Fatal("expected filter to carry a tail after sustained input")
	}
	f.Reset()
	if f.IsAudible(1.0 / 65536.0) {
		t.Error("expected filter tail to be cleared after Reset")
	}
}

func TestFourPoleCascadesTwoSections(t *testing.T) {
	f := &Filter{Type: TypeLowpass24}
	f.SetParams(500, 1.0, 44100)
	l, r := f.Process(1, 1)
	if math.IsNaN(l) || math.IsNaN(r) {
		t.Fatal("four-pole cascade produced NaN")
	}
	if !f.fourPole {
		t.Error("TypeLowpass24 should set fourPole")
	}
}

func TestIsAudibleEventuallyFalseAfterImpulse(t *testing.T) {
	f := &Filter{Type: TypeLowpass12}
	f.SetParams(1000, 0.707, 44100)
	f.Process(1, 1)
	for i := 0; i < 100000; i++ {
		f.Process(0, 0)
	}
	if f.IsAudible(1.0 / 65536.0) {
		t.Error("filter tail from a single impulse should decay below eps given enough silence")
	}
}
