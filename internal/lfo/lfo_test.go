package lfo

import (
	"math"
	"testing"
)

func TestLFOTriangleBasicShape(t *testing.T) {
	l := &LFO{}
	l.Init(Params{FreqHz: 1.0, Waveform: WaveTriangle}, 100)

	sr := 100.0
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = l.Sample(sr, 1)
	}

	if math.Abs(samples[0]-(-1.0)) > 0.05 {
		t.Errorf("triangle at phase 0: got %f, want -1.0", samples[0])
	}
	if math.Abs(samples[25]) > 0.05 {
		t.Errorf("triangle at phase 0.25: got %f, want ~0", samples[25])
	}
	if math.Abs(samples[50]-1.0) > 0.05 {
		t.Errorf("triangle at phase 0.5: got %f, want 1.0", samples[50])
	}
}

func TestLFOSquareShape(t *testing.T) {
	l := &LFO{}
	l.Init(Params{FreqHz: 1.0, Waveform: WaveSquare}, 100)

	sr := 100.0
	v := l.Sample(sr, 1)
	if math.Abs(v-1.0) > 0.01 {
		t.Errorf("square first half: got %f, want 1.0", v)
	}
	for i := 1; i < 50; i++ {
		l.Sample(sr, 1)
	}
	v = l.Sample(sr, 1)
	if math.Abs(v-(-1.0)) > 0.01 {
		t.Errorf("square second half: got %f, want -1.0", v)
	}
}

func TestLFOSawShapes(t *testing.T) {
	up := &LFO{}
	up.Init(Params{FreqHz: 1.0, Waveform: WaveSawUp}, 100)
	if v := up.Sample(100, 1); math.Abs(v-(-1.0)) > 0.05 {
		t.Errorf("saw-up at phase 0: got %f, want -1.0", v)
	}

	down := &LFO{}
	down.Init(Params{FreqHz: 1.0, Waveform: WaveSawDown}, 100)
	if v := down.Sample(100, 1); math.Abs(v-1.0) > 0.05 {
		t.Errorf("saw-down at phase 0: got %f, want 1.0", v)
	}
}

func TestLFOZeroRateIsInactive(t *testing.T) {
	l := &LFO{}
	l.Init(Params{FreqHz: 0, Waveform: WaveTriangle}, 44100)

	if l.Active() {
		t.Error("zero-rate LFO should be inactive")
	}
	if v := l.Sample(44100, 64); v != 0 {
		t.Errorf("inactive LFO should sample 0, got %f", v)
	}
}

func TestLFODelayGatesOutput(t *testing.T) {
	l := &LFO{}
	l.Init(Params{FreqHz: 5.0, DelaySeconds: 0.01, Waveform: WaveSquare}, 1000)

	// delay = 10 samples; first block of 10 frames should stay gated at 0.
	if v := l.Sample(1000, 10); v != 0 {
		t.Errorf("expected 0 during delay, got %f", v)
	}
	if v := l.Sample(1000, 1); v == 0 {
		t.Errorf("expected non-zero output once delay elapses")
	}
}

func TestLFOFadeRampsInGradually(t *testing.T) {
	l := &LFO{}
	l.Init(Params{FreqHz: 5.0, FadeSeconds: 0.1, Waveform: WaveSquare}, 1000)

	first := l.Sample(1000, 1)
	for i := 0; i < 98; i++ {
		l.Sample(1000, 1)
	}
	late := l.Sample(1000, 1)
	if math.Abs(first) >= math.Abs(late) {
		t.Errorf("fade-in should grow toward full amplitude: first=%f late=%f", first, late)
	}
}

func TestLFOActive(t *testing.T) {
	l := &LFO{}
	l.Init(Params{FreqHz: 0}, 44100)
	if l.Active() {
		t.Error("zero-rate LFO should not be active")
	}
	l.Init(Params{FreqHz: 5.0}, 44100)
	if !l.Active() {
		t.Error("configured LFO should be active")
	}
}

func TestLFOSampleHoldProducesBoundedValues(t *testing.T) {
	l := &LFO{}
	l.Init(Params{FreqHz: 10.0, Waveform: WaveSampleHold}, 1000)

	for i := 0; i < 200; i++ {
		v := l.Sample(1000, 1)
		if math.Abs(v) > 1.0 {
			t.Errorf("sample-and-hold value exceeds [-1,1]: %f", v)
		}
	}
}
