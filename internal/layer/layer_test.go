package layer

import (
	"math"
	"testing"
)

func TestNewDataDefaults(t *testing.T) {
	d := NewData()
	if d.HiKey != 127 || d.LoKey != 0 {
		t.Fatalf("expected full key range by default, got [%d,%d]", d.LoKey, d.HiKey)
	}
	if d.MaxVel != 127 {
		t.Fatalf("expected max_vel=127 by default, got %d", d.MaxVel)
	}
	if d.LoopStart != NoLoop || d.LoopEnd != NoLoop {
		t.Fatalf("expected loop_start/loop_end unset by default")
	}
}

func TestFinalizeInheritsUnauthoredFields(t *testing.T) {
	parent := NewData()
	parent.Volume = -6
	parent.Set(FVolume)
	parent.Cutoff = 800
	parent.Set(FCutoff)
	parent.Finalize(nil, 44100, nil)

	child := NewData()
	child.Finalize(parent, 44100, nil)

	if child.Volume != -6 {
		t.Errorf("expected child to inherit volume -6, got %f", child.Volume)
	}
	if child.Cutoff != 800 {
		t.Errorf("expected child to inherit cutoff 800, got %f", child.Cutoff)
	}
}

func TestFinalizeDoesNotOverrideAuthoredField(t *testing.T) {
	parent := NewData()
	parent.Volume = -6
	parent.Set(FVolume)
	parent.Finalize(nil, 44100, nil)

	child := NewData()
	child.Volume = -3
	child.Set(FVolume)
	child.Finalize(parent, 44100, nil)

	if child.Volume != -3 {
		t.Errorf("authored child volume should win over parent, got %f", child.Volume)
	}
}

func TestFinalizeLinearizesVolume(t *testing.T) {
	d := NewData()
	d.Volume = 0
	d.Finalize(nil, 44100, nil)
	if d.VolumeLinearized < 0.999 || d.VolumeLinearized > 1.001 {
		t.Errorf("0dB should linearize to ~1.0 gain, got %f", d.VolumeLinearized)
	}
}

func TestFinalizeResolvesLoopFromWaveform(t *testing.T) {
	d := NewData()
	wf := &WaveformInfo{SampleRate: 48000, Frames: 10000, HasLoop: true, LoopStart: 100, LoopEnd: 9000}
	d.Finalize(nil, 44100, wf)

	if d.EffFreq != 48000 {
		t.Errorf("expected eff_freq from waveform sample rate, got %f", d.EffFreq)
	}
	if d.EffLoopMode != LoopContinuous {
		t.Errorf("expected loop_continuous when waveform has_loop, got %v", d.EffLoopMode)
	}
	if d.LoopStart != 100 || d.LoopEnd != 9000 {
		t.Errorf("expected loop bounds taken from waveform, got [%d,%d]", d.LoopStart, d.LoopEnd)
	}
}

func TestFinalizeKeyOpcodeLocksRanges(t *testing.T) {
	d := NewData()
	d.Key = 64
	d.Finalize(nil, 44100, nil)
	if d.LoKey != 64 || d.HiKey != 64 || d.PitchKeycenter != 64 {
		t.Errorf("key=64 should lock lokey/hikey/pitch_keycenter to 64, got lo=%d hi=%d pc=%d", d.LoKey, d.HiKey, d.PitchKeycenter)
	}
}

func TestFinalizeVelcurveQuadraticInterpolation(t *testing.T) {
	d := NewData()
	d.Velcurve[0] = 0
	d.Velcurve[127] = 1
	d.Finalize(nil, 44100, nil)

	if d.EffVelcurve[0] != 0 {
		t.Errorf("velcurve[0] should be 0, got %f", d.EffVelcurve[0])
	}
	if d.EffVelcurve[127] != 1 {
		t.Errorf("velcurve[127] should be 1, got %f", d.EffVelcurve[127])
	}
	mid := d.EffVelcurve[64]
	if mid <= 0 || mid >= 1 {
		t.Errorf("velcurve midpoint should be strictly between 0 and 1, got %f", mid)
	}
}

func TestFinalizeOffModeDefaultsFromOffBy(t *testing.T) {
	d := NewData()
	d.OffBy = 5
	d.Finalize(nil, 44100, nil)
	if d.OffMode != OffModeFast {
		t.Errorf("off_by != 0 should default off_mode to fast, got %v", d.OffMode)
	}

	d2 := NewData()
	d2.Finalize(nil, 44100, nil)
	if d2.OffMode != OffModeNormal {
		t.Errorf("off_by == 0 should default off_mode to normal, got %v", d2.OffMode)
	}
}

func TestFinalizeComputesEqBitmaskAndEffectiveFreq(t *testing.T) {
	d := NewData()
	d.Eq[1].Gain = 3
	d.Finalize(nil, 44100, nil)

	if d.EqBitmask != 1<<1 {
		t.Errorf("expected only band 2 active in the bitmask, got %b", d.EqBitmask)
	}
	if d.Eq[0].EffectiveFreq != 500 || d.Eq[1].EffectiveFreq != 5000 || d.Eq[2].EffectiveFreq != 50000 {
		t.Errorf("unauthored eqN_freq should default to 500/5000/50000, got %v/%v/%v",
			d.Eq[0].EffectiveFreq, d.Eq[1].EffectiveFreq, d.Eq[2].EffectiveFreq)
	}

	d2 := NewData()
	d2.Eq[0].Vel2Gain = 6
	d2.Eq[2].Freq = 12000
	d2.Finalize(nil, 44100, nil)
	if d2.EqBitmask != 1<<0 {
		t.Errorf("vel2gain alone should activate a band, got bitmask %b", d2.EqBitmask)
	}
	if d2.Eq[2].EffectiveFreq != 12000 {
		t.Errorf("authored eq3_freq should override the default, got %v", d2.Eq[2].EffectiveFreq)
	}
}

func TestModulationDefaultsDoNotOverrideAuthoredValue(t *testing.T) {
	d := NewData()
	d.AddModulation(ModSrcVelocity, ModSrcNone, ModDestGain, 1.0, 0, false)
	d.AddModulation(ModSrcVelocity, ModSrcNone, ModDestGain, 0.5, 0, true)

	if len(d.Modulations) != 1 {
		t.Fatalf("expected modulation de-duplication by (src,src2,dest), got %d entries", len(d.Modulations))
	}
	if d.Modulations[0].Amount != 1.0 {
		t.Errorf("authored amount should survive a propagating-default call, got %f", d.Modulations[0].Amount)
	}
}

func TestInRangeHelpers(t *testing.T) {
	d := NewData()
	d.LoKey, d.HiKey = 36, 84
	d.MinVel, d.MaxVel = 1, 100
	d.MinChan, d.MaxChan = 1, 1

	if !d.InKeyRange(60) || d.InKeyRange(100) {
		t.Error("InKeyRange boundary check failed")
	}
	if !d.InVelRange(64) || d.InVelRange(127) {
		t.Error("InVelRange boundary check failed")
	}
	if !d.InChannelRange(1) || d.InChannelRange(2) {
		t.Error("InChannelRange boundary check failed")
	}
}

func TestCrossfadeGainLinearCurveSumsToOne(t *testing.T) {
	a := NewData()
	a.XfoutLoVel, a.XfoutHiVel = 60, 80
	b := NewData()
	b.XfinLoVel, b.XfinHiVel = 60, 80

	ga := a.CrossfadeGain(60, 70)
	gb := b.CrossfadeGain(60, 70)
	if math.Abs((ga+gb)-1) > 1e-9 {
		t.Fatalf("linear crossfade should sum to 1 at vel 70, got %f+%f=%f", ga, gb, ga+gb)
	}
}

func TestCrossfadeGainPowerCurveIsConstantPower(t *testing.T) {
	a := NewData()
	a.XfoutLoVel, a.XfoutHiVel = 60, 80
	a.XfVelPower = true
	b := NewData()
	b.XfinLoVel, b.XfinHiVel = 60, 80
	b.XfVelPower = true

	ga := a.CrossfadeGain(60, 70)
	gb := b.CrossfadeGain(60, 70)
	if sq := ga*ga + gb*gb; math.Abs(sq-1) > 1e-9 {
		t.Fatalf("power crossfade should be constant-power (squares sum to 1) at vel 70, got %f", sq)
	}
	if ga+gb <= 1 {
		t.Fatalf("power curve factors should sum to more than 1 mid-crossfade, got %f", ga+gb)
	}
}

func TestCrossfadeGainDefaultsToOneOutsideAnyWindow(t *testing.T) {
	d := NewData()
	if g := d.CrossfadeGain(60, 100); g != 1 {
		t.Fatalf("unauthored crossfade opcodes should never attenuate, got %f", g)
	}
}

func TestPitchBendCentsZeroAtCenter(t *testing.T) {
	d := NewData()
	if c := d.PitchBendCents(0); c != 0 {
		t.Fatalf("expected centered wheel to produce 0 cents, got %f", c)
	}
}

func TestPitchBendCentsUsesBendUpForPositiveWheel(t *testing.T) {
	d := NewData()
	d.BendUp = 200
	d.BendDown = -200
	d.BendStep = 1
	if c := d.PitchBendCents(8191); c < 199 || c > 200 {
		t.Fatalf("expected near-full-scale positive bend to approach bend_up (200), got %f", c)
	}
}

func TestPitchBendCentsUsesBendDownForNegativeWheel(t *testing.T) {
	d := NewData()
	d.BendUp = 200
	d.BendDown = -400
	d.BendStep = 1
	if c := d.PitchBendCents(-8192); c > -399 || c < -400 {
		t.Fatalf("expected near-full-scale negative bend to approach bend_down (-400), got %f", c)
	}
}

func TestPitchBendCentsQuantizesByBendStep(t *testing.T) {
	d := NewData()
	d.BendUp = 1200
	d.BendDown = -1200
	d.BendStep = 100
	c := d.PitchBendCents(4096)
	if math.Mod(c, 100) != 0 {
		t.Fatalf("expected bend_step=100 to quantize cents to a multiple of 100, got %f", c)
	}
}
