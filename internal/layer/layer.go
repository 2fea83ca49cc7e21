// Package layer implements the SFZ opcode record for a region/group/master/
// global scope, its parent-first inheritance pass, and the derived ("eff_")
// fields a voice needs at note-on (spec.md §3, §4.3).
//
// Grounded on original_source/sampler_layer.h's SAMPLER_FIXED_FIELDS macro
// (ported field-by-field into Data) and sampler_layer.c's
// sampler_layer_data_finalize / sampler_layer_data_getdefaults (the
// has-bit-gated inheritance walk and derived-field computation, ported as
// Finalize below). The C source tracks "has_<field>" via one generated bool
// per field; Go expresses the same bitset as a fixed-size [Field]bool array
// indexed by named Field constants, rather than reproducing the macro.
package layer

import (
	"math"

	"github.com/cbegin/calfbox/internal/envelope"
	"github.com/cbegin/calfbox/internal/lfo"
)

// LoopMode mirrors enum sample_loop_mode.
type LoopMode int

const (
	LoopUnknown LoopMode = iota
	LoopNone
	LoopOneShot
	LoopContinuous
	LoopSustain
	LoopOneShotChokeable
)

// FilterType mirrors enum sampler_filter_type.
type FilterType int

const (
	FilterUnknown FilterType = iota
	FilterLP12
	FilterHP12
	FilterBP6
	FilterLP24
	FilterHP24
	FilterBP12
	FilterLP6
	FilterHP6
)

// OffMode mirrors enum som_*: whether an exclusive-group choke is a fast
// (stage-15 envelope jump) or normal release.
type OffMode int

const (
	OffModeUnknown OffMode = iota
	OffModeFast
	OffModeNormal
)

// ModSrc/ModDest mirror sampler_modsrc/sampler_moddest.
type ModSrc int
type ModDest int

const (
	ModSrcNone ModSrc = iota
	ModSrcChannelAftertouch
	ModSrcVelocity
	ModSrcPolyAftertouch
	ModSrcPitchWheel
	ModSrcPitchEnv
	ModSrcFilterEnv
	ModSrcAmpEnv
	ModSrcPitchLFO
	ModSrcFilterLFO
	ModSrcAmpLFO
	ModSrcCC // source is an arbitrary MIDI CC number, carried in Modulation.CC
)

const (
	ModDestGain ModDest = iota
	ModDestPitch
	ModDestCutoff
	ModDestResonance
)

// Modulation is one CC-or-source-driven modulation routing entry
// (sampler_modulation): src (optionally combined with src2) -> dest, scaled
// by amount, with flags selecting curve shape.
type Modulation struct {
	Src, Src2 ModSrc
	CC        int // MIDI CC number when Src selects smsrc_cc0+n
	Dest      ModDest
	Amount    float64
	Flags     int
	HasValue  bool // authored locally vs propagated from parent as a default
}

// NoteInitFunc selects one of the fixed note-init behaviors
// (sampler_noteinitfunc): applied once at voice start, not every block.
type NoteInitFunc int

const (
	NIFVelToPitch NoteInitFunc = iota
	NIFVelToEnv
	NIFCCToDelay
	NIFAddRandom
)

// Variant values for NIFAddRandom: which per-voice shift the random jitter
// is added to (pitch_random/amp_random/fil_random opcodes).
const (
	NIFRandomPitch = iota
	NIFRandomGain
	NIFRandomCutoff
)

// NIF is one note-init-function invocation with its parameter.
type NIF struct {
	Func     NoteInitFunc
	Variant  int
	Param    float64
	HasValue bool
}

// Field enumerates every authorable opcode this layer tracks, used to index
// the has-bit array that drives parent-first inheritance.
type Field int

const (
	FSampleOffset Field = iota
	FSampleOffsetRandom
	FLoopStart
	FLoopEnd
	FSampleEnd
	FLoopEvolve
	FLoopOverlap
	FVolume
	FPan
	FTune
	FTranspose
	FMinChan
	FMaxChan
	FLoKey
	FHiKey
	FLoRand
	FHiRand
	FPitchKeycenter
	FPitchKeytrack
	FFilKeycenter
	FFilKeytrack
	FFilVeltrack
	FAmpVeltrack
	FMinVel
	FMaxVel
	FVelcurveQuadratic
	FCutoff
	FResonance
	FSwLoKey
	FSwHiKey
	FSwLast
	FSwDown
	FSwUp
	FSwPrevious
	FSeqPos
	FSeqLength
	FSend1Bus
	FSend2Bus
	FSend1Gain
	FSend2Gain
	FDelay
	FDelayRandom
	FOutput
	FExclusiveGroup
	FOffBy
	FSample
	FLoopMode
	FCount
	FFilterType
	FOffMode
	FAmpEnv
	FFilterEnv
	FPitchEnv
	FAmpLFO
	FFilterLFO
	FPitchLFO
	FRtDecay
	FBendUp
	FBendDown
	FBendStep
	FOnCCNum
	FOnLoCC
	FOnHiCC
	FXfinLoKey
	FXfinHiKey
	FXfoutLoKey
	FXfoutHiKey
	FXfinLoVel
	FXfinHiVel
	FXfoutLoVel
	FXfoutHiVel
	FXfKeyPower
	FXfVelPower
	FEq1Freq
	FEq1Bw
	FEq1Gain
	FEq1Vel2Freq
	FEq1Vel2Gain
	FEq2Freq
	FEq2Bw
	FEq2Gain
	FEq2Vel2Freq
	FEq2Vel2Gain
	FEq3Freq
	FEq3Bw
	FEq3Gain
	FEq3Vel2Freq
	FEq3Vel2Gain
	FTonectlFreq
	FTonectl
	fieldCount
)

// EqBand is one parametric EQ band's opcode group (eqN_freq|bw|gain|
// vel2freq|vel2gain), mirroring struct sampler_layer's eq1/eq2/eq3 fields.
type EqBand struct {
	Freq, Bw, Gain       float64
	Vel2Freq, Vel2Gain   float64
	EffectiveFreq        float64 // freq if authored, else a band-specific default (see Finalize)
}

// NoLoop is the SAMPLER_NO_LOOP sentinel (uint32 -1).
const NoLoop = ^uint32(0)

// Data is the flat opcode record for one scope (global/master/group/region).
// Scalar fields hold authored values (or inherited/defaulted ones after
// Finalize); Eff* fields hold values derived during finalization.
type Data struct {
	has [fieldCount]bool

	SampleOffset       uint32
	SampleOffsetRandom uint32
	LoopStart          uint32
	LoopEnd            uint32
	SampleEnd          uint32
	LoopEvolve         uint32
	LoopOverlap        uint32
	Count              int // loop repeat count; 0 = unlimited (count= unauthored)

	Volume           float64 // dB
	VolumeLinearized float64
	Pan              float64
	Tune             float64
	Transpose        int

	MinChan, MaxChan int
	LoKey, HiKey     int
	LoRand, HiRand   float64 // [0,1) range-matched against a per-note-on draw
	PitchKeycenter   int
	PitchKeytrack    int
	FilKeycenter     int
	FilKeytrack      int
	FilVeltrack      int
	AmpVeltrack      float64 // percent, scales eff_velcurve's contribution to gain_fromvel
	MinVel, MaxVel   int

	VelcurveQuadratic int // -1 unset, 0 linear, 1 quadratic
	Velcurve          [128]float64
	EffVelcurve       [128]float64

	Cutoff            float64
	Resonance         float64
	ResonanceLinearized float64
	ResonanceScaled   float64
	LogCutoff         float64

	SwLoKey, SwHiKey               int
	SwLast, SwDown, SwUp, SwPrevious int
	EffUseKeyswitch                bool

	SeqPos, SeqLength int

	// OnCCNum, when >= 0, makes this region CC-triggered (on_loccN/on_hiccN)
	// instead of note-triggered: it fires when CC OnCCNum's value crosses
	// into [OnLoCC,OnHiCC] from outside that window.
	OnCCNum        int
	OnLoCC, OnHiCC int

	// Crossfade ranges over key and velocity (xfin_lokey/xfin_hikey,
	// xfout_lokey/xfout_hikey, and their _lovel/_hivel counterparts): a
	// region's gain ramps in over [XfinLoKey,XfinHiKey] and ramps out over
	// [XfoutLoKey,XfoutHiKey], selected by xf_keycurve/xf_velcurve ("gain"
	// for a linear ramp, "power" for an equal-power sin/cos ramp).
	XfinLoKey, XfinHiKey   int
	XfoutLoKey, XfoutHiKey int
	XfinLoVel, XfinHiVel   int
	XfoutLoVel, XfoutHiVel int
	XfKeyPower, XfVelPower bool

	Send1Bus, Send2Bus   int
	Send1Gain, Send2Gain float64

	Delay, DelayRandom float64
	RtDecay            float64 // dB/sec gain falloff for release-triggered layers, see voice_process

	// BendUp/BendDown (cents) scale the raw pitch wheel depending on its
	// sign; BendStep quantizes the resulting cents value, truncating
	// toward zero. Mirrors sampler_voice_process's pitchwheel handling,
	// not a channel-wide RPN bend range (see midi.Channel.PitchBend's
	// doc comment).
	BendUp, BendDown int
	BendStep         int
	Output             int
	ExclusiveGroup     int
	OffBy              int
	OffMode            OffMode

	Sample        string
	SampleChanged bool

	LoopMode    LoopMode
	EffLoopMode LoopMode
	FilterType  FilterType

	AmpEnv, FilterEnv, PitchEnv             envelope.DAHDSR
	AmpEnvShape, FilterEnvShape, PitchEnvShape envelope.Shape

	AmpLFO, FilterLFO, PitchLFO lfo.Params

	Modulations []Modulation
	NIFs        []NIF

	EffFreq     float64 // sample rate of the bound waveform, or 44100
	EffWaveformBound bool

	// LastKey and CurrentSeqPosition are per-region runtime state, not
	// authored opcodes: LastKey remembers the most recent note that
	// satisfied sw_lokey..sw_hikey (for sw_last matching), and
	// CurrentSeqPosition drives round-robin selection across seq_length
	// candidates, mirroring struct sampler_layer's last_key and
	// current_seq_position fields. Finalize (re)seeds it from SeqPos,
	// mirroring sampler_layer_reset_switches's current_seq_position =
	// data.seq_position.
	LastKey            int
	CurrentSeqPosition int

	// Eq holds the three parametric EQ bands (eq1_*/eq2_*/eq3_*); EqBitmask
	// is the derived per-band active mask computed by Finalize, mirroring
	// sampler_layer_data_finalize's l->eq_bitmask (bit N set when band N+1's
	// gain or vel2gain opcode is non-zero).
	Eq        [3]EqBand
	EqBitmask int

	// TonectlFreq/Tonectl are the one-pole tone-control filter's corner
	// frequency (Hz) and static shelf gain (dB); the filter is bypassed
	// entirely when TonectlFreq is 0, matching sampler_voice_process's
	// `if (l->tonectl_freq != 0)` guard.
	TonectlFreq float64
	Tonectl     float64

	// Key, when set (0..127), locks LoKey/HiKey/PitchKeycenter together,
	// matching the SFZ "key=" opcode shorthand.
	Key int
}

// NewData returns a Data with every field at the engine's built-in default,
// matching sampler_layer_new's non-group-child initialization branch.
func NewData() *Data {
	d := &Data{
		LoopStart:  NoLoop,
		LoopEnd:    NoLoop,
		SampleEnd:  NoLoop,
		LoopEvolve: NoLoop,
		LoopOverlap: NoLoop,
		// Only the amp envelope defaults sustain to full level when
		// ampeg_sustain is left unauthored; the filter and pitch envelopes
		// default to 0 since they're additive modulation depths, not a
		// gain stage. Matches cbox_envelope_init_dahdsr's is_amp_env branch.
		AmpEnv:     envelope.DAHDSR{Sustain: 100},
		MinChan:    1,
		MaxChan:    16,
		HiKey:      127,
		HiRand:     1,
		PitchKeycenter: 60,
		PitchKeytrack:  100,
		FilKeycenter:   60,
		AmpVeltrack:    100,
		MaxVel:         127,
		VelcurveQuadratic: -1,
		Cutoff:     21000,
		Resonance:  0.707,
		SwHiKey:    127,
		SwLast:     -1,
		SwDown:     -1,
		SwUp:       -1,
		SwPrevious: -1,
		SeqPos:     1,
		SeqLength:  1,
		BendUp:     200,
		BendDown:   -200,
		BendStep:   1,
		OnCCNum:    -1,
		// Zero-width default windows mean fade-in is always fully open and
		// fade-out never engages, so an unauthored region's crossfade gain
		// factor is always 1.
		XfoutLoKey: 127,
		XfoutHiKey: 127,
		XfoutLoVel: 127,
		XfoutHiVel: 127,
		Send1Bus:   1,
		Send2Bus:   2,
		Key:        -1,
		EffFreq:    44100,
		LastKey: -1,
		Eq: [3]EqBand{
			{Bw: 1},
			{Bw: 1},
			{Bw: 1},
		},
	}
	for i := 1; i < 127; i++ {
		d.Velcurve[i] = -1
	}
	d.Velcurve[0] = 0
	d.Velcurve[127] = 1
	return d
}

// Set marks a field as authored at this scope, so Finalize won't let a
// parent's value overwrite it.
func (d *Data) Set(f Field) { d.has[f] = true }

// Has reports whether a field was authored at this scope.
func (d *Data) Has(f Field) bool { return d.has[f] }

// AddModulation records (or updates, if already present) a modulation
// routing, mirroring sampler_layer_data_set_modulation. propagatingDefault
// is true when called from Finalize to seed inherited-but-not-overridden
// parent modulations.
func (d *Data) AddModulation(src, src2 ModSrc, dest ModDest, amount float64, flags int, propagatingDefault bool) {
	for i := range d.Modulations {
		m := &d.Modulations[i]
		if m.Src == src && m.Src2 == src2 && m.Dest == dest {
			if propagatingDefault && m.HasValue {
				return
			}
			m.Amount = amount
			m.Flags = flags
			m.HasValue = !propagatingDefault
			return
		}
	}
	d.Modulations = append(d.Modulations, Modulation{Src: src, Src2: src2, Dest: dest, Amount: amount, Flags: flags, HasValue: !propagatingDefault})
}

// AddNIF records (or updates) a note-init-function, mirroring
// sampler_layer_data_add_nif.
func (d *Data) AddNIF(fn NoteInitFunc, variant int, param float64, propagatingDefault bool) {
	for i := range d.NIFs {
		n := &d.NIFs[i]
		if n.Func == fn && n.Variant == variant {
			if propagatingDefault && n.HasValue {
				return
			}
			n.Param = param
			n.HasValue = !propagatingDefault
			return
		}
	}
	d.NIFs = append(d.NIFs, NIF{Func: fn, Variant: variant, Param: param, HasValue: !propagatingDefault})
}

func db2gain(db float64) float64 {
	return math.Pow(10, db/20)
}

// InheritFrom copies parent's scalar opcode values and modulation/NIF lists
// into d wherever d has no locally authored value yet, mirroring the
// global->master->group->region cascade a fresh <master>/<group>/<region>
// level inherits from its enclosing level before its own opcodes are parsed.
// Callers (the sfz loader) must call this immediately after NewData, before
// applying any opcode for the new level, so later Set calls correctly take
// precedence over the copied-down defaults.
func (d *Data) InheritFrom(parent *Data) {
	d.inheritScalars(parent)
}

// inheritScalars copies every non-authored field from parent, per
// sampler_layer_data_getdefaults / PROC_FIELDS_CLONEPARENT.
func (d *Data) inheritScalars(parent *Data) {
	if parent == nil {
		return
	}
	cp := func(f Field, dst, src interface{}) {}
	_ = cp

	if !d.has[FSampleOffset] {
		d.SampleOffset = parent.SampleOffset
	}
	if !d.has[FSampleOffsetRandom] {
		d.SampleOffsetRandom = parent.SampleOffsetRandom
	}
	if !d.has[FLoopStart] {
		d.LoopStart = parent.LoopStart
	}
	if !d.has[FLoopEnd] {
		d.LoopEnd = parent.LoopEnd
	}
	if !d.has[FSampleEnd] {
		d.SampleEnd = parent.SampleEnd
	}
	if !d.has[FLoopEvolve] {
		d.LoopEvolve = parent.LoopEvolve
	}
	if !d.has[FLoopOverlap] {
		d.LoopOverlap = parent.LoopOverlap
	}
	if !d.has[FVolume] {
		d.Volume = parent.Volume
	}
	if !d.has[FPan] {
		d.Pan = parent.Pan
	}
	if !d.has[FTune] {
		d.Tune = parent.Tune
	}
	if !d.has[FTranspose] {
		d.Transpose = parent.Transpose
	}
	if !d.has[FMinChan] {
		d.MinChan = parent.MinChan
	}
	if !d.has[FMaxChan] {
		d.MaxChan = parent.MaxChan
	}
	if !d.has[FLoKey] {
		d.LoKey = parent.LoKey
	}
	if !d.has[FHiKey] {
		d.HiKey = parent.HiKey
	}
	if !d.has[FLoRand] {
		d.LoRand = parent.LoRand
	}
	if !d.has[FHiRand] {
		d.HiRand = parent.HiRand
	}
	if !d.has[FPitchKeycenter] {
		d.PitchKeycenter = parent.PitchKeycenter
	}
	if !d.has[FPitchKeytrack] {
		d.PitchKeytrack = parent.PitchKeytrack
	}
	if !d.has[FFilKeycenter] {
		d.FilKeycenter = parent.FilKeycenter
	}
	if !d.has[FFilKeytrack] {
		d.FilKeytrack = parent.FilKeytrack
	}
	if !d.has[FFilVeltrack] {
		d.FilVeltrack = parent.FilVeltrack
	}
	if !d.has[FAmpVeltrack] {
		d.AmpVeltrack = parent.AmpVeltrack
	}
	if !d.has[FMinVel] {
		d.MinVel = parent.MinVel
	}
	if !d.has[FMaxVel] {
		d.MaxVel = parent.MaxVel
	}
	if !d.has[FVelcurveQuadratic] {
		d.VelcurveQuadratic = parent.VelcurveQuadratic
	}
	if !d.has[FCutoff] {
		d.Cutoff = parent.Cutoff
	}
	if !d.has[FResonance] {
		d.Resonance = parent.Resonance
	}
	if !d.has[FSwLoKey] {
		d.SwLoKey = parent.SwLoKey
	}
	if !d.has[FSwHiKey] {
		d.SwHiKey = parent.SwHiKey
	}
	if !d.has[FSwLast] {
		d.SwLast = parent.SwLast
	}
	if !d.has[FSwDown] {
		d.SwDown = parent.SwDown
	}
	if !d.has[FSwUp] {
		d.SwUp = parent.SwUp
	}
	if !d.has[FSwPrevious] {
		d.SwPrevious = parent.SwPrevious
	}
	if !d.has[FSeqPos] {
		d.SeqPos = parent.SeqPos
	}
	if !d.has[FSeqLength] {
		d.SeqLength = parent.SeqLength
	}
	if !d.has[FBendUp] {
		d.BendUp = parent.BendUp
	}
	if !d.has[FBendDown] {
		d.BendDown = parent.BendDown
	}
	if !d.has[FBendStep] {
		d.BendStep = parent.BendStep
	}
	if !d.has[FOnCCNum] {
		d.OnCCNum = parent.OnCCNum
	}
	if !d.has[FOnLoCC] {
		d.OnLoCC = parent.OnLoCC
	}
	if !d.has[FOnHiCC] {
		d.OnHiCC = parent.OnHiCC
	}
	if !d.has[FXfinLoKey] {
		d.XfinLoKey = parent.XfinLoKey
	}
	if !d.has[FXfinHiKey] {
		d.XfinHiKey = parent.XfinHiKey
	}
	if !d.has[FXfoutLoKey] {
		d.XfoutLoKey = parent.XfoutLoKey
	}
	if !d.has[FXfoutHiKey] {
		d.XfoutHiKey = parent.XfoutHiKey
	}
	if !d.has[FXfinLoVel] {
		d.XfinLoVel = parent.XfinLoVel
	}
	if !d.has[FXfinHiVel] {
		d.XfinHiVel = parent.XfinHiVel
	}
	if !d.has[FXfoutLoVel] {
		d.XfoutLoVel = parent.XfoutLoVel
	}
	if !d.has[FXfoutHiVel] {
		d.XfoutHiVel = parent.XfoutHiVel
	}
	if !d.has[FXfKeyPower] {
		d.XfKeyPower = parent.XfKeyPower
	}
	if !d.has[FXfVelPower] {
		d.XfVelPower = parent.XfVelPower
	}
	if !d.has[FEq1Freq] {
		d.Eq[0].Freq = parent.Eq[0].Freq
	}
	if !d.has[FEq1Bw] {
		d.Eq[0].Bw = parent.Eq[0].Bw
	}
	if !d.has[FEq1Gain] {
		d.Eq[0].Gain = parent.Eq[0].Gain
	}
	if !d.has[FEq1Vel2Freq] {
		d.Eq[0].Vel2Freq = parent.Eq[0].Vel2Freq
	}
	if !d.has[FEq1Vel2Gain] {
		d.Eq[0].Vel2Gain = parent.Eq[0].Vel2Gain
	}
	if !d.has[FEq2Freq] {
		d.Eq[1].Freq = parent.Eq[1].Freq
	}
	if !d.has[FEq2Bw] {
		d.Eq[1].Bw = parent.Eq[1].Bw
	}
	if !d.has[FEq2Gain] {
		d.Eq[1].Gain = parent.Eq[1].Gain
	}
	if !d.has[FEq2Vel2Freq] {
		d.Eq[1].Vel2Freq = parent.Eq[1].Vel2Freq
	}
	if !d.has[FEq2Vel2Gain] {
		d.Eq[1].Vel2Gain = parent.Eq[1].Vel2Gain
	}
	if !d.has[FEq3Freq] {
		d.Eq[2].Freq = parent.Eq[2].Freq
	}
	if !d.has[FEq3Bw] {
		d.Eq[2].Bw = parent.Eq[2].Bw
	}
	if !d.has[FEq3Gain] {
		d.Eq[2].Gain = parent.Eq[2].Gain
	}
	if !d.has[FEq3Vel2Freq] {
		d.Eq[2].Vel2Freq = parent.Eq[2].Vel2Freq
	}
	if !d.has[FEq3Vel2Gain] {
		d.Eq[2].Vel2Gain = parent.Eq[2].Vel2Gain
	}
	if !d.has[FTonectlFreq] {
		d.TonectlFreq = parent.TonectlFreq
	}
	if !d.has[FTonectl] {
		d.Tonectl = parent.Tonectl
	}
	if !d.has[FSend1Bus] {
		d.Send1Bus = parent.Send1Bus
	}
	if !d.has[FSend2Bus] {
		d.Send2Bus = parent.Send2Bus
	}
	if !d.has[FSend1Gain] {
		d.Send1Gain = parent.Send1Gain
	}
	if !d.has[FSend2Gain] {
		d.Send2Gain = parent.Send2Gain
	}
	if !d.has[FDelay] {
		d.Delay = parent.Delay
	}
	if !d.has[FDelayRandom] {
		d.DelayRandom = parent.DelayRandom
	}
	if !d.has[FRtDecay] {
		d.RtDecay = parent.RtDecay
	}
	if !d.has[FOutput] {
		d.Output = parent.Output
	}
	if !d.has[FExclusiveGroup] {
		d.ExclusiveGroup = parent.ExclusiveGroup
	}
	if !d.has[FOffBy] {
		d.OffBy = parent.OffBy
	}
	if !d.has[FSample] && d.Sample != parent.Sample {
		d.Sample = parent.Sample
		d.SampleChanged = parent.SampleChanged
	}
	if !d.has[FLoopMode] {
		d.LoopMode = parent.LoopMode
	}
	if !d.has[FCount] {
		d.Count = parent.Count
	}
	if !d.has[FFilterType] {
		d.FilterType = parent.FilterType
	}
	if !d.has[FOffMode] {
		d.OffMode = parent.OffMode
	}
	if !d.has[FAmpEnv] {
		d.AmpEnv = parent.AmpEnv
	}
	if !d.has[FFilterEnv] {
		d.FilterEnv = parent.FilterEnv
	}
	if !d.has[FPitchEnv] {
		d.PitchEnv = parent.PitchEnv
	}
	if !d.has[FAmpLFO] {
		d.AmpLFO = parent.AmpLFO
	}
	if !d.has[FFilterLFO] {
		d.FilterLFO = parent.FilterLFO
	}
	if !d.has[FPitchLFO] {
		d.PitchLFO = parent.PitchLFO
	}

	for _, nif := range parent.NIFs {
		d.AddNIF(nif.Func, nif.Variant, nif.Param, true)
	}
	for _, m := range parent.Modulations {
		d.AddModulation(m.Src, m.Src2, m.Dest, m.Amount, m.Flags, true)
	}
}

// WaveformInfo is the subset of a loaded waveform's metadata Finalize needs
// to derive eff_freq/loop bounds without internal/layer importing
// internal/wavebank (avoiding an import cycle; internal/sampler supplies
// this at load time).
type WaveformInfo struct {
	SampleRate int
	Frames     uint32
	HasLoop    bool
	LoopStart  uint32
	LoopEnd    uint32
}

// Finalize runs the parent-first inheritance pass and computes every
// derived field, mirroring sampler_layer_data_finalize. wf is nil if no
// sample is bound yet (e.g. a <group> with no sample= opcode of its own).
func (d *Data) Finalize(parent *Data, sampleRate float64, wf *WaveformInfo) {
	d.inheritScalars(parent)

	d.VolumeLinearized = db2gain(d.Volume)
	d.ResonanceLinearized = db2gain(d.Resonance) // resonance is authored in dB in SFZ (e.g. "6" = +6dB peak)

	d.AmpEnvShape = envelope.BuildShape(d.AmpEnv, sampleRate)
	d.FilterEnvShape = envelope.BuildShape(d.FilterEnv, sampleRate)
	d.PitchEnvShape = envelope.BuildShape(d.PitchEnv, sampleRate)

	if wf != nil && wf.SampleRate > 0 {
		d.EffFreq = float64(wf.SampleRate)
	} else {
		d.EffFreq = 44100
	}

	d.EffLoopMode = d.LoopMode
	if d.LoopMode == LoopUnknown {
		if wf != nil && wf.HasLoop {
			d.EffLoopMode = LoopContinuous
		} else if wf != nil {
			if d.LoopEnd == NoLoop {
				d.EffLoopMode = LoopNone
			} else {
				d.EffLoopMode = LoopContinuous
			}
		}
	}

	if d.EffLoopMode == LoopOneShot || d.EffLoopMode == LoopNone || d.EffLoopMode == LoopOneShotChokeable {
		d.LoopStart = NoLoop
	}
	if (d.EffLoopMode == LoopContinuous || d.EffLoopMode == LoopSustain) && d.LoopStart == NoLoop {
		d.LoopStart = 0
	}
	if (d.EffLoopMode == LoopContinuous || d.EffLoopMode == LoopSustain) && d.LoopStart == 0 && wf != nil && wf.HasLoop {
		d.LoopStart = wf.LoopStart
	}
	if d.LoopEnd == NoLoop && wf != nil {
		if wf.HasLoop {
			d.LoopEnd = wf.LoopEnd
		} else {
			d.LoopEnd = wf.Frames
		}
	}

	if d.OffMode == OffModeUnknown {
		if d.OffBy != 0 {
			d.OffMode = OffModeFast
		} else {
			d.OffMode = OffModeNormal
		}
	}

	if d.VelcurveQuadratic == -1 {
		d.VelcurveQuadratic = 1
	}

	if d.Key >= 0 && d.Key <= 127 {
		d.LoKey = d.Key
		d.HiKey = d.Key
		d.PitchKeycenter = d.Key
	}

	start := 0
	for i := 1; i < 128; i++ {
		if d.Velcurve[i] == -1 {
			continue
		}
		sv := d.Velcurve[start]
		ev := d.Velcurve[i]
		for j := start; j <= i; j++ {
			if d.VelcurveQuadratic != 0 {
				num := float64((j - start) * (j - start))
				den := float64((i - start) * (i - start))
				d.EffVelcurve[j] = sv + (ev-sv)*num/den
			} else {
				d.EffVelcurve[j] = sv + (ev-sv)*float64(j-start)/float64(i-start)
			}
		}
		start = i
	}

	d.EffUseKeyswitch = d.SwDown != -1 || d.SwUp != -1 || d.SwLast != -1 || d.SwPrevious != -1

	d.CurrentSeqPosition = d.SeqPos

	if d.isFourPole() {
		d.ResonanceScaled = math.Sqrt(d.ResonanceLinearized/0.707) * 0.5
	} else {
		d.ResonanceScaled = d.ResonanceLinearized
	}
	if d.Cutoff < 20 {
		d.LogCutoff = -1
	} else {
		d.LogCutoff = math.Log2(d.Cutoff)
	}

	// Each band's effective center frequency defaults to a band-specific
	// constant (500/5000/50000Hz) when eqN_freq is left unauthored, per
	// sampler_layer.c's PROC_FIELDS_FINALISER_eq: effective_freq = freq ?
	// freq : 5 * 10^(1+index).
	for i := range d.Eq {
		if d.Eq[i].Freq != 0 {
			d.Eq[i].EffectiveFreq = d.Eq[i].Freq
		} else {
			d.Eq[i].EffectiveFreq = 5 * math.Pow(10, float64(2+i))
		}
	}
	d.EqBitmask = 0
	for i := range d.Eq {
		if d.Eq[i].Gain != 0 || d.Eq[i].Vel2Gain != 0 {
			d.EqBitmask |= 1 << uint(i)
		}
	}
}

func (d *Data) isFourPole() bool {
	return d.FilterType == FilterLP24 || d.FilterType == FilterHP24
}

// IsFourPole reports whether this region's filter cascades two RBJ sections,
// the gate internal/sampler uses to decide both the per-block resonance
// sqrt-scaling and how many times to run the biquad per channel.
func (d *Data) IsFourPole() bool { return d.isFourPole() }

// InKeyRange reports whether key falls within [LoKey, HiKey].
func (d *Data) InKeyRange(key int) bool {
	return key >= d.LoKey && key <= d.HiKey
}

// InVelRange reports whether velocity falls within [MinVel, MaxVel].
func (d *Data) InVelRange(vel int) bool {
	return vel >= d.MinVel && vel <= d.MaxVel
}

// PitchBendCents converts a channel's raw 14-bit pitch wheel value (-8192..
// 8191) into a cents offset using this region's bend_up/bend_down/bend_step,
// mirroring sampler_voice_process's pitchwheel handling: the wheel's sign
// selects bend_up or bend_down, the product is rescaled by the 14-bit range
// via the same rounding shift as the original, then bend_step quantizes the
// result by truncating toward zero (spec.md §9's resolved ambiguity).
func (d *Data) PitchBendCents(raw int) float64 {
	if raw == 0 {
		return 0
	}
	scale := d.BendUp
	if raw < 0 {
		scale = -d.BendDown
	}
	pw := raw * scale
	var cents int
	if pw < 0 {
		cents = pw >> 13
	} else {
		cents = (pw + 4096) >> 13
	}
	if d.BendStep > 1 {
		cents = (cents / d.BendStep) * d.BendStep
	}
	return float64(cents)
}

// CrossfadeGain returns the combined key/velocity crossfade factor for a
// voice starting at (key, vel): the product of the fade-in ramp and the
// fade-out ramp in each dimension. An unauthored region has zero-width
// fade-out windows pinned at the top of the range, so the factor is 1
// unless xfin_*/xfout_* were actually set.
func (d *Data) CrossfadeGain(key, vel int) float64 {
	return xfadeRamp(key, d.XfinLoKey, d.XfinHiKey, d.XfKeyPower, true) *
		xfadeRamp(key, d.XfoutLoKey, d.XfoutHiKey, d.XfKeyPower, false) *
		xfadeRamp(vel, d.XfinLoVel, d.XfinHiVel, d.XfVelPower, true) *
		xfadeRamp(vel, d.XfoutLoVel, d.XfoutHiVel, d.XfVelPower, false)
}

// xfadeRamp computes one fade-in (fadeIn=true) or fade-out ramp: 0/1 outside
// [lo,hi], linear (or, for the power curve, sin/cos equal-power) between.
// lo>=hi collapses the window to its boundary value.
func xfadeRamp(value, lo, hi int, power, fadeIn bool) float64 {
	if lo >= hi {
		if fadeIn {
			if value >= hi {
				return 1
			}
			return 0
		}
		if value <= lo {
			return 1
		}
		return 0
	}
	x := float64(value-lo) / float64(hi-lo)
	switch {
	case value <= lo:
		x = 0
	case value >= hi:
		x = 1
	}
	if fadeIn {
		if power {
			return math.Sin(x * math.Pi / 2)
		}
		return x
	}
	if power {
		return math.Cos(x * math.Pi / 2)
	}
	return 1 - x
}

// InChannelRange reports whether a 1-based MIDI channel falls within
// [MinChan, MaxChan].
func (d *Data) InChannelRange(chan1based int) bool {
	return chan1based >= d.MinChan && chan1based <= d.MaxChan
}
