package sampler

import (
	"math"
	"sync/atomic"

	"github.com/cbegin/calfbox/internal/biquad"
	"github.com/cbegin/calfbox/internal/cmdqueue"
	"github.com/cbegin/calfbox/internal/effects"
	"github.com/cbegin/calfbox/internal/envelope"
	"github.com/cbegin/calfbox/internal/layer"
	"github.com/cbegin/calfbox/internal/midi"
	"github.com/cbegin/calfbox/internal/rll"
	"github.com/cbegin/calfbox/internal/wavebank"
)

// Engine is a fixed-size, 16-channel voice arena driving a flat []Voice
// scan every block, grounded on sampler.c's sampler_process_block /
// sampler_start_note / sampler_steal_voice and structured the way
// cbegin-mmlfm-go's internal/wavetable.Engine lays out its own voice
// array (no intrusive linked list, plain linear scans).
type Engine struct {
	sampleRate int
	maxVoices  int

	voices [MaxVoices]Voice

	channels [16]*midi.Channel
	handlers [16]*channelHandler
	programs [16]atomic.Pointer[Program]

	noteStartTime [16][128]int64

	auxChains   []*effects.Chain
	auxScratchL [][]float32
	auxScratchR [][]float32

	pipes wavebank.PipeStack

	serialNo    int64
	currentTime int64
	randState   uint64

	// exGroupScratch backs startNote's exclusive-group scan; fixed-size so
	// note-on handling never allocates on the block-processing path.
	exGroupScratch [MaxVoices]int
}

// NewEngine creates an Engine rendering at sampleRate with auxBuses
// post-fader effect sends (spec.md §4.10's send1bus/send2bus routing).
func NewEngine(sampleRate, auxBuses int) *Engine {
	if auxBuses < 0 {
		auxBuses = 0
	}
	e := &Engine{
		sampleRate: sampleRate,
		maxVoices:  MaxVoices,
		randState:  0x9E3779B97F4A7C15,
	}
	e.auxChains = make([]*effects.Chain, auxBuses)
	e.auxScratchL = make([][]float32, auxBuses)
	e.auxScratchR = make([][]float32, auxBuses)
	for i := range e.auxChains {
		e.auxChains[i] = effects.NewChain()
		e.auxScratchL[i] = make([]float32, BlockSize)
		e.auxScratchR[i] = make([]float32, BlockSize)
	}
	for i := 0; i < 16; i++ {
		h := &channelHandler{eng: e, ch: i}
		e.handlers[i] = h
		e.channels[i] = midi.NewChannel(h)
	}
	return e
}

// AuxChain returns the effect chain feeding aux bus n (1-based, matching
// the SFZ send1bus/send2bus numbering), so a host can Add() reverb/delay
// effects to it. Returns nil for an out-of-range bus.
func (e *Engine) AuxChain(bus int) *effects.Chain {
	i := bus - 1
	if i < 0 || i >= len(e.auxChains) {
		return nil
	}
	return e.auxChains[i]
}

// SetPolyphony sets the post-block voice-count cap sampler_steal_voice
// enforces, clamped to [1, MaxVoices].
func (e *Engine) SetPolyphony(n int) {
	if n < 1 {
		n = 1
	}
	if n > MaxVoices {
		n = MaxVoices
	}
	e.maxVoices = n
}

// Channel returns the per-channel MIDI controller state for chanIndex
// (0-based), for a host to feed CC/pitch-bend/aftertouch through
// midi.ProcessMessage or to inspect directly.
func (e *Engine) Channel(chanIndex int) *midi.Channel {
	if chanIndex < 0 || chanIndex >= 16 {
		return nil
	}
	return e.channels[chanIndex]
}

// SetProgram publishes a new Program for chanIndex, returning whatever was
// previously loaded there (the caller is responsible for Close()ing it
// once it is sure no voice still references it), via cmdqueue's RT-safe
// pointer swap rather than a lock.
func (e *Engine) SetProgram(chanIndex int, p *Program) *Program {
	if chanIndex < 0 || chanIndex >= 16 {
		return nil
	}
	return cmdqueue.SwapPointer(&e.programs[chanIndex], p)
}

// Program returns the program currently bound to chanIndex, or nil.
func (e *Engine) Program(chanIndex int) *Program {
	if chanIndex < 0 || chanIndex >= 16 {
		return nil
	}
	return e.programs[chanIndex].Load()
}

// HandleMIDI decodes one raw channel-voice message against chanIndex's
// Channel, dispatching note/CC/pitch-bend events into this Engine.
func (e *Engine) HandleMIDI(chanIndex int, status byte, data []byte) {
	if chanIndex < 0 || chanIndex >= 16 {
		return
	}
	midi.ProcessMessage(e.channels[chanIndex], chanIndex, status, data, e)
}

// NoteOn implements midi.Dispatcher: allocates and starts voices for every
// matching region (spec.md §4.4, §4.5).
func (e *Engine) NoteOn(chanIndex, note, vel int) {
	e.startNote(chanIndex, note, vel, false)
}

// NoteOff implements midi.Dispatcher. Voice release is already driven by
// Channel's NoteHandler callbacks (ReleaseVoicesForNote etc, invoked from
// within Channel.NoteOff itself); this notification exists only to satisfy
// the Dispatcher interface and intentionally does no further work, so a
// voice is never released twice for one note-off.
func (e *Engine) NoteOff(chanIndex, note, vel int) {}

// PolyAftertouch implements midi.Dispatcher. The original engine does not
// route polyphonic aftertouch into any modulation source either (see
// blockModSources.value's ModSrcPolyAftertouch case); nothing to do here
// beyond what ProcessMessage already recorded on the Channel.
func (e *Engine) PolyAftertouch(chanIndex, note, value int) {}

// Process implements audio.SampleSource: renders interleaved stereo frames
// into dst, advancing every active voice in BlockSize chunks.
func (e *Engine) Process(dst []float32) {
	frames := len(dst) / 2
	off := 0
	for off < frames {
		n := BlockSize
		if frames-off < n {
			n = frames - off
		}
		e.processBlock(dst[off*2:(off+n)*2], n)
		off += n
	}
}

func (e *Engine) processBlock(dst []float32, n int) {
	for i := range dst {
		dst[i] = 0
	}
	for i, l := range e.auxScratchL {
		r := e.auxScratchR[i]
		for f := 0; f < n; f++ {
			l[f] = 0
			r[f] = 0
		}
	}

	vcount, vrel := 0, 0
	for i := range e.voices {
		v := &e.voices[i]
		if !v.active {
			continue
		}
		e.processVoice(v, dst, n)
		if v.active {
			vcount++
			if v.ampEnv.CurStage == envelope.FastReleaseStage {
				vrel++
			}
		} else if v.pipe != nil {
			e.pipes.Push(v.pipe)
			v.pipe = nil
		}
	}
	if vcount-vrel > e.maxVoices {
		e.stealVoice()
	}

	for i, chain := range e.auxChains {
		l, r := e.auxScratchL[i], e.auxScratchR[i]
		for f := 0; f < n; f++ {
			ol, or := chain.Process(l[f], r[f])
			dst[f*2] += ol
			dst[f*2+1] += or
		}
	}

	e.serialNo++
	e.currentTime += int64(n)
}

// processVoice advances one voice by n frames, mirroring
// sampler_voice_process: age/delay gating, envelope/LFO block-rate
// advance, modulation accumulation, pitch/gain/pan/filter-coefficient
// computation, then per-frame sample generation mixed into dst and any
// configured aux sends.
func (e *Engine) processVoice(v *Voice, dst []float32, n int) {
	d := v.data
	ch := e.channels[v.chanIdx]

	v.age += int64(n)
	if v.age < v.delay {
		return
	}

	pitch := float64(v.note-d.PitchKeycenter)*float64(d.PitchKeytrack) + d.Tune + float64(d.Transpose)*100 + v.pitchShift

	sources := &blockModSources{pitchCents: pitch}
	sources.pitchEnv = v.pitchEnv.Next(v.released) * 0.01
	sources.filterEnv = v.filterEnv.Next(v.released) * 0.01
	sources.ampEnv = v.ampEnv.Next(v.released) * 0.01
	sources.ampLFO = v.ampLFO.Sample(float64(e.sampleRate), n)
	sources.filterLFO = v.filterLFO.Sample(float64(e.sampleRate), n)
	sources.pitchLFO = v.pitchLFO.Sample(float64(e.sampleRate), n)

	if v.ampEnv.Finished() {
		v.active = false
		return
	}

	var dests modDests
	if v.isReleaseTrigger {
		dests.gain -= float64(v.age) * d.RtDecay / float64(e.sampleRate)
	}
	const maxv = float64(127 << 7)
	ccGain := 1.0
	pan := (d.Pan + 100) / 200.0
	if ch != nil {
		dests.pitch = d.PitchBendCents(ch.PitchBend)
		applyModulations(d, sources, ch, v.vel, &dests)
		ccGain = float64(ch.Addcc(7)) * float64(ch.Addcc(11)) / (maxv * maxv)
		pan += (float64(ch.Addcc(10))/maxv - 0.5) * 2
	}

	freq := d.EffFreq * cent2factor(pitch+dests.pitch)
	freq64 := freq * 65536.0 * 65536.0 / float64(e.sampleRate)
	if freq64 < 0 {
		freq64 = 0
	}
	v.bigdelta = uint64(freq64)

	gain := sources.ampEnv * d.VolumeLinearized * v.gainFromVel * v.xfadeGain * ccGain
	gain += v.gainShift
	if dests.gain != 0 {
		gain *= db2gain(dests.gain)
	}
	if gain < 0 {
		gain = 0
	}

	if pan < 0 {
		pan = 0
	}
	if pan > 1 {
		pan = 1
	}
	v.lgain = gain * (1 - pan)
	v.rgain = gain * pan

	// Re-derived every block from loop mode and release state, except once
	// count= has exhausted its allotted repeats: renderFrame then owns
	// turning looping off for good, and this must not turn it back on.
	if !(v.loopCount > 0 && v.playCount >= v.loopCount-1) {
		v.loopActive = d.EffLoopMode == layer.LoopContinuous || (d.EffLoopMode == layer.LoopSustain && !v.released)
	}

	if d.FilterType != layer.FilterUnknown {
		cutoff := d.Cutoff * cent2factor(v.cutoffShift+dests.cutoff)
		if cutoff < 20 {
			cutoff = 20
		}
		if maxCutoff := float64(e.sampleRate) * 0.45; cutoff > maxCutoff {
			cutoff = maxCutoff
		}
		// Resonance modulation applies to the raw linear value, not the
		// statically 4-pole-sqrt-scaled layer.Data.ResonanceScaled: that
		// field bakes the sqrt(resonance/0.707)*0.5 correction in from the
		// unmodulated authored value at Finalize time, but the original
		// applies dB2gain(moddests[resonance]) to the linear resonance
		// FIRST and only then (inside voiceFilter.setParams, delegated to
		// biquad.Filter.SetParams's own fourPole branch) takes sqrt(q) —
		// reusing ResonanceScaled here would double-apply that scaling.
		resonance := d.ResonanceLinearized * db2gain(dests.resonance)
		if resonance < 0.7 {
			resonance = 0.7
		}
		if resonance > 32 {
			resonance = 32
		}
		v.filt.setParams(cutoff, resonance, float64(e.sampleRate))
	}

	if d.TonectlFreq != 0 {
		ctl := d.Tonectl
		if math.Abs(ctl) > 0.0001 {
			biquad.SetOnePoleHighShelfGain(&v.onepoleCoeffs, db2gain(ctl))
		} else {
			biquad.SetOnePoleHighShelfGain(&v.onepoleCoeffs, 1.0)
		}
	}

	if d.EqBitmask != 0 {
		velscl := float64(v.vel) / 127.0
		for i := range d.Eq {
			if d.EqBitmask&(1<<uint(i)) == 0 {
				continue
			}
			band := &d.Eq[i]
			bandFreq := band.EffectiveFreq + velscl*band.Vel2Freq
			bandGain := db2gain(0.5 * (band.Gain + velscl*band.Vel2Gain))
			bw := band.Bw
			if bw == 0 {
				bw = 1
			}
			if v.lastEqBitmask&(1<<uint(i)) == 0 {
				v.eqLeft[i].Reset()
				v.eqRight[i].Reset()
			}
			biquad.SetPeakEQRBJ(&v.eqCoeffs[i], bandFreq, 1/bw, bandGain, float64(e.sampleRate))
		}
	}
	v.lastEqBitmask = d.EqBitmask

	for f := 0; f < n; f++ {
		l, r, ok := v.renderFrame()
		if !ok {
			v.active = false
			break
		}
		fl, fr := float64(l)*v.lgain, float64(r)*v.rgain
		if d.FilterType != layer.FilterUnknown {
			fl, fr = v.filt.process(fl, fr)
		}
		if d.TonectlFreq != 0 {
			fl = v.onepoleLeft.Process(&v.onepoleCoeffs, fl)
			fr = v.onepoleRight.Process(&v.onepoleCoeffs, fr)
		}
		if d.EqBitmask != 0 {
			for i := range d.Eq {
				if d.EqBitmask&(1<<uint(i)) == 0 {
					continue
				}
				fl = v.eqLeft[i].Process(&v.eqCoeffs[i], fl)
				fr = v.eqRight[i].Process(&v.eqCoeffs[i], fr)
			}
		}
		dst[f*2] += float32(fl)
		dst[f*2+1] += float32(fr)
		if v.send1Bus > 0 && v.send1Gain != 0 {
			if b := v.send1Bus - 1; b < len(e.auxScratchL) {
				e.auxScratchL[b][f] += float32(fl * v.send1Gain)
				e.auxScratchR[b][f] += float32(fr * v.send1Gain)
			}
		}
		if v.send2Bus > 0 && v.send2Gain != 0 {
			if b := v.send2Bus - 1; b < len(e.auxScratchL) {
				e.auxScratchL[b][f] += float32(fl * v.send2Gain)
				e.auxScratchR[b][f] += float32(fr * v.send2Gain)
			}
		}
	}

	if v.pipe != nil {
		v.pipe.Consumed(uint32(n))
	}
}

// stealVoice forces the single worst-scoring active voice into its fast
// release stage, called at most once per block when active voices exceed
// maxVoices, mirroring sampler_steal_voice's age-score selection.
func (e *Engine) stealVoice() {
	var best *Voice
	bestAge := int64(-1 << 62)
	for i := range e.voices {
		v := &e.voices[i]
		if !v.active || v.ampEnv.CurStage == envelope.FastReleaseStage {
			continue
		}
		age := e.serialNo - v.serialNo
		if v.loopStart == layer.NoLoop {
			if v.sampleEnd > 0 {
				age += int64(float64(v.bigpos>>32) * 100.0 / float64(v.sampleEnd))
			}
		} else if v.released {
			age += 10
		}
		if age > bestAge {
			bestAge = age
			best = v
		}
	}
	if best != nil {
		best.released = true
		best.ampEnv.GoTo(envelope.FastReleaseStage)
	}
}

// startNote resolves note-on (or, for release triggers, note-off) region
// matches and starts a voice for each, mirroring sampler_start_note. A note
// with no matching region, or with more matches than free voices, is
// silently partial: spec.md §7 treats both as "not an error".
func (e *Engine) startNote(chanIndex, note, vel int, isReleaseTrigger bool) {
	if chanIndex < 0 || chanIndex >= 16 || note < 0 || note > 127 {
		return
	}
	ch := e.channels[chanIndex]
	prog := e.programs[chanIndex].Load()
	if prog == nil || prog.lookup == nil {
		return
	}
	if !isReleaseTrigger {
		e.noteStartTime[chanIndex][note] = e.currentTime
	}

	random := e.nextRandom()
	var candidates []*layer.Data
	if isReleaseTrigger {
		candidates = prog.lookup.MatchReleaseTrigger(note, vel, chanIndex+1, random)
	} else {
		candidates = prog.lookup.MatchNoteOnAll(note, vel, chanIndex+1, random, switchStateFromChannel(ch))
	}
	if len(candidates) == 0 {
		return
	}

	exGroups := e.exGroupScratch[:0]
	for _, d := range candidates {
		v := e.findFreeVoice()
		if v == nil {
			break
		}
		e.startVoice(v, chanIndex, prog, d, note, vel, isReleaseTrigger)
		if d.ExclusiveGroup != 0 && !containsInt(exGroups, d.ExclusiveGroup) {
			exGroups = append(exGroups, d.ExclusiveGroup)
		}
	}
	if len(exGroups) > 0 {
		e.chokeExclusiveGroups(exGroups, note)
	}
}

// startOnCCTriggeredVoices fires on_locc/on_hicc-bound regions whose window
// cc's value just entered. These regions have no note-on event to draw a
// pitch/velocity from, so each plays at its own pitch_keycenter and full
// velocity, mirroring how the original treats a CC-triggered layer as its
// own implicit note-on.
func (e *Engine) startOnCCTriggeredVoices(chanIndex, cc, oldVal, newVal int) {
	if chanIndex < 0 || chanIndex >= 16 {
		return
	}
	prog := e.programs[chanIndex].Load()
	if prog == nil || prog.lookup == nil {
		return
	}
	for _, d := range prog.lookup.MatchOnCC(cc, oldVal, newVal, chanIndex+1) {
		v := e.findFreeVoice()
		if v == nil {
			return
		}
		e.startVoice(v, chanIndex, prog, d, d.PitchKeycenter, 127, false)
	}
}

func (e *Engine) findFreeVoice() *Voice {
	for i := range e.voices {
		if !e.voices[i].active {
			return &e.voices[i]
		}
	}
	return nil
}

// chokeExclusiveGroups scans every voice across every channel (the
// original's voice arena, and exclusive groups with it, is global rather
// than per-channel), releasing or fast-releasing any whose off_by matches
// a group this note-on's own candidates touched. The newly started note
// is exempt (a region never chokes its own just-started voice).
func (e *Engine) chokeExclusiveGroups(groups []int, exceptNote int) {
	for i := range e.voices {
		v := &e.voices[i]
		if !v.active || v.note == exceptNote || v.offBy == 0 {
			continue
		}
		if !containsInt(groups, v.offBy) {
			continue
		}
		if v.data.OffMode == layer.OffModeFast {
			v.released = true
			v.ampEnv.GoTo(envelope.FastReleaseStage)
		} else {
			v.released = true
		}
	}
}

// startVoice initializes a freshly allocated voice, mirroring
// sampler_start_voice.
func (e *Engine) startVoice(v *Voice, chanIdx int, prog *Program, d *layer.Data, note, vel int, isReleaseTrigger bool) {
	ch := e.channels[chanIdx]

	var age int64
	if isReleaseTrigger {
		age = e.currentTime - e.noteStartTime[chanIdx][note]
		ageSeconds := float64(age) / float64(e.sampleRate)
		if ageSeconds*d.RtDecay > 84 {
			return // attenuated below audibility; silently skipped
		}
	}

	wf := prog.waveformFor(d)
	var frames uint32
	if wf != nil {
		frames = wf.Frames
	}
	end := frames
	if d.SampleEnd != layer.NoLoop && d.SampleEnd != 0 && d.SampleEnd < end {
		end = d.SampleEnd
	}

	v.active = true
	v.chanIdx = chanIdx
	v.note = note
	v.vel = vel
	v.data = d
	v.wf = wf
	v.sampleEnd = end
	v.released = false
	v.isReleaseTrigger = isReleaseTrigger
	v.age = age
	v.serialNo = e.serialNo
	v.playCount = 0

	pos := d.SampleOffset
	if d.SampleOffsetRandom > 0 {
		pos += e.nextRandomUint32() % d.SampleOffsetRandom
	}
	if pos > end {
		pos = end
	}
	v.bigpos = uint64(pos) << 32

	delaySeconds := d.Delay
	if d.DelayRandom > 0 {
		delaySeconds += e.nextRandom() * d.DelayRandom
	}
	if delaySeconds > 0 {
		v.delay = int64(delaySeconds * float64(e.sampleRate))
	} else {
		v.delay = 0
	}

	v.loopStart = d.LoopStart
	v.loopEnd = d.LoopEnd
	v.loopActive = d.EffLoopMode == layer.LoopContinuous || d.EffLoopMode == layer.LoopSustain
	v.loopCount = d.Count

	vel127 := vel & 127
	v.gainFromVel = 1.0 + (d.EffVelcurve[vel127]-1.0)*d.AmpVeltrack*0.01
	v.xfadeGain = d.CrossfadeGain(note, vel)
	v.gainShift = 0
	v.pitchShift = 0
	v.cutoffShift = float64(vel)*float64(d.FilVeltrack)/127.0 + float64(note-d.FilKeycenter)*float64(d.FilKeytrack)

	v.outputPair = d.Output
	v.send1Bus, v.send2Bus = d.Send1Bus, d.Send2Bus
	v.send1Gain, v.send2Gain = d.Send1Gain*0.01, d.Send2Gain*0.01
	v.offBy = d.OffBy

	v.sustainHeld = false
	v.sostenutoCaptured = false
	v.sostenutoHeld = false

	v.ampEnv.Reset(&d.AmpEnvShape)
	v.filterEnv.Reset(&d.FilterEnvShape)
	v.pitchEnv.Reset(&d.PitchEnvShape)

	v.ampLFO.Init(d.AmpLFO, float64(e.sampleRate))
	v.filterLFO.Init(d.FilterLFO, float64(e.sampleRate))
	v.pitchLFO.Init(d.PitchLFO, float64(e.sampleRate))

	if v.filt == nil || v.filt.kind != d.FilterType {
		v.filt = newVoiceFilter(d.FilterType)
	} else {
		v.filt.reset()
	}

	for i := range v.eqLeft {
		v.eqLeft[i].Reset()
		v.eqRight[i].Reset()
	}
	v.lastEqBitmask = 0

	v.onepoleLeft.Reset()
	v.onepoleRight.Reset()
	if d.TonectlFreq != 0 {
		biquad.SetOnePoleHighShelfTonectl(&v.onepoleCoeffs, d.TonectlFreq*math.Pi/float64(e.sampleRate), 1.0)
	}

	if v.pipe != nil {
		e.pipes.Push(v.pipe)
	}
	v.pipe = e.pipes.Pop(wf, d.LoopStart, d.LoopEnd, 0)

	e.applyNIFs(v, d, vel)
}

// applyNIFs runs every note-init-function authored on d once, bumping the
// voice's per-voice pitch/gain/cutoff shift state, mirroring the
// notefunc linked-list walk in sampler_start_voice.
func (e *Engine) applyNIFs(v *Voice, d *layer.Data, vel int) {
	for _, nif := range d.NIFs {
		switch nif.Func {
		case layer.NIFVelToPitch:
			v.pitchShift += float64(vel) / 127.0 * nif.Param
		case layer.NIFAddRandom:
			jitter := (e.nextRandom()*2 - 1) * nif.Param
			switch nif.Variant {
			case layer.NIFRandomPitch:
				v.pitchShift += jitter
			case layer.NIFRandomGain:
				v.gainShift += jitter
			case layer.NIFRandomCutoff:
				v.cutoffShift += jitter
			}
		}
	}
}

func (e *Engine) nextRandomUint32() uint32 {
	e.randState ^= e.randState << 13
	e.randState ^= e.randState >> 7
	e.randState ^= e.randState << 17
	return uint32(e.randState)
}

func (e *Engine) nextRandom() float64 {
	return float64(e.nextRandomUint32()) / 4294967296.0
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// switchStateFromChannel adapts a Channel's private keyswitch bitmap into
// the exported rll.SwitchState shape, since Channel only offers a
// per-note SwitchDown query (it must not expose its bitmask layout
// directly to keep the two packages independently evolvable).
func switchStateFromChannel(ch *midi.Channel) *rll.SwitchState {
	if ch == nil {
		return nil
	}
	sw := &rll.SwitchState{PreviousNote: ch.PreviousNote}
	for n := 0; n < 128; n++ {
		if ch.SwitchDown(n) {
			sw.Down[n>>5] |= 1 << uint(n&31)
		}
	}
	return sw
}
