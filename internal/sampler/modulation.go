package sampler

import (
	"math"

	"github.com/cbegin/calfbox/internal/layer"
	"github.com/cbegin/calfbox/internal/midi"
)

// modOffset/modScale implement the four curve shapes a modulation's Flags
// field selects (flags&3 for the primary source, (flags>>2)&3 for src2),
// matching sampler.c's modoffset/modscale tables: value = offset +
// value*scale. Curve 0 (offset 0, scale 1) is the identity transform and
// is the only curve this engine's loader currently authors; the table is
// carried in full for fidelity with any SFZ file that sets modulation
// flags directly via a future opcode.
var modOffset = [4]float64{0, -1, -1, 1}
var modScale = [4]float64{1, 1, 2, -2}

func modCurve(flags int, value float64) float64 {
	idx := flags & 3
	return modOffset[idx] + value*modScale[idx]
}

func cent2factor(cents float64) float64 {
	return math.Exp2(cents / 1200)
}

func db2gain(db float64) float64 {
	return math.Pow(10, db/20)
}

// blockModSources holds the per-block values the modulation matrix reads
// from, one modCurve evaluation away from moddests accumulation. Computed
// once per voice per block in processVoice, then reused for every
// modulation routing on that voice's layer (sampler.c's modsrcs[] array).
type blockModSources struct {
	pitchCents   float64
	pitchEnv     float64
	filterEnv    float64
	ampEnv       float64
	pitchLFO     float64
	filterLFO    float64
	ampLFO       float64
}

func (b *blockModSources) value(src layer.ModSrc, cc int, ch *midi.Channel, vel int) float64 {
	switch src {
	case layer.ModSrcCC:
		return float64(ch.CC[cc]) / 127.0
	case layer.ModSrcChannelAftertouch:
		return float64(ch.ChannelAftertouch) / 127.0
	case layer.ModSrcVelocity:
		return float64(vel) / 127.0
	case layer.ModSrcPolyAftertouch:
		// Not wired to a per-note polyphonic-aftertouch value, matching
		// the original engine's own "not supported yet" treatment of
		// smsrc_polyaft in its modulation-source switch.
		return 0
	case layer.ModSrcPitchWheel:
		return b.pitchCents / 100.0
	case layer.ModSrcPitchEnv:
		return b.pitchEnv
	case layer.ModSrcFilterEnv:
		return b.filterEnv
	case layer.ModSrcAmpEnv:
		return b.ampEnv
	case layer.ModSrcPitchLFO:
		return b.pitchLFO
	case layer.ModSrcFilterLFO:
		return b.filterLFO
	case layer.ModSrcAmpLFO:
		return b.ampLFO
	default:
		return 0
	}
}

// applyModulations accumulates every one of d's modulation routings into
// dests, additively, per sampler.c's "while(mod) { ...; moddests[sm->dest]
// += value * sm->amount; }" loop: src2 (when set) multiplicatively combines
// with src rather than adding a second term.
func applyModulations(d *layer.Data, sources *blockModSources, ch *midi.Channel, vel int, dests *modDests) {
	for i := range d.Modulations {
		m := &d.Modulations[i]
		value := modCurve(m.Flags&3, sources.value(m.Src, m.CC, ch, vel))
		if m.Src2 != layer.ModSrcNone {
			value2 := modCurve((m.Flags>>2)&3, sources.value(m.Src2, m.CC, ch, vel))
			value *= value2
		}
		contribution := value * m.Amount
		switch m.Dest {
		case layer.ModDestGain:
			dests.gain += contribution
		case layer.ModDestPitch:
			dests.pitch += contribution
		case layer.ModDestCutoff:
			dests.cutoff += contribution
		case layer.ModDestResonance:
			dests.resonance += contribution
		}
	}
}

// modDests mirrors sampler.c's moddests[smdest_count] accumulator array.
type modDests struct {
	gain, pitch, cutoff, resonance float64
}
