package rll

import (
	"testing"

	"github.com/cbegin/calfbox/internal/layer"
)

func region(lo, hi, minVel, maxVel int) *layer.Data {
	d := layer.NewData()
	d.LoKey, d.HiKey = lo, hi
	d.MinVel, d.MaxVel = minVel, maxVel
	d.MinChan, d.MaxChan = 1, 16
	d.Finalize(nil, 44100, nil)
	return d
}

func TestMatchNoteOnPicksInRangeRegion(t *testing.T) {
	low := region(0, 59, 0, 127)
	high := region(60, 127, 0, 127)
	l := Build([]Entry{{Data: low}, {Data: high}})

	got := l.MatchNoteOn(72, 100, 1, 0, nil)
	if got != high {
		t.Fatalf("expected high-key region for note 72")
	}
	got = l.MatchNoteOn(40, 100, 1, 0, nil)
	if got != low {
		t.Fatalf("expected low-key region for note 40")
	}
}

func TestMatchNoteOnRespectsVelocitySplit(t *testing.T) {
	soft := region(0, 127, 0, 63)
	loud := region(0, 127, 64, 127)
	l := Build([]Entry{{Data: soft}, {Data: loud}})

	if got := l.MatchNoteOn(60, 20, 1, 0, nil); got != soft {
		t.Errorf("expected soft region for velocity 20")
	}
	if got := l.MatchNoteOn(60, 120, 1, 0, nil); got != loud {
		t.Errorf("expected loud region for velocity 120")
	}
}

func TestRoundRobinCyclesThroughRegions(t *testing.T) {
	a := region(0, 127, 0, 127)
	a.SeqPos, a.SeqLength = 1, 2
	a.Finalize(nil, 44100, nil) // reseed CurrentSeqPosition from the seq_position just set
	b := region(0, 127, 0, 127)
	b.SeqPos, b.SeqLength = 2, 2
	b.Finalize(nil, 44100, nil)
	l := Build([]Entry{{Data: a}, {Data: b}})

	first := l.MatchNoteOn(60, 100, 1, 0, nil)
	second := l.MatchNoteOn(60, 100, 1, 0, nil)
	if first == second {
		t.Fatalf("round robin with seq_length=2 should alternate regions")
	}
	third := l.MatchNoteOn(60, 100, 1, 0, nil)
	if third != first {
		t.Fatalf("round robin should cycle back to the first region")
	}
}

func TestKeyswitchGatesRegion(t *testing.T) {
	d := region(0, 127, 0, 127)
	d.SwDown = 36
	d.Finalize(nil, 44100, nil) // recompute EffUseKeyswitch after setting SwDown
	l := Build([]Entry{{Data: d}})

	sw := &SwitchState{}
	if got := l.MatchNoteOn(60, 100, 1, 0, sw); got != nil {
		t.Fatalf("expected no match while keyswitch 36 is not down")
	}
	sw.Down[36>>5] |= 1 << uint(36&31)
	if got := l.MatchNoteOn(60, 100, 1, 0, sw); got != d {
		t.Fatalf("expected match once keyswitch 36 is held down")
	}
}

func TestRandomRangeSplitsBetweenRegions(t *testing.T) {
	a := region(0, 127, 0, 127)
	a.LoRand, a.HiRand = 0, 0.5
	a.Finalize(nil, 44100, nil)
	b := region(0, 127, 0, 127)
	b.LoRand, b.HiRand = 0.5, 1
	b.Finalize(nil, 44100, nil)
	l := Build([]Entry{{Data: a}, {Data: b}})

	if got := l.MatchNoteOn(60, 100, 1, 0.2, nil); got != a {
		t.Fatalf("random 0.2 should match the [0,0.5) region")
	}
	if got := l.MatchNoteOn(60, 100, 1, 0.7, nil); got != b {
		t.Fatalf("random 0.7 should match the [0.5,1) region")
	}
	if got := l.MatchNoteOn(60, 100, 1, 0.5, nil); got != b {
		t.Fatalf("hirand is exclusive, so random 0.5 should fall into the upper region")
	}
}

func TestReleaseTriggerUsesNoteOnVelocity(t *testing.T) {
	d := region(0, 127, 100, 127)
	l := Build([]Entry{{Data: d, Trigger: TriggerRelease}})

	if got := l.MatchReleaseTrigger(60, 40, 1, 0); len(got) != 0 {
		t.Fatalf("release region requiring vel>=100 should not match note-on vel 40")
	}
	if got := l.MatchReleaseTrigger(60, 110, 1, 0); len(got) != 1 || got[0] != d {
		t.Fatalf("release region should match with note-on vel 110")
	}
}
