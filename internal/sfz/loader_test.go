package sfz

import (
	"fmt"
	"testing"

	"github.com/cbegin/calfbox/internal/layer"
)

func TestTokenizeHeaderAndKeyValue(t *testing.T) {
	toks, err := Tokenize("<region> sample=kick.wav lokey=36 hikey=36\n")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if len(toks) != 4 {
		t.Fatalf("expected 4 tokens, got %d: %+v", len(toks), toks)
	}
	if toks[0].Kind != TokenHeader || toks[0].Name != "region" {
		t.Fatalf("expected first token to be <region>, got %+v", toks[0])
	}
	if toks[1].Key != "sample" || toks[1].Value != "kick.wav" {
		t.Fatalf("unexpected sample token: %+v", toks[1])
	}
	if toks[2].Key != "lokey" || toks[2].Value != "36" {
		t.Fatalf("unexpected lokey token: %+v", toks[2])
	}
}

func TestTokenizeValueWithEmbeddedSpaces(t *testing.T) {
	toks, err := Tokenize("<region> sample=my sample.wav lokey=10\n")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if toks[1].Value != "my sample.wav" {
		t.Fatalf("expected value with embedded space preserved, got %q", toks[1].Value)
	}
	if toks[2].Key != "lokey" || toks[2].Value != "10" {
		t.Fatalf("unexpected lokey token: %+v", toks[2])
	}
}

func TestTokenizeSkipsLineComments(t *testing.T) {
	toks, err := Tokenize("// a comment\n<region> key=60\n")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if len(toks) != 2 {
		t.Fatalf("expected comment to be skipped, got %d tokens", len(toks))
	}
}

func TestLoadSingleRegionInheritsFromGroupAndMaster(t *testing.T) {
	src := `
<group> amp_veltrack=80
<region> sample=a.wav lokey=36 hikey=36
<region> sample=b.wav lokey=37 hikey=37 amp_veltrack=10
`
	prog, err := Load("test.sfz", src, 44100)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(prog.Regions) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(prog.Regions))
	}
	if prog.Regions[0].Data.AmpVeltrack != 80 {
		t.Fatalf("expected region 1 to inherit amp_veltrack=80 from group, got %v", prog.Regions[0].Data.AmpVeltrack)
	}
	if prog.Regions[1].Data.AmpVeltrack != 10 {
		t.Fatalf("expected region 2's own amp_veltrack=10 to override the group default, got %v", prog.Regions[1].Data.AmpVeltrack)
	}
}

func TestLoadControlSectionPopulatesLabelsAndDefaults(t *testing.T) {
	src := `
<control> label_cc1=Mod Wheel set_cc7=100
<region> sample=a.wav
`
	prog, err := Load("test.sfz", src, 44100)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if prog.ControllerLabels[1] != "Mod Wheel" {
		t.Fatalf("expected label_cc1 to be captured, got %q", prog.ControllerLabels[1])
	}
	if prog.ControllerInit[7] != 100 {
		t.Fatalf("expected set_cc7=100 to be captured, got %d", prog.ControllerInit[7])
	}
}

func TestLoadTriggerReleaseOpcode(t *testing.T) {
	src := `<region> sample=tail.wav trigger=release`
	prog, err := Load("test.sfz", src, 44100)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if prog.Regions[0].Trigger != TriggerRelease {
		t.Fatalf("expected release trigger, got %v", prog.Regions[0].Trigger)
	}
}

func TestLoadCCModulationOpcodesDoNotCollideAcrossCCNumbers(t *testing.T) {
	src := `<region> sample=a.wav cutoff_oncc1=1000 cutoff_oncc74=2000`
	prog, err := Load("test.sfz", src, 44100)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	mods := prog.Regions[0].Data.Modulations
	found := map[int]float64{}
	for _, m := range mods {
		if m.Src == layer.ModSrcCC && m.Dest == layer.ModDestCutoff {
			found[m.CC] = m.Amount
		}
	}
	if found[1] != 1000 || found[74] != 2000 {
		t.Fatalf("expected both cutoff_oncc1 and cutoff_oncc74 to survive as distinct entries, got %v", found)
	}
}

func TestLoadFilterTypeAndLoopMode(t *testing.T) {
	src := `<region> sample=a.wav fil_type=lpf_4p loop_mode=loop_continuous`
	prog, err := Load("test.sfz", src, 44100)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	d := prog.Regions[0].Data
	if d.FilterType != layer.FilterLP24 {
		t.Fatalf("expected lpf_4p to map to FilterLP24, got %v", d.FilterType)
	}
	if d.LoopMode != layer.LoopContinuous {
		t.Fatalf("expected loop_continuous to map to LoopContinuous, got %v", d.LoopMode)
	}
}

func TestLoadEqAndTonectlOpcodes(t *testing.T) {
	src := `<region> sample=a.wav eq2_freq=2500 eq2_bw=0.5 eq2_gain=4 eq2_vel2gain=2 tonectl_freq=8000 tonectl=-3`
	prog, err := Load("test.sfz", src, 44100)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	d := prog.Regions[0].Data
	if d.Eq[1].Freq != 2500 || d.Eq[1].Bw != 0.5 || d.Eq[1].Gain != 4 || d.Eq[1].Vel2Gain != 2 {
		t.Fatalf("expected eq2_* opcodes on band index 1, got %+v", d.Eq[1])
	}
	if d.EqBitmask != 1<<1 {
		t.Fatalf("expected only band 2 active after finalize, got bitmask %b", d.EqBitmask)
	}
	if d.TonectlFreq != 8000 || d.Tonectl != -3 {
		t.Fatalf("expected tonectl_freq=8000 tonectl=-3, got freq=%v gain=%v", d.TonectlFreq, d.Tonectl)
	}
}

func TestLoadUnrecognizedOpcodeIsIgnoredNotAnError(t *testing.T) {
	src := `<region> sample=a.wav totally_made_up_opcode=123`
	if _, err := Load("test.sfz", src, 44100); err != nil {
		t.Fatalf("expected unrecognized opcode to be tolerated, got error: %v", err)
	}
}

func TestLoadWithImportsSplicesImportedFile(t *testing.T) {
	files := map[string]string{
		"drums.sfz": "<region> sample=kick.wav lokey=36 hikey=36",
	}
	resolve := func(path string) (string, error) {
		content, ok := files[path]
		if !ok {
			return "", fmt.Errorf("no such file %q", path)
		}
		return content, nil
	}
	src := `
<group> amp_veltrack=50
import=drums.sfz
<region> sample=snare.wav lokey=38 hikey=38
`
	prog, err := LoadWithImports("main.sfz", src, 44100, resolve)
	if err != nil {
		t.Fatalf("LoadWithImports failed: %v", err)
	}
	if len(prog.Regions) != 2 {
		t.Fatalf("expected 2 regions (1 imported + 1 local), got %d", len(prog.Regions))
	}
	if prog.Regions[0].Data.Sample != "kick.wav" {
		t.Fatalf("expected imported region first, got %q", prog.Regions[0].Data.Sample)
	}
	if prog.Regions[0].Data.AmpVeltrack != 50 {
		t.Fatalf("expected imported region to inherit the enclosing group's amp_veltrack, got %v", prog.Regions[0].Data.AmpVeltrack)
	}
}

func TestLoadImportWithoutResolverFails(t *testing.T) {
	src := `import=missing.sfz`
	if _, err := Load("main.sfz", src, 44100); err == nil {
		t.Fatal("expected an error when import= is used without a FileResolver")
	}
}

func TestLoadAmpegOpcodesPopulateEnvelope(t *testing.T) {
	src := `<region> sample=a.wav ampeg_attack=0.01 ampeg_release=0.5`
	prog, err := Load("test.sfz", src, 44100)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	d := prog.Regions[0].Data
	if d.AmpEnv.Attack != 0.01 || d.AmpEnv.Release != 0.5 {
		t.Fatalf("unexpected amp envelope: %+v", d.AmpEnv)
	}
}
