package wavebank

import "encoding/binary"

// scanSmplChunkLoop walks a RIFF/WAV file's top-level chunks looking for an
// 'smpl' chunk and reports its first sample loop's start/end frame, per the
// MIDI Sample Dump Standard loop layout WAV files embed it in. Returns
// hasLoop=false if no 'smpl' chunk or no loop points are present.
func scanSmplChunkLoop(raw []byte) (start, end uint32, hasLoop bool) {
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return 0, 0, false
	}
	pos := 12
	for pos+8 <= len(raw) {
		id := string(raw[pos : pos+4])
		size := binary.LittleEndian.Uint32(raw[pos+4 : pos+8])
		body := pos + 8
		if id == "smpl" {
			// smpl header: manufacturer, product, sample period, unity
			// note, pitch fraction, smpte format, smpte offset, num sample
			// loops, sampler data size (4 bytes each, 9 fields = 36 bytes),
			// then one cbox_sample_loop struct per loop: cue point
			// id, type, start, end, fraction, play count (6 * 4 bytes).
			const loopsOffset = 36
			if body+loopsOffset+4 > len(raw) {
				return 0, 0, false
			}
			numLoops := binary.LittleEndian.Uint32(raw[body+28 : body+32])
			if numLoops == 0 {
				return 0, 0, false
			}
			loopStart := body + loopsOffset
			if loopStart+24 > len(raw) {
				return 0, 0, false
			}
			s := binary.LittleEndian.Uint32(raw[loopStart+8 : loopStart+12])
			e := binary.LittleEndian.Uint32(raw[loopStart+12 : loopStart+16])
			return s, e, true
		}
		pos = body + int(size)
		if size%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}
	return 0, 0, false
}
