package midi

// Dispatcher receives a Channel's fully decoded events and forwards them to
// the voice engine; internal/sampler implements this.
type Dispatcher interface {
	NoteOn(channel, note, vel int)
	NoteOff(channel, note, vel int)
	PolyAftertouch(channel, note, value int)
}

// ProcessMessage decodes one raw MIDI channel-voice message (status byte
// plus 0-2 data bytes) against ch: note-on/note-off and poly-aftertouch
// events are forwarded to disp, while CC, channel-aftertouch and pitch-bend
// values are applied to ch directly, mirroring the status-nibble switch
// in sampler_channel_process_midi_message: 8=note-off, 9=note-on
// (velocity 0 treated as note-off), 10=poly-aftertouch (velocity-127
// special-cases a chokeable one-shot into an immediate choke), 11=CC,
// 12=program-change, 13=channel-aftertouch, 14=pitch-bend.
func ProcessMessage(ch *Channel, chanIndex int, status byte, data []byte, disp Dispatcher) {
	cmd := status & 0xF0
	switch cmd {
	case 0x80: // note off
		note, vel := int(data[0]), int(data[1])
		if disp != nil {
			disp.NoteOff(chanIndex, note, vel)
		}
		ch.NoteOff(note, false)
	case 0x90: // note on (vel 0 == note off)
		note, vel := int(data[0]), int(data[1])
		if vel == 0 {
			if disp != nil {
				disp.NoteOff(chanIndex, note, 0)
			}
			ch.NoteOff(note, false)
			return
		}
		ch.NoteOn(note, vel)
		if disp != nil {
			disp.NoteOn(chanIndex, note, vel)
		}
	case 0xA0: // poly aftertouch
		note, val := int(data[0]), int(data[1])
		ch.PolyAftertouch[note&127] = val
		isChoke := val == 127
		if disp != nil {
			disp.PolyAftertouch(chanIndex, note, val)
		}
		if isChoke {
			ch.NoteOff(note, true)
		}
	case 0xB0: // control change
		ch.ProcessCC(int(data[0]), int(data[1]))
	case 0xC0: // program change
		// Program selection is handled by the control layer (spec.md §4.13),
		// not per-channel MIDI state; callers route this separately.
	case 0xD0: // channel aftertouch
		ch.ChannelAftertouch = int(data[0])
	case 0xE0: // pitch bend
		ch.SetPitchBend(int(data[0]), int(data[1]))
	}
}
