package midi

import "sort"

// Event is a single timestamped MIDI message merged from one input source.
type Event struct {
	Frame int // offset within the current audio block, in samples
	Data  []byte
	Source int // which input index this event arrived on, for diagnostics
}

// Source is one producer feeding a Merger: an engine plugin, a MIDI input
// port adapter, or an internal sequencer. Grounded on mididest.h's
// cbox_midi_source (a per-source read position into that source's own
// event buffer, consumed in timestamp order across all sources).
type Source struct {
	Events   []Event
	Streaming bool // true if this source always has pending output (never exhausted mid-block)
	pos      int
}

// Merger combines N input Sources into a single timestamp-ordered output
// buffer, mirroring cbox_midi_merger_render: every input's events are
// walked in frame order and interleaved into one stream for a channel's
// dispatch loop.
type Merger struct {
	inputs []*Source
}

// Connect adds src as an input, mirroring cbox_midi_merger_connect.
func (m *Merger) Connect(src *Source) {
	m.inputs = append(m.inputs, src)
}

// Disconnect removes src, mirroring cbox_midi_merger_disconnect.
func (m *Merger) Disconnect(src *Source) {
	for i, s := range m.inputs {
		if s == src {
			m.inputs = append(m.inputs[:i], m.inputs[i+1:]...)
			return
		}
	}
}

// Render drains every connected input's pending events (from each source's
// current read position onward) into one frame-ordered slice, mirroring
// cbox_midi_merger_render_to. Ties are broken by input order (the order
// Connect was called), matching cbox_midi_merger_find_source's linear
// source scan.
func (m *Merger) Render() []Event {
	var out []Event
	for _, src := range m.inputs {
		out = append(out, src.Events[src.pos:]...)
		src.pos = len(src.Events)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Frame < out[j].Frame })
	return out
}

// Reset clears every connected source's backing buffer and read position,
// called once per render block by the owning channel after Render.
func (m *Merger) Reset() {
	for _, src := range m.inputs {
		src.Events = src.Events[:0]
		src.pos = 0
	}
}

// Push appends an event to src's buffer, mirroring cbox_midi_merger_push.
func (s *Source) Push(frame int, data []byte) {
	s.Events = append(s.Events, Event{Frame: frame, Data: data})
}
