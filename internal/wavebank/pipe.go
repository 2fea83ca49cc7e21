package wavebank

import "sync"

// PrefetchPipe is a voice's playback cursor into a Waveform, mirroring the
// cbox_prefetch_pipe a voice pops from a shared pool at note-on and pushes
// back at voice release (original_source/sampler_voice.c lines ~302, 411,
// 449). Since this engine's Waveform is always fully decoded in memory
// (see wavebank.go's package doc), a pipe doesn't itself stream from disk;
// it exists so the voice-facing call shape (Pop/Consumed/Remaining/Push)
// matches the original, and so per-note allocation is still avoided via
// PipeStack's free list.
type PrefetchPipe struct {
	wf            *Waveform
	loopStart     uint32
	loopEnd       uint32
	playbackCount int // SFZ count= opcode: number of times to traverse the sample before stopping, 0 = unlimited
	consumed      uint32
}

// Remaining reports how many frames are available to read from the current
// cursor position without looping, matching cbox_prefetch_pipe_get_remaining.
func (p *PrefetchPipe) Remaining() uint32 {
	if p.wf == nil || p.consumed >= p.wf.Frames {
		return 0
	}
	return p.wf.Frames - p.consumed
}

// Frame returns the interleaved stereo sample at absolute frame index i.
func (p *PrefetchPipe) Frame(i uint32) (left, right float32) {
	if p.wf == nil || i >= p.wf.Frames {
		return 0, 0
	}
	return p.wf.Data[i*2], p.wf.Data[i*2+1]
}

// Frames reports the waveform's total frame count.
func (p *PrefetchPipe) Frames() uint32 {
	if p.wf == nil {
		return 0
	}
	return p.wf.Frames
}

// LoopBounds reports the loop start/end this pipe was popped with.
func (p *PrefetchPipe) LoopBounds() (start, end uint32) {
	return p.loopStart, p.loopEnd
}

// Consumed advances the read cursor by n frames, matching
// cbox_prefetch_pipe_consumed (called once per render block with however
// many frames the voice actually stepped across).
func (p *PrefetchPipe) Consumed(n uint32) {
	p.consumed += n
}

// PipeStack is a free list of PrefetchPipe objects, reused across voices so
// the RT render path never allocates one, mirroring cbox_prefetch_stack.
type PipeStack struct {
	mu   sync.Mutex
	free []*PrefetchPipe
}

// Pop returns a PrefetchPipe configured for wf, reusing a free pipe object
// if one is available, matching cbox_prefetch_stack_pop's (stack, waveform,
// loop_start, loop_end, count) signature.
func (s *PipeStack) Pop(wf *Waveform, loopStart, loopEnd uint32, count int) *PrefetchPipe {
	s.mu.Lock()
	var p *PrefetchPipe
	if n := len(s.free); n > 0 {
		p = s.free[n-1]
		s.free = s.free[:n-1]
	}
	s.mu.Unlock()
	if p == nil {
		p = &PrefetchPipe{}
	}
	p.wf = wf
	p.loopStart = loopStart
	p.loopEnd = loopEnd
	p.playbackCount = count
	p.consumed = 0
	return p
}

// Push returns a PrefetchPipe to the free list once its voice has finished
// with it, matching cbox_prefetch_stack_push.
func (s *PipeStack) Push(p *PrefetchPipe) {
	p.wf = nil
	s.mu.Lock()
	s.free = append(s.free, p)
	s.mu.Unlock()
}
