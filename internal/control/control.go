// Package control implements the sampler's path-addressed runtime command
// surface (spec.md §6): "/status", "/set_patch", "/load_patch",
// "/load_patch_from_string", "/polyphony", "/patches", and the per-region
// "/as_string" / "/set_param" family.
//
// Grounded on original_source/sampler_prg.c's sampler_program_process_cmd
// (a string-path switch decoding typed arguments out of a GError-returning
// OSC command) and instr.c's path-dispatch shape, expressed here as a Go
// map[string]Handler plus typed argument decoding instead of GLib's
// cbox_osc_command/GError. The OSC transport itself (wire encoding, socket
// I/O) is an explicit Non-goal collaborator (spec.md §1); this package only
// implements the command semantics a transport would call into.
package control

import (
	"errors"
	"fmt"
	"strconv"
)

// PatchInfo is one entry of a /patches enumeration.
type PatchInfo struct {
	ProgramNo int
	Name      string
	SampleDir string
}

// ChannelStatus is one channel's slice of a /status report.
type ChannelStatus struct {
	Channel    int
	ProgramNo  int
	Volume     float64
	Pan        float64
	ActiveVoices int
}

// StatusReport is the payload of /status.
type StatusReport struct {
	Polyphony int
	Channels  [16]ChannelStatus
	ActiveVoices int
}

// RegionInfo answers /as_string and /get_children for one region.
type RegionInfo struct {
	Index int
	State string
}

// Host is the surface control needs from whatever owns the sampler engine
// and its patch registry (the root Host facade implements this). Defining
// the interface here, rather than importing the root package's concrete
// type, keeps this package import-cycle-free: the root package imports
// control, not the other way around.
type Host interface {
	Status() StatusReport
	SetPatch(channel, programNo int) error
	LoadPatch(programNo int, sampleDir, sfzPath string) error
	LoadPatchFromString(programNo int, sampleDir, sfzText, name string) error
	SetPolyphony(n int)
	Patches() []PatchInfo

	// Per-region commands operate on the program currently loaded on
	// channel (spec.md §6's "per-region: /as_string, /set_param,
	// /new_region, /get_children"), addressed by a flat region index
	// within that program (matching sampler_layer_update's own
	// index-within-program addressing, simpler than original_source's
	// live object-path tree since this engine has no scripting layer to
	// address through).
	RegionAsString(channel, regionIndex int) (string, error)
	SetRegionParam(channel, regionIndex int, key, value string) error
	RegionChildren(channel int) ([]RegionInfo, error)
}

// ErrBadArgs is returned when a command's argument list doesn't match its
// expected arity or types.
var ErrBadArgs = errors.New("control: bad arguments")

// Handler executes one decoded command against a Host, returning an
// arbitrary result payload (StatusReport, []PatchInfo, string, or nil).
type Handler func(h Host, args []string) (any, error)

// Dispatcher maps command paths to handlers, mirroring
// sampler_program_process_cmd's strcmp chain as a table instead.
type Dispatcher struct {
	handlers map[string]Handler
}

// NewDispatcher builds a Dispatcher wired with the sampler's core command
// set (spec.md §6).
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{handlers: map[string]Handler{}}
	d.handlers["/status"] = handleStatus
	d.handlers["/set_patch"] = handleSetPatch
	d.handlers["/load_patch"] = handleLoadPatch
	d.handlers["/load_patch_from_string"] = handleLoadPatchFromString
	d.handlers["/polyphony"] = handlePolyphony
	d.handlers["/patches"] = handlePatches
	d.handlers["/as_string"] = handleAsString
	d.handlers["/set_param"] = handleSetParam
	d.handlers["/get_children"] = handleGetChildren
	return d
}

// Dispatch decodes and runs path against h, returning an "unknown command"
// error if no handler is registered for path.
func (d *Dispatcher) Dispatch(h Host, path string, args []string) (any, error) {
	handler, ok := d.handlers[path]
	if !ok {
		return nil, fmt.Errorf("control: unknown command %q", path)
	}
	return handler(h, args)
}

func handleStatus(h Host, args []string) (any, error) {
	if len(args) != 0 {
		return nil, ErrBadArgs
	}
	return h.Status(), nil
}

func handleSetPatch(h Host, args []string) (any, error) {
	if len(args) != 2 {
		return nil, ErrBadArgs
	}
	channel, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: channel: %v", ErrBadArgs, err)
	}
	programNo, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, fmt.Errorf("%w: program_no: %v", ErrBadArgs, err)
	}
	return nil, h.SetPatch(channel, programNo)
}

func handleLoadPatch(h Host, args []string) (any, error) {
	if len(args) != 3 {
		return nil, ErrBadArgs
	}
	programNo, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: program_no: %v", ErrBadArgs, err)
	}
	return nil, h.LoadPatch(programNo, args[1], args[2])
}

func handleLoadPatchFromString(h Host, args []string) (any, error) {
	if len(args) != 4 {
		return nil, ErrBadArgs
	}
	programNo, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: program_no: %v", ErrBadArgs, err)
	}
	return nil, h.LoadPatchFromString(programNo, args[1], args[2], args[3])
}

func handlePolyphony(h Host, args []string) (any, error) {
	if len(args) != 1 {
		return nil, ErrBadArgs
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: polyphony: %v", ErrBadArgs, err)
	}
	h.SetPolyphony(n)
	return nil, nil
}

func handlePatches(h Host, args []string) (any, error) {
	if len(args) != 0 {
		return nil, ErrBadArgs
	}
	return h.Patches(), nil
}

func handleAsString(h Host, args []string) (any, error) {
	if len(args) != 2 {
		return nil, ErrBadArgs
	}
	channel, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: channel: %v", ErrBadArgs, err)
	}
	regionIndex, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, fmt.Errorf("%w: region index: %v", ErrBadArgs, err)
	}
	return h.RegionAsString(channel, regionIndex)
}

func handleSetParam(h Host, args []string) (any, error) {
	if len(args) != 4 {
		return nil, ErrBadArgs
	}
	channel, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: channel: %v", ErrBadArgs, err)
	}
	regionIndex, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, fmt.Errorf("%w: region index: %v", ErrBadArgs, err)
	}
	return nil, h.SetRegionParam(channel, regionIndex, args[2], args[3])
}

func handleGetChildren(h Host, args []string) (any, error) {
	if len(args) != 1 {
		return nil, ErrBadArgs
	}
	channel, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: channel: %v", ErrBadArgs, err)
	}
	return h.RegionChildren(channel)
}
