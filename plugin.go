package mercury

import "time"

// ProgressMode bits control how a Class's blocking Progress call behaves.
type ProgressMode int

const (
	ModeNoBlock ProgressMode = 1 << iota
	ModeNoRetry
)

// Ops is the trait every transport plugin implements: a transport exposes
// its operations as methods on a value satisfying this interface, rather
// than through a callback table keyed by opcode.
type Ops interface {
	// CheckProtocol reports whether this plugin handles protocol.
	CheckProtocol(protocol string) bool

	// Initialize creates the plugin's private state for class. listen
	// requests a passive/listening endpoint (e.g. the SM server side).
	Initialize(class *Class, addr ParsedAddress, listen bool) (PluginState, error)
}

// PluginState is the opaque per-class state an Ops.Initialize returns. The
// plugin downcasts it back in every other entry point it is handed.
type PluginState interface {
	// Finalize tears down all resources owned by this class.
	Finalize() error

	// Lookup resolves target (already parsed) to a plugin address handle,
	// completing op asynchronously through ctx.
	Lookup(ctx *Context, op *OpID, target ParsedAddress) error

	// Progress runs one iteration of the plugin's blocking progress call,
	// up to timeout, reporting whether it did useful work.
	Progress(timeout time.Duration) (progressed bool, err error)
}

// registryEntry pairs an Ops implementation with the class name it answers
// to. Order is significant: ties are broken by table position, and by
// convention entry 0 is the SM plugin so bare local URIs resolve to it.
type registryEntry struct {
	className string
	ops       Ops
}

var registry []registryEntry

// Register adds a plugin to the static dispatch table. Called from each
// plugin package's init(). Order of registration is the tie-break order.
func Register(className string, ops Ops) {
	registry = append(registry, registryEntry{className: className, ops: ops})
}

// Class is a per-process, per-initialization plugin instance.
type Class struct {
	Ops      Ops
	Protocol string
	Listen   bool
	Mode     ProgressMode
	State    PluginState
}

// Initialize selects a plugin by address string and initializes it.
func Initialize(info string, listen bool, mode ProgressMode) (*Class, error) {
	pa, err := ParseAddress(info)
	if err != nil {
		return nil, err
	}

	var chosen *registryEntry
	for i := range registry {
		e := &registry[i]
		if pa.ClassSet && e.className != pa.Class {
			continue
		}
		if !e.ops.CheckProtocol(pa.Protocol) {
			if pa.ClassSet {
				return nil, NewError(ProtoNotSupport)
			}
			continue
		}
		chosen = e
		break
	}
	if chosen == nil {
		return nil, NewError(ProtoNotSupport)
	}

	class := &Class{
		Protocol: pa.Protocol,
		Listen:   listen,
		Mode:     mode,
		Ops:      chosen.ops,
	}

	state, err := chosen.ops.Initialize(class, pa, listen)
	if err != nil {
		return nil, err
	}
	class.State = state
	return class, nil
}

// Finalize destroys the class and its plugin state.
func (c *Class) Finalize() error {
	if c.State == nil {
		return nil
	}
	return c.State.Finalize()
}

// Lookup resolves a target address string against this class, completing
// op through ctx.
func (c *Class) Lookup(ctx *Context, op *OpID, target string) error {
	pa, err := ParseAddress(target)
	if err != nil {
		return err
	}
	return c.State.Lookup(ctx, op, pa)
}

// Progress invokes the plugin's blocking progress call, serialized through
// ctx's multi-progress gate when the context has one.
func (c *Class) Progress(ctx *Context, timeout time.Duration) (bool, error) {
	if ctx.gate == nil {
		return c.State.Progress(timeout)
	}
	run, ok := ctx.gate.Enter(timeout)
	if !ok {
		return false, NewError(Timeout)
	}
	defer ctx.gate.Exit(run)
	if !run {
		return false, nil
	}
	return c.State.Progress(timeout)
}
