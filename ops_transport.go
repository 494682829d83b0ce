package mercury

// TransportOps is the optional extended interface a PluginState may
// implement to support message and one-sided operations. A plugin that
// only supports passive listening without payload transfer can implement
// PluginState alone; the SM plugin implements TransportOps too.
//
// Addresses are passed as the same opaque `any` a Lookup completion
// handed back through OpID.Addr: the core never inspects it, only the
// owning plugin does.
type TransportOps interface {
	PluginState

	SendUnexpected(ctx *Context, op *OpID, dest any, tag uint32, buf []byte) error
	SendExpected(ctx *Context, op *OpID, dest any, tag uint32, buf []byte) error
	RecvUnexpected(ctx *Context, op *OpID, buf []byte) error
	RecvExpected(ctx *Context, op *OpID, source any, tag uint32, buf []byte) error
	Put(ctx *Context, op *OpID, local *MemHandle, loff uintptr, remote *MemHandle, roff uintptr, length uintptr, peer any) error
	Get(ctx *Context, op *OpID, local *MemHandle, loff uintptr, remote *MemHandle, roff uintptr, length uintptr, peer any) error
}

// transportOpsOf downcasts class's plugin state, or returns an
// OpNotSupported error.
func transportOpsOf(class *Class) (TransportOps, error) {
	ops, ok := class.State.(TransportOps)
	if !ok {
		return nil, NewError(OpNotSupported)
	}
	return ops, nil
}

// SendUnexpected posts an unexpected send to dest, delivered to the
// receiver's next RecvUnexpected rather than to a pre-posted RecvExpected.
func SendUnexpected(class *Class, ctx *Context, op *OpID, dest any, tag uint32, buf []byte) error {
	ops, err := transportOpsOf(class)
	if err != nil {
		return err
	}
	return ops.SendUnexpected(ctx, op, dest, tag, buf)
}

// SendExpected posts a send to dest that a matching recv_expected is
// already (or will be) queued for.
func SendExpected(class *Class, ctx *Context, op *OpID, dest any, tag uint32, buf []byte) error {
	ops, err := transportOpsOf(class)
	if err != nil {
		return err
	}
	return ops.SendExpected(ctx, op, dest, tag, buf)
}

// RecvUnexpected posts a buffer to receive the next unmatched send from
// any source.
func RecvUnexpected(class *Class, ctx *Context, op *OpID, buf []byte) error {
	ops, err := transportOpsOf(class)
	if err != nil {
		return err
	}
	return ops.RecvUnexpected(ctx, op, buf)
}

// RecvExpected posts a buffer to receive a send tagged for source and tag.
func RecvExpected(class *Class, ctx *Context, op *OpID, source any, tag uint32, buf []byte) error {
	ops, err := transportOpsOf(class)
	if err != nil {
		return err
	}
	return ops.RecvExpected(ctx, op, source, tag, buf)
}

// Put writes length bytes from local into remote on peer.
func Put(class *Class, ctx *Context, op *OpID, local *MemHandle, loff uintptr, remote *MemHandle, roff uintptr, length uintptr, peer any) error {
	ops, err := transportOpsOf(class)
	if err != nil {
		return err
	}
	return ops.Put(ctx, op, local, loff, remote, roff, length, peer)
}

// Get reads length bytes from remote on peer into local.
func Get(class *Class, ctx *Context, op *OpID, local *MemHandle, loff uintptr, remote *MemHandle, roff uintptr, length uintptr, peer any) error {
	ops, err := transportOpsOf(class)
	if err != nil {
		return err
	}
	return ops.Get(ctx, op, local, loff, remote, roff, length, peer)
}
