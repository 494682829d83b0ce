package mercury

import "google.golang.org/grpc/codes"

// GRPCCode maps a Kind onto the nearest grpc/codes.Code, for callers (such
// as the probe CLI) that want to report NA failures through status
// conventions a wider toolchain already understands.
func (k Kind) GRPCCode() codes.Code {
	switch k {
	case Success:
		return codes.OK
	case Timeout:
		return codes.DeadlineExceeded
	case Again:
		return codes.Unavailable
	case InvalidArg:
		return codes.InvalidArgument
	case NoMem:
		return codes.ResourceExhausted
	case Overflow:
		return codes.ResourceExhausted
	case MsgSize:
		return codes.OutOfRange
	case ProtoNotSupport:
		return codes.Unimplemented
	case OpNotSupported:
		return codes.Unimplemented
	case ProtocolError:
		return codes.Internal
	case Busy:
		return codes.Unavailable
	case Canceled:
		return codes.Canceled
	case Permission:
		return codes.PermissionDenied
	case Fault:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// GRPCCodeOf is a convenience wrapper around KindOf(err).GRPCCode().
func GRPCCodeOf(err error) codes.Code {
	return KindOf(err).GRPCCode()
}
