package sm

import "errors"

// errUnsupportedPlatform is returned by the non-Linux stub backends for
// SHM regions, notifiers, and poll sets. The reference plugin's wire
// formats (ring headers, arena layout, connection handshake) are portable,
// but the underlying primitives -- mmap of a named shared object, eventfd,
// epoll -- are Linux-specific; no named-FIFO or select-based fallback is
// implemented, so the stubs return this error.
var errUnsupportedPlatform = errors.New("sm: unsupported platform")
