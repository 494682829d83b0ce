//go:build darwin

package sm

import (
	"fmt"

	mercury "github.com/wangrunji0408/mercury"
)

// Darwin has no process_vm_readv/writev; the analogous primitives are
// mach_vm_read_overwrite/mach_vm_write, each restricted to single-segment
// transfers. Wiring those requires cgo against the Mach APIs, out of scope
// for this plugin; see DESIGN.md.
func VMReadv(pid int, local, remote []mercury.Iovec) (int, error) {
	return 0, fmt.Errorf("sm: darwin one-sided copy not implemented: %w", errUnsupportedPlatform)
}

func VMWritev(pid int, local, remote []mercury.Iovec) (int, error) {
	return 0, fmt.Errorf("sm: darwin one-sided copy not implemented: %w", errUnsupportedPlatform)
}
