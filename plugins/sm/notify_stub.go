//go:build !linux

package sm

// Notifier stubs out the eventfd-backed wakeup on platforms without it;
// no FIFO fallback is implemented (see errors.go).
type Notifier struct {
	fd int
}

func NewNotifier() (*Notifier, error) {
	return nil, errUnsupportedPlatform
}

func FromFD(fd int) *Notifier { return &Notifier{fd: fd} }

func (n *Notifier) FD() int { return n.fd }

func (n *Notifier) Set() error { return errUnsupportedPlatform }

func (n *Notifier) Get() (bool, error) { return false, errUnsupportedPlatform }

func (n *Notifier) Destroy() error { return nil }
