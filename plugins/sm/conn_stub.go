//go:build !linux

package sm

// Listener stubs out the UNIX-socket connection establishment on platforms
// without accept4/SCM_RIGHTS support (see errors.go).
type Listener struct{}

func NewListener(path string) (*Listener, error) { return nil, errUnsupportedPlatform }

func (l *Listener) FD() int { return -1 }

func (l *Listener) Close() error { return nil }

func (l *Listener) Accept() (fd int, ok bool, err error) { return 0, false, errUnsupportedPlatform }

func Dial(path string) (int, error) { return 0, errUnsupportedPlatform }
