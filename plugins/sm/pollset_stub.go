//go:build !linux

package sm

import "time"

// PollCallback is invoked with the fd-associated tag when an fd becomes
// ready, and whether it reported an error.
type PollCallback func(tag any, errorFlag bool)

// PollSet stubs out the epoll-backed multiplexer on platforms without it.
type PollSet struct{}

func NewPollSet() (*PollSet, error) {
	return nil, errUnsupportedPlatform
}

func (p *PollSet) Add(fd int, tag any, cb PollCallback) error { return errUnsupportedPlatform }

func (p *PollSet) Remove(fd int) error { return errUnsupportedPlatform }

func (p *PollSet) Wait(timeout time.Duration) (int, error) { return 0, errUnsupportedPlatform }

func (p *PollSet) Close() error { return nil }
