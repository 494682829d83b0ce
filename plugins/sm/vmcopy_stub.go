//go:build !linux && !darwin

package sm

import mercury "github.com/wangrunji0408/mercury"

func VMReadv(pid int, local, remote []mercury.Iovec) (int, error) {
	return 0, errUnsupportedPlatform
}

func VMWritev(pid int, local, remote []mercury.Iovec) (int, error) {
	return 0, errUnsupportedPlatform
}
