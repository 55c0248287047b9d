//go:build !windows
// +build !windows

package preflight

import "syscall"

// diskFreeBytes returns the bytes available to an unprivileged user on the
// filesystem containing path, or false if the statfs call fails.
func diskFreeBytes(path string) (uint64, bool) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, false
	}
	return stat.Bavail * uint64(stat.Bsize), true
}
