//go:build !windows

package sysinfo

import "golang.org/x/sys/unix"

// KernelVersion returns the running kernel's release string (uname -r).
func KernelVersion() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "unknown"
	}
	return unix.ByteSliceToString(uts.Release[:])
}
