//go:build windows

package sysinfo

// KernelVersion returns a placeholder on Windows, where builds are not
// supported but the package must still compile.
func KernelVersion() string {
	return "windows"
}
