// Package sysinfo reports facts about the build host that parameterize
// builds: CPU count for -j defaults, memory for the environment report,
// architecture for compiler target selection.
package sysinfo

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

// NumCPU returns the number of logical CPUs, falling back to the Go
// runtime's view when the platform probe fails.
func NumCPU() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// MemoryGB returns total physical memory in GiB, 0 when unknown.
func MemoryGB() float64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return float64(vm.Total) / (1 << 30)
}

// SharedLibExt returns the shared-library filename extension for the
// host OS, without the dot.
func SharedLibExt() string {
	switch runtime.GOOS {
	case "darwin":
		return "dylib"
	case "windows":
		return "dll"
	default:
		return "so"
	}
}

// DefaultLLVMTargets maps a host architecture to the LLVM backends a
// compiler build must enable to target it. Unknown architectures are an
// error; guessing a backend would produce a compiler that cannot
// compile for its own host.
func DefaultLLVMTargets(arch string) ([]string, error) {
	switch arch {
	case "amd64", "386", "x86_64":
		return []string{"X86"}, nil
	case "arm64", "aarch64":
		return []string{"AArch64"}, nil
	case "ppc64", "ppc64le":
		return []string{"PowerPC"}, nil
	case "riscv64":
		return []string{"RISCV"}, nil
	}
	return nil, fmt.Errorf("no default LLVM target known for host architecture %q", arch)
}

// Summary returns a one-line description of the build host for the
// pre-build report.
func Summary() string {
	return fmt.Sprintf("%s/%s, %d cpus, %.1f GiB ram, kernel %s",
		runtime.GOOS, runtime.GOARCH, NumCPU(), MemoryGB(), KernelVersion())
}
