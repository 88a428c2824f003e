package sysinfo

import (
	"runtime"
	"testing"
)

func TestNumCPU(t *testing.T) {
	if n := NumCPU(); n < 1 {
		t.Errorf("NumCPU() = %d, want >= 1", n)
	}
}

func TestSharedLibExt(t *testing.T) {
	got := SharedLibExt()
	switch runtime.GOOS {
	case "darwin":
		if got != "dylib" {
			t.Errorf("SharedLibExt() = %q, want dylib", got)
		}
	case "windows":
		if got != "dll" {
			t.Errorf("SharedLibExt() = %q, want dll", got)
		}
	default:
		if got != "so" {
			t.Errorf("SharedLibExt() = %q, want so", got)
		}
	}
}

func TestDefaultLLVMTargets(t *testing.T) {
	tests := []struct {
		arch string
		want string
	}{
		{"amd64", "X86"},
		{"x86_64", "X86"},
		{"arm64", "AArch64"},
		{"aarch64", "AArch64"},
		{"ppc64le", "PowerPC"},
		{"riscv64", "RISCV"},
	}
	for _, tt := range tests {
		targets, err := DefaultLLVMTargets(tt.arch)
		if err != nil {
			t.Errorf("DefaultLLVMTargets(%q) error: %v", tt.arch, err)
			continue
		}
		if len(targets) != 1 || targets[0] != tt.want {
			t.Errorf("DefaultLLVMTargets(%q) = %v, want [%s]", tt.arch, targets, tt.want)
		}
	}
}

func TestDefaultLLVMTargetsUnknownArch(t *testing.T) {
	if targets, err := DefaultLLVMTargets("vax"); err == nil {
		t.Errorf("DefaultLLVMTargets(vax) = %v, want error", targets)
	}
}

func TestKernelVersion(t *testing.T) {
	if KernelVersion() == "" {
		t.Error("KernelVersion() is empty")
	}
}
