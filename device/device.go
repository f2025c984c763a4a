// Package device abstracts the compute runtimes the benchmark dispatches to.
// A Backend enumerates devices and opens one; a Device owns buffers and
// compiled kernels and provides the blocking Finish fence.
package device

import (
	"fmt"

	"github.com/notargets/vecbench/runner/builder"
)

// Backend is implemented by each compute runtime binding
// (OCCA, WebGPU, host).
type Backend interface {
	Name() string
	// Devices lists the devices this runtime can open, in index order.
	Devices() ([]Info, error)
	// Open creates a device context for the device at index.
	Open(index int) (Device, error)
}

// Info describes one device of a backend.
type Info struct {
	Index   int
	Name    string
	Backend string
}

// Device is an open device context. It is used from a single goroutine.
type Device interface {
	Info() Info
	// Language is the kernel source dialect BuildKernel accepts.
	Language() builder.Language
	// Malloc allocates a device buffer of n float32 elements.
	Malloc(n int) (Buffer, error)
	BuildKernel(spec KernelSpec) (Kernel, error)
	// Finish blocks until all previously issued device work has completed.
	Finish() error
	Free()
}

// Buffer is device-resident memory holding float32 elements.
type Buffer interface {
	Len() int
	// CopyFrom copies host data to the device. Blocking.
	CopyFrom(src []float32) error
	// CopyTo copies device data to the host. Blocking.
	CopyTo(dst []float32) error
	Free()
}

// Kernel is a compiled kernel. Run enqueues one launch; it does not wait for
// completion, callers fence with Device.Finish.
type Kernel interface {
	Name() string
	Run(args ...Buffer) error
	Free()
}

// KernelSpec describes a kernel to compile.
type KernelSpec struct {
	Name   string
	Source string
	// Length is the number of elements one launch covers.
	Length int
	// WorkgroupSize is the launch granularity the source was written for.
	WorkgroupSize int
}

// checkLengths ensures every buffer holds exactly n elements
func checkLengths(n int, bufs ...Buffer) error {
	for i, b := range bufs {
		if b == nil {
			return fmt.Errorf("argument %d: %w", i, ErrNilBuffer)
		}
		if b.Len() != n {
			return fmt.Errorf("argument %d has %d elements, want %d: %w",
				i, b.Len(), n, ErrLengthMismatch)
		}
	}
	return nil
}

// checkHost ensures a host slice matches a device buffer length
func checkHost(buf Buffer, host []float32) error {
	if len(host) != buf.Len() {
		return fmt.Errorf("host slice has %d elements, device buffer %d: %w",
			len(host), buf.Len(), ErrLengthMismatch)
	}
	return nil
}
