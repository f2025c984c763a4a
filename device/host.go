package device

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/notargets/vecbench/runner/builder"
	"golang.org/x/sys/cpu"
	"gonum.org/v1/gonum/blas/blas32"
)

// HostBackend runs kernels on the host CPU. It exposes exactly one device and
// needs no native runtime, which makes it the fallback of last resort.
type HostBackend struct {
	workers int
}

// NewHostBackend returns a host backend launching kernels over the given
// number of goroutines; workers < 1 means GOMAXPROCS.
func NewHostBackend(workers int) *HostBackend {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &HostBackend{workers: workers}
}

func (b *HostBackend) Name() string { return Host }

func (b *HostBackend) Devices() ([]Info, error) {
	return []Info{b.info()}, nil
}

func (b *HostBackend) Open(index int) (Device, error) {
	if index != 0 {
		return nil, fmt.Errorf("%w: index %d, host backend has 1 device", ErrDeviceIndex, index)
	}
	return &hostDevice{info: b.info(), workers: b.workers}, nil
}

func (b *HostBackend) info() Info {
	return Info{Index: 0, Name: hostName(b.workers), Backend: Host}
}

// hostName describes the CPU with the SIMD extensions gonum's kernels use
func hostName(workers int) string {
	var feats []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasAVX2 {
			feats = append(feats, "AVX2")
		}
		if cpu.X86.HasAVX512F {
			feats = append(feats, "AVX-512")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			feats = append(feats, "ASIMD")
		}
		if cpu.ARM64.HasSVE {
			feats = append(feats, "SVE")
		}
	}
	name := fmt.Sprintf("Go host %s/%s, %d workers", runtime.GOOS, runtime.GOARCH, workers)
	if len(feats) > 0 {
		name += ", " + strings.Join(feats, " ")
	}
	return name
}

// hostDevice behaves as an in-order queue: a launch or copy first waits for
// the previous launch, Finish waits for the last one. Once freed, its buffers
// and kernels fail with ErrFreed.
type hostDevice struct {
	info    Info
	workers int
	pending sync.WaitGroup
	freed   bool
}

func (d *hostDevice) Info() Info                 { return d.info }
func (d *hostDevice) Language() builder.Language { return builder.Native }

func (d *hostDevice) Malloc(n int) (Buffer, error) {
	if d.freed {
		return nil, ErrFreed
	}
	if n < 1 || n > builder.MaxLength {
		return nil, fmt.Errorf("%w: %d elements", ErrInvalidLength, n)
	}
	return &hostBuffer{dev: d, data: make([]float32, n)}, nil
}

func (d *hostDevice) BuildKernel(spec KernelSpec) (Kernel, error) {
	if d.freed {
		return nil, ErrFreed
	}
	if spec.Name != builder.KernelName {
		return nil, fmt.Errorf("%w: host device only provides %s, not %s",
			ErrKernelBuild, builder.KernelName, spec.Name)
	}
	if spec.Length < 1 {
		return nil, fmt.Errorf("%w: %d elements", ErrInvalidLength, spec.Length)
	}
	return &hostKernel{dev: d, name: spec.Name, length: spec.Length}, nil
}

func (d *hostDevice) Finish() error {
	if d.freed {
		return ErrFreed
	}
	d.pending.Wait()
	return nil
}

func (d *hostDevice) Free() {
	d.pending.Wait()
	d.freed = true
}

type hostBuffer struct {
	dev  *hostDevice
	data []float32
}

func (b *hostBuffer) Len() int { return len(b.data) }

func (b *hostBuffer) CopyFrom(src []float32) error {
	if b.data == nil || b.dev.freed {
		return ErrFreed
	}
	if err := checkHost(b, src); err != nil {
		return err
	}
	b.dev.pending.Wait()
	copy(b.data, src)
	return nil
}

func (b *hostBuffer) CopyTo(dst []float32) error {
	if b.data == nil || b.dev.freed {
		return ErrFreed
	}
	if err := checkHost(b, dst); err != nil {
		return err
	}
	b.dev.pending.Wait()
	copy(dst, b.data)
	return nil
}

func (b *hostBuffer) Free() {
	b.dev.pending.Wait()
	b.data = nil
}

type hostKernel struct {
	dev    *hostDevice
	name   string
	length int
}

func (k *hostKernel) Name() string { return k.name }

// Run launches c = a + b, split into contiguous chunks across the workers
func (k *hostKernel) Run(args ...Buffer) error {
	if k.dev.freed {
		return ErrFreed
	}
	if len(args) != 3 {
		return fmt.Errorf("kernel %s takes 3 buffers, got %d", k.name, len(args))
	}
	if err := checkLengths(k.length, args...); err != nil {
		return fmt.Errorf("kernel %s: %w", k.name, err)
	}
	bufs := make([]*hostBuffer, 3)
	for i, arg := range args {
		hb, ok := arg.(*hostBuffer)
		if !ok || hb.dev != k.dev {
			return fmt.Errorf("kernel %s: argument %d does not belong to this device", k.name, i)
		}
		if hb.data == nil {
			return fmt.Errorf("kernel %s: argument %d: %w", k.name, i, ErrFreed)
		}
		bufs[i] = hb
	}
	a, b, c := bufs[0].data, bufs[1].data, bufs[2].data

	k.dev.pending.Wait()

	chunk := (k.length + k.dev.workers - 1) / k.dev.workers
	for lo := 0; lo < k.length; lo += chunk {
		hi := min(lo+chunk, k.length)
		k.dev.pending.Add(1)
		go func(lo, hi int) {
			defer k.dev.pending.Done()
			n := hi - lo
			x := blas32.Vector{N: n, Inc: 1, Data: a[lo:hi]}
			y := blas32.Vector{N: n, Inc: 1, Data: b[lo:hi]}
			z := blas32.Vector{N: n, Inc: 1, Data: c[lo:hi]}
			blas32.Copy(y, z)
			blas32.Axpy(1, x, z)
		}(lo, hi)
	}
	return nil
}

func (k *hostKernel) Free() {}
