package device

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/notargets/gocca"
	"github.com/notargets/vecbench/runner/builder"
)

// OCCA modes
const (
	ModeSerial = "Serial"
	ModeOpenMP = "OpenMP"
	ModeCUDA   = "CUDA"
	ModeOpenCL = "OpenCL"
)

const (
	maxPlatforms = 8
	maxDevices   = 32
)

// OCCABackend dispatches through OCCA in one of its modes. CUDA and OpenCL
// devices are discovered by probing device ids; OpenCL probes every platform
// and flattens the result, so device indices run across platforms.
type OCCABackend struct {
	mode string
}

// NewOCCABackend returns a backend for an OCCA mode (Serial, OpenMP, CUDA, OpenCL).
func NewOCCABackend(mode string) *OCCABackend {
	return &OCCABackend{mode: mode}
}

func (b *OCCABackend) Name() string { return "occa-" + strings.ToLower(b.mode) }

type occaTarget struct {
	platform int
	device   int
}

// props returns the OCCA device properties JSON for a target
func (b *OCCABackend) props(t occaTarget) string {
	switch b.mode {
	case ModeCUDA:
		return fmt.Sprintf(`{"mode": "CUDA", "device_id": %d}`, t.device)
	case ModeOpenCL:
		return fmt.Sprintf(`{"mode": "OpenCL", "platform_id": %d, "device_id": %d}`, t.platform, t.device)
	default:
		return fmt.Sprintf(`{"mode": "%s"}`, b.mode)
	}
}

// probe reports whether OCCA can create a device for t
func (b *OCCABackend) probe(t occaTarget) bool {
	dev, err := gocca.NewDevice(b.props(t))
	if err != nil || dev == nil {
		return false
	}
	dev.Free()
	return true
}

func (b *OCCABackend) targets() []occaTarget {
	var found []occaTarget
	switch b.mode {
	case ModeSerial, ModeOpenMP:
		if b.probe(occaTarget{}) {
			found = append(found, occaTarget{})
		}
	case ModeCUDA:
		for d := 0; d < maxDevices && b.probe(occaTarget{device: d}); d++ {
			found = append(found, occaTarget{device: d})
		}
	case ModeOpenCL:
		for p := 0; p < maxPlatforms; p++ {
			d := 0
			for ; len(found) < maxDevices && b.probe(occaTarget{platform: p, device: d}); d++ {
				found = append(found, occaTarget{platform: p, device: d})
			}
			if d == 0 {
				break
			}
		}
	}
	return found
}

func (b *OCCABackend) info(index int, t occaTarget) Info {
	name := "OCCA " + b.mode
	switch b.mode {
	case ModeCUDA:
		name = fmt.Sprintf("OCCA CUDA device %d", t.device)
	case ModeOpenCL:
		name = fmt.Sprintf("OCCA OpenCL platform %d device %d", t.platform, t.device)
	}
	return Info{Index: index, Name: name, Backend: b.Name()}
}

func (b *OCCABackend) Devices() ([]Info, error) {
	targets := b.targets()
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: OCCA mode %s", ErrNoDevice, b.mode)
	}
	infos := make([]Info, len(targets))
	for i, t := range targets {
		infos[i] = b.info(i, t)
	}
	return infos, nil
}

func (b *OCCABackend) Open(index int) (Device, error) {
	targets := b.targets()
	if index < 0 || index >= len(targets) {
		return nil, fmt.Errorf("%w: index %d, OCCA mode %s has %d devices",
			ErrDeviceIndex, index, b.mode, len(targets))
	}
	dev, err := gocca.NewDevice(b.props(targets[index]))
	if err != nil {
		return nil, fmt.Errorf("creating OCCA %s device: %w", b.mode, err)
	}
	return &occaDevice{dev: dev, info: b.info(index, targets[index])}, nil
}

type occaDevice struct {
	dev  *gocca.OCCADevice
	info Info
}

func (d *occaDevice) Info() Info                 { return d.info }
func (d *occaDevice) Language() builder.Language { return builder.OKL }

func (d *occaDevice) Malloc(n int) (Buffer, error) {
	if d.dev == nil {
		return nil, ErrFreed
	}
	if n < 1 || n > builder.MaxLength {
		return nil, fmt.Errorf("%w: %d elements", ErrInvalidLength, n)
	}
	mem := d.dev.Malloc(int64(n*4), nil, nil)
	if mem == nil {
		return nil, fmt.Errorf("OCCA %s: allocating %d bytes failed", d.dev.Mode(), n*4)
	}
	return &occaBuffer{mem: mem, n: n}, nil
}

// BuildKernel compiles OKL source. OCCA does not pass -O3 to OpenMP builds by
// default, so it is added explicitly there.
func (d *occaDevice) BuildKernel(spec KernelSpec) (Kernel, error) {
	if d.dev == nil {
		return nil, ErrFreed
	}
	var kernel *gocca.OCCAKernel
	var err error

	if d.dev.Mode() == ModeOpenMP {
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = d.dev.BuildKernelFromString(spec.Source, spec.Name, props)
	} else {
		kernel, err = d.dev.BuildKernelFromString(spec.Source, spec.Name, nil)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrKernelBuild, spec.Name, err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("%w: build returned nil for %s", ErrKernelBuild, spec.Name)
	}
	return &occaKernel{kernel: kernel, name: spec.Name, length: spec.Length}, nil
}

func (d *occaDevice) Finish() error {
	if d.dev == nil {
		return ErrFreed
	}
	d.dev.Finish()
	return nil
}

func (d *occaDevice) Free() {
	if d.dev != nil {
		d.dev.Free()
		d.dev = nil
	}
}

type occaBuffer struct {
	mem *gocca.OCCAMemory
	n   int
}

func (b *occaBuffer) Len() int { return b.n }

func (b *occaBuffer) CopyFrom(src []float32) error {
	if b.mem == nil {
		return ErrFreed
	}
	if err := checkHost(b, src); err != nil {
		return err
	}
	b.mem.CopyFrom(unsafe.Pointer(&src[0]), int64(len(src)*4))
	return nil
}

func (b *occaBuffer) CopyTo(dst []float32) error {
	if b.mem == nil {
		return ErrFreed
	}
	if err := checkHost(b, dst); err != nil {
		return err
	}
	b.mem.CopyTo(unsafe.Pointer(&dst[0]), int64(len(dst)*4))
	return nil
}

func (b *occaBuffer) Free() {
	if b.mem != nil {
		b.mem.Free()
		b.mem = nil
	}
}

type occaKernel struct {
	kernel *gocca.OCCAKernel
	name   string
	length int
}

func (k *occaKernel) Name() string { return k.name }

func (k *occaKernel) Run(args ...Buffer) error {
	if k.kernel == nil {
		return ErrFreed
	}
	if err := checkLengths(k.length, args...); err != nil {
		return fmt.Errorf("kernel %s: %w", k.name, err)
	}
	mems := make([]interface{}, len(args))
	for i, arg := range args {
		ob, ok := arg.(*occaBuffer)
		if !ok || ob.mem == nil {
			return fmt.Errorf("kernel %s: argument %d is not live OCCA memory", k.name, i)
		}
		mems[i] = ob.mem
	}
	if err := k.kernel.RunWithArgs(mems...); err != nil {
		return fmt.Errorf("kernel %s execution failed: %w", k.name, err)
	}
	return nil
}

func (k *occaKernel) Free() {
	if k.kernel != nil {
		k.kernel.Free()
		k.kernel = nil
	}
}
