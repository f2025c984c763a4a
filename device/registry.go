package device

import (
	"fmt"
	"sort"
)

// Backend names accepted by NewBackend
const (
	Host       = "host"
	OCCASerial = "occa-serial"
	OCCAOpenMP = "occa-openmp"
	OCCACUDA   = "occa-cuda"
	OCCAOpenCL = "occa-opencl"
	WebGPU     = "webgpu"
)

var constructors = map[string]func() Backend{
	Host:       func() Backend { return NewHostBackend(0) },
	OCCASerial: func() Backend { return NewOCCABackend(ModeSerial) },
	OCCAOpenMP: func() Backend { return NewOCCABackend(ModeOpenMP) },
	OCCACUDA:   func() Backend { return NewOCCABackend(ModeCUDA) },
	OCCAOpenCL: func() Backend { return NewOCCABackend(ModeOpenCL) },
	WebGPU:     func() Backend { return NewWebGPUBackend() },
}

// Names returns the registered backend names, sorted.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewBackend returns the backend registered under name.
func NewBackend(name string) (Backend, error) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownBackend, name, Names())
	}
	return ctor(), nil
}
