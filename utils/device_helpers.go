package utils

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/notargets/vecbench/device"
)

// DeviceEnv selects the device index within the chosen backend
const DeviceEnv = "OCL_DEVICE"

// AutoBackends is the fallback order used when no backend is requested:
// parallel OCCA modes first, then OCCA Serial, then the host.
var AutoBackends = []string{
	device.OCCAOpenMP,
	device.OCCACUDA,
	device.OCCASerial,
	device.Host,
}

// CreateTestDevice creates a Device for testing, preferring parallel backends
func CreateTestDevice() device.Device {
	for _, name := range AutoBackends {
		backend, err := device.NewBackend(name)
		if err != nil {
			continue
		}
		dev, err := backend.Open(0)
		if err == nil {
			fmt.Printf("Created %s Device\n", dev.Info().Backend)
			return dev
		}
	}

	// Should not reach here, the host backend always opens
	panic("Failed to create any Device")
}

// ResolveBackend returns the named backend, or for "auto" (or empty) the
// first backend of AutoBackends that reports at least one device.
func ResolveBackend(name string) (device.Backend, error) {
	if name != "" && name != "auto" {
		return device.NewBackend(name)
	}
	for _, candidate := range AutoBackends {
		backend, err := device.NewBackend(candidate)
		if err != nil {
			continue
		}
		if devs, err := backend.Devices(); err == nil && len(devs) > 0 {
			return backend, nil
		}
	}
	return nil, fmt.Errorf("%w: no backend in %v has a device", device.ErrNoDevice, AutoBackends)
}

// ParseDeviceIndex parses an OCL_DEVICE value. Trailing garbage and negative
// values are rejected.
func ParseDeviceIndex(value string) (int, error) {
	index, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s variable %q: %w", DeviceEnv, value, err)
	}
	if index < 0 {
		return 0, fmt.Errorf("invalid %s variable %q: negative index", DeviceEnv, value)
	}
	return index, nil
}

// SelectDevice prints the devices of backend to w, opens the one at index
// and prints the selection banner. An out-of-range index fails before the
// device is opened.
func SelectDevice(w io.Writer, backend device.Backend, index int) (device.Device, error) {
	devs, err := backend.Devices()
	if err != nil {
		return nil, fmt.Errorf("listing %s devices: %w", backend.Name(), err)
	}

	fmt.Fprintf(w, "\nAvailable %s devices:\n", backend.Name())
	for _, d := range devs {
		fmt.Fprintf(w, "%2d: %s\n", d.Index, d.Name)
	}
	fmt.Fprintf(w, "\n")

	if index >= len(devs) {
		return nil, fmt.Errorf("%w: device index set to %d but only %d devices available",
			device.ErrDeviceIndex, index, len(devs))
	}

	dev, err := backend.Open(index)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(w, "Selected %s device:\n-> %s (index=%d)\n\n", backend.Name(), dev.Info().Name, index)
	return dev, nil
}
