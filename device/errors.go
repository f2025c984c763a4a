package device

import "errors"

var (
	// ErrUnknownBackend is returned by NewBackend for an unregistered name.
	ErrUnknownBackend = errors.New("device: unknown backend")

	// ErrNoDevice is returned when a backend exposes no devices.
	ErrNoDevice = errors.New("device: no device available")

	// ErrDeviceIndex is returned when a requested device index is out of range.
	ErrDeviceIndex = errors.New("device: device index out of range")

	// ErrLengthMismatch is returned when buffer and host slice lengths differ.
	ErrLengthMismatch = errors.New("device: length mismatch")

	// ErrNilBuffer is returned when a kernel argument is nil.
	ErrNilBuffer = errors.New("device: nil buffer")

	// ErrInvalidLength is returned for allocations of fewer than one element.
	ErrInvalidLength = errors.New("device: invalid length")

	// ErrKernelBuild is returned when kernel compilation fails.
	ErrKernelBuild = errors.New("device: kernel build failed")

	// ErrFreed is returned when a freed resource is used.
	ErrFreed = errors.New("device: resource already freed")
)
