package device

import (
	"strings"
	"testing"

	"github.com/notargets/vecbench/runner/builder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openHost(t *testing.T, workers int) Device {
	t.Helper()
	dev, err := NewHostBackend(workers).Open(0)
	require.NoError(t, err)
	t.Cleanup(dev.Free)
	return dev
}

func filled(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestHostBackend_Devices(t *testing.T) {
	b := NewHostBackend(4)
	assert.Equal(t, Host, b.Name())

	devs, err := b.Devices()
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.Equal(t, 0, devs[0].Index)
	assert.Equal(t, Host, devs[0].Backend)
	assert.True(t, strings.Contains(devs[0].Name, "4 workers"), devs[0].Name)

	_, err = b.Open(1)
	assert.ErrorIs(t, err, ErrDeviceIndex)
	_, err = b.Open(-1)
	assert.ErrorIs(t, err, ErrDeviceIndex)
}

func TestHostDevice_VectorAdd(t *testing.T) {
	testCases := []struct {
		name    string
		n       int
		workers int
	}{
		{"single_element", 1, 4},
		{"fewer_elements_than_workers", 3, 8},
		{"ragged_chunks", 10, 3},
		{"reference_size", 1024, 0},
		{"large", 1 << 16, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dev := openHost(t, tc.workers)
			assert.Equal(t, builder.Native, dev.Language())

			a, err := dev.Malloc(tc.n)
			require.NoError(t, err)
			b, err := dev.Malloc(tc.n)
			require.NoError(t, err)
			c, err := dev.Malloc(tc.n)
			require.NoError(t, err)

			hostA := make([]float32, tc.n)
			hostB := make([]float32, tc.n)
			for i := range hostA {
				hostA[i] = float32(i)
				hostB[i] = float32(2 * i)
			}
			require.NoError(t, a.CopyFrom(hostA))
			require.NoError(t, b.CopyFrom(hostB))

			k, err := dev.BuildKernel(KernelSpec{Name: builder.KernelName, Length: tc.n, WorkgroupSize: 64})
			require.NoError(t, err)
			defer k.Free()

			require.NoError(t, k.Run(a, b, c))
			require.NoError(t, dev.Finish())

			hostC := make([]float32, tc.n)
			require.NoError(t, c.CopyTo(hostC))
			for i := range hostC {
				if hostC[i] != float32(3*i) {
					t.Fatalf("Element %d: expected %v, got %v", i, float32(3*i), hostC[i])
				}
			}
		})
	}
}

func TestHostDevice_InOrderQueue(t *testing.T) {
	dev := openHost(t, 4)
	n := 4096
	a, _ := dev.Malloc(n)
	b, _ := dev.Malloc(n)
	c, _ := dev.Malloc(n)
	require.NoError(t, a.CopyFrom(filled(n, 1)))
	require.NoError(t, b.CopyFrom(filled(n, 2)))

	k, err := dev.BuildKernel(KernelSpec{Name: builder.KernelName, Length: n})
	require.NoError(t, err)

	// Back to back launches without a fence, then a copy: the copy must see
	// the finished result.
	for i := 0; i < 10; i++ {
		require.NoError(t, k.Run(a, b, c))
	}
	out := make([]float32, n)
	require.NoError(t, c.CopyTo(out))
	assert.Equal(t, filled(n, 3), out)
}

func TestHostDevice_Errors(t *testing.T) {
	dev := openHost(t, 2)

	t.Run("ZeroAllocation", func(t *testing.T) {
		_, err := dev.Malloc(0)
		assert.ErrorIs(t, err, ErrInvalidLength)
	})

	t.Run("OversizedAllocation", func(t *testing.T) {
		_, err := dev.Malloc(builder.MaxLength + 1)
		assert.ErrorIs(t, err, ErrInvalidLength)
	})

	t.Run("UnknownKernel", func(t *testing.T) {
		_, err := dev.BuildKernel(KernelSpec{Name: "scale", Length: 4})
		assert.ErrorIs(t, err, ErrKernelBuild)
	})

	t.Run("CopyLengthMismatch", func(t *testing.T) {
		buf, err := dev.Malloc(8)
		require.NoError(t, err)
		assert.ErrorIs(t, buf.CopyFrom(make([]float32, 7)), ErrLengthMismatch)
		assert.ErrorIs(t, buf.CopyTo(make([]float32, 9)), ErrLengthMismatch)
	})

	t.Run("KernelArgs", func(t *testing.T) {
		k, err := dev.BuildKernel(KernelSpec{Name: builder.KernelName, Length: 8})
		require.NoError(t, err)
		a, _ := dev.Malloc(8)
		b, _ := dev.Malloc(8)
		short, _ := dev.Malloc(4)

		assert.Error(t, k.Run(a, b))
		assert.ErrorIs(t, k.Run(a, b, short), ErrLengthMismatch)
		assert.ErrorIs(t, k.Run(a, b, nil), ErrNilBuffer)

		other := openHost(t, 1)
		foreign, _ := other.Malloc(8)
		assert.Error(t, k.Run(a, b, foreign))
	})

	t.Run("FreedBuffer", func(t *testing.T) {
		buf, _ := dev.Malloc(2)
		buf.Free()
		assert.ErrorIs(t, buf.CopyFrom(make([]float32, 2)), ErrFreed)
	})
}

func TestHostDevice_UseAfterFree(t *testing.T) {
	dev, err := NewHostBackend(2).Open(0)
	require.NoError(t, err)

	n := 16
	a, _ := dev.Malloc(n)
	b, _ := dev.Malloc(n)
	c, _ := dev.Malloc(n)
	k, err := dev.BuildKernel(KernelSpec{Name: builder.KernelName, Length: n})
	require.NoError(t, err)

	dev.Free()
	dev.Free()

	assert.ErrorIs(t, a.CopyFrom(filled(n, 1)), ErrFreed)
	assert.ErrorIs(t, c.CopyTo(make([]float32, n)), ErrFreed)
	assert.ErrorIs(t, k.Run(a, b, c), ErrFreed)
	assert.ErrorIs(t, dev.Finish(), ErrFreed)
	_, err = dev.Malloc(n)
	assert.ErrorIs(t, err, ErrFreed)
	_, err = dev.BuildKernel(KernelSpec{Name: builder.KernelName, Length: n})
	assert.ErrorIs(t, err, ErrFreed)

	// Releasing after the device is harmless
	a.Free()
	k.Free()
}

func TestRegistry(t *testing.T) {
	names := Names()
	assert.Equal(t, []string{Host, OCCACUDA, OCCAOpenCL, OCCAOpenMP, OCCASerial, WebGPU}, names)

	for _, name := range names {
		b, err := NewBackend(name)
		require.NoError(t, err)
		assert.Equal(t, name, b.Name())
	}

	_, err := NewBackend("kokkos")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
