package device

import (
	"testing"

	"github.com/notargets/vecbench/runner/builder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openOCCASerial(t *testing.T) Device {
	t.Helper()
	dev, err := NewOCCABackend(ModeSerial).Open(0)
	if err != nil {
		t.Skipf("OCCA Serial device unavailable: %v", err)
	}
	t.Cleanup(dev.Free)
	return dev
}

func TestOCCABackend_Names(t *testing.T) {
	assert.Equal(t, OCCASerial, NewOCCABackend(ModeSerial).Name())
	assert.Equal(t, OCCAOpenMP, NewOCCABackend(ModeOpenMP).Name())
	assert.Equal(t, OCCACUDA, NewOCCABackend(ModeCUDA).Name())
	assert.Equal(t, OCCAOpenCL, NewOCCABackend(ModeOpenCL).Name())

	_, err := NewOCCABackend(ModeSerial).Open(-1)
	assert.ErrorIs(t, err, ErrDeviceIndex)
}

func TestOCCADevice_VectorAdd(t *testing.T) {
	dev := openOCCASerial(t)
	assert.Equal(t, builder.OKL, dev.Language())

	n := 1000
	kb, err := builder.NewBuilder(builder.Config{Length: n})
	require.NoError(t, err)
	src, err := kb.KernelSource(builder.OKL)
	require.NoError(t, err)

	k, err := dev.BuildKernel(KernelSpec{Name: builder.KernelName, Source: src, Length: n, WorkgroupSize: kb.WorkgroupSize})
	require.NoError(t, err)
	defer k.Free()

	a, err := dev.Malloc(n)
	require.NoError(t, err)
	defer a.Free()
	b, err := dev.Malloc(n)
	require.NoError(t, err)
	defer b.Free()
	c, err := dev.Malloc(n)
	require.NoError(t, err)
	defer c.Free()

	require.NoError(t, a.CopyFrom(filled(n, 1)))
	require.NoError(t, b.CopyFrom(filled(n, 2)))
	for i := 0; i < 3; i++ {
		require.NoError(t, k.Run(a, b, c))
		require.NoError(t, dev.Finish())
	}

	out := make([]float32, n)
	require.NoError(t, c.CopyTo(out))
	assert.Equal(t, filled(n, 3), out)

	assert.ErrorIs(t, c.CopyTo(make([]float32, n-1)), ErrLengthMismatch)
	assert.ErrorIs(t, k.Run(a, b, nil), ErrNilBuffer)
}

func TestOCCADevice_BuildFailure(t *testing.T) {
	dev := openOCCASerial(t)
	_, err := dev.BuildKernel(KernelSpec{Name: builder.KernelName, Source: "@kernel void vecadd( {", Length: 4})
	assert.ErrorIs(t, err, ErrKernelBuild)
}
