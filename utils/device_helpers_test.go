package utils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/notargets/vecbench/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeviceIndex(t *testing.T) {
	testCases := []struct {
		value   string
		index   int
		wantErr bool
	}{
		{"0", 0, false},
		{"3", 3, false},
		{" 2\n", 2, false},
		{"", 0, true},
		{"1x", 0, true},
		{"-1", 0, true},
		{"gpu", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.value, func(t *testing.T) {
			index, err := ParseDeviceIndex(tc.value)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.index, index)
		})
	}
}

func TestResolveBackend(t *testing.T) {
	b, err := ResolveBackend(device.Host)
	require.NoError(t, err)
	assert.Equal(t, device.Host, b.Name())

	_, err = ResolveBackend("bogus")
	assert.ErrorIs(t, err, device.ErrUnknownBackend)

	// The host backend always has a device, so auto never fails
	for _, name := range []string{"", "auto"} {
		b, err = ResolveBackend(name)
		require.NoError(t, err)
		assert.Contains(t, AutoBackends, b.Name())
	}
}

func TestSelectDevice(t *testing.T) {
	backend := device.NewHostBackend(2)

	t.Run("Selected", func(t *testing.T) {
		var out bytes.Buffer
		dev, err := SelectDevice(&out, backend, 0)
		require.NoError(t, err)
		defer dev.Free()

		text := out.String()
		assert.True(t, strings.HasPrefix(text, "\nAvailable host devices:\n 0: "), text)
		assert.Contains(t, text, "Selected host device:\n-> "+dev.Info().Name+" (index=0)\n\n")
	})

	t.Run("OutOfRange", func(t *testing.T) {
		var out bytes.Buffer
		dev, err := SelectDevice(&out, backend, 1)
		assert.Nil(t, dev)
		assert.ErrorIs(t, err, device.ErrDeviceIndex)
		assert.Contains(t, err.Error(), "device index set to 1 but only 1 devices available")
		assert.Contains(t, out.String(), "Available host devices:")
		assert.NotContains(t, out.String(), "Selected")
	})
}

func TestCreateTestDevice(t *testing.T) {
	dev := CreateTestDevice()
	require.NotNil(t, dev)
	defer dev.Free()
	assert.Contains(t, AutoBackends, dev.Info().Backend)
}
