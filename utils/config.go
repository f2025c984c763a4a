package utils

import (
	"fmt"
	"strconv"

	"github.com/notargets/vecbench/runner/builder"
)

// Environment variables read by the benchmark command
const (
	BackendEnv    = "VECADD_BACKEND"
	KernelFileEnv = "VECADD_KERNEL_FILE"
	IterationsEnv = "VECADD_ITERATIONS"
	LengthEnv     = "VECADD_LENGTH"
)

// LookupFunc has the signature of os.LookupEnv
type LookupFunc func(key string) (string, bool)

// RunSettings is everything the command reads from its environment
type RunSettings struct {
	Config      builder.Config
	Backend     string
	DeviceIndex int
}

// SettingsFromEnv starts from builder.Defaults and applies the environment
// overrides. Malformed values are configuration errors.
func SettingsFromEnv(lookup LookupFunc) (RunSettings, error) {
	s := RunSettings{Config: builder.Defaults(), Backend: "auto"}

	if v, ok := lookup(BackendEnv); ok && v != "" {
		s.Backend = v
	}
	if v, ok := lookup(KernelFileEnv); ok {
		s.Config.KernelFile = v
	}
	if v, ok := lookup(IterationsEnv); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return s, fmt.Errorf("invalid %s variable %q: %w", IterationsEnv, v, err)
		}
		s.Config.Iterations = n
	}
	if v, ok := lookup(LengthEnv); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return s, fmt.Errorf("invalid %s variable %q: %w", LengthEnv, v, err)
		}
		s.Config.Length = n
	}
	if v, ok := lookup(DeviceEnv); ok {
		index, err := ParseDeviceIndex(v)
		if err != nil {
			return s, err
		}
		s.DeviceIndex = index
	}

	return s, s.Config.Validate()
}
