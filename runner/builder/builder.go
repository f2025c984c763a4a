package builder

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// DataType represents the precision of numerical data
type DataType int

const (
	Float32 DataType = iota + 1
	Float64
)

// Language identifies the kernel source dialect a device compiles
type Language int

const (
	// Native devices execute the kernel in Go and ignore kernel source
	Native Language = iota
	// OKL is the OCCA kernel language
	OKL
	// WGSL is the WebGPU shading language
	WGSL
)

func (l Language) String() string {
	switch l {
	case OKL:
		return "OKL"
	case WGSL:
		return "WGSL"
	default:
		return "native"
	}
}

// Defaults for the vector add benchmark
const (
	DefaultLength        = 1024
	DefaultIterations    = 100000
	DefaultWorkgroupSize = 64
	DefaultExpected      = 3.0
	DefaultTolerance     = 1e-5
	DefaultSeedA         = 1.0
	DefaultSeedB         = 2.0

	// KernelName is the entry point every vecadd kernel source must define
	KernelName = "vecadd"
)

// Upper bounds on user supplied sizes. MaxLength keeps the byte size of one
// float32 vector within a 32-bit int; MaxIterations bounds a single run.
const (
	MaxLength     = math.MaxInt32 / 4
	MaxIterations = 1_000_000_000
)

var (
	// ErrInvalidLength is returned for a vector length below one or above MaxLength.
	ErrInvalidLength = errors.New("vector length out of range")

	// ErrInvalidIterations is returned for a negative iteration count or one above MaxIterations.
	ErrInvalidIterations = errors.New("iteration count out of range")

	// ErrInvalidWorkgroup is returned for a negative workgroup size.
	ErrInvalidWorkgroup = errors.New("workgroup size must be positive")

	// ErrKernelFile is returned when the external kernel source cannot be used.
	ErrKernelFile = errors.New("kernel file unusable")
)

// Config holds configuration for creating a Builder.
// Zero WorkgroupSize, FloatType and Tolerance take the package defaults, and
// zero seeds with a zero expectation take the reference values. Length and
// Iterations are used as given.
//
// A zero Tolerance always means "unset", so an exact match cannot be
// requested; use the smallest positive float32 for that.
type Config struct {
	Length        int
	Iterations    int
	WorkgroupSize int
	FloatType     DataType

	Expected  float32
	Tolerance float32
	SeedA     float32
	SeedB     float32

	// KernelFile, when set, replaces the generated kernel body
	KernelFile string
}

// Defaults returns the configuration of the reference benchmark:
// 1024 elements, 100,000 iterations, a=1, b=2, expecting 3 within 1e-5.
func Defaults() Config {
	return Config{
		Length:        DefaultLength,
		Iterations:    DefaultIterations,
		WorkgroupSize: DefaultWorkgroupSize,
		FloatType:     Float32,
		Expected:      DefaultExpected,
		Tolerance:     DefaultTolerance,
		SeedA:         DefaultSeedA,
		SeedB:         DefaultSeedB,
	}
}

// Validate checks the configuration without applying defaults
func (cfg Config) Validate() error {
	if cfg.Length <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidLength, cfg.Length)
	}
	if cfg.Length > MaxLength {
		return fmt.Errorf("%w: got %d, at most %d", ErrInvalidLength, cfg.Length, MaxLength)
	}
	if cfg.Iterations < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidIterations, cfg.Iterations)
	}
	if cfg.Iterations > MaxIterations {
		return fmt.Errorf("%w: got %d, at most %d", ErrInvalidIterations, cfg.Iterations, MaxIterations)
	}
	if cfg.WorkgroupSize < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkgroup, cfg.WorkgroupSize)
	}
	if cfg.FloatType != 0 && cfg.FloatType != Float32 {
		return fmt.Errorf("unsupported float type %d: only Float32 vectors are benchmarked", cfg.FloatType)
	}
	return nil
}

// Builder generates kernel source for a validated configuration
type Builder struct {
	Config

	// Generated code
	KernelPreamble string
}

// NewBuilder validates cfg, fills unset fields with defaults and returns a
// Builder. Length is never defaulted: a zero length is a configuration error.
func NewBuilder(cfg Config) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	def := Defaults()
	if cfg.WorkgroupSize == 0 {
		cfg.WorkgroupSize = def.WorkgroupSize
	}
	if cfg.FloatType == 0 {
		cfg.FloatType = def.FloatType
	}
	if cfg.Tolerance == 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.SeedA == 0 && cfg.SeedB == 0 && cfg.Expected == 0 {
		cfg.SeedA, cfg.SeedB, cfg.Expected = def.SeedA, def.SeedB, def.Expected
	}
	return &Builder{Config: cfg}, nil
}

// BytesPerVector returns the device allocation size of one vector
func (kb *Builder) BytesPerVector() int64 {
	return int64(kb.Length) * 4
}

// GeneratePreamble generates the type definitions and constants prepended to
// every kernel in the given language
func (kb *Builder) GeneratePreamble(lang Language) string {
	var sb strings.Builder

	switch lang {
	case OKL:
		sb.WriteString("typedef float real_t;\n")
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("#define VEC_LEN %d\n", kb.Length))
		sb.WriteString(fmt.Sprintf("#define WG_SIZE %d\n", kb.WorkgroupSize))
		sb.WriteString("\n")
	case WGSL:
		sb.WriteString(fmt.Sprintf("const VEC_LEN : u32 = %du;\n", kb.Length))
		sb.WriteString("\n")
	}

	kb.KernelPreamble = sb.String()
	return kb.KernelPreamble
}

// WorkgroupCount returns the number of workgroups needed to cover the vector
func (kb *Builder) WorkgroupCount() int {
	return (kb.Length + kb.WorkgroupSize - 1) / kb.WorkgroupSize
}
