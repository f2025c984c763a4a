package runner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/notargets/vecbench/device"
	"github.com/notargets/vecbench/runner/builder"
	"github.com/notargets/vecbench/utils"
)

// ErrVerification is returned by Run when at least one element of the result
// differs from the expected value by more than the tolerance.
var ErrVerification = errors.New("verification failed")

// Runner owns the host vectors, their device copies and the compiled vecadd
// kernel, and drives the benchmark pipeline
// Seed -> Upload -> RunIterations -> Download -> Verify.
type Runner struct {
	*builder.Builder
	Device device.Device
	Kernel device.Kernel

	// Host vectors
	HostA, HostB, HostC []float32

	// Device vectors
	DeviceA, DeviceB, DeviceC device.Buffer

	// Out receives the timing report and verification messages
	Out io.Writer

	// seconds per launch+fence for the first timingSampleLimit iterations
	timings []float64
	// running totals over every iteration
	launches                  int
	elapsed, fastest, slowest float64
}

// timingSampleLimit bounds the per-iteration samples kept for the median
// and standard deviation
var timingSampleLimit = 1 << 20

// Result summarises one complete pipeline run
type Result struct {
	Passed     bool
	Mismatches []int
	Report     Report
}

// NewRunner validates cfg, allocates host and device vectors of cfg.Length
// elements on dev and builds the kernel. Everything acquired before a failure
// is released again. The device itself stays owned by the caller.
func NewRunner(dev device.Device, cfg builder.Config) (*Runner, error) {
	if dev == nil {
		return nil, utils.Locate("creating runner", errors.New("nil device"))
	}
	bld, err := builder.NewBuilder(cfg)
	if err != nil {
		return nil, utils.Locate("validating configuration", err)
	}

	kr := &Runner{
		Builder: bld,
		Device:  dev,
		Out:     os.Stdout,
	}
	complete := false
	defer func() {
		if !complete {
			kr.Free()
		}
	}()

	n := bld.Length
	kr.HostA = make([]float32, n)
	kr.HostB = make([]float32, n)
	kr.HostC = make([]float32, n)

	if kr.DeviceA, err = dev.Malloc(n); err != nil {
		return nil, utils.Locate("creating buffer a", err)
	}
	if kr.DeviceB, err = dev.Malloc(n); err != nil {
		return nil, utils.Locate("creating buffer b", err)
	}
	if kr.DeviceC, err = dev.Malloc(n); err != nil {
		return nil, utils.Locate("creating buffer c", err)
	}

	if kr.Kernel, err = kr.BuildKernel(); err != nil {
		return nil, err
	}
	complete = true
	return kr, nil
}

// BuildKernel compiles the vecadd kernel for the runner's device, from
// KernelFile when configured
func (kr *Runner) BuildKernel() (device.Kernel, error) {
	src, err := kr.KernelSource(kr.Device.Language())
	if err != nil {
		return nil, utils.Locate("loading kernel source", err)
	}

	kernel, err := kr.Device.BuildKernel(device.KernelSpec{
		Name:          builder.KernelName,
		Source:        src,
		Length:        kr.Length,
		WorkgroupSize: kr.WorkgroupSize,
	})
	if err != nil {
		return nil, utils.Locate("building program", err)
	}
	return kernel, nil
}

// Seed sets every element of a to SeedA and of b to SeedB on the host
func (kr *Runner) Seed() {
	for i := range kr.HostA {
		kr.HostA[i] = kr.SeedA
		kr.HostB[i] = kr.SeedB
	}
}

// Upload copies host a and b to the device
func (kr *Runner) Upload() error {
	if err := kr.DeviceA.CopyFrom(kr.HostA); err != nil {
		return utils.Locate("writing h_a data", err)
	}
	if err := kr.DeviceB.CopyFrom(kr.HostB); err != nil {
		return utils.Locate("writing h_b data", err)
	}
	return nil
}

// RunIterations launches the kernel count times. Each launch is fenced with
// Device.Finish before the next one is issued.
func (kr *Runner) RunIterations(count int) error {
	if count < 0 || count > builder.MaxIterations {
		return utils.Locate("running iterations",
			fmt.Errorf("%w: got %d", builder.ErrInvalidIterations, count))
	}

	for itr := 0; itr < count; itr++ {
		start := time.Now()
		if err := kr.Kernel.Run(kr.DeviceA, kr.DeviceB, kr.DeviceC); err != nil {
			return utils.Locate("enqueueing vecadd kernel", err)
		}
		if err := kr.Device.Finish(); err != nil {
			return utils.Locate("waiting for vecadd kernel", err)
		}
		kr.record(time.Since(start).Seconds())
	}
	return nil
}

func (kr *Runner) record(sec float64) {
	if kr.launches == 0 || sec < kr.fastest {
		kr.fastest = sec
	}
	if kr.launches == 0 || sec > kr.slowest {
		kr.slowest = sec
	}
	kr.launches++
	kr.elapsed += sec
	if len(kr.timings) < timingSampleLimit {
		kr.timings = append(kr.timings, sec)
	}
}

// Download copies device c to the host
func (kr *Runner) Download() error {
	if err := kr.DeviceC.CopyTo(kr.HostC); err != nil {
		return utils.Locate("reading h_c data", err)
	}
	return nil
}

// Verify reports every element of host c outside Expected ± Tolerance to Out
// and returns true when there are none
func (kr *Runner) Verify() bool {
	return len(kr.verify()) == 0
}

func (kr *Runner) verify() []int {
	bad := Mismatches(kr.HostC, kr.Expected, kr.Tolerance)
	for _, i := range bad {
		fmt.Fprintf(kr.Out, "Incorrect answer at index %d\n", i)
	}
	return bad
}

// Run executes the whole pipeline with the configured iteration count,
// prints the timing report and the verification outcome, and returns
// ErrVerification alongside the result when verification fails.
func (kr *Runner) Run() (Result, error) {
	var res Result

	kr.Seed()
	if err := kr.Upload(); err != nil {
		return res, err
	}
	if err := kr.RunIterations(kr.Iterations); err != nil {
		return res, err
	}
	if err := kr.Download(); err != nil {
		return res, err
	}

	res.Report = kr.Report()
	res.Report.Print(kr.Out)

	res.Mismatches = kr.verify()
	res.Passed = len(res.Mismatches) == 0
	if !res.Passed {
		return res, fmt.Errorf("%w: %d of %d elements incorrect",
			ErrVerification, len(res.Mismatches), kr.Length)
	}
	fmt.Fprintf(kr.Out, "Success!\n")
	return res, nil
}

// Free releases the kernel, the device vectors and the host vectors in
// reverse order of acquisition. Safe to call more than once.
func (kr *Runner) Free() {
	if kr.Kernel != nil {
		kr.Kernel.Free()
		kr.Kernel = nil
	}
	for _, buf := range []*device.Buffer{&kr.DeviceC, &kr.DeviceB, &kr.DeviceA} {
		if *buf != nil {
			(*buf).Free()
			*buf = nil
		}
	}
	kr.HostC, kr.HostB, kr.HostA = nil, nil, nil
}
