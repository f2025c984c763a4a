package device

import (
	"fmt"
	"strings"

	"github.com/notargets/vecbench/runner/builder"
	"github.com/openfluke/webgpu/wgpu"
)

// WebGPUBackend dispatches WGSL compute shaders through wgpu-native.
// Devices are the adapters reported by the instance, in enumeration order.
type WebGPUBackend struct{}

func NewWebGPUBackend() *WebGPUBackend { return &WebGPUBackend{} }

func (b *WebGPUBackend) Name() string { return WebGPU }

func adapterName(a *wgpu.Adapter) string {
	info := a.GetInfo()
	name := strings.TrimSpace(info.Name)
	if vendor := strings.TrimSpace(info.VendorName); vendor != "" {
		name = fmt.Sprintf("%s (%s)", name, vendor)
	}
	return name
}

func (b *WebGPUBackend) Devices() ([]Info, error) {
	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return nil, fmt.Errorf("%w: failed to create WebGPU instance", ErrNoDevice)
	}
	defer inst.Release()

	adapters := inst.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return nil, fmt.Errorf("%w: no WebGPU adapters", ErrNoDevice)
	}
	infos := make([]Info, len(adapters))
	for i, a := range adapters {
		infos[i] = Info{Index: i, Name: adapterName(a), Backend: WebGPU}
		a.Release()
	}
	return infos, nil
}

func (b *WebGPUBackend) Open(index int) (Device, error) {
	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return nil, fmt.Errorf("%w: failed to create WebGPU instance", ErrNoDevice)
	}

	adapters := inst.EnumerateAdapters(nil)
	if index < 0 || index >= len(adapters) {
		for _, a := range adapters {
			a.Release()
		}
		inst.Release()
		return nil, fmt.Errorf("%w: index %d, %d WebGPU adapters", ErrDeviceIndex, index, len(adapters))
	}
	for i, a := range adapters {
		if i != index {
			a.Release()
		}
	}
	adapter := adapters[index]

	dev, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{})
	if err != nil {
		adapter.Release()
		inst.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}

	return &webgpuDevice{
		instance: inst,
		adapter:  adapter,
		dev:      dev,
		queue:    dev.GetQueue(),
		info:     Info{Index: index, Name: adapterName(adapter), Backend: WebGPU},
	}, nil
}

type webgpuDevice struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	dev      *wgpu.Device
	queue    *wgpu.Queue
	info     Info
}

func (d *webgpuDevice) Info() Info                 { return d.info }
func (d *webgpuDevice) Language() builder.Language { return builder.WGSL }

func (d *webgpuDevice) Malloc(n int) (Buffer, error) {
	if d.dev == nil {
		return nil, ErrFreed
	}
	if n < 1 || n > builder.MaxLength {
		return nil, fmt.Errorf("%w: %d elements", ErrInvalidLength, n)
	}
	buf, err := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: fmt.Sprintf("vec_%d", n),
		Size:  uint64(n * 4),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer: %w", err)
	}
	return &webgpuBuffer{dev: d, buf: buf, n: n}, nil
}

// BuildKernel compiles a WGSL module with an explicit bind group layout:
// bindings 0 and 1 are read-only inputs, binding 2 the output.
func (d *webgpuDevice) BuildKernel(spec KernelSpec) (Kernel, error) {
	if d.dev == nil {
		return nil, ErrFreed
	}
	if spec.WorkgroupSize < 1 {
		return nil, fmt.Errorf("%w: workgroup size %d", ErrKernelBuild, spec.WorkgroupSize)
	}

	module, err := d.dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          spec.Name + "_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: spec.Source},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: shader compile: %w", ErrKernelBuild, spec.Name, err)
	}
	defer module.Release()

	layout, err := d.dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: spec.Name + "_BGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}},
			{Binding: 1, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: bind group layout: %w", ErrKernelBuild, spec.Name, err)
	}

	pipelineLayout, err := d.dev.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            spec.Name + "_Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		layout.Release()
		return nil, fmt.Errorf("%w: %s: pipeline layout: %w", ErrKernelBuild, spec.Name, err)
	}
	defer pipelineLayout.Release()

	pipeline, err := d.dev.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  spec.Name + "_Pipe",
		Layout: pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: spec.Name,
		},
	})
	if err != nil {
		layout.Release()
		return nil, fmt.Errorf("%w: %s: pipeline: %w", ErrKernelBuild, spec.Name, err)
	}

	return &webgpuKernel{
		dev:        d,
		name:       spec.Name,
		length:     spec.Length,
		workgroups: uint32((spec.Length + spec.WorkgroupSize - 1) / spec.WorkgroupSize),
		layout:     layout,
		pipeline:   pipeline,
	}, nil
}

// Finish blocks until the queue has drained
func (d *webgpuDevice) Finish() error {
	if d.dev == nil {
		return ErrFreed
	}
	d.dev.Poll(true, nil)
	return nil
}

func (d *webgpuDevice) Free() {
	if d.dev == nil {
		return
	}
	d.dev.Poll(true, nil)
	d.queue.Release()
	d.dev.Release()
	d.adapter.Release()
	d.instance.Release()
	d.dev = nil
}

type webgpuBuffer struct {
	dev *webgpuDevice
	buf *wgpu.Buffer
	n   int
}

func (b *webgpuBuffer) Len() int { return b.n }

// CopyFrom writes through the queue and waits for it, so the host slice may
// be reused as soon as it returns
func (b *webgpuBuffer) CopyFrom(src []float32) error {
	if b.buf == nil {
		return ErrFreed
	}
	if err := checkHost(b, src); err != nil {
		return err
	}
	b.dev.queue.WriteBuffer(b.buf, 0, wgpu.ToBytes(src))
	b.dev.dev.Poll(true, nil)
	return nil
}

// CopyTo reads back through a MapRead staging buffer
func (b *webgpuBuffer) CopyTo(dst []float32) error {
	if b.buf == nil {
		return ErrFreed
	}
	if err := checkHost(b, dst); err != nil {
		return err
	}
	d := b.dev
	sizeBytes := uint64(b.n * 4)

	staging, err := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "ReadStaging",
		Size:  sizeBytes,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create staging buffer: %w", err)
	}
	defer staging.Destroy()

	encoder, err := d.dev.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	encoder.CopyBufferToBuffer(b.buf, 0, staging, 0, sizeBytes)
	cmd, err := encoder.Finish(nil)
	encoder.Release()
	if err != nil {
		return fmt.Errorf("finish command: %w", err)
	}
	d.queue.Submit(cmd)
	cmd.Release()

	done := false
	var mapErr error
	err = staging.MapAsync(wgpu.MapModeRead, 0, sizeBytes, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("map failed: %v", status)
		}
		done = true
	})
	if err != nil {
		return fmt.Errorf("MapAsync failed: %w", err)
	}
	for !done {
		d.dev.Poll(true, nil)
	}
	if mapErr != nil {
		return mapErr
	}

	data := staging.GetMappedRange(0, uint(sizeBytes))
	if data == nil {
		return fmt.Errorf("failed to get mapped range")
	}
	copy(dst, wgpu.FromBytes[float32](data))
	staging.Unmap()
	return nil
}

func (b *webgpuBuffer) Free() {
	if b.buf != nil {
		b.buf.Destroy()
		b.buf.Release()
		b.buf = nil
	}
}

type webgpuKernel struct {
	dev        *webgpuDevice
	name       string
	length     int
	workgroups uint32
	layout     *wgpu.BindGroupLayout
	pipeline   *wgpu.ComputePipeline

	// bind group for the last argument set, rebuilt when arguments change
	bound     [3]*wgpu.Buffer
	bindGroup *wgpu.BindGroup
}

func (k *webgpuKernel) Name() string { return k.name }

func (k *webgpuKernel) bind(args []Buffer) error {
	var bufs [3]*wgpu.Buffer
	for i, arg := range args {
		wb, ok := arg.(*webgpuBuffer)
		if !ok || wb.buf == nil || wb.dev != k.dev {
			return fmt.Errorf("kernel %s: argument %d is not a live buffer of this device", k.name, i)
		}
		bufs[i] = wb.buf
	}
	if k.bindGroup != nil && bufs == k.bound {
		return nil
	}
	if k.bindGroup != nil {
		k.bindGroup.Release()
		k.bindGroup = nil
	}

	entries := make([]wgpu.BindGroupEntry, len(bufs))
	for i, buf := range bufs {
		entries[i] = wgpu.BindGroupEntry{Binding: uint32(i), Buffer: buf, Size: buf.GetSize()}
	}
	bg, err := k.dev.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   k.name + "_Bind",
		Layout:  k.layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("kernel %s: bind group: %w", k.name, err)
	}
	k.bindGroup, k.bound = bg, bufs
	return nil
}

func (k *webgpuKernel) Run(args ...Buffer) error {
	if k.pipeline == nil {
		return ErrFreed
	}
	if len(args) != 3 {
		return fmt.Errorf("kernel %s takes 3 buffers, got %d", k.name, len(args))
	}
	if err := checkLengths(k.length, args...); err != nil {
		return fmt.Errorf("kernel %s: %w", k.name, err)
	}
	if err := k.bind(args); err != nil {
		return err
	}

	enc, err := k.dev.dev.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("kernel %s: command encoder: %w", k.name, err)
	}
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, k.bindGroup, nil)
	pass.DispatchWorkgroups(k.workgroups, 1, 1)
	pass.End()
	pass.Release()

	cmd, err := enc.Finish(nil)
	enc.Release()
	if err != nil {
		return fmt.Errorf("kernel %s: finish command: %w", k.name, err)
	}
	k.dev.queue.Submit(cmd)
	cmd.Release()
	return nil
}

func (k *webgpuKernel) Free() {
	if k.bindGroup != nil {
		k.bindGroup.Release()
		k.bindGroup = nil
	}
	if k.pipeline != nil {
		k.pipeline.Release()
		k.pipeline = nil
	}
	if k.layout != nil {
		k.layout.Release()
		k.layout = nil
	}
}
