package builder

import (
	"fmt"
	"strings"

	"golang.org/x/exp/mmap"
)

// GenerateKernel returns the vecadd kernel body for the given language.
// The body relies on the constants emitted by GeneratePreamble.
func (kb *Builder) GenerateKernel(lang Language) string {
	switch lang {
	case OKL:
		return fmt.Sprintf(`
@kernel void %s(
	const real_t* a,
	const real_t* b,
	real_t* c
) {
	for (int group = 0; group < (VEC_LEN + WG_SIZE - 1) / WG_SIZE; ++group; @outer) {
		for (int lane = 0; lane < WG_SIZE; ++lane; @inner) {
			const int i = group * WG_SIZE + lane;
			if (i < VEC_LEN) {
				c[i] = a[i] + b[i];
			}
		}
	}
}
`, KernelName)
	case WGSL:
		return fmt.Sprintf(`
@group(0) @binding(0) var<storage, read> a : array<f32>;
@group(0) @binding(1) var<storage, read> b : array<f32>;
@group(0) @binding(2) var<storage, read_write> c : array<f32>;

@compute @workgroup_size(%d)
fn %s(@builtin(global_invocation_id) gid : vec3<u32>) {
	let i = gid.x;
	if (i < VEC_LEN) {
		c[i] = a[i] + b[i];
	}
}
`, kb.WorkgroupSize, KernelName)
	default:
		return ""
	}
}

// KernelSource returns the complete source to compile for lang: the preamble
// followed by either the generated kernel or the contents of KernelFile.
// Native devices get an empty source.
func (kb *Builder) KernelSource(lang Language) (string, error) {
	if lang == Native {
		return "", nil
	}

	body := kb.GenerateKernel(lang)
	if kb.KernelFile != "" {
		var err error
		if body, err = LoadKernelFile(kb.KernelFile); err != nil {
			return "", err
		}
	}

	return kb.GeneratePreamble(lang) + body, nil
}

// LoadKernelFile reads a plain-text kernel source file
func LoadKernelFile(path string) (string, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: could not open kernel file %s: %w", ErrKernelFile, path, err)
	}
	defer r.Close()

	if r.Len() == 0 {
		return "", fmt.Errorf("%w: kernel file %s is empty", ErrKernelFile, path)
	}

	buf := make([]byte, r.Len())
	if _, err := r.ReadAt(buf, 0); err != nil {
		return "", fmt.Errorf("%w: reading kernel file %s: %w", ErrKernelFile, path, err)
	}

	src := string(buf)
	if !strings.Contains(src, KernelName) {
		return "", fmt.Errorf("%w: kernel file %s does not define %s", ErrKernelFile, path, KernelName)
	}
	return src, nil
}
