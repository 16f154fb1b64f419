package manifest

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/helioptic/kernelpool/errors"
)

// Manifest describes named kernel sets. Vars are substituted into kernel
// paths with ${NAME} syntax, falling back to the process environment for
// names the manifest does not define. This mirrors the path symbols of a
// toolkit meta-kernel, but in a form ordinary config tooling can edit.
type Manifest struct {
	Vars map[string]string   `yaml:"vars"`
	Sets map[string][]string `yaml:"sets"`
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindFileMissing, err, "read manifest")
	}
	return Parse(data)
}

// Parse parses manifest bytes.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse manifest")
	}
	if len(m.Sets) == 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, "manifest defines no kernel sets")
	}
	for name, kernels := range m.Sets {
		if len(kernels) == 0 {
			return nil, errors.InvalidInput(errors.PhaseConfig,
				fmt.Sprintf("kernel set %q is empty", name))
		}
		for _, k := range kernels {
			if k == "" {
				return nil, errors.InvalidInput(errors.PhaseConfig,
					fmt.Sprintf("kernel set %q contains an empty path", name))
			}
		}
	}
	return &m, nil
}

// SetNames returns the defined set names, sorted.
func (m *Manifest) SetNames() []string {
	names := make([]string, 0, len(m.Sets))
	for name := range m.Sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Kernels resolves the named set into concrete kernel paths, expanding
// ${NAME} references from Vars and then the environment. Unresolved
// references are an error rather than silently becoming empty path
// segments.
func (m *Manifest) Kernels(set string) ([]string, error) {
	kernels, ok := m.Sets[set]
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseConfig,
			fmt.Sprintf("kernel set %q not defined (have: %v)", set, m.SetNames()))
	}

	out := make([]string, len(kernels))
	for i, k := range kernels {
		var missing []string
		expanded := os.Expand(k, func(name string) string {
			if v, ok := m.Vars[name]; ok {
				return v
			}
			if v, ok := os.LookupEnv(name); ok {
				return v
			}
			missing = append(missing, name)
			return ""
		})
		if len(missing) > 0 {
			return nil, errors.InvalidInput(errors.PhaseConfig,
				fmt.Sprintf("undefined variable %q in kernel set %q", missing[0], set))
		}
		out[i] = expanded
	}
	return out, nil
}
