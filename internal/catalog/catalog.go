// Package catalog holds the machine offerings of each supported cloud
// provider and resolves CPU/RAM constraints to a concrete instance size.
package catalog

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"

	"gopkg.in/yaml.v3"
)

// Supported providers.
const (
	Amazon       = "Amazon"
	DigitalOcean = "DigitalOcean"
	Google       = "Google"
	Vagrant      = "Vagrant"
)

// ErrUnknownProvider is returned for any provider not listed above.
var ErrUnknownProvider = errors.New("unknown cloud provider")

var defaultRegions = map[string]string{
	Amazon:       "us-west-1",
	Google:       "us-east1-b",
	DigitalOcean: "sfo2",
	Vagrant:      "",
}

// Description is one machine offering of a provider.
type Description struct {
	Size  string  `yaml:"size" json:"size"`
	CPU   int     `yaml:"cpu" json:"cpu"`
	RAM   float64 `yaml:"ram" json:"ram"` // GiB
	Price float64 `yaml:"price" json:"price"`
	// Ignored offerings are never picked automatically but may still be
	// requested by name.
	Ignored bool `yaml:"ignored,omitempty" json:"ignored,omitempty"`
}

type providerFile struct {
	Provider string        `yaml:"provider"`
	Sizes    []Description `yaml:"sizes"`
}

//go:embed data/*.yaml
var dataFS embed.FS

var catalogs = mustLoad()

func mustLoad() map[string][]Description {
	out, err := load(dataFS)
	if err != nil {
		panic(fmt.Sprintf("catalog: %v", err))
	}
	return out
}

func load(fsys embed.FS) (map[string][]Description, error) {
	entries, err := fsys.ReadDir("data")
	if err != nil {
		return nil, err
	}

	out := make(map[string][]Description, len(entries))
	for _, e := range entries {
		raw, err := fsys.ReadFile(path.Join("data", e.Name()))
		if err != nil {
			return nil, err
		}

		var pf providerFile
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&pf); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", e.Name(), err)
		}
		if _, ok := defaultRegions[pf.Provider]; !ok {
			return nil, fmt.Errorf("%s: %w: %s", e.Name(), ErrUnknownProvider, pf.Provider)
		}
		out[pf.Provider] = pf.Sizes
	}
	return out, nil
}

// Providers returns the names of all supported providers, sorted.
func Providers() []string {
	names := make([]string, 0, len(defaultRegions))
	for p := range defaultRegions {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

// Descriptions returns a copy of the provider's catalog, in catalog order.
// Vagrant has no catalog and yields an empty list.
func Descriptions(provider string) ([]Description, error) {
	if _, ok := defaultRegions[provider]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	descs := catalogs[provider]
	out := make([]Description, len(descs))
	copy(out, descs)
	return out, nil
}

// DefaultRegion returns the region used when a machine does not name one.
func DefaultRegion(provider string) (string, error) {
	region, ok := defaultRegions[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return region, nil
}
