package catalog

import (
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/knitplan/internal/spec"
)

var (
	// ErrInvalidSize means the requested size is not in the catalog.
	ErrInvalidSize = errors.New("invalid machine size")
	// ErrNoValidSize means no offering satisfies the constraints.
	ErrNoValidSize = errors.New("no valid size")
	// ErrConstraint means the requested size does not satisfy the constraints.
	ErrConstraint = errors.New("size does not meet requirements")
)

// Resolve picks the machine offering for provider. When size is set, it must
// exist in the catalog and satisfy cpu and ram; otherwise the cheapest
// offering satisfying both is chosen.
func Resolve(provider, size string, cpu, ram spec.Range) (Description, error) {
	if provider == Vagrant {
		return VagrantSize(cpu, ram), nil
	}

	descs, ok := catalogs[provider]
	if !ok {
		return Description{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	if size != "" {
		d, err := Verify(descs, size, cpu, ram)
		if err != nil {
			return Description{}, fmt.Errorf("provider %s: %w", provider, err)
		}
		return d, nil
	}

	d, err := Cheapest(descs, cpu, ram)
	if err != nil {
		return Description{}, fmt.Errorf("provider %s: %w", provider, err)
	}
	return d, nil
}

// Verify looks size up in descs and checks it against the constraints.
func Verify(descs []Description, size string, cpu, ram spec.Range) (Description, error) {
	for _, d := range descs {
		if d.Size != size {
			continue
		}
		if !ram.InRange(d.RAM) {
			return Description{}, fmt.Errorf("%w: requested size %q does not meet RAM requirement %s (instance RAM: %v)",
				ErrConstraint, size, ram, d.RAM)
		}
		if !cpu.InRange(float64(d.CPU)) {
			return Description{}, fmt.Errorf("%w: requested size %q does not meet CPU requirement %s (instance CPU: %d)",
				ErrConstraint, size, cpu, d.CPU)
		}
		return d, nil
	}
	return Description{}, fmt.Errorf("%w %q", ErrInvalidSize, size)
}

// Cheapest returns the lowest-priced offering that satisfies cpu and ram.
// Ignored offerings are skipped and the first of equally priced offerings
// wins.
func Cheapest(descs []Description, cpu, ram spec.Range) (Description, error) {
	var (
		best  Description
		found bool
	)
	for _, d := range descs {
		if d.Ignored {
			continue
		}
		if !ram.InRange(d.RAM) || !cpu.InRange(float64(d.CPU)) {
			continue
		}
		if !found || d.Price < best.Price {
			best, found = d, true
		}
	}
	if !found {
		return Description{}, fmt.Errorf("%w for CPU %s and RAM %s", ErrNoValidSize, cpu, ram)
	}
	return best, nil
}

// VagrantSize synthesizes a "ram,cpu" size from the lower bounds, each
// rounded up to at least 1.
func VagrantSize(cpu, ram spec.Range) Description {
	r := ram.Min
	if r < 1 {
		r = 1
	}
	c := cpu.Min
	if c < 1 {
		c = 1
	}
	return Description{
		Size: fmt.Sprintf("%d,%d", r, c),
		CPU:  c,
		RAM:  float64(r),
	}
}
