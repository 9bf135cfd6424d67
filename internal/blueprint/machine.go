package blueprint

import (
	"slices"

	log "github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/knitplan/internal/catalog"
	"github.com/atvirokodosprendimai/knitplan/internal/spec"
)

// Machine roles. Machines get a role only when an Infrastructure is built.
const (
	RoleMaster = "Master"
	RoleWorker = "Worker"
)

// Machine is a VM template. Size, CPU, and RAM describe the provider offering
// that will be launched; CPU and RAM are informational and not part of the IR.
type Machine struct {
	ctx   *Context
	refID int
	role  string

	Provider    string
	Region      string
	Size        string
	CPU         int
	RAM         float64
	DiskSize    int
	FloatingIP  string
	SSHKeys     []string
	Preemptible bool
}

// NewMachine resolves the machine size and region for opts and returns the
// resulting Machine.
func (c *Context) NewMachine(opts MachineOptions) (*Machine, error) {
	if opts.Provider == "" {
		return nil, stageErrf(StageConstruct, "Machine must specify a provider (accepted values are %s, %s, %s, and %s)",
			catalog.Amazon, catalog.DigitalOcean, catalog.Google, catalog.Vagrant)
	}

	desc, err := catalog.Resolve(opts.Provider, opts.Size, opts.CPU, opts.RAM)
	if err != nil {
		return nil, stageErr(StageSize, err)
	}

	region := opts.Region
	if region == "" {
		if region, err = catalog.DefaultRegion(opts.Provider); err != nil {
			return nil, stageErr(StageSize, err)
		}
	}

	m := &Machine{
		ctx:         c,
		refID:       c.nextRefID(),
		Provider:    opts.Provider,
		Region:      region,
		Size:        desc.Size,
		CPU:         desc.CPU,
		RAM:         desc.RAM,
		DiskSize:    opts.DiskSize,
		FloatingIP:  opts.FloatingIP,
		SSHKeys:     cloneStrings(opts.SSHKeys),
		Preemptible: opts.Preemptible,
	}

	log.WithFields(log.Fields{
		"provider": m.Provider,
		"region":   m.Region,
		"size":     m.Size,
	}).Debug("Resolved machine")
	return m, nil
}

// Role returns RoleMaster or RoleWorker for machines owned by an
// Infrastructure, and "" for templates.
func (m *Machine) Role() string {
	return m.role
}

// Clone returns a copy of m with a new identity.
func (m *Machine) Clone() *Machine {
	cp := *m
	cp.refID = m.ctx.nextRefID()
	cp.SSHKeys = cloneStrings(m.SSHKeys)
	return &cp
}

// Replicate returns n clones of m. m itself is not included.
func (m *Machine) Replicate(n int) []*Machine {
	out := make([]*Machine, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, m.Clone())
	}
	return out
}

func (m *Machine) withRole(role string) *Machine {
	cp := m.Clone()
	cp.role = role
	return cp
}

func (m *Machine) ir() spec.Machine {
	return spec.Machine{
		Provider:    m.Provider,
		Role:        m.role,
		Region:      m.Region,
		Size:        m.Size,
		DiskSize:    m.DiskSize,
		FloatingIP:  m.FloatingIP,
		SSHKeys:     cloneStrings(m.SSHKeys),
		Preemptible: m.Preemptible,
	}
}

// cloneStrings copies s, returning an empty (non-nil) slice for nil input so
// the IR always carries [] rather than null.
func cloneStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
