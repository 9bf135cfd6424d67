package blueprint

import (
	log "github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/knitplan/internal/spec"
)

// Infrastructure is the root of a blueprint: the machines to boot and the
// containers and load balancers to run on them. A Context owns at most one.
type Infrastructure struct {
	ctx *Context

	namespace string
	adminACL  []string
	machines  []*Machine

	containers    []*Container
	containerSet  map[*Container]struct{}
	loadBalancers []*LoadBalancer
}

// NewInfrastructure creates the Infrastructure of c. Every machine is cloned
// and tagged with its role, so masters and workers may share a template.
func (c *Context) NewInfrastructure(masters, workers []*Machine, opts InfrastructureOptions) (*Infrastructure, error) {
	if c.infra != nil {
		return nil, stageErrf(StageInfrastructure, "the Infrastructure constructor has already been called once "+
			"(each blueprint can only define one Infrastructure)")
	}
	if len(masters) == 0 {
		return nil, stageErrf(StageConstruct, "masters must include at least one machine")
	}
	if len(workers) == 0 {
		return nil, stageErrf(StageConstruct, "workers must include at least one machine")
	}

	infra := &Infrastructure{
		ctx:          c,
		namespace:    opts.Namespace,
		adminACL:     cloneStrings(opts.AdminACL),
		containerSet: make(map[*Container]struct{}),
	}
	if infra.namespace == "" {
		infra.namespace = DefaultNamespace
	}

	for _, group := range []struct {
		role     string
		machines []*Machine
	}{{RoleMaster, masters}, {RoleWorker, workers}} {
		for i, m := range group.machines {
			if m == nil || m.ctx != c {
				return nil, stageErrf(StageConstruct, "%s: item at index %d is not a Machine of this blueprint", group.role, i)
			}
			infra.machines = append(infra.machines, m.withRole(group.role))
		}
	}

	c.infra = infra
	log.WithFields(log.Fields{
		"namespace": infra.namespace,
		"masters":   len(masters),
		"workers":   len(workers),
	}).Debug("Created infrastructure")
	return infra, nil
}

// Namespace returns the namespace of the deployment.
func (i *Infrastructure) Namespace() string { return i.namespace }

// AdminACL returns a copy of the admin ACL.
func (i *Infrastructure) AdminACL() []string { return cloneStrings(i.adminACL) }

// Machines returns the role-tagged machines, masters first.
func (i *Infrastructure) Machines() []*Machine {
	return append([]*Machine(nil), i.machines...)
}

// Containers returns the deployed containers in deploy order.
func (i *Infrastructure) Containers() []*Container {
	return append([]*Container(nil), i.containers...)
}

// LoadBalancers returns the deployed load balancers in deploy order.
func (i *Infrastructure) LoadBalancers() []*LoadBalancer {
	return append([]*LoadBalancer(nil), i.loadBalancers...)
}

func (i *Infrastructure) addContainer(c *Container) {
	if _, ok := i.containerSet[c]; ok {
		return
	}
	i.containerSet[c] = struct{}{}
	i.containers = append(i.containers, c)
}

// Compile assigns container IDs and returns the validated IR of the
// deployment.
func (i *Infrastructure) Compile() (*spec.Deployment, error) {
	if err := assignIDs(i.containers); err != nil {
		return nil, err
	}

	d := &spec.Deployment{
		Machines:      make([]spec.Machine, 0, len(i.machines)),
		LoadBalancers: make([]spec.LoadBalancer, 0, len(i.loadBalancers)),
		Containers:    make([]spec.Container, 0, len(i.containers)),
		Connections:   i.ctx.Connections(),
		Placements:    []spec.Placement{},
		Namespace:     i.namespace,
		AdminACL:      cloneStrings(i.adminACL),
	}
	for _, lb := range i.loadBalancers {
		d.LoadBalancers = append(d.LoadBalancers, lb.ir())
	}
	for _, c := range i.containers {
		d.Placements = append(d.Placements, c.placements...)
		d.Containers = append(d.Containers, c.ir())
	}
	for _, m := range i.machines {
		d.Machines = append(d.Machines, m.ir())
	}

	if err := Validate(d); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"namespace":     d.Namespace,
		"machines":      len(d.Machines),
		"containers":    len(d.Containers),
		"loadBalancers": len(d.LoadBalancers),
		"connections":   len(d.Connections),
	}).Debug("Compiled deployment")
	return d, nil
}

// Render returns the encoded IR of the current deployment, or "{}" if no
// Infrastructure has been created. Calling it repeatedly yields the same
// bytes.
func (c *Context) Render() ([]byte, error) {
	if c.infra == nil {
		return spec.Encode(nil)
	}
	d, err := c.infra.Compile()
	if err != nil {
		return nil, err
	}
	return spec.Encode(d)
}
