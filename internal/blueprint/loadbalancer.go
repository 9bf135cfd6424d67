package blueprint

import (
	"github.com/samber/lo"

	"github.com/atvirokodosprendimai/knitplan/internal/spec"
)

// LoadBalancer spreads traffic over a set of containers. It can receive
// traffic but never originate it.
type LoadBalancer struct {
	ctx        *Context
	name       string
	containers []*Container
}

// NewLoadBalancer returns a LoadBalancer in front of containers. Its name
// shares the hostname namespace with containers.
func (c *Context) NewLoadBalancer(name string, containers []*Container) (*LoadBalancer, error) {
	for i, ctr := range containers {
		if ctr == nil {
			return nil, stageErrf(StageConstruct, "load balancer %q: item at index %d is not a Container", name, i)
		}
	}

	unique := c.uniqueHostname(name)
	if err := validateHostname(unique); err != nil {
		return nil, err
	}

	return &LoadBalancer{
		ctx:        c,
		name:       unique,
		containers: append([]*Container(nil), containers...),
	}, nil
}

// Name returns the unique hostname of the load balancer.
func (lb *LoadBalancer) Name() string {
	return lb.name
}

// DNSName returns the name that resolves to the load balancer.
func (lb *LoadBalancer) DNSName() string {
	return lb.name + ".q"
}

// Containers returns the containers behind the load balancer.
func (lb *LoadBalancer) Containers() []*Container {
	return append([]*Container(nil), lb.containers...)
}

// AllowFrom allows src to open connections to the load balancer on ports.
// This does not allow direct connections to the containers behind it.
func (lb *LoadBalancer) AllowFrom(src []Connectable, ports spec.Range) error {
	return lb.ctx.AllowTraffic(src, []Connectable{lb}, ports)
}

// Deploy adds lb to infra.
func (lb *LoadBalancer) Deploy(infra *Infrastructure) error {
	if infra == nil || infra.ctx != lb.ctx {
		return stageErrf(StageConstruct, "load balancer %q cannot be deployed to an infrastructure of another context", lb.name)
	}
	infra.loadBalancers = append(infra.loadBalancers, lb)
	return nil
}

func (lb *LoadBalancer) connectableName() string {
	return lb.name
}

func (lb *LoadBalancer) ir() spec.LoadBalancer {
	return spec.LoadBalancer{
		Name:      lb.name,
		Hostnames: lo.Map(lb.containers, func(c *Container, _ int) string { return c.hostname }),
	}
}
