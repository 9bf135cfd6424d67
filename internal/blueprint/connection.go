package blueprint

import (
	"github.com/samber/lo"

	"github.com/atvirokodosprendimai/knitplan/internal/spec"
)

// Connectable is a traffic endpoint: a *Container, a *LoadBalancer, or
// PublicInternet. The set of implementations is closed.
type Connectable interface {
	connectableName() string
}

type publicInternet struct{}

func (publicInternet) connectableName() string { return spec.PublicInternet }

// PublicInternet stands for everything outside the deployment. Rules that
// involve it must use a single port.
var PublicInternet Connectable = publicInternet{}

// Endpoints boxes its arguments into a slice for AllowTraffic.
func Endpoints(cs ...Connectable) []Connectable {
	return cs
}

// AllowTraffic allows every endpoint in src to open connections to every
// endpoint in dst on ports. Connectables have a default-deny firewall, so
// this is the only way to let traffic through. ports must be bounded.
func (c *Context) AllowTraffic(src, dst []Connectable, ports spec.Range) error {
	if !ports.Bounded() {
		return stageErrf(StageTopology, "a port or port range is required (got %s)", ports)
	}
	if err := checkEndpoints("src", src); err != nil {
		return err
	}
	if err := checkEndpoints("dst", dst); err != nil {
		return err
	}

	for i, s := range src {
		if _, ok := s.(*LoadBalancer); ok {
			return stageErrf(StageTopology, "load balancers can not make outgoing connections; item at index %d is not valid", i)
		}
	}

	public := func(x Connectable) bool { return x == PublicInternet }
	if (lo.ContainsBy(src, public) || lo.ContainsBy(dst, public)) && !ports.Single() {
		return stageErrf(StageTopology, "public internet can only connect to single ports and not to port ranges (got %s)", ports)
	}

	name := func(x Connectable, _ int) string { return x.connectableName() }
	c.connections = append(c.connections, spec.Connection{
		From:    lo.Map(src, name),
		To:      lo.Map(dst, name),
		MinPort: ports.Min,
		MaxPort: *ports.Max,
	})
	return nil
}

func checkEndpoints(side string, endpoints []Connectable) error {
	for i, e := range endpoints {
		nilEntity := false
		switch v := e.(type) {
		case nil:
			nilEntity = true
		case *Container:
			nilEntity = v == nil
		case *LoadBalancer:
			nilEntity = v == nil
		}
		if nilEntity {
			return stageErrf(StageTopology, "%s: item at index %d cannot be connected to", side, i)
		}
	}
	return nil
}
