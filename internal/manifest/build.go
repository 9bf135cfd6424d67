package manifest

import (
	"context"
	"fmt"
	"maps"
	"sort"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/knitplan/internal/blueprint"
	"github.com/atvirokodosprendimai/knitplan/internal/spec"
)

// githubKeysOption lists GitHub users whose public keys are added to a
// machine's sshKeys.
const githubKeysOption = "githubKeys"

// KeySource looks up the SSH public keys of a GitHub user.
type KeySource interface {
	Keys(ctx context.Context, user string) ([]string, error)
}

type builder struct {
	bp   *blueprint.Context
	keys KeySource

	machines   map[string]*blueprint.Machine
	containers map[string][]*blueprint.Container
	lbs        map[string]*blueprint.LoadBalancer
}

// Build constructs doc in bp. keys may be nil when no machine uses
// githubKeys.
func Build(ctx context.Context, bp *blueprint.Context, doc *Document, keys KeySource) error {
	b := &builder{
		bp:         bp,
		keys:       keys,
		machines:   make(map[string]*blueprint.Machine),
		containers: make(map[string][]*blueprint.Container),
		lbs:        make(map[string]*blueprint.LoadBalancer),
	}

	if err := b.buildMachines(ctx, doc.Machines); err != nil {
		return err
	}
	infra, err := b.buildInfrastructure(doc)
	if err != nil {
		return err
	}
	if err := b.buildContainers(infra, doc.Containers); err != nil {
		return err
	}
	if err := b.buildLoadBalancers(infra, doc.LoadBalancers); err != nil {
		return err
	}
	return b.buildConnections(doc.Connections)
}

// Compile builds doc in a fresh Context and returns the compiled deployment.
func Compile(ctx context.Context, doc *Document, keys KeySource) (*spec.Deployment, error) {
	bp := blueprint.NewContext()
	if err := Build(ctx, bp, doc, keys); err != nil {
		return nil, err
	}
	return bp.Infrastructure().Compile()
}

func (b *builder) buildMachines(ctx context.Context, machines map[string]map[string]interface{}) error {
	names := lo.Keys(machines)
	sort.Strings(names)

	for _, name := range names {
		raw := maps.Clone(machines[name])

		var users []interface{}
		if v, ok := raw[githubKeysOption]; ok {
			delete(raw, githubKeysOption)
			if users, ok = v.([]interface{}); !ok {
				return fmt.Errorf("machine %q: %s must be a list of users", name, githubKeysOption)
			}
		}

		opts, err := blueprint.DecodeMachineOptions(raw)
		if err != nil {
			return fmt.Errorf("machine %q: %w", name, err)
		}

		for _, u := range users {
			user, ok := u.(string)
			if !ok {
				return fmt.Errorf("machine %q: %s must be a list of users", name, githubKeysOption)
			}
			if b.keys == nil {
				return fmt.Errorf("machine %q: no key source configured for %s", name, githubKeysOption)
			}
			keys, err := b.keys.Keys(ctx, user)
			if err != nil {
				return fmt.Errorf("machine %q: %w", name, err)
			}
			opts.SSHKeys = append(opts.SSHKeys, keys...)
		}

		m, err := b.bp.NewMachine(opts)
		if err != nil {
			return fmt.Errorf("machine %q: %w", name, err)
		}
		b.machines[name] = m
	}
	return nil
}

func (b *builder) machineRefs(refs []MachineRef) ([]*blueprint.Machine, error) {
	var out []*blueprint.Machine
	for _, ref := range refs {
		m, ok := b.machines[ref.Machine]
		if !ok {
			return nil, fmt.Errorf("undefined machine %q", ref.Machine)
		}
		count := ref.Count
		if count == 0 {
			count = 1
		}
		if count < 0 {
			return nil, fmt.Errorf("machine %q: count must not be negative", ref.Machine)
		}
		out = append(out, lo.Times(count, func(int) *blueprint.Machine { return m })...)
	}
	return out, nil
}

func (b *builder) buildInfrastructure(doc *Document) (*blueprint.Infrastructure, error) {
	masters, err := b.machineRefs(doc.Masters)
	if err != nil {
		return nil, fmt.Errorf("masters: %w", err)
	}
	workers, err := b.machineRefs(doc.Workers)
	if err != nil {
		return nil, fmt.Errorf("workers: %w", err)
	}
	return b.bp.NewInfrastructure(masters, workers, blueprint.InfrastructureOptions{
		Namespace: doc.Namespace,
		AdminACL:  doc.AdminACL,
	})
}

func (b *builder) buildContainers(infra *blueprint.Infrastructure, specs []ContainerSpec) error {
	for _, cs := range specs {
		if cs.Name == "" {
			return fmt.Errorf("container must have a name")
		}
		if _, dup := b.containers[cs.Name]; dup {
			return fmt.Errorf("container %q declared twice", cs.Name)
		}

		raw := map[string]interface{}{}
		if cs.Command != nil {
			raw["command"] = cs.Command
		}
		if cs.Env != nil {
			raw["env"] = cs.Env
		}
		if cs.FilepathToContent != nil {
			raw["filepathToContent"] = cs.FilepathToContent
		}
		opts, err := blueprint.DecodeContainerOptions(raw)
		if err != nil {
			return fmt.Errorf("container %q: %w", cs.Name, err)
		}

		hostname := cs.Hostname
		if hostname == "" {
			hostname = cs.Name
		}
		c, err := b.bp.NewContainer(hostname, blueprint.Image{Name: cs.Image.Name, Dockerfile: cs.Image.Dockerfile}, opts)
		if err != nil {
			return fmt.Errorf("container %q: %w", cs.Name, err)
		}

		replicas := []*blueprint.Container{c}
		if cs.Replicas > 1 {
			more, err := c.Replicate(cs.Replicas - 1)
			if err != nil {
				return fmt.Errorf("container %q: %w", cs.Name, err)
			}
			replicas = append(replicas, more...)
		}

		var placement *blueprint.PlacementOptions
		if cs.Placement != nil {
			p, err := blueprint.DecodePlacementOptions(cs.Placement)
			if err != nil {
				return fmt.Errorf("container %q: %w", cs.Name, err)
			}
			placement = &p
		}

		for _, r := range replicas {
			if placement != nil {
				r.PlaceOn(*placement)
			}
			if err := r.Deploy(infra); err != nil {
				return fmt.Errorf("container %q: %w", cs.Name, err)
			}
		}
		b.containers[cs.Name] = replicas

		log.WithFields(log.Fields{
			"container": cs.Name,
			"replicas":  len(replicas),
		}).Debug("Declared container")
	}
	return nil
}

func (b *builder) buildLoadBalancers(infra *blueprint.Infrastructure, specs []LoadBalancerSpec) error {
	for _, ls := range specs {
		var members []*blueprint.Container
		for _, name := range ls.Containers {
			cs, ok := b.containers[name]
			if !ok {
				return fmt.Errorf("load balancer %q: undefined container %q", ls.Name, name)
			}
			members = append(members, cs...)
		}

		lb, err := b.bp.NewLoadBalancer(ls.Name, members)
		if err != nil {
			return fmt.Errorf("load balancer %q: %w", ls.Name, err)
		}
		if err := lb.Deploy(infra); err != nil {
			return fmt.Errorf("load balancer %q: %w", ls.Name, err)
		}
		b.lbs[ls.Name] = lb
	}
	return nil
}

func (b *builder) endpoints(names []string) ([]blueprint.Connectable, error) {
	var out []blueprint.Connectable
	for _, name := range names {
		if name == spec.PublicInternet {
			out = append(out, blueprint.PublicInternet)
			continue
		}
		if lb, ok := b.lbs[name]; ok {
			out = append(out, lb)
			continue
		}
		cs, ok := b.containers[name]
		if !ok {
			return nil, fmt.Errorf("undefined endpoint %q", name)
		}
		for _, c := range cs {
			out = append(out, c)
		}
	}
	return out, nil
}

func (b *builder) buildConnections(specs []ConnectionSpec) error {
	for i, cs := range specs {
		src, err := b.endpoints(cs.From)
		if err != nil {
			return fmt.Errorf("connection %d: %w", i, err)
		}
		dst, err := b.endpoints(cs.To)
		if err != nil {
			return fmt.Errorf("connection %d: %w", i, err)
		}
		if err := b.bp.AllowTraffic(src, dst, cs.Ports.Range); err != nil {
			return fmt.Errorf("connection %d: %w", i, err)
		}
	}
	return nil
}
