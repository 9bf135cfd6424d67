package blueprint

import (
	"maps"

	"github.com/atvirokodosprendimai/knitplan/internal/spec"
)

// Image is a Docker image. Without a Dockerfile, Name is pulled from a
// registry; with one, the engine builds the image and tags it Name.
type Image struct {
	Name       string
	Dockerfile string
}

func (i Image) ir() spec.Image {
	return spec.Image{Name: i.Name, Dockerfile: i.Dockerfile}
}

// Container is a deployment unit. Its hostname is unique within the Context.
type Container struct {
	ctx   *Context
	refID int
	id    string

	hostnamePrefix    string
	hostname          string
	image             Image
	command           []string
	env               map[string]spec.Value
	filepathToContent map[string]spec.Value
	placements        []spec.Placement
}

// NewContainer returns a Container whose hostname is derived from
// hostnamePrefix. Options are copied; later changes to opts do not affect the
// Container.
func (c *Context) NewContainer(hostnamePrefix string, image Image, opts ContainerOptions) (*Container, error) {
	if image.Name == "" {
		return nil, stageErrf(StageConstruct, "image of container %q must have a name", hostnamePrefix)
	}

	hostname := c.uniqueHostname(hostnamePrefix)
	if err := validateHostname(hostname); err != nil {
		return nil, err
	}

	return &Container{
		ctx:               c,
		refID:             c.nextRefID(),
		hostnamePrefix:    hostnamePrefix,
		hostname:          hostname,
		image:             image,
		command:           cloneStrings(opts.Command),
		env:               cloneValues(opts.Env),
		filepathToContent: cloneValues(opts.FilepathToContent),
	}, nil
}

// Hostname returns the unique hostname of the container.
func (c *Container) Hostname() string {
	return c.hostname
}

// DNSName returns the name other containers resolve to reach this one.
func (c *Container) DNSName() string {
	return c.hostname + ".q"
}

// ID returns the identifier assigned by the last compilation, or "" if the
// container has not been compiled.
func (c *Container) ID() string {
	return c.id
}

// Image returns the container image.
func (c *Container) Image() Image {
	return c.image
}

// Command returns a copy of the container command.
func (c *Container) Command() []string {
	return cloneStrings(c.command)
}

// Env returns a copy of the container environment.
func (c *Container) Env() map[string]spec.Value {
	return cloneValues(c.env)
}

// FilepathToContent returns a copy of the files installed in the container.
func (c *Container) FilepathToContent() map[string]spec.Value {
	return cloneValues(c.filepathToContent)
}

// Placements returns a copy of the placement constraints of the container.
func (c *Container) Placements() []spec.Placement {
	out := make([]spec.Placement, len(c.placements))
	copy(out, c.placements)
	return out
}

// Clone returns a container with the same image, command, env, and files,
// a fresh hostname derived from the same prefix, and no placements.
func (c *Container) Clone() (*Container, error) {
	return c.ctx.NewContainer(c.hostnamePrefix, c.image, ContainerOptions{
		Command:           c.command,
		Env:               c.env,
		FilepathToContent: c.filepathToContent,
	})
}

// Replicate returns n clones of c. c itself is not included.
func (c *Container) Replicate(n int) ([]*Container, error) {
	out := make([]*Container, 0, n)
	for i := 0; i < n; i++ {
		cp, err := c.Clone()
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// SetEnv sets one environment variable.
func (c *Container) SetEnv(key string, value spec.Value) {
	c.env[key] = value
}

// WithEnv returns a clone of c whose environment is replaced by env.
func (c *Container) WithEnv(env map[string]spec.Value) (*Container, error) {
	cp, err := c.Clone()
	if err != nil {
		return nil, err
	}
	cp.env = cloneValues(env)
	return cp, nil
}

// PlaceOn adds a placement constraint for the machine c runs on.
func (c *Container) PlaceOn(opts PlacementOptions) {
	c.placements = append(c.placements, spec.Placement{
		TargetContainer: c.hostname,
		Provider:        opts.Provider,
		Size:            opts.Size,
		Region:          opts.Region,
		FloatingIP:      opts.FloatingIP,
	})
}

// AllowFrom allows src to open connections to c on ports.
func (c *Container) AllowFrom(src []Connectable, ports spec.Range) error {
	return c.ctx.AllowTraffic(src, []Connectable{c}, ports)
}

// Deploy adds c to infra. Deploying the same container twice has no effect.
func (c *Container) Deploy(infra *Infrastructure) error {
	if infra == nil || infra.ctx != c.ctx {
		return stageErrf(StageConstruct, "container %q cannot be deployed to an infrastructure of another context", c.hostname)
	}
	infra.addContainer(c)
	return nil
}

func (c *Container) connectableName() string {
	return c.hostname
}

// hashInput lists the fields that define a container's content, in the key
// order of their JSON encoding.
type hashInput struct {
	Command           []string              `json:"command"`
	Env               map[string]spec.Value `json:"env"`
	FilepathToContent map[string]spec.Value `json:"filepathToContent"`
	Hostname          string                `json:"hostname"`
	Image             hashImage             `json:"image"`
}

type hashImage struct {
	Dockerfile string `json:"dockerfile,omitempty"`
	Name       string `json:"name"`
}

// hash is the content key of the container. It excludes refID, so
// independently built containers with equal content share it.
func (c *Container) hash() (string, error) {
	b, err := spec.Canonical(hashInput{
		Command:           c.command,
		Env:               c.env,
		FilepathToContent: c.filepathToContent,
		Hostname:          c.hostname,
		Image:             hashImage{Dockerfile: c.image.Dockerfile, Name: c.image.Name},
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Container) ir() spec.Container {
	return spec.Container{
		ID:                c.id,
		Image:             c.image.ir(),
		Command:           cloneStrings(c.command),
		Env:               cloneValues(c.env),
		FilepathToContent: cloneValues(c.filepathToContent),
		Hostname:          c.hostname,
	}
}

func cloneValues(m map[string]spec.Value) map[string]spec.Value {
	if m == nil {
		return map[string]spec.Value{}
	}
	return maps.Clone(m)
}
