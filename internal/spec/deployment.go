package spec

// PublicInternet is the endpoint label used in connections for traffic to or
// from outside the deployment. It can never be a valid hostname owner.
const PublicInternet = "public"

// Deployment is the compiled form of a blueprint.
// This is what the deployment engine consumes.
type Deployment struct {
	Machines      []Machine      `json:"machines"`
	LoadBalancers []LoadBalancer `json:"loadBalancers"`
	Containers    []Container    `json:"containers"`
	Connections   []Connection   `json:"connections"`
	Placements    []Placement    `json:"placements"`
	Namespace     string         `json:"namespace"`
	AdminACL      []string       `json:"adminACL"`
}

// Machine describes a VM the engine should boot.
type Machine struct {
	Provider    string   `json:"provider"`
	Role        string   `json:"role"`
	Region      string   `json:"region"`
	Size        string   `json:"size"`
	DiskSize    int      `json:"diskSize"`
	FloatingIP  string   `json:"floatingIp"`
	SSHKeys     []string `json:"sshKeys"`
	Preemptible bool     `json:"preemptible"`
}

// LoadBalancer fronts a set of containers under one hostname.
type LoadBalancer struct {
	Name      string   `json:"name"`
	Hostnames []string `json:"hostnames"`
}

// Image is a Docker image, optionally built from an inline Dockerfile.
type Image struct {
	Name       string `json:"name"`
	Dockerfile string `json:"dockerfile,omitempty"`
}

// Container is a single deployment unit.
type Container struct {
	ID                string           `json:"id"`
	Image             Image            `json:"image"`
	Command           []string         `json:"command"`
	Env               map[string]Value `json:"env"`
	FilepathToContent map[string]Value `json:"filepathToContent"`
	Hostname          string           `json:"hostname"`
}

// Connection allows traffic from every endpoint in From to every endpoint in
// To on ports MinPort through MaxPort.
type Connection struct {
	From    []string `json:"from"`
	To      []string `json:"to"`
	MinPort int      `json:"minPort"`
	MaxPort int      `json:"maxPort"`
}

// Placement narrows the machines a container may be scheduled on.
type Placement struct {
	TargetContainer string `json:"targetContainer"`
	Exclusive       bool   `json:"exclusive"`
	Provider        string `json:"provider"`
	Size            string `json:"size"`
	Region          string `json:"region"`
	FloatingIP      string `json:"floatingIp"`
}
