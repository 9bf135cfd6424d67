package blueprint

import (
	"strings"

	"github.com/atvirokodosprendimai/knitplan/internal/spec"
)

// Validate checks the whole-graph invariants of a compiled deployment, in
// order: namespace casing and syntax, hostname uniqueness, connection
// endpoints, image Dockerfiles, and machine provider and region. The first
// violation is returned as a StageValidate error.
func Validate(d *spec.Deployment) error {
	for _, check := range []func(*spec.Deployment) error{
		checkNamespace,
		checkHostnames,
		checkConnections,
		checkImages,
		checkMachines,
	} {
		if err := check(d); err != nil {
			return err
		}
	}
	return nil
}

func checkNamespace(d *spec.Deployment) error {
	if d.Namespace != strings.ToLower(d.Namespace) {
		return stageErrf(StageValidate, "namespace %q contains uppercase letters. Namespaces must be lowercase", d.Namespace)
	}
	if !hostnameRegexp.MatchString(d.Namespace) || len(d.Namespace) > maxHostnameLength {
		return stageErrf(StageValidate, "namespace %q is not valid. Namespaces must only contain "+
			"lowercase characters, numbers and hyphens, and cannot start or end with a hyphen", d.Namespace)
	}
	return nil
}

func checkHostnames(d *spec.Deployment) error {
	seen := make(map[string]bool)
	check := func(name string) error {
		if name == spec.PublicInternet {
			return stageErrf(StageValidate, "hostname %q is reserved for the public internet", name)
		}
		if seen[name] {
			return stageErrf(StageValidate, "hostname %q used for multiple containers or load balancers", name)
		}
		seen[name] = true
		return nil
	}

	for _, c := range d.Containers {
		if err := check(c.Hostname); err != nil {
			return err
		}
	}
	for _, lb := range d.LoadBalancers {
		if err := check(lb.Name); err != nil {
			return err
		}
	}
	return nil
}

func checkConnections(d *spec.Deployment) error {
	known := map[string]bool{spec.PublicInternet: true}
	for _, c := range d.Containers {
		known[c.Hostname] = true
	}
	for _, lb := range d.LoadBalancers {
		known[lb.Name] = true
	}

	for _, conn := range d.Connections {
		for _, ep := range append(append([]string(nil), conn.From...), conn.To...) {
			if !known[ep] {
				return stageErrf(StageValidate, "connection %v -> %v references undeployed endpoint %q", conn.From, conn.To, ep)
			}
		}
	}
	return nil
}

func checkImages(d *spec.Deployment) error {
	dockerfiles := make(map[string]string)
	for _, c := range d.Containers {
		prev, ok := dockerfiles[c.Image.Name]
		if ok && prev != c.Image.Dockerfile {
			return stageErrf(StageValidate, "%s has differing Dockerfiles", c.Image.Name)
		}
		dockerfiles[c.Image.Name] = c.Image.Dockerfile
	}
	return nil
}

func checkMachines(d *spec.Deployment) error {
	if len(d.Machines) == 0 {
		return nil
	}
	first := d.Machines[0]
	for _, m := range d.Machines[1:] {
		if m.Provider != first.Provider || m.Region != first.Region {
			return stageErrf(StageValidate, "all machines must have the same provider and region. "+
				"Found providers %q in region %q and %q in region %q", first.Provider, first.Region, m.Provider, m.Region)
		}
	}
	return nil
}
