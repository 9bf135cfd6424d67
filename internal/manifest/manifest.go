// Package manifest reads YAML blueprint documents and builds them with the
// blueprint construction API.
package manifest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/docker/go-connections/nat"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/atvirokodosprendimai/knitplan/internal/blueprint"
	"github.com/atvirokodosprendimai/knitplan/internal/spec"
)

// Document is a blueprint as written by an operator.
type Document struct {
	Namespace     string                            `yaml:"namespace"`
	AdminACL      []string                          `yaml:"adminACL"`
	Machines      map[string]map[string]interface{} `yaml:"machines"`
	Masters       []MachineRef                      `yaml:"masters"`
	Workers       []MachineRef                      `yaml:"workers"`
	Containers    []ContainerSpec                   `yaml:"containers"`
	LoadBalancers []LoadBalancerSpec                `yaml:"loadBalancers"`
	Connections   []ConnectionSpec                  `yaml:"connections"`
}

// MachineRef boots Count copies of a named machine template.
type MachineRef struct {
	Machine string `yaml:"machine"`
	Count   int    `yaml:"count"`
}

// ContainerSpec declares a container and its replicas. Hostname defaults to
// Name.
type ContainerSpec struct {
	Name              string                 `yaml:"name"`
	Hostname          string                 `yaml:"hostname"`
	Image             ImageSpec              `yaml:"image"`
	Replicas          int                    `yaml:"replicas"`
	Command           []string               `yaml:"command"`
	Env               map[string]interface{} `yaml:"env"`
	FilepathToContent map[string]interface{} `yaml:"filepathToContent"`
	Placement         map[string]interface{} `yaml:"placement"`
}

// ImageSpec is either a plain image name or a {name, dockerfile} mapping.
type ImageSpec struct {
	Name       string `yaml:"name"`
	Dockerfile string `yaml:"dockerfile"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (i *ImageSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		i.Name = node.Value
		return nil
	}
	if err := checkKeys(node, "name", "dockerfile"); err != nil {
		return err
	}
	type plain ImageSpec
	return node.Decode((*plain)(i))
}

// LoadBalancerSpec puts a load balancer in front of the named containers,
// including all of their replicas.
type LoadBalancerSpec struct {
	Name       string   `yaml:"name"`
	Containers []string `yaml:"containers"`
}

// ConnectionSpec allows traffic between named endpoints. "public" names the
// public internet.
type ConnectionSpec struct {
	From  []string  `yaml:"from"`
	To    []string  `yaml:"to"`
	Ports PortRange `yaml:"ports"`
}

// PortRange accepts 80, "80", "8000-8080", or {min: 8000, max: 8080}. An
// absent value is unbounded, which AllowTraffic rejects.
type PortRange struct {
	spec.Range
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *PortRange) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!int" {
			var port int
			if err := node.Decode(&port); err != nil {
				return err
			}
			r, err := spec.NewRange(port, port)
			if err != nil {
				return fmt.Errorf("line %d: %w", node.Line, err)
			}
			p.Range = r
			return nil
		}
		low, high, err := nat.ParsePortRange(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: invalid port range %q: %w", node.Line, node.Value, err)
		}
		r, err := spec.NewRange(int(low), int(high))
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		p.Range = r
		return nil
	case yaml.MappingNode:
		var raw map[string]interface{}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		r, err := blueprint.DecodeRange(raw)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		p.Range = r
		return nil
	}
	return fmt.Errorf("line %d: ports must be a number, a range string, or a {min, max} mapping", node.Line)
}

func checkKeys(node *yaml.Node, allowed ...string) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i]
		if !lo.Contains(allowed, key.Value) {
			return fmt.Errorf("line %d: field %s not found (accepted fields are %s)",
				key.Line, key.Value, strings.Join(allowed, ", "))
		}
	}
	return nil
}

// Parse decodes a blueprint document. Unknown fields are errors.
func Parse(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty blueprint document")
		}
		return nil, fmt.Errorf("failed to parse blueprint: %w", err)
	}
	return &doc, nil
}

// ParseBytes is Parse for an in-memory document.
func ParseBytes(data []byte) (*Document, error) {
	return Parse(bytes.NewReader(data))
}

// ParseFile is Parse for a document on disk.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open blueprint: %w", err)
	}
	defer f.Close()
	return Parse(f)
}
