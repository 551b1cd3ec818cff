// Package compose models the docker-compose document the infrastructure
// agent writes. Maps marshal with sorted keys, so output is stable.
package compose

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is a docker-compose document.
type File struct {
	Version  string             `yaml:"version,omitempty"`
	Services map[string]Service `yaml:"services"`
	Volumes  map[string]Volume  `yaml:"volumes,omitempty"`
	Networks map[string]Network `yaml:"networks,omitempty"`
}

// Service is one compose service. Keys this package does not model are
// preserved in Extra.
//
// Ports, Environment, Networks and DependsOn are simplified on parse
// (depends_on conditions and network aliases are dropped, long-syntax ports
// become short mappings). The parsed nodes are kept alongside, and a field
// marshals back as it was read for as long as its value is unchanged.
type Service struct {
	Image         string         `yaml:"image,omitempty"`
	ContainerName string         `yaml:"container_name,omitempty"`
	Command       Command        `yaml:"command,omitempty"`
	WorkingDir    string         `yaml:"working_dir,omitempty"`
	User          string         `yaml:"user,omitempty"`
	Ports         Ports          `yaml:"ports,omitempty"`
	Environment   Env            `yaml:"environment,omitempty"`
	Volumes       []string       `yaml:"volumes,omitempty"`
	Networks      Names          `yaml:"networks,omitempty"`
	DependsOn     Names          `yaml:"depends_on,omitempty"`
	Extra         map[string]any `yaml:",inline"`

	parsed map[string]parsedField
}

type parsedField struct {
	node  *yaml.Node
	value any // copy of the simplified value at parse time
}

// serviceFields are the keys whose parsed form is kept.
var serviceFields = []string{"ports", "environment", "networks", "depends_on"}

func (s *Service) field(key string) any {
	switch key {
	case "ports":
		return slices.Clone(s.Ports)
	case "environment":
		return maps.Clone(s.Environment)
	case "networks":
		return slices.Clone(s.Networks)
	case "depends_on":
		return slices.Clone(s.DependsOn)
	}
	return nil
}

func (s *Service) UnmarshalYAML(n *yaml.Node) error {
	type plain Service
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*s = Service(p)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		if !slices.Contains(serviceFields, key) {
			continue
		}
		if s.parsed == nil {
			s.parsed = make(map[string]parsedField)
		}
		s.parsed[key] = parsedField{node: n.Content[i+1], value: s.field(key)}
	}
	return nil
}

func (s Service) MarshalYAML() (any, error) {
	type plain Service
	if len(s.parsed) == 0 {
		return plain(s), nil
	}
	var n yaml.Node
	if err := n.Encode(plain(s)); err != nil {
		return nil, err
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		if pf, ok := s.parsed[key]; ok && reflect.DeepEqual(pf.value, s.field(key)) {
			n.Content[i+1] = pf.node
		}
	}
	return &n, nil
}

// Volume is a named volume declaration.
type Volume struct {
	Driver string         `yaml:"driver,omitempty"`
	Extra  map[string]any `yaml:",inline"`
}

// Network is a named network declaration.
type Network struct {
	Driver string         `yaml:"driver,omitempty"`
	Extra  map[string]any `yaml:",inline"`
}

// Command accepts both the string and list forms. A single element
// marshals back as a plain string.
type Command []string

func (c Command) MarshalYAML() (any, error) {
	if len(c) == 1 {
		return c[0], nil
	}
	return []string(c), nil
}

func (c *Command) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*c = Command{n.Value}
	case yaml.SequenceNode:
		out := make(Command, 0, len(n.Content))
		for _, item := range n.Content {
			out = append(out, item.Value)
		}
		*c = out
	default:
		return fmt.Errorf("line %d: command must be a string or a list", n.Line)
	}
	return nil
}

// Env accepts both the mapping and the KEY=VALUE list forms. A bare KEY
// reads as an empty value. New values marshal as a mapping.
type Env map[string]string

func (e *Env) UnmarshalYAML(n *yaml.Node) error {
	out := Env{}
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			out[n.Content[i].Value] = n.Content[i+1].Value
		}
	case yaml.SequenceNode:
		for _, item := range n.Content {
			k, v, _ := strings.Cut(item.Value, "=")
			out[k] = v
		}
	default:
		return fmt.Errorf("line %d: environment must be a mapping or a list", n.Line)
	}
	*e = out
	return nil
}

// Ports is a list of short-form port mappings. Long-syntax entries are read
// as host_ip:published:target/protocol.
type Ports []string

func (p *Ports) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: ports must be a list", n.Line)
	}
	out := make(Ports, 0, len(n.Content))
	for _, item := range n.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			out = append(out, item.Value)
		case yaml.MappingNode:
			mapping, err := longPort(item)
			if err != nil {
				return err
			}
			out = append(out, mapping)
		default:
			return fmt.Errorf("line %d: port must be a string or a mapping", item.Line)
		}
	}
	*p = out
	return nil
}

func longPort(n *yaml.Node) (string, error) {
	fields := make(map[string]string, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		fields[n.Content[i].Value] = n.Content[i+1].Value
	}
	mapping := fields["target"]
	if mapping == "" {
		return "", fmt.Errorf("line %d: port has no target", n.Line)
	}
	if pub := fields["published"]; pub != "" {
		mapping = pub + ":" + mapping
		if ip := fields["host_ip"]; ip != "" {
			mapping = ip + ":" + mapping
		}
	}
	if proto := fields["protocol"]; proto != "" {
		mapping += "/" + proto
	}
	return mapping, nil
}

// Names is a list of networks or services. The long mapping form is read
// as its keys.
type Names []string

func (s *Names) UnmarshalYAML(n *yaml.Node) error {
	var out Names
	switch n.Kind {
	case yaml.SequenceNode:
		for _, item := range n.Content {
			out = append(out, item.Value)
		}
	case yaml.MappingNode:
		for i := 0; i < len(n.Content); i += 2 {
			out = append(out, n.Content[i].Value)
		}
		sort.Strings(out)
	case yaml.ScalarNode:
		out = Names{n.Value}
	default:
		return fmt.Errorf("line %d: expected a list", n.Line)
	}
	*s = out
	return nil
}

// Parse decodes a compose document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing compose file: %w", err)
	}
	if len(f.Services) == 0 {
		return nil, fmt.Errorf("parsing compose file: no services defined")
	}
	return &f, nil
}

// Marshal encodes the document with two-space indentation.
func (f *File) Marshal() ([]byte, error) {
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// ServiceNames returns the service names, sorted.
func (f *File) ServiceNames() []string {
	names := make([]string, 0, len(f.Services))
	for n := range f.Services {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Endpoint describes where a service is reachable from the host.
type Endpoint struct {
	Service       string `json:"name"`
	ContainerName string `json:"container_name"`
	Image         string `json:"image"`
	Port          string `json:"port,omitempty"`
	URL           string `json:"url,omitempty"`
}

// Host returns the container name, or the service name when unset.
func (e Endpoint) Host() string {
	if e.ContainerName != "" {
		return e.ContainerName
	}
	return e.Service
}

// Endpoints lists every service with the host port of its first mapping,
// sorted by service name.
func (f *File) Endpoints() []Endpoint {
	out := make([]Endpoint, 0, len(f.Services))
	for _, name := range f.ServiceNames() {
		svc := f.Services[name]
		ep := Endpoint{
			Service:       name,
			ContainerName: svc.ContainerName,
			Image:         svc.Image,
		}
		if ep.ContainerName == "" {
			ep.ContainerName = name
		}
		if ep.Image == "" {
			ep.Image = "unknown"
		}
		if len(svc.Ports) > 0 {
			ep.Port = HostPort(svc.Ports[0])
			ep.URL = "http://localhost:" + ep.Port
		}
		out = append(out, ep)
	}
	return out
}

// ServicePorts maps each service with a published port to its host port.
func (f *File) ServicePorts() map[string]string {
	out := make(map[string]string)
	for _, ep := range f.Endpoints() {
		if ep.Port != "" {
			out[ep.Service] = ep.Port
		}
	}
	return out
}

// HostPort extracts the host side of a port mapping: "8080:80" is 8080,
// "127.0.0.1:9000:9000/tcp" is 9000 and a bare "6379" is 6379.
func HostPort(mapping string) string {
	mapping = strings.Trim(strings.TrimSpace(mapping), `"'`)
	mapping, _, _ = strings.Cut(mapping, "/")
	parts := strings.Split(mapping, ":")
	switch len(parts) {
	case 1, 2:
		return parts[0]
	default:
		return parts[len(parts)-2]
	}
}

// ContainerPort extracts the container side of a port mapping: "8080:80"
// is 80 and a bare "6379" is 6379.
func ContainerPort(mapping string) string {
	mapping = strings.Trim(strings.TrimSpace(mapping), `"'`)
	mapping, _, _ = strings.Cut(mapping, "/")
	parts := strings.Split(mapping, ":")
	return parts[len(parts)-1]
}
