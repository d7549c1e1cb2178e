// Package composefile reads a Docker Compose document and derives the
// inventory of resources a migration has to cover: services with their
// images and container names, named volumes, networks, and host paths
// bind-mounted into services.
package composefile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Service is one inventoried service, in document order.
type Service struct {
	Name          string
	Image         string
	ContainerName string
	Volumes       []string // named volumes referenced by this service
	Networks      []string
	BindSources   []string // host paths mounted into the service that exist locally
}

// Inventory is the full set of resources derived from a compose document.
// It is built once per run and never mutated afterwards.
type Inventory struct {
	Project  string
	Services []Service
	Volumes  []string // top-level named volumes
	Networks []string
}

// ParseError reports a compose document that could not be read as an
// inventory source.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("parse compose file %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("parse compose file: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse reads the compose file at path and derives its Inventory. The
// project name defaults to the directory holding the file, which is what
// compose itself does.
func Parse(path string) (Inventory, error) {
	f, err := os.Open(path)
	if err != nil {
		return Inventory{}, &ParseError{Path: path, Err: err}
	}
	defer f.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	project := filepath.Base(filepath.Dir(abs))

	inv, err := parse(f, project)
	if err != nil {
		return Inventory{}, &ParseError{Path: path, Err: err}
	}
	return inv, nil
}

// ParseReader is Parse for an already-open document, with an explicit
// project name. Used by tests and by callers that relocate the file.
func ParseReader(r io.Reader, project string) (Inventory, error) {
	inv, err := parse(r, project)
	if err != nil {
		return Inventory{}, &ParseError{Err: err}
	}
	return inv, nil
}

type document struct {
	Services yaml.Node `yaml:"services"`
	Volumes  yaml.Node `yaml:"volumes"`
	Networks yaml.Node `yaml:"networks"`
}

type serviceConfig struct {
	Image         string    `yaml:"image"`
	ContainerName string    `yaml:"container_name"`
	Volumes       []volume  `yaml:"volumes"`
	Networks      yaml.Node `yaml:"networks"`
}

// volume accepts both the short "src:dst[:mode]" string form and the long
// mapping form with type/source/target keys.
type volume struct {
	Type   string
	Source string
}

func (v *volume) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		var s string
		if err := n.Decode(&s); err != nil {
			return err
		}
		parts := strings.SplitN(s, ":", 2)
		v.Source = parts[0]
		if len(parts) == 1 {
			// anonymous volume, nothing to inventory
			v.Source = ""
		}
		return nil
	}
	var long struct {
		Type   string `yaml:"type"`
		Source string `yaml:"source"`
	}
	if err := n.Decode(&long); err != nil {
		return err
	}
	v.Type = long.Type
	v.Source = long.Source
	return nil
}

func (v volume) isBind() bool {
	if v.Type == "bind" {
		return true
	}
	if v.Type != "" {
		return false
	}
	return strings.HasPrefix(v.Source, "/") || strings.HasPrefix(v.Source, "./") ||
		strings.HasPrefix(v.Source, "../") || strings.HasPrefix(v.Source, "~")
}

func parse(r io.Reader, project string) (Inventory, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return Inventory{}, fmt.Errorf("invalid yaml: %w", err)
	}
	if doc.Services.Kind == 0 || doc.Services.IsZero() {
		return Inventory{}, fmt.Errorf("document has no services section")
	}
	if doc.Services.Kind != yaml.MappingNode {
		return Inventory{}, fmt.Errorf("services section is not a mapping")
	}

	inv := Inventory{Project: project}

	// Mapping nodes store keys and values interleaved; walking them in
	// order preserves the document's service order.
	for i := 0; i+1 < len(doc.Services.Content); i += 2 {
		name := doc.Services.Content[i].Value
		var cfg serviceConfig
		if err := doc.Services.Content[i+1].Decode(&cfg); err != nil {
			return Inventory{}, fmt.Errorf("service %q: %w", name, err)
		}
		if cfg.Image == "" {
			return Inventory{}, fmt.Errorf("service %q has no image reference", name)
		}
		svc := Service{
			Name:          name,
			Image:         cfg.Image,
			ContainerName: cfg.ContainerName,
		}
		if svc.ContainerName == "" {
			// compose v2 default naming: <project>-<service>-1
			svc.ContainerName = fmt.Sprintf("%s-%s-1", project, name)
		}
		for _, vol := range cfg.Volumes {
			if vol.Source == "" {
				continue
			}
			if vol.isBind() {
				src := vol.Source
				if strings.HasPrefix(src, "~") {
					if home, err := os.UserHomeDir(); err == nil {
						src = filepath.Join(home, strings.TrimPrefix(src, "~"))
					}
				}
				if _, err := os.Stat(src); err == nil {
					svc.BindSources = append(svc.BindSources, src)
				}
				continue
			}
			svc.Volumes = append(svc.Volumes, vol.Source)
		}
		svc.Networks = networkNames(cfg.Networks)
		inv.Services = append(inv.Services, svc)
	}

	inv.Volumes = topLevelNames(doc.Volumes)
	inv.Networks = topLevelNames(doc.Networks)
	return inv, nil
}

// networkNames handles both the sequence and the mapping form of a
// service-level networks declaration.
func networkNames(n yaml.Node) []string {
	var out []string
	switch n.Kind {
	case yaml.SequenceNode:
		for _, c := range n.Content {
			out = append(out, c.Value)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			out = append(out, n.Content[i].Value)
		}
	}
	return out
}

func topLevelNames(n yaml.Node) []string {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	var out []string
	for i := 0; i+1 < len(n.Content); i += 2 {
		out = append(out, n.Content[i].Value)
	}
	return out
}

// ImageRefs returns the unique image references of the inventory, sorted.
func (inv Inventory) ImageRefs() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range inv.Services {
		if _, ok := seen[s.Image]; ok {
			continue
		}
		seen[s.Image] = struct{}{}
		out = append(out, s.Image)
	}
	sort.Strings(out)
	return out
}

// VolumeNames returns the union of top-level and service-referenced named
// volumes, sorted and de-duplicated.
func (inv Inventory) VolumeNames() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, v := range inv.Volumes {
		add(v)
	}
	for _, s := range inv.Services {
		for _, v := range s.Volumes {
			add(v)
		}
	}
	sort.Strings(out)
	return out
}

// NetworkNames returns the union of top-level and service-referenced
// networks, sorted and de-duplicated.
func (inv Inventory) NetworkNames() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, n := range inv.Networks {
		add(n)
	}
	for _, s := range inv.Services {
		for _, n := range s.Networks {
			add(n)
		}
	}
	sort.Strings(out)
	return out
}
