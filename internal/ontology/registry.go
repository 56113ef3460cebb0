// Package ontology holds the interpretation and manifestation hierarchy.
//
// Interpretations and manifestations are classification symbols arranged in
// a forest: asking for a symbol in a query also asks for every symbol below
// it. The registry is seeded from an embedded YAML document and may be
// extended from files or at runtime.
package ontology

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed symbols.yaml
var builtinSymbols []byte

// Namespace prefixes of the built-in symbols.
const (
	ZG  = "http://www.zeitgeist-project.com/ontologies/2010/01/27/zg#"
	NFO = "http://www.semanticdesktop.org/ontologies/2007/03/22/nfo#"
	NMO = "http://www.semanticdesktop.org/ontologies/2007/03/22/nmo#"
)

// Hierarchy is the read-only view the query layer consults.
type Hierarchy interface {
	// Expand returns value followed by all of its registered descendants.
	// Unregistered values expand to themselves.
	Expand(value string) []string

	// IsA reports whether value equals ancestor or descends from it.
	IsA(value, ancestor string) bool
}

// Registry is a mutable Hierarchy. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	parent   map[string]string
	children map[string][]string
}

var _ Hierarchy = (*Registry)(nil)

// node is the YAML shape of one symbol and its subtree.
type node struct {
	URI      string `yaml:"uri"`
	Children []node `yaml:"children"`
}

type document struct {
	Symbols []node `yaml:"symbols"`
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		parent:   make(map[string]string),
		children: make(map[string][]string),
	}
}

// Builtin returns a registry seeded with the built-in symbol tree.
func Builtin() (*Registry, error) {
	r := NewRegistry()
	if err := r.unmarshal(builtinSymbols); err != nil {
		return nil, fmt.Errorf("load builtin symbols: %w", err)
	}
	return r, nil
}

// Load merges a YAML symbol document read from rd into the registry.
func (r *Registry) Load(rd io.Reader) error {
	data, err := io.ReadAll(rd)
	if err != nil {
		return fmt.Errorf("read symbols: %w", err)
	}
	return r.unmarshal(data)
}

func (r *Registry) unmarshal(data []byte) error {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse symbols: %w", err)
	}
	for _, n := range doc.Symbols {
		if err := r.addTree("", n); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) addTree(parent string, n node) error {
	if n.URI == "" {
		return fmt.Errorf("symbol under %q has no uri", parent)
	}
	if parent == "" {
		r.mu.Lock()
		if _, ok := r.children[n.URI]; !ok {
			r.children[n.URI] = nil
		}
		r.mu.Unlock()
	} else if err := r.Register(parent, n.URI); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := r.addTree(n.URI, c); err != nil {
			return err
		}
	}
	return nil
}

// Register records child as a direct descendant of parent. Registering the
// same edge twice is a no-op. A symbol has at most one parent, and edges
// that would create a cycle are rejected.
func (r *Registry) Register(parent, child string) error {
	if parent == "" || child == "" {
		return fmt.Errorf("register symbol: parent and child are required")
	}
	if parent == child {
		return fmt.Errorf("register symbol: %q cannot be its own parent", child)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.parent[child]; ok {
		if existing == parent {
			return nil
		}
		return fmt.Errorf("register symbol: %q already has parent %q", child, existing)
	}
	for p := parent; p != ""; p = r.parent[p] {
		if p == child {
			return fmt.Errorf("register symbol: %q under %q would create a cycle", child, parent)
		}
	}

	r.parent[child] = parent
	r.children[parent] = append(r.children[parent], child)
	sort.Strings(r.children[parent])
	if _, ok := r.children[child]; !ok {
		r.children[child] = nil
	}
	return nil
}

// Expand returns value followed by its descendants in breadth-first order,
// siblings sorted.
func (r *Registry) Expand(value string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []string{value}
	for i := 0; i < len(out); i++ {
		out = append(out, r.children[out[i]]...)
	}
	return out
}

// IsA reports whether value equals ancestor or descends from it.
func (r *Registry) IsA(value, ancestor string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for v := value; v != ""; v = r.parent[v] {
		if v == ancestor {
			return true
		}
	}
	return false
}

// Parent returns the direct parent of value, if registered.
func (r *Registry) Parent(value string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parent[value]
	return p, ok
}

// Len returns the number of known symbols.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.children)
}

// Flat is a Hierarchy with no registered symbols: every value expands to
// itself only.
type Flat struct{}

// Expand returns value alone.
func (Flat) Expand(value string) []string { return []string{value} }

// IsA reports plain equality.
func (Flat) IsA(value, ancestor string) bool { return value == ancestor }
