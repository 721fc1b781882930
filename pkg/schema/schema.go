// Package schema implements the C1 schema registry: a read-only, in-memory
// description of ontology classes, their properties, indices, and
// inheritance chains.
//
// The registry is built once at process startup from the application's
// declared class descriptors (normally generated from the backing store's
// live schema at boot) and never mutated afterward — it is one of the two
// pieces of process-wide global state the design allows, the other being
// the session pool in package store.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bcgsc/graphkb/pkg/graphkberr"
)

// BaseEdgeClass is the name every edge class must (transitively) extend.
// A class descends from it if and only if it is an edge class; every other
// class is a vertex class.
const BaseEdgeClass = "E"

// PropertyType enumerates the scalar/link kinds a property can hold.
type PropertyType string

const (
	TypeString  PropertyType = "string"
	TypeInteger PropertyType = "integer"
	TypeLong    PropertyType = "long"
	TypeFloat   PropertyType = "float"
	TypeBoolean PropertyType = "boolean"
	TypeLink    PropertyType = "link"
	TypeEmbedded PropertyType = "embedded"
)

// PropertyDescriptor describes a single property of a class.
type PropertyDescriptor struct {
	Name         string
	Type         PropertyType
	Mandatory    bool
	Nullable     bool
	Default      any
	LinkedClass  string // set when Type == TypeLink and the link is typed
	Iterable     bool   // true for list/set-valued properties
}

// IndexType enumerates the index kinds the store adapter can create.
type IndexType string

const (
	IndexUnique    IndexType = "unique"
	IndexNotUnique IndexType = "notunique"
	IndexFulltext  IndexType = "fulltext"
)

// IndexDescriptor describes one index on a class.
type IndexDescriptor struct {
	Name       string
	Type       IndexType
	Class      string
	Properties []string
	Engine     string // optional, store-specific index engine name
}

// ClassDescriptor describes one vertex or edge class.
type ClassDescriptor struct {
	Name       string
	Parents    []string
	Abstract   bool
	Properties map[string]PropertyDescriptor
	Indices    []IndexDescriptor
}

// Registry is the canonical, read-only description of every class known to
// the application. Construct with NewRegistry; all methods are safe for
// concurrent read-only use since the registry is never mutated after
// construction.
type Registry struct {
	classes map[string]*ClassDescriptor
}

// NewRegistry builds a Registry from a flat list of class descriptors,
// validating that every declared parent class exists.
func NewRegistry(classes []ClassDescriptor) (*Registry, error) {
	reg := &Registry{classes: make(map[string]*ClassDescriptor, len(classes))}
	for i := range classes {
		c := classes[i]
		if c.Name == "" {
			return nil, graphkberr.New(graphkberr.KindSchema, "schema.NewRegistry", "class with empty name")
		}
		if _, dup := reg.classes[c.Name]; dup {
			return nil, graphkberr.New(graphkberr.KindSchema, "schema.NewRegistry", fmt.Sprintf("duplicate class %q", c.Name))
		}
		cc := c
		if cc.Properties == nil {
			cc.Properties = map[string]PropertyDescriptor{}
		}
		reg.classes[c.Name] = &cc
	}
	for _, c := range reg.classes {
		for _, p := range c.Parents {
			if _, ok := reg.classes[p]; !ok {
				return nil, graphkberr.New(graphkberr.KindSchema, "schema.NewRegistry",
					fmt.Sprintf("class %q declares unknown parent %q", c.Name, p))
			}
		}
	}
	return reg, nil
}

// GetClass returns the descriptor for name, or a NotFoundError.
func (r *Registry) GetClass(name string) (*ClassDescriptor, error) {
	c, ok := r.classes[name]
	if !ok {
		return nil, graphkberr.New(graphkberr.KindNotFound, "schema.GetClass", fmt.Sprintf("unknown class %q", name))
	}
	return c, nil
}

// IsEdgeClass reports whether name descends (transitively, including
// itself) from BaseEdgeClass. A class that is neither an edge class nor
// found returns false with a NotFoundError.
func (r *Registry) IsEdgeClass(name string) (bool, error) {
	c, ok := r.classes[name]
	if !ok {
		return false, graphkberr.New(graphkberr.KindNotFound, "schema.IsEdgeClass", fmt.Sprintf("unknown class %q", name))
	}
	if name == BaseEdgeClass {
		return true, nil
	}
	seen := map[string]bool{}
	return r.inheritsFrom(c, BaseEdgeClass, seen), nil
}

func (r *Registry) inheritsFrom(c *ClassDescriptor, target string, seen map[string]bool) bool {
	if seen[c.Name] {
		return false
	}
	seen[c.Name] = true
	for _, p := range c.Parents {
		if p == target {
			return true
		}
		if parent, ok := r.classes[p]; ok && r.inheritsFrom(parent, target, seen) {
			return true
		}
	}
	return false
}

// InheritanceOptions configures ClassesInheriting.
type InheritanceOptions struct {
	IncludeAbstract bool
	IncludeSelf     bool
}

// ClassesInheriting returns, in deterministic order, every class that
// transitively descends from super (optionally including super itself and
// abstract classes).
func (r *Registry) ClassesInheriting(super string, opts InheritanceOptions) ([]string, error) {
	if _, ok := r.classes[super]; !ok {
		return nil, graphkberr.New(graphkberr.KindNotFound, "schema.ClassesInheriting", fmt.Sprintf("unknown class %q", super))
	}

	names := make([]string, 0, len(r.classes))
	for name := range r.classes {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []string
	for _, name := range names {
		if name == super {
			if opts.IncludeSelf {
				c := r.classes[name]
				if opts.IncludeAbstract || !c.Abstract {
					out = append(out, name)
				}
			}
			continue
		}
		c := r.classes[name]
		seen := map[string]bool{}
		if r.inheritsFrom(c, super, seen) {
			if opts.IncludeAbstract || !c.Abstract {
				out = append(out, name)
			}
		}
	}
	return out, nil
}

// PropertiesOf returns the flattened property map of className: its own
// properties plus every inherited ancestor property. A property declared
// on a subclass shadows the same-named ancestor property.
func (r *Registry) PropertiesOf(className string) (map[string]PropertyDescriptor, error) {
	c, ok := r.classes[className]
	if !ok {
		return nil, graphkberr.New(graphkberr.KindNotFound, "schema.PropertiesOf", fmt.Sprintf("unknown class %q", className))
	}
	out := map[string]PropertyDescriptor{}
	r.collectProperties(c, out, map[string]bool{})
	return out, nil
}

func (r *Registry) collectProperties(c *ClassDescriptor, out map[string]PropertyDescriptor, seen map[string]bool) {
	if seen[c.Name] {
		return
	}
	seen[c.Name] = true
	for _, p := range c.Parents {
		if parent, ok := r.classes[p]; ok {
			r.collectProperties(parent, out, seen)
		}
	}
	for name, p := range c.Properties {
		out[name] = p
	}
}

// ValidateProperties partitions requestedNames into accepted and rejected
// against className's flattened property set, resolving dotted paths
// (e.g. "source.sort") by following each segment's LinkedClass.
func (r *Registry) ValidateProperties(className string, requestedNames []string) (accepted, rejected []string, err error) {
	props, err := r.PropertiesOf(className)
	if err != nil {
		return nil, nil, err
	}
	for _, name := range requestedNames {
		if r.resolveDottedPath(props, name) {
			accepted = append(accepted, name)
		} else {
			rejected = append(rejected, name)
		}
	}
	return accepted, rejected, nil
}

func (r *Registry) resolveDottedPath(props map[string]PropertyDescriptor, path string) bool {
	segments := strings.Split(path, ".")
	head := segments[0]
	prop, ok := props[head]
	if !ok {
		// @rid, @class, in, out are always addressable regardless of the
		// class's declared property map.
		switch head {
		case "@rid", "@class", "in", "out":
			return len(segments) == 1
		}
		return false
	}
	if len(segments) == 1 {
		return true
	}
	if prop.LinkedClass == "" {
		return false
	}
	linkedProps, err := r.PropertiesOf(prop.LinkedClass)
	if err != nil {
		return false
	}
	return r.resolveDottedPath(linkedProps, strings.Join(segments[1:], "."))
}
