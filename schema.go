/*
Package dynatable – model descriptors.

Models are declared explicitly through NewModelSpec at startup. A ModelSpec
is immutable once built and is safely shared by every operation touching
the model.
*/
package dynatable

import (
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// KeyRole marks an attribute's participation in the primary key.
type KeyRole int

const (
	KeyNone KeyRole = iota
	KeyHash
	KeyRange
)

// AttributeSpec describes one model attribute. Immutable once the model
// is built.
type AttributeSpec struct {
	Name     string
	Type     AttributeType
	Required bool

	// Default supplies a value when the attribute is absent on serialize.
	// Called once per serialization; may return nil for "no default".
	Default func() any

	// KeyRole is the attribute's primary-key role.
	KeyRole KeyRole
}

// Projection selects which attributes a secondary index carries.
type Projection struct {
	// Kind is "ALL", "KEYS_ONLY" or "INCLUDE".
	Kind string
	// Include lists the non-key attributes when Kind is "INCLUDE".
	Include []string
}

// Throughput is provisioned capacity metadata for a table or index.
// Zero values mean on-demand billing.
type Throughput struct {
	ReadUnits  int64
	WriteUnits int64
}

// IndexSpec describes a secondary index: its own key attributes, a
// projection of the model's attributes and optional throughput metadata.
type IndexSpec struct {
	Name       string
	HashKey    string
	RangeKey   string
	Projection Projection
	Throughput *Throughput
	Local      bool
}

// ModelSpec is the static per-model metadata: ordered attribute specs, the
// primary key and secondary index descriptors.
type ModelSpec struct {
	name     string
	attrs    []AttributeSpec
	byName   map[string]int
	hashKey  *AttributeSpec
	rangeKey *AttributeSpec
	indexes  []IndexSpec
}

// NewModelSpec validates and builds a ModelSpec. Attribute order is
// preserved. Fails with a ValidationError on duplicate names, a missing or
// doubled hash key, non-keyable key types, or index keys that are not
// model attributes.
func NewModelSpec(name string, attrs []AttributeSpec, indexes ...IndexSpec) (*ModelSpec, error) {
	if name == "" {
		return nil, newValidationError("model name required")
	}
	if len(attrs) == 0 {
		return nil, newValidationError("model %q has no attributes", name)
	}
	spec := &ModelSpec{
		name:   name,
		attrs:  append([]AttributeSpec(nil), attrs...),
		byName: make(map[string]int, len(attrs)),
	}
	for i := range spec.attrs {
		a := &spec.attrs[i]
		if a.Name == "" {
			return nil, newValidationError("model %q: attribute %d has no name", name, i)
		}
		if _, dup := spec.byName[a.Name]; dup {
			return nil, newValidationError("model %q: duplicate attribute %q", name, a.Name)
		}
		if _, ok := typeRegistry[a.Type]; !ok {
			return nil, newValidationError("model %q: attribute %q has unknown type %q", name, a.Name, string(a.Type))
		}
		spec.byName[a.Name] = i

		switch a.KeyRole {
		case KeyHash:
			if spec.hashKey != nil {
				return nil, newValidationError("model %q: hash key declared twice (%q, %q)", name, spec.hashKey.Name, a.Name)
			}
			spec.hashKey = a
		case KeyRange:
			if spec.rangeKey != nil {
				return nil, newValidationError("model %q: range key declared twice (%q, %q)", name, spec.rangeKey.Name, a.Name)
			}
			spec.rangeKey = a
		}
		if a.KeyRole != KeyNone {
			if !a.Type.keyable() {
				return nil, newValidationError("model %q: key attribute %q must be S, N or B", name, a.Name)
			}
			a.Required = true
		}
	}
	if spec.hashKey == nil {
		return nil, newValidationError("model %q: no hash key declared", name)
	}

	for _, idx := range indexes {
		if idx.Name == "" {
			return nil, newValidationError("model %q: index without a name", name)
		}
		if err := spec.checkIndexKey(idx.Name, idx.HashKey, true); err != nil {
			return nil, err
		}
		if err := spec.checkIndexKey(idx.Name, idx.RangeKey, false); err != nil {
			return nil, err
		}
		for _, included := range idx.Projection.Include {
			if _, ok := spec.byName[included]; !ok {
				return nil, newValidationError("model %q: index %q projects unknown attribute %q", name, idx.Name, included)
			}
		}
		spec.indexes = append(spec.indexes, idx)
	}
	return spec, nil
}

// MustModelSpec is NewModelSpec that panics on error; intended for
// model declarations at program startup.
func MustModelSpec(name string, attrs []AttributeSpec, indexes ...IndexSpec) *ModelSpec {
	spec, err := NewModelSpec(name, attrs, indexes...)
	if err != nil {
		panic(err)
	}
	return spec
}

func (s *ModelSpec) checkIndexKey(index, attr string, required bool) error {
	if attr == "" {
		if required {
			return newValidationError("model %q: index %q has no hash key", s.name, index)
		}
		return nil
	}
	i, ok := s.byName[attr]
	if !ok {
		return newValidationError("model %q: index %q keys unknown attribute %q", s.name, index, attr)
	}
	if !s.attrs[i].Type.keyable() {
		return newValidationError("model %q: index %q key %q must be S, N or B", s.name, index, attr)
	}
	return nil
}

// Name returns the model name.
func (s *ModelSpec) Name() string { return s.name }

// Attributes returns the ordered attribute specs (a copy).
func (s *ModelSpec) Attributes() []AttributeSpec {
	return append([]AttributeSpec(nil), s.attrs...)
}

// Attribute looks up an attribute spec by name.
func (s *ModelSpec) Attribute(name string) (*AttributeSpec, bool) {
	i, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return &s.attrs[i], true
}

// HashKey returns the primary hash key attribute.
func (s *ModelSpec) HashKey() *AttributeSpec { return s.hashKey }

// RangeKey returns the primary range key attribute, or nil.
func (s *ModelSpec) RangeKey() *AttributeSpec { return s.rangeKey }

// Indexes returns the secondary index descriptors (a copy).
func (s *ModelSpec) Indexes() []IndexSpec {
	return append([]IndexSpec(nil), s.indexes...)
}

// Index looks up a secondary index by name.
func (s *ModelSpec) Index(name string) (*IndexSpec, bool) {
	for i := range s.indexes {
		if s.indexes[i].Name == name {
			return &s.indexes[i], true
		}
	}
	return nil, false
}

// keyAttrs returns the key attributes of the primary key or a named index.
func (s *ModelSpec) keyAttrs(index string) (hash, rng *AttributeSpec, err error) {
	if index == "" {
		return s.hashKey, s.rangeKey, nil
	}
	idx, ok := s.Index(index)
	if !ok {
		return nil, nil, newValidationError("model %q: unknown index %q", s.name, index)
	}
	h, _ := s.Attribute(idx.HashKey)
	var r *AttributeSpec
	if idx.RangeKey != "" {
		r, _ = s.Attribute(idx.RangeKey)
	}
	return h, r, nil
}

// Key extracts and serializes the primary key of item. Both key attributes
// must be present.
func (s *ModelSpec) Key(item Item) (map[string]types.AttributeValue, error) {
	key := make(map[string]types.AttributeValue, 2)
	for _, attr := range []*AttributeSpec{s.hashKey, s.rangeKey} {
		if attr == nil {
			continue
		}
		v, ok := item[attr.Name]
		if !ok {
			return nil, newValidationError("model %q: missing key attribute %q", s.name, attr.Name)
		}
		codec, err := codecFor(attr.Type)
		if err != nil {
			return nil, err
		}
		av, err := codec.encode(v)
		if err != nil {
			return nil, err
		}
		key[attr.Name] = av
	}
	return key, nil
}

// keyFingerprint renders a serialized key to a stable comparable string.
func keyFingerprint(key map[string]types.AttributeValue) string {
	hash := ""
	rng := ""
	for name, av := range key {
		part := name + "=" + avScalarString(av)
		if hash == "" {
			hash = part
		} else if part < hash {
			hash, rng = part, hash
		} else {
			rng = part
		}
	}
	return hash + "|" + rng
}

func avScalarString(av types.AttributeValue) string {
	switch m := av.(type) {
	case *types.AttributeValueMemberS:
		return "S:" + m.Value
	case *types.AttributeValueMemberN:
		return "N:" + m.Value
	case *types.AttributeValueMemberB:
		return "B:" + string(m.Value)
	default:
		return fmt.Sprintf("%T", av)
	}
}

// ─── Spec registry ───────────────────────────────────────────────────────────

// SpecRegistry maps model names to their descriptors. Registration panics on
// duplicates to surface conflicting declarations at startup.
type SpecRegistry struct {
	mu    sync.RWMutex
	specs map[string]*ModelSpec
}

// NewSpecRegistry creates an empty registry.
func NewSpecRegistry() *SpecRegistry {
	return &SpecRegistry{specs: map[string]*ModelSpec{}}
}

// Register adds a spec under its model name.
func (r *SpecRegistry) Register(spec *ModelSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Name()]; exists {
		panic(fmt.Sprintf("dynatable: model %q already registered", spec.Name()))
	}
	r.specs[spec.Name()] = spec
}

// Lookup returns the spec registered under name.
func (r *SpecRegistry) Lookup(name string) (*ModelSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	if !ok {
		return nil, newValidationError("no model registered as %q", name)
	}
	return spec, nil
}

// Names lists the registered model names.
func (r *SpecRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	return names
}
