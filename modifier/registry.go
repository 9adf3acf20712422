package modifier

import (
	"fmt"
	"sort"
	"sync"
)

// Names of the built-in modifiers.
const (
	ClosedTypeSlicingRemoverName = "closed-type-slicing-remover"
	SliceMinFixerName            = "slice-min-fixer"
	VersionIncluderName          = "version-includer"
)

// Kind names the resource type a modifier applies to.
type Kind string

// Modifier kinds.
const (
	KindValueSet            Kind = "ValueSet"
	KindStructureDefinition Kind = "StructureDefinition"
)

// UnknownModifierError is returned for a name no factory is registered for.
type UnknownModifierError struct {
	Kind Kind
	Name string
}

func (e *UnknownModifierError) Error() string {
	return fmt.Sprintf("unknown %s modifier %q", e.Kind, e.Name)
}

// Registry maps configured modifier names to factories.
type Registry struct {
	mu                   sync.RWMutex
	valueSets            map[string]func() ValueSetModifier
	structureDefinitions map[string]func() StructureDefinitionModifier
}

// NewRegistry creates a Registry holding the built-in modifiers.
func NewRegistry() *Registry {
	r := &Registry{
		valueSets:            make(map[string]func() ValueSetModifier),
		structureDefinitions: make(map[string]func() StructureDefinitionModifier),
	}
	r.RegisterValueSet(VersionIncluderName, func() ValueSetModifier { return VersionIncluder{} })
	r.RegisterStructureDefinition(ClosedTypeSlicingRemoverName, func() StructureDefinitionModifier { return ClosedTypeSlicingRemover{} })
	r.RegisterStructureDefinition(SliceMinFixerName, func() StructureDefinitionModifier { return SliceMinFixer{} })
	return r
}

// RegisterValueSet adds or replaces a ValueSet modifier factory.
func (r *Registry) RegisterValueSet(name string, factory func() ValueSetModifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.valueSets[name] = factory
}

// RegisterStructureDefinition adds or replaces a StructureDefinition modifier factory.
func (r *Registry) RegisterStructureDefinition(name string, factory func() StructureDefinitionModifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.structureDefinitions[name] = factory
}

// ValueSetPipeline builds the pipeline for names, in order.
func (r *Registry) ValueSetPipeline(names []string) (ValueSetPipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pipeline := make(ValueSetPipeline, 0, len(names))
	for _, name := range names {
		factory, ok := r.valueSets[name]
		if !ok {
			return nil, &UnknownModifierError{Kind: KindValueSet, Name: name}
		}
		pipeline = append(pipeline, factory())
	}
	return pipeline, nil
}

// StructureDefinitionPipeline builds the pipeline for names, in order.
func (r *Registry) StructureDefinitionPipeline(names []string) (StructureDefinitionPipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pipeline := make(StructureDefinitionPipeline, 0, len(names))
	for _, name := range names {
		factory, ok := r.structureDefinitions[name]
		if !ok {
			return nil, &UnknownModifierError{Kind: KindStructureDefinition, Name: name}
		}
		pipeline = append(pipeline, factory())
	}
	return pipeline, nil
}

// Names returns the registered names of kind, sorted.
func (r *Registry) Names(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	switch kind {
	case KindValueSet:
		for name := range r.valueSets {
			names = append(names, name)
		}
	case KindStructureDefinition:
		for name := range r.structureDefinitions {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
