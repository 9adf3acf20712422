// Package modifier transforms ValueSets around expansion and
// StructureDefinitions before snapshot generation.
//
// Modifiers run in configured order, each receiving the output of the
// previous one. Pipelines never modify the resource they are given.
package modifier

import (
	"encoding/json"
	"fmt"

	"github.com/gofhir/fhir/r4"
)

// ValueSetModifier brackets a ValueSet expansion.
type ValueSetModifier interface {
	// PreExpansion adjusts the ValueSet sent to the expander.
	PreExpansion(vs *r4.ValueSet) *r4.ValueSet
	// PostExpansion adjusts the expansion result. original is the ValueSet
	// holding the composition the expansion was computed from.
	PostExpansion(original, expanded *r4.ValueSet) *r4.ValueSet
}

// StructureDefinitionModifier adjusts a StructureDefinition before its
// snapshot is generated.
type StructureDefinitionModifier interface {
	Modify(sd *r4.StructureDefinition) *r4.StructureDefinition
}

// PassThrough implements both ValueSetModifier hooks as identity. Embed it
// to implement a single hook.
type PassThrough struct{}

// PreExpansion returns vs.
func (PassThrough) PreExpansion(vs *r4.ValueSet) *r4.ValueSet { return vs }

// PostExpansion returns expanded.
func (PassThrough) PostExpansion(_, expanded *r4.ValueSet) *r4.ValueSet { return expanded }

// StructureDefinitionFunc adapts a function to StructureDefinitionModifier.
type StructureDefinitionFunc func(sd *r4.StructureDefinition) *r4.StructureDefinition

// Modify calls f(sd).
func (f StructureDefinitionFunc) Modify(sd *r4.StructureDefinition) *r4.StructureDefinition {
	return f(sd)
}

// ValueSetPipeline is an ordered list of ValueSet modifiers.
type ValueSetPipeline []ValueSetModifier

// PreExpansion runs every PreExpansion hook in order on a copy of vs.
func (p ValueSetPipeline) PreExpansion(vs *r4.ValueSet) (*r4.ValueSet, error) {
	if len(p) == 0 || vs == nil {
		return vs, nil
	}
	out, err := Clone(vs)
	if err != nil {
		return nil, err
	}
	for _, m := range p {
		out = m.PreExpansion(out)
	}
	return out, nil
}

// PostExpansion runs every PostExpansion hook in order on a copy of expanded.
func (p ValueSetPipeline) PostExpansion(original, expanded *r4.ValueSet) (*r4.ValueSet, error) {
	if len(p) == 0 || expanded == nil {
		return expanded, nil
	}
	out, err := Clone(expanded)
	if err != nil {
		return nil, err
	}
	for _, m := range p {
		out = m.PostExpansion(original, out)
	}
	return out, nil
}

// StructureDefinitionPipeline is an ordered list of StructureDefinition modifiers.
type StructureDefinitionPipeline []StructureDefinitionModifier

// Modify runs every modifier in order on a copy of sd.
func (p StructureDefinitionPipeline) Modify(sd *r4.StructureDefinition) (*r4.StructureDefinition, error) {
	if len(p) == 0 || sd == nil {
		return sd, nil
	}
	out, err := Clone(sd)
	if err != nil {
		return nil, err
	}
	for _, m := range p {
		out = m.Modify(out)
	}
	return out, nil
}

// Clone deep-copies a resource through its JSON form.
func Clone[T any](v *T) (*T, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to copy %T: %w", v, err)
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("failed to copy %T: %w", v, err)
	}
	return out, nil
}
