package igpack

import (
	"context"
	"testing"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/igpack/snapshot"
	"github.com/gofhir/igpack/terminology"
)

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	if !o.InternalExpansion {
		t.Error("InternalExpansion should default to true")
	}
	if o.Expander != nil || o.Generator != nil {
		t.Error("no expander or generator expected by default")
	}
	if len(o.BindingStrengths) != 4 {
		t.Errorf("BindingStrengths = %v", o.BindingStrengths)
	}
	if o.Concurrency < 1 {
		t.Errorf("Concurrency = %d", o.Concurrency)
	}
	if o.FHIRVersion != R4 {
		t.Errorf("FHIRVersion = %v; want R4", o.FHIRVersion)
	}
}

func TestOptions_Apply(t *testing.T) {
	expander := terminology.ExpanderFunc(func(_ context.Context, vs *r4.ValueSet) (*r4.ValueSet, error) {
		return vs, nil
	})
	generator := snapshot.GeneratorFunc(func(_ context.Context, sd *r4.StructureDefinition, _ snapshot.Definitions) (*snapshot.Result, error) {
		return &snapshot.Result{Definition: sd}, nil
	})
	metrics := NewMetrics()

	o := DefaultOptions()
	for _, opt := range []Option{
		WithExpander(expander),
		WithInternalExpansion(false),
		WithGenerator(generator),
		WithBindingStrengths("required"),
		WithConcurrency(3),
		WithConcurrency(0),
		WithMetrics(metrics),
	} {
		opt(o)
	}

	if o.Expander == nil || o.Generator == nil {
		t.Error("expander and generator should be set")
	}
	if o.InternalExpansion {
		t.Error("InternalExpansion should be disabled")
	}
	if len(o.BindingStrengths) != 1 || o.BindingStrengths[0] != "required" {
		t.Errorf("BindingStrengths = %v", o.BindingStrengths)
	}
	if o.Concurrency != 3 {
		t.Errorf("Concurrency = %d; want 3", o.Concurrency)
	}
	if o.Metrics != metrics {
		t.Error("Metrics not set")
	}
}

func TestDefaultOptions_BindingStrengthsCopied(t *testing.T) {
	o := DefaultOptions()
	o.BindingStrengths[0] = "changed"
	if DefaultOptions().BindingStrengths[0] != "required" {
		t.Error("DefaultOptions shares the binding strength slice")
	}
}
