package igpack

import (
	"runtime"

	"github.com/gofhir/igpack/graph"
	"github.com/gofhir/igpack/snapshot"
	"github.com/gofhir/igpack/terminology"
)

// Option configures the Preparer.
type Option func(*Options)

// Options holds all configuration for the Preparer.
type Options struct {
	// Expander expands value sets that cannot be expanded internally,
	// usually a caching, modifying chain over a terminology server client.
	Expander terminology.Expander

	// InternalExpansion expands enumerated composes from the CodeSystems of
	// the resolved set before asking Expander.
	InternalExpansion bool

	// Wrap decorates the internal and the external expander alike, usually
	// with the modifier pipeline and the ValueSet cache.
	Wrap func(terminology.Expander) terminology.Expander

	// ValueSetFallback reports value sets known outside the resolved set,
	// such as those of an excluded core package. Known references are not
	// reported missing.
	ValueSetFallback func(ref string) bool

	// Generator produces snapshots. Nil skips the snapshot step.
	Generator snapshot.Generator

	// BindingStrengths select the bindings whose value sets are expanded
	BindingStrengths []string

	// Concurrency bounds the expansions running at once
	Concurrency int

	// Metrics receives counters, nil disables recording
	Metrics *Metrics

	// FHIRVersion the prepared packages must declare
	FHIRVersion FHIRVersion
}

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	return &Options{
		InternalExpansion: true,
		BindingStrengths:  append([]string(nil), graph.BindingStrengths...),
		Concurrency:       runtime.NumCPU(),
		FHIRVersion:       R4,
	}
}

// WithExpander sets the external expander.
func WithExpander(expander terminology.Expander) Option {
	return func(o *Options) {
		o.Expander = expander
	}
}

// WithInternalExpansion enables expansion from package CodeSystems.
func WithInternalExpansion(enable bool) Option {
	return func(o *Options) {
		o.InternalExpansion = enable
	}
}

// WithExpanderWrapper sets the decorator applied to both expansion branches.
func WithExpanderWrapper(wrap func(terminology.Expander) terminology.Expander) Option {
	return func(o *Options) {
		o.Wrap = wrap
	}
}

// WithValueSetFallback sets the lookup for value sets outside the resolved set.
func WithValueSetFallback(known func(ref string) bool) Option {
	return func(o *Options) {
		o.ValueSetFallback = known
	}
}

// WithGenerator sets the snapshot generator.
func WithGenerator(generator snapshot.Generator) Option {
	return func(o *Options) {
		o.Generator = generator
	}
}

// WithBindingStrengths sets the binding strengths whose value sets are needed.
func WithBindingStrengths(strengths ...string) Option {
	return func(o *Options) {
		o.BindingStrengths = strengths
	}
}

// WithConcurrency sets the number of expansions running at once.
// Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithMetrics enables metrics recording.
func WithMetrics(m *Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithFHIRVersion sets the FHIR version the packages must declare.
func WithFHIRVersion(v FHIRVersion) Option {
	return func(o *Options) {
		o.FHIRVersion = v
	}
}
