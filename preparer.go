package igpack

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/igpack/graph"
	"github.com/gofhir/igpack/pkg/fhirpackage"
	"github.com/gofhir/igpack/pkg/logger"
	"github.com/gofhir/igpack/snapshot"
	"github.com/gofhir/igpack/terminology"
)

// Resolver resolves root packages into closed package sets.
// *registry.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, roots []fhirpackage.Identifier) ([]*fhirpackage.ResolvedSet, error)
}

// Preparer turns root package identifiers into everything a validator
// needs: the resolved package closure, the expanded value sets bound by the
// root profiles and the missing snapshots.
type Preparer struct {
	resolver Resolver
	options  *Options
}

// New creates a Preparer.
func New(resolver Resolver, opts ...Option) (*Preparer, error) {
	if resolver == nil {
		return nil, fmt.Errorf("a package resolver is required")
	}
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if !options.FHIRVersion.IsValid() {
		return nil, fmt.Errorf("unsupported FHIR version %q", options.FHIRVersion)
	}
	for _, s := range options.BindingStrengths {
		if !graph.IsBindingStrength(s) {
			return nil, fmt.Errorf("unknown binding strength %q", s)
		}
	}
	return &Preparer{resolver: resolver, options: options}, nil
}

// Options returns the effective options.
func (p *Preparer) Options() Options {
	return *p.options
}

// Prepare resolves ids and prepares every resolved set. Only resolution
// failures and cancellation are returned as errors; expansion and snapshot
// problems become issues of the result.
func (p *Preparer) Prepare(ctx context.Context, ids []fhirpackage.Identifier) (*Result, error) {
	start := time.Now()

	sets, err := p.resolver.Resolve(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for _, set := range sets {
		prepared, err := p.prepareSet(ctx, set, result)
		if err != nil {
			return nil, err
		}
		result.Sets = append(result.Sets, *prepared)
	}

	if m := p.options.Metrics; m != nil {
		m.RecordPrepare(time.Since(start))
	}
	return result, nil
}

func (p *Preparer) prepareSet(ctx context.Context, set *fhirpackage.ResolvedSet, result *Result) (*PreparedSet, error) {
	root := set.Root().Identifier().String()
	prepared := &PreparedSet{Package: root}
	for _, dep := range set.Dependencies() {
		prepared.Dependencies = append(prepared.Dependencies, dep.Identifier().String())
	}
	if m := p.options.Metrics; m != nil {
		m.RecordPackages(len(set.Packages()))
	}

	p.checkFHIRVersion(set.Root(), result)

	set.ParseResources()
	extractorOpts := []graph.Option{graph.WithBindingStrengths(p.options.BindingStrengths...)}
	if p.options.ValueSetFallback != nil {
		extractorOpts = append(extractorOpts, graph.WithFallback(p.options.ValueSetFallback))
	}
	needed := graph.ForSet(set, extractorOpts...).RequiredValueSets(set)
	prepared.MissingValueSets = needed.Missing
	for _, ref := range needed.Missing {
		result.AddIssue(Warning(IssueTypeNotFound).
			Diagnostics("value set is required for validation but was found in no package of the set").
			Package(root).
			Resource(ref).
			Step(StepExtract).
			Build())
	}
	if m := p.options.Metrics; m != nil {
		m.RecordMissingValueSets(len(needed.Missing))
	}

	expanded, err := p.expand(ctx, set, dedupe(needed.ValueSets), root, result)
	if err != nil {
		return nil, err
	}
	prepared.ValueSets = expanded

	snapshots, err := p.snapshots(ctx, set, root, result)
	if err != nil {
		return nil, err
	}
	prepared.Snapshots = snapshots
	return prepared, nil
}

func (p *Preparer) checkFHIRVersion(root *fhirpackage.Package, result *Result) {
	descriptor, err := root.Descriptor()
	if err != nil || len(descriptor.FHIRVersions) == 0 {
		return
	}
	cfg, _ := getVersionConfig(p.options.FHIRVersion)
	if slices.Contains(descriptor.FHIRVersions, cfg.FHIRVersionString) {
		return
	}
	logger.Warn("Package %s declares FHIR versions %v, expected %s", root.Identifier(), descriptor.FHIRVersions, cfg.FHIRVersionString)
	result.AddIssue(Warning(IssueTypeBusinessRule).
		Diagnostics(fmt.Sprintf("package declares FHIR versions %v, expected %s", descriptor.FHIRVersions, cfg.FHIRVersionString)).
		Package(root.Identifier().String()).
		Step(StepResolve).
		Build())
}

func (p *Preparer) expand(ctx context.Context, set *fhirpackage.ResolvedSet, valueSets []*r4.ValueSet, root string, result *Result) ([]*r4.ValueSet, error) {
	if len(valueSets) == 0 {
		return nil, nil
	}

	var internal terminology.Expander
	if p.options.InternalExpansion {
		internal = terminology.NewInternalExpander(set.AllCodeSystems())
	}
	external := p.options.Expander
	if external == nil {
		if internal == nil {
			logger.Info("No expander configured, skipping expansion of %d value sets for %s", len(valueSets), root)
			return nil, nil
		}
		external = terminology.ExpanderFunc(noExternalExpander)
	}

	if wrap := p.options.Wrap; wrap != nil {
		if internal != nil {
			internal = wrap(internal)
		}
		if p.options.Expander != nil {
			external = wrap(external)
		}
	}

	router, err := terminology.NewRouter(internal, external, terminology.WithConcurrency(p.options.Concurrency))
	if err != nil {
		return nil, err
	}
	expanded, failures, err := router.ExpandAll(ctx, valueSets)
	if err != nil {
		return nil, err
	}
	for _, f := range failures {
		result.AddIssue(Warning(IssueTypeProcessing).
			Diagnostics("expansion failed, validation may be incomplete: " + f.Message).
			Package(root).
			Resource(versioned(f.URL, f.Version)).
			Step(StepExpand).
			Build())
	}
	if m := p.options.Metrics; m != nil {
		m.RecordExpansions(len(expanded), len(failures))
	}
	return expanded, nil
}

func (p *Preparer) snapshots(ctx context.Context, set *fhirpackage.ResolvedSet, root string, result *Result) ([]*r4.StructureDefinition, error) {
	if p.options.Generator == nil {
		return nil, nil
	}

	outcome, err := snapshot.NewOrchestrator(p.options.Generator).Run(ctx, []*fhirpackage.ResolvedSet{set})
	if err != nil {
		return nil, err
	}
	for _, f := range outcome.Failures {
		result.AddIssue(Error(IssueTypeProcessing).
			Diagnostics("snapshot generation failed: " + f.Message).
			Package(root).
			Resource(versioned(f.URL, f.Version)).
			Step(StepSnapshot).
			Build())
	}
	for _, w := range outcome.StatusWarnings {
		result.AddIssue(Warning(IssueTypeBusinessRule).
			Diagnostics(w).
			Package(root).
			Step(StepSnapshot).
			Build())
	}
	if m := p.options.Metrics; m != nil {
		m.RecordSnapshots(len(outcome.Snapshots), len(outcome.Failures))
	}
	return outcome.Snapshots, nil
}

func noExternalExpander(_ context.Context, vs *r4.ValueSet) (*r4.ValueSet, error) {
	return nil, fmt.Errorf("no terminology server configured for ValueSet %s", versioned(deref(vs.Url), deref(vs.Version)))
}

// dedupe drops value sets already listed under the same url|version.
func dedupe(valueSets []*r4.ValueSet) []*r4.ValueSet {
	seen := make(map[string]struct{}, len(valueSets))
	out := make([]*r4.ValueSet, 0, len(valueSets))
	for _, vs := range valueSets {
		key := deref(vs.Url) + "|" + deref(vs.Version)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, vs)
	}
	return out
}

func versioned(u, version string) string {
	if version == "" {
		return u
	}
	return u + "|" + version
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
