package snapshot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/igpack/graph"
	"github.com/gofhir/igpack/pkg/fhirpackage"
	"github.com/gofhir/igpack/pkg/logger"
)

// Failure records a definition whose snapshot could not be generated.
type Failure struct {
	URL     string `json:"url"`
	Version string `json:"version,omitempty"`
	Message string `json:"message"`
}

// Outcome lists the snapshots generated by one run.
type Outcome struct {
	// Snapshots in generation order: dependencies first.
	Snapshots []*r4.StructureDefinition
	Failures  []Failure
	// StatusWarnings name active definitions depending on non-active ones.
	StatusWarnings []string
}

// Orchestrator generates the snapshots of every root package
// StructureDefinition with a differential and no snapshot, after the
// definitions it depends on.
type Orchestrator struct {
	generator Generator
}

// NewOrchestrator creates an Orchestrator over generator.
func NewOrchestrator(generator Generator) *Orchestrator {
	return &Orchestrator{generator: generator}
}

// known overlays generated snapshots on the definitions of the packages.
type known struct {
	packages  *graph.Index
	generated map[string]*r4.StructureDefinition
}

func (k *known) Lookup(ref string) []*r4.StructureDefinition {
	if sd, ok := k.generated[ref]; ok {
		return []*r4.StructureDefinition{sd}
	}
	return k.packages.Lookup(ref)
}

func (k *known) add(sd *r4.StructureDefinition) {
	k.generated[graph.Key(sd)] = sd
	k.generated[deref(sd.Url)] = sd
}

type run struct {
	generator Generator
	known     *known
	done      map[string]struct{}
	outcome   *Outcome
}

// Run generates snapshots for sets. Generator failures are logged and
// recorded, they never abort the run. Only a cancelled ctx does.
func (o *Orchestrator) Run(ctx context.Context, sets []*fhirpackage.ResolvedSet) (*Outcome, error) {
	var all []*r4.StructureDefinition
	for _, set := range sets {
		all = append(all, set.AllStructureDefinitions()...)
	}

	r := &run{
		generator: o.generator,
		known:     &known{packages: graph.NewIndex(all), generated: make(map[string]*r4.StructureDefinition)},
		done:      make(map[string]struct{}),
		outcome:   &Outcome{},
	}

	for _, set := range sets {
		extractor := graph.ForSet(set)
		for _, sd := range set.Root().Resources().StructureDefinitions {
			if !HasDifferential(sd) || HasSnapshot(sd) {
				continue
			}
			if err := r.create(ctx, extractor, sd); err != nil {
				return nil, err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.outcome, nil
}

func (r *run) create(ctx context.Context, extractor *graph.Extractor, diff *r4.StructureDefinition) error {
	if _, ok := r.done[graph.Key(diff)]; ok {
		return nil
	}

	definitions := append(extractor.DependenciesOf(diff), diff)
	dependencies := dependencyKeys(diff, definitions)
	logger.Debug("Generating snapshot for %s, base %s, dependencies [%s]",
		graph.Key(diff), deref(diff.BaseDefinition), strings.Join(dependencies, ", "))

	if warning := r.statusWarning(diff, definitions); warning != "" {
		logger.Warn("%s", warning)
		r.outcome.StatusWarnings = append(r.outcome.StatusWarnings, warning)
	}

	for _, sd := range definitions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !HasDifferential(sd) || HasSnapshot(sd) {
			continue
		}
		if _, ok := r.done[graph.Key(sd)]; ok {
			continue
		}
		r.generate(ctx, diff, sd)
	}

	logger.Debug("Generating snapshot for %s [Done]", graph.Key(diff))
	return nil
}

func (r *run) generate(ctx context.Context, diff, sd *r4.StructureDefinition) {
	logger.Debug("Generating snapshot for %s", graph.Key(sd))
	result, err := r.generator.Generate(ctx, sd, r.known)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error("Error while generating snapshot for %s: %v", graph.Key(diff), err)
		r.fail(sd, err.Error())
		return
	}

	if result != nil && HasSnapshot(result.Definition) {
		r.done[graph.Key(result.Definition)] = struct{}{}
		r.known.add(result.Definition)
		r.outcome.Snapshots = append(r.outcome.Snapshots, result.Definition)
	} else {
		logger.Error("Error while generating snapshot for %s: no snapshot returned from generator", graph.Key(diff))
		r.fail(sd, "no snapshot returned from generator")
	}

	if result == nil {
		return
	}
	for _, m := range result.Messages {
		switch m.Severity {
		case SeverityFatal, SeverityError, SeverityWarning:
			logger.Warn("%s %s: %s", graph.Key(diff), m.Severity, m.Text)
		default:
			logger.Info("%s %s: %s", graph.Key(diff), m.Severity, m.Text)
		}
	}
}

func (r *run) fail(sd *r4.StructureDefinition, message string) {
	// Failed definitions are not retried within a run.
	r.done[graph.Key(sd)] = struct{}{}
	r.outcome.Failures = append(r.outcome.Failures, Failure{URL: deref(sd.Url), Version: deref(sd.Version), Message: message})
}

// statusWarning lists the dependencies of an active diff, other than its
// base, whose status differs from active.
func (r *run) statusWarning(diff *r4.StructureDefinition, definitions []*r4.StructureDefinition) string {
	status := codeOf(diff.Status)
	if status != "active" {
		return ""
	}

	seen := make(map[string]struct{})
	var different []string
	for _, sd := range definitions {
		if sd == diff || isBase(diff, sd) || codeOf(sd.Status) == status {
			continue
		}
		entry := fmt.Sprintf("%s: %s", graph.Key(sd), codeOf(sd.Status))
		if _, ok := seen[entry]; ok {
			continue
		}
		seen[entry] = struct{}{}
		different = append(different, entry)
	}
	if len(different) == 0 {
		return ""
	}
	sort.Strings(different)
	return fmt.Sprintf("StructureDefinition %s, has dependencies with no active status [%s]", graph.Key(diff), strings.Join(different, ", "))
}

func dependencyKeys(diff *r4.StructureDefinition, definitions []*r4.StructureDefinition) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, sd := range definitions {
		if sd == diff || isBase(diff, sd) {
			continue
		}
		key := graph.Key(sd)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func isBase(diff, sd *r4.StructureDefinition) bool {
	base := deref(diff.BaseDefinition)
	return base != "" && (deref(sd.Url) == base || graph.Key(sd) == base)
}
