package terminology

import (
	"context"
	"fmt"

	"github.com/gofhir/fhir/r4"
	"github.com/gofhir/fhirpath"
	"github.com/gofhir/fhirpath/types"
	"golang.org/x/sync/errgroup"

	"github.com/gofhir/igpack/pkg/logger"
)

// ExternalExpansionExpression selects ValueSets whose composition uses
// filters or value set imports. Those are only expanded by the server.
const ExternalExpansionExpression = "compose.include.where(filter.exists() or valueSet.exists()).exists()" +
	" or compose.exclude.where(filter.exists() or valueSet.exists()).exists()"

// Predicate evaluates a compiled FHIRPath expression against ValueSets.
type Predicate struct {
	expression string
	compiled   *fhirpath.Expression
}

// NewPredicate compiles expression.
func NewPredicate(expression string) (*Predicate, error) {
	compiled, err := fhirpath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("failed to compile FHIRPath expression '%s': %w", expression, err)
	}
	return &Predicate{expression: expression, compiled: compiled}, nil
}

// Matches reports whether the expression is true for vs. A non-boolean
// result follows FHIRPath truthiness: empty is false, anything else true.
func (p *Predicate) Matches(vs *r4.ValueSet) (bool, error) {
	resource, err := resourceJSON("ValueSet", vs)
	if err != nil {
		return false, err
	}
	result, err := p.compiled.Evaluate([]byte(resource))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate FHIRPath expression '%s': %w", p.expression, err)
	}
	return truthy(result), nil
}

func truthy(result types.Collection) bool {
	if len(result) == 0 {
		return false
	}
	if len(result) == 1 {
		if b, ok := result[0].(types.Boolean); ok {
			return b.Bool()
		}
	}
	return true
}

// Router expands ValueSets internally when possible and with the server
// otherwise.
type Router struct {
	internal     Expander
	external     Expander
	externalOnly *Predicate
	concurrency  int
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithConcurrency bounds the expansions ExpandAll runs at once. Default 1.
func WithConcurrency(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewRouter creates a Router. internal may be nil to always expand externally.
func NewRouter(internal, external Expander, opts ...RouterOption) (*Router, error) {
	predicate, err := NewPredicate(ExternalExpansionExpression)
	if err != nil {
		return nil, err
	}
	r := &Router{internal: internal, external: external, externalOnly: predicate, concurrency: 1}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RequiresExternal reports whether vs must be expanded by the server.
func (r *Router) RequiresExternal(vs *r4.ValueSet) (bool, error) {
	if r.internal == nil {
		return true, nil
	}
	return r.externalOnly.Matches(vs)
}

// Expand implements Expander. An internal failure falls back to the server.
func (r *Router) Expand(ctx context.Context, vs *r4.ValueSet) (*r4.ValueSet, error) {
	external, err := r.RequiresExternal(vs)
	if err != nil {
		return nil, err
	}
	if external {
		return r.external.Expand(ctx, vs)
	}

	expanded, err := r.internal.Expand(ctx, vs)
	if err == nil {
		return expanded, nil
	}
	logger.Info("Error while expanding ValueSet %s|%s internally: %v, trying to expand via external terminology server next",
		deref(vs.Url), deref(vs.Version), err)
	return r.external.Expand(ctx, vs)
}

// Failure records a ValueSet that could not be expanded.
type Failure struct {
	URL     string `json:"url"`
	Version string `json:"version,omitempty"`
	Err     error  `json:"-"`
	Message string `json:"message"`
}

// ExpandAll expands every ValueSet of valueSets. Failures are logged and
// skipped; expansions and failures keep input order.
func (r *Router) ExpandAll(ctx context.Context, valueSets []*r4.ValueSet) ([]*r4.ValueSet, []Failure, error) {
	outs := make([]*r4.ValueSet, len(valueSets))
	errs := make([]error, len(valueSets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, vs := range valueSets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			logger.Debug("Expanding ValueSet %s|%s", deref(vs.Url), deref(vs.Version))
			outs[i], errs[i] = r.Expand(gctx, vs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	expanded := make([]*r4.ValueSet, 0, len(valueSets))
	var failures []Failure
	for i, vs := range valueSets {
		if err := errs[i]; err != nil {
			logger.Warn("Error while expanding ValueSet %s|%s externally, this may result in incomplete validation: %v",
				deref(vs.Url), deref(vs.Version), err)
			failures = append(failures, Failure{URL: deref(vs.Url), Version: deref(vs.Version), Err: err, Message: err.Error()})
			continue
		}
		expanded = append(expanded, outs[i])
	}
	return expanded, failures, nil
}
