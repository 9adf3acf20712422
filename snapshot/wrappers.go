package snapshot

import (
	"context"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/igpack/cache"
	"github.com/gofhir/igpack/modifier"
	"github.com/gofhir/igpack/pkg/logger"
)

// ModifyingGenerator applies a StructureDefinition pipeline to the
// differential before delegating.
type ModifyingGenerator struct {
	delegate Generator
	pipeline modifier.StructureDefinitionPipeline
}

// NewModifyingGenerator creates a ModifyingGenerator.
func NewModifyingGenerator(delegate Generator, pipeline modifier.StructureDefinitionPipeline) *ModifyingGenerator {
	return &ModifyingGenerator{delegate: delegate, pipeline: pipeline}
}

// Generate implements Generator.
func (g *ModifyingGenerator) Generate(ctx context.Context, sd *r4.StructureDefinition, known Definitions) (*Result, error) {
	modified, err := g.pipeline.Modify(sd)
	if err != nil {
		return nil, err
	}
	return g.delegate.Generate(ctx, modified, known)
}

// CachingGenerator serves snapshots from a StructureDefinition cache and
// writes through on a miss. Results without a snapshot are never cached.
type CachingGenerator struct {
	delegate Generator
	cache    *cache.Content[*r4.StructureDefinition]
	guard    cache.Guard[*Result]
}

// NewCachingGenerator creates a CachingGenerator.
func NewCachingGenerator(delegate Generator, c *cache.Content[*r4.StructureDefinition]) *CachingGenerator {
	return &CachingGenerator{delegate: delegate, cache: c}
}

// Generate implements Generator.
func (g *CachingGenerator) Generate(ctx context.Context, sd *r4.StructureDefinition, known Definitions) (*Result, error) {
	if HasSnapshot(sd) {
		logger.Debug("StructureDefinition %s|%s has snapshot", deref(sd.Url), deref(sd.Version))
		return &Result{Definition: sd}, nil
	}

	key := g.cache.Kind().KeyOf(sd)
	if err := key.Validate(); err != nil {
		logger.Debug("Not caching snapshot: %v", err)
		return g.delegate.Generate(ctx, sd, known)
	}

	return g.guard.Do(key, func() (*Result, error) {
		cached, ok, err := g.cache.Read(ctx, key.URL, key.Version)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Result{Definition: cached}, nil
		}

		result, err := g.delegate.Generate(ctx, sd, known)
		if err != nil {
			return nil, err
		}
		if result == nil || !HasSnapshot(result.Definition) {
			return result, nil
		}
		if err := g.cache.Kind().KeyOf(result.Definition).Validate(); err != nil {
			logger.Debug("Not caching snapshot of %s: %v", key, err)
			return result, nil
		}

		written, err := g.cache.Write(ctx, result.Definition)
		if err != nil {
			return nil, err
		}
		return &Result{Definition: written, Messages: result.Messages}, nil
	})
}
