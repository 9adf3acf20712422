// Package snapshot generates StructureDefinition snapshots from
// differentials. The merge algorithm itself lives behind Generator; this
// package wraps generators with modifiers and a persistent cache, and orders
// generation so every definition is generated after the definitions it
// depends on.
package snapshot

import (
	"context"

	"github.com/gofhir/fhir/r4"
)

// Message severities reported by generators.
const (
	SeverityFatal       = "fatal"
	SeverityError       = "error"
	SeverityWarning     = "warning"
	SeverityInformation = "information"
)

// Message is a diagnostic emitted while generating a snapshot.
type Message struct {
	Severity string `json:"severity"`
	Text     string `json:"text"`
}

// Result is a generated definition plus the messages of the generator.
type Result struct {
	Definition *r4.StructureDefinition
	Messages   []Message
}

// Definitions resolves canonical references, url or url|version, to the
// StructureDefinitions visible to a generator.
type Definitions interface {
	Lookup(ref string) []*r4.StructureDefinition
}

// Generator creates the snapshot of a StructureDefinition with a
// differential. Referenced definitions are found through known.
type Generator interface {
	Generate(ctx context.Context, sd *r4.StructureDefinition, known Definitions) (*Result, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, sd *r4.StructureDefinition, known Definitions) (*Result, error)

// Generate calls f(ctx, sd, known).
func (f GeneratorFunc) Generate(ctx context.Context, sd *r4.StructureDefinition, known Definitions) (*Result, error) {
	return f(ctx, sd, known)
}

// HasSnapshot reports whether sd carries snapshot elements.
func HasSnapshot(sd *r4.StructureDefinition) bool {
	return sd != nil && sd.Snapshot != nil && len(sd.Snapshot.Element) > 0
}

// HasDifferential reports whether sd carries differential elements.
func HasDifferential(sd *r4.StructureDefinition) bool {
	return sd != nil && sd.Differential != nil && len(sd.Differential.Element) > 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func codeOf[S ~string](s *S) string {
	if s == nil {
		return ""
	}
	return string(*s)
}
