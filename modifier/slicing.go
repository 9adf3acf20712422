package modifier

import (
	"strings"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/igpack/pkg/logger"
)

// ClosedTypeSlicingRemover drops closed slicings discriminated by type on
// $this, together with their slices, from the differential. Snapshot
// generators cannot resolve these against the base element.
type ClosedTypeSlicingRemover struct{}

// Modify implements StructureDefinitionModifier.
func (ClosedTypeSlicingRemover) Modify(sd *r4.StructureDefinition) *r4.StructureDefinition {
	if sd == nil || sd.Differential == nil {
		return sd
	}

	var slicedIDs []string
	for i := range sd.Differential.Element {
		element := &sd.Differential.Element[i]
		if isClosedTypeSlicing(element.Slicing) {
			slicedIDs = append(slicedIDs, deref(element.Id))
			element.Slicing = nil
		}
	}
	if len(slicedIDs) == 0 {
		return sd
	}

	kept := sd.Differential.Element[:0]
	for _, element := range sd.Differential.Element {
		if id := deref(element.Id); isSliceOf(id, slicedIDs) {
			logger.Debug("Removing element %s of closed type slicing from %s", id, deref(sd.Url))
			continue
		}
		kept = append(kept, element)
	}
	sd.Differential.Element = kept
	return sd
}

func isClosedTypeSlicing(slicing *r4.ElementDefinitionSlicing) bool {
	if slicing == nil || slicing.Rules == nil || string(*slicing.Rules) != "closed" {
		return false
	}
	for _, d := range slicing.Discriminator {
		if d.Type != nil && string(*d.Type) == "type" && deref(d.Path) == "$this" {
			return true
		}
	}
	return false
}

// isSliceOf reports whether id is a slice of, or inside a slice of, one of slicedIDs.
func isSliceOf(id string, slicedIDs []string) bool {
	for _, sliced := range slicedIDs {
		if sliced != "" && strings.HasPrefix(id, sliced+":") {
			return true
		}
	}
	return false
}

// SliceMinFixer raises the min of a sliced differential element to the sum
// of the mins of its slices.
type SliceMinFixer struct{}

// Modify implements StructureDefinitionModifier.
func (SliceMinFixer) Modify(sd *r4.StructureDefinition) *r4.StructureDefinition {
	if sd == nil || sd.Differential == nil {
		return sd
	}

	sums := make(map[string]uint32)
	for _, element := range sd.Differential.Element {
		name := deref(element.SliceName)
		id := deref(element.Id)
		if name == "" || element.Min == nil || !strings.HasSuffix(id, ":"+name) {
			continue
		}
		sums[strings.TrimSuffix(id, ":"+name)] += *element.Min
	}

	for i := range sd.Differential.Element {
		element := &sd.Differential.Element[i]
		sum, ok := sums[deref(element.Id)]
		if !ok || sum == 0 {
			continue
		}
		if element.Min == nil || *element.Min < sum {
			logger.Debug("Raising min of %s in %s to %d", deref(element.Id), deref(sd.Url), sum)
			element.Min = &sum
		}
	}
	return sd
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
