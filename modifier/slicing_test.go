package modifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const closedTypeSlicing = `{
  "resourceType": "StructureDefinition",
  "url": "http://example.org/sd/observation",
  "differential": {"element": [
    {"id": "Observation", "path": "Observation"},
    {"id": "Observation.value[x]", "path": "Observation.value[x]",
     "slicing": {"discriminator": [{"type": "type", "path": "$this"}], "rules": "closed"}},
    {"id": "Observation.value[x]:valueQuantity", "path": "Observation.value[x]", "sliceName": "valueQuantity", "min": 1},
    {"id": "Observation.value[x]:valueQuantity.unit", "path": "Observation.value[x].unit", "min": 1},
    {"id": "Observation.code", "path": "Observation.code",
     "slicing": {"discriminator": [{"type": "pattern", "path": "$this"}], "rules": "closed"}},
    {"id": "Observation.code:loinc", "path": "Observation.code", "sliceName": "loinc"}
  ]}
}`


func TestClosedTypeSlicingRemover(t *testing.T) {
	sd := structureDefinition(t, closedTypeSlicing)
	out := ClosedTypeSlicingRemover{}.Modify(sd)
	require.NotNil(t, out.Differential)

	var got []string
	for _, e := range out.Differential.Element {
		got = append(got, deref(e.Id))
	}
	assert.Equal(t, []string{"Observation", "Observation.value[x]", "Observation.code", "Observation.code:loinc"}, got)
	assert.Nil(t, out.Differential.Element[1].Slicing)
	assert.NotNil(t, out.Differential.Element[2].Slicing, "pattern slicing is kept")
}

func TestClosedTypeSlicingRemover_OpenSlicingKept(t *testing.T) {
	sd := structureDefinition(t, `{
	  "resourceType": "StructureDefinition",
	  "url": "http://example.org/sd/open",
	  "differential": {"element": [
	    {"id": "Observation.value[x]", "path": "Observation.value[x]",
	     "slicing": {"discriminator": [{"type": "type", "path": "$this"}], "rules": "open"}},
	    {"id": "Observation.value[x]:valueString", "path": "Observation.value[x]", "sliceName": "valueString"}
	  ]}
	}`)
	out := ClosedTypeSlicingRemover{}.Modify(sd)
	assert.Len(t, out.Differential.Element, 2)
	assert.NotNil(t, out.Differential.Element[0].Slicing)
}

func TestSliceMinFixer(t *testing.T) {
	sd := structureDefinition(t, `{
	  "resourceType": "StructureDefinition",
	  "url": "http://example.org/sd/patient",
	  "differential": {"element": [
	    {"id": "Patient.identifier", "path": "Patient.identifier",
	     "slicing": {"discriminator": [{"type": "pattern", "path": "system"}], "rules": "open"}},
	    {"id": "Patient.identifier:mrn", "path": "Patient.identifier", "sliceName": "mrn", "min": 1},
	    {"id": "Patient.identifier:ssn", "path": "Patient.identifier", "sliceName": "ssn", "min": 1},
	    {"id": "Patient.identifier:mrn.system", "path": "Patient.identifier.system", "min": 1},
	    {"id": "Patient.name", "path": "Patient.name", "min": 3,
	     "slicing": {"discriminator": [{"type": "value", "path": "use"}], "rules": "open"}},
	    {"id": "Patient.name:official", "path": "Patient.name", "sliceName": "official", "min": 1},
	    {"id": "Patient.telecom", "path": "Patient.telecom",
	     "slicing": {"discriminator": [{"type": "value", "path": "system"}], "rules": "open"}},
	    {"id": "Patient.telecom:phone", "path": "Patient.telecom", "sliceName": "phone", "min": 0}
	  ]}
	}`)
	out := SliceMinFixer{}.Modify(sd)

	elements := out.Differential.Element
	require.NotNil(t, elements[0].Min)
	assert.Equal(t, uint32(2), *elements[0].Min)
	assert.Equal(t, uint32(3), *elements[4].Min, "already large enough")
	assert.Nil(t, elements[6].Min, "optional slices leave min unset")
}
