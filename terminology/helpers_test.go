package terminology

import (
	"encoding/json"
	"testing"

	"github.com/gofhir/fhir/r4"
	"github.com/stretchr/testify/require"
)

func valueSet(t *testing.T, doc string) *r4.ValueSet {
	t.Helper()
	var vs r4.ValueSet
	require.NoError(t, json.Unmarshal([]byte(doc), &vs))
	return &vs
}

func codeSystem(t *testing.T, doc string) *r4.CodeSystem {
	t.Helper()
	var cs r4.CodeSystem
	require.NoError(t, json.Unmarshal([]byte(doc), &cs))
	return &cs
}

func codes(vs *r4.ValueSet) []string {
	var out []string
	if vs == nil || vs.Expansion == nil {
		return out
	}
	walkContains(vs.Expansion.Contains, func(e codeEntry) bool {
		label := e.system + "#" + e.code
		if e.version != "" {
			label += "|" + e.version
		}
		out = append(out, label)
		return true
	})
	return out
}

const genderValueSet = `{
  "resourceType": "ValueSet",
  "url": "http://example.org/vs/gender",
  "version": "1.0.0",
  "status": "active",
  "compose": {"include": [{"system": "http://example.org/cs/gender", "concept": [{"code": "m"}, {"code": "f"}]}]}
}`

const genderCodeSystem = `{
  "resourceType": "CodeSystem",
  "url": "http://example.org/cs/gender",
  "version": "2.0.0",
  "name": "Gender",
  "status": "active",
  "content": "complete",
  "caseSensitive": true,
  "concept": [
    {"code": "m", "display": "Male"},
    {"code": "f", "display": "Female"},
    {"code": "o", "display": "Other", "concept": [{"code": "o-x", "display": "Other X"}]}
  ]
}`
