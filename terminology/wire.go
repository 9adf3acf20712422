package terminology

import (
	"encoding/json"
	"fmt"

	"github.com/gofhir/fhir/r4"
)

// parameters is the FHIR Parameters resource as exchanged with the server.
type parameters struct {
	ResourceType string      `json:"resourceType"`
	Parameter    []parameter `json:"parameter,omitempty"`
}

type parameter struct {
	Name         string          `json:"name"`
	Resource     json.RawMessage `json:"resource,omitempty"`
	ValueCoding  *r4.Coding      `json:"valueCoding,omitempty"`
	ValueBoolean *bool           `json:"valueBoolean,omitempty"`
	ValueString  *string         `json:"valueString,omitempty"`
}

func (p *parameters) get(name string) (parameter, bool) {
	for _, param := range p.Parameter {
		if param.Name == name {
			return param, true
		}
	}
	return parameter{}, false
}

// searchBundle is the subset of a searchset Bundle read by the client.
type searchBundle struct {
	ResourceType string `json:"resourceType"`
	Entry        []struct {
		Resource json.RawMessage `json:"resource"`
	} `json:"entry"`
}

// resourceSummary holds the identity of a bundled resource.
type resourceSummary struct {
	ResourceType string `json:"resourceType"`
	URL          string `json:"url"`
	Version      string `json:"version"`
}

// capabilityStatement is the subset of CapabilityStatement read by the client.
type capabilityStatement struct {
	ResourceType string `json:"resourceType"`
	FHIRVersion  string `json:"fhirVersion"`
	Software     struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"software"`
	Implementation struct {
		Description string `json:"description"`
		URL         string `json:"url"`
	} `json:"implementation"`
}

// resourceJSON encodes v and sets its resourceType.
func resourceJSON(resourceType string, v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", resourceType, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", resourceType, err)
	}
	fields["resourceType"], _ = json.Marshal(resourceType)
	return json.Marshal(fields)
}
