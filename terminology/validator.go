package terminology

import (
	"fmt"
	"strings"

	"github.com/gofhir/fhir/r4"
)

// Severity of a code validation result.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// CodeResult is the outcome of validating a code against an expansion.
type CodeResult struct {
	Valid             bool
	Severity          string
	Message           string
	Code              string
	Display           string
	CodeSystemName    string
	CodeSystemVersion string
}

// ValidateOptions tunes ExpandedCodeValidator.ValidateCode.
type ValidateOptions struct {
	// InferSystem matches codes of any system.
	InferSystem bool
	// ValidateDisplay rejects a display that differs from the expansion.
	ValidateDisplay bool
}

// ExpandedCodeValidator validates codes against the contains tree of
// expanded ValueSets. CodeSystems, when known, decide case sensitivity and
// whether unknown codes are errors or warnings.
type ExpandedCodeValidator struct {
	codeSystems map[string]*r4.CodeSystem
}

// NewExpandedCodeValidator creates a validator aware of codeSystems.
func NewExpandedCodeValidator(codeSystems []*r4.CodeSystem) *ExpandedCodeValidator {
	v := &ExpandedCodeValidator{codeSystems: make(map[string]*r4.CodeSystem)}
	for _, cs := range codeSystems {
		u := deref(cs.Url)
		if u == "" {
			continue
		}
		v.codeSystems[u] = cs
		if version := deref(cs.Version); version != "" {
			v.codeSystems[u+"|"+version] = cs
		}
	}
	return v
}

// Supports reports whether vs carries an expansion.
func (v *ExpandedCodeValidator) Supports(vs *r4.ValueSet) bool {
	return vs != nil && vs.Expansion != nil
}

// ValidateCode checks system#code, where system may be url|version, against
// the expansion of vs.
func (v *ExpandedCodeValidator) ValidateCode(vs *r4.ValueSet, system, code, display string, opts ValidateOptions) *CodeResult {
	if !v.Supports(vs) {
		return &CodeResult{Severity: SeverityError, Message: "ValueSet not supported"}
	}

	version := ""
	if parts := strings.Split(system, "|"); len(parts) == 2 {
		system, version = parts[0], parts[1]
	}

	caseSensitive := true
	var cs *r4.CodeSystem
	if !opts.InferSystem && system != "" {
		cs = v.codeSystems[versioned(system, version)]
	}

	result := &CodeResult{CodeSystemVersion: version}
	if cs != nil {
		if cs.CaseSensitive != nil {
			caseSensitive = *cs.CaseSensitive
		}
		result.CodeSystemName = deref(cs.Name)
		result.CodeSystemVersion = deref(cs.Version)
	}

	var match *codeEntry
	walkContains(vs.Expansion.Contains, func(entry codeEntry) bool {
		matches := entry.code == code || (!caseSensitive && strings.EqualFold(entry.code, code))
		if !matches {
			return true
		}
		if opts.InferSystem || (entry.system == system && (version == "" || version == entry.version)) {
			match = &entry
			return false
		}
		return true
	})

	if match != nil {
		result.Display = match.display
		if opts.ValidateDisplay && match.display != "" && display != "" && match.display != display {
			result.Severity = SeverityError
			result.Message = fmt.Sprintf("Concept Display %q does not match expected %q", display, match.display)
			return result
		}
		result.Valid = true
		result.Code = code
		return result
	}

	label := code
	if system != "" {
		label = system + "#" + code
	}
	if cs != nil && codeOf(cs.Content) == "fragment" {
		return &CodeResult{Severity: SeverityWarning, Message: fmt.Sprintf("Unknown code in fragment CodeSystem '%s'", label)}
	}
	return &CodeResult{Severity: SeverityError, Message: fmt.Sprintf("Unknown code '%s'", label)}
}

// walkContains visits contains depth first until visit returns false.
func walkContains(contains []r4.ValueSetExpansionContains, visit func(codeEntry) bool) bool {
	for i := range contains {
		c := &contains[i]
		entry := codeEntry{system: deref(c.System), version: deref(c.Version), code: deref(c.Code), display: deref(c.Display)}
		if !visit(entry) {
			return false
		}
		if !walkContains(c.Contains, visit) {
			return false
		}
	}
	return true
}
