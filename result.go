package igpack

import (
	"sync"

	"github.com/gofhir/fhir/r4"
)

// PreparedSet is one root package with everything a validator needs for it.
type PreparedSet struct {
	// Package is the root package as name|version
	Package string `json:"package"`

	// Dependencies of the root, in resolution order
	Dependencies []string `json:"dependencies,omitempty"`

	// ValueSets are the expanded value sets bound by the root profiles
	ValueSets []*r4.ValueSet `json:"valueSets,omitempty"`

	// MissingValueSets are bound but found in no package
	MissingValueSets []string `json:"missingValueSets,omitempty"`

	// Snapshots generated for the root profiles and their dependencies
	Snapshots []*r4.StructureDefinition `json:"snapshots,omitempty"`
}

// Result contains the outcome of preparing a list of root packages.
type Result struct {
	Sets   []PreparedSet `json:"sets"`
	Issues []Issue       `json:"issues,omitempty"`

	// mu protects concurrent access to Issues
	mu sync.Mutex
}

// NewResult creates an empty result.
func NewResult() *Result {
	return &Result{
		Sets:   make([]PreparedSet, 0, 4),
		Issues: make([]Issue, 0, 8),
	}
}

// AddIssue adds an issue to the result.
// This method is thread-safe.
func (r *Result) AddIssue(issue Issue) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Issues = append(r.Issues, issue)
}

// AddIssues adds multiple issues to the result.
// This method is thread-safe.
func (r *Result) AddIssues(issues []Issue) {
	if len(issues) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.Issues = append(r.Issues, issues...)
}

// HasErrors returns true if there are any error issues.
func (r *Result) HasErrors() bool {
	return r.ErrorCount() > 0
}

// HasWarnings returns true if there are any warning issues.
func (r *Result) HasWarnings() bool {
	return r.WarningCount() > 0
}

// ErrorCount returns the number of error issues.
func (r *Result) ErrorCount() int {
	return len(r.Errors())
}

// WarningCount returns the number of warning issues.
func (r *Result) WarningCount() int {
	return len(r.Warnings())
}

// Errors returns all error issues.
func (r *Result) Errors() []Issue {
	return r.filter(Issue.IsError)
}

// Warnings returns all warning issues.
func (r *Result) Warnings() []Issue {
	return r.filter(Issue.IsWarning)
}

func (r *Result) filter(keep func(Issue) bool) []Issue {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Issue
	for _, issue := range r.Issues {
		if keep(issue) {
			out = append(out, issue)
		}
	}
	return out
}

// Set returns the prepared set of the root package id, name|version.
func (r *Result) Set(id string) (PreparedSet, bool) {
	for _, s := range r.Sets {
		if s.Package == id {
			return s, true
		}
	}
	return PreparedSet{}, false
}

// ValueSetCount returns the number of expanded value sets over all sets.
func (r *Result) ValueSetCount() int {
	n := 0
	for _, s := range r.Sets {
		n += len(s.ValueSets)
	}
	return n
}

// SnapshotCount returns the number of generated snapshots over all sets.
func (r *Result) SnapshotCount() int {
	n := 0
	for _, s := range r.Sets {
		n += len(s.Snapshots)
	}
	return n
}
