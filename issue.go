package igpack

// IssueSeverity represents the severity of a preparation issue.
// Values follow OperationOutcome.issue.severity in FHIR.
type IssueSeverity string

const (
	// SeverityError indicates a step failed for one resource or package.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates validation with the prepared set may be incomplete.
	SeverityWarning IssueSeverity = "warning"
	// SeverityInformation indicates informational feedback.
	SeverityInformation IssueSeverity = "information"
)

// IssueType represents the type of preparation issue.
// Values follow OperationOutcome.issue.code in FHIR.
type IssueType string

const (
	// IssueTypeNotFound indicates a referenced value set is in no package.
	IssueTypeNotFound IssueType = "not-found"
	// IssueTypeProcessing indicates an expansion or snapshot failed.
	IssueTypeProcessing IssueType = "processing"
	// IssueTypeBusinessRule indicates a status or version mismatch.
	IssueTypeBusinessRule IssueType = "business-rule"
	// IssueTypeInformational indicates informational content.
	IssueTypeInformational IssueType = "informational"
)

// Issue is a recoverable problem found while preparing a package.
type Issue struct {
	Severity IssueSeverity `json:"severity"`
	Code     IssueType     `json:"code"`

	// Diagnostics contains human-readable details about the issue
	Diagnostics string `json:"diagnostics,omitempty"`

	// Package is the root package the issue belongs to, as name|version
	Package string `json:"package,omitempty"`

	// Resource is the canonical url|version of the affected resource
	Resource string `json:"resource,omitempty"`

	// Step is the preparation step that found the issue
	Step string `json:"step,omitempty"`
}

// Preparation steps.
const (
	StepResolve  = "resolve"
	StepExtract  = "extract"
	StepExpand   = "expand"
	StepSnapshot = "snapshot"
)

// IsError returns true if this is an error issue.
func (i Issue) IsError() bool {
	return i.Severity == SeverityError
}

// IsWarning returns true if this is a warning.
func (i Issue) IsWarning() bool {
	return i.Severity == SeverityWarning
}

// String returns a human-readable representation of the issue.
func (i Issue) String() string {
	s := string(i.Severity) + ": " + i.Diagnostics
	if i.Resource != "" {
		s += " (" + i.Resource + ")"
	}
	if i.Package != "" {
		s += " in " + i.Package
	}
	return s
}

// IssueBuilder provides a fluent API for building issues.
type IssueBuilder struct {
	issue Issue
}

// NewIssue creates a new IssueBuilder.
func NewIssue(severity IssueSeverity, code IssueType) *IssueBuilder {
	return &IssueBuilder{
		issue: Issue{
			Severity: severity,
			Code:     code,
		},
	}
}

// Error creates an error issue.
func Error(code IssueType) *IssueBuilder {
	return NewIssue(SeverityError, code)
}

// Warning creates a warning issue.
func Warning(code IssueType) *IssueBuilder {
	return NewIssue(SeverityWarning, code)
}

// Info creates an informational issue.
func Info(code IssueType) *IssueBuilder {
	return NewIssue(SeverityInformation, code)
}

// Diagnostics sets the diagnostic message.
func (b *IssueBuilder) Diagnostics(msg string) *IssueBuilder {
	b.issue.Diagnostics = msg
	return b
}

// Package sets the root package.
func (b *IssueBuilder) Package(id string) *IssueBuilder {
	b.issue.Package = id
	return b
}

// Resource sets the affected resource.
func (b *IssueBuilder) Resource(ref string) *IssueBuilder {
	b.issue.Resource = ref
	return b
}

// Step sets the preparation step.
func (b *IssueBuilder) Step(step string) *IssueBuilder {
	b.issue.Step = step
	return b
}

// Build returns the constructed issue.
func (b *IssueBuilder) Build() Issue {
	return b.issue
}
