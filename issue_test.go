package igpack

import (
	"testing"
)

func TestIssueBuilder(t *testing.T) {
	issue := Warning(IssueTypeNotFound).
		Diagnostics("value set not found").
		Package("example.ig|1.0.0").
		Resource("http://example.org/vs/x").
		Step(StepExtract).
		Build()

	if issue.Severity != SeverityWarning {
		t.Errorf("Severity = %v; want %v", issue.Severity, SeverityWarning)
	}
	if issue.Code != IssueTypeNotFound {
		t.Errorf("Code = %v; want %v", issue.Code, IssueTypeNotFound)
	}
	if issue.Package != "example.ig|1.0.0" {
		t.Errorf("Package = %q", issue.Package)
	}
	if issue.Step != StepExtract {
		t.Errorf("Step = %q; want %q", issue.Step, StepExtract)
	}
	if !issue.IsWarning() || issue.IsError() {
		t.Errorf("IsWarning/IsError mismatch for %v", issue.Severity)
	}
}

func TestIssue_String(t *testing.T) {
	tests := []struct {
		name  string
		issue Issue
		want  string
	}{
		{
			name:  "diagnostics only",
			issue: Error(IssueTypeProcessing).Diagnostics("boom").Build(),
			want:  "error: boom",
		},
		{
			name:  "with resource and package",
			issue: Info(IssueTypeInformational).Diagnostics("ok").Resource("http://x|1").Package("p|1.0.0").Build(),
			want:  "information: ok (http://x|1) in p|1.0.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.issue.String(); got != tt.want {
				t.Errorf("String() = %q; want %q", got, tt.want)
			}
		})
	}
}
