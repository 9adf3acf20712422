package terminology

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/igpack/pkg/logger"
)

const (
	// DefaultServerURL is the terminology server used when none is configured.
	DefaultServerURL = "https://ontoserver.mii-termserv.de/fhir"

	// DefaultTimeout for HTTP requests.
	DefaultTimeout = 5 * time.Minute

	fhirJSON = "application/fhir+json"

	// maxErrorBody bounds the response body kept in a StatusError.
	maxErrorBody = 64 << 10
)

// StatusError reports a non-2xx terminology server response.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("terminology server %s failed: status %d", e.Operation, e.StatusCode)
}

// URLAndVersion identifies one CodeSystem version known to the server.
type URLAndVersion struct {
	URL     string
	Version string
}

// ValidationResult is the outcome of CodeSystem/$validate-code.
type ValidationResult struct {
	Result  bool
	Message string
}

// Capabilities summarizes the server CapabilityStatement.
type Capabilities struct {
	FHIRVersion     string `json:"fhirVersion"`
	SoftwareName    string `json:"softwareName,omitempty"`
	SoftwareVersion string `json:"softwareVersion,omitempty"`
	Description     string `json:"description,omitempty"`
}

// Client is a FHIR terminology server client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	verbose    bool
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithServerURL sets the server base URL.
func WithServerURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithVerbose logs request and response payloads at debug level.
func WithVerbose(verbose bool) ClientOption {
	return func(c *Client) {
		c.verbose = verbose
	}
}

// NewClient creates a new terminology server client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    DefaultServerURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Expand sends vs to ValueSet/$expand. A ValueSet that already has an
// expansion is returned as is.
func (c *Client) Expand(ctx context.Context, vs *r4.ValueSet) (*r4.ValueSet, error) {
	if vs == nil {
		return nil, fmt.Errorf("value set must not be nil")
	}
	if vs.Expansion != nil {
		logger.Debug("ValueSet %s|%s already expanded", deref(vs.Url), deref(vs.Version))
		return vs, nil
	}

	resource, err := resourceJSON("ValueSet", vs)
	if err != nil {
		return nil, err
	}
	body := parameters{ResourceType: "Parameters", Parameter: []parameter{{Name: "valueSet", Resource: resource}}}

	var expanded r4.ValueSet
	if err := c.do(ctx, http.MethodPost, "ValueSet/$expand", nil, body, &expanded); err != nil {
		return nil, fmt.Errorf("failed to expand ValueSet %s|%s: %w", deref(vs.Url), deref(vs.Version), err)
	}
	return &expanded, nil
}

// ValidateCode sends coding to CodeSystem/$validate-code.
func (c *Client) ValidateCode(ctx context.Context, coding r4.Coding) (*ValidationResult, error) {
	body := parameters{ResourceType: "Parameters", Parameter: []parameter{{Name: "coding", ValueCoding: &coding}}}

	var out parameters
	if err := c.do(ctx, http.MethodPost, "CodeSystem/$validate-code", nil, body, &out); err != nil {
		return nil, fmt.Errorf("failed to validate %s#%s: %w", deref(coding.System), deref(coding.Code), err)
	}

	result := &ValidationResult{}
	if p, ok := out.get("result"); ok && p.ValueBoolean != nil {
		result.Result = *p.ValueBoolean
	}
	if p, ok := out.get("message"); ok && p.ValueString != nil {
		result.Message = *p.ValueString
	}
	return result, nil
}

// Metadata reads the server CapabilityStatement.
func (c *Client) Metadata(ctx context.Context) (*Capabilities, error) {
	var statement capabilityStatement
	if err := c.do(ctx, http.MethodGet, "metadata", nil, nil, &statement); err != nil {
		return nil, fmt.Errorf("failed to read metadata of %s: %w", c.baseURL, err)
	}
	return &Capabilities{
		FHIRVersion:     statement.FHIRVersion,
		SoftwareName:    statement.Software.Name,
		SoftwareVersion: statement.Software.Version,
		Description:     statement.Implementation.Description,
	}, nil
}

// SupportedCodeSystemVersions lists the versions of CodeSystem csURL the
// server knows.
func (c *Client) SupportedCodeSystemVersions(ctx context.Context, csURL string) ([]URLAndVersion, error) {
	query := url.Values{"url": {csURL}, "_summary": {"true"}}

	var bundle searchBundle
	if err := c.do(ctx, http.MethodGet, "CodeSystem", query, nil, &bundle); err != nil {
		return nil, fmt.Errorf("failed to search CodeSystem %s: %w", csURL, err)
	}

	seen := make(map[URLAndVersion]struct{})
	var versions []URLAndVersion
	for _, entry := range bundle.Entry {
		if len(entry.Resource) == 0 {
			continue
		}
		var summary resourceSummary
		if err := json.Unmarshal(entry.Resource, &summary); err != nil {
			return nil, fmt.Errorf("failed to decode CodeSystem search result: %w", err)
		}
		if summary.ResourceType != "CodeSystem" || summary.Version == "" {
			continue
		}
		uv := URLAndVersion{URL: summary.URL, Version: summary.Version}
		if _, dup := seen[uv]; dup {
			continue
		}
		seen[uv] = struct{}{}
		versions = append(versions, uv)
	}
	return versions, nil
}

// HasValueSet reports whether the server knows ValueSet valueSetURL. An
// empty version matches any version.
func (c *Client) HasValueSet(ctx context.Context, valueSetURL, version string) (bool, error) {
	query := url.Values{"url": {valueSetURL}, "_summary": {"true"}}
	if version != "" {
		query.Set("version", version)
	}

	var bundle searchBundle
	if err := c.do(ctx, http.MethodGet, "ValueSet", query, nil, &bundle); err != nil {
		return false, fmt.Errorf("failed to search ValueSet %s: %w", valueSetURL, err)
	}
	for _, entry := range bundle.Entry {
		var summary resourceSummary
		if err := json.Unmarshal(entry.Resource, &summary); err != nil {
			continue
		}
		if summary.ResourceType == "ValueSet" && summary.URL == valueSetURL && (version == "" || summary.Version == version) {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	target := c.baseURL + "/" + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader = http.NoBody
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		if c.verbose {
			logger.Debug("%s %s: %s", method, target, payload)
		}
		reader = bytes.NewReader(payload)
	} else if c.verbose {
		logger.Debug("%s %s", method, target)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", fhirJSON)
	if in != nil {
		req.Header.Set("Content-Type", fhirJSON)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Operation: method + " " + path, StatusCode: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if c.verbose {
		logger.Debug("%s %s -> %d: %s", method, target, resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
