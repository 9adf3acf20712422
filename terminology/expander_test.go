package terminology

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gofhir/fhir/r4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/gofhir/igpack/cache"
	"github.com/gofhir/igpack/modifier"
)

type fixedVersions []URLAndVersion

func (f fixedVersions) SupportedCodeSystemVersions(context.Context, string) ([]URLAndVersion, error) {
	return append([]URLAndVersion(nil), f...), nil
}

// echoExpander expands enumerated includes without looking at CodeSystems.
func echoExpander(calls *atomic.Int32) ExpanderFunc {
	return func(_ context.Context, vs *r4.ValueSet) (*r4.ValueSet, error) {
		if calls != nil {
			calls.Add(1)
		}
		out, err := modifier.Clone(vs)
		if err != nil {
			return nil, err
		}
		out.Expansion = &r4.ValueSetExpansion{}
		for _, include := range vs.Compose.Include {
			code := "c-" + deref(include.Version)
			if len(include.Concept) > 0 {
				code = deref(include.Concept[0].Code)
			}
			out.Expansion.Contains = append(out.Expansion.Contains, r4.ValueSetExpansionContains{System: include.System, Code: &code})
		}
		return out, nil
	}
}

func TestStarVersionExpander(t *testing.T) {
	vs := valueSet(t, `{"resourceType":"ValueSet","url":"http://example.org/vs/star","version":"1.0.0",
		"compose":{"include":[{"system":"http://example.org/cs","version":"*","concept":[{"code":"ignored"}]}]}}`)
	versions := fixedVersions{
		{URL: "http://example.org/cs", Version: "1.10.0"},
		{URL: "http://example.org/cs", Version: "1.2.0"},
		{URL: "http://example.org/cs", Version: "1.9.1"},
	}

	var requested []string
	delegate := ExpanderFunc(func(ctx context.Context, single *r4.ValueSet) (*r4.ValueSet, error) {
		require.Len(t, single.Compose.Include, 1)
		assert.Empty(t, single.Compose.Include[0].Concept)
		requested = append(requested, deref(single.Compose.Include[0].Version))
		return echoExpander(nil)(ctx, single)
	})

	out, err := NewStarVersionExpander(delegate, versions).Expand(context.Background(), vs)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.2.0", "1.9.1", "1.10.0"}, requested)
	assert.Equal(t, []string{
		"http://example.org/cs#c-1.2.0|1.2.0",
		"http://example.org/cs#c-1.9.1|1.9.1",
		"http://example.org/cs#c-1.10.0|1.10.0",
	}, codes(out))
	assert.Equal(t, "*", deref(vs.Compose.Include[0].Version))
	assert.Nil(t, vs.Expansion)
}

func TestStarVersionExpander_Delegates(t *testing.T) {
	var useCases = []struct {
		description string
		doc         string
	}{
		{"no wildcard", `{"resourceType":"ValueSet","url":"u","compose":{"include":[{"system":"http://example.org/cs","version":"1.0.0"}]}}`},
		{"two includes", `{"resourceType":"ValueSet","url":"u","compose":{"include":[{"system":"a","version":"*"},{"system":"b","version":"*"}]}}`},
		{"no system", `{"resourceType":"ValueSet","url":"u","compose":{"include":[{"version":"*","valueSet":["http://example.org/vs/other"]}]}}`},
	}
	for _, useCase := range useCases {
		var calls atomic.Int32
		expander := NewStarVersionExpander(echoExpander(&calls), nil)
		_, err := expander.Expand(context.Background(), valueSet(t, useCase.doc))
		require.NoError(t, err, useCase.description)
		assert.EqualValues(t, 1, calls.Load(), useCase.description)
	}
}

type tagModifier struct {
	modifier.PassThrough
	tag string
	log *[]string
}

func (m tagModifier) PreExpansion(vs *r4.ValueSet) *r4.ValueSet {
	*m.log = append(*m.log, "pre-"+m.tag)
	return vs
}

func (m tagModifier) PostExpansion(original, expanded *r4.ValueSet) *r4.ValueSet {
	*m.log = append(*m.log, "post-"+m.tag)
	return expanded
}

func TestModifyingExpander(t *testing.T) {
	var log []string
	pipeline := modifier.ValueSetPipeline{tagModifier{tag: "a", log: &log}, tagModifier{tag: "b", log: &log}}
	delegate := ExpanderFunc(func(ctx context.Context, vs *r4.ValueSet) (*r4.ValueSet, error) {
		log = append(log, "expand")
		return echoExpander(nil)(ctx, vs)
	})

	out, err := NewModifyingExpander(delegate, pipeline).Expand(context.Background(), valueSet(t, genderValueSet))
	require.NoError(t, err)
	assert.Equal(t, []string{"pre-a", "pre-b", "expand", "post-a", "post-b"}, log)
	assert.Equal(t, []string{"http://example.org/cs/gender#m"}, codes(out))
}

func newValueSetCache(t *testing.T, name string, opts ...cache.ContentOption) *cache.Content[*r4.ValueSet] {
	t.Helper()
	root := fmt.Sprintf("mem://localhost/terminology/%s", name)
	_ = afs.New().Delete(context.Background(), root)
	c, err := cache.NewContent(root, cache.ValueSetKind, opts...)
	require.NoError(t, err)
	return c
}

func TestCachingExpander(t *testing.T) {
	var calls atomic.Int32
	c := newValueSetCache(t, "caching")
	expander := NewCachingExpander(echoExpander(&calls), c)

	first, err := expander.Expand(context.Background(), valueSet(t, genderValueSet))
	require.NoError(t, err)
	second, err := expander.Expand(context.Background(), valueSet(t, genderValueSet))
	require.NoError(t, err)

	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, codes(first), codes(second))
	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Writes)
	assert.EqualValues(t, 1, stats.Hits)
}

func TestCachingExpander_Concurrent(t *testing.T) {
	var calls atomic.Int32
	expander := NewCachingExpander(echoExpander(&calls), newValueSetCache(t, "concurrent"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := expander.Expand(context.Background(), valueSet(t, genderValueSet))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))

	_, err := expander.Expand(context.Background(), valueSet(t, genderValueSet))
	require.NoError(t, err)
	before := calls.Load()
	_, err = expander.Expand(context.Background(), valueSet(t, genderValueSet))
	require.NoError(t, err)
	assert.Equal(t, before, calls.Load())
}

func TestCachingExpander_Bypass(t *testing.T) {
	var useCases = []struct {
		description string
		doc         string
		opts        []cache.ContentOption
		expectCalls int32
	}{
		{
			description: "no version",
			doc:         `{"resourceType":"ValueSet","url":"http://example.org/vs/x","compose":{"include":[{"system":"s","concept":[{"code":"c"}]}]}}`,
			expectCalls: 2,
		},
		{
			description: "draft not cached",
			doc:         `{"resourceType":"ValueSet","url":"http://example.org/vs/x","version":"1","status":"draft","compose":{"include":[{"system":"s","concept":[{"code":"c"}]}]}}`,
			opts:        []cache.ContentOption{cache.WithCacheDraft(false)},
			expectCalls: 2,
		},
		{
			description: "draft cached",
			doc:         `{"resourceType":"ValueSet","url":"http://example.org/vs/x","version":"1","status":"draft","compose":{"include":[{"system":"s","concept":[{"code":"c"}]}]}}`,
			expectCalls: 1,
		},
	}

	for i, useCase := range useCases {
		var calls atomic.Int32
		expander := NewCachingExpander(echoExpander(&calls), newValueSetCache(t, fmt.Sprintf("bypass%d", i), useCase.opts...))
		for j := 0; j < 2; j++ {
			_, err := expander.Expand(context.Background(), valueSet(t, useCase.doc))
			require.NoError(t, err, useCase.description)
		}
		assert.Equal(t, useCase.expectCalls, calls.Load(), useCase.description)
	}
}

func TestCachingExpander_ErrorNotCached(t *testing.T) {
	var calls atomic.Int32
	failing := ExpanderFunc(func(context.Context, *r4.ValueSet) (*r4.ValueSet, error) {
		calls.Add(1)
		return nil, errors.New("server down")
	})
	expander := NewCachingExpander(failing, newValueSetCache(t, "error"))
	for i := 0; i < 2; i++ {
		_, err := expander.Expand(context.Background(), valueSet(t, genderValueSet))
		require.Error(t, err)
	}
	assert.EqualValues(t, 2, calls.Load())
}
