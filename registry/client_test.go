package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofhir/igpack/pkg/fhirpackage"
)

func archiveOf(t *testing.T, name, version string) []byte {
	t.Helper()
	pkg := fhirpackage.New(fhirpackage.NewIdentifier(name, version), []fhirpackage.Entry{
		{Name: fhirpackage.DescriptorEntry, Data: []byte(fmt.Sprintf(`{"name":%q,"version":%q}`, name, version))},
		{Name: "ValueSet-a.json", Data: []byte(`{"resourceType":"ValueSet","url":"http://example.org/vs/a","version":"1.0.0"}`)},
	})
	data, err := pkg.Archive()
	require.NoError(t, err)
	return data
}

func TestClient_CatalogMemoized(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/example.pkg", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"_id":"example.pkg","name":"example.pkg","dist-tags":{"latest":"1.1.0"},
			"versions":{"1.0.0":{"name":"example.pkg","version":"1.0.0"},"1.1.0":{"name":"example.pkg","version":"1.1.0"}}}`))
	}))
	defer server.Close()

	client := NewClient(WithRegistryURL(server.URL + "/"))
	catalog, err := client.Catalog(context.Background(), "example.pkg")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", catalog.Latest())
	assert.Len(t, catalog.Versions, 2)

	_, err = client.Catalog(context.Background(), "example.pkg")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_DownloadUsesListedTarball(t *testing.T) {
	archive := archiveOf(t, "example.pkg", "1.0.0")
	var tarballHits atomic.Int32

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/example.pkg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"name":"example.pkg","versions":{"1.0.0":{"version":"1.0.0","dist":{"tarball":"%s/tarballs/example.pkg-1.0.0.tgz"}}}}`, server.URL)
	})
	mux.HandleFunc("/tarballs/example.pkg-1.0.0.tgz", func(w http.ResponseWriter, r *http.Request) {
		tarballHits.Add(1)
		_, _ = w.Write(archive)
	})

	pkg, err := NewClient(WithRegistryURL(server.URL)).Download(context.Background(), fhirpackage.NewIdentifier("example.pkg", "1.0.0"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), tarballHits.Load())
	assert.Equal(t, "example.pkg|1.0.0", pkg.Identifier().String())
	assert.Len(t, pkg.Resources().ValueSets, 1)
}

func TestClient_DownloadFallsBackToVersionPath(t *testing.T) {
	archive := archiveOf(t, "example.pkg", "2.0.0")

	mux := http.NewServeMux()
	mux.HandleFunc("/example.pkg", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/example.pkg/2.0.0", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	pkg, err := NewClient(WithRegistryURL(server.URL)).Download(context.Background(), fhirpackage.NewIdentifier("example.pkg", "2.0.0"))
	require.NoError(t, err)

	descriptor, err := pkg.Descriptor()
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", descriptor.Version)
}

func TestClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClient(WithRegistryURL(server.URL)).Download(context.Background(), fhirpackage.NewIdentifier("missing.pkg", "1.0.0"))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Contains(t, statusErr.URL, "/missing.pkg/1.0.0")
}

func TestClient_GarbageArchive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken.pkg" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("not a tarball"))
	}))
	defer server.Close()

	_, err := NewClient(WithRegistryURL(server.URL)).Download(context.Background(), fhirpackage.NewIdentifier("broken.pkg", "1.0.0"))
	assert.Error(t, err)
}

func TestClient_RegistryURL(t *testing.T) {
	assert.Equal(t, DefaultRegistryURL, NewClient().RegistryURL())
	assert.Equal(t, "https://registry.example.org", NewClient(WithRegistryURL("https://registry.example.org/")).RegistryURL())
}
