package azure

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known development storage account key.
const devAccountKey = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="

func devConnectionString(endpoint string) string {
	return "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=" + devAccountKey +
		";BlobEndpoint=" + endpoint + "/devstoreaccount1;"
}

const listPage1 = `<?xml version="1.0" encoding="utf-8"?>
<EnumerationResults ServiceEndpoint="http://127.0.0.1/devstoreaccount1" ContainerName="forms">
  <Blobs>
    <Blob><Name>a.pdf</Name><Properties><Content-Length>4</Content-Length></Properties></Blob>
    <Blob><Name>notes.txt</Name><Properties><Content-Length>2</Content-Length></Properties></Blob>
  </Blobs>
  <NextMarker>page2</NextMarker>
</EnumerationResults>`

const listPage2 = `<?xml version="1.0" encoding="utf-8"?>
<EnumerationResults ServiceEndpoint="http://127.0.0.1/devstoreaccount1" ContainerName="forms">
  <Blobs>
    <Blob><Name>forms/b.PDF</Name><Properties><Content-Length>4</Content-Length></Properties></Blob>
  </Blobs>
  <NextMarker />
</EnumerationResults>`

func newBlobServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case r.Method == http.MethodGet && q.Get("comp") == "list":
			w.Header().Set("Content-Type", "application/xml")
			if q.Get("marker") == "page2" {
				_, _ = io.WriteString(w, listPage2)
				return
			}
			_, _ = io.WriteString(w, listPage1)
		case r.Method == http.MethodGet && r.URL.Path == "/devstoreaccount1/forms/a.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = io.WriteString(w, "%PDF")
		default:
			w.Header().Set("x-ms-error-code", "BlobNotFound")
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestContainerSource_WalkFollowsPages(t *testing.T) {
	srv := newBlobServer(t)
	src, err := NewContainerSource(devConnectionString(srv.URL), "forms")
	require.NoError(t, err)

	var names []string
	err = src.Walk(context.Background(), func(name string) error {
		names = append(names, name)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "notes.txt", "forms/b.PDF"}, names)
}

func TestContainerSource_WalkStopsOnCallbackError(t *testing.T) {
	srv := newBlobServer(t)
	src, err := NewContainerSource(devConnectionString(srv.URL), "forms")
	require.NoError(t, err)

	stop := errors.New("stop")
	calls := 0
	err = src.Walk(context.Background(), func(string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestContainerSource_Open(t *testing.T) {
	srv := newBlobServer(t)
	src, err := NewContainerSource(devConnectionString(srv.URL), "forms")
	require.NoError(t, err)

	rc, err := src.Open(context.Background(), "a.pdf")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	_, err = src.Open(context.Background(), "missing.pdf")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "forms/missing.pdf"))
}

func TestNewContainerSource_Validation(t *testing.T) {
	_, err := NewContainerSource("", "forms")
	assert.Error(t, err)

	_, err = NewContainerSource(devConnectionString("http://127.0.0.1:1"), "")
	assert.Error(t, err)

	_, err = NewContainerSource("not a connection string", "forms")
	assert.Error(t, err)
}
