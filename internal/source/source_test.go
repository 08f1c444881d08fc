package source

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/tender.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4 body"))
		case "/login":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html></html>"))
		case "/big.pdf":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, 32)

	data, err := f.Fetch(t.Context(), srv.URL+"/tender.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))

	_, err = f.Fetch(t.Context(), srv.URL+"/missing.pdf")
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)

	_, err = f.Fetch(t.Context(), srv.URL+"/login")
	assert.True(t, errors.As(err, &fetchErr), "HTML pages are not tender documents")

	_, err = f.Fetch(t.Context(), srv.URL+"/big.pdf")
	assert.True(t, errors.As(err, &fetchErr))
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(20*time.Millisecond, 0).Fetch(t.Context(), srv.URL)
	var fetchErr *FetchError
	assert.True(t, errors.As(err, &fetchErr))
}

func TestHTTPFetcher_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tender.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7"), 0o600))

	f := NewHTTPFetcher(0, 0, WithLocalFiles())
	data, err := f.Fetch(t.Context(), path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))

	data, err = f.Fetch(t.Context(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))

	_, err = f.Fetch(t.Context(), "ftp://example.com/tender.pdf")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestHTTPFetcher_RefusesLocalFilesByDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tender.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7"), 0o600))

	f := NewHTTPFetcher(0, 0)
	for _, rawURL := range []string{
		path,
		"file://" + path,
		"file:///etc/passwd",
		"/etc/passwd",
		"/etc/shadow-does-not-exist",
	} {
		data, err := f.Fetch(t.Context(), rawURL)
		assert.Nil(t, data, rawURL)
		require.ErrorIs(t, err, ErrUnsupportedScheme, rawURL)
		assert.NotContains(t, err.Error(), "no such file", rawURL)
	}
}

func TestPDFExtractor_RejectsNonPDF(t *testing.T) {
	_, err := NewPDFExtractor().Extract([]byte("<html>not a pdf</html>"))
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.ErrorIs(t, err, ErrNotPDF)
}

func TestPDFExtractor_MalformedPDF(t *testing.T) {
	_, err := NewPDFExtractor().Extract([]byte("%PDF-1.4\ngarbage without xref"))
	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))
}

func TestCollapseBlankLines(t *testing.T) {
	in := "Section 1\n\n\n   \n\nSection 2\nline\n \t\nSection 3"
	assert.Equal(t, "Section 1\n\nSection 2\nline\n\nSection 3", CollapseBlankLines(in))
}
