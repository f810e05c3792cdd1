package cmd

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/schollz/progressbar/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()

	buffer := bytes.Buffer{}
	gzWriter := gzip.NewWriter(&buffer)
	tarWriter := tar.NewWriter(gzWriter)

	for name, content := range files {
		require.NoError(t, tarWriter.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(content)),
		}))
		_, err := tarWriter.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, tarWriter.Close())
	require.NoError(t, gzWriter.Close())

	return buffer.Bytes()
}

func TestExpandTemplateVars(t *testing.T) {
	t.Parallel()

	vars := map[string]string{"REF": "v1.2.0", "OS_NAME": "linux"}

	url := expandTemplateVars("https://example.com/{OS_NAME}/tpl-{REF}.tar.gz", vars)
	assert.Equal(t, "https://example.com/linux/tpl-v1.2.0.tar.gz", url)

	// unknown placeholders collapse to nothing
	url = expandTemplateVars("https://example.com/{MISSING}.zip", vars)
	assert.Equal(t, "https://example.com/.zip", url)
}

func TestGetExtractor_KnownAndUnknownFormats(t *testing.T) {
	t.Parallel()

	for _, url := range []string{"a.zip", "a.tar.gz", "a.tar.bz2", "a.tar.xz", "a.tar.br"} {
		extractor, err := getExtractor(url)
		require.NoError(t, err, url)
		assert.NotNil(t, extractor, url)
	}

	_, err := getExtractor("a.rar")
	assert.Error(t, err)
}

func TestExtractTar_StripsLeadingElements(t *testing.T) {
	t.Parallel()

	archive := buildTarGz(t, map[string]string{
		"template-v1.2.0/__init__.py":           "",
		"template-v1.2.0/controller.py":         "class Controller: ...",
		"template-v1.2.0/templates/widget.html": "<div></div>",
	})

	tmpFile := filepath.Join(t.TempDir(), "template.tar.gz")
	require.NoError(t, os.WriteFile(tmpFile, archive, 0600))

	handle, err := os.Open(tmpFile)
	require.NoError(t, err)
	defer handle.Close()

	gzReader, err := gzip.NewReader(handle)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "widget")
	bar := progressbar.NewOptions64(int64(len(archive)), progressbar.OptionSetVisibility(false))
	err = extractTar(gzReader, handle, bar, dest, templateSpec{Strip: 1})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dest, "controller.py"))
	require.NoError(t, err)
	assert.Equal(t, "class Controller: ...", string(content))

	content, err = os.ReadFile(filepath.Join(dest, "templates", "widget.html"))
	require.NoError(t, err)
	assert.Equal(t, "<div></div>", string(content))

	// the stripped top-level directory must not reappear
	_, err = os.Stat(filepath.Join(dest, "template-v1.2.0"))
	assert.True(t, os.IsNotExist(err))
}

func TestOpenExtractorDest_RejectsEscapingPaths(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()

	handle, path, err := openExtractorDest(dest, "../escape.txt", templateSpec{})
	require.NoError(t, err)
	assert.Nil(t, handle)
	assert.Equal(t, "/", path)
}

func TestDownloadTemplate_ReturnsDigest(t *testing.T) {
	t.Parallel()

	payload := []byte("template payload")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	handle, digest, err := downloadTemplate(server.URL + "/tpl.tar.gz")
	require.NoError(t, err)
	defer func() {
		handle.Close()
		os.Remove(handle.Name())
	}()

	expected := sha256.Sum256(payload)
	assert.Equal(t, hex.EncodeToString(expected[:]), digest)

	_, err = handle.Seek(0, io.SeekStart)
	require.NoError(t, err)
	stored, err := io.ReadAll(handle)
	require.NoError(t, err)
	assert.Equal(t, payload, stored)
}

func TestDownloadTemplate_FailsOnHTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	handle, _, err := downloadTemplate(server.URL + "/missing.tar.gz")
	if handle != nil {
		handle.Close()
		os.Remove(handle.Name())
	}
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
