package httpclient

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"AytoSync/internal/config"
	"AytoSync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient_DecompressesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte(`{"participants":[]}`))
		_ = gz.Close()
	}))
	defer srv.Close()

	client := NewHTTPClient(config.UpdaterConfig{Timeout: 2 * time.Second}, testutil.NewLogger())
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"participants":[]}`, string(body))
	assert.Empty(t, resp.Header.Get("Content-Encoding"))
}

func TestNewHTTPClient_Timeout(t *testing.T) {
	client := NewHTTPClient(config.UpdaterConfig{Proxy: "://bad"}, testutil.NewLogger())
	assert.Equal(t, 30*time.Second, client.Timeout)
}
