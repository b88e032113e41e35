package inventory_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"Inventory/internal/inventory"
	"Inventory/pkg/kit"
)

type countingPublisher struct{ n atomic.Int64 }

func (p *countingPublisher) Publish(_ context.Context, _ inventory.Collection) { p.n.Add(1) }

func newTestServer(t *testing.T, deps inventory.HTTPDeps) (*httptest.Server, *inventory.MemStore, *countingPublisher) {
	t.Helper()

	store := inventory.NewMemStore(nil)
	pub := &countingPublisher{}
	s := &inventory.Server{
		Service: inventory.NewService(store, pub, zap.NewNop()),
		Log:     zap.NewNop(),
	}

	deps.Log = zap.NewNop()
	deps.Service = "inventory"
	ts := httptest.NewServer(inventory.NewHandler(s, deps))
	t.Cleanup(ts.Close)
	return ts, store, pub
}

func doJSON(t *testing.T, method, url string, body string) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestHTTP_Health(t *testing.T) {
	ts, _, _ := newTestServer(t, inventory.HTTPDeps{})

	resp, raw := doJSON(t, http.MethodGet, ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(raw))

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTP_CRUDScenario(t *testing.T) {
	ts, _, pub := newTestServer(t, inventory.HTTPDeps{})

	resp, raw := doJSON(t, http.MethodGet, ts.URL+"/products", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(raw))

	resp, raw = doJSON(t, http.MethodPost, ts.URL+"/products", `{"codigo2":"A1","name":"Widget"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	assert.JSONEq(t, `{"codigo2":"A1","name":"Widget"}`, string(raw))

	resp, raw = doJSON(t, http.MethodGet, ts.URL+"/products", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[{"codigo2":"A1","name":"Widget"}]`, string(raw))

	resp, raw = doJSON(t, http.MethodPut, ts.URL+"/products/A1", `{"name":"Widget2"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.JSONEq(t, `{"codigo2":"A1","name":"Widget2"}`, string(raw))

	resp, raw = doJSON(t, http.MethodDelete, ts.URL+"/products/A1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"removed":1}`, string(raw))

	resp, raw = doJSON(t, http.MethodGet, ts.URL+"/products", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(raw))

	assert.EqualValues(t, 3, pub.n.Load())
}

func TestHTTP_UpdateMissingKeyIs404(t *testing.T) {
	ts, store, pub := newTestServer(t, inventory.HTTPDeps{})
	before := store.Raw()

	resp, raw := doJSON(t, http.MethodPut, ts.URL+"/products/nope", `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var er kit.ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &er))
	assert.Equal(t, "not found", er.Error)
	assert.NotEmpty(t, er.RequestID)

	assert.Equal(t, before, store.Raw())
	assert.Zero(t, pub.n.Load())
}

func TestHTTP_DeleteMissingKeyReturnsZero(t *testing.T) {
	ts, _, _ := newTestServer(t, inventory.HTTPDeps{})

	for i := 0; i < 2; i++ {
		resp, raw := doJSON(t, http.MethodDelete, ts.URL+"/products/ghost", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"removed":0}`, string(raw))
	}
}

func TestHTTP_ReplaceAll(t *testing.T) {
	ts, _, pub := newTestServer(t, inventory.HTTPDeps{})

	body := `[{"codigo2":"x"},{"codigo2":"y"},{"codigo2":"z"}]`
	resp, raw := doJSON(t, http.MethodPut, ts.URL+"/products", body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.JSONEq(t, `{"ok":true,"total":3}`, string(raw))

	_, raw = doJSON(t, http.MethodGet, ts.URL+"/products", "")
	assert.JSONEq(t, body, string(raw))
	assert.EqualValues(t, 1, pub.n.Load())
}

func TestHTTP_ReplaceAllRejectsNonArray(t *testing.T) {
	ts, store, pub := newTestServer(t, inventory.HTTPDeps{})
	doJSON(t, http.MethodPost, ts.URL+"/products", `{"codigo2":"keep"}`)
	before := store.Raw()

	resp, raw := doJSON(t, http.MethodPut, ts.URL+"/products", `{"codigo2":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var er kit.ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &er))
	assert.Equal(t, "array expected", er.Error)

	assert.Equal(t, before, store.Raw())
	assert.EqualValues(t, 1, pub.n.Load())
}

func TestHTTP_ReplaceAllRejectsNonObjectElements(t *testing.T) {
	ts, store, pub := newTestServer(t, inventory.HTTPDeps{})
	before := store.Raw()

	resp, raw := doJSON(t, http.MethodPut, ts.URL+"/products", `[{"codigo2":"x"},1]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var er kit.ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &er))
	assert.Equal(t, "array of objects expected", er.Error)

	assert.Equal(t, before, store.Raw())
	assert.Zero(t, pub.n.Load())
}

func TestHTTP_EscapedKeysAreDecoded(t *testing.T) {
	ts, _, _ := newTestServer(t, inventory.HTTPDeps{})

	tests := []struct {
		name string
		key  string
		path string
	}{
		{"slash", "AB/12", "AB%2F12"},
		{"lowercase escape", "ç", "%c3%a7"},
		{"canonical escape", "ñ", "%C3%B1"},
		{"literal percent", "50%", "50%25"},
		{"space", "a b", "a%20b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := json.Marshal(map[string]string{inventory.KeyField: tt.key})
			require.NoError(t, err)
			resp, raw := doJSON(t, http.MethodPost, ts.URL+"/products", string(body))
			require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

			resp, raw = doJSON(t, http.MethodPut, ts.URL+"/products/"+tt.path, `{"name":"renamed"}`)
			require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
			var merged map[string]any
			require.NoError(t, json.Unmarshal(raw, &merged))
			assert.Equal(t, tt.key, merged[inventory.KeyField])
			assert.Equal(t, "renamed", merged["name"])

			resp, raw = doJSON(t, http.MethodDelete, ts.URL+"/products/"+tt.path, "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.JSONEq(t, `{"removed":1}`, string(raw))
		})
	}
}

func TestHTTP_CreateRejectsNonObject(t *testing.T) {
	ts, _, pub := newTestServer(t, inventory.HTTPDeps{})

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/products", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, pub.n.Load())
}

func TestHTTP_PreservesNumberText(t *testing.T) {
	ts, _, _ := newTestServer(t, inventory.HTTPDeps{})

	doJSON(t, http.MethodPost, ts.URL+"/products", `{"codigo2":7,"price":10.50}`)

	resp, raw := doJSON(t, http.MethodPut, ts.URL+"/products/7", `{"stock":3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.Equal(t, `{"codigo2":7,"price":10.50,"stock":3}`, strings.TrimSpace(string(raw)))
}

func TestHTTP_CORSAllowsConfiguredOrigin(t *testing.T) {
	ts, _, _ := newTestServer(t, inventory.HTTPDeps{AllowedOrigin: "https://shop.example.com"})

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/products", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://shop.example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://shop.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHTTP_StaticFilesOnlyWhenPresent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>inventory</h1>"), 0o644))

	ts, _, _ := newTestServer(t, inventory.HTTPDeps{PublicDir: dir})
	resp, raw := doJSON(t, http.MethodGet, ts.URL+"/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "inventory")

	missing, _, _ := newTestServer(t, inventory.HTTPDeps{PublicDir: filepath.Join(dir, "absent")})
	resp, _ = doJSON(t, http.MethodGet, missing.URL+"/", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_MetricsRequireToken(t *testing.T) {
	reg := prometheus.NewRegistry()
	ts, _, _ := newTestServer(t, inventory.HTTPDeps{
		Registry:       reg,
		MetricsEnabled: true,
		MetricsToken:   "s3cret",
	})

	doJSON(t, http.MethodGet, ts.URL+"/products", "")

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/metrics", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/metrics", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `path="/products"`)
}

func TestHTTP_WriteRateLimit(t *testing.T) {
	store := inventory.NewMemStore(nil)
	s := &inventory.Server{
		Service:      inventory.NewService(store, nil, nil),
		WriteLimiter: kit.NewIPRateLimiter(2, time.Minute),
	}
	ts := httptest.NewServer(inventory.NewHandler(s, inventory.HTTPDeps{Log: zap.NewNop()}))
	t.Cleanup(ts.Close)

	for i := 0; i < 2; i++ {
		resp, _ := doJSON(t, http.MethodPost, ts.URL+"/products", `{"codigo2":"A"}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/products", `{"codigo2":"A"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// reads are not limited
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/products", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
