package invoker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendata-gateway/go/internal/models"
)

func TestCallHTTP(t *testing.T) {
	var gotPath, gotQuery, gotContentType string
	var gotBody map[string]any

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer backend.Close()

	version := &models.ApiVersion{
		Type:    models.ProtocolHTTP,
		URL:     backend.URL + "/users/{id}",
		Method:  http.MethodPost,
		HasBody: true,
	}
	payload := &Payload{
		PathParams: map[string]string{"id": "42"},
		Query:      map[string]string{"verbose": "1"},
		Body:       map[string]any{"name": "ada"},
	}

	result := New(5 * time.Second).Call(context.Background(), version, payload)

	require.Equal(t, ResultSuccess, result.Type)
	assert.Equal(t, http.StatusCreated, result.Status)
	assert.JSONEq(t, `{"ok":true}`, string(result.Data))
	assert.Equal(t, "application/json", result.Headers.Get("Content-Type"))
	assert.GreaterOrEqual(t, result.LatencyMs, int64(0))

	assert.Equal(t, "/users/42", gotPath)
	assert.Equal(t, "verbose=1", gotQuery)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, map[string]any{"name": "ada"}, gotBody)
}

func TestCallHTTPStaticHeadersWin(t *testing.T) {
	var gotHeader string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Key")
	}))
	defer backend.Close()

	version := &models.ApiVersion{
		Type:          models.ProtocolHTTP,
		URL:           backend.URL,
		Method:        http.MethodGet,
		StaticHeaders: map[string]string{"X-Api-Key": "server-secret"},
	}
	payload := &Payload{Headers: map[string]string{"X-Api-Key": "caller-value"}}

	inv := New(5 * time.Second)

	result := inv.Call(context.Background(), version, payload)
	require.Equal(t, ResultSuccess, result.Type)
	assert.Equal(t, "server-secret", gotHeader)

	version.AllowHeaderOverride = true
	result = inv.Call(context.Background(), version, payload)
	require.Equal(t, ResultSuccess, result.Type)
	assert.Equal(t, "caller-value", gotHeader)
}

func TestCallSOAP(t *testing.T) {
	var gotContentType, gotBody string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		_, _ = w.Write([]byte(`<resp/>`))
	}))
	defer backend.Close()

	version := &models.ApiVersion{
		Type:         models.ProtocolSOAP,
		URL:          backend.URL,
		SOAPTemplate: `&lt;city&gt;{{city}}&lt;/city&gt;`,
		// The content type is pinned even when a static header disagrees.
		StaticHeaders: map[string]string{"Content-Type": "application/json"},
	}
	payload := &Payload{Body: map[string]any{"city": "Faro"}}

	result := New(5 * time.Second).Call(context.Background(), version, payload)

	require.Equal(t, ResultSuccess, result.Type)
	assert.Equal(t, "text/xml", gotContentType)
	assert.Equal(t, `<city>Faro</city>`, gotBody)
}

func TestCallSOAPCallerHeadersWin(t *testing.T) {
	var gotHeader string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Key")
		_, _ = w.Write([]byte(`<resp/>`))
	}))
	defer backend.Close()

	// Unlike HTTP, SOAP always lets caller headers refine static ones; only
	// the content type is pinned.
	version := &models.ApiVersion{
		Type:          models.ProtocolSOAP,
		URL:           backend.URL,
		SOAPTemplate:  `&lt;ping/&gt;`,
		StaticHeaders: map[string]string{"X-Api-Key": "server-secret"},
	}
	payload := &Payload{Headers: map[string]string{"X-Api-Key": "caller-value"}}

	result := New(5 * time.Second).Call(context.Background(), version, payload)

	require.Equal(t, ResultSuccess, result.Type)
	assert.Equal(t, "caller-value", gotHeader)
}

func TestCallTransportError(t *testing.T) {
	version := &models.ApiVersion{
		Type:   models.ProtocolHTTP,
		URL:    "http://127.0.0.1:1", // nothing listens here
		Method: http.MethodGet,
	}

	result := New(time.Second).Call(context.Background(), version, &Payload{})

	require.Equal(t, ResultError, result.Type)
	assert.Error(t, result.Err)
	assert.NotEmpty(t, result.Reason)
}

func TestCallTimeout(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer backend.Close()

	version := &models.ApiVersion{
		Type:   models.ProtocolHTTP,
		URL:    backend.URL,
		Method: http.MethodGet,
	}

	result := New(50 * time.Millisecond).Call(context.Background(), version, &Payload{})
	require.Equal(t, ResultError, result.Type)
}
