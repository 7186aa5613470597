package cleoclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetSendsBearerTokenAndDecodesResponse(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/peers", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "abc"})
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Token: "sometoken"})
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, c.Get(context.Background(), "/peers", &out))
	require.Equal(t, "Bearer sometoken", gotAuth)
	require.Equal(t, "abc", out["id"])
}

func TestPostSendsJSONBody(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "created"})
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Token: "t"})
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, c.Post(context.Background(), "/peers", map[string]string{"name": "peer-a"}, &out))
	require.Equal(t, "peer-a", gotBody["name"])
	require.Equal(t, "created", out["id"])
}

func TestDoReturnsErrorOnNon2xxStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"peer not found"}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Token: "t"})
	require.NoError(t, err)

	err = c.Get(context.Background(), "/peers/missing", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}

func TestDeleteIgnoresEmptyResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Token: "t"})
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, c.Delete(context.Background(), "/peers/abc", &out))
}

func TestNewClientRejectsMalformedCAPem(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "https://example.invalid", Token: "t", CAPem: "not a pem"})
	require.Error(t, err)
}
