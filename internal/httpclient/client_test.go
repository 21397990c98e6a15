package httpclient

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pkgbuilder/internal/retry"
)

func TestHeaderTransportAddsHeaders(t *testing.T) {
	var gotAuth, gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get(AuthorizationHeader))
		gotUA.Store(r.Header.Get(UserAgentHeader))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(Options{APIURL: srv.URL, Token: "tkn", UserAgent: "pkgbuilder/test", Policy: retry.DefaultPolicy()})
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/repos", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "Bearer tkn", gotAuth.Load())
	require.Equal(t, "pkgbuilder/test", gotUA.Load())
}

func TestHeaderTransportKeepsTokenOnAPIHost(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get(AuthorizationHeader))
	}))
	defer srv.Close()

	client := New(Options{APIURL: "https://api.github.com", Token: "tkn", Policy: retry.DefaultPolicy()})
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/asset.apk", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "", gotAuth.Load(), "token must not leak to other hosts")
}

func TestNewRetriesThroughChain(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(Options{
		APIURL:                srv.URL,
		ResponseHeaderTimeout: time.Second,
		Policy:                retry.NewPolicy("", time.Millisecond, 5*time.Millisecond, 2),
	})
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(2), calls.Load())
}
