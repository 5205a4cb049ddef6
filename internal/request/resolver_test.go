package request

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func dohServer(t *testing.T, handler http.HandlerFunc) *DoHResolver {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewDoHResolver(srv.URL, time.Second, nil)
}

func TestDoHResolverAnswerPresent(t *testing.T) {
	t.Parallel()

	r := dohServer(t, func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "example.com", req.URL.Query().Get("name"))
		require.Equal(t, "A", req.URL.Query().Get("type"))
		w.Header().Set("Content-Type", "application/dns-json")
		_, _ = w.Write([]byte(`{"Status":0,"Answer":[{"name":"example.com.","type":1,"data":"93.184.216.34"}]}`))
	})

	resolved, err := r.Resolve(context.Background(), "example.com")
	require.NoError(t, err)
	require.True(t, resolved)
}

func TestDoHResolverNXDomain(t *testing.T) {
	t.Parallel()

	r := dohServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"Status":3}`))
	})

	resolved, err := r.Resolve(context.Background(), "no-such-host.example")
	require.NoError(t, err)
	require.False(t, resolved)
}

func TestDoHResolverEmptyAnswer(t *testing.T) {
	t.Parallel()

	r := dohServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"Status":0,"Answer":[]}`))
	})

	resolved, err := r.Resolve(context.Background(), "example.com")
	require.NoError(t, err)
	require.False(t, resolved)
}

func TestDoHResolverServerErrorIsError(t *testing.T) {
	t.Parallel()

	r := dohServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := r.Resolve(context.Background(), "example.com")
	require.Error(t, err)
}

func TestDoHResolverServFailIsError(t *testing.T) {
	t.Parallel()

	// SERVFAIL is inconclusive, not an explicit "no answer"; the caller must
	// fail open on it.
	r := dohServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"Status":2}`))
	})

	_, err := r.Resolve(context.Background(), "example.com")
	require.Error(t, err)
}
