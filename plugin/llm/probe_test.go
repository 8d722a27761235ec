package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/finbuddy/finbuddy/internal/profile"
)

func newProbe(backend *httptest.Server, probeURL string) *DiagnosticsProbe {
	p := &profile.Profile{
		KnowledgeEndpoint:   backend.URL,
		KnowledgeFormat:     "question",
		KnowledgeAPIVersion: "v1",
		RequestTimeout:      5 * time.Second,
		ProbeURL:            probeURL,
	}
	return NewDiagnosticsProbe(NewKnowledgeClient(p), p)
}

func TestProbeHealthyBackend(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			return
		}
		fmt.Fprint(w, `{"response_text": "pong"}`)
	}))
	defer backend.Close()

	reachable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer reachable.Close()

	report := newProbe(backend, reachable.URL).TestConnectionDetailed(context.Background())
	require.True(t, report.Success)
	require.True(t, report.NetworkTestPassed)
	require.True(t, report.CORSTestPassed)
	require.Equal(t, backend.URL, report.Endpoint)
	require.Equal(t, "v1", report.APIVersion)
	require.Equal(t, "pong", report.SampleResponse)
	require.Empty(t, report.Error)
	require.GreaterOrEqual(t, report.ResponseTimeMs, int64(0))
}

func TestProbeMissingCORSHeader(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No Access-Control-Allow-Origin on the preflight.
		if r.Method == http.MethodOptions {
			return
		}
		fmt.Fprint(w, `{"response_text": "pong"}`)
	}))
	defer backend.Close()

	report := newProbe(backend, backend.URL).TestConnectionDetailed(context.Background())
	require.True(t, report.Success)
	require.False(t, report.CORSTestPassed)
}

func TestProbeProviderDownNetworkUp(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := backend.URL
	backend.Close()

	reachable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer reachable.Close()

	p := &profile.Profile{
		KnowledgeEndpoint:   endpoint,
		KnowledgeFormat:     "question",
		KnowledgeAPIVersion: "v1",
		RequestTimeout:      time.Second,
		ProbeURL:            reachable.URL,
	}
	report := NewDiagnosticsProbe(NewKnowledgeClient(p), p).TestConnectionDetailed(context.Background())

	require.False(t, report.Success)
	require.True(t, report.NetworkTestPassed)
	require.False(t, report.CORSTestPassed)
	require.Contains(t, report.Error, "refused")
}

func TestProbeUpstreamFailure(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			return
		}
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer backend.Close()

	report := newProbe(backend, backend.URL).TestConnectionDetailed(context.Background())
	require.False(t, report.Success)
	require.True(t, report.NetworkTestPassed)
	require.Contains(t, report.Error, "returned an error")
	require.Empty(t, report.SampleResponse)
}
