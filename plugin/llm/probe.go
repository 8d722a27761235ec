package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/finbuddy/finbuddy/internal/profile"
)

// ProbeReport is the result of a detailed connectivity test against the
// knowledge backend. It separates generic network failure, cross-origin
// misconfiguration, and provider-side failure so operators can tell them
// apart.
type ProbeReport struct {
	Success           bool   `json:"success"`
	ResponseTimeMs    int64  `json:"responseTimeMs"`
	Endpoint          string `json:"endpoint"`
	APIVersion        string `json:"apiVersion"`
	NetworkTestPassed bool   `json:"networkTestPassed"`
	CORSTestPassed    bool   `json:"corsTestPassed"`
	Error             string `json:"error,omitempty"`
	SampleResponse    string `json:"sampleResponse,omitempty"`
}

// DiagnosticsProbe runs out-of-band connectivity tests. It never sits on the
// request hot path.
type DiagnosticsProbe struct {
	knowledge *KnowledgeClient
	probeURL  string
	client    *http.Client
}

// NewDiagnosticsProbe creates a probe for the configured knowledge backend.
func NewDiagnosticsProbe(knowledge *KnowledgeClient, profile *profile.Profile) *DiagnosticsProbe {
	probeURL := profile.ProbeURL
	if probeURL == "" {
		probeURL = profile.KnowledgeEndpoint
	}
	return &DiagnosticsProbe{
		knowledge: knowledge,
		probeURL:  probeURL,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// TestConnectionDetailed checks general reachability first, then the cross
// origin policy of the backend, then issues a real probe query. The report
// always comes back non-nil, errors included.
func (p *DiagnosticsProbe) TestConnectionDetailed(ctx context.Context) *ProbeReport {
	report := &ProbeReport{
		Endpoint:   p.knowledge.Endpoint(),
		APIVersion: p.knowledge.APIVersion(),
	}

	report.NetworkTestPassed = p.checkReachability(ctx)
	report.CORSTestPassed = p.checkCORS(ctx)

	start := time.Now()
	sample, err := p.knowledge.Probe(ctx)
	report.ResponseTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		report.Error = p.describeFailure(err, report.NetworkTestPassed)
		return report
	}

	report.Success = true
	report.SampleResponse = truncateRunes(sample, 200)
	return report
}

// checkReachability issues a GET to a known-good host to distinguish "no
// internet" from a provider-specific failure.
func (p *DiagnosticsProbe) checkReachability(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// checkCORS sends a browser-style preflight to the backend and reports
// whether cross-origin callers would be admitted. The mobile app's embedded
// webview hits the endpoint directly, so a missing allow header shows up
// here long before users report it.
func (p *DiagnosticsProbe) checkCORS(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, p.knowledge.Endpoint(), nil)
	if err != nil {
		return false
	}
	req.Header.Set("Origin", "https://app.finbuddy.io")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.Header.Get("Access-Control-Allow-Origin") != ""
}

// describeFailure renders the probe error with the reachability result
// folded in, so the report reads as a diagnosis rather than a raw error.
func (p *DiagnosticsProbe) describeFailure(err error, networkOK bool) string {
	switch err.(type) {
	case *TimeoutError:
		return "provider did not answer within the deadline: " + err.Error()
	case *UpstreamError:
		return "provider reachable but returned an error: " + err.Error()
	case *MalformedResponseError:
		return "provider answered with an undecodable body: " + err.Error()
	case *TransportError:
		if !networkOK {
			return "no network connectivity: " + err.Error()
		}
		if isConnectionRefused(err) {
			return "network is up but the provider refused the connection: " + err.Error()
		}
		return "network is up but the provider is unreachable: " + err.Error()
	default:
		return err.Error()
	}
}
