package profile

import (
	"os"
	"testing"
	"time"
)

func clearGatewayEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"FINBUDDY_KNOWLEDGE_ENDPOINT",
		"FINBUDDY_KNOWLEDGE_FORMAT",
		"FINBUDDY_KNOWLEDGE_API_VERSION",
		"FINBUDDY_GENERAL_BASE_URL",
		"FINBUDDY_GENERAL_API_KEY",
		"FINBUDDY_GENERAL_MODEL",
		"FINBUDDY_REQUEST_TIMEOUT_SECONDS",
		"FINBUDDY_HISTORY_WINDOW",
		"FINBUDDY_PROBE_URL",
	} {
		os.Unsetenv(key)
	}
}

// TestProfileDefaults verifies the default gateway configuration.
func TestProfileDefaults(t *testing.T) {
	clearGatewayEnvVars(t)

	p := &Profile{}
	p.FromEnv()

	tests := []struct {
		name     string
		expected string
		actual   string
	}{
		{"KnowledgeFormat default", "question", p.KnowledgeFormat},
		{"KnowledgeAPIVersion default", "v1", p.KnowledgeAPIVersion},
		{"GeneralBaseURL default", "https://api.openai.com/v1", p.GeneralBaseURL},
		{"GeneralModel default", DefaultGeneralModel, p.GeneralModel},
		{"ProbeURL default", DefaultProbeURL, p.ProbeURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.actual != tt.expected {
				t.Errorf("%s: expected %q, got %q", tt.name, tt.expected, tt.actual)
			}
		})
	}

	if p.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("RequestTimeout: expected %v, got %v", DefaultRequestTimeout, p.RequestTimeout)
	}
	if p.HistoryWindow != DefaultHistoryWindow {
		t.Errorf("HistoryWindow: expected %d, got %d", DefaultHistoryWindow, p.HistoryWindow)
	}
}

// TestProfileFromEnv verifies environment variable overrides.
func TestProfileFromEnv(t *testing.T) {
	clearGatewayEnvVars(t)

	t.Setenv("FINBUDDY_KNOWLEDGE_ENDPOINT", "https://kb.internal/chat")
	t.Setenv("FINBUDDY_KNOWLEDGE_FORMAT", "messages")
	t.Setenv("FINBUDDY_REQUEST_TIMEOUT_SECONDS", "30")
	t.Setenv("FINBUDDY_HISTORY_WINDOW", "4")

	p := &Profile{}
	p.FromEnv()

	if p.KnowledgeEndpoint != "https://kb.internal/chat" {
		t.Errorf("KnowledgeEndpoint: got %q", p.KnowledgeEndpoint)
	}
	if p.KnowledgeFormat != "messages" {
		t.Errorf("KnowledgeFormat: got %q", p.KnowledgeFormat)
	}
	if p.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout: got %v", p.RequestTimeout)
	}
	if p.HistoryWindow != 4 {
		t.Errorf("HistoryWindow: got %d", p.HistoryWindow)
	}
}

// TestProfileFromEnvInvalidNumbers verifies that malformed numeric overrides
// fall back to defaults instead of failing.
func TestProfileFromEnvInvalidNumbers(t *testing.T) {
	clearGatewayEnvVars(t)

	t.Setenv("FINBUDDY_REQUEST_TIMEOUT_SECONDS", "not-a-number")
	t.Setenv("FINBUDDY_HISTORY_WINDOW", "-5")

	p := &Profile{}
	p.FromEnv()

	if p.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("RequestTimeout: expected default %v, got %v", DefaultRequestTimeout, p.RequestTimeout)
	}
	if p.HistoryWindow != DefaultHistoryWindow {
		t.Errorf("HistoryWindow: expected default %d, got %d", DefaultHistoryWindow, p.HistoryWindow)
	}
}

// TestProfileValidateFormat verifies wire-format validation.
func TestProfileValidateFormat(t *testing.T) {
	p := &Profile{
		Mode:            "dev",
		Data:            t.TempDir(),
		Driver:          "sqlite",
		KnowledgeFormat: "graphql",
	}
	if err := p.Validate(); err == nil {
		t.Error("Validate() expected error for unknown wire format")
	}

	p.KnowledgeFormat = "question"
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
	if p.DSN == "" {
		t.Error("Validate() should derive sqlite DSN from data dir")
	}
}
