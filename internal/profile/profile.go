package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Default tuning values for the AI gateway.
const (
	DefaultRequestTimeout = 60 * time.Second
	DefaultHistoryWindow  = 10
	DefaultGeneralModel   = "gpt-4o-mini"
	DefaultProbeURL       = "https://www.google.com/generate_204"
)

// Profile is the configuration to start the gateway server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where finbuddy stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// Knowledge backend (primary provider)
	KnowledgeEndpoint string // FINBUDDY_KNOWLEDGE_ENDPOINT
	// KnowledgeFormat selects the wire format: "question" or "messages".
	KnowledgeFormat     string // FINBUDDY_KNOWLEDGE_FORMAT (default: question)
	KnowledgeAPIVersion string // FINBUDDY_KNOWLEDGE_API_VERSION (default: v1)

	// General backend (fallback provider, OpenAI-compatible)
	GeneralBaseURL string // FINBUDDY_GENERAL_BASE_URL (default: https://api.openai.com/v1)
	GeneralAPIKey  string // FINBUDDY_GENERAL_API_KEY
	GeneralModel   string // FINBUDDY_GENERAL_MODEL (default: gpt-4o-mini)

	// RequestTimeout bounds every provider call.
	RequestTimeout time.Duration // FINBUDDY_REQUEST_TIMEOUT_SECONDS (default: 60)
	// HistoryWindow is the number of recent messages sent as context.
	HistoryWindow int // FINBUDDY_HISTORY_WINDOW (default: 10)
	// ProbeURL is the known-good host used by the diagnostics probe.
	ProbeURL string // FINBUDDY_PROBE_URL
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from FINBUDDY_* environment variables.
func (p *Profile) FromEnv() {
	p.KnowledgeEndpoint = os.Getenv("FINBUDDY_KNOWLEDGE_ENDPOINT")
	p.KnowledgeFormat = getEnvOrDefault("FINBUDDY_KNOWLEDGE_FORMAT", "question")
	p.KnowledgeAPIVersion = getEnvOrDefault("FINBUDDY_KNOWLEDGE_API_VERSION", "v1")
	p.GeneralBaseURL = getEnvOrDefault("FINBUDDY_GENERAL_BASE_URL", "https://api.openai.com/v1")
	p.GeneralAPIKey = os.Getenv("FINBUDDY_GENERAL_API_KEY")
	p.GeneralModel = getEnvOrDefault("FINBUDDY_GENERAL_MODEL", DefaultGeneralModel)
	p.ProbeURL = getEnvOrDefault("FINBUDDY_PROBE_URL", DefaultProbeURL)

	p.RequestTimeout = DefaultRequestTimeout
	if v := os.Getenv("FINBUDDY_REQUEST_TIMEOUT_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			p.RequestTimeout = time.Duration(seconds) * time.Second
		}
	}

	p.HistoryWindow = DefaultHistoryWindow
	if v := os.Getenv("FINBUDDY_HISTORY_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.HistoryWindow = n
		}
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.KnowledgeFormat != "question" && p.KnowledgeFormat != "messages" {
		return errors.Errorf("unknown knowledge wire format %q: only 'question' and 'messages' are supported", p.KnowledgeFormat)
	}

	if p.RequestTimeout <= 0 {
		p.RequestTimeout = DefaultRequestTimeout
	}
	if p.HistoryWindow <= 0 {
		p.HistoryWindow = DefaultHistoryWindow
	}

	if p.Mode == "prod" && p.Data == "" {
		p.Data = "/var/opt/finbuddy"
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("finbuddy_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
