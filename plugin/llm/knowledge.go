package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/finbuddy/finbuddy/internal/profile"
)

// Variant selects the knowledge backend's wire format. Chosen once at
// configuration time, never inferred per request.
type Variant string

const (
	// VariantQuestion sends only the latest question; the backend manages
	// its own context.
	VariantQuestion Variant = "question"
	// VariantMessages sends the rolled-up history as role-tagged turns.
	VariantMessages Variant = "messages"
)

// Turn is one role-tagged history entry sent to a provider.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Source is a citation attached to a knowledge backend answer.
type Source struct {
	Content string `json:"content"`
	URL     string `json:"url,omitempty"`
}

// NormalizedAnswer is the provider-independent result of a knowledge query.
type NormalizedAnswer struct {
	Content string
	Sources []Source
}

const (
	// maxCitations bounds how many sources are rendered into the answer.
	maxCitations = 3
	// citationExcerptRunes bounds the length of each rendered source excerpt.
	citationExcerptRunes = 100
	// maxErrorBodyBytes bounds how much of a failed response body is kept
	// for diagnostics.
	maxErrorBodyBytes = 2048
)

// fallbackContentFields is the ordered list of generically named fields tried
// when a response carries neither the variant's canonical field nor anything
// else recognizable.
var fallbackContentFields = []string{"content", "message", "response", "text"}

// KnowledgeClient talks to the specialized retrieval-augmented backend.
type KnowledgeClient struct {
	endpoint   string
	apiVersion string
	variant    Variant
	client     *http.Client
}

// NewKnowledgeClient creates a client for the configured knowledge backend.
func NewKnowledgeClient(profile *profile.Profile) *KnowledgeClient {
	return &KnowledgeClient{
		endpoint:   profile.KnowledgeEndpoint,
		apiVersion: profile.KnowledgeAPIVersion,
		variant:    Variant(profile.KnowledgeFormat),
		client: &http.Client{
			Timeout: profile.RequestTimeout,
		},
	}
}

// Endpoint returns the configured backend URL.
func (c *KnowledgeClient) Endpoint() string { return c.endpoint }

// APIVersion returns the configured wire API version.
func (c *KnowledgeClient) APIVersion() string { return c.apiVersion }

// Query sends text (and, for the message-array variant, the bounded history)
// to the knowledge backend and returns the normalized answer. Errors follow
// the transport/timeout/upstream/malformed taxonomy; all of them are
// recoverable by falling back to the general provider.
func (c *KnowledgeClient) Query(ctx context.Context, text string, history []Turn) (*NormalizedAnswer, error) {
	payload, err := c.buildRequest(text, history)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyRequestError(c.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{
			Endpoint:   c.endpoint,
			StatusCode: resp.StatusCode,
			Body:       truncateBytes(body, maxErrorBodyBytes),
		}
	}

	return c.normalize(body)
}

// Probe issues a minimal query to verify the backend answers at all. Used by
// availability checks and the diagnostics probe, never on the hot path.
func (c *KnowledgeClient) Probe(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	answer, err := c.Query(ctx, "ping", nil)
	if err != nil {
		return "", err
	}
	return answer.Content, nil
}

func (c *KnowledgeClient) buildRequest(text string, history []Turn) ([]byte, error) {
	switch c.variant {
	case VariantMessages:
		messages := make([]Turn, 0, len(history)+1)
		messages = append(messages, history...)
		messages = append(messages, Turn{Role: RoleUser, Content: text})
		return json.Marshal(map[string]any{
			"messages": messages,
			"stream":   false,
		})
	default:
		return json.Marshal(map[string]any{
			"question": text,
		})
	}
}

// normalize decodes the response body and extracts the answer content per
// the configured variant, trying the generic fallback fields before giving
// up and using the whole decoded body.
func (c *KnowledgeClient) normalize(body []byte) (*NormalizedAnswer, error) {
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &MalformedResponseError{
			Endpoint: c.endpoint,
			Raw:      truncateBytes(body, maxErrorBodyBytes),
			Cause:    err,
		}
	}

	answer := &NormalizedAnswer{}

	var canonical string
	if c.variant == VariantMessages {
		canonical = "answer"
	} else {
		canonical = "response_text"
	}

	if content, ok := stringField(decoded, canonical); ok {
		answer.Content = content
	} else {
		for _, field := range fallbackContentFields {
			if content, ok := stringField(decoded, field); ok {
				answer.Content = content
				break
			}
		}
	}
	if answer.Content == "" {
		// Nothing recognizable: the whole decoded body is the content.
		answer.Content = strings.TrimSpace(string(body))
	}

	if c.variant == VariantMessages {
		answer.Sources = parseSources(decoded["sources"])
		if len(answer.Sources) > 0 {
			answer.Content += renderCitations(answer.Sources)
		}
	}

	return answer, nil
}

func stringField(decoded map[string]any, key string) (string, bool) {
	v, ok := decoded[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func parseSources(raw any) []Source {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	sources := make([]Source, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		source := Source{}
		if content, ok := m["content"].(string); ok {
			source.Content = content
		}
		if url, ok := m["url"].(string); ok {
			source.URL = url
		}
		if source.Content == "" && source.URL == "" {
			continue
		}
		sources = append(sources, source)
	}
	return sources
}

// renderCitations formats at most maxCitations sources as a human-readable
// suffix with truncated excerpts.
func renderCitations(sources []Source) string {
	if len(sources) > maxCitations {
		sources = sources[:maxCitations]
	}

	var b strings.Builder
	b.WriteString("\n\nSources:")
	for i, source := range sources {
		excerpt := truncateRunes(strings.TrimSpace(source.Content), citationExcerptRunes)
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, excerpt))
		if source.URL != "" {
			b.WriteString(" (" + source.URL + ")")
		}
	}
	return b.String()
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}

func truncateBytes(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "…"
}
