package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/finbuddy/finbuddy/internal/profile"
)

func newKnowledgeClient(endpoint, format string, timeout time.Duration) *KnowledgeClient {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return NewKnowledgeClient(&profile.Profile{
		KnowledgeEndpoint:   endpoint,
		KnowledgeFormat:     format,
		KnowledgeAPIVersion: "v1",
		RequestTimeout:      timeout,
	})
}

func TestQueryQuestionVariant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "how do I budget?", body["question"])
		require.NotContains(t, body, "messages")

		fmt.Fprint(w, `{"response_text": "Start with the 50/30/20 rule."}`)
	}))
	defer server.Close()

	client := newKnowledgeClient(server.URL, "question", 0)
	answer, err := client.Query(context.Background(), "how do I budget?", nil)
	require.NoError(t, err)
	require.Equal(t, "Start with the 50/30/20 rule.", answer.Content)
	require.Empty(t, answer.Sources)
}

func TestQueryMessagesVariant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []Turn `json:"messages"`
			Stream   bool   `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.False(t, body.Stream)
		require.Len(t, body.Messages, 3)
		require.Equal(t, RoleUser, body.Messages[0].Role)
		require.Equal(t, RoleAssistant, body.Messages[1].Role)
		// The new question is the final turn.
		require.Equal(t, "and this month?", body.Messages[2].Content)

		fmt.Fprint(w, `{"answer": "X", "sources": [{"content": "Y", "url": "Z"}]}`)
	}))
	defer server.Close()

	client := newKnowledgeClient(server.URL, "messages", 0)
	history := []Turn{
		{Role: RoleUser, Content: "spending last month?"},
		{Role: RoleAssistant, Content: "$310."},
	}
	answer, err := client.Query(context.Background(), "and this month?", history)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(answer.Content, "X"))
	require.Contains(t, answer.Content, "Y")
	require.Contains(t, answer.Content, "Z")
	require.Len(t, answer.Sources, 1)
}

func TestQueryCitationCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"answer": "ok", "sources": [
			{"content": "s1"}, {"content": "s2"}, {"content": "s3"},
			{"content": "s4"}, {"content": "s5"}
		]}`)
	}))
	defer server.Close()

	client := newKnowledgeClient(server.URL, "messages", 0)
	answer, err := client.Query(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Contains(t, answer.Content, "s3")
	require.NotContains(t, answer.Content, "s4")
	require.NotContains(t, answer.Content, "s5")
}

func TestQueryCitationExcerptTruncated(t *testing.T) {
	long := strings.Repeat("x", 300)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"answer": "ok", "sources": [{"content": %q}]}`, long)
	}))
	defer server.Close()

	client := newKnowledgeClient(server.URL, "messages", 0)
	answer, err := client.Query(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Contains(t, answer.Content, strings.Repeat("x", 100)+"…")
	require.NotContains(t, answer.Content, strings.Repeat("x", 101))
}

func TestQueryFallbackContentFields(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"content field", `{"content": "from content"}`, "from content"},
		{"message field", `{"message": "from message"}`, "from message"},
		{"response field", `{"response": "from response"}`, "from response"},
		{"text field", `{"text": "from text"}`, "from text"},
		{"content wins over text", `{"text": "b", "content": "a"}`, "a"},
		{"canonical wins over all", `{"response_text": "canonical", "content": "a"}`, "canonical"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := newKnowledgeClient(server.URL, "question", 0)
			answer, err := client.Query(context.Background(), "q", nil)
			require.NoError(t, err)
			require.Equal(t, tt.want, answer.Content)
		})
	}
}

func TestQueryWholeBodyFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"unexpected": {"deeply": "nested"}}`)
	}))
	defer server.Close()

	client := newKnowledgeClient(server.URL, "question", 0)
	answer, err := client.Query(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Contains(t, answer.Content, "unexpected")
}

func TestQueryUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal provider error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newKnowledgeClient(server.URL, "question", 0)
	_, err := client.Query(context.Background(), "q", nil)

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Equal(t, http.StatusInternalServerError, upstreamErr.StatusCode)
	require.Contains(t, upstreamErr.Body, "internal provider error")
}

func TestQueryMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `this is not json at all`)
	}))
	defer server.Close()

	client := newKnowledgeClient(server.URL, "question", 0)
	_, err := client.Query(context.Background(), "q", nil)

	var malformedErr *MalformedResponseError
	require.ErrorAs(t, err, &malformedErr)
	require.Contains(t, malformedErr.Raw, "not json")
}

func TestQueryTimeout(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	client := newKnowledgeClient(server.URL, "question", 50*time.Millisecond)
	_, err := client.Query(context.Background(), "q", nil)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
}

func TestQueryTransportError(t *testing.T) {
	// A closed server yields a connection-level failure.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	client := newKnowledgeClient(endpoint, "question", 0)
	_, err := client.Query(context.Background(), "q", nil)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}
