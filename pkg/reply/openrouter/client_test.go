package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/locus/pkg/conversation"
	"github.com/go-go-golems/locus/pkg/projection"
	"github.com/go-go-golems/locus/pkg/reply"
)

type recorder struct {
	mu         sync.Mutex
	tokens     []string
	completion *reply.Completion
	err        error
	terminals  int
}

func (r *recorder) callbacks() reply.Callbacks {
	return reply.Callbacks{
		OnToken: func(token string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.tokens = append(r.tokens, token)
		},
		OnComplete: func(c reply.Completion) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.completion = &c
			r.terminals++
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.err = err
			r.terminals++
		},
	}
}

type captured struct {
	header http.Header
	body   map[string]interface{}
}

func sseServer(t *testing.T, chunks []string, got *captured) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		if got != nil {
			got.header = r.Header.Clone()
			assert.NoError(t, json.Unmarshal(data, &got.body))
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func delta(d string) string {
	return `{"id":"1","object":"chat.completion.chunk","model":"m","choices":[{"index":0,"delta":` + d + `}]}`
}

func request(mode conversation.Mode) reply.Request {
	return reply.Request{
		Messages: []projection.Turn{{Role: conversation.RoleUser, Content: "hi"}},
		Model:    "openai/gpt-4o-mini",
		APIKey:   "sk-test",
		Mode:     mode,
	}
}

func TestStreamStandard(t *testing.T) {
	var got captured
	server := sseServer(t, []string{
		delta(`{"role":"assistant","content":"Hel"}`),
		delta(`{"content":"lo"}`),
		delta(`{"reasoning_content":"ignored"}`),
	}, &got)
	defer server.Close()

	rec := &recorder{}
	New(WithBaseURL(server.URL)).Stream(context.Background(), request(conversation.ModeStandard), rec.callbacks())

	require.NoError(t, rec.err)
	require.NotNil(t, rec.completion)
	assert.Equal(t, 1, rec.terminals)
	assert.Equal(t, []string{"Hel", "lo"}, rec.tokens)
	assert.Equal(t, "Hello", rec.completion.Text)
	assert.Empty(t, rec.completion.Thinking)
	assert.Empty(t, rec.completion.Sources)

	assert.Equal(t, "Bearer sk-test", got.header.Get("Authorization"))
	assert.Equal(t, DefaultTitle, got.header.Get("X-Title"))
	assert.Equal(t, DefaultReferer, got.header.Get("HTTP-Referer"))
	assert.Equal(t, true, got.body["stream"])
	assert.Equal(t, "openai/gpt-4o-mini", got.body["model"])
	assert.NotContains(t, got.body, "tools")
	assert.NotContains(t, got.body, "reasoning_effort")
}

func TestStreamDeepThinkCollectsReasoning(t *testing.T) {
	var got captured
	server := sseServer(t, []string{
		delta(`{"reasoning_content":"let me "}`),
		delta(`{"reasoning_content":"think"}`),
		delta(`{"content":"42"}`),
	}, &got)
	defer server.Close()

	rec := &recorder{}
	New(WithBaseURL(server.URL), WithTitle("Test")).Stream(context.Background(), request(conversation.ModeDeepThink), rec.callbacks())

	require.NotNil(t, rec.completion)
	assert.Equal(t, "42", rec.completion.Text)
	assert.Equal(t, "let me think", rec.completion.Thinking)
	assert.Equal(t, []string{"42"}, rec.tokens)
	assert.Equal(t, "high", got.body["reasoning_effort"])
	assert.Equal(t, "Test", got.header.Get("X-Title"))
}

func TestStreamWebSearchDecodesSources(t *testing.T) {
	var got captured
	server := sseServer(t, []string{
		delta(`{"tool_calls":[{"index":0,"id":"c1","type":"function","function":{"name":"web_search","arguments":"{\"results\":[{\"title\":\"Go\","}}]}`),
		delta(`{"tool_calls":[{"index":0,"function":{"arguments":"\"url\":\"https://go.dev\",\"snippet\":\"The Go language\"}]}"}}]}`),
		delta(`{"content":"See sources."}`),
	}, &got)
	defer server.Close()

	rec := &recorder{}
	New(WithBaseURL(server.URL)).Stream(context.Background(), request(conversation.ModeWebSearch), rec.callbacks())

	require.NotNil(t, rec.completion)
	assert.Equal(t, "See sources.", rec.completion.Text)
	assert.Equal(t, []conversation.SearchResult{{Title: "Go", URL: "https://go.dev", Snippet: "The Go language"}}, rec.completion.Sources)

	assert.Equal(t, "auto", got.body["tool_choice"])
	tools, ok := got.body["tools"].([]interface{})
	require.True(t, ok)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]interface{})["function"].(map[string]interface{})
	assert.Equal(t, "web_search", fn["name"])
}

func TestStreamIgnoresUndecodableToolArguments(t *testing.T) {
	server := sseServer(t, []string{
		delta(`{"tool_calls":[{"index":0,"type":"function","function":{"name":"web_search","arguments":"{\"query\":"}}]}`),
		delta(`{"content":"ok"}`),
	}, nil)
	defer server.Close()

	rec := &recorder{}
	New(WithBaseURL(server.URL)).Stream(context.Background(), request(conversation.ModeWebSearch), rec.callbacks())
	require.NotNil(t, rec.completion)
	assert.Empty(t, rec.completion.Sources)
}

func TestStreamSurfacesAPIErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = fmt.Fprint(w, `{"error":{"message":"No auth credentials found","code":401}}`)
	}))
	defer server.Close()

	rec := &recorder{}
	New(WithBaseURL(server.URL)).Stream(context.Background(), request(conversation.ModeStandard), rec.callbacks())

	require.Error(t, rec.err)
	assert.Equal(t, "No auth credentials found", rec.err.Error())
	assert.Nil(t, rec.completion)
	assert.Equal(t, 1, rec.terminals)
}

func TestStreamWithoutKey(t *testing.T) {
	rec := &recorder{}
	req := request(conversation.ModeStandard)
	req.APIKey = ""
	New().Stream(context.Background(), req, rec.callbacks())
	require.ErrorIs(t, rec.err, ErrNoAPIKey)
}

func TestStreamCancellation(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprintf(w, "data: %s\n\n", delta(`{"content":"partial"}`))
		w.(http.Flusher).Flush()
		close(started)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	rec := &recorder{}
	New(WithBaseURL(server.URL)).Stream(ctx, request(conversation.ModeStandard), rec.callbacks())

	require.ErrorIs(t, rec.err, context.Canceled)
	assert.Nil(t, rec.completion)
	assert.Equal(t, 1, rec.terminals)
}
