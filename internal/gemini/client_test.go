package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig returns a client config pointing at the given test server.
func testConfig(baseURL string) Config {
	return Config{
		ModelName:       "gemini-1.5-flash",
		Temperature:     0.7,
		TopP:            0.95,
		TopK:            40,
		MaxOutputTokens: 1024,
		SafetyThreshold: "BLOCK_MEDIUM_AND_ABOVE",
		HistoryWindow:   10,
		BaseURL:         baseURL,
	}
}

// scriptedServer streams the given chunks with explicit flushes so the
// client sees the exact chunk boundaries. The last request body is
// captured for payload assertions.
func scriptedServer(t *testing.T, chunks []string, capture *[]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			*capture = body
		}
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		for _, chunk := range chunks {
			_, _ = io.WriteString(w, chunk)
			flusher.Flush()
		}
	}))
}

func TestGenerateStreamEmitsFragments(t *testing.T) {
	srv := scriptedServer(t, []string{
		"[" + record("Hello") + ",\n",
		record(", world") + "\n]",
	}, nil)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))

	var got []string
	err := client.GenerateStream(context.Background(), StreamRequest{
		Prompt:     "greet me",
		Credential: "test-key",
	}, func(text string) { got = append(got, text) })

	require.NoError(t, err)
	assert.Equal(t, "Hello, world", strings.Join(got, ""))
}

func TestGenerateStreamSplitRecordAcrossChunks(t *testing.T) {
	srv := scriptedServer(t, []string{
		`{"candidates":[{"content":{"parts":[{"te`,
		"xt\":\"Hello\"}]}}]}\n",
	}, nil)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))

	var got []string
	err := client.GenerateStream(context.Background(), StreamRequest{
		Prompt:     "hi",
		Credential: "test-key",
	}, func(text string) { got = append(got, text) })

	require.NoError(t, err)
	assert.Equal(t, []string{"Hello"}, got)
}

func TestGenerateStreamMissingCredential(t *testing.T) {
	srv := scriptedServer(t, nil, nil)
	defer srv.Close()

	called := false
	client := NewClient(testConfig(srv.URL))
	err := client.GenerateStream(context.Background(), StreamRequest{Prompt: "hi"},
		func(string) { called = true })

	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.False(t, called, "no network call, no fragments")
}

func TestGenerateStreamEmptyPrompt(t *testing.T) {
	client := NewClient(testConfig("http://unused"))
	err := client.GenerateStream(context.Background(), StreamRequest{
		Prompt:     "   ",
		Credential: "test-key",
	}, func(string) {})

	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestGenerateStreamNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"quota exceeded"}}`)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	err := client.GenerateStream(context.Background(), StreamRequest{
		Prompt:     "hi",
		Credential: "test-key",
	}, func(string) { t.Fatal("no fragments on request failure") })

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusTooManyRequests, reqErr.Status)
	assert.Contains(t, reqErr.Body, "quota exceeded")
}

func TestGenerateStreamFallbackOnUnusableBody(t *testing.T) {
	srv := scriptedServer(t, []string{"not json"}, nil)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))

	var got []string
	err := client.GenerateStream(context.Background(), StreamRequest{
		Prompt:     "hi",
		Credential: "test-key",
	}, func(text string) { got = append(got, text) })

	require.NoError(t, err)
	assert.Equal(t, []string{FallbackNotice}, got)
}

func TestGenerateStreamSendsCredentialAsQueryParam(t *testing.T) {
	var gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		_, _ = io.WriteString(w, record("ok")+"\n")
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	err := client.GenerateStream(context.Background(), StreamRequest{
		Prompt:     "hi",
		Credential: "se cret&key",
	}, func(string) {})
	require.NoError(t, err)

	assert.Contains(t, gotURL, "/models/gemini-1.5-flash:streamGenerateContent")
	assert.Contains(t, gotURL, "key=se+cret%26key")
}

func TestGenerateStreamPayloadShape(t *testing.T) {
	var captured []byte
	srv := scriptedServer(t, []string{record("ok") + "\n"}, &captured)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))

	history := make([]Turn, 0, 14)
	for i := range 14 {
		role := roleForIndex(i)
		history = append(history, Turn{Role: role, Content: "turn"})
	}
	history[3].Content = "too old to include"
	history[13].Content = "newest turn"

	err := client.GenerateStream(context.Background(), StreamRequest{
		Prompt:     "what about true crime shows?",
		History:    history,
		Interests:  "The listener has previously shown interest in: technology.",
		Credential: "test-key",
	}, func(string) {})
	require.NoError(t, err)

	var payload struct {
		Contents []struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
		GenerationConfig struct {
			Temperature     float64 `json:"temperature"`
			TopP            float64 `json:"topP"`
			TopK            int     `json:"topK"`
			MaxOutputTokens int     `json:"maxOutputTokens"`
		} `json:"generationConfig"`
		SafetySettings []struct {
			Category  string `json:"category"`
			Threshold string `json:"threshold"`
		} `json:"safetySettings"`
	}
	require.NoError(t, json.Unmarshal(captured, &payload))

	require.Len(t, payload.Contents, 1)
	require.Len(t, payload.Contents[0].Parts, 1)
	prompt := payload.Contents[0].Parts[0].Text

	assert.Contains(t, prompt, "podcast research assistant", "system instruction present")
	assert.Contains(t, prompt, "interest in: technology", "interests digest present")
	assert.Contains(t, prompt, "newest turn", "recent history included")
	assert.NotContains(t, prompt, "too old to include", "window bounded to last 10 turns")
	assert.True(t, strings.HasSuffix(prompt, "user: what about true crime shows?"),
		"new prompt serialized last, got tail %q", prompt[len(prompt)-60:])

	assert.InDelta(t, 0.7, payload.GenerationConfig.Temperature, 1e-9)
	assert.InDelta(t, 0.95, payload.GenerationConfig.TopP, 1e-9)
	assert.Equal(t, 40, payload.GenerationConfig.TopK)
	assert.Equal(t, 1024, payload.GenerationConfig.MaxOutputTokens)

	require.Len(t, payload.SafetySettings, 4)
	for _, s := range payload.SafetySettings {
		assert.Equal(t, "BLOCK_MEDIUM_AND_ABOVE", s.Threshold)
		assert.Contains(t, s.Category, "HARM_CATEGORY_")
	}
}

func TestGenerateStreamHonorsContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = io.WriteString(w, record("first")+",\n")
		flusher.Flush()
		<-release // hold the stream open
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())

	client := NewClient(testConfig(srv.URL))

	var got []string
	done := make(chan error, 1)
	go func() {
		done <- client.GenerateStream(ctx, StreamRequest{
			Prompt:     "hi",
			Credential: "test-key",
		}, func(text string) {
			got = append(got, text)
			cancel() // abandon after the first fragment
		})
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after cancellation")
	}
	assert.Equal(t, []string{"first"}, got)
}

// roleForIndex alternates user/assistant roles for history fixtures.
func roleForIndex(i int) string {
	if i%2 == 0 {
		return "user"
	}
	return "assistant"
}
