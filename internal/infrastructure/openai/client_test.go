package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basel-ax/omni/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient("test-key", WithBaseURL(server.URL+"/"))
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresCredential(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, domain.ErrMissingCredential)

	assistant, err := NewFactory(WithChatModel("gpt-4o-mini"))("key")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", assistant.(*Client).chatModel)
}

func TestAnalyzeIssue(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"X"}}]}`))
	})

	text, err := c.AnalyzeIssue(context.Background(), "aW1n", "breaker trips")
	require.NoError(t, err)
	assert.Equal(t, "X", text)

	assert.Equal(t, "gpt-4o", body["model"])
	assert.Equal(t, 0.5, body["temperature"])

	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	raw, err := json.Marshal(messages[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "data:image/png;base64,aW1n")
	assert.Contains(t, string(raw), "breaker trips")
}

func TestContinueConversation_Temperature(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c2","object":"chat.completion","created":1,"model":"gpt-4o",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Y"}}]}`))
	})

	text, err := c.ContinueConversation(context.Background(), "aW1n", "User: hi")
	require.NoError(t, err)
	assert.Equal(t, "Y", text)
	assert.Equal(t, 0.7, body["temperature"])
}

func TestAnalyzeIssue_NoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c3","object":"chat.completion","created":1,"model":"gpt-4o","choices":[]}`))
	})

	_, err := c.AnalyzeIssue(context.Background(), "aW1n", "desc")
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestAnalyzeIssue_ServerError(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	})

	_, err := c.AnalyzeIssue(context.Background(), "aW1n", "desc")
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestGenerateImage(t *testing.T) {
	imageBytes := []byte{0x89, 'P', 'N', 'G', 0x01}
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[{"b64_json":"` + base64.StdEncoding.EncodeToString(imageBytes) + `"}]}`))
	})

	data, err := c.GenerateImage(context.Background(), "pipeline in a desert")
	require.NoError(t, err)
	assert.Equal(t, imageBytes, data)
	assert.Equal(t, "dall-e-3", body["model"])
	assert.Equal(t, "standard", body["quality"])
	assert.Equal(t, "1024x1024", body["size"])
	assert.Equal(t, "b64_json", body["response_format"])
}

func TestGenerateImage_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[]}`))
	})

	_, err := c.GenerateImage(context.Background(), "desc")
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestSynthesizeSpeech(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	})

	audio, err := c.SynthesizeSpeech(context.Background(), "Close the valve.")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), audio)
	assert.Equal(t, "tts-1", body["model"])
	assert.Equal(t, "alloy", body["voice"])
	assert.Equal(t, "Close the valve.", body["input"])
}
