package clarifai

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

type captured struct {
	path   string
	auth   string
	prompt string
	params map[string]any
}

func newTestServer(t *testing.T, status int, body string, got *captured) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req struct {
			Inputs []struct {
				Data struct {
					Text struct {
						Raw string `json:"raw"`
					} `json:"text"`
				} `json:"data"`
			} `json:"inputs"`
			Model struct {
				ModelVersion struct {
					OutputInfo struct {
						Params map[string]any `json:"params"`
					} `json:"output_info"`
				} `json:"model_version"`
			} `json:"model"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) || !assert.Len(t, req.Inputs, 1) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if got != nil {
			got.path = r.URL.Path
			got.auth = r.Header.Get("Authorization")
			got.prompt = req.Inputs[0].Data.Text.Raw
			got.params = req.Model.ModelVersion.OutputInfo.Params
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient("test-pat", WithBaseURL(server.URL))
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresCredential(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, domain.ErrMissingCredential)

	factory := NewFactory()
	_, err = factory("")
	assert.ErrorIs(t, err, domain.ErrMissingCredential)

	assistant, err := factory("pat")
	require.NoError(t, err)
	assert.NotNil(t, assistant)
}

func TestAnalyzeIssue(t *testing.T) {
	var got captured
	server := newTestServer(t, http.StatusOK, `{"status":{"code":10000,"description":"Ok"},"outputs":[{"data":{"text":{"raw":"X"}}}]}`, &got)
	c := newTestClient(t, server)

	text, err := c.AnalyzeIssue(context.Background(), "aW1n", "valve is stuck")
	require.NoError(t, err)
	assert.Equal(t, "X", text)

	assert.Equal(t, "/v2/users/openai/apps/chat-completion/models/gpt-4-vision/outputs", got.path)
	assert.Equal(t, "Key test-pat", got.auth)
	assert.Contains(t, got.prompt, "'valve is stuck'")
	assert.Contains(t, got.prompt, "O&M industry")
	assert.Equal(t, 0.5, got.params["temperature"])
	assert.Equal(t, "aW1n", got.params["image_base64"])
}

func TestAnalyzeIssue_WithoutStatus(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"outputs":[{"data":{"text":{"raw":"X"}}}]}`, nil)
	c := newTestClient(t, server)

	text, err := c.AnalyzeIssue(context.Background(), "aW1n", "desc")
	require.NoError(t, err)
	assert.Equal(t, "X", text)
}

func TestContinueConversation(t *testing.T) {
	var got captured
	server := newTestServer(t, http.StatusOK, `{"outputs":[{"data":{"text":{"raw":"follow-up answer"}}}]}`, &got)
	c := newTestClient(t, server)

	text, err := c.ContinueConversation(context.Background(), "aW1n", "User: a\n\nAssistant: b")
	require.NoError(t, err)
	assert.Equal(t, "follow-up answer", text)
	assert.Equal(t, 0.7, got.params["temperature"])
	assert.Equal(t, "aW1n", got.params["image_base64"])
	assert.Contains(t, got.prompt, "User: a\n\nAssistant: b")
}

func TestGenerateImage(t *testing.T) {
	var got captured
	imageBytes := []byte{0x89, 'P', 'N', 'G', 0x00, 0x01}
	body := `{"outputs":[{"data":{"image":{"base64":"` + base64.StdEncoding.EncodeToString(imageBytes) + `"}}}]}`
	server := newTestServer(t, http.StatusOK, body, &got)
	c := newTestClient(t, server)

	data, err := c.GenerateImage(context.Background(), "a substation at dusk")
	require.NoError(t, err)
	assert.Equal(t, imageBytes, data)

	assert.Equal(t, "/v2/users/openai/apps/dall-e/models/dall-e-3/outputs", got.path)
	assert.Equal(t, "standard", got.params["quality"])
	assert.Equal(t, "1024x1024", got.params["size"])
	assert.Contains(t, got.prompt, "a substation at dusk")
}

func TestSynthesizeSpeech(t *testing.T) {
	var got captured
	audio := []byte("ID3-mp3-frames")
	body := `{"outputs":[{"data":{"audio":{"base64":"` + base64.StdEncoding.EncodeToString(audio) + `"}}}]}`
	server := newTestServer(t, http.StatusOK, body, &got)
	c := newTestClient(t, server)

	data, err := c.SynthesizeSpeech(context.Background(), "Replace the seal.")
	require.NoError(t, err)
	assert.Equal(t, audio, data)

	assert.Equal(t, "/v2/users/openai/apps/tts/models/openai-tts-1/outputs", got.path)
	assert.Equal(t, "Replace the seal.", got.prompt)
	assert.Equal(t, "alloy", got.params["voice"])
	assert.Equal(t, 1.0, got.params["speed"])
}

func TestMalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing outputs", `{"status":{"code":10000}}`},
		{"empty outputs", `{"outputs":[]}`},
		{"missing data", `{"outputs":[{}]}`},
		{"missing text", `{"outputs":[{"data":{"image":{"base64":"AA=="}}}]}`},
		{"missing raw", `{"outputs":[{"data":{"text":{}}}]}`},
		{"not json", `<html>oops</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, http.StatusOK, tt.body, nil)
			c := newTestClient(t, server)

			text, err := c.AnalyzeIssue(context.Background(), "aW1n", "desc")
			assert.ErrorIs(t, err, domain.ErrMalformedResponse)
			assert.Empty(t, text)
		})
	}
}

func TestMalformedResponses_Artifacts(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"outputs":[{"data":{"text":{"raw":"X"}}}]}`, nil)
	c := newTestClient(t, server)

	_, err := c.GenerateImage(context.Background(), "desc")
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)

	_, err = c.SynthesizeSpeech(context.Background(), "text")
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestPredictionFailedStatus(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"status":{"code":11102,"description":"Model does not exist"}}`, nil)
	c := newTestClient(t, server)

	_, err := c.AnalyzeIssue(context.Background(), "aW1n", "desc")
	assert.ErrorIs(t, err, domain.ErrPredictionFailed)
	assert.Contains(t, err.Error(), "Model does not exist")
}

func TestUnexpectedHTTPStatus(t *testing.T) {
	server := newTestServer(t, http.StatusTooManyRequests, `{"status":{"code":11005,"description":"rate limited"}}`, nil)
	c := newTestClient(t, server)

	_, err := c.AnalyzeIssue(context.Background(), "aW1n", "desc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestPredict_UnsupportedInputType(t *testing.T) {
	c, err := NewClient("pat")
	require.NoError(t, err)

	_, err = c.Predict(context.Background(), domain.InferenceRequest{ModelURL: ChatModelURL, InputType: "image"})
	assert.Error(t, err)
}

func TestParseModelURL(t *testing.T) {
	tests := []struct {
		url       string
		want      ModelIDs
		expectErr bool
	}{
		{url: ChatModelURL, want: ModelIDs{UserID: "openai", AppID: "chat-completion", ModelID: "gpt-4-vision"}},
		{url: "https://clarifai.com/u/a/models/m/versions/v1", want: ModelIDs{UserID: "u", AppID: "a", ModelID: "m", VersionID: "v1"}},
		{url: "https://clarifai.com/u/a/m", expectErr: true},
		{url: "https://clarifai.com/u/a/workflows/m", expectErr: true},
		{url: "https://clarifai.com/u/a/models/m/other/v1", expectErr: true},
	}

	for _, tt := range tests {
		got, err := ParseModelURL(tt.url)
		if tt.expectErr {
			assert.Error(t, err, tt.url)
			continue
		}
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.want, got)
	}

	ids := ModelIDs{UserID: "u", AppID: "a", ModelID: "m", VersionID: "v1"}
	assert.Equal(t, "/v2/users/u/apps/a/models/m/versions/v1/outputs", ids.outputsPath())
}
