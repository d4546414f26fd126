// Package clarifai calls OpenAI models hosted on Clarifai through its v2 REST API.
package clarifai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/basel-ax/omni/internal/domain"
	"github.com/basel-ax/omni/internal/media"
)

const (
	defaultBaseURL = "https://api.clarifai.com"
	defaultTimeout = 2 * time.Minute

	// statusSuccess is the Clarifai status code for a successful request.
	statusSuccess = 10000
)

// Hosted model URLs.
const (
	ChatModelURL   = "https://clarifai.com/openai/chat-completion/models/gpt-4-vision"
	ImageModelURL  = "https://clarifai.com/openai/dall-e/models/dall-e-3"
	SpeechModelURL = "https://clarifai.com/openai/tts/models/openai-tts-1"
)

const (
	analyzePrompt      = "Analyze this image from the O&M industry, which includes the following description: '%s'. Provide a detailed, practical solution to the issue depicted and described:"
	conversationPrompt = "Given the entire conversation history below regarding an O&M issue, along with the corresponding image, provide a relevant and context-aware response to the latest query:\n\n%s"
	sceneryPrompt      = "You are a professional scenery artist. Based on the below user's description and content, create a scenery without living beings: %s"
)

// Client calls Clarifai-hosted models with one personal access token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	pat        string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithTimeout sets the overall timeout of one prediction request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient creates a Clarifai client bound to pat.
func NewClient(pat string, opts ...Option) (*Client, error) {
	if pat == "" {
		return nil, domain.ErrMissingCredential
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: defaultBaseURL,
		pat:     pat,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFactory returns a domain.AssistantFactory building Clarifai clients with opts.
func NewFactory(opts ...Option) domain.AssistantFactory {
	return func(credential string) (domain.Assistant, error) {
		return NewClient(credential, opts...)
	}
}

// AnalyzeIssue implements domain.Assistant.
func (c *Client) AnalyzeIssue(ctx context.Context, imageBase64, description string) (string, error) {
	data, err := c.Predict(ctx, domain.InferenceRequest{
		ModelURL:  ChatModelURL,
		Prompt:    []byte(fmt.Sprintf(analyzePrompt, description)),
		InputType: domain.InputTypeText,
		Params: domain.InferenceParams{
			"temperature":  0.5,
			"image_base64": imageBase64,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to analyze issue: %w", err)
	}
	return data.text()
}

// ContinueConversation implements domain.Assistant.
func (c *Client) ContinueConversation(ctx context.Context, imageBase64, history string) (string, error) {
	data, err := c.Predict(ctx, domain.InferenceRequest{
		ModelURL:  ChatModelURL,
		Prompt:    []byte(fmt.Sprintf(conversationPrompt, history)),
		InputType: domain.InputTypeText,
		Params: domain.InferenceParams{
			"temperature":  0.7,
			"image_base64": imageBase64,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to continue conversation: %w", err)
	}
	return data.text()
}

// GenerateImage implements domain.Assistant.
func (c *Client) GenerateImage(ctx context.Context, description string) ([]byte, error) {
	data, err := c.Predict(ctx, domain.InferenceRequest{
		ModelURL:  ImageModelURL,
		Prompt:    []byte(fmt.Sprintf(sceneryPrompt, description)),
		InputType: domain.InputTypeText,
		Params: domain.InferenceParams{
			"quality": "standard",
			"size":    "1024x1024",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}
	return data.image()
}

// SynthesizeSpeech implements domain.Assistant.
func (c *Client) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	data, err := c.Predict(ctx, domain.InferenceRequest{
		ModelURL:  SpeechModelURL,
		Prompt:    []byte(text),
		InputType: domain.InputTypeText,
		Params: domain.InferenceParams{
			"voice": "alloy",
			"speed": 1.0,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	return data.audio()
}

// Predict submits req to the model it names and returns the data of the
// first output.
func (c *Client) Predict(ctx context.Context, req domain.InferenceRequest) (*OutputData, error) {
	if req.InputType != domain.InputTypeText {
		return nil, fmt.Errorf("unsupported input type: %q", req.InputType)
	}

	ids, err := ParseModelURL(req.ModelURL)
	if err != nil {
		return nil, err
	}

	body := predictRequest{
		Inputs: []input{{Data: inputData{Text: &textData{Raw: string(req.Prompt)}}}},
	}
	if len(req.Params) > 0 {
		body.Model = &modelSpec{ModelVersion: modelVersion{OutputInfo: outputInfo{Params: req.Params}}}
	}

	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ids.outputsPath(), bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Key "+c.pat)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var result predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", domain.ErrMalformedResponse, err)
	}

	if result.Status != nil && result.Status.Code != statusSuccess {
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrPredictionFailed, result.Status.Code, result.Status.Description)
	}

	if len(result.Outputs) == 0 {
		return nil, fmt.Errorf("%w: missing outputs", domain.ErrMalformedResponse)
	}
	if result.Outputs[0].Data == nil {
		return nil, fmt.Errorf("%w: missing outputs[0].data", domain.ErrMalformedResponse)
	}

	return result.Outputs[0].Data, nil
}

// ModelIDs identifies a hosted model.
type ModelIDs struct {
	UserID    string
	AppID     string
	ModelID   string
	VersionID string
}

func (m ModelIDs) outputsPath() string {
	path := fmt.Sprintf("/v2/users/%s/apps/%s/models/%s", m.UserID, m.AppID, m.ModelID)
	if m.VersionID != "" {
		path += "/versions/" + m.VersionID
	}
	return path + "/outputs"
}

// ParseModelURL splits a model URL of the form
// https://clarifai.com/{user}/{app}/models/{model}[/versions/{version}].
func ParseModelURL(modelURL string) (ModelIDs, error) {
	u, err := url.Parse(modelURL)
	if err != nil {
		return ModelIDs{}, fmt.Errorf("invalid model url %q: %w", modelURL, err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 4 && len(parts) != 6 {
		return ModelIDs{}, fmt.Errorf("invalid model url %q", modelURL)
	}
	if parts[2] != "models" || (len(parts) == 6 && parts[4] != "versions") {
		return ModelIDs{}, fmt.Errorf("invalid model url %q", modelURL)
	}

	ids := ModelIDs{UserID: parts[0], AppID: parts[1], ModelID: parts[3]}
	if len(parts) == 6 {
		ids.VersionID = parts[5]
	}
	return ids, nil
}

func (d *OutputData) text() (string, error) {
	if d.Text == nil || d.Text.Raw == nil {
		return "", fmt.Errorf("%w: missing outputs[0].data.text.raw", domain.ErrMalformedResponse)
	}
	return *d.Text.Raw, nil
}

func (d *OutputData) image() ([]byte, error) {
	if d.Image == nil || d.Image.Base64 == nil {
		return nil, fmt.Errorf("%w: missing outputs[0].data.image.base64", domain.ErrMalformedResponse)
	}
	return media.DecodeBase64(*d.Image.Base64)
}

func (d *OutputData) audio() ([]byte, error) {
	if d.Audio == nil || d.Audio.Base64 == nil {
		return nil, fmt.Errorf("%w: missing outputs[0].data.audio.base64", domain.ErrMalformedResponse)
	}
	return media.DecodeBase64(*d.Audio.Base64)
}
