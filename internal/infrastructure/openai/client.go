// Package openai talks to the OpenAI API directly, as an alternative to the
// Clarifai-hosted copies of the same models.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"

	"github.com/basel-ax/omni/internal/domain"
	"github.com/basel-ax/omni/internal/media"
)

const (
	defaultChatModel   = "gpt-4o"
	defaultImageModel  = "dall-e-3"
	defaultSpeechModel = "tts-1"
)

const (
	analyzePrompt      = "Analyze this image from the O&M industry, which includes the following description: '%s'. Provide a detailed, practical solution to the issue depicted and described:"
	conversationPrompt = "Given the entire conversation history below regarding an O&M issue, along with the corresponding image, provide a relevant and context-aware response to the latest query:\n\n%s"
	sceneryPrompt      = "You are a professional scenery artist. Based on the below user's description and content, create a scenery without living beings: %s"
)

// Client implements domain.Assistant on top of openai-go.
type Client struct {
	client      openai.Client
	chatModel   string
	imageModel  string
	speechModel string
}

type options struct {
	baseURL     string
	httpClient  *http.Client
	timeout     time.Duration
	chatModel   string
	imageModel  string
	speechModel string
}

// Option configures a Client.
type Option func(*options)

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithChatModel sets the vision chat model name.
func WithChatModel(name string) Option {
	return func(o *options) {
		if name != "" {
			o.chatModel = name
		}
	}
}

// NewClient creates a client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, domain.ErrMissingCredential
	}

	o := &options{
		chatModel:   defaultChatModel,
		imageModel:  defaultImageModel,
		speechModel: defaultSpeechModel,
	}
	for _, opt := range opts {
		opt(o)
	}

	clientOpts := []openaiopt.RequestOption{
		openaiopt.WithAPIKey(apiKey),
		openaiopt.WithMaxRetries(0),
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.baseURL))
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, openaiopt.WithHTTPClient(o.httpClient))
	}
	if o.timeout > 0 {
		clientOpts = append(clientOpts, openaiopt.WithRequestTimeout(o.timeout))
	}

	return &Client{
		client:      openai.NewClient(clientOpts...),
		chatModel:   o.chatModel,
		imageModel:  o.imageModel,
		speechModel: o.speechModel,
	}, nil
}

// NewFactory returns a domain.AssistantFactory building OpenAI clients with opts.
func NewFactory(opts ...Option) domain.AssistantFactory {
	return func(credential string) (domain.Assistant, error) {
		return NewClient(credential, opts...)
	}
}

// AnalyzeIssue implements domain.Assistant.
func (c *Client) AnalyzeIssue(ctx context.Context, imageBase64, description string) (string, error) {
	text, err := c.chat(ctx, fmt.Sprintf(analyzePrompt, description), imageBase64, 0.5)
	if err != nil {
		return "", fmt.Errorf("failed to analyze issue: %w", err)
	}
	return text, nil
}

// ContinueConversation implements domain.Assistant.
func (c *Client) ContinueConversation(ctx context.Context, imageBase64, history string) (string, error) {
	text, err := c.chat(ctx, fmt.Sprintf(conversationPrompt, history), imageBase64, 0.7)
	if err != nil {
		return "", fmt.Errorf("failed to continue conversation: %w", err)
	}
	return text, nil
}

// GenerateImage implements domain.Assistant.
func (c *Client) GenerateImage(ctx context.Context, description string) ([]byte, error) {
	resp, err := c.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         fmt.Sprintf(sceneryPrompt, description),
		Model:          openai.ImageModel(c.imageModel),
		Quality:        openai.ImageGenerateParamsQuality("standard"),
		Size:           openai.ImageGenerateParamsSize("1024x1024"),
		ResponseFormat: openai.ImageGenerateParamsResponseFormat("b64_json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("%w: missing data[0].b64_json", domain.ErrMalformedResponse)
	}
	return media.DecodeBase64(resp.Data[0].B64JSON)
}

// SynthesizeSpeech implements domain.Assistant.
func (c *Client) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	resp, err := c.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(c.speechModel),
		Voice:          openai.AudioSpeechNewParamsVoice("alloy"),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat("mp3"),
		Speed:          openai.Float(1.0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio body", domain.ErrMalformedResponse)
	}
	return audio, nil
}

func (c *Client) chat(ctx context.Context, prompt, imageBase64 string, temperature float64) (string, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		{OfText: &openai.ChatCompletionContentPartTextParam{Text: prompt}},
	}
	if imageBase64 != "" {
		parts = append(parts, openai.ChatCompletionContentPartUnionParam{
			OfImageURL: &openai.ChatCompletionContentPartImageParam{
				ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
					URL: "data:image/png;base64," + imageBase64,
				},
			},
		})
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.chatModel),
		Temperature: openai.Float(temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: parts,
				},
			}},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: missing choices", domain.ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}
