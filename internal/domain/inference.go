package domain

import (
	"context"
	"errors"
)

// InputTypeText tags a prompt submitted as raw text bytes.
const InputTypeText = "text"

var (
	// ErrMalformedResponse is returned when a hosted model answers with a body
	// that does not expose the expected outputs[0].data field.
	ErrMalformedResponse = errors.New("malformed inference response")

	// ErrPredictionFailed is returned when the hosted model reports a
	// non-success status for the prediction.
	ErrPredictionFailed = errors.New("prediction failed")

	// ErrMissingCredential is returned when an adapter is requested without
	// an access token.
	ErrMissingCredential = errors.New("missing inference credential")
)

// InferenceParams carries the per-call model settings (temperature,
// image_base64, quality, size, voice, speed).
type InferenceParams map[string]any

// InferenceRequest is assembled immediately before a call and discarded after.
type InferenceRequest struct {
	ModelURL  string
	Prompt    []byte
	InputType string
	Params    InferenceParams
}

// Assistant is the inference adapter used by the service layer. Every
// operation blocks until the hosted model answers or ctx is done.
type Assistant interface {
	// AnalyzeIssue returns a solution for the issue shown in the image and
	// described by the user.
	AnalyzeIssue(ctx context.Context, imageBase64, description string) (string, error)

	// ContinueConversation answers the latest query in history, using the
	// same image as context.
	ContinueConversation(ctx context.Context, imageBase64, history string) (string, error)

	// GenerateImage returns the raw bytes of a generated scenery image.
	GenerateImage(ctx context.Context, description string) ([]byte, error)

	// SynthesizeSpeech returns the raw bytes of an mp3 rendering of text.
	SynthesizeSpeech(ctx context.Context, text string) ([]byte, error)
}

// AssistantFactory builds an Assistant bound to one credential.
type AssistantFactory func(credential string) (Assistant, error)
