package service

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/basel-ax/omni/internal/artifact"
	"github.com/basel-ax/omni/internal/domain"
	"github.com/basel-ax/omni/internal/log"
	"github.com/basel-ax/omni/internal/media"
	"github.com/basel-ax/omni/internal/repository"
)

// AssistantService runs the hosted-model operations for one request at a
// time, binding each call to the credential the caller passes in.
type AssistantService struct {
	factory        domain.AssistantFactory
	artifacts      *artifact.Store
	history        repository.AnalysisRepository
	maxDescription int
}

// NewAssistantService creates a new assistant service. history may be nil.
func NewAssistantService(factory domain.AssistantFactory, artifacts *artifact.Store, history repository.AnalysisRepository, maxDescription int) *AssistantService {
	return &AssistantService{
		factory:        factory,
		artifacts:      artifacts,
		history:        history,
		maxDescription: maxDescription,
	}
}

// Analyze sends the image and description to the vision model and returns
// the solution text.
func (s *AssistantService) Analyze(ctx context.Context, credential, sessionID string, image []byte, description string) (string, error) {
	assistant, err := s.factory(credential)
	if err != nil {
		return "", err
	}

	prompt := s.truncate(sessionID, description)
	log.Debugf("Analyzing issue for session %s (%d image bytes)", sessionID, len(image))

	solution, err := assistant.AnalyzeIssue(ctx, media.EncodeImage(image), prompt)
	if err != nil {
		return "", err
	}

	if s.history != nil {
		record := &domain.AnalysisRecord{
			SessionID:   sessionID,
			Description: description,
			Solution:    solution,
		}
		if err := s.history.Save(ctx, record); err != nil {
			log.Warnf("Error saving analysis for session %s: %v", sessionID, err)
		}
	}

	log.Infof("Analysis generated for session %s", sessionID)
	return solution, nil
}

// Continue answers the latest user turn using the whole transcript.
func (s *AssistantService) Continue(ctx context.Context, credential, sessionID string, image []byte, turns []domain.Turn) (string, error) {
	assistant, err := s.factory(credential)
	if err != nil {
		return "", err
	}

	log.Debugf("Continuing conversation for session %s (%d turns)", sessionID, len(turns))
	answer, err := assistant.ContinueConversation(ctx, media.EncodeImage(image), domain.FormatHistory(turns))
	if err != nil {
		return "", err
	}
	return answer, nil
}

// GenerateImage creates a scenery image from description and stores it as a
// session-scoped artifact.
func (s *AssistantService) GenerateImage(ctx context.Context, credential, sessionID, description string) (*domain.GeneratedArtifact, error) {
	assistant, err := s.factory(credential)
	if err != nil {
		return nil, err
	}

	data, err := assistant.GenerateImage(ctx, s.truncate(sessionID, description))
	if err != nil {
		return nil, err
	}

	a, err := s.artifacts.Save(sessionID, data)
	if err != nil {
		return nil, fmt.Errorf("failed to store generated image: %w", err)
	}

	log.Infof("Generated image %s for session %s", a.Name, sessionID)
	return a, nil
}

// SynthesizeSpeech converts text to mp3 audio.
func (s *AssistantService) SynthesizeSpeech(ctx context.Context, credential, sessionID, text string) ([]byte, error) {
	assistant, err := s.factory(credential)
	if err != nil {
		return nil, err
	}

	audio, err := assistant.SynthesizeSpeech(ctx, text)
	if err != nil {
		return nil, err
	}

	log.Infof("Audio generated for session %s (%d bytes)", sessionID, len(audio))
	return audio, nil
}

// History returns the stored analyses of a session.
func (s *AssistantService) History(ctx context.Context, sessionID string) ([]domain.AnalysisRecord, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.ListBySession(ctx, sessionID)
}

func (s *AssistantService) truncate(sessionID, description string) string {
	truncated := truncatePrompt(description, s.maxDescription)
	if len(truncated) != len(description) {
		log.Infof("Description for session %s was truncated from %d to %d characters",
			sessionID, utf8.RuneCountInString(description), utf8.RuneCountInString(truncated))
	}
	return truncated
}

// truncatePrompt safely truncates a string to the specified length while preserving UTF-8 characters
func truncatePrompt(s string, length int) string {
	if length <= 0 || utf8.RuneCountInString(s) <= length {
		return s
	}

	var size, n int
	for i := 0; i < length && n < len(s); i++ {
		_, size = utf8.DecodeRuneInString(s[n:])
		n += size
	}

	return s[:n]
}
