// Package session holds the per-user state of the assistant page and
// sequences its events: encode, analyze, display, then optionally speak.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/basel-ax/omni/internal/domain"
	"github.com/basel-ax/omni/internal/media"
)

// ErrUnsupportedImage is returned by UploadImage for files that are not
// png, jpg or jpeg.
var ErrUnsupportedImage = errors.New("unsupported image type: expected png, jpg or jpeg")

// Assistant is the service a session calls for remote work.
type Assistant interface {
	Analyze(ctx context.Context, credential, sessionID string, image []byte, description string) (string, error)
	Continue(ctx context.Context, credential, sessionID string, image []byte, turns []domain.Turn) (string, error)
	GenerateImage(ctx context.Context, credential, sessionID, description string) (*domain.GeneratedArtifact, error)
	SynthesizeSpeech(ctx context.Context, credential, sessionID, text string) ([]byte, error)
}

// Image is an uploaded file.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// Session is the state of one user's page. Events are applied one at a
// time; a remote call holds the session until it returns.
type Session struct {
	mu sync.Mutex

	id        string
	assistant Assistant
	now       func() time.Time

	credential  string
	image       *Image
	description string
	solution    string
	turns       []domain.Turn
	audio       []byte
	generated   *domain.GeneratedArtifact
	state       State
	lastErr     error
	updatedAt   time.Time
}

func newSession(id string, assistant Assistant, credential string, now func() time.Time) *Session {
	return &Session{
		id:         id,
		assistant:  assistant,
		now:        now,
		credential: credential,
		state:      StateIdle,
		updatedAt:  now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetCredential replaces the access token used for remote calls. Empty
// values are ignored so a previously entered token stays active.
func (s *Session) SetCredential(credential string) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = credential
	s.touch()
}

// UploadImage replaces the uploaded image. Any previous result is dropped.
func (s *Session) UploadImage(name string, data []byte) error {
	if !media.AllowedImage(name) {
		return ErrUnsupportedImage
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = &Image{Name: name, ContentType: media.ContentType(name), Data: data}
	s.clearResult()
	s.state = s.inputState()
	s.touch()
	return nil
}

// SetDescription replaces the issue description. Submitting the same text
// again keeps the current result.
func (s *Session) SetDescription(description string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if description == s.description {
		return
	}
	s.description = description
	s.clearResult()
	s.state = s.inputState()
	s.touch()
}

// Analyze asks the vision model for a solution. It only fires when a
// credential, an image and a non-empty description are all present;
// otherwise it is a no-op and reports fired=false.
func (s *Session) Analyze(ctx context.Context) (fired bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.credential == "" || s.image == nil || strings.TrimSpace(s.description) == "" {
		return false, nil
	}

	s.lastErr = nil
	s.state = StateAnalyzing
	defer s.touch()

	solution, err := s.assistant.Analyze(ctx, s.credential, s.id, s.image.Data, s.description)
	if err != nil {
		s.lastErr = err
		s.clearResult()
		s.state = s.inputState()
		return true, err
	}

	s.clearResult()
	s.solution = solution
	s.turns = []domain.Turn{
		{Role: domain.RoleUser, Text: s.description},
		{Role: domain.RoleAssistant, Text: solution},
	}
	s.state = StateResultDisplayed
	return true, nil
}

// ConvertToAudio synthesizes speech for the displayed solution. It is a
// no-op until an analysis result is on screen.
func (s *Session) ConvertToAudio(ctx context.Context) (fired bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.HasResult() || s.credential == "" {
		return false, nil
	}

	s.lastErr = nil
	previous := s.state
	s.state = StateSynthesizingAudio
	defer s.touch()

	audio, err := s.assistant.SynthesizeSpeech(ctx, s.credential, s.id, s.solution)
	if err != nil {
		s.lastErr = err
		s.state = previous
		return true, err
	}

	s.audio = audio
	s.state = StateAudioDisplayed
	return true, nil
}

// Ask sends a follow-up question with the whole transcript. It is a no-op
// until an analysis result is on screen or when question is blank.
func (s *Session) Ask(ctx context.Context, question string) (fired bool, err error) {
	question = strings.TrimSpace(question)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.HasResult() || s.credential == "" || question == "" {
		return false, nil
	}

	s.lastErr = nil
	defer s.touch()

	turns := append(append([]domain.Turn{}, s.turns...), domain.Turn{Role: domain.RoleUser, Text: question})
	answer, err := s.assistant.Continue(ctx, s.credential, s.id, s.image.Data, turns)
	if err != nil {
		s.lastErr = err
		return true, err
	}

	s.turns = append(turns, domain.Turn{Role: domain.RoleAssistant, Text: answer})
	return true, nil
}

// Visualize generates a scenery image from the description. It is a no-op
// until an analysis result is on screen.
func (s *Session) Visualize(ctx context.Context) (fired bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.HasResult() || s.credential == "" {
		return false, nil
	}

	s.lastErr = nil
	defer s.touch()

	generated, err := s.assistant.GenerateImage(ctx, s.credential, s.id, s.description)
	if err != nil {
		s.lastErr = err
		return true, err
	}

	s.generated = generated
	return true, nil
}

// Reset drops everything but the credential.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.image = nil
	s.description = ""
	s.clearResult()
	s.lastErr = nil
	s.state = StateIdle
	s.touch()
}

// Image returns the uploaded image, or nil.
func (s *Session) Image() *Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image
}

// Audio returns the synthesized solution audio, or nil.
func (s *Session) Audio() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio
}

// View is a read-only snapshot used for rendering.
type View struct {
	ID            string        `json:"id"`
	State         State         `json:"state"`
	HasCredential bool          `json:"has_credential"`
	ImageName     string        `json:"image_name,omitempty"`
	Description   string        `json:"description"`
	Solution      string        `json:"solution,omitempty"`
	Turns         []domain.Turn `json:"turns,omitempty"`
	HasAudio      bool          `json:"has_audio"`
	GeneratedName string        `json:"generated_name,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:            s.id,
		State:         s.state,
		HasCredential: s.credential != "",
		Description:   s.description,
		Solution:      s.solution,
		Turns:         append([]domain.Turn(nil), s.turns...),
		HasAudio:      len(s.audio) > 0,
	}
	if s.image != nil {
		v.ImageName = s.image.Name
	}
	if s.generated != nil {
		v.GeneratedName = s.generated.Name
	}
	if s.lastErr != nil {
		v.Error = s.lastErr.Error()
	}
	return v
}

func (s *Session) inputState() State {
	switch {
	case s.image != nil && strings.TrimSpace(s.description) != "":
		return StateDescriptionEntered
	case s.image != nil:
		return StateImageUploaded
	default:
		return StateIdle
	}
}

func (s *Session) clearResult() {
	s.solution = ""
	s.turns = nil
	s.audio = nil
	s.generated = nil
}

func (s *Session) touch() {
	s.updatedAt = s.now()
}
