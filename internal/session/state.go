package session

// State is the position of a session in the analyze/display/speak flow.
type State string

const (
	// StateIdle means no image has been uploaded yet
	StateIdle State = "Idle"

	// StateImageUploaded means an image is present but no description
	StateImageUploaded State = "ImageUploaded"

	// StateDescriptionEntered means both image and description are present
	StateDescriptionEntered State = "DescriptionEntered"

	// StateAnalyzing means the analysis request is in flight
	StateAnalyzing State = "Analyzing"

	// StateResultDisplayed means a solution is on screen
	StateResultDisplayed State = "ResultDisplayed"

	// StateSynthesizingAudio means the speech request is in flight
	StateSynthesizingAudio State = "SynthesizingAudio"

	// StateAudioDisplayed means the solution audio is available
	StateAudioDisplayed State = "AudioDisplayed"
)

// String returns the string representation of State
func (s State) String() string {
	return string(s)
}

// HasResult returns true if a solution is available to the user
func (s State) HasResult() bool {
	return s == StateResultDisplayed || s == StateAudioDisplayed
}

// IsBusy returns true while a remote call is in flight
func (s State) IsBusy() bool {
	return s == StateAnalyzing || s == StateSynthesizingAudio
}
