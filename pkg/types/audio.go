package types

// Transcription response formats.
const (
	FormatJSON        = "json"
	FormatText        = "text"
	FormatSRT         = "srt"
	FormatVTT         = "vtt"
	FormatVerboseJSON = "verbose_json"
)

// TranscriptionResponse is the json response format.
type TranscriptionResponse struct {
	// example: Hello there.
	Text string `json:"text" example:"Hello there."`
}

// TranscriptionVerbose is the verbose_json response format.
type TranscriptionVerbose struct {
	Task     string                 `json:"task" example:"transcribe"`
	Language string                 `json:"language" example:"en"`
	Duration float64                `json:"duration" example:"3.2"`
	Text     string                 `json:"text"`
	Segments []TranscriptionSegment `json:"segments"`
	Words    []TranscriptionWord    `json:"words,omitempty"`
}

// TranscriptionSegment is one timed span of text.
type TranscriptionSegment struct {
	ID    int                 `json:"id"`
	Start float64             `json:"start"`
	End   float64             `json:"end"`
	Text  string              `json:"text"`
	Words []TranscriptionWord `json:"words,omitempty"`
}

// TranscriptionWord is one timed word.
type TranscriptionWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}
