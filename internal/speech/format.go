package speech

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"omnid/pkg/types"
)

// Content types written for each response format.
const (
	contentJSON = "application/json"
	contentText = "text/plain; charset=utf-8"
	contentVTT  = "text/vtt; charset=utf-8"
)

// NormalizeFormat returns the effective response format, defaulting to json.
func NormalizeFormat(f string) (string, error) {
	switch f {
	case "":
		return types.FormatJSON, nil
	case types.FormatJSON, types.FormatText, types.FormatSRT, types.FormatVTT, types.FormatVerboseJSON:
		return f, nil
	}
	return "", errInvalid("response_format: unsupported value %q", f)
}

// Render encodes res in the requested format and returns the body with
// its content type.
func Render(res Result, req Request) (string, []byte, error) {
	format, err := NormalizeFormat(req.ResponseFormat)
	if err != nil {
		return "", nil, err
	}
	switch format {
	case types.FormatText:
		return contentText, []byte(res.Text), nil
	case types.FormatSRT:
		return contentText, []byte(subtitles(res.Segments, false)), nil
	case types.FormatVTT:
		return contentVTT, []byte(subtitles(res.Segments, true)), nil
	case types.FormatVerboseJSON:
		body, err := json.Marshal(Verbose(res, req.WantsWords()))
		return contentJSON, body, err
	default:
		body, err := json.Marshal(types.TranscriptionResponse{Text: res.Text})
		return contentJSON, body, err
	}
}

// Verbose builds the verbose_json body. Word detail is only included when
// requested.
func Verbose(res Result, words bool) types.TranscriptionVerbose {
	out := types.TranscriptionVerbose{
		Task:     "transcribe",
		Language: res.Language,
		Duration: res.Duration,
		Text:     res.Text,
		Segments: make([]types.TranscriptionSegment, 0, len(res.Segments)),
	}
	for i, s := range res.Segments {
		seg := types.TranscriptionSegment{ID: i, Start: s.Start, End: s.End, Text: s.Text}
		if words {
			for _, w := range s.Words {
				tw := types.TranscriptionWord{Word: w.Word, Start: w.Start, End: w.End}
				seg.Words = append(seg.Words, tw)
				out.Words = append(out.Words, tw)
			}
		}
		out.Segments = append(out.Segments, seg)
	}
	return out
}

func subtitles(segs []Segment, vtt bool) string {
	var lines []string
	sep := ","
	if vtt {
		lines = append(lines, "WEBVTT", "")
		sep = "."
	}
	for i, s := range segs {
		if !vtt {
			lines = append(lines, fmt.Sprint(i+1))
		}
		lines = append(lines,
			stamp(s.Start, sep)+" --> "+stamp(s.End, sep),
			strings.TrimSpace(s.Text),
			"",
		)
	}
	return strings.Join(lines, "\n")
}

// stamp formats seconds as HH:MM:SS followed by sep and milliseconds.
func stamp(seconds float64, sep string) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, sep, ms%1000)
}
