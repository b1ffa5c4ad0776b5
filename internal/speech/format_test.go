package speech

import (
	"encoding/json"
	"testing"

	"omnid/pkg/types"
)

func sampleResult() Result {
	return Result{
		Text:     "Hello there. General Kenobi!",
		Language: "en",
		Duration: 3.25,
		Segments: []Segment{
			{Start: 0, End: 1.5, Text: "Hello there.", Words: []Word{{"Hello", 0, 0.6}, {"there.", 0.6, 1.5}}},
			{Start: 3661.25, End: 3662.005, Text: " General Kenobi! ", Words: []Word{{"General", 1.5, 2.2}}},
		},
	}
}

func TestRenderSubtitles(t *testing.T) {
	_, srt, err := Render(sampleResult(), Request{ResponseFormat: types.FormatSRT})
	if err != nil {
		t.Fatal(err)
	}
	wantSRT := "1\n00:00:00,000 --> 00:00:01,500\nHello there.\n\n2\n01:01:01,250 --> 01:01:02,005\nGeneral Kenobi!\n"
	if string(srt) != wantSRT {
		t.Fatalf("srt:\n%q\nwant:\n%q", srt, wantSRT)
	}
	ct, vtt, err := Render(sampleResult(), Request{ResponseFormat: types.FormatVTT})
	if err != nil {
		t.Fatal(err)
	}
	wantVTT := "WEBVTT\n\n00:00:00.000 --> 00:00:01.500\nHello there.\n\n01:01:01.250 --> 01:01:02.005\nGeneral Kenobi!\n"
	if string(vtt) != wantVTT || ct != contentVTT {
		t.Fatalf("vtt (%s):\n%q\nwant:\n%q", ct, vtt, wantVTT)
	}
}

func TestRenderJSONAndText(t *testing.T) {
	ct, body, err := Render(sampleResult(), Request{})
	if err != nil || ct != contentJSON || string(body) != `{"text":"Hello there. General Kenobi!"}` {
		t.Fatalf("json: ct=%s body=%s err=%v", ct, body, err)
	}
	ct, body, _ = Render(sampleResult(), Request{ResponseFormat: types.FormatText})
	if ct != contentText || string(body) != "Hello there. General Kenobi!" {
		t.Fatalf("text: ct=%s body=%s", ct, body)
	}
}

func TestRenderVerboseWords(t *testing.T) {
	_, body, err := Render(sampleResult(), Request{ResponseFormat: types.FormatVerboseJSON})
	if err != nil {
		t.Fatal(err)
	}
	var v types.TranscriptionVerbose
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatal(err)
	}
	if v.Task != "transcribe" || v.Language != "en" || v.Duration != 3.25 || len(v.Segments) != 2 {
		t.Fatalf("unexpected verbose: %+v", v)
	}
	if len(v.Words) != 0 || len(v.Segments[0].Words) != 0 {
		t.Fatalf("words must be omitted unless requested: %+v", v)
	}
	v = Verbose(sampleResult(), true)
	if len(v.Words) != 3 || v.Segments[1].ID != 1 || len(v.Segments[0].Words) != 2 {
		t.Fatalf("unexpected word detail: %+v", v)
	}
}

func TestRenderRejectsUnknownFormat(t *testing.T) {
	if _, _, err := Render(Result{}, Request{ResponseFormat: "xml"}); !IsInvalid(err) {
		t.Fatalf("expected invalid, got %v", err)
	}
}
