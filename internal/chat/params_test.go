package chat

import (
	"encoding/json"
	"reflect"
	"testing"

	"omnid/internal/textgen"
)

func TestParseRequestDefaults(t *testing.T) {
	p, extra, err := ParseRequest(request(t, `{"model":"m","messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	o := p.Options
	if o.MaxTokens != textgen.DefaultMaxTokens || o.Temperature != 1 || o.TopP != 1 || o.TopK != 0 || o.MinP != 0 {
		t.Fatalf("unexpected defaults: %+v", o)
	}
	if !p.Template.EnableThinking || p.Logprobs || len(extra.Ignored) != 0 {
		t.Fatalf("unexpected params: %+v extra=%+v", p, extra)
	}
}

func TestParseRequestFields(t *testing.T) {
	p, _, err := ParseRequest(request(t, `{
		"model":"m",
		"messages":[{"role":"system","content":"s"},{"role":"user","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}],
		"temperature":0.2,"top_p":0.5,"max_completion_tokens":9,"seed":7,
		"stop":"END","logit_bias":{"42":-100},
		"logprobs":true,
		"response_format":{"type":"json_object"}
	}`))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	o := p.Options
	if o.Temperature != 0.2 || o.TopP != 0.5 || o.MaxTokens != 9 || o.Seed != 7 || o.LogitBias[42] != -100 {
		t.Fatalf("unexpected options: %+v", o)
	}
	if string(o.JSONSchema) != `{"type":"object"}` {
		t.Fatalf("unexpected schema %s", o.JSONSchema)
	}
	if !reflect.DeepEqual(p.Stop, []string{"END"}) || p.Messages[1].Content != "ab" {
		t.Fatalf("unexpected stop/messages: %+v %+v", p.Stop, p.Messages)
	}
	if !p.Logprobs || p.TopLogprobs != textgen.DefaultTopLogprobs {
		t.Fatalf("unexpected logprobs: %v %d", p.Logprobs, p.TopLogprobs)
	}
}

func TestParseRequestExtraParams(t *testing.T) {
	p, extra, err := ParseRequest(request(t, `{
		"model":"m","messages":[{"role":"user","content":"hi"}],
		"top_k":40,"min_p":0.05,"min_tokens_to_keep":2,"xtc_probability":0.5,"xtc_threshold":0.1,
		"repetition_penalty":1.1,"adapter_path":"/a/lora.gguf","mystery":true
	}`))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	o := p.Options
	if o.TopK != 40 || o.MinP != 0.05 || o.MinKeep != 2 || o.XTCProbability != 0.5 || o.XTCThreshold != 0.1 || o.RepetitionPenalty != 1.1 {
		t.Fatalf("sampler keys not applied: %+v", o)
	}
	if p.AdapterPath != "/a/lora.gguf" {
		t.Fatalf("adapter_path not applied: %q", p.AdapterPath)
	}
	if !reflect.DeepEqual(extra.Ignored, []string{"mystery"}) {
		t.Fatalf("unexpected ignored keys: %v", extra.Ignored)
	}
}

func TestSplitExtraTemplateConfigOverrides(t *testing.T) {
	extra := map[string]json.RawMessage{
		"enable_thinking":      json.RawMessage(`true`),
		"chat_template_config": json.RawMessage(`{"enable_thinking":false}`),
	}
	out := SplitExtra(extra)
	if string(out.Template["enable_thinking"]) != "false" {
		t.Fatalf("chat_template_config did not override: %s", out.Template["enable_thinking"])
	}
	if _, ok := out.Model["chat_template_config"]; !ok {
		t.Fatalf("chat_template_config should be routed to the model group")
	}
}

func TestResolveThinking(t *testing.T) {
	cases := []struct {
		body string
		want bool
	}{
		{`{}`, true},
		{`{"enable_thinking":false}`, false},
		{`{"thinking":false}`, false},
		{`{"thinking":{"type":"disabled"}}`, false},
		{`{"thinking":{"type":"enabled"}}`, true},
		{`{"thinkingConfig":{"includeThoughts":false}}`, false},
		{`{"thinkingConfig":{"thinkingBudget":0}}`, false},
		{`{"thinking_budget":0}`, false},
		{`{"thinking_budget":512}`, true},
		{`{"reasoning_effort":"none"}`, false},
		{`{"reasoning_effort":"high"}`, true},
		{`{"reasoning":false}`, false},
		{`{"reasoning":{"enabled":false}}`, false},
		{`{"reasoning":{"effort":"none"}}`, false},
		{`{"chat_template_config":{"enable_thinking":false}}`, false},
	}
	for _, tc := range cases {
		var kv map[string]json.RawMessage
		if err := json.Unmarshal([]byte(tc.body), &kv); err != nil {
			t.Fatalf("bad case %s: %v", tc.body, err)
		}
		got, err := resolveThinking(SplitExtra(kv).Template)
		if err != nil || got != tc.want {
			t.Fatalf("%s: got %v err=%v want %v", tc.body, got, err, tc.want)
		}
	}
}

func TestParseToolChoice(t *testing.T) {
	tools := `"tools":[{"type":"function","function":{"name":"f"}}]`
	cases := []struct {
		choice   string
		disabled bool
		named    string
		wantErr  bool
	}{
		{`"auto"`, false, "", false},
		{`"required"`, false, "", false},
		{`"none"`, true, "", false},
		{`{"type":"function","function":{"name":"f"}}`, false, "f", false},
		{`{"type":"function","function":{"name":"g"}}`, false, "", true},
		{`"sometimes"`, false, "", true},
		{`42`, false, "", true},
	}
	for _, tc := range cases {
		body := `{"model":"m","messages":[{"role":"user","content":"x"}],` + tools + `,"tool_choice":` + tc.choice + `}`
		p, _, err := ParseRequest(request(t, body))
		if tc.wantErr {
			if !textgen.IsValidation(err) {
				t.Fatalf("%s: expected validation error, got %v", tc.choice, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tc.choice, err)
		}
		if p.ToolsDisabled != tc.disabled || p.Template.ToolChoice != tc.named {
			t.Fatalf("%s: disabled=%v named=%q", tc.choice, p.ToolsDisabled, p.Template.ToolChoice)
		}
	}
}

func TestParseRequestRejects(t *testing.T) {
	cases := map[string]string{
		"zero max_tokens":  `{"model":"m","messages":[{"role":"user","content":"x"}],"max_tokens":0}`,
		"bad logit key":    `{"model":"m","messages":[{"role":"user","content":"x"}],"logit_bias":{"abc":1}}`,
		"schema missing":   `{"model":"m","messages":[{"role":"user","content":"x"}],"response_format":{"type":"json_schema","json_schema":{"name":"x"}}}`,
		"format unknown":   `{"model":"m","messages":[{"role":"user","content":"x"}],"response_format":{"type":"yaml"}}`,
		"tool type":        `{"model":"m","messages":[{"role":"user","content":"x"}],"tools":[{"type":"retrieval","function":{"name":"f"}}]}`,
		"top_k string":     `{"model":"m","messages":[{"role":"user","content":"x"}],"top_k":"many"}`,
		"negative top_k":   `{"model":"m","messages":[{"role":"user","content":"x"}],"top_k":-1}`,
		"temperature high": `{"model":"m","messages":[{"role":"user","content":"x"}],"temperature":3}`,
		"adapter type":     `{"model":"m","messages":[{"role":"user","content":"x"}],"adapter_path":5}`,
		"unnamed call":     `{"model":"m","messages":[{"role":"assistant","content":"","tool_calls":[{"id":"c","type":"function","function":{"name":"","arguments":"{}"}}]}]}`,
	}
	for name, body := range cases {
		if _, _, err := ParseRequest(request(t, body)); !textgen.IsValidation(err) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestParseRequestJSONSchema(t *testing.T) {
	p, _, err := ParseRequest(request(t, `{"model":"m","messages":[{"role":"user","content":"x"}],
		"response_format":{"type":"json_schema","json_schema":{"name":"s","schema":{"type":"object","properties":{"a":{"type":"integer"}}}}}}`))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(p.Options.JSONSchema, &schema); err != nil || schema["type"] != "object" {
		t.Fatalf("schema not carried: %s", p.Options.JSONSchema)
	}
}
