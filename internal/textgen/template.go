package textgen

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// ChatMessage is one conversation turn as the template sees it.
type ChatMessage struct {
	Role       string
	Content    string
	Name       string
	ToolCalls  []ToolCall
	ToolCallID string
}

// Tool is a function offered to the model.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// TemplateOptions are per-request template switches.
type TemplateOptions struct {
	// EnableThinking toggles reasoning for families that support it.
	EnableThinking bool
	// ToolChoice names a function the model must call, empty for auto.
	ToolChoice string
}

// Template renders a conversation in one model family's prompt format.
type Template struct {
	Family string
	// Grammar is the tool-call encoding the family emits.
	Grammar Grammar
	// Thinking reports whether the family's prompt can open a <think>
	// block itself, leaving the reply to start inside it.
	Thinking bool
	tmpl     *template.Template
}

type turn struct {
	Role    string
	Content string
}

type renderInput struct {
	System      string
	Turns       []turn
	Tools       []string
	ToolsJSON   string
	ThinkingOff bool
}

const hermesToolsPreamble = `# Tools

You may call one or more functions to assist with the user query.

You are provided with function signatures within <tools></tools> XML tags:
<tools>
{{- range .Tools }}
{{ . }}
{{- end }}
</tools>

For each function call, return a json object with function name and arguments within <tool_call></tool_call> XML tags:
<tool_call>
{"name": <function-name>, "arguments": <args-json-object>}
</tool_call>`

var familySources = map[string]string{
	"chatml": `{{- if or .System .Tools }}<|im_start|>system
{{ .System }}{{ if .Tools }}{{ if .System }}

{{ end }}` + hermesToolsPreamble + `{{ end }}<|im_end|>
{{ end }}
{{- range .Turns }}<|im_start|>{{ .Role }}
{{ .Content }}<|im_end|>
{{ end }}<|im_start|>assistant
{{ if .ThinkingOff }}<think>

</think>

{{ end }}`,

	"llama3": `<|begin_of_text|>
{{- if or .System .Tools }}<|start_header_id|>system<|end_header_id|>

{{ .System }}{{ if .Tools }}{{ if .System }}

{{ end }}` + hermesToolsPreamble + `{{ end }}<|eot_id|>
{{- end }}
{{- range .Turns }}<|start_header_id|>{{ .Role }}<|end_header_id|>

{{ .Content }}<|eot_id|>
{{- end }}<|start_header_id|>assistant<|end_header_id|>

`,

	"mistral": `<s>
{{- if .Tools }}[AVAILABLE_TOOLS] {{ .ToolsJSON }}[/AVAILABLE_TOOLS]{{ end }}
{{- range $i, $t := .Turns }}
{{- if eq $t.Role "user" }}[INST] {{ if and (eq $i 0) $.System }}{{ $.System }}

{{ end }}{{ $t.Content }}[/INST]
{{- else if eq $t.Role "tool" }}[TOOL_RESULTS] {{ $t.Content }}[/TOOL_RESULTS]
{{- else }}{{ $t.Content }}</s>
{{- end }}
{{- end }}`,

	"gemma": `<bos>
{{- range $i, $t := .Turns }}<start_of_turn>{{ $t.Role }}
{{ if and (eq $i 0) $.System }}{{ $.System }}

{{ end }}{{ $t.Content }}<end_of_turn>
{{ end }}<start_of_turn>model
`,

	"deepseek": `<｜begin▁of▁sentence｜>{{ .System }}
{{- range .Turns }}
{{- if eq .Role "user" }}<｜User｜>{{ .Content }}
{{- else if eq .Role "tool" }}<｜tool▁output▁begin｜>{{ .Content }}<｜tool▁output▁end｜>
{{- else }}<｜Assistant｜>{{ .Content }}<｜end▁of▁sentence｜>
{{- end }}
{{- end }}<｜Assistant｜><think>`,
}

var templates = func() map[string]*Template {
	out := make(map[string]*Template, len(familySources))
	for name, src := range familySources {
		t := &Template{Family: name, Grammar: GrammarHermes}
		switch name {
		case "mistral":
			t.Grammar = GrammarMistral
		case "chatml", "deepseek":
			t.Thinking = true
		}
		t.tmpl = template.Must(template.New(name).Parse(src))
		out[name] = t
	}
	return out
}()

// TemplateFor returns the template for a model family, defaulting to chatml.
func TemplateFor(family string) *Template {
	if t, ok := templates[FamilyTemplate(family)]; ok {
		return t
	}
	return templates["chatml"]
}

// FamilyTemplate maps a model family name to its template name.
func FamilyTemplate(family string) string {
	f := strings.ToLower(family)
	switch {
	case strings.Contains(f, "deepseek"):
		return "deepseek"
	case strings.Contains(f, "llama"):
		return "llama3"
	case strings.Contains(f, "mistral"), strings.Contains(f, "mixtral"):
		return "mistral"
	case strings.Contains(f, "gemma"):
		return "gemma"
	default:
		return "chatml"
	}
}

// Render produces the prompt text, ending where the assistant reply begins.
func (t *Template) Render(msgs []ChatMessage, tools []Tool, opts TemplateOptions) (string, error) {
	in := renderInput{ThinkingOff: t.Family == "chatml" && !opts.EnableThinking}
	for _, tl := range tools {
		b, err := json.Marshal(map[string]any{"type": "function", "function": tl})
		if err != nil {
			return "", fmt.Errorf("encode tool %q: %w", tl.Name, err)
		}
		in.Tools = append(in.Tools, string(b))
	}
	if len(in.Tools) > 0 {
		in.ToolsJSON = "[" + strings.Join(in.Tools, ", ") + "]"
	}
	var system []string
	for _, m := range msgs {
		switch m.Role {
		case "system", "developer":
			system = append(system, m.Content)
			continue
		}
		in.Turns = append(in.Turns, t.turnFor(m))
	}
	in.System = strings.Join(system, "\n\n")
	var b strings.Builder
	if err := t.tmpl.Execute(&b, in); err != nil {
		return "", fmt.Errorf("render %s template: %w", t.Family, err)
	}
	return b.String(), nil
}

func (t *Template) turnFor(m ChatMessage) turn {
	switch m.Role {
	case "assistant":
		role := "assistant"
		if t.Family == "gemma" {
			role = "model"
		}
		return turn{Role: role, Content: m.Content + t.encodeCalls(m.ToolCalls)}
	case "tool":
		switch t.Family {
		case "chatml":
			return turn{Role: "user", Content: "<tool_response>\n" + m.Content + "\n</tool_response>"}
		case "llama3":
			return turn{Role: "ipython", Content: m.Content}
		case "gemma":
			return turn{Role: "user", Content: m.Content}
		}
		return turn{Role: "tool", Content: m.Content}
	default:
		return turn{Role: "user", Content: m.Content}
	}
}

func (t *Template) encodeCalls(calls []ToolCall) string {
	if len(calls) == 0 {
		return ""
	}
	if t.Grammar == GrammarMistral {
		parts := make([]string, 0, len(calls))
		for _, c := range calls {
			name, _ := json.Marshal(c.Name)
			parts = append(parts, `{"name": `+string(name)+`, "arguments": `+normalizeArguments(json.RawMessage(c.Arguments))+`}`)
		}
		return mistralMarker + " [" + strings.Join(parts, ", ") + "]"
	}
	var b strings.Builder
	for _, c := range calls {
		name, _ := json.Marshal(c.Name)
		b.WriteString("\n" + hermesOpen + "\n{\"name\": " + string(name) + ", \"arguments\": " + normalizeArguments(json.RawMessage(c.Arguments)) + "}\n" + hermesClose)
	}
	return b.String()
}
