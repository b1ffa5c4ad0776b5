package llamaserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"omnid/internal/engine"
)

type tokenizeRequest struct {
	Content      string `json:"content"`
	AddSpecial   bool   `json:"add_special"`
	ParseSpecial bool   `json:"parse_special"`
}

type tokenizeResponse struct {
	Tokens []engine.Token `json:"tokens"`
}

type detokenizeRequest struct {
	Tokens []engine.Token `json:"tokens"`
}

type detokenizeResponse struct {
	Content string `json:"content"`
}

// completionRequest is the body of POST /completion.
type completionRequest struct {
	Prompt           []engine.Token  `json:"prompt"`
	NPredict         int             `json:"n_predict"`
	Temperature      float64         `json:"temperature"`
	TopP             float64         `json:"top_p"`
	TopK             int             `json:"top_k"`
	MinP             float64         `json:"min_p"`
	MinKeep          int             `json:"min_keep,omitempty"`
	XTCProbability   float64         `json:"xtc_probability,omitempty"`
	XTCThreshold     float64         `json:"xtc_threshold,omitempty"`
	RepeatPenalty    float64         `json:"repeat_penalty,omitempty"`
	FrequencyPenalty float64         `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64         `json:"presence_penalty,omitempty"`
	Seed             int64           `json:"seed,omitempty"`
	LogitBias        [][2]float64    `json:"logit_bias,omitempty"`
	JSONSchema       json.RawMessage `json:"json_schema,omitempty"`
	NProbs           int             `json:"n_probs,omitempty"`
	Stream           bool            `json:"stream"`
	CachePrompt      bool            `json:"cache_prompt"`
	IDSlot           int             `json:"id_slot"`
	ReturnTokens     bool            `json:"return_tokens"`
}

type tokenProb struct {
	ID      engine.Token `json:"id"`
	Token   string       `json:"token"`
	Logprob float64      `json:"logprob"`
	Top     []tokenProb  `json:"top_logprobs,omitempty"`
}

// completionEvent is one streamed frame of /completion.
type completionEvent struct {
	Content         string         `json:"content"`
	Tokens          []engine.Token `json:"tokens"`
	Stop            bool           `json:"stop"`
	StopType        string         `json:"stop_type"`
	TokensEvaluated int            `json:"tokens_evaluated"`
	Probs           []tokenProb    `json:"completion_probabilities"`
}

func newCompletionRequest(prompt []engine.Token, o engine.Options, slot int) completionRequest {
	req := completionRequest{
		Prompt:           prompt,
		NPredict:         o.MaxTokens,
		Temperature:      o.Temperature,
		TopP:             o.TopP,
		TopK:             o.TopK,
		MinP:             o.MinP,
		MinKeep:          o.MinKeep,
		XTCProbability:   o.XTCProbability,
		XTCThreshold:     o.XTCThreshold,
		RepeatPenalty:    o.RepetitionPenalty,
		FrequencyPenalty: o.FrequencyPenalty,
		PresencePenalty:  o.PresencePenalty,
		Seed:             o.Seed,
		JSONSchema:       o.JSONSchema,
		NProbs:           o.TopLogprobs,
		Stream:           true,
		CachePrompt:      true,
		IDSlot:           slot,
		ReturnTokens:     true,
	}
	if req.NPredict <= 0 {
		req.NPredict = -1
	}
	for tok, bias := range o.LogitBias {
		req.LogitBias = append(req.LogitBias, [2]float64{float64(tok), bias})
	}
	return req
}

// postJSON sends body to path and decodes a JSON reply into out.
func postJSON(ctx context.Context, client *http.Client, baseURL, path string, body, out any) error {
	resp, err := post(ctx, client, baseURL, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("llama-server %s: decode: %w", path, err)
	}
	return nil
}

func post(ctx context.Context, client *http.Client, baseURL, path string, body any) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("llama-server %s: %s: %s", path, resp.Status, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// readEvents decodes "data:" frames from an event stream and passes them to
// fn until fn returns false, the stream ends or a [DONE] frame arrives.
func readEvents(ctx context.Context, r io.Reader, fn func(completionEvent) (bool, error)) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if l := strings.TrimSpace(line); strings.HasPrefix(strings.ToLower(l), "data:") {
			data := strings.TrimSpace(l[len("data:"):])
			if data == "[DONE]" {
				return nil
			}
			var ev completionEvent
			if e := json.Unmarshal([]byte(data), &ev); e != nil {
				return fmt.Errorf("llama-server stream: %w", e)
			}
			more, ferr := fn(ev)
			if ferr != nil || !more {
				return ferr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}
