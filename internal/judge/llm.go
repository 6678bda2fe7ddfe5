package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// llmBackend abstracts the two selectable chat-completion clients so
// LLMJudge doesn't need to branch on provider at call time.
type llmBackend interface {
	complete(ctx context.Context, prompt string) (string, error)
}

type openAIBackend struct {
	client *openai.Client
	model  string
}

func (b openAIBackend) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: b.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

type anthropicBackend struct {
	client *anthropic.Client
	model  string
}

func (b anthropicBackend) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return resp.Content[0].Text, nil
}

// NewOpenAIJudge builds an LLM judge backed by an OpenAI-compatible client.
func NewOpenAIJudge(client *openai.Client, model string) *LLMJudge {
	return &LLMJudge{backend: openAIBackend{client: client, model: model}}
}

// NewAnthropicJudge builds an LLM judge backed by Claude.
func NewAnthropicJudge(client *anthropic.Client, model string) *LLMJudge {
	return &LLMJudge{backend: anthropicBackend{client: client, model: model}}
}

// LLMJudge calls an LLM backend with a JSON-only rubric prompt and parses
// the resulting score/rationale verdict.
type LLMJudge struct {
	backend llmBackend
}

type llmVerdict struct {
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

func (j *LLMJudge) Score(ctx context.Context, question, expected, prediction, rubric string) (float64, string, error) {
	if rubric == "" {
		rubric = "Score how well the prediction answers the question given the expected answer."
	}
	prompt := fmt.Sprintf(`You are grading an agent's answer. Respond with ONLY a JSON object of the
form {"score": <float 0..1>, "rationale": "<short reason>"}. No prose, no markdown fences.

Rubric: %s
Question: %s
Expected answer: %s
Prediction: %s
`, rubric, question, expected, prediction)

	raw, err := j.backend.complete(ctx, prompt)
	if err != nil {
		return 0.0, fmt.Sprintf("unable to parse LLM judge response: %v", err), nil
	}
	return parseVerdict(raw)
}

// parseVerdict tolerates a fenced or loosely-formatted JSON object, falling
// back to (0.0, "unable to parse ...") when no verdict can be extracted.
func parseVerdict(raw string) (float64, string, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return 0.0, "unable to parse LLM judge response: no JSON object found", nil
	}

	var v llmVerdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return 0.0, fmt.Sprintf("unable to parse LLM judge response: %v", err), nil
	}
	return clamp01(v.Score), v.Rationale, nil
}
