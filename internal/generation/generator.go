package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/suPer8Hu/tenx-cards/internal/ai"
)

type CardCandidate struct {
	Front string  `json:"front"`
	Back  string  `json:"back"`
	Hint  *string `json:"hint,omitempty"`
}

type Output struct {
	Cards      []CardCandidate
	Model      string
	TokensUsed int
}

// CardGenerator turns sanitized source text into card candidates.
type CardGenerator interface {
	Generate(ctx context.Context, sourceText string) (*Output, error)
}

const systemPrompt = `You are an expert educational content creator specializing in flashcards.

Your task is to generate EXACTLY 20 flashcards from the provided source text.

Guidelines:
1. Create exactly 20 flashcards - no more, no less
2. Each flashcard should focus on a single concept or fact
3. Front: A clear, concise question or prompt (max 200 characters)
4. Back: A complete, accurate answer (max 500 characters)
5. Hint (optional): A helpful clue without giving away the answer (max 200 characters)
6. Use simple, clear language and avoid ambiguity
7. Cover the most important concepts from the source text

Return ONLY a JSON object with this structure:
{
  "cards": [
    {
      "front": "Question or prompt",
      "back": "Complete answer",
      "hint": "Optional hint"
    }
  ]
}`

// AIGenerator asks a chat provider for cards.
type AIGenerator struct {
	Provider    ai.Provider
	Temperature float64
	MaxTokens   int
}

func NewAIGenerator(p ai.Provider, temperature float64, maxTokens int) *AIGenerator {
	return &AIGenerator{Provider: p, Temperature: temperature, MaxTokens: maxTokens}
}

func (g *AIGenerator) Generate(ctx context.Context, sourceText string) (*Output, error) {
	msgs := []ai.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("Generate exactly %d flashcards from this text:\n\n<source-text>\n%s\n</source-text>", MaxCards, sourceText)},
	}

	opts := []ai.ChatOption{ai.WithTemperature(g.Temperature), ai.WithJSONResponse()}
	if g.MaxTokens > 0 {
		opts = append(opts, ai.WithMaxTokens(g.MaxTokens))
	}

	res, err := g.Provider.Chat(ctx, msgs, opts...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &GenerationError{Code: CodeTimeoutExceeded, Err: fmt.Errorf("ai request timed out: %w", err)}
		}
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, &GenerationError{Code: CodeUnknown, Err: fmt.Errorf("ai request cancelled: %w", err)}
		}
		return nil, &GenerationError{Code: CodeOpenRouter, Err: fmt.Errorf("ai request failed: %w", err)}
	}

	cards, err := ParseCards(res.Content)
	if err != nil {
		return nil, err
	}
	return &Output{Cards: cards, Model: res.Model, TokensUsed: res.TokensUsed}, nil
}

var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

type rawCard struct {
	Front any `json:"front"`
	Back  any `json:"back"`
	Hint  any `json:"hint"`
}

// ParseCards decodes {"cards":[...]} from a model reply, tolerating a
// markdown code fence. Cards without front or back are skipped.
func ParseCards(reply string) ([]CardCandidate, error) {
	text := strings.TrimSpace(reply)
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	var parsed struct {
		Cards *[]rawCard `json:"cards"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, newError(CodeParse, "failed to parse ai response as json: %v", err)
	}
	if parsed.Cards == nil {
		return nil, newError(CodeParse, "ai response missing 'cards' array")
	}

	out := make([]CardCandidate, 0, len(*parsed.Cards))
	for _, c := range *parsed.Cards {
		front, back := stringify(c.Front), stringify(c.Back)
		if front == "" || back == "" {
			continue
		}
		cc := CardCandidate{Front: front, Back: back}
		if h := stringify(c.Hint); h != "" {
			cc.Hint = &h
		}
		out = append(out, cc)
	}
	if len(out) == 0 {
		return nil, newError(CodeParse, "no valid cards found in ai response")
	}
	return out, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// MockGenerator returns 20 deterministic cards derived from the input.
type MockGenerator struct{}

func (MockGenerator) Generate(ctx context.Context, sourceText string) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	preview := sourceText
	if utf8.RuneCountInString(preview) > 50 {
		preview = string([]rune(preview)[:50])
	}
	cards := make([]CardCandidate, 0, MaxCards)
	for i := 1; i <= MaxCards; i++ {
		c := CardCandidate{
			Front: fmt.Sprintf("Question %d about: %s...", i, preview),
			Back:  fmt.Sprintf("Answer %d: This is a mock answer generated from the source text.", i),
		}
		if i%3 == 0 {
			h := fmt.Sprintf("Hint %d: Think about the key concepts", i)
			c.Hint = &h
		}
		cards = append(cards, c)
	}
	return &Output{Cards: cards, Model: "mock-model"}, nil
}

// validateCandidates checks every card; one bad card rejects the batch.
func validateCandidates(cards []CardCandidate) error {
	for i, c := range cards {
		if n := utf8.RuneCountInString(c.Front); n < 1 || n > 200 {
			return newError(CodeValidation, "card %d: front must be 1-200 characters, got %d", i+1, n)
		}
		if n := utf8.RuneCountInString(c.Back); n < 1 || n > 500 {
			return newError(CodeValidation, "card %d: back must be 1-500 characters, got %d", i+1, n)
		}
		if c.Hint != nil {
			if n := utf8.RuneCountInString(*c.Hint); n > 200 {
				return newError(CodeValidation, "card %d: hint must be at most 200 characters, got %d", i+1, n)
			}
		}
	}
	return nil
}
