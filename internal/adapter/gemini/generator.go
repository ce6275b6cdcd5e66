package gemini

import (
	"context"
	"time"

	"github.com/google/generative-ai-go/genai"

	"docbrain/internal/fault"
)

type Generator struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewGenerator(client *genai.Client, model string, timeout time.Duration) *Generator {
	return &Generator{client: client, model: model, timeout: timeout}
}

// Generate runs a single completion for the prompt, bounded by maxTokens.
// A fresh model handle is taken per call so per-request generation config
// never races across concurrent queries.
func (g *Generator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	model := g.client.GenerativeModel(g.model)
	if maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}
	model.SetTemperature(0.3)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fault.New(fault.KindIntegrity, "generation returned no candidates")
	}

	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			out += string(t)
		}
	}
	return out, nil
}
