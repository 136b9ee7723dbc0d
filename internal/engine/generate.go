package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// qaPromptTemplate instructs the model to answer briefly and defer to the
// clinic when the retrieved context falls short.
const qaPromptTemplate = `You are a helpful medical clinic assistant. Answer questions concisely and directly.

Context:
%s

Question: %s

Instructions:
- Keep answers brief and to the point (2-4 sentences maximum)
- Use bullet points for lists or multiple items
- If context is insufficient, give a short response directing them to contact the clinic
- Be friendly but concise , always professional redirect to clinic for complex queries

Answer:`

// GenkitGenerator implements Generator on top of a Genkit model.
type GenkitGenerator struct {
	g     *genkit.Genkit
	model string
}

// NewGenkitGenerator creates a generator bound to a fully qualified model
// name, e.g. "googleai/gemini-2.0-flash".
func NewGenkitGenerator(g *genkit.Genkit, model string) *GenkitGenerator {
	return &GenkitGenerator{g: g, model: model}
}

// Answer generates a grounded answer from the retrieved context block and
// the (possibly contextualized) question.
func (gg *GenkitGenerator) Answer(ctx context.Context, contextText, question string) (string, error) {
	resp, err := genkit.Generate(ctx, gg.g,
		ai.WithModelName(gg.model),
		ai.WithPrompt(qaPromptTemplate, contextText, question),
	)
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("model %s returned an empty answer", gg.model)
	}
	return text, nil
}
