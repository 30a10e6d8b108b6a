package compose

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/calai/calai-go/internal/budget"
)

// systemPrompt keeps the model on the evidence. Answers must come from the
// supplied passages and events only; the grounding evaluator downstream
// penalizes unsupported calendar claims.
const systemPrompt = `You are a calendar assistant. Answer the user's question using ONLY the
evidence provided below. The evidence consists of knowledge-base passages and
calendar events retrieved for this question.

Rules:
- Never invent events, dates, or times that are not in the evidence
- If the evidence does not answer the question, say you do not have enough
  information
- Keep the answer short and factual
- When citing an event, include its title and start time exactly as given`

// LLMStrategy composes the answer with a chat model. Any model failure is
// returned as an error so the chain falls through to the deterministic
// summary.
type LLMStrategy struct {
	model            model.ToolCallingChatModel
	maxContextTokens int
}

// NewLLMStrategy wraps a chat model. maxContextTokens <= 0 uses the default
// budget.
func NewLLMStrategy(m model.ToolCallingChatModel, maxContextTokens int) *LLMStrategy {
	if maxContextTokens <= 0 {
		maxContextTokens = budget.DefaultMaxContextTokens
	}
	return &LLMStrategy{model: m, maxContextTokens: maxContextTokens}
}

// Name implements Strategy.
func (s *LLMStrategy) Name() string { return "llm" }

// Compose implements Strategy.
func (s *LLMStrategy) Compose(ctx context.Context, in Input) (string, error) {
	if s.model == nil {
		return "", fmt.Errorf("compose: no chat model configured")
	}

	fixed := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(in.Query),
	}
	docs := evidence(in)
	docs = budget.TrimEvidence(fixed, docs, s.maxContextTokens)

	var b strings.Builder
	b.WriteString("Evidence:\n")
	if len(docs) == 0 {
		b.WriteString("(none)\n")
	}
	for _, d := range docs {
		fmt.Fprintf(&b, "- %s\n", d)
	}
	fmt.Fprintf(&b, "\nQuestion: %s", in.Query)

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(b.String()),
	}
	out, err := s.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("compose: model generate: %w", err)
	}
	answer := strings.TrimSpace(out.Content)
	if answer == "" {
		return "", fmt.Errorf("compose: model returned empty answer")
	}
	return answer, nil
}

// evidence renders the retrieval output as flat strings, best hits first.
func evidence(in Input) []string {
	docs := make([]string, 0, len(in.EventHits)+len(in.KBHits))
	for _, h := range in.EventHits {
		docs = append(docs, "calendar event: "+h.Text)
	}
	for _, h := range in.KBHits {
		docs = append(docs, "knowledge base: "+h.Text)
	}
	return docs
}
