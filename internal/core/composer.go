package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/docstack/pdfchat/internal/store"
	"github.com/docstack/pdfchat/internal/vectorstore"
)

const answerSystemInstruction = "You answer questions about a single uploaded document. " +
	"Use only the provided context passages to answer. " +
	"Quote the exact text from the context for key claims. " +
	"Be very careful about geographical and factual information - only use information " +
	"that is explicitly stated in the context. " +
	"If the answer is not in the provided context, say that you don't know; " +
	"do not try to make up an answer."

// Answer is a grounded response together with the passages that were
// supplied to the generation service, kept for audit and debugging.
type Answer struct {
	Text     string                `json:"text"`
	Passages []vectorstore.Passage `json:"passages"`
}

// Composer turns retrieved passages and conversation history into one
// grounded generation request. Grounding is a prompting contract: the system
// instruction pins the model to the supplied context, and correctness is
// checked behaviorally, not structurally.
type Composer struct {
	generator Generator
}

func NewComposer(generator Generator) *Composer {
	return &Composer{generator: generator}
}

// Compose issues a single generation request and returns the answer with the
// passage set it was given. Failures wrap ErrGeneration and are not retried.
func (c *Composer) Compose(ctx context.Context, question string, passages []vectorstore.Passage, history []store.Message) (Answer, error) {
	text, err := c.generator.Generate(ctx, answerSystemInstruction, answerPrompt(question, passages, history))
	if err != nil {
		return Answer{}, fmt.Errorf("composing answer: %w: %w", ErrGeneration, err)
	}
	return Answer{Text: text, Passages: passages}, nil
}

// ComposeStream is the streaming variant. Tokens flow one way to the caller;
// the caller is responsible for persisting the final answer only after the
// stream has been fully consumed.
func (c *Composer) ComposeStream(ctx context.Context, question string, passages []vectorstore.Passage, history []store.Message) (<-chan StreamToken, error) {
	stream, err := c.generator.GenerateStream(ctx, answerSystemInstruction, answerPrompt(question, passages, history))
	if err != nil {
		return nil, fmt.Errorf("composing answer stream: %w: %w", ErrGeneration, err)
	}
	return stream, nil
}

func answerPrompt(question string, passages []vectorstore.Passage, history []store.Message) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	for i, p := range passages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p.Text)
	}
	sb.WriteString("\n\nChat History:\n")
	sb.WriteString(formatHistory(history))
	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\nHelpful Answer:")
	return sb.String()
}
