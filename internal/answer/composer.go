// Package answer turns a retrieval result into a grounded answer with
// source attributions.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"docbrain/internal/vector"
)

// Status tags the three expected outcomes of composition. "No relevant
// content" is a frequent, valid result, not an exception, so it gets its
// own tag instead of an error.
type Status int

const (
	StatusAnswered Status = iota
	StatusNoResult
	StatusFailed
)

// Answer is constructed per request and never persisted by the core.
// Citations list the source urls of chunks actually used in the prompt, in
// first-use order, de-duplicated. On StatusFailed, Citations still carries
// the successfully retrieved sources so that work is not discarded.
type Answer struct {
	Status    Status
	Text      string
	Citations []string
	Err       error
}

type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

type Composer struct {
	generator       Generator
	maxContextChars int
}

func NewComposer(generator Generator, maxContextChars int) *Composer {
	if maxContextChars < 1 {
		maxContextChars = 3000
	}
	return &Composer{generator: generator, maxContextChars: maxContextChars}
}

const noResultText = "I don't have enough information in the indexed documentation to answer that question."

const failureText = "Answer generation failed. The sources listed were retrieved successfully; please retry."

// Compose assembles a bounded prompt from the top-ranked hits and runs one
// generation call. Empty hits short-circuit to a direct "insufficient
// information" answer without paying for a call that cannot be grounded.
func (c *Composer) Compose(ctx context.Context, question string, hits []vector.Hit, maxTokens int) Answer {
	if len(hits) == 0 {
		return Answer{Status: StatusNoResult, Text: noResultText}
	}

	contextBlock, citations := c.assembleContext(hits)
	prompt := buildPrompt(question, contextBlock)

	text, err := c.generator.Generate(ctx, prompt, maxTokens)
	if err != nil {
		slog.ErrorContext(ctx, "answer generation failed", "error", err, "citations", len(citations))
		return Answer{Status: StatusFailed, Text: failureText, Citations: citations, Err: err}
	}

	return Answer{Status: StatusAnswered, Text: strings.TrimSpace(text), Citations: citations}
}

// assembleContext greedily takes hits in rank order until the character
// budget is exhausted. The chunk that overflows the budget is included as
// a truncated prefix rather than dropped, and still earns its citation;
// nothing is taken after it.
func (c *Composer) assembleContext(hits []vector.Hit) (string, []string) {
	var (
		blocks    []string
		citations []string
		seen      = map[string]bool{}
		used      = 0
	)

	for _, h := range hits {
		chunkText := h.Text
		truncated := false
		if used+len(chunkText) > c.maxContextChars {
			remaining := c.maxContextChars - used
			if remaining <= 0 {
				break
			}
			chunkText = truncateRunes(chunkText, remaining)
			if chunkText == "" {
				break
			}
			truncated = true
		}

		blocks = append(blocks, fmt.Sprintf("Source: %s\nContent: %s", h.SourceURL, chunkText))
		used += len(chunkText)

		if !seen[h.SourceURL] {
			seen[h.SourceURL] = true
			citations = append(citations, h.SourceURL)
		}

		if truncated {
			break
		}
	}

	return strings.Join(blocks, "\n\n"), citations
}

// truncateRunes cuts s to at most n bytes without splitting a multi-byte
// rune, backing off to the previous rune boundary.
func truncateRunes(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func buildPrompt(question, contextBlock string) string {
	var b strings.Builder
	b.WriteString("You are an assistant answering questions about indexed documentation.\n")
	b.WriteString("Use only the provided context. If the context does not contain the answer, say so clearly.\n")
	b.WriteString("Cite sources by referencing the provided URLs.\n\n")
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nContext:\n")
	b.WriteString(contextBlock)
	b.WriteString("\n\nAnswer based only on the context above.")
	return b.String()
}
