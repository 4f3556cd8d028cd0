// Package prompt assembles generation prompts from retrieved context, the
// conversation so far and the raw user query, and builds the second-round
// self-critique prompt of the fixed two-round refinement protocol.
package prompt

import (
	"fmt"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/summarizer"
)

// SystemPrompt is the first turn of every generation request.
const SystemPrompt = "You are a helpful AI assistant that provides accurate and relevant information based on the given context."

const instructions = "You are an AI assistant tasked with providing accurate and helpful responses based on the given context. " +
	"Your goal is to synthesize information from the provided context and answer the user's query in a clear and concise manner. " +
	"If the context doesn't contain enough information to answer the query, say so honestly."

const defaultContextBudget = 6000

// Builder renders prompts. When the joined context exceeds the character
// budget it is compressed with the frequency summarizer so prompt size stays
// bounded.
type Builder struct {
	contextBudget int
	compressor    *summarizer.Frequency
}

// NewBuilder creates a Builder. A non-positive budget selects the default.
func NewBuilder(contextBudget int) *Builder {
	if contextBudget <= 0 {
		contextBudget = defaultContextBudget
	}
	return &Builder{
		contextBudget: contextBudget,
		compressor:    summarizer.NewFrequency(),
	}
}

// Build interleaves instructions, retrieved context, conversation history and
// the raw user query into a single generation prompt.
func (b *Builder) Build(query string, chunks []domain.RankedResult, history []domain.Message) string {
	context := b.renderContext(chunks)
	conversation := renderConversation(history)

	var sb strings.Builder
	sb.WriteString(instructions)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(context)
	sb.WriteString("\n\nConversation History:\n")
	sb.WriteString(conversation)
	sb.WriteString("\n\nUser Query: ")
	sb.WriteString(query)
	sb.WriteString("\n\nAssistant: Based on the provided context and conversation history, I can answer your query as follows:\n")
	return sb.String()
}

// Refine builds the second-round prompt that asks the generator to review its
// draft against the same query and context.
func (b *Builder) Refine(draft, query string, chunks []domain.RankedResult) string {
	var sb strings.Builder
	sb.WriteString("Your previous response:\n")
	sb.WriteString(draft)
	sb.WriteString("\n\nPlease review your response and consider the following:\n")
	sb.WriteString("1. Does it directly address the user's query?\n")
	sb.WriteString("2. Is it supported by the given context?\n")
	sb.WriteString("3. Is it concise and clear?\n")
	sb.WriteString("\nContext:\n")
	sb.WriteString(b.renderContext(chunks))
	sb.WriteString("\n\nIf necessary, provide a refined response that better addresses these points.\n")
	sb.WriteString("\nUser Query: ")
	sb.WriteString(query)
	sb.WriteString("\n\nRefined Response:\n")
	return sb.String()
}

func (b *Builder) renderContext(chunks []domain.RankedResult) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.ChunkText
	}
	context := strings.Join(texts, "\n\n")
	if len(context) > b.contextBudget {
		context = b.compressor.Summarize(context, b.contextBudget/200)
	}
	return context
}

func renderConversation(history []domain.Message) string {
	lines := make([]string, len(history))
	for i, msg := range history {
		lines[i] = fmt.Sprintf("%s: %s", capitalize(string(msg.Role)), msg.Content)
	}
	return strings.Join(lines, "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
