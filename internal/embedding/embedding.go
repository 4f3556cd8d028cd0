// Package embedding provides text-to-vector backends behind the
// domain.Embedder interface. Backends normalize input identically so that
// Embed(t) equals EmbedBatch([t])[0] for a deterministic backend.
package embedding

import "strings"

// NormalizeText collapses newlines into spaces. Every backend applies it to
// both single and batch inputs.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return text
}
