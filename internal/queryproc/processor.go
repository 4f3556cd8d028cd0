// Package queryproc turns a raw user query into the representation space of
// indexed chunks and scores retrieved chunks for relevance. Lexical processing
// is deliberately rule-based and self-contained: lowercase, tokenize, drop
// stop-words, lemmatize, expand with synonyms.
package queryproc

import (
	"regexp"
	"sort"
	"strings"

	"docqa/internal/domain"
)

const (
	defaultHistoryWindow  = 5
	defaultLexicalWeight  = 0.5
	defaultSemanticWeight = 0.5
)

// Config tunes the processor. Zero values select the defaults. The two
// weights are renormalized so the relevance score stays a convex combination.
type Config struct {
	HistoryWindow  int
	LexicalWeight  float64
	SemanticWeight float64
}

// Processor normalizes queries and computes composite relevance scores.
type Processor struct {
	historyWindow  int
	lexicalWeight  float64
	semanticWeight float64
	tokenPattern   *regexp.Regexp
	stopwords      map[string]struct{}
	synonyms       map[string][]string
}

// New creates a Processor with the given configuration.
func New(cfg Config) *Processor {
	window := cfg.HistoryWindow
	if window <= 0 {
		window = defaultHistoryWindow
	}
	lex, sem := cfg.LexicalWeight, cfg.SemanticWeight
	if lex <= 0 && sem <= 0 {
		lex, sem = defaultLexicalWeight, defaultSemanticWeight
	}
	if lex < 0 {
		lex = 0
	}
	if sem < 0 {
		sem = 0
	}
	total := lex + sem
	return &Processor{
		historyWindow:  window,
		lexicalWeight:  lex / total,
		semanticWeight: sem / total,
		tokenPattern:   regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:      defaultStopwords(),
		synonyms:       defaultSynonyms(),
	}
}

// Preprocess lowercases, tokenizes, strips punctuation and stop-words and
// lemmatizes each surviving token.
func (p *Processor) Preprocess(text string) []string {
	raw := p.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if _, isStop := p.stopwords[tok]; isStop {
			continue
		}
		out = append(out, lemmatize(tok))
	}
	return out
}

// Process contextualizes the query with the last few user turns, preprocesses
// it, expands the token set with lexical synonyms (deduplicated, first-seen
// order) and joins the result into a single string ready for embedding.
func (p *Processor) Process(query string, history []domain.Message) string {
	contextual := query
	if ctx := p.recentUserContext(history); ctx != "" {
		contextual = ctx + " " + query
	}
	tokens := p.Preprocess(contextual)
	seen := make(map[string]struct{}, len(tokens))
	expanded := make([]string, 0, len(tokens))
	add := func(tok string) {
		if _, ok := seen[tok]; ok {
			return
		}
		seen[tok] = struct{}{}
		expanded = append(expanded, tok)
	}
	for _, tok := range tokens {
		add(tok)
		for _, syn := range p.synonyms[tok] {
			add(syn)
		}
	}
	return strings.Join(expanded, " ")
}

// recentUserContext returns the content of the last historyWindow user turns
// in chronological order.
func (p *Processor) recentUserContext(history []domain.Message) string {
	var picked []string
	for i := len(history) - 1; i >= 0 && len(picked) < p.historyWindow; i-- {
		if history[i].Role == domain.RoleUser {
			picked = append(picked, history[i].Content)
		}
	}
	// collected most-recent-first; restore chronological order
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return strings.Join(picked, " ")
}

// RelevanceScore blends lexical token overlap with embedding-space proximity:
// w_lex * overlap + w_sem * 1/(1+distance). A query with no surviving tokens
// contributes zero overlap.
func (p *Processor) RelevanceScore(query, chunk string, distance float64) float64 {
	overlap := p.tokenOverlap(query, chunk)
	proximity := 1.0 / (1.0 + distance)
	return p.lexicalWeight*overlap + p.semanticWeight*proximity
}

func (p *Processor) tokenOverlap(query, chunk string) float64 {
	qTokens := uniqueSet(p.Preprocess(query))
	if len(qTokens) == 0 {
		return 0
	}
	cTokens := uniqueSet(p.Preprocess(chunk))
	inter := 0
	for tok := range qTokens {
		if _, ok := cTokens[tok]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(qTokens))
}

// Rank recomputes the relevance score for each nearest-neighbor hit and sorts
// descending by score. Distance order is only a pre-filter; the final order is
// relevance-driven and may reorder neighbors.
func (p *Processor) Rank(query string, hits []domain.Hit) []domain.RankedResult {
	results := make([]domain.RankedResult, len(hits))
	for i, h := range hits {
		results[i] = domain.RankedResult{
			ChunkText: h.Payload,
			Distance:  h.Distance,
			Score:     p.RelevanceScore(query, h.Payload, h.Distance),
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

func uniqueSet(tokens []string) map[string]struct{} {
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// lemmatize applies a few ordered suffix rules covering common English
// inflections. It is intentionally shallow; both queries and chunks pass
// through the same rules, so consistency matters more than linguistic depth.
func lemmatize(token string) string {
	switch {
	case len(token) > 4 && strings.HasSuffix(token, "ies"):
		return strings.TrimSuffix(token, "ies") + "y"
	case len(token) > 5 && strings.HasSuffix(token, "sses"):
		return strings.TrimSuffix(token, "es")
	case len(token) > 4 && strings.HasSuffix(token, "shes"):
		return strings.TrimSuffix(token, "es")
	case len(token) > 4 && strings.HasSuffix(token, "ches"):
		return strings.TrimSuffix(token, "es")
	case strings.HasSuffix(token, "ss") || strings.HasSuffix(token, "us") || strings.HasSuffix(token, "is"):
		return token
	case len(token) > 3 && strings.HasSuffix(token, "s"):
		return strings.TrimSuffix(token, "s")
	case len(token) > 5 && strings.HasSuffix(token, "ing"):
		return strings.TrimSuffix(token, "ing")
	case len(token) > 4 && strings.HasSuffix(token, "ed"):
		return strings.TrimSuffix(token, "ed")
	default:
		return token
	}
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now", "what", "which", "who", "whom", "how", "when", "where", "why", "do", "does", "did", "have", "has", "had",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// defaultSynonyms is a small lexical expansion table keyed by lemmatized
// token. Expansion broadens recall in embedding space; it is not meant to be a
// thesaurus.
func defaultSynonyms() map[string][]string {
	return map[string][]string{
		"benefit":   {"advantage", "gain"},
		"drawback":  {"disadvantage", "downside"},
		"issue":     {"problem", "concern"},
		"impact":    {"effect", "influence"},
		"goal":      {"objective", "aim"},
		"method":    {"approach", "technique"},
		"result":    {"outcome", "finding"},
		"increase":  {"growth", "rise"},
		"decrease":  {"decline", "reduction"},
		"important": {"significant", "critical"},
		"cost":      {"expense", "price"},
		"risk":      {"hazard", "threat"},
		"cause":     {"reason", "source"},
		"improve":   {"enhance", "strengthen"},
		"company":   {"firm", "organization"},
		"document":  {"report", "paper"},
	}
}
