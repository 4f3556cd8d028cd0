// Package pipeline orchestrates ingestion (extract, chunk, embed, persist,
// index) and query-time retrieval (process, embed, search, rank, prompt,
// generate). The metadata store owns the authoritative text and embeddings;
// the vector index is a rebuildable projection kept in lockstep by commit.
package pipeline

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/extract"
	"docqa/internal/metadata"
	"docqa/internal/prompt"
	"docqa/internal/queryproc"
	"docqa/internal/vectorindex"
)

// Pipeline wires the retrieval components together.
type Pipeline struct {
	extractor domain.Extractor
	chunker   *chunker.Chunker
	embedder  domain.Embedder
	store     *metadata.Store
	index     *vectorindex.Flat
	processor *queryproc.Processor
	prompts   *prompt.Builder
	generator domain.Generator
	logger    *slog.Logger
	indexPath string
}

// Config holds the pipeline's collaborators and settings.
type Config struct {
	Extractor domain.Extractor
	Chunker   *chunker.Chunker
	Embedder  domain.Embedder
	Store     *metadata.Store
	Index     *vectorindex.Flat
	Processor *queryproc.Processor
	Prompts   *prompt.Builder
	Generator domain.Generator
	Logger    *slog.Logger
	IndexPath string // index file rewritten wholesale after each batch; empty disables persistence
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor: cfg.Extractor,
		chunker:   cfg.Chunker,
		embedder:  cfg.Embedder,
		store:     cfg.Store,
		index:     cfg.Index,
		processor: cfg.Processor,
		prompts:   cfg.Prompts,
		generator: cfg.Generator,
		logger:    logger,
		indexPath: cfg.IndexPath,
	}
}

// IngestOptions tune one ingestion batch.
type IngestOptions struct {
	// KeywordFilter skips documents whose extracted text does not contain the
	// keyword (case-insensitive). Empty disables the filter.
	KeywordFilter string
	// CleanText normalizes extracted text before chunking.
	CleanText bool
}

// Ingest runs the per-document state machine Extracted -> Chunked -> Embedded
// -> Persisted over each path. A failing document is logged and counted
// without aborting the batch; an embedding-provider failure aborts the batch
// and is surfaced, since continuing would build an index with missing vectors.
// The index file is rewritten wholesale after the batch.
func (p *Pipeline) Ingest(paths []string, opts IngestOptions) (domain.IngestSummary, error) {
	var summary domain.IngestSummary
	for _, path := range paths {
		ok, err := p.ingestOne(path, opts)
		if err != nil {
			// Documents committed before the abort are reported as indexed,
			// so they must reach the persisted index too.
			if p.indexPath != "" {
				if saveErr := p.index.Save(p.indexPath); saveErr != nil {
					p.logger.Error("persisting index after aborted batch failed", "error", saveErr)
				}
			}
			return summary, err
		}
		if ok {
			summary.Indexed++
		} else {
			summary.Failed++
		}
	}
	if p.indexPath != "" {
		if err := p.index.Save(p.indexPath); err != nil {
			return summary, fmt.Errorf("persisting index: %w", err)
		}
	}
	p.logger.Info("ingestion batch complete",
		"indexed", summary.Indexed,
		"failed", summary.Failed,
	)
	return summary, nil
}

// ingestOne returns (false, nil) for per-document failures and a non-nil
// error only for batch-aborting provider failures.
func (p *Pipeline) ingestOne(path string, opts IngestOptions) (bool, error) {
	filename := filepath.Base(path)

	text, pages, err := p.extractor.Extract(path)
	if err != nil {
		p.logger.Warn("extraction failed, skipping document", "file", filename, "error", err)
		return false, nil
	}
	if opts.KeywordFilter != "" &&
		!strings.Contains(strings.ToLower(text), strings.ToLower(opts.KeywordFilter)) {
		p.logger.Info("document does not match keyword filter, skipping", "file", filename, "keyword", opts.KeywordFilter)
		return false, nil
	}
	if opts.CleanText {
		text = extract.Clean(text)
	}

	chunks := p.chunker.Chunk(text)
	if len(chunks) == 0 {
		p.logger.Warn("no text extracted, skipping document", "file", filename)
		return false, nil
	}

	embeddings, err := p.embedder.EmbedBatch(chunks)
	if err != nil {
		return false, fmt.Errorf("embedding %s: %w", filename, err)
	}
	if len(embeddings) != len(chunks) {
		p.logger.Warn("chunk/embedding count mismatch, skipping persistence",
			"file", filename, "chunks", len(chunks), "embeddings", len(embeddings))
		return false, nil
	}

	if err := p.commit(filename, text, pages, opts.CleanText, chunks, embeddings); err != nil {
		p.logger.Error("commit failed", "file", filename, "error", err)
		return false, nil
	}
	p.logger.Info("document indexed", "file", filename, "pages", pages, "chunks", len(chunks))
	return true, nil
}

// commit sequences the two writes that must stay in lockstep: the metadata
// row and the index append. There is no rollback across the two; if the index
// append fails after the row is written the stores have diverged and
// RebuildIndex is the recovery path.
func (p *Pipeline) commit(filename, text string, pages int, cleaned bool, chunks []string, embeddings [][]float64) error {
	doc := &domain.Document{
		Filename:        filename,
		ExtractedText:   text,
		PageCount:       pages,
		Cleaned:         cleaned,
		ChunkEmbeddings: embeddings,
	}
	if err := p.store.Insert(doc); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	if err := p.index.Add(embeddings, chunks); err != nil {
		p.logger.Error("metadata store and vector index have diverged; run an index rebuild",
			"file", filename, "error", err)
		return fmt.Errorf("appending to index: %w", err)
	}
	return nil
}

// RebuildIndex regenerates the vector index from the metadata store's
// embeddings, re-deriving chunk payloads from the stored text. This is the
// documented recovery path after the index and metadata diverge or the index
// file is lost. Documents whose stored embeddings no longer match the current
// chunking configuration are skipped with a warning.
func (p *Pipeline) RebuildIndex() error {
	docs, err := p.store.All()
	if err != nil {
		return fmt.Errorf("reading metadata store: %w", err)
	}
	fresh, err := vectorindex.NewFlat(p.embedder.Dimension())
	if err != nil {
		return err
	}
	restored := 0
	for _, doc := range docs {
		chunks := p.chunker.Chunk(doc.ExtractedText)
		if len(chunks) != len(doc.ChunkEmbeddings) {
			p.logger.Warn("stored embeddings do not match current chunking, skipping document",
				"file", doc.Filename, "chunks", len(chunks), "embeddings", len(doc.ChunkEmbeddings))
			continue
		}
		if err := fresh.Add(doc.ChunkEmbeddings, chunks); err != nil {
			return fmt.Errorf("rebuilding index for %s: %w", doc.Filename, err)
		}
		restored++
	}
	p.index = fresh
	if p.indexPath != "" {
		if err := p.index.Save(p.indexPath); err != nil {
			return fmt.Errorf("persisting rebuilt index: %w", err)
		}
	}
	p.logger.Info("index rebuilt from metadata store", "documents", restored, "entries", p.index.Len())
	return nil
}

// LoadIndex replaces the in-memory index with the persisted one.
func (p *Pipeline) LoadIndex() error {
	if p.indexPath == "" {
		return nil
	}
	return p.index.Load(p.indexPath)
}

// TopChunks returns the k most relevant chunks for the query: the processed
// query is embedded, the index pre-filters by distance, and results are
// re-ranked by composite relevance. History context and synonym expansion feed
// only the embedding; the lexical overlap is scored against the query as the
// user asked it, so expansion tokens never dilute the overlap denominator.
func (p *Pipeline) TopChunks(query string, history []domain.Message, k int) ([]domain.RankedResult, error) {
	processed := p.processor.Process(query, history)
	vec, err := p.embedder.Embed(processed)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	hits, err := p.index.Search(vec, k)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	ranked := p.processor.Rank(query, hits)
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

// Answer runs the full query flow and the fixed two-round refinement
// protocol: draft from retrieved context, then one self-critique pass over
// the same context. The ranked sources backing the answer are returned
// alongside it so callers never re-run retrieval to display them. A
// generation transport failure fails the whole query.
func (p *Pipeline) Answer(query string, history []domain.Message, k int) (string, []domain.RankedResult, error) {
	top, err := p.TopChunks(query, history, k)
	if err != nil {
		return "", nil, err
	}

	built := p.prompts.Build(query, top, history)
	messages := make([]domain.Message, 0, len(history)+2)
	messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: prompt.SystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: built})

	draft, err := p.generator.Chat(messages)
	if err != nil {
		return "", nil, fmt.Errorf("generating answer: %w", err)
	}

	refined, err := p.generator.Chat([]domain.Message{
		{Role: domain.RoleSystem, Content: prompt.SystemPrompt},
		{Role: domain.RoleUser, Content: p.prompts.Refine(draft, query, top)},
	})
	if err != nil {
		return "", nil, fmt.Errorf("refining answer: %w", err)
	}
	return refined, top, nil
}
