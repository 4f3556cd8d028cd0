package pipeline

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/embedding/hashing"
	"docqa/internal/metadata"
	"docqa/internal/prompt"
	"docqa/internal/queryproc"
	"docqa/internal/vectorindex"
)

// stubExtractor maps paths to canned text or failure.
type stubExtractor struct {
	texts map[string]string
}

func (s *stubExtractor) Extract(path string) (string, int, error) {
	text, ok := s.texts[filepath.Base(path)]
	if !ok {
		return "", 0, errors.New("unreadable file")
	}
	return text, 1, nil
}

// stubGenerator records the prompts it receives and replies in sequence.
type stubGenerator struct {
	calls   [][]domain.Message
	replies []string
	err     error
}

func (s *stubGenerator) Chat(messages []domain.Message) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.calls = append(s.calls, messages)
	reply := "reply"
	if len(s.replies) > 0 {
		reply = s.replies[0]
		s.replies = s.replies[1:]
	}
	return reply, nil
}

type fixture struct {
	pipeline  *Pipeline
	extractor *stubExtractor
	generator *stubGenerator
	store     *metadata.Store
	indexPath string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := metadata.NewStore(filepath.Join(dir, "extracts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	emb := hashing.NewEmbedder(64)
	idx, err := vectorindex.NewFlat(emb.Dimension())
	require.NoError(t, err)
	ch, err := chunker.New(200, 40)
	require.NoError(t, err)

	ext := &stubExtractor{texts: map[string]string{}}
	gen := &stubGenerator{}
	indexPath := filepath.Join(dir, "index.bin")

	p := New(Config{
		Extractor: ext,
		Chunker:   ch,
		Embedder:  emb,
		Store:     store,
		Index:     idx,
		Processor: queryproc.New(queryproc.Config{}),
		Prompts:   prompt.NewBuilder(0),
		Generator: gen,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		IndexPath: indexPath,
	})
	return &fixture{pipeline: p, extractor: ext, generator: gen, store: store, indexPath: indexPath}
}

func TestIngestPartialFailure(t *testing.T) {
	f := newFixture(t)
	f.extractor.texts["one.pdf"] = "Solar power generation grew rapidly this year. Panel prices keep falling."
	f.extractor.texts["three.pdf"] = "Wind turbines supply a rising share of electricity in coastal regions."
	// two.pdf missing from the stub: extraction fails.

	summary, err := f.pipeline.Ingest([]string{"one.pdf", "two.pdf", "three.pdf"}, IngestOptions{})
	require.NoError(t, err, "one corrupt file must not abort the batch")
	assert.Equal(t, 2, summary.Indexed)
	assert.Equal(t, 1, summary.Failed)

	// Both surviving documents are persisted and searchable.
	n, err := f.store.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := f.pipeline.TopChunks("solar panel prices", nil, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].ChunkText, "Solar")

	results, err = f.pipeline.TopChunks("wind turbines electricity", nil, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].ChunkText, "Wind")
}

func TestIngestKeywordFilter(t *testing.T) {
	f := newFixture(t)
	f.extractor.texts["report.pdf"] = "Annual report on renewable capacity."
	f.extractor.texts["memo.pdf"] = "Internal memo about office furniture."

	summary, err := f.pipeline.Ingest([]string{"report.pdf", "memo.pdf"}, IngestOptions{KeywordFilter: "report"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Indexed)
	assert.Equal(t, 1, summary.Failed)
}

func TestIngestCleansTextWhenAsked(t *testing.T) {
	f := newFixture(t)
	f.extractor.texts["messy.pdf"] = "Spaced    out   text\x00 with control bytes."

	_, err := f.pipeline.Ingest([]string{"messy.pdf"}, IngestOptions{CleanText: true})
	require.NoError(t, err)

	doc, err := f.store.GetByFilename("messy.pdf")
	require.NoError(t, err)
	assert.True(t, doc.Cleaned)
	assert.NotContains(t, doc.ExtractedText, "\x00")
	assert.NotContains(t, doc.ExtractedText, "    ")
}

func TestIngestDuplicateFilenamesAccumulate(t *testing.T) {
	f := newFixture(t)
	f.extractor.texts["dup.pdf"] = "Some content about hydropower reservoirs."

	_, err := f.pipeline.Ingest([]string{"dup.pdf"}, IngestOptions{})
	require.NoError(t, err)
	_, err = f.pipeline.Ingest([]string{"dup.pdf"}, IngestOptions{})
	require.NoError(t, err)

	n, err := f.store.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIngestPersistsIndexWholesale(t *testing.T) {
	f := newFixture(t)
	f.extractor.texts["doc.pdf"] = "Geothermal plants run around the clock regardless of weather."

	_, err := f.pipeline.Ingest([]string{"doc.pdf"}, IngestOptions{})
	require.NoError(t, err)

	loaded, err := vectorindex.NewFlat(1)
	require.NoError(t, err)
	require.NoError(t, loaded.Load(f.indexPath))
	assert.Positive(t, loaded.Len())
}

func TestTopChunksScoresAgainstUnexpandedQuery(t *testing.T) {
	f := newFixture(t)
	f.extractor.texts["doc.pdf"] = "Battery storage benefits include smoothing solar output after sunset."
	_, err := f.pipeline.Ingest([]string{"doc.pdf"}, IngestOptions{})
	require.NoError(t, err)

	query := "battery benefits"
	results, err := f.pipeline.TopChunks(query, nil, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// The score must come from the query as asked. Synonym expansion feeds
	// only the embedding; an expanded query ("battery benefit advantage
	// gain") would halve the overlap because the chunk lacks the synonyms.
	proc := queryproc.New(queryproc.Config{})
	want := proc.RelevanceScore(query, results[0].ChunkText, results[0].Distance)
	assert.InDelta(t, want, results[0].Score, 1e-9)

	expanded := proc.RelevanceScore(proc.Process(query, nil), results[0].ChunkText, results[0].Distance)
	assert.Greater(t, results[0].Score, expanded)
}

type failingEmbedder struct {
	domain.Embedder
}

func (f *failingEmbedder) EmbedBatch(texts []string) ([][]float64, error) {
	return nil, errors.New("backend unreachable")
}

func TestIngestProviderFailureAbortsBatch(t *testing.T) {
	f := newFixture(t)
	f.extractor.texts["a.pdf"] = "Text for the first file."
	f.extractor.texts["b.pdf"] = "Text for the second file."
	f.pipeline.embedder = &failingEmbedder{Embedder: hashing.NewEmbedder(64)}

	_, err := f.pipeline.Ingest([]string{"a.pdf", "b.pdf"}, IngestOptions{})
	require.Error(t, err, "a provider failure must surface, not be swallowed")
}

// flakyEmbedder serves the first batch and fails every one after it.
type flakyEmbedder struct {
	domain.Embedder
	calls int
}

func (f *flakyEmbedder) EmbedBatch(texts []string) ([][]float64, error) {
	f.calls++
	if f.calls > 1 {
		return nil, errors.New("backend unreachable")
	}
	return f.Embedder.EmbedBatch(texts)
}

func TestIngestAbortStillPersistsEarlierCommits(t *testing.T) {
	f := newFixture(t)
	f.extractor.texts["a.pdf"] = "Tidal power output follows a predictable lunar schedule."
	f.extractor.texts["b.pdf"] = "Run-of-river plants depend on seasonal flow."
	f.pipeline.embedder = &flakyEmbedder{Embedder: hashing.NewEmbedder(64)}

	summary, err := f.pipeline.Ingest([]string{"a.pdf", "b.pdf"}, IngestOptions{})
	require.Error(t, err)
	assert.Equal(t, 1, summary.Indexed)

	// The document committed before the abort counts as indexed, so it must
	// survive in the persisted index file too.
	loaded, err := vectorindex.NewFlat(1)
	require.NoError(t, err)
	require.NoError(t, loaded.Load(f.indexPath))
	assert.Positive(t, loaded.Len())
	assert.Equal(t, f.pipeline.index.Len(), loaded.Len())
}

func TestRebuildIndexFromMetadata(t *testing.T) {
	f := newFixture(t)
	f.extractor.texts["doc.pdf"] = "Offshore wind farms face higher installation costs but stronger winds."

	_, err := f.pipeline.Ingest([]string{"doc.pdf"}, IngestOptions{})
	require.NoError(t, err)

	before, err := f.pipeline.TopChunks("offshore wind costs", nil, 3)
	require.NoError(t, err)
	require.NotEmpty(t, before)

	// Simulate a lost index, then rebuild from the metadata store.
	empty, err := vectorindex.NewFlat(64)
	require.NoError(t, err)
	f.pipeline.index = empty

	require.NoError(t, f.pipeline.RebuildIndex())

	after, err := f.pipeline.TopChunks("offshore wind costs", nil, 3)
	require.NoError(t, err)
	assert.Equal(t, before, after, "rebuilt index must answer identically")
}

func TestAnswerTwoRoundProtocol(t *testing.T) {
	f := newFixture(t)
	f.extractor.texts["doc.pdf"] = "Battery storage smooths the output of solar farms after sunset."
	_, err := f.pipeline.Ingest([]string{"doc.pdf"}, IngestOptions{})
	require.NoError(t, err)

	f.generator.replies = []string{"draft answer", "refined answer"}
	history := []domain.Message{{Role: domain.RoleUser, Content: "tell me about solar"}}

	answer, sources, err := f.pipeline.Answer("how does battery storage help?", history, 3)
	require.NoError(t, err)
	assert.Equal(t, "refined answer", answer)
	require.NotEmpty(t, sources, "the answer carries the chunks it was grounded on")
	assert.Contains(t, sources[0].ChunkText, "Battery storage")

	require.Len(t, f.generator.calls, 2, "exactly two generation rounds")
	first, second := f.generator.calls[0], f.generator.calls[1]

	// Round one: system + history + prompt with context and raw query.
	assert.Equal(t, domain.RoleSystem, first[0].Role)
	assert.Equal(t, "tell me about solar", first[1].Content)
	assert.Contains(t, first[len(first)-1].Content, "Battery storage")
	assert.Contains(t, first[len(first)-1].Content, "how does battery storage help?")

	// Round two: self-critique over the draft and the same context.
	assert.Contains(t, second[len(second)-1].Content, "draft answer")
	assert.Contains(t, second[len(second)-1].Content, "Battery storage")
}

func TestAnswerGenerationFailureFailsQuery(t *testing.T) {
	f := newFixture(t)
	f.extractor.texts["doc.pdf"] = "Grid interconnections balance regional supply."
	_, err := f.pipeline.Ingest([]string{"doc.pdf"}, IngestOptions{})
	require.NoError(t, err)

	f.generator.err = errors.New("gateway timeout")
	_, _, err = f.pipeline.Answer("question", nil, 3)
	require.Error(t, err)
	assert.ErrorContains(t, err, "generating answer")
}

func TestTopChunksLimitsToK(t *testing.T) {
	f := newFixture(t)
	f.extractor.texts["doc.pdf"] = strings.Repeat("Energy markets move on policy news. ", 40)
	_, err := f.pipeline.Ingest([]string{"doc.pdf"}, IngestOptions{})
	require.NoError(t, err)

	results, err := f.pipeline.TopChunks("energy policy", nil, 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)
}
