package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document is the durable record of a single ingested file.
type Document struct {
	ID              int64
	Filename        string
	ExtractedText   string
	PageCount       int
	ExtractionDate  time.Time
	Cleaned         bool
	ChunkEmbeddings [][]float64
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Hit is a nearest-neighbor match returned by the vector index.
// Distance is squared Euclidean; lower is closer.
type Hit struct {
	ID       int
	Payload  string
	Distance float64
}

// RankedResult is a retrieved chunk after relevance re-ranking.
// Score blends lexical overlap with embedding-space proximity; higher is better.
type RankedResult struct {
	ChunkText string
	Distance  float64
	Score     float64
}

// IngestSummary reports the outcome of one ingestion batch.
type IngestSummary struct {
	Indexed int
	Failed  int
}

// Embedder converts free text into a fixed-dimension numeric vector.
// Dimension is fixed per instance and known before any vectors are produced.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(text string) ([]float64, error)
	EmbedBatch(texts []string) ([][]float64, error)
}

// Extractor pulls plain text out of a source file.
type Extractor interface {
	Extract(path string) (text string, pageCount int, err error)
}

// Generator produces a single reply for an ordered sequence of chat turns.
type Generator interface {
	Chat(messages []Message) (string, error)
}
