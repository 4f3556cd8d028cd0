package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/embedding/hashing"
	"docqa/internal/embedding/openai"
	"docqa/internal/extract"
	"docqa/internal/generation"
	"docqa/internal/metadata"
	"docqa/internal/pipeline"
	"docqa/internal/prompt"
	"docqa/internal/queryproc"
	"docqa/internal/tasks"
	"docqa/internal/tui"
	"docqa/internal/vectorindex"
)

// app holds the assembled components shared by the subcommands.
type app struct {
	cfg      *config.AppConfig
	logger   *slog.Logger
	pipeline *pipeline.Pipeline
	store    *metadata.Store
	tasks    tasks.Store
}

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var a app

	root := &cobra.Command{
		Use:           "docqa",
		Short:         "Index PDF documents and answer questions about them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cfgPath, cmd.Name())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.store != nil {
				a.store.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")

	root.AddCommand(newIngestCmd(&a), newQueryCmd(&a), newChatCmd(&a), newRebuildCmd(&a), newTaskCmd(&a))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads config and assembles the pipeline. Which parts are required
// depends on the command: only query and chat need a loaded index and a
// working generation backend.
func (a *app) setup(cfgPath, command string) error {
	needsAnswers := command == "query" || command == "chat"
	var err error
	if cfgPath == "" {
		a.cfg, _, err = config.LoadDefault()
	} else {
		a.cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := a.cfg

	a.logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "hashing", "":
		dim := 0
		if cfg.Embedder.Hashing != nil {
			dim = cfg.Embedder.Hashing.Dimension
		}
		emb = hashing.NewEmbedder(dim)
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return fmt.Errorf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Dimension: cfg.Embedder.OpenAI.Dimension,
			BatchSize: cfg.Embedder.OpenAI.BatchSize,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("initializing openai embedder: %w", err)
		}
		emb = client
	default:
		return fmt.Errorf("unknown embedder type %q", cfg.Embedder.Type)
	}

	ch, err := chunker.New(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("configuring chunker: %w", err)
	}

	store, err := metadata.NewStore(cfg.Metadata.DBPath)
	if err != nil {
		return fmt.Errorf("opening metadata store: %w", err)
	}
	a.store = store

	idx, err := vectorindex.NewFlat(emb.Dimension())
	if err != nil {
		return err
	}

	var gen domain.Generator
	client, err := generation.NewClient(generation.Config{
		BaseURL:   cfg.Generator.BaseURL,
		APIKeyEnv: cfg.Generator.APIKeyEnv,
		Model:     cfg.Generator.Model,
		Timeout:   time.Duration(cfg.Generator.TimeoutSecs) * time.Second,
	})
	if err != nil {
		if needsAnswers {
			return fmt.Errorf("initializing generation backend: %w", err)
		}
	} else {
		gen = client
	}

	a.pipeline = pipeline.New(pipeline.Config{
		Extractor: extract.NewPDF(cfg.Extract.MaxPages),
		Chunker:   ch,
		Embedder:  emb,
		Store:     store,
		Index:     idx,
		Processor: queryproc.New(queryproc.Config{
			HistoryWindow:  cfg.Query.HistoryWindow,
			LexicalWeight:  cfg.Query.LexicalWeight,
			SemanticWeight: cfg.Query.SemanticWeight,
		}),
		Prompts:   prompt.NewBuilder(cfg.Query.ContextBudget),
		Generator: gen,
		Logger:    a.logger,
		IndexPath: cfg.Index.Path,
	})

	switch cfg.Tasks.Type {
	case "memory", "":
		a.tasks = tasks.NewMemoryStore(time.Duration(cfg.Tasks.TTLSecs) * time.Second)
	case "redis":
		if cfg.Tasks.Redis == nil {
			return fmt.Errorf("redis task store config missing")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Tasks.Redis.Addr,
			Password: cfg.Tasks.Redis.Password,
			DB:       cfg.Tasks.Redis.DB,
		})
		a.tasks = tasks.NewRedisStore(client, time.Duration(cfg.Tasks.TTLSecs)*time.Second)
	default:
		return fmt.Errorf("unknown task store type %q", cfg.Tasks.Type)
	}

	if err := a.pipeline.LoadIndex(); err != nil {
		if needsAnswers {
			return fmt.Errorf("loading index (run 'docqa ingest' or 'docqa rebuild' first): %w", err)
		}
		a.logger.Info("no existing index, starting fresh", "path", cfg.Index.Path)
	}
	return nil
}

// recordTask stores the outcome of a long-running command and prints its id.
func (a *app) recordTask(state tasks.State, value string) {
	id := uuid.NewString()
	if err := a.tasks.Put(context.Background(), id, tasks.Result{State: state, Value: value}); err != nil {
		a.logger.Warn("recording task result failed", "task", id, "error", err)
		return
	}
	fmt.Println("Task:", id)
}

func newIngestCmd(a *app) *cobra.Command {
	var keyword string
	var clean bool
	cmd := &cobra.Command{
		Use:   "ingest <file.pdf> [file.pdf ...]",
		Short: "Extract, chunk, embed and index PDF files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := a.pipeline.Ingest(args, pipeline.IngestOptions{
				KeywordFilter: keyword,
				CleanText:     clean,
			})
			if err != nil {
				a.recordTask(tasks.StateFailure, err.Error())
				return err
			}
			msg := fmt.Sprintf("Indexed %d files, %d failed.", summary.Indexed, summary.Failed)
			fmt.Println(msg)
			a.recordTask(tasks.StateSuccess, msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyword, "keyword", "", "only index documents containing this keyword")
	cmd.Flags().BoolVar(&clean, "clean", false, "normalize extracted text before chunking")
	return cmd
}

func newQueryCmd(a *app) *cobra.Command {
	var topK int
	var sources bool
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a single question from the indexed documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if topK == 0 {
				topK = a.cfg.Query.TopK
			}
			answer, ranked, err := a.pipeline.Answer(args[0], nil, topK)
			if err != nil {
				return err
			}
			if sources {
				for i, r := range ranked {
					fmt.Printf("%d. score=%.3f distance=%.3f\n%s\n\n", i+1, r.Score, r.Distance, r.ChunkText)
				}
			}
			fmt.Println(answer)
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of chunks to retrieve (default from config)")
	cmd.Flags().BoolVar(&sources, "sources", false, "print the retrieved chunks before the answer")
	return cmd
}

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive question answering session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := tui.New(a.pipeline, a.cfg.Query.TopK)
			_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
}

func newRebuildCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the vector index from the metadata store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.pipeline.RebuildIndex(); err != nil {
				a.recordTask(tasks.StateFailure, err.Error())
				return err
			}
			a.recordTask(tasks.StateSuccess, "Index rebuilt.")
			return nil
		},
	}
}

func newTaskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "task <id>",
		Short: "Show the recorded outcome of a previous ingest or rebuild",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, ok, err := a.tasks.Get(context.Background(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("pending or expired")
				return nil
			}
			fmt.Printf("%s: %s\n", result.State, result.Value)
			return nil
		},
	}
}
