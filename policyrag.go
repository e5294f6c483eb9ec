package policyrag

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/siherrmann/policyrag/core/evaluation"
	"github.com/siherrmann/policyrag/core/generation"
	"github.com/siherrmann/policyrag/core/pipeline"
	"github.com/siherrmann/policyrag/core/retrieval"
	"github.com/siherrmann/policyrag/database"
	"github.com/siherrmann/policyrag/helper"
	"github.com/siherrmann/policyrag/loader"
	"github.com/siherrmann/policyrag/model"
	loadSql "github.com/siherrmann/policyrag/sql"
)

// PolicyRAG wires the full pipeline: document loading, chunking, embedding,
// the vector index, retrieval and answer generation.
type PolicyRAG struct {
	DB        *helper.Database
	Index     *database.IndexDBHandler
	Pipeline  *pipeline.Pipeline
	Engine    *retrieval.Engine
	Generator *generation.Generator
	Config    *model.Config
	// Logging
	log *slog.Logger
}

// New creates a PolicyRAG instance with all components initialized.
//
// The embedding backend comes from the config: "openai" needs OPENAI_API_KEY,
// "local" runs without one. The generator always needs OPENAI_API_KEY; with a
// local embedding backend and no key, New succeeds but Ask and Evaluate fail.
func New(config *model.Config, dbConfig *helper.DatabaseConfiguration) (*PolicyRAG, error) {
	if config == nil {
		config = model.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("policyrag", dbConfig, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	baseURL := os.Getenv("OPENAI_BASE_URL")

	var embedder pipeline.Embedder
	switch config.EmbeddingBackend {
	case model.EmbeddingBackendLocal:
		localEmbedder, err := pipeline.NewLocalEmbedder()
		if err != nil {
			return nil, helper.NewError("create local embedder", err)
		}
		embedder = localEmbedder
	default:
		openAIEmbedder, err := pipeline.NewOpenAIEmbedder(apiKey, baseURL, config)
		if err != nil {
			return nil, helper.NewError("create embedder", err)
		}
		embedder = openAIEmbedder
	}

	if embedder.Dimension() != config.EmbeddingDimension {
		return nil, helper.NewError("embedder validation", fmt.Errorf(
			"embedding backend %s produces %d dimensions, config says %d",
			config.EmbeddingBackend, embedder.Dimension(), config.EmbeddingDimension))
	}

	// force=false to not reload if functions already exist
	index, err := database.NewIndexDBHandler(db, config.IndexName, config.EmbeddingDimension, false)
	if err != nil {
		return nil, helper.NewError("create index handler", err)
	}

	ingestPipeline, err := pipeline.NewPipeline(
		pipeline.FixedSizeChunker(config.ChunkSize, config.ChunkOverlap),
		embedder,
		config.EmbeddingConcurrency,
		logger,
	)
	if err != nil {
		return nil, helper.NewError("create pipeline", err)
	}

	engine, err := retrieval.NewEngine(index, embedder, logger)
	if err != nil {
		return nil, helper.NewError("create retrieval engine", err)
	}

	var generator *generation.Generator
	if apiKey != "" {
		generator, err = generation.NewGenerator(apiKey, baseURL, config, logger)
		if err != nil {
			return nil, helper.NewError("create generator", err)
		}
	}

	return &PolicyRAG{
		DB:        db,
		Index:     index,
		Pipeline:  ingestPipeline,
		Engine:    engine,
		Generator: generator,
		Config:    config,
		log:       logger,
	}, nil
}

// Close closes the database connection
func (p *PolicyRAG) Close() error {
	if p.DB != nil && p.DB.Instance != nil {
		return p.DB.Instance.Close()
	}
	return nil
}

// Ingest loads every document from the configured docs directory, chunks and
// embeds them, and rebuilds the vector index from scratch. The rebuild is
// atomic so a concurrent Ask sees either the old index or the new one.
// Returns the number of index entries written.
func (p *PolicyRAG) Ingest(ctx context.Context) (int, error) {
	documents, err := loader.LoadDocuments(p.Config.DocsDir, p.log)
	if err != nil {
		return 0, err
	}

	p.log.Info("Loaded documents", slog.Int("num_documents", len(documents)), slog.String("docs_dir", p.Config.DocsDir))

	entries, err := p.Pipeline.ProcessAll(ctx, documents)
	if err != nil {
		return 0, err
	}

	if err := p.Index.Rebuild(ctx, entries); err != nil {
		return 0, helper.NewError("rebuild index", err)
	}

	p.log.Info("Rebuilt index",
		slog.String("index", p.Config.IndexName),
		slog.Int("num_entries", len(entries)))

	return len(entries), nil
}

// Ask answers a question from the indexed policy documents, retrieving
// relevant chunks and generating a grounded answer with the given prompt
// version.
func (p *PolicyRAG) Ask(ctx context.Context, question string, version model.PromptVersion) (*model.Answer, error) {
	if p.Generator == nil {
		return nil, helper.NewError("ask", fmt.Errorf("OpenAI API key is required, set OPENAI_API_KEY"))
	}

	retrieved, err := p.Engine.Retrieve(ctx, question, p.Config.DefaultQueryConfig())
	if err != nil {
		return nil, err
	}

	answer, err := p.Generator.Generate(ctx, retrieved, version)
	if err != nil {
		return nil, err
	}

	p.log.Info("Answered question",
		slog.String("prompt_version", version.String()),
		slog.Bool("grounded", answer.Grounded),
		slog.Int("num_results", len(retrieved.Results)))

	return answer, nil
}

// Evaluate runs the case set through the full Ask path and writes the report
// into the configured results directory. Returns the report and the path it
// was saved to.
func (p *PolicyRAG) Evaluate(ctx context.Context, cases []model.EvaluationCase, version model.PromptVersion) (*model.EvaluationReport, string, error) {
	harness, err := evaluation.NewHarness(p, evaluation.NewTokenOverlapScorer(), p.log)
	if err != nil {
		return nil, "", err
	}

	report, err := harness.Run(ctx, cases, version)
	if err != nil {
		return nil, "", err
	}

	path, err := evaluation.SaveReport(report, p.Config.ResultsDir)
	if err != nil {
		return nil, "", err
	}

	p.log.Info("Saved evaluation report",
		slog.String("path", path),
		slog.Float64("mean_score", report.MeanScore),
		slog.Float64("grounded_rate", report.GroundedRate))

	return report, path, nil
}
