package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/papertrail/backend/internal/embedding"
	"github.com/papertrail/backend/internal/evaluation"
	"github.com/papertrail/backend/internal/evidence"
	"github.com/papertrail/backend/internal/intent"
	"github.com/papertrail/backend/internal/llm"
	"github.com/papertrail/backend/internal/metrics"
	"github.com/papertrail/backend/internal/retrieval"
	"github.com/papertrail/backend/internal/synthesis"
	"github.com/papertrail/backend/internal/vector/milvus"
	"github.com/papertrail/backend/internal/vector/qdrant"
	"github.com/papertrail/backend/pkg/config"
	appLogger "github.com/papertrail/backend/pkg/logger"
)

// evaluate drives a JSON question dataset through retrieval and synthesis
// and grades each answer for groundedness with an LLM judge. Offline tool;
// shares the server's config file and vector index.
func main() {
	datasetPath := flag.String("dataset", "", "path to the JSON evaluation dataset")
	topK := flag.Int("top-k", 5, "evidence chunks retrieved per question")
	flag.Parse()

	if *datasetPath == "" {
		fmt.Fprintln(os.Stderr, "usage: evaluate -dataset <file.json> [-top-k N]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	metrics.Init()

	data, err := os.ReadFile(*datasetPath)
	if err != nil {
		appLogger.Fatal("Failed to read dataset", zap.Error(err))
	}
	dataset, err := evaluation.LoadDatasetFromJSON(data)
	if err != nil {
		appLogger.Fatal("Failed to parse dataset", zap.Error(err))
	}

	index, closer, err := buildVectorIndex(cfg)
	if err != nil {
		appLogger.Fatal("Failed to create vector index", zap.Error(err))
	}
	if closer != nil {
		defer closer()
	}

	llmClient := llm.NewClient(cfg.LLM)
	embedder := embedding.NewService(llmClient)

	retriever := retrieval.NewRetriever(embedder, index, retrieval.Options{
		Hybrid:       cfg.Retrieval.HybridEnabled && cfg.Retrieval.Provider != "milvus",
		RRFK:         cfg.Retrieval.RRFK,
		DenseWeight:  cfg.Retrieval.DenseWeight,
		SparseWeight: cfg.Retrieval.SparseWeight,
	})
	classifier := intent.NewClassifier()
	synthesizer := synthesis.NewSynthesizer(llmClient)

	evaluator := evaluation.NewEvaluator(llmClient, llmClient)

	ctx := context.Background()
	answer := func(ctx context.Context, question string) (string, []evidence.Chunk, error) {
		ir := classifier.Classify(question)
		chunks, _, err := retriever.Retrieve(ctx, question, ir, *topK)
		if err != nil {
			return "", nil, err
		}
		result, err := synthesizer.Synthesize(ctx, question, ir.Intent, chunks)
		if err != nil {
			return "", nil, err
		}
		return result.Answer, chunks, nil
	}

	report, err := evaluator.RunDataset(ctx, dataset, answer)
	if err != nil {
		appLogger.Fatal("Evaluation run failed", zap.Error(err))
	}

	printReport(report)
}

func printReport(r *evaluation.Report) {
	fmt.Printf("Questions:            %d (evaluated %d)\n", r.TotalQuestions, r.EvaluatedQuestions)
	fmt.Printf("Grounded:             %d\n", r.GroundedCount)
	fmt.Printf("Partially grounded:   %d\n", r.PartialCount)
	fmt.Printf("Ungrounded:           %d\n", r.UngroundedCount)
	fmt.Printf("Avg groundedness:     %.2f / 3\n", r.AvgGroundedness)
	fmt.Printf("Avg relevance:        %.2f / 3\n", r.AvgRelevance)
	fmt.Printf("Avg completeness:     %.2f / 3\n", r.AvgCompleteness)
	fmt.Printf("Avg citation fidelity:%.2f / 3\n", r.AvgCitationFidelity)
	fmt.Printf("Avg evidence cosine:  %.2f\n", r.AvgEvidenceSimilarity)
}

func buildVectorIndex(cfg *config.Config) (retrieval.VectorIndex, func() error, error) {
	switch cfg.Retrieval.Provider {
	case "milvus":
		client, err := milvus.NewClient(
			cfg.Milvus.Endpoint,
			cfg.Milvus.APIKey,
			cfg.Milvus.CollectionName,
			cfg.Milvus.VectorDim,
		)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	default:
		return qdrant.NewClient(cfg.Qdrant), nil, nil
	}
}
