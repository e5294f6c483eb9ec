package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/siherrmann/policyrag"
	"github.com/siherrmann/policyrag/core/evaluation"
	"github.com/siherrmann/policyrag/helper"
	"github.com/siherrmann/policyrag/model"
)

// Runs the built-in benchmark with both prompt versions against an already
// ingested index, to compare the baseline prompt against the strict one.
// Needs OPENAI_API_KEY and a reachable database (DB_* environment variables).
func main() {
	_ = godotenv.Load()

	if os.Getenv("OPENAI_API_KEY") == "" {
		log.Fatal("OPENAI_API_KEY is required")
	}

	config, err := model.NewConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}

	rag, err := policyrag.New(config, dbConfig)
	if err != nil {
		log.Fatalf("Failed to create policyrag: %v", err)
	}
	defer rag.Close()

	cases, err := evaluation.BenchmarkCases()
	if err != nil {
		log.Fatalf("Failed to load benchmark cases: %v", err)
	}

	ctx := context.Background()

	for _, version := range []model.PromptVersion{model.PromptVersionBaseline, model.PromptVersionStrict} {
		report, path, err := rag.Evaluate(ctx, cases, version)
		if err != nil {
			log.Fatalf("Evaluation with %s failed: %v", version, err)
		}

		evaluation.PrintSummary(os.Stdout, report)
		fmt.Printf("Report saved to %s\n\n", path)
	}
}
