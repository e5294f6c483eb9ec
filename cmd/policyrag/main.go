package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/siherrmann/policyrag"
	"github.com/siherrmann/policyrag/core/evaluation"
	"github.com/siherrmann/policyrag/database"
	"github.com/siherrmann/policyrag/helper"
	"github.com/siherrmann/policyrag/model"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: policyrag <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  ingest    load policy documents and rebuild the vector index\n")
	fmt.Fprintf(os.Stderr, "  ask       answer a question from the indexed documents\n")
	fmt.Fprintf(os.Stderr, "  evaluate  run the benchmark case set and save a report\n")
}

func main() {
	// Load .env file if it exists (for API key and database config)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "ingest":
		err = runIngest(os.Args[2:])
	case "ask":
		err = runAsk(os.Args[2:])
	case "evaluate":
		err = runEvaluate(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, database.ErrIndexMissing) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "Run `policyrag ingest` first to build the index.\n")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newPolicyRAG(config *model.Config) (*policyrag.PolicyRAG, error) {
	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		return nil, err
	}
	return policyrag.New(config, dbConfig)
}

func runIngest(args []string) error {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	docsDir := flags.String("docs", "", "documents directory (default from config)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	config, err := model.NewConfigFromEnv()
	if err != nil {
		return err
	}
	if *docsDir != "" {
		config.DocsDir = *docsDir
	}

	rag, err := newPolicyRAG(config)
	if err != nil {
		return err
	}
	defer rag.Close()

	count, err := rag.Ingest(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %d chunks into %q\n", count, config.IndexName)
	return nil
}

func runAsk(args []string) error {
	flags := flag.NewFlagSet("ask", flag.ExitOnError)
	promptVersion := flags.Int("prompt-version", int(model.PromptVersionStrict), "prompt version (1 baseline, 2 strict)")
	showContext := flags.Bool("show-context", false, "print the retrieved context before the answer")
	if err := flags.Parse(args); err != nil {
		return err
	}

	question := strings.TrimSpace(strings.Join(flags.Args(), " "))
	if question == "" {
		return fmt.Errorf("a question is required: policyrag ask <question>")
	}

	version, err := model.ParsePromptVersion(*promptVersion)
	if err != nil {
		return err
	}

	config, err := model.NewConfigFromEnv()
	if err != nil {
		return err
	}

	rag, err := newPolicyRAG(config)
	if err != nil {
		return err
	}
	defer rag.Close()

	answer, err := rag.Ask(context.Background(), question, version)
	if err != nil {
		return err
	}

	if *showContext {
		color.New(color.Bold).Println("Context:")
		if answer.Context == "" {
			fmt.Println(model.NoContextMarker)
		} else {
			fmt.Println(answer.Context)
		}
		fmt.Println()
	}

	color.New(color.Bold).Println("Answer:")
	fmt.Println(answer.Text)
	if !answer.Grounded {
		color.New(color.FgYellow).Println("\n(not grounded in the indexed documents)")
	}
	return nil
}

func runEvaluate(args []string) error {
	flags := flag.NewFlagSet("evaluate", flag.ExitOnError)
	promptVersion := flags.Int("prompt-version", int(model.PromptVersionStrict), "prompt version (1 baseline, 2 strict)")
	casesPath := flags.String("cases", "", "path to a custom case set (default built-in benchmark)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	version, err := model.ParsePromptVersion(*promptVersion)
	if err != nil {
		return err
	}

	cases, err := evaluation.BenchmarkCases()
	if *casesPath != "" {
		cases, err = evaluation.LoadCases(*casesPath)
	}
	if err != nil {
		return err
	}

	config, err := model.NewConfigFromEnv()
	if err != nil {
		return err
	}

	rag, err := newPolicyRAG(config)
	if err != nil {
		return err
	}
	defer rag.Close()

	report, path, err := rag.Evaluate(context.Background(), cases, version)
	if err != nil {
		return err
	}

	evaluation.PrintSummary(os.Stdout, report)
	fmt.Printf("Report saved to %s\n", path)
	return nil
}
