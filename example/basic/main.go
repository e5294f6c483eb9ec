package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/siherrmann/policyrag"
	"github.com/siherrmann/policyrag/helper"
	"github.com/siherrmann/policyrag/model"
)

const refundPolicy = `Refund Policy

Customers may request a full refund within 30 days of purchase.
Refund requests must include the order number and the reason for the return.

Items marked as final sale are not eligible for refunds or exchanges.
Refunds are issued to the original payment method within 5 business days of approval.`

const shippingPolicy = `Shipping Policy

Standard shipping takes 5 to 7 business days within the continental United States.
Expedited shipping options are available at checkout for an additional fee.

The company covers return shipping costs for defective or damaged items.
All other return shipping is paid by the customer.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "policyrag_test",
		Username: "policyrag",
		Password: "policyrag",
		Schema:   "public",
		SSLMode:  "disable",
	}

	// Write the sample policies into a docs directory
	docsDir, err := os.MkdirTemp("", "policies")
	if err != nil {
		log.Fatalf("Failed to create docs directory: %v", err)
	}
	defer os.RemoveAll(docsDir)

	writeDoc(docsDir, "refund_policy.md", refundPolicy)
	writeDoc(docsDir, "shipping_policy.md", shippingPolicy)

	// Use the local embedding backend, no API key needed for ingestion
	config := model.DefaultConfig()
	config.EmbeddingBackend = model.EmbeddingBackendLocal
	config.EmbeddingDimension = 384
	config.DocsDir = docsDir

	rag, err := policyrag.New(config, dbConfig)
	if err != nil {
		log.Fatalf("Failed to create policyrag: %v", err)
	}
	defer rag.Close()

	ctx := context.Background()

	count, err := rag.Ingest(ctx)
	if err != nil {
		log.Fatalf("Failed to ingest: %v", err)
	}
	fmt.Printf("Indexed %d chunks\n", count)

	// Answering needs a chat model, skip without an API key
	if os.Getenv("OPENAI_API_KEY") == "" {
		fmt.Println("Set OPENAI_API_KEY to also run question answering.")
		return
	}

	question := "How many days do customers have to request a refund?"
	answer, err := rag.Ask(ctx, question, model.PromptVersionStrict)
	if err != nil {
		log.Fatalf("Failed to ask: %v", err)
	}

	fmt.Printf("\nQ: %s\nA: %s\nGrounded: %v\n", question, answer.Text, answer.Grounded)
}

func writeDoc(dir, name, content string) {
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0640); err != nil {
		log.Fatalf("Failed to write %s: %v", name, err)
	}
}
