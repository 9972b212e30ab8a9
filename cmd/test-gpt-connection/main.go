package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/external/openai"
)

// Sends one sample expense to the advisor and prints the note it returns.
func main() {
	apiKey := flag.String("key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
	baseURL := flag.String("base-url", "", "Override the API base URL")
	model := flag.String("model", "gpt-4o-mini", "Model name")
	promptsPath := flag.String("prompts", "", "Optional prompts YAML; built-in prompts when empty")
	timeout := flag.Duration("timeout", 30*time.Second, "API call timeout")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if *apiKey == "" {
		*apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if *apiKey == "" {
		fmt.Fprintf(os.Stderr, "ERROR: OPENAI_API_KEY not set and no --key flag provided\n")
		fmt.Fprintf(os.Stderr, "Usage: test-gpt-connection --key sk-... [--model gpt-4o-mini] [--timeout 30s]\n")
		os.Exit(1)
	}

	prompts := openai.DefaultPrompts()
	if *promptsPath != "" {
		prompts, err = openai.LoadPrompts(*promptsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
	}

	advisor := openai.NewAdvisor(openai.Config{
		APIKey:  *apiKey,
		BaseURL: *baseURL,
		Model:   *model,
	}, prompts, logger)

	date := time.Now().UTC()
	sample := &entity.Expense{
		ID:          "sample",
		Amount:      decimal.RequireFromString("1500.00"),
		Currency:    "USD",
		Category:    "travel",
		Description: "Business flight to Beijing for client meeting - economy class",
		Date:        &date,
	}

	fmt.Printf("Model: %s, timeout: %v\n", *model, *timeout)
	fmt.Printf("Sample: %s %s %s\n\n", sample.Category, sample.Amount.StringFixed(2), sample.Currency)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	note, err := advisor.Advise(ctx, sample)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: advisory call failed after %v: %v\n", time.Since(start), err)
		os.Exit(1)
	}

	fmt.Printf("Advisory note (%v):\n%s\n", time.Since(start).Round(time.Millisecond), note)
}
